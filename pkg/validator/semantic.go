package validator

import "regexp"

// metadataPatterns look for the descriptive tags the generator is expected
// to inject (spec §4.4 layer 2) — as comments, decorators, or docstring-style
// annotations, since the target language is not fixed.
var metadataPatterns = map[string]*regexp.Regexp{
	"feature":  regexp.MustCompile(`(?i)@?feature[:=]`),
	"story":    regexp.MustCompile(`(?i)@?story[:=]`),
	"title":    regexp.MustCompile(`(?i)@?title[:=]`),
	"severity": regexp.MustCompile(`(?i)@?(severity|tag)[:=]`),
}

// assertionPattern matches call-style assertions (assert(, expect(, should.,
// require.) and Python's bare `assert` statement at the start of a line.
var assertionPattern = regexp.MustCompile(`(?im)\b(assert|expect|should|require)\w*\s*[(.]|^\s*assert\s`)

// checkSemantic reports missing metadata tags and a missing assertion, all as
// warnings — spec §4.4 is explicit that missing metadata must never fail a
// test outright.
func checkSemantic(source string) (issues []string, hasMetadata bool) {
	hasMetadata = true
	for name, pattern := range metadataPatterns {
		if !pattern.MatchString(source) {
			issues = append(issues, "missing "+name+" metadata")
			hasMetadata = false
		}
	}
	if !assertionPattern.MatchString(source) {
		issues = append(issues, "no assertion-like construct found")
	}
	return issues, hasMetadata
}
