package validator

import "regexp"

var (
	unboundedLoopPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)while\s*\(?\s*true\s*\)?\s*:?\s*\{?`),
		regexp.MustCompile(`for\s*\(\s*;\s*;\s*\)`),
	}
	sleepPattern = regexp.MustCompile(`(?i)\b(time\.sleep|sleep|setTimeout|Thread\.sleep)\s*\(`)
	breakPattern = regexp.MustCompile(`\bbreak\b`)
)

// checkLogic flags unbounded loops without a break and sleep-based
// synchronization — both warnings (spec §4.4 layer 3).
func checkLogic(source string) []string {
	var issues []string

	for _, p := range unboundedLoopPatterns {
		if loc := p.FindStringIndex(source); loc != nil {
			if !breakPattern.MatchString(source[loc[0]:]) {
				issues = append(issues, "unbounded loop without break")
			}
			break
		}
	}

	if sleepPattern.MatchString(source) {
		issues = append(issues, "sleep-based synchronization")
	}

	return issues
}
