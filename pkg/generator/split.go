package generator

import (
	"regexp"
	"strings"
)

// testBoundary recognizes the start of a test function/case across the
// target languages this service's generated output is expected to use:
// pytest (`def test_...`), Playwright/Jest/Mocha (`test(...)`/`it(...)`),
// JUnit-style (`@Test` annotation), and Go (`func Test...`). The generator's
// output is not Go source, so this is a line-oriented boundary scan rather
// than a language parser — see pkg/validator for the same tradeoff applied
// to safety analysis.
var testBoundary = regexp.MustCompile(`(?m)^\s*(def\s+test_\w+|test\(\s*["'\x60]|it\(\s*["'\x60]|@Test\b|func\s+Test\w+)`)

// SplitTestFunctions splits raw LLM output into individual test sources at
// recognized test-function boundaries. Leading commentary before the first
// boundary is discarded; each returned source runs from one boundary up to
// (not including) the next, with surrounding whitespace trimmed. Returns nil
// if no boundary is found.
func SplitTestFunctions(text string) []string {
	locs := testBoundary.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		return nil
	}

	var out []string
	for i, loc := range locs {
		start := loc[0]
		end := len(text)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		chunk := strings.TrimSpace(text[start:end])
		if chunk != "" {
			out = append(out, chunk)
		}
	}
	return out
}
