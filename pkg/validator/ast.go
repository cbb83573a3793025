package validator

import "regexp"

// genericAST is the hand-written, language-agnostic scan described in
// SPEC_FULL.md §9: generated test sources are arbitrary target-language code
// (pytest, Playwright, JUnit, ...), so this is a line/regex scan rather than
// a real parser — it only needs to answer three questions: what's imported,
// what's called, and what functions are declared.
type genericAST struct {
	Imports     []string
	Calls       []string
	FunctionDefs []string
}

var (
	importPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?m)^\s*import\s+([\w.]+)`),
		regexp.MustCompile(`(?m)^\s*from\s+([\w.]+)\s+import`),
		regexp.MustCompile(`(?m)^\s*(?:const|let|var)\s+[\w{},\s]+=\s*require\(['"]([^'"]+)['"]\)`),
		regexp.MustCompile(`(?m)^\s*import\s+.*from\s+['"]([^'"]+)['"]`),
	}
	callPattern     = regexp.MustCompile(`\b([A-Za-z_][\w.]*)\s*\(`)
	funcDefPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?m)^\s*def\s+(\w+)\s*\(`),
		regexp.MustCompile(`(?m)^\s*func\s+(\w+)\s*\(`),
		regexp.MustCompile(`(?m)^\s*(?:async\s+)?function\s+(\w+)\s*\(`),
	}
)

// parseGenericAST extracts imports, calls, and function definitions from raw
// source text via pattern matching. It is deliberately permissive — false
// positives in Calls are acceptable since the Safety Guard only cares about
// blacklist matches, not a complete call graph.
func parseGenericAST(source string) genericAST {
	var ast genericAST

	for _, p := range importPatterns {
		for _, m := range p.FindAllStringSubmatch(source, -1) {
			if len(m) > 1 && m[1] != "" {
				ast.Imports = append(ast.Imports, m[1])
			}
		}
	}

	for _, m := range callPattern.FindAllStringSubmatch(source, -1) {
		ast.Calls = append(ast.Calls, m[1])
	}

	for _, p := range funcDefPatterns {
		for _, m := range p.FindAllStringSubmatch(source, -1) {
			if len(m) > 1 {
				ast.FunctionDefs = append(ast.FunctionDefs, m[1])
			}
		}
	}

	return ast
}

// HasCall reports whether name appears (exactly, or as the final dotted
// component) among the scanned calls.
func (a genericAST) HasCall(name string) bool {
	for _, c := range a.Calls {
		if c == name || hasSuffixComponent(c, name) {
			return true
		}
	}
	return false
}

func hasSuffixComponent(full, suffix string) bool {
	if len(full) <= len(suffix) {
		return full == suffix
	}
	return full[len(full)-len(suffix)-1:] == "."+suffix
}
