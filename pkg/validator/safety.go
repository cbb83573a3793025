package validator

import (
	"regexp"

	"github.com/testgenai/testgen/pkg/models"
)

// staticBlacklist matches source text directly against constructs that are
// never acceptable in a generated test, regardless of language (spec §4.4
// Safety Guard, static sub-layer). Any match is CRITICAL.
var staticBlacklist = regexp.MustCompile(
	`\b(eval|exec|compile)\s*\(` +
		`|__import__\s*\(` +
		`|\bimport\s*\(` +
		`|os\.system\s*\(` +
		`|subprocess\.\w+\s*\(` +
		`|child_process\.\w+\s*\(` +
		`|exec\.Command\s*\(` +
		`|\bsocket\.socket\s*\(` +
		`|net\.Dial\s*\(`,
)

// importWhitelist are packages/modules a generated test may import without
// triggering the AST sub-layer's HIGH finding — testing and HTTP-client
// libraries for the target languages this service is expected to generate
// for.
var importWhitelist = map[string]bool{
	"pytest": true, "unittest": true, "requests": true, "json": true,
	"playwright": true, "playwright.sync_api": true, "selenium": true,
	"jest": true, "mocha": true, "chai": true, "@playwright/test": true,
	"assert": true, "testing": true, "net/http": true, "net/http/httptest": true,
	"time": true, "re": true, "typing": true, "dataclasses": true,
}

var astBlacklistCalls = []string{
	"eval", "exec", "compile", "__import__", "system", "Popen", "spawn",
}

var behavioralPattern = regexp.MustCompile(`(?i)\b(os\.remove|os\.unlink|shutil\.rmtree|fs\.unlink|fs\.writeFile|fs\.rmSync|open\([^)]*['"]w)`)

// safetyFinding is one sub-layer's contribution, ready to become a
// SecurityAuditLog row.
type safetyFinding struct {
	Layer       models.SecurityLayer
	Risk        models.SafetyRiskLevel
	Issues      []string
	Blocked     []string
	ActionTaken models.ActionTaken
}

// runSafetyGuard evaluates all sub-layers and returns one finding per
// sub-layer that produced anything, plus the overall max risk level.
func runSafetyGuard(source string, ast genericAST) (models.SafetyRiskLevel, []safetyFinding) {
	overall := models.RiskSafe
	var findings []safetyFinding

	if matches := staticBlacklist.FindAllString(source, -1); len(matches) > 0 {
		overall = models.MaxRisk(overall, models.RiskCritical)
		findings = append(findings, safetyFinding{
			Layer:       models.LayerStatic,
			Risk:        models.RiskCritical,
			Issues:      []string{"matched blacklisted construct"},
			Blocked:     dedupeStrings(matches),
			ActionTaken: models.ActionBlocked,
		})
	}

	var astIssues []string
	var astBlocked []string
	astRisk := models.RiskSafe
	for _, imp := range ast.Imports {
		if !importWhitelist[imp] {
			astRisk = models.MaxRisk(astRisk, models.RiskHigh)
			astIssues = append(astIssues, "import outside whitelist: "+imp)
			astBlocked = append(astBlocked, imp)
		}
	}
	for _, name := range astBlacklistCalls {
		if ast.HasCall(name) {
			astRisk = models.MaxRisk(astRisk, models.RiskCritical)
			astIssues = append(astIssues, "call to blacklisted builtin: "+name)
			astBlocked = append(astBlocked, name)
		}
	}
	if astRisk != models.RiskSafe {
		overall = models.MaxRisk(overall, astRisk)
		action := models.ActionWarning
		if astRisk == models.RiskCritical {
			action = models.ActionBlocked
		}
		findings = append(findings, safetyFinding{
			Layer: models.LayerAST, Risk: astRisk, Issues: astIssues,
			Blocked: astBlocked, ActionTaken: action,
		})
	}

	if matches := behavioralPattern.FindAllString(source, -1); len(matches) > 0 {
		overall = models.MaxRisk(overall, models.RiskMedium)
		findings = append(findings, safetyFinding{
			Layer:       models.LayerBehavioral,
			Risk:        models.RiskMedium,
			Issues:      []string{"file write/delete pattern detected"},
			Blocked:     dedupeStrings(matches),
			ActionTaken: models.ActionWarning,
		})
	}

	// Sandbox sub-layer is an external collaborator (spec §4.4); absent here,
	// it contributes nothing.

	return overall, findings
}

func dedupeStrings(in []string) []string {
	seen := make(map[string]bool, len(in))
	var out []string
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
