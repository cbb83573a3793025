// Package validator implements the four-layer static analysis the pipeline
// runs over every generated test (spec §4.4): syntax, semantic, logic, and
// the Safety Guard's static/AST/behavioral/sandbox sub-layers.
package validator

import "github.com/testgenai/testgen/pkg/models"

// Issue is one finding attached to a test, tagged with the layer that
// produced it and whether it is a hard error or a warning.
type Issue struct {
	Layer    string
	Message  string
	IsError  bool
}

// Outcome is one test's full validation result.
type Outcome struct {
	TestID           string
	Status           models.ValidationStatus
	Issues           []string
	RiskLevel        models.SafetyRiskLevel
	Score            int
	AuditRows        []*models.SecurityAuditLog
	SyntaxErrorCount int
}

// startScore is the Safety Guard + Validator's initial per-test score (spec
// §4.4): deductions are applied from here, never below 0.
const startScore = 100
const semanticErrorPenalty = 30
const logicErrorPenalty = 20
const passingScoreFloor = 50
