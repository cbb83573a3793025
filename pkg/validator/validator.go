package validator

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/testgenai/testgen/pkg/models"
)

// DefaultFanout is the concurrency bound for parallel validation when the
// caller does not configure one (spec §5).
const DefaultFanout = 8

// Validator classifies generated tests independently and in parallel, never
// rejecting the whole batch.
type Validator struct {
	fanout int
}

// NewValidator constructs a Validator with the given concurrency bound. A
// non-positive fanout falls back to DefaultFanout.
func NewValidator(fanout int) *Validator {
	if fanout <= 0 {
		fanout = DefaultFanout
	}
	return &Validator{fanout: fanout}
}

// ValidateBatch runs ValidateOne over every test up to the configured
// fan-out, preserving input order in the returned slice regardless of
// completion order (spec §4.4 ordering guarantee).
func (v *Validator) ValidateBatch(ctx context.Context, tests []*models.TestCase) ([]Outcome, error) {
	out := make([]Outcome, len(tests))
	sem := make(chan struct{}, v.fanout)

	g, gctx := errgroup.WithContext(ctx)
	for i, tc := range tests {
		i, tc := i, tc
		g.Go(func() error {
			select {
			case sem <- struct{}{}:
			case <-gctx.Done():
				return gctx.Err()
			}
			defer func() { <-sem }()

			out[i] = ValidateOne(tc)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// ValidateOne runs all four layers over a single test and computes its final
// status and score (spec §4.4).
func ValidateOne(tc *models.TestCase) Outcome {
	outcome := Outcome{TestID: tc.ID, Score: startScore, RiskLevel: models.RiskSafe}

	syntaxErrors, syntaxIssues := checkSyntax(tc.Code)
	outcome.SyntaxErrorCount = syntaxErrors
	outcome.Issues = append(outcome.Issues, syntaxIssues...)

	if syntaxErrors > 0 {
		outcome.Status = models.ValidationWarning
		return outcome
	}

	semanticIssues, hasMetadata := checkSemantic(tc.Code)
	outcome.Issues = append(outcome.Issues, semanticIssues...)
	outcome.Score -= len(semanticIssues) * semanticErrorPenalty

	logicIssues := checkLogic(tc.Code)
	outcome.Issues = append(outcome.Issues, logicIssues...)
	outcome.Score -= len(logicIssues) * logicErrorPenalty

	ast := parseGenericAST(tc.Code)
	risk, findings := runSafetyGuard(tc.Code, ast)
	outcome.RiskLevel = risk

	for _, f := range findings {
		outcome.AuditRows = append(outcome.AuditRows, &models.SecurityAuditLog{
			RequestID:       tc.RequestID,
			TestID:          &tc.ID,
			SecurityLayer:   f.Layer,
			RiskLevel:       f.Risk,
			Issues:          f.Issues,
			BlockedPatterns: f.Blocked,
			ActionTaken:     f.ActionTaken,
		})
	}

	if outcome.Score < 0 {
		outcome.Score = 0
	}
	if models.RiskLevelRank(risk) >= models.RiskLevelRank(models.RiskHigh) {
		outcome.Score = 0
	}

	switch {
	case models.RiskLevelRank(risk) >= models.RiskLevelRank(models.RiskHigh):
		outcome.Status = models.ValidationFailed
	case hasMetadata || outcome.Score >= passingScoreFloor:
		outcome.Status = models.ValidationPassed
	default:
		outcome.Status = models.ValidationWarning
	}

	return outcome
}
