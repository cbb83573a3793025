package optimizer

import (
	"strings"

	"github.com/testgenai/testgen/pkg/models"
)

// minCoverageForNoGap is the coverage_count below which a covered
// requirement is still flagged as a gap (spec §4.5: has_gap iff uncovered or
// coverage_count < 2 — a single covering test is treated as fragile).
const minCoverageForNoGap = 2

// coverageDivisor normalizes coverage_count into a [0,1] score, saturating
// at 1.0 once a requirement has two or more covering tests.
const coverageDivisor = 2.0

// analyzeCoverage produces one CoverageAnalysis row per requirement: a test
// covers a requirement iff the case-folded requirement text appears as a
// substring of the test's code, or the requirement's index is in the test's
// declared covered_requirements.
func analyzeCoverage(requestID string, requirements []string, tests []*models.TestCase) ([]*models.CoverageAnalysis, []GapInfo, float64) {
	rows := make([]*models.CoverageAnalysis, 0, len(requirements))
	var gaps []GapInfo
	var totalScore float64

	for idx, reqText := range requirements {
		foldedReq := strings.ToLower(reqText)
		var coveringTests []string

		for _, tc := range tests {
			covers := strings.Contains(strings.ToLower(tc.Code), foldedReq) || containsInt(tc.CoveredRequirements, idx)
			if covers {
				coveringTests = append(coveringTests, tc.ID)
			}
		}

		count := len(coveringTests)
		isCovered := count > 0
		hasGap := !isCovered || count < minCoverageForNoGap
		score := float64(count) / coverageDivisor
		if score > 1.0 {
			score = 1.0
		}
		totalScore += score

		row := &models.CoverageAnalysis{
			RequestID:        requestID,
			RequirementText:  reqText,
			RequirementIndex: idx,
			IsCovered:        isCovered,
			CoveringTests:    coveringTests,
			CoverageCount:    count,
			CoverageScore:    score,
			HasGap:           hasGap,
		}
		if hasGap {
			desc := "no covering test found"
			if isCovered {
				desc = "only one covering test; recommend additional coverage"
			}
			row.GapDescription = &desc
			gaps = append(gaps, GapInfo{RequirementIndex: idx, RequirementText: reqText, Description: desc})
		}
		rows = append(rows, row)
	}

	requestScore := 0.0
	if len(requirements) > 0 {
		var covered int
		for _, r := range rows {
			if r.IsCovered {
				covered++
			}
		}
		requestScore = float64(covered) / float64(len(requirements))
	}

	return rows, gaps, requestScore
}

func containsInt(xs []int, v int) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}
