// Package scoring computes the deterministic review risk score. The number
// an LLM returns for risk is never trusted; this package is the single
// source of truth for the 0-100 score attached to a review.
package scoring

import "github.com/diffsentry/pkg/models"

// severityWeights is the canonical weight table. Severities outside the
// table weigh the same as low so malformed model output cannot zero out or
// inflate the score.
var severityWeights = map[models.Severity]int{
	models.SeverityCritical: 40,
	models.SeverityHigh:     20,
	models.SeverityMedium:   10,
	models.SeverityLow:      5,
}

const defaultWeight = 5

// RiskScore sums severity weights over findings, capped at 100. The
// function is pure: the same finding set, in any order, always produces the
// same score.
func RiskScore(findings []models.ReviewFinding) int {
	total := 0
	for _, f := range findings {
		w, ok := severityWeights[f.Severity]
		if !ok {
			w = defaultWeight
		}
		total += w
	}
	if total > 100 {
		total = 100
	}
	return total
}
