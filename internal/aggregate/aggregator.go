// Package aggregate merges the per-unit results of a review batch into a
// single AggregatedReview.
package aggregate

import (
	"errors"
	"strings"

	"github.com/diffsentry/internal/engine"
	"github.com/diffsentry/internal/scoring"
	"github.com/diffsentry/pkg/models"
)

// ErrNoReview means no unit produced output. It is distinct from a clean
// zero-finding review: "nothing to report" and "could not produce a report"
// must never be conflated.
var ErrNoReview = errors.New("no review units succeeded")

// Merge combines ordered unit results into one review. Findings are
// de-duplicated by (file, line, description) keeping the first occurrence,
// the risk score is recomputed deterministically over the de-duplicated
// set, and usage sums over successful units only. Partial is set when any
// unit failed.
func Merge(results []engine.UnitResult) (*models.AggregatedReview, error) {
	var (
		summaries []string
		findings  []models.ReviewFinding
		usage     models.Usage
		failed    int
		succeeded int
	)

	seen := make(map[string]bool)

	for _, result := range results {
		if result.Failed() {
			failed++
			continue
		}
		succeeded++

		if s := strings.TrimSpace(result.Review.Summary); s != "" {
			summaries = append(summaries, s)
		}

		for _, finding := range result.Review.Findings {
			key := finding.DedupKey()
			if seen[key] {
				continue
			}
			seen[key] = true
			findings = append(findings, finding)
		}

		usage.Add(result.Usage)
	}

	if succeeded == 0 {
		return nil, ErrNoReview
	}

	return &models.AggregatedReview{
		Summary:   strings.Join(summaries, "\n\n"),
		Findings:  findings,
		RiskScore: scoring.RiskScore(findings),
		Usage:     usage,
		Partial:   failed > 0,
	}, nil
}
