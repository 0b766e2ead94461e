// Package policy decides whether an aggregated review should block a pull
// request, based on the repository's configured thresholds.
package policy

import (
	"fmt"
	"strings"

	"github.com/diffsentry/pkg/models"
)

// Host review verbs the decision maps to.
const (
	VerbRequestChanges = "REQUEST_CHANGES"
	VerbComment        = "COMMENT"
)

// Evaluate compares a review against the repository policy. Any single
// triggered rule is enough to block; all triggered reasons are joined into
// one explanation. A nil policy never blocks.
func Evaluate(review *models.AggregatedReview, pol *models.Policy) models.PolicyDecision {
	if pol == nil || review == nil {
		return models.PolicyDecision{}
	}

	var reasons []string

	if review.RiskScore > pol.BlockRiskThreshold {
		reasons = append(reasons, fmt.Sprintf("risk score %d exceeds threshold %d", review.RiskScore, pol.BlockRiskThreshold))
	}

	if pol.BlockOnHighSeveritySecurity {
		if n := highSeveritySecurityCount(review.Findings); n > 0 {
			reasons = append(reasons, fmt.Sprintf("%d high-severity security finding(s)", n))
		}
	}

	if pol.MaxIssueCount > 0 && len(review.Findings) > pol.MaxIssueCount {
		reasons = append(reasons, fmt.Sprintf("%d findings exceed the configured maximum of %d", len(review.Findings), pol.MaxIssueCount))
	}

	if len(reasons) == 0 {
		return models.PolicyDecision{}
	}

	return models.PolicyDecision{
		IsBlocked: true,
		Reason:    strings.Join(reasons, "; "),
	}
}

// Verb maps a decision to the host review action.
func Verb(decision models.PolicyDecision) string {
	if decision.IsBlocked {
		return VerbRequestChanges
	}
	return VerbComment
}

func highSeveritySecurityCount(findings []models.ReviewFinding) int {
	n := 0
	for _, f := range findings {
		if f.Category != models.CategorySecurity {
			continue
		}
		if f.Severity == models.SeverityHigh || f.Severity == models.SeverityCritical {
			n++
		}
	}
	return n
}
