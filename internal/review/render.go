package review

import (
	"fmt"
	"strings"

	"github.com/diffsentry/internal/hostclient"
	"github.com/diffsentry/pkg/models"
)

const noChangesComment = "No reviewable code changes were found in this pull request, so no automated review was performed."

const partialNotice = "Some parts of this pull request could not be reviewed. The findings below may be incomplete."

// renderReview turns the merged review into a markdown body plus
// line-anchored comments. Findings without a line number go into the body.
func renderReview(merged *models.AggregatedReview, decision models.PolicyDecision) (string, []hostclient.ReviewComment) {
	var b strings.Builder

	b.WriteString("## Automated Review\n\n")
	if merged.Summary != "" {
		b.WriteString(merged.Summary)
		b.WriteString("\n\n")
	}

	fmt.Fprintf(&b, "**Risk score:** %d/100\n", merged.RiskScore)
	if decision.IsBlocked {
		fmt.Fprintf(&b, "\n:no_entry: **Changes requested:** %s\n", decision.Reason)
	}
	if merged.Partial {
		fmt.Fprintf(&b, "\n> %s\n", partialNotice)
	}

	var comments []hostclient.ReviewComment
	var unanchored []models.ReviewFinding
	for _, f := range merged.Findings {
		if f.Line > 0 {
			comments = append(comments, hostclient.ReviewComment{
				Path: f.File,
				Line: f.Line,
				Body: renderFinding(f),
			})
		} else {
			unanchored = append(unanchored, f)
		}
	}

	if len(unanchored) > 0 {
		b.WriteString("\n### File-level findings\n")
		for _, f := range unanchored {
			fmt.Fprintf(&b, "\n- `%s`: %s", f.File, renderFinding(f))
		}
		b.WriteString("\n")
	}

	return b.String(), comments
}

func renderFinding(f models.ReviewFinding) string {
	var b strings.Builder

	fmt.Fprintf(&b, "**[%s/%s]**", f.Severity, f.Category)
	if f.Title != "" {
		fmt.Fprintf(&b, " %s", f.Title)
	}
	fmt.Fprintf(&b, "\n\n%s", f.Description)
	if f.Suggestion != "" {
		fmt.Fprintf(&b, "\n\n**Suggestion:** %s", f.Suggestion)
	}
	return b.String()
}
