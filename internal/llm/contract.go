// Package llm enforces the response contract for model output: extract the
// JSON payload from whatever the model wrapped it in, repair it when it is
// almost-JSON, and validate it against the review schema before any field is
// trusted.
package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/diffsentry/pkg/models"
)

// ContractError reports model output that could not be parsed into the
// review schema. Callers retry the call once on this error class; a second
// violation fails the unit, not the job.
type ContractError struct {
	Reason string
	Raw    string
}

func (e *ContractError) Error() string {
	return fmt.Sprintf("model output violates review contract: %s", e.Reason)
}

// ParsedReview is a schema-validated model response. RiskScore is the
// number the model reported; it is informational only and is always
// replaced by the deterministic score before anything is stored or shown.
type ParsedReview struct {
	Summary   string
	RiskScore int
	Findings  []models.ReviewFinding
}

// rawReview mirrors the JSON schema the prompt demands. The category/type
// and description/message aliases absorb the field-name drift different
// models produce.
type rawReview struct {
	Summary   string     `json:"summary"`
	RiskScore int        `json:"risk_score"`
	Issues    []rawIssue `json:"issues"`
}

type rawIssue struct {
	File        string `json:"file"`
	Line        int    `json:"line"`
	Category    string `json:"category"`
	Type        string `json:"type"`
	Severity    string `json:"severity"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Message     string `json:"message"`
	Suggestion  string `json:"suggestion"`
}

// ParseReview validates raw model output against the review schema.
// fallbackFile is attributed to findings the model left without a file.
func ParseReview(raw string, fallbackFile string) (*ParsedReview, error) {
	jsonStr := ExtractJSON(raw)
	if jsonStr == "" {
		return nil, &ContractError{Reason: "no JSON object in response", Raw: truncate(raw, 200)}
	}

	repaired, _, err := Repair(jsonStr)
	if err != nil {
		return nil, &ContractError{Reason: fmt.Sprintf("unrepairable JSON: %v", err), Raw: truncate(jsonStr, 200)}
	}

	var parsed rawReview
	if err := json.Unmarshal([]byte(repaired), &parsed); err != nil {
		return nil, &ContractError{Reason: fmt.Sprintf("schema mismatch: %v", err), Raw: truncate(repaired, 200)}
	}

	if strings.TrimSpace(parsed.Summary) == "" && len(parsed.Issues) == 0 {
		return nil, &ContractError{Reason: "response carries neither summary nor issues", Raw: truncate(repaired, 200)}
	}

	review := &ParsedReview{
		Summary:   strings.TrimSpace(parsed.Summary),
		RiskScore: parsed.RiskScore,
	}

	for _, issue := range parsed.Issues {
		finding, ok := normalizeIssue(issue, fallbackFile)
		if !ok {
			continue
		}
		review.Findings = append(review.Findings, finding)
	}

	return review, nil
}

func normalizeIssue(issue rawIssue, fallbackFile string) (models.ReviewFinding, bool) {
	description := issue.Description
	if description == "" {
		description = issue.Message
	}
	if strings.TrimSpace(description) == "" {
		// A finding with no description is noise, drop it.
		return models.ReviewFinding{}, false
	}

	file := issue.File
	if file == "" {
		file = fallbackFile
	}

	category := issue.Category
	if category == "" {
		category = issue.Type
	}

	return models.ReviewFinding{
		File:        file,
		Line:        issue.Line,
		Category:    normalizeCategory(category),
		Severity:    normalizeSeverity(issue.Severity),
		Title:       strings.TrimSpace(issue.Title),
		Description: strings.TrimSpace(description),
		Suggestion:  strings.TrimSpace(issue.Suggestion),
	}, true
}

func normalizeCategory(s string) models.Category {
	switch models.Category(strings.ToLower(strings.TrimSpace(s))) {
	case models.CategoryBug:
		return models.CategoryBug
	case models.CategorySecurity:
		return models.CategorySecurity
	case models.CategoryPerformance:
		return models.CategoryPerformance
	case models.CategoryBestPractice:
		return models.CategoryBestPractice
	default:
		return models.CategoryQuality
	}
}

func normalizeSeverity(s string) models.Severity {
	switch models.Severity(strings.ToLower(strings.TrimSpace(s))) {
	case models.SeverityCritical:
		return models.SeverityCritical
	case models.SeverityHigh:
		return models.SeverityHigh
	case models.SeverityMedium:
		return models.SeverityMedium
	default:
		return models.SeverityLow
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
