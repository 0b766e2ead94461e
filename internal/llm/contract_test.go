package llm

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diffsentry/pkg/models"
)

const validResponse = `{
	"summary": "Adds a logging call.",
	"risk_score": 72,
	"issues": [
		{
			"file": "a.js",
			"line": 1,
			"category": "quality",
			"severity": "low",
			"title": "Debug logging",
			"description": "console.log left in production code",
			"suggestion": "Remove or guard the log call"
		}
	]
}`

func TestParseReviewValid(t *testing.T) {
	review, err := ParseReview(validResponse, "a.js")
	require.NoError(t, err)

	assert.Equal(t, "Adds a logging call.", review.Summary)
	assert.Equal(t, 72, review.RiskScore)
	require.Len(t, review.Findings, 1)

	f := review.Findings[0]
	assert.Equal(t, "a.js", f.File)
	assert.Equal(t, 1, f.Line)
	assert.Equal(t, models.CategoryQuality, f.Category)
	assert.Equal(t, models.SeverityLow, f.Severity)
}

func TestParseReviewFencedResponse(t *testing.T) {
	fenced := "Here is the review:\n```json\n" + validResponse + "\n```\nLet me know!"

	review, err := ParseReview(fenced, "a.js")
	require.NoError(t, err)
	assert.Len(t, review.Findings, 1)
}

func TestParseReviewRepairsAlmostJSON(t *testing.T) {
	// Trailing comma: invalid JSON that the repair pass fixes.
	broken := `{"summary": "ok", "risk_score": 10, "issues": [],}`

	review, err := ParseReview(broken, "a.js")
	require.NoError(t, err)
	assert.Equal(t, "ok", review.Summary)
}

func TestParseReviewContractViolations(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"plain prose", "I could not review this file, sorry."},
		{"empty", ""},
		{"empty object", `{}`},
		{"no summary no issues", `{"risk_score": 50}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseReview(tt.raw, "a.js")
			require.Error(t, err)

			var contractErr *ContractError
			assert.True(t, errors.As(err, &contractErr), "want *ContractError, got %T", err)
		})
	}
}

func TestParseReviewFieldAliases(t *testing.T) {
	raw := `{
		"summary": "s",
		"issues": [
			{"file": "b.go", "type": "security", "severity": "high", "message": "hardcoded token"}
		]
	}`

	review, err := ParseReview(raw, "b.go")
	require.NoError(t, err)
	require.Len(t, review.Findings, 1)

	f := review.Findings[0]
	assert.Equal(t, models.CategorySecurity, f.Category)
	assert.Equal(t, models.SeverityHigh, f.Severity)
	assert.Equal(t, "hardcoded token", f.Description)
}

func TestParseReviewNormalizesUnknownEnums(t *testing.T) {
	raw := `{
		"summary": "s",
		"issues": [
			{"file": "c.go", "category": "styley", "severity": "extreme", "description": "d"}
		]
	}`

	review, err := ParseReview(raw, "c.go")
	require.NoError(t, err)
	require.Len(t, review.Findings, 1)

	assert.Equal(t, models.CategoryQuality, review.Findings[0].Category)
	assert.Equal(t, models.SeverityLow, review.Findings[0].Severity)
}

func TestParseReviewDropsDescriptionlessIssues(t *testing.T) {
	raw := `{
		"summary": "s",
		"issues": [
			{"file": "d.go", "severity": "high"},
			{"file": "d.go", "severity": "low", "description": "real issue"}
		]
	}`

	review, err := ParseReview(raw, "d.go")
	require.NoError(t, err)
	require.Len(t, review.Findings, 1)
	assert.Equal(t, "real issue", review.Findings[0].Description)
}

func TestParseReviewFallbackFile(t *testing.T) {
	raw := `{
		"summary": "s",
		"issues": [{"severity": "low", "description": "missing file attribution"}]
	}`

	review, err := ParseReview(raw, "fallback.go")
	require.NoError(t, err)
	require.Len(t, review.Findings, 1)
	assert.Equal(t, "fallback.go", review.Findings[0].File)
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"pure object", `{"a":1}`, `{"a":1}`},
		{"fenced", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"embedded", `the result is {"a":1} as requested`, `{"a":1}`},
		{"nothing", "no json here", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractJSON(tt.raw))
		})
	}
}
