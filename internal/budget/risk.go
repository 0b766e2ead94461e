package budget

import (
	"sort"
	"strings"

	"github.com/diffsentry/pkg/models"
)

// Heuristic inputs for file ranking. These score how much a file deserves
// reviewer attention, not how risky the eventual findings are; the review
// risk score is computed in the scoring package.
var (
	sensitiveNameParts = []string{"env", "config", "secret", "credential", "auth", "password"}
	coreSourceDirs     = []string{"src/", "lib/", "internal/", "pkg/", "app/", "core/"}
	securityKeywords   = []string{"password", "secret", "token", "api_key", "apikey", "private_key", "credential", "decrypt", "eval("}
)

// FileRiskScore ranks a file 0-100 by how likely its change is to matter.
func FileRiskScore(change models.FileChange) int {
	score := 0

	name := strings.ToLower(change.Filename)
	for _, part := range sensitiveNameParts {
		if strings.Contains(name, part) {
			score += 50
			break
		}
	}

	for _, dir := range coreSourceDirs {
		if strings.HasPrefix(name, dir) || strings.Contains(name, "/"+dir) {
			score += 20
			break
		}
	}

	switch size := len(change.CleanedContent); {
	case size > 10000:
		score += 20
	case size > 5000:
		score += 10
	case size > 1000:
		score += 5
	}

	content := strings.ToLower(change.CleanedContent)
	for _, kw := range securityKeywords {
		if strings.Contains(content, kw) {
			score += 15
			break
		}
	}

	if change.SecretSuspected {
		score += 25
	}

	if score > 100 {
		score = 100
	}
	return score
}

// Prioritize returns the files sorted descending by risk score. The sort is
// stable so equal-score files keep their original order, and the result is
// always a permutation of the input.
func Prioritize(changes []models.FileChange) []models.FileChange {
	ranked := make([]models.FileChange, len(changes))
	copy(ranked, changes)

	sort.SliceStable(ranked, func(i, j int) bool {
		return FileRiskScore(ranked[i]) > FileRiskScore(ranked[j])
	})
	return ranked
}
