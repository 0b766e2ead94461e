// Package budget estimates token cost for diff content, ranks files by a
// risk heuristic, and splits oversized files into sequential chunks so every
// LLM request stays under the configured token budget.
package budget

import "math"

// tokensPerChar is the conservative flat ratio used for all estimates. A
// model-specific tokenizer would be more accurate but would tie the estimate
// to one vendor; the ratio only has to be safe, not exact.
const tokensPerChar = 0.25

// EstimateTokens returns the estimated token cost of s.
func EstimateTokens(s string) int {
	return int(math.Ceil(float64(len(s)) * tokensPerChar))
}
