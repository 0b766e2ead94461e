package budget

import "strings"

// Chunk splits content whose token estimate exceeds maxTokens into
// sequential line-bounded chunks, each under the budget. Chunk order is
// significant: the aggregator stitches same-file chunks back together by
// index. A single line that alone exceeds the budget is split by raw
// character count as a last resort.
func Chunk(content string, maxTokens int) []string {
	if maxTokens <= 0 || EstimateTokens(content) <= maxTokens {
		return []string{content}
	}

	maxChars := int(float64(maxTokens) / tokensPerChar)

	var (
		chunks  []string
		current strings.Builder
	)

	flush := func() {
		if current.Len() > 0 {
			chunks = append(chunks, strings.TrimRight(current.String(), "\n"))
			current.Reset()
		}
	}

	for _, line := range strings.Split(content, "\n") {
		if len(line) > maxChars {
			flush()
			for _, piece := range splitByChars(line, maxChars) {
				chunks = append(chunks, piece)
			}
			continue
		}

		if current.Len()+len(line)+1 > maxChars {
			flush()
		}
		current.WriteString(line)
		current.WriteByte('\n')
	}
	flush()

	return chunks
}

func splitByChars(s string, size int) []string {
	var pieces []string
	for len(s) > size {
		pieces = append(pieces, s[:size])
		s = s[size:]
	}
	if s != "" {
		pieces = append(pieces, s)
	}
	return pieces
}
