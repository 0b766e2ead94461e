package hostclient

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

var hunkHeaderRe = regexp.MustCompile(`^@@ -\d+(?:,\d+)? \+(\d+)(?:,\d+)? @@`)

// ParseCommentableLines extracts the line numbers on the new side of a
// file's patch, which are the only lines a review comment can anchor to.
func ParseCommentableLines(patch string, logger zerolog.Logger) map[int]struct{} {
	valid := make(map[int]struct{})

	currentLine := -1
	for _, line := range strings.Split(patch, "\n") {
		if strings.HasPrefix(line, "@@") {
			matches := hunkHeaderRe.FindStringSubmatch(line)
			if len(matches) < 2 {
				continue
			}
			start, err := strconv.Atoi(matches[1])
			if err != nil {
				logger.Warn().Str("header", line).Msg("Skipping malformed hunk header")
				currentLine = -1
				continue
			}
			currentLine = start
			continue
		}

		if currentLine == -1 {
			continue
		}

		switch {
		case strings.HasPrefix(line, "+"), strings.HasPrefix(line, " "):
			valid[currentLine] = struct{}{}
			currentLine++
		case strings.HasPrefix(line, "-"):
			// Exists only on the old side, does not advance the new counter.
		}
	}

	return valid
}
