// Package diff reduces raw unified diff text to the reviewable code it
// contains: added lines plus the context around them, per file, with diff
// metadata stripped out.
package diff

import (
	"path/filepath"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/diffsentry/pkg/models"
)

// FileMeta is the per-file metadata the host API reports alongside a diff.
type FileMeta struct {
	Filename  string
	Status    models.FileStatus
	Additions int
	Deletions int
}

// Sanitizer parses raw unified diffs into per-file change sets.
type Sanitizer struct {
	scanner *SecretScanner
}

// NewSanitizer creates a sanitizer with the default secret scanner.
func NewSanitizer() *Sanitizer {
	return &Sanitizer{scanner: NewSecretScanner()}
}

var fileHeaderRe = regexp.MustCompile(`^diff --git a/(.+) b/(.+)$`)

// Sanitize splits a raw diff into per-file sections and reduces each to its
// cleaned content. Files with no reviewable content (pure deletions, binary
// files, empty sections) are dropped. Malformed or empty input yields an
// empty slice; "no changes found" is a valid state, not an error.
func (s *Sanitizer) Sanitize(raw string, meta []FileMeta) []models.FileChange {
	if strings.TrimSpace(raw) == "" {
		return nil
	}

	metaByFile := make(map[string]FileMeta, len(meta))
	for _, m := range meta {
		metaByFile[m.Filename] = m
	}

	sections := splitByFile(raw)
	changes := make([]models.FileChange, 0, len(sections))

	for _, section := range sections {
		change, ok := s.sanitizeFile(section, metaByFile)
		if !ok {
			continue
		}
		changes = append(changes, change)
	}

	return changes
}

// splitByFile cuts a unified diff on "diff --git " boundaries, keeping the
// boundary line with its section.
func splitByFile(raw string) []string {
	parts := strings.Split(raw, "\ndiff --git ")

	sections := make([]string, 0, len(parts))
	for i, part := range parts {
		if i == 0 {
			if !strings.HasPrefix(part, "diff --git ") {
				continue
			}
		} else {
			part = "diff --git " + part
		}
		sections = append(sections, part)
	}
	return sections
}

func (s *Sanitizer) sanitizeFile(section string, metaByFile map[string]FileMeta) (models.FileChange, bool) {
	lines := strings.Split(section, "\n")

	matches := fileHeaderRe.FindStringSubmatch(lines[0])
	if matches == nil {
		return models.FileChange{}, false
	}
	filename := matches[2]

	if isBinaryPath(filename) {
		log.Debug().Str("file", filename).Msg("skipping binary file")
		return models.FileChange{}, false
	}

	var (
		cleaned   strings.Builder
		inHunk    bool
		status    = models.StatusModified
		additions int
		deletions int
	)

	for _, line := range lines[1:] {
		switch {
		case strings.HasPrefix(line, "@@"):
			inHunk = true
			continue
		case !inHunk:
			// File header region: pick up the status markers, drop the rest.
			switch {
			case strings.HasPrefix(line, "new file mode"):
				status = models.StatusAdded
			case strings.HasPrefix(line, "deleted file mode"):
				status = models.StatusRemoved
			case strings.HasPrefix(line, "rename from"):
				status = models.StatusRenamed
			}
			continue
		case strings.HasPrefix(line, "+"):
			cleaned.WriteString(line[1:])
			cleaned.WriteByte('\n')
			additions++
		case strings.HasPrefix(line, "-"):
			deletions++
		case strings.HasPrefix(line, " "):
			cleaned.WriteString(line[1:])
			cleaned.WriteByte('\n')
		case strings.HasPrefix(line, `\`):
			// "\ No newline at end of file"
			continue
		}
	}

	content := strings.TrimRight(cleaned.String(), "\n")
	if strings.TrimSpace(content) == "" || additions == 0 {
		// Nothing reviewable: pure deletion, rename without edits, or an
		// empty section.
		return models.FileChange{}, false
	}

	if isBinaryContent(content) {
		return models.FileChange{}, false
	}

	change := models.FileChange{
		Filename:       filename,
		Language:       DetectLanguage(filename),
		CleanedContent: content,
		Status:         status,
		Additions:      additions,
		Deletions:      deletions,
	}

	if m, ok := metaByFile[filename]; ok {
		if m.Status != "" {
			change.Status = m.Status
		}
		change.Additions = m.Additions
		change.Deletions = m.Deletions
	}

	if s.scanner.Scan(content) {
		log.Warn().Str("file", filename).Msg("possible secret in diff content")
		change.SecretSuspected = true
	}

	return change, true
}

// binaryExtensions lists formats that never carry reviewable text.
var binaryExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".bmp": true,
	".ico": true, ".webp": true, ".svg": true,
	".exe": true, ".dll": true, ".so": true, ".dylib": true, ".a": true,
	".zip": true, ".tar": true, ".gz": true, ".bz2": true, ".xz": true,
	".jar": true, ".war": true, ".class": true,
	".pdf": true, ".doc": true, ".docx": true, ".xls": true, ".xlsx": true,
	".bin": true, ".dat": true, ".o": true,
	".mp3": true, ".mp4": true, ".avi": true, ".mov": true, ".webm": true,
	".ttf": true, ".woff": true, ".woff2": true, ".eot": true,
	".pyc": true, ".pyo": true,
}

func isBinaryPath(filename string) bool {
	return binaryExtensions[strings.ToLower(filepath.Ext(filename))]
}

// isBinaryContent checks a content sample for null bytes and a high ratio of
// non-printable characters.
func isBinaryContent(content string) bool {
	if content == "" {
		return false
	}
	if strings.Contains(content, "\x00") {
		return true
	}

	sampleSize := 512
	if len(content) < sampleSize {
		sampleSize = len(content)
	}

	nonPrintable := 0
	for _, r := range content[:sampleSize] {
		if (r < 32 && r != 9 && r != 10 && r != 13) || r == 127 {
			nonPrintable++
		}
	}
	return float64(nonPrintable)/float64(sampleSize) > 0.3
}
