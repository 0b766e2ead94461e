package diff

import (
	"regexp"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/zricethezav/gitleaks/v8/detect"
)

// fallbackPatterns are the heuristics applied when the gitleaks detector is
// unavailable. They cover the common credential shapes seen in diffs:
// generic API keys, bearer tokens, password assignments, AWS access keys,
// and PEM private key blocks.
var fallbackPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)api[_-]?key\s*[:=]\s*['"][A-Za-z0-9_\-]{16,}['"]`),
	regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9_\-.~+/]{20,}`),
	regexp.MustCompile(`(?i)password\s*[:=]\s*['"][^'"]{8,}['"]`),
	regexp.MustCompile(`(?i)secret\s*[:=]\s*['"][A-Za-z0-9_\-]{16,}['"]`),
	regexp.MustCompile(`AKIA[0-9A-Z]{16}`),
	regexp.MustCompile(`-----BEGIN (?:RSA |EC |OPENSSH |PGP )?PRIVATE KEY-----`),
}

// SecretScanner flags cleaned diff content that looks like it contains a
// credential. Matches are advisory: the pipeline continues, but the file is
// treated as elevated risk downstream.
type SecretScanner struct {
	once     sync.Once
	detector *detect.Detector
}

// NewSecretScanner returns a scanner backed by the gitleaks default ruleset.
// Detector construction is deferred until the first scan since loading the
// ruleset is not free.
func NewSecretScanner() *SecretScanner {
	return &SecretScanner{}
}

func (s *SecretScanner) init() {
	d, err := detect.NewDetectorDefaultConfig()
	if err != nil {
		log.Warn().Err(err).Msg("gitleaks detector unavailable, using fallback patterns only")
		return
	}
	s.detector = d
}

// Scan reports whether content matches any secret heuristic.
func (s *SecretScanner) Scan(content string) bool {
	s.once.Do(s.init)

	if s.detector != nil {
		if findings := s.detector.DetectString(content); len(findings) > 0 {
			return true
		}
	}

	for _, re := range fallbackPatterns {
		if re.MatchString(content) {
			return true
		}
	}
	return false
}
