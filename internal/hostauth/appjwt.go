// Package hostauth exchanges the GitHub App credential for short-lived
// per-installation access tokens and caches them per installation id.
package hostauth

import (
	"crypto/rsa"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// assertionTTL is the validity window of the signed app assertion.
	// GitHub rejects anything over ten minutes.
	assertionTTL = 10 * time.Minute

	// clockDrift backdates iat so a slightly fast local clock does not
	// produce assertions GitHub considers issued in the future.
	clockDrift = 30 * time.Second
)

// AppSigner mints the signed JWT assertion that identifies the GitHub App
// itself. The assertion is exchanged for installation tokens; it is never
// used to call repository APIs directly.
type AppSigner struct {
	appID int64
	key   *rsa.PrivateKey
}

// NewAppSigner parses the app's PEM-encoded RSA private key.
func NewAppSigner(appID int64, pemBytes []byte) (*AppSigner, error) {
	key, err := jwt.ParseRSAPrivateKeyFromPEM(pemBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse app private key: %w", err)
	}
	return &AppSigner{appID: appID, key: key}, nil
}

// NewAppSignerFromFile reads the private key from disk.
func NewAppSignerFromFile(appID int64, path string) (*AppSigner, error) {
	pemBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read app private key from %s: %w", path, err)
	}
	return NewAppSigner(appID, pemBytes)
}

// Mint signs a fresh assertion valid for the fixed window.
func (s *AppSigner) Mint(now time.Time) (string, error) {
	claims := jwt.RegisteredClaims{
		Issuer:    strconv.FormatInt(s.appID, 10),
		IssuedAt:  jwt.NewNumericDate(now.Add(-clockDrift)),
		ExpiresAt: jwt.NewNumericDate(now.Add(assertionTTL)),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign app assertion: %w", err)
	}
	return signed, nil
}
