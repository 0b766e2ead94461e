package hostauth

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/go-github/v73/github"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
)

const (
	// expiryMargin is subtracted from the real token expiry so a token
	// handed to a long-running job does not lapse mid-request.
	expiryMargin = 60 * time.Second

	exchangeTimeout = 15 * time.Second
)

// Token is an installation access token together with its real expiry.
type Token struct {
	Value     string
	ExpiresAt time.Time
}

// Exchanger trades the app assertion for an installation token.
type Exchanger interface {
	Exchange(ctx context.Context, installationID int64) (Token, error)
}

type githubExchanger struct {
	signer  *AppSigner
	baseURL string
}

// NewGitHubExchanger exchanges assertions against the GitHub API. baseURL
// is empty for github.com or the API root of an enterprise host.
func NewGitHubExchanger(signer *AppSigner, baseURL string) Exchanger {
	return &githubExchanger{signer: signer, baseURL: baseURL}
}

func (e *githubExchanger) Exchange(ctx context.Context, installationID int64) (Token, error) {
	assertion, err := e.signer.Mint(time.Now())
	if err != nil {
		return Token{}, err
	}

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: assertion})
	client := github.NewClient(oauth2.NewClient(ctx, ts))
	if e.baseURL != "" {
		client, err = client.WithEnterpriseURLs(e.baseURL, e.baseURL)
		if err != nil {
			return Token{}, fmt.Errorf("invalid host base URL %s: %w", e.baseURL, err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, exchangeTimeout)
	defer cancel()

	tok, resp, err := client.Apps.CreateInstallationToken(ctx, installationID, nil)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return Token{}, fmt.Errorf("installation %d not found, app may have been uninstalled: %w", installationID, err)
		}
		return Token{}, fmt.Errorf("failed to create installation token for %d: %w", installationID, err)
	}

	return Token{Value: tok.GetToken(), ExpiresAt: tok.GetExpiresAt().Time}, nil
}

// TokenCache hands out installation tokens, minting through the Exchanger
// only when the cached token is missing or inside the expiry margin. All
// access is serialized on a single mutex, so concurrent jobs for the same
// installation trigger exactly one exchange.
type TokenCache struct {
	mu        sync.Mutex
	exchanger Exchanger
	entries   map[int64]Token
	logger    zerolog.Logger

	now func() time.Time
}

func NewTokenCache(exchanger Exchanger, logger zerolog.Logger) *TokenCache {
	return &TokenCache{
		exchanger: exchanger,
		entries:   make(map[int64]Token),
		logger:    logger.With().Str("component", "token_cache").Logger(),
		now:       time.Now,
	}
}

// GetToken returns a token valid for at least the expiry margin.
func (c *TokenCache) GetToken(ctx context.Context, installationID int64) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if tok, ok := c.entries[installationID]; ok {
		if c.now().Before(tok.ExpiresAt.Add(-expiryMargin)) {
			return tok.Value, nil
		}
	}

	tok, err := c.exchanger.Exchange(ctx, installationID)
	if err != nil {
		return "", err
	}
	c.entries[installationID] = tok
	c.logger.Debug().
		Int64("installation_id", installationID).
		Time("expires_at", tok.ExpiresAt).
		Msg("Minted installation token")
	return tok.Value, nil
}

// Invalidate drops the cached token for an installation, forcing a fresh
// exchange on the next request. Used after a 401 from the host.
func (c *TokenCache) Invalidate(installationID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, installationID)
}
