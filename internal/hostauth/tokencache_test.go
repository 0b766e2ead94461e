package hostauth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeExchanger struct {
	mu    sync.Mutex
	calls int
	token Token
	err   error
}

func (f *fakeExchanger) Exchange(_ context.Context, _ int64) (Token, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return Token{}, f.err
	}
	return f.token, nil
}

func (f *fakeExchanger) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newTestCache(ex Exchanger) *TokenCache {
	return NewTokenCache(ex, zerolog.Nop())
}

func TestGetTokenCachesUntilMargin(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	ex := &fakeExchanger{token: Token{Value: "ghs_first", ExpiresAt: base.Add(time.Hour)}}
	cache := newTestCache(ex)
	cache.now = func() time.Time { return base }

	tok, err := cache.GetToken(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, "ghs_first", tok)

	tok, err = cache.GetToken(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, "ghs_first", tok)
	assert.Equal(t, 1, ex.callCount(), "second call within expiry should hit the cache")
}

func TestGetTokenRefreshesInsideMargin(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	ex := &fakeExchanger{token: Token{Value: "ghs_first", ExpiresAt: base.Add(time.Hour)}}
	cache := newTestCache(ex)
	cache.now = func() time.Time { return base }

	_, err := cache.GetToken(context.Background(), 42)
	require.NoError(t, err)

	// 59m30s in: real expiry is 30s away, inside the 60s margin.
	cache.now = func() time.Time { return base.Add(time.Hour - 30*time.Second) }
	ex.token = Token{Value: "ghs_second", ExpiresAt: base.Add(2 * time.Hour)}

	tok, err := cache.GetToken(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, "ghs_second", tok)
	assert.Equal(t, 2, ex.callCount())
}

func TestGetTokenSeparateInstallations(t *testing.T) {
	base := time.Now()
	ex := &fakeExchanger{token: Token{Value: "ghs_tok", ExpiresAt: base.Add(time.Hour)}}
	cache := newTestCache(ex)

	_, err := cache.GetToken(context.Background(), 1)
	require.NoError(t, err)
	_, err = cache.GetToken(context.Background(), 2)
	require.NoError(t, err)

	assert.Equal(t, 2, ex.callCount(), "each installation mints its own token")
}

func TestGetTokenConcurrentSingleMint(t *testing.T) {
	ex := &fakeExchanger{token: Token{Value: "ghs_tok", ExpiresAt: time.Now().Add(time.Hour)}}
	cache := newTestCache(ex)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tok, err := cache.GetToken(context.Background(), 7)
			assert.NoError(t, err)
			assert.Equal(t, "ghs_tok", tok)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, ex.callCount(), "concurrent callers must not race to mint")
}

func TestGetTokenExchangeError(t *testing.T) {
	ex := &fakeExchanger{err: errors.New("installation not found")}
	cache := newTestCache(ex)

	_, err := cache.GetToken(context.Background(), 42)
	assert.ErrorContains(t, err, "installation not found")
}

func TestInvalidateForcesExchange(t *testing.T) {
	ex := &fakeExchanger{token: Token{Value: "ghs_tok", ExpiresAt: time.Now().Add(time.Hour)}}
	cache := newTestCache(ex)

	_, err := cache.GetToken(context.Background(), 42)
	require.NoError(t, err)

	cache.Invalidate(42)

	_, err = cache.GetToken(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, 2, ex.callCount())
}

func TestAppSignerMint(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	pemBytes := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})

	signer, err := NewAppSigner(12345, pemBytes)
	require.NoError(t, err)

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	assertion, err := signer.Mint(now)
	require.NoError(t, err)

	parsed, err := jwt.ParseWithClaims(assertion, &jwt.RegisteredClaims{}, func(tok *jwt.Token) (any, error) {
		return &key.PublicKey, nil
	}, jwt.WithValidMethods([]string{"RS256"}), jwt.WithTimeFunc(func() time.Time { return now }))
	require.NoError(t, err)

	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	require.True(t, ok)
	assert.Equal(t, strconv.FormatInt(12345, 10), claims.Issuer)
	assert.Equal(t, now.Add(-30*time.Second).Unix(), claims.IssuedAt.Unix())
	assert.Equal(t, now.Add(10*time.Minute).Unix(), claims.ExpiresAt.Unix())
}

func TestNewAppSignerBadKey(t *testing.T) {
	_, err := NewAppSigner(1, []byte("not a pem key"))
	assert.Error(t, err)
}
