package auth

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/fairyhunter13/product-catalog-service/internal/access"
	"github.com/fairyhunter13/product-catalog-service/internal/config"
	"github.com/fairyhunter13/product-catalog-service/internal/obs"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func testConfig() config.Config {
	return config.Config{
		OAuthClientID:     "bravo_client",
		OAuthClientSecret: "bravo_secret",
		AccessTokenTTL:    2 * time.Minute,
		RefreshTokenTTL:   10 * time.Minute,
		BcryptCost:        bcrypt.MinCost,
		Users: []config.User{
			{Username: "manager", Password: "pw", Capabilities: []string{"ROLE_PRODUCT_MANAGERS"}},
		},
	}
}

func newTestServer(t *testing.T) (*Server, *clock) {
	t.Helper()
	s, err := NewServer(testConfig())
	require.NoError(t, err)
	c := &clock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	s.now = c.now
	return s, c
}

func oauthCode(t *testing.T, err error) (string, int) {
	t.Helper()
	var oe *Error
	require.True(t, errors.As(err, &oe), "expected *Error, got %v", err)
	return oe.Code, oe.Status
}

func TestAuthenticateClient(t *testing.T) {
	s, _ := newTestServer(t)
	assert.NoError(t, s.AuthenticateClient("bravo_client", "bravo_secret"))

	code, st := oauthCode(t, s.AuthenticateClient("bravo_client", "wrong"))
	assert.Equal(t, "invalid_client", code)
	assert.Equal(t, http.StatusUnauthorized, st)
	code, _ = oauthCode(t, s.AuthenticateClient("other", "bravo_secret"))
	assert.Equal(t, "invalid_client", code)
}

func TestPasswordGrant(t *testing.T) {
	s, _ := newTestServer(t)
	tok, err := s.Exchange(GrantPassword, map[string]string{"username": "manager", "password": "pw"})
	require.NoError(t, err)
	assert.Equal(t, "bearer", tok.TokenType)
	assert.Equal(t, 120, tok.ExpiresIn)
	assert.Equal(t, Scope, tok.Scope)
	assert.NotEmpty(t, tok.RefreshToken)

	p, err := s.Authenticate(tok.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "manager", p.Subject)
	assert.True(t, p.Has(access.ProductManager))
	assert.False(t, p.Has(access.ProductPricing))
}

func TestTokenIssuedLogsClient(t *testing.T) {
	var buf bytes.Buffer
	prev := obs.Logger
	obs.Logger = slog.New(slog.NewJSONHandler(&buf, nil))
	t.Cleanup(func() { obs.Logger = prev })

	s, _ := newTestServer(t)
	tok, err := s.Exchange(GrantPassword, map[string]string{"username": "manager", "password": "pw"})
	require.NoError(t, err)
	p, err := s.Authenticate(tok.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "bravo_client", p.ClientID)

	assert.Contains(t, buf.String(), `"msg":"token_issued"`)
	assert.Contains(t, buf.String(), `"client_id":"bravo_client"`)
}

func TestPasswordGrantRejectsBadCredentials(t *testing.T) {
	s, _ := newTestServer(t)
	for _, params := range []map[string]string{
		{"username": "manager", "password": "nope"},
		{"username": "ghost", "password": "pw"},
	} {
		code, st := oauthCode(t, func() error { _, err := s.Exchange(GrantPassword, params); return err }())
		assert.Equal(t, "invalid_grant", code)
		assert.Equal(t, http.StatusBadRequest, st)
	}
	code, _ := oauthCode(t, func() error { _, err := s.Exchange(GrantPassword, map[string]string{}); return err }())
	assert.Equal(t, "invalid_request", code)
}

func TestUnsupportedGrants(t *testing.T) {
	s, _ := newTestServer(t)
	for _, g := range []string{GrantAuthorizationCode, GrantImplicit, "client_credentials"} {
		_, err := s.Exchange(g, nil)
		code, _ := oauthCode(t, err)
		assert.Equal(t, "unsupported_grant_type", code, g)
	}
	_, err := s.Exchange("", nil)
	code, _ := oauthCode(t, err)
	assert.Equal(t, "invalid_request", code)
}

func TestAccessTokenExpires(t *testing.T) {
	s, c := newTestServer(t)
	tok, err := s.Exchange(GrantPassword, map[string]string{"username": "manager", "password": "pw"})
	require.NoError(t, err)

	c.advance(119 * time.Second)
	_, err = s.Authenticate(tok.AccessToken)
	require.NoError(t, err)

	c.advance(time.Second)
	_, err = s.Authenticate(tok.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestRefreshGrant(t *testing.T) {
	s, c := newTestServer(t)
	tok, err := s.Exchange(GrantPassword, map[string]string{"username": "manager", "password": "pw"})
	require.NoError(t, err)

	c.advance(3 * time.Minute)
	fresh, err := s.Exchange(GrantRefreshToken, map[string]string{"refresh_token": tok.RefreshToken})
	require.NoError(t, err)
	assert.Equal(t, tok.RefreshToken, fresh.RefreshToken)
	assert.NotEqual(t, tok.AccessToken, fresh.AccessToken)

	p, err := s.Authenticate(fresh.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "manager", p.Subject)
	_, err = s.Authenticate(tok.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)

	c.advance(8 * time.Minute)
	_, err = s.Exchange(GrantRefreshToken, map[string]string{"refresh_token": tok.RefreshToken})
	code, _ := oauthCode(t, err)
	assert.Equal(t, "invalid_grant", code)
}

func TestSweep(t *testing.T) {
	s, c := newTestServer(t)
	_, err := s.Exchange(GrantPassword, map[string]string{"username": "manager", "password": "pw"})
	require.NoError(t, err)

	assert.Zero(t, s.Sweep())
	c.advance(3 * time.Minute)
	assert.Equal(t, 1, s.Sweep())
	c.advance(10 * time.Minute)
	assert.Equal(t, 1, s.Sweep())
}

func TestSweeperStartStop(t *testing.T) {
	cfg := testConfig()
	cfg.TokenSweepInterval = 5 * time.Millisecond
	s, err := NewServer(cfg)
	require.NoError(t, err)
	c := &clock{t: time.Now()}
	s.now = c.now

	_, err = s.Exchange(GrantPassword, map[string]string{"username": "manager", "password": "pw"})
	require.NoError(t, err)
	c.advance(time.Hour)

	s.Start(context.Background())
	defer s.Stop()
	assert.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return len(s.access) == 0 && len(s.refresh) == 0
	}, time.Second, 5*time.Millisecond)
}
