// Package auth issues and resolves bearer tokens for the catalog API.
//
// It implements the password and refresh_token grants of an OAuth2 token
// endpoint for a single registered client, with an in-memory token store
// that a background sweeper keeps free of expired entries.
package auth

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/fairyhunter13/product-catalog-service/internal/access"
	"github.com/fairyhunter13/product-catalog-service/internal/config"
	"github.com/fairyhunter13/product-catalog-service/internal/obs"
)

// Scope is granted to every token.
const Scope = "read write trust"

// Grant types registered for the client.
const (
	GrantPassword          = "password"
	GrantRefreshToken      = "refresh_token"
	GrantAuthorizationCode = "authorization_code"
	GrantImplicit          = "implicit"
)

// Error is an OAuth2 error response.
type Error struct {
	Code        string `json:"error"`
	Description string `json:"error_description"`
	Status      int    `json:"-"`
}

func (e *Error) Error() string { return e.Code + ": " + e.Description }

func oauthError(status int, code, desc string) *Error {
	return &Error{Code: code, Description: desc, Status: status}
}

// ErrInvalidToken is returned for unknown or expired access tokens.
var ErrInvalidToken = oauthError(http.StatusUnauthorized, "invalid_token", "invalid or expired access token")

// Token is a successful token response.
type Token struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresIn    int    `json:"expires_in"`
	Scope        string `json:"scope"`
}

type user struct {
	hash         []byte
	capabilities []access.Capability
}

type accessEntry struct {
	principal *access.Principal
	expires   time.Time
	refresh   string
}

type refreshEntry struct {
	principal *access.Principal
	expires   time.Time
	access    string
}

// Server is the token provider.
type Server struct {
	clientID     string
	clientSecret []byte
	accessTTL    time.Duration
	refreshTTL   time.Duration
	interval     time.Duration
	users        map[string]user
	dummy        []byte
	now          func() time.Time

	mu      sync.Mutex
	access  map[string]accessEntry
	refresh map[string]refreshEntry

	cancel context.CancelFunc
	done   chan struct{}
}

// NewServer hashes the configured client secret and user passwords.
func NewServer(cfg config.Config) (*Server, error) {
	cost := cfg.BcryptCost
	if cost < bcrypt.MinCost {
		cost = bcrypt.DefaultCost
	}
	secret, err := bcrypt.GenerateFromPassword([]byte(cfg.OAuthClientSecret), cost)
	if err != nil {
		return nil, fmt.Errorf("hash client secret: %w", err)
	}
	dummy, err := bcrypt.GenerateFromPassword([]byte(uuid.NewString()), cost)
	if err != nil {
		return nil, fmt.Errorf("hash placeholder: %w", err)
	}
	s := &Server{
		clientID:     cfg.OAuthClientID,
		clientSecret: secret,
		accessTTL:    cfg.AccessTokenTTL,
		refreshTTL:   cfg.RefreshTokenTTL,
		interval:     cfg.TokenSweepInterval,
		users:        make(map[string]user, len(cfg.Users)),
		dummy:        dummy,
		now:          time.Now,
		access:       make(map[string]accessEntry),
		refresh:      make(map[string]refreshEntry),
	}
	for _, u := range cfg.Users {
		h, err := bcrypt.GenerateFromPassword([]byte(u.Password), cost)
		if err != nil {
			return nil, fmt.Errorf("hash password of %s: %w", u.Username, err)
		}
		caps := make([]access.Capability, 0, len(u.Capabilities))
		for _, c := range u.Capabilities {
			caps = append(caps, access.Capability(c))
		}
		s.users[u.Username] = user{hash: h, capabilities: caps}
	}
	return s, nil
}

// AuthenticateClient checks the client credentials.
func (s *Server) AuthenticateClient(id, secret string) error {
	idOK := subtle.ConstantTimeCompare([]byte(id), []byte(s.clientID)) == 1
	secretOK := bcrypt.CompareHashAndPassword(s.clientSecret, []byte(secret)) == nil
	if !idOK || !secretOK {
		return oauthError(http.StatusUnauthorized, "invalid_client", "bad client credentials")
	}
	return nil
}

// Exchange runs the grant named by grantType for an authenticated client.
// params holds the remaining form fields of the token request.
func (s *Server) Exchange(grantType string, params map[string]string) (Token, error) {
	switch grantType {
	case GrantPassword:
		return s.passwordGrant(params["username"], params["password"])
	case GrantRefreshToken:
		return s.refreshGrant(params["refresh_token"])
	case "":
		return Token{}, oauthError(http.StatusBadRequest, "invalid_request", "missing grant type")
	case GrantAuthorizationCode, GrantImplicit:
		return Token{}, oauthError(http.StatusBadRequest, "unsupported_grant_type", grantType+" needs an interactive flow")
	default:
		return Token{}, oauthError(http.StatusBadRequest, "unsupported_grant_type", "unsupported grant type: "+grantType)
	}
}

func (s *Server) passwordGrant(username, password string) (Token, error) {
	if username == "" || password == "" {
		return Token{}, oauthError(http.StatusBadRequest, "invalid_request", "username and password are required")
	}
	u, ok := s.users[username]
	hash := u.hash
	if !ok {
		hash = s.dummy
	}
	if err := bcrypt.CompareHashAndPassword(hash, []byte(password)); err != nil || !ok {
		return Token{}, oauthError(http.StatusBadRequest, "invalid_grant", "bad credentials")
	}
	p := &access.Principal{Subject: username, ClientID: s.clientID, Capabilities: u.capabilities}

	now := s.now()
	accessToken, refreshToken := uuid.NewString(), uuid.NewString()
	s.mu.Lock()
	s.access[accessToken] = accessEntry{principal: p, expires: now.Add(s.accessTTL), refresh: refreshToken}
	s.refresh[refreshToken] = refreshEntry{principal: p, expires: now.Add(s.refreshTTL), access: accessToken}
	s.mu.Unlock()

	obs.TokensIssued.Add(1)
	obs.Logger.Info("token_issued", "grant_type", GrantPassword, "subject", username, "client_id", p.ClientID)
	return s.token(accessToken, refreshToken), nil
}

// refreshGrant issues a new access token and keeps the refresh token; the
// access token previously tied to it is revoked.
func (s *Server) refreshGrant(refreshToken string) (Token, error) {
	if refreshToken == "" {
		return Token{}, oauthError(http.StatusBadRequest, "invalid_request", "refresh_token is required")
	}
	now := s.now()
	s.mu.Lock()
	entry, ok := s.refresh[refreshToken]
	if !ok || !now.Before(entry.expires) {
		delete(s.refresh, refreshToken)
		s.mu.Unlock()
		return Token{}, oauthError(http.StatusBadRequest, "invalid_grant", "invalid refresh token")
	}
	delete(s.access, entry.access)
	accessToken := uuid.NewString()
	s.access[accessToken] = accessEntry{principal: entry.principal, expires: now.Add(s.accessTTL), refresh: refreshToken}
	entry.access = accessToken
	s.refresh[refreshToken] = entry
	s.mu.Unlock()

	obs.TokensIssued.Add(1)
	obs.Logger.Info("token_issued", "grant_type", GrantRefreshToken, "subject", entry.principal.Subject, "client_id", entry.principal.ClientID)
	return s.token(accessToken, refreshToken), nil
}

func (s *Server) token(accessToken, refreshToken string) Token {
	return Token{
		AccessToken:  accessToken,
		TokenType:    "bearer",
		RefreshToken: refreshToken,
		ExpiresIn:    int(s.accessTTL / time.Second),
		Scope:        Scope,
	}
}

// Authenticate resolves an access token to its principal.
func (s *Server) Authenticate(accessToken string) (*access.Principal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.access[accessToken]
	if !ok {
		return nil, ErrInvalidToken
	}
	if !s.now().Before(entry.expires) {
		delete(s.access, accessToken)
		return nil, ErrInvalidToken
	}
	return entry.principal, nil
}

// Sweep drops expired tokens and returns how many were removed.
func (s *Server) Sweep() int {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k, e := range s.access {
		if !now.Before(e.expires) {
			delete(s.access, k)
			n++
		}
	}
	for k, e := range s.refresh {
		if !now.Before(e.expires) {
			delete(s.refresh, k)
			n++
		}
	}
	return n
}

// Start runs the sweeper in the background until Stop or ctx is done.
func (s *Server) Start(parent context.Context) {
	if s.interval <= 0 || s.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(parent)
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.sweeper(ctx)
}

// Stop halts the sweeper and waits for it to exit.
func (s *Server) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.cancel = nil
}

func (s *Server) sweeper(ctx context.Context) {
	defer close(s.done)
	t := time.NewTicker(s.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := s.Sweep(); n > 0 {
				obs.Logger.Debug("tokens_swept", "count", n)
			}
		}
	}
}
