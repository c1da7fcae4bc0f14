// ABOUTME: TokenManager caches the bearer token for the remote finance API
// ABOUTME: Tokens carry no expiry; callers invalidate after a 401 from the data endpoint

package remote

import (
	"context"
	"log/slog"
	"sync"
)

// Credential is the state a sync job owns: the login pair plus the current
// bearer token, which is empty until the first successful authentication.
type Credential struct {
	Username string
	Password string
	Token    string
}

// Authenticator exchanges a username and password for a bearer token.
type Authenticator interface {
	Authenticate(ctx context.Context, username, password string) (string, error)
}

// TokenManager hands out the cached token and mints a new one when empty.
type TokenManager struct {
	mu     sync.Mutex
	cred   *Credential
	auth   Authenticator
	logger *slog.Logger
}

// NewTokenManager creates a manager that mutates cred in place.
func NewTokenManager(cred *Credential, auth Authenticator, logger *slog.Logger) *TokenManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &TokenManager{
		cred:   cred,
		auth:   auth,
		logger: logger.With("component", "token"),
	}
}

// Acquire returns the cached token, authenticating first if there is none.
func (m *TokenManager) Acquire(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cred.Token != "" {
		return m.cred.Token, nil
	}

	m.logger.Debug("requesting new token", "username", m.cred.Username)
	token, err := m.auth.Authenticate(ctx, m.cred.Username, m.cred.Password)
	if err != nil {
		return "", err
	}

	m.cred.Token = token
	m.logger.Info("token acquired")
	return token, nil
}

// Invalidate drops the cached token. Safe to call when none is cached.
func (m *TokenManager) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cred.Token != "" {
		m.logger.Debug("token invalidated")
	}
	m.cred.Token = ""
}
