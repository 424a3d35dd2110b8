package manager

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/cuemby/sentinel/pkg/superr"
)

// ControlTokenManager issues and validates bearer tokens for the
// control gateway named in §6 (port 9632, external collaborator,
// non-goal as a transport). The core still owns authorization: a
// caller presenting no token, an unknown token, or an expired one gets
// superr.ErrNoAuthToken regardless of which transport eventually
// carries the request.
type ControlTokenManager struct {
	tokens map[string]*ControlToken
	mu     sync.RWMutex
}

// ControlToken is one issued bearer token.
type ControlToken struct {
	Token     string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// NewControlTokenManager returns an empty token manager.
func NewControlTokenManager() *ControlTokenManager {
	return &ControlTokenManager{tokens: make(map[string]*ControlToken)}
}

// Issue generates a new bearer token valid for duration.
func (tm *ControlTokenManager) Issue(duration time.Duration) (*ControlToken, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return nil, fmt.Errorf("generate control token: %w", err)
	}

	ct := &ControlToken{
		Token:     hex.EncodeToString(raw),
		CreatedAt: time.Now(),
		ExpiresAt: time.Now().Add(duration),
	}

	tm.mu.Lock()
	tm.tokens[ct.Token] = ct
	tm.mu.Unlock()

	return ct, nil
}

// Authorize validates token, returning superr.ErrNoAuthToken if it is
// missing, unknown, or expired.
func (tm *ControlTokenManager) Authorize(token string) error {
	if token == "" {
		return superr.ErrNoAuthToken
	}

	tm.mu.RLock()
	ct, exists := tm.tokens[token]
	tm.mu.RUnlock()
	if !exists {
		return superr.ErrNoAuthToken
	}
	if time.Now().After(ct.ExpiresAt) {
		tm.Revoke(token)
		return superr.ErrNoAuthToken
	}
	return nil
}

// Revoke removes a token immediately.
func (tm *ControlTokenManager) Revoke(token string) {
	tm.mu.Lock()
	delete(tm.tokens, token)
	tm.mu.Unlock()
}

// CleanupExpired drops every token past its expiry. The run-loop does
// not call it; an expired token is otherwise only dropped when it is
// presented to Authorize.
func (tm *ControlTokenManager) CleanupExpired() {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	now := time.Now()
	for token, ct := range tm.tokens {
		if now.After(ct.ExpiresAt) {
			delete(tm.tokens, token)
		}
	}
}
