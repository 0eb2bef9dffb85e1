package service

import (
	"context"
	"crypto/subtle"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/layer-3/credex/core"
	"github.com/layer-3/credex/ports"
)

// AuthService is a development stand-in for the identity service login
// endpoint. It trades a registered principal's API key for a signed token.
type AuthService struct {
	tokenizer  ports.Tokenizer
	principals map[principalKey]core.Principal

	tokenTTL time.Duration
	now      func() time.Time
}

type principalKey struct {
	role core.Role
	did  string
}

// NewAuthService creates a new authentication service
func NewAuthService(tokenizer ports.Tokenizer, principals []core.Principal) *AuthService {
	s := &AuthService{
		tokenizer:  tokenizer,
		principals: make(map[principalKey]core.Principal, len(principals)),
		tokenTTL:   15 * time.Minute,
		now:        time.Now,
	}
	for _, p := range principals {
		s.principals[principalKey{role: p.Role, did: p.DID}] = p
	}
	return s
}

// TokenTTL is the lifetime of minted tokens
func (s *AuthService) TokenTTL() time.Duration {
	return s.tokenTTL
}

// Login authenticates a principal and returns a bearer token scoped to role
func (s *AuthService) Login(ctx context.Context, role core.Role, did, apiKey string) (string, error) {
	if !role.CanLogin() {
		return "", fmt.Errorf("role %q cannot log in: %w", role, core.ErrAuth)
	}

	p, ok := s.principals[principalKey{role: role, did: did}]
	if !ok || subtle.ConstantTimeCompare([]byte(p.APIKey), []byte(apiKey)) != 1 {
		return "", fmt.Errorf("invalid credentials for %s %s: %w", role, did, core.ErrAuth)
	}

	now := s.now()
	session := &core.TokenSession{
		ID:        uuid.New().String(),
		DID:       did,
		Role:      role,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.tokenTTL),
	}

	token, err := s.tokenizer.SessionToToken(session)
	if err != nil {
		return "", fmt.Errorf("failed to create token: %w", err)
	}

	logger.Debugf("issued %s token %s to %s", role, session.ID, did)
	return token, nil
}

// Introspect validates a token minted for role
func (s *AuthService) Introspect(ctx context.Context, token string, role core.Role) (*core.TokenSession, error) {
	session, err := s.tokenizer.TokenToSession(token, role)
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	if s.now().After(session.ExpiresAt) {
		return nil, fmt.Errorf("token %s expired: %w", session.ID, core.ErrAuth)
	}

	return session, nil
}
