package service

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"testing"
	"time"

	"github.com/layer-3/credex/adapters/tokenizer"
	"github.com/layer-3/credex/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAuthService(t *testing.T) *AuthService {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	return NewAuthService(tokenizer.NewJWTTokenizer(key), []core.Principal{
		{DID: "did:issuer:1", Role: core.RoleIssuer, APIKey: "issuer-key"},
		{DID: "did:verifier:1", Role: core.RoleVerifier, APIKey: "verifier-key"},
	})
}

func TestAuthServiceLogin(t *testing.T) {
	ctx := context.Background()
	s := newTestAuthService(t)

	token, err := s.Login(ctx, core.RoleIssuer, "did:issuer:1", "issuer-key")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	session, err := s.Introspect(ctx, token, core.RoleIssuer)
	require.NoError(t, err)
	assert.Equal(t, "did:issuer:1", session.DID)
	assert.Equal(t, core.RoleIssuer, session.Role)
	assert.WithinDuration(t, session.IssuedAt.Add(s.TokenTTL()), session.ExpiresAt, time.Second)

	// an issuer token is no good for the verifier audience
	_, err = s.Introspect(ctx, token, core.RoleVerifier)
	require.ErrorIs(t, err, core.ErrAuth)
}

func TestAuthServiceLoginRejects(t *testing.T) {
	ctx := context.Background()
	s := newTestAuthService(t)

	tests := []struct {
		name   string
		role   core.Role
		did    string
		apiKey string
	}{
		{"wrong key", core.RoleIssuer, "did:issuer:1", "nope"},
		{"unknown did", core.RoleIssuer, "did:issuer:2", "issuer-key"},
		{"role mismatch", core.RoleVerifier, "did:issuer:1", "issuer-key"},
		{"holder cannot log in", core.RoleHolder, "did:issuer:1", "issuer-key"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Login(ctx, tt.role, tt.did, tt.apiKey)
			require.ErrorIs(t, err, core.ErrAuth)
		})
	}
}

func TestAuthServiceIntrospectExpired(t *testing.T) {
	ctx := context.Background()
	s := newTestAuthService(t)

	issued := time.Now().Add(-time.Hour)
	s.now = func() time.Time { return issued }

	token, err := s.Login(ctx, core.RoleVerifier, "did:verifier:1", "verifier-key")
	require.NoError(t, err)

	s.now = time.Now
	_, err = s.Introspect(ctx, token, core.RoleVerifier)
	require.ErrorIs(t, err, core.ErrAuth)
}
