package tokenizer

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/layer-3/credex/core"
	"github.com/layer-3/credex/ports"
)

// AudiencePrefix scopes bearer tokens to a role, e.g. "credex:issuer"
const AudiencePrefix = "credex:"

// JWTTokenizer implements the Tokenizer interface using ES256 JWTs
type JWTTokenizer struct {
	signKey *ecdsa.PrivateKey
}

// NewJWTTokenizer creates a new JWT tokenizer
func NewJWTTokenizer(signKey *ecdsa.PrivateKey) ports.Tokenizer {
	return &JWTTokenizer{signKey: signKey}
}

// SessionToToken signs a token session
func (j *JWTTokenizer) SessionToToken(session *core.TokenSession) (string, error) {
	claims := BearerClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   session.DID,
			ID:        session.ID,
			ExpiresAt: jwt.NewNumericDate(session.ExpiresAt),
			IssuedAt:  jwt.NewNumericDate(session.IssuedAt),
			Audience:  jwt.ClaimStrings{AudiencePrefix + string(session.Role)},
		},
		Role: string(session.Role),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)

	signedToken, err := token.SignedString(j.signKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return signedToken, nil
}

// TokenToSession verifies a token issued for role and returns its session
func (j *JWTTokenizer) TokenToSession(tokenStr string, role core.Role) (*core.TokenSession, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &BearerClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodECDSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return &j.signKey.PublicKey, nil
	}, jwt.WithAudience(AudiencePrefix+string(role)))
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %v: %w", err, core.ErrAuth)
	}

	if !token.Valid {
		return nil, fmt.Errorf("invalid token: %w", core.ErrAuth)
	}

	claims, ok := token.Claims.(*BearerClaims)
	if !ok {
		return nil, fmt.Errorf("invalid claims type: %w", core.ErrAuth)
	}

	return &core.TokenSession{
		ID:        claims.ID,
		DID:       claims.Subject,
		Role:      core.Role(claims.Role),
		IssuedAt:  claims.IssuedAt.Time,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}
