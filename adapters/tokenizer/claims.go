package tokenizer

import "github.com/golang-jwt/jwt/v5"

// BearerClaims combines standard claims with the role the token is scoped to
type BearerClaims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}
