package ports

import (
	"context"

	"github.com/layer-3/credex/core"
)

// TokenRequest describes one login against the remote identity service
type TokenRequest struct {
	PrincipalDID string
	APIKey       string
	Endpoint     string
	Role         core.Role
}

// TokenFetcher trades an API key for a short-lived bearer token.
// Every failure is reported as an error wrapping core.ErrAuth.
type TokenFetcher interface {
	FetchToken(ctx context.Context, req TokenRequest) (string, error)
}
