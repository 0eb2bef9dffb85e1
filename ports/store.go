package ports

import (
	"context"

	"github.com/layer-3/credex/core"
)

// LedgerKey is the well-known key the serialized request list lives under
const LedgerKey = "credentialRequests"

// MutateFunc receives the current request list and returns the list to persist.
// Returning an error aborts the write and is passed back to the caller unchanged.
type MutateFunc func(requests []core.CredentialRequest) ([]core.CredentialRequest, error)

// LedgerStore is the shared persistence surface both roles read and write
type LedgerStore interface {
	// Load returns a snapshot of every stored request in insertion order
	Load(ctx context.Context) ([]core.CredentialRequest, error)

	// Mutate performs an atomic read-modify-write of the request list
	Mutate(ctx context.Context, fn MutateFunc) error
}
