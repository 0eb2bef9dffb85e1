package ports

import (
	"context"

	"github.com/layer-3/credex/core"
)

// Notifier delivers outcome notifications to the initiating role
type Notifier interface {
	Notify(ctx context.Context, n core.Notification) error
}

// PendingSink receives pending-request snapshots from a poller
type PendingSink interface {
	PublishPending(ctx context.Context, wallet string, requests []core.CredentialRequest) error
}
