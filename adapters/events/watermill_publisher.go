package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/layer-3/credex/core"
	"github.com/layer-3/credex/ports"
)

const (
	// NotificationTopic carries outcome notifications for every role
	NotificationTopic = "credex.notifications"

	// PendingTopic carries pending-request snapshots published by pollers
	PendingTopic = "credex.pending"

	// MetadataRole is set on notification messages so subscribers can filter
	MetadataRole = "role"

	// MetadataWallet is set on pending snapshots
	MetadataWallet = "wallet"
)

// PendingSnapshot is the payload published on PendingTopic
type PendingSnapshot struct {
	Wallet   string                   `json:"wallet"`
	Requests []core.CredentialRequest `json:"requests"`
}

// WatermillPublisher implements Notifier and PendingSink using Watermill
type WatermillPublisher struct {
	publisher         message.Publisher
	notificationTopic string
	pendingTopic      string
}

// NewWatermillPublisher creates a new Watermill publisher
func NewWatermillPublisher(publisher message.Publisher) *WatermillPublisher {
	return &WatermillPublisher{
		publisher:         publisher,
		notificationTopic: NotificationTopic,
		pendingTopic:      PendingTopic,
	}
}

// Notify publishes an outcome notification
func (p *WatermillPublisher) Notify(ctx context.Context, n core.Notification) error {
	if n.ID == "" {
		n.ID = watermill.NewUUID()
	}

	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	msg := message.NewMessage(n.ID, payload)
	msg.Metadata.Set(MetadataRole, string(n.Role))
	msg.SetContext(ctx)

	if err := p.publisher.Publish(p.notificationTopic, msg); err != nil {
		return fmt.Errorf("failed to publish notification: %w", err)
	}

	return nil
}

// PublishPending publishes a pending-request snapshot
func (p *WatermillPublisher) PublishPending(ctx context.Context, wallet string, requests []core.CredentialRequest) error {
	payload, err := json.Marshal(PendingSnapshot{Wallet: wallet, Requests: requests})
	if err != nil {
		return fmt.Errorf("failed to marshal pending snapshot: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set(MetadataWallet, wallet)
	msg.SetContext(ctx)

	if err := p.publisher.Publish(p.pendingTopic, msg); err != nil {
		return fmt.Errorf("failed to publish pending snapshot: %w", err)
	}

	return nil
}

var (
	_ ports.Notifier    = (*WatermillPublisher)(nil)
	_ ports.PendingSink = (*WatermillPublisher)(nil)
)
