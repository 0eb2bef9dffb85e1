package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/layer-3/credex/core"
	"github.com/stretchr/testify/require"
)

func newPubSub(t *testing.T) *gochannel.GoChannel {
	t.Helper()
	pubSub := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 16}, watermill.NopLogger{})
	t.Cleanup(func() { _ = pubSub.Close() })
	return pubSub
}

func receive(t *testing.T, messages <-chan *message.Message) *message.Message {
	t.Helper()
	select {
	case msg := <-messages:
		msg.Ack()
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
		return nil
	}
}

func TestNotifyPublishesNotification(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pubSub := newPubSub(t)
	messages, err := pubSub.Subscribe(ctx, NotificationTopic)
	require.NoError(t, err)

	pub := NewWatermillPublisher(pubSub)
	require.NoError(t, pub.Notify(ctx, core.Notification{
		Role:      core.RoleHolder,
		RequestID: 42,
		Outcome:   core.OutcomeSuccess,
		Title:     "Credential Issued Successfully!",
	}))

	msg := receive(t, messages)
	require.Equal(t, string(core.RoleHolder), msg.Metadata.Get(MetadataRole))
	require.NotEmpty(t, msg.UUID)

	var n core.Notification
	require.NoError(t, json.Unmarshal(msg.Payload, &n))
	require.Equal(t, int64(42), n.RequestID)
	require.Equal(t, core.OutcomeSuccess, n.Outcome)
	require.Equal(t, msg.UUID, n.ID)
}

func TestPublishPending(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pubSub := newPubSub(t)
	messages, err := pubSub.Subscribe(ctx, PendingTopic)
	require.NoError(t, err)

	pub := NewWatermillPublisher(pubSub)
	require.NoError(t, pub.PublishPending(ctx, "0xabc", []core.CredentialRequest{{ID: 1, Status: core.StatusPending}}))

	msg := receive(t, messages)
	require.Equal(t, "0xabc", msg.Metadata.Get(MetadataWallet))

	var snapshot PendingSnapshot
	require.NoError(t, json.Unmarshal(msg.Payload, &snapshot))
	require.Len(t, snapshot.Requests, 1)
}
