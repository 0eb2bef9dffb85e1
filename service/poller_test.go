package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPollerPublishesImmediatelyAndOnInterval(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(time.Now().UTC())

	_, err := l.Append(ctx, employmentRequest())
	require.NoError(t, err)

	other := employmentRequest()
	other.SubjectWallet = "0xdef"
	_, err = l.Append(ctx, other)
	require.NoError(t, err)

	sink := &recordingSink{}
	p := NewPoller(l, "0xabc", 10*time.Millisecond, sink)
	p.Start(ctx)
	defer p.Stop()

	require.Eventually(t, func() bool { return sink.count() >= 3 }, time.Second, 5*time.Millisecond)

	last := sink.last()
	require.Len(t, last, 1)
	assert.Equal(t, "0xabc", last[0].SubjectWallet)
}

func TestPollerSeesNewRequests(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(time.Now().UTC())

	sink := &recordingSink{}
	p := NewPoller(l, "", 10*time.Millisecond, sink)
	p.Start(ctx)
	defer p.Stop()

	require.Eventually(t, func() bool { return sink.count() >= 1 }, time.Second, 5*time.Millisecond)
	assert.Empty(t, sink.last())

	_, err := l.Append(ctx, employmentRequest())
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(sink.last()) == 1 }, time.Second, 5*time.Millisecond)
}

func TestPollerStopIsFinal(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(time.Now().UTC())

	sink := &recordingSink{}
	p := NewPoller(l, "0xabc", 5*time.Millisecond, sink)
	p.Start(ctx)
	p.Start(ctx)

	require.Eventually(t, func() bool { return sink.count() >= 2 }, time.Second, time.Millisecond)
	p.Stop()

	stopped := sink.count()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, stopped, sink.count())

	// stopping twice is harmless
	p.Stop()
}

func TestPollerDefaultInterval(t *testing.T) {
	p := NewPoller(newTestLedger(time.Now()), "", 0, &recordingSink{})
	assert.Equal(t, DefaultPollInterval, p.interval)
}
