package service

import (
	"context"
	"sync"
	"time"

	"github.com/layer-3/credex/ports"
)

// DefaultPollInterval is how often a poller re-reads the ledger
const DefaultPollInterval = 5 * time.Second

// Poller periodically publishes the pending requests of one wallet. It never
// mutates the ledger.
type Poller struct {
	ledger   *Ledger
	wallet   string
	interval time.Duration
	sink     ports.PendingSink

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewPoller creates a poller. A non-positive interval means DefaultPollInterval.
func NewPoller(ledger *Ledger, wallet string, interval time.Duration, sink ports.PendingSink) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Poller{
		ledger:   ledger,
		wallet:   wallet,
		interval: interval,
		sink:     sink,
	}
}

// Start polls once right away and then on every tick until Stop is called or
// ctx is done. Starting a running poller is a no-op.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.done != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})

	go p.loop(ctx, p.done)
}

// Stop halts the poller and waits for the loop to exit. Once Stop returns the
// sink receives nothing more.
func (p *Poller) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (p *Poller) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.poll(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

func (p *Poller) poll(ctx context.Context) {
	pending, err := p.ledger.ListPending(ctx, p.wallet)
	if err != nil {
		if ctx.Err() == nil {
			logger.Warnf("failed to poll pending requests for %s: %v", p.wallet, err)
		}
		return
	}

	// drop the result of a poll that raced with Stop
	if ctx.Err() != nil {
		return
	}

	if err := p.sink.PublishPending(ctx, p.wallet, pending); err != nil && ctx.Err() == nil {
		logger.Warnf("failed to publish pending requests for %s: %v", p.wallet, err)
	}
}
