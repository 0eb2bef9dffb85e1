package service

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/layer-3/credex/core"
	"github.com/layer-3/credex/ports"
)

// Filter narrows a ledger listing. Zero values match everything.
type Filter struct {
	Wallet string
	Status core.Status
}

func (f Filter) match(r core.CredentialRequest) bool {
	if f.Wallet != "" && !strings.EqualFold(f.Wallet, r.SubjectWallet) {
		return false
	}
	if f.Status != "" && f.Status != r.Status {
		return false
	}
	return true
}

// Ledger is the shared record of credential requests. It only ever appends
// requests and moves their status out of pending.
type Ledger struct {
	store ports.LedgerStore
	now   func() time.Time
}

// NewLedger creates a ledger over store
func NewLedger(store ports.LedgerStore) *Ledger {
	return &Ledger{
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Append stores a new pending request and returns it with ID and request
// date filled in. IDs are always assigned by the ledger.
func (l *Ledger) Append(ctx context.Context, req core.CredentialRequest) (core.CredentialRequest, error) {
	if req.ID != 0 {
		return core.CredentialRequest{}, fmt.Errorf("request id is assigned by the ledger, got %d: %w", req.ID, core.ErrValidation)
	}
	if err := req.Validate(); err != nil {
		return core.CredentialRequest{}, err
	}

	ct, err := core.ParseCredentialType(string(req.CredentialType))
	if err != nil {
		return core.CredentialRequest{}, err
	}
	req.CredentialType = ct
	req.SubjectWallet = strings.TrimSpace(req.SubjectWallet)
	req.Status = core.StatusPending

	now := l.now()
	if req.RequestDate.IsZero() {
		req.RequestDate = now
	}

	var stored core.CredentialRequest
	err = l.store.Mutate(ctx, func(requests []core.CredentialRequest) ([]core.CredentialRequest, error) {
		// the store may retry fn, so work on a fresh copy each time
		candidate := req

		var lastID int64
		for _, existing := range requests {
			if existing.SameTuple(candidate) {
				return nil, fmt.Errorf("request for %s %q at %s already exists: %w",
					candidate.SubjectWallet, candidate.CredentialType, candidate.RequestDate.Format(time.RFC3339Nano), core.ErrValidation)
			}
			if existing.ID > lastID {
				lastID = existing.ID
			}
		}

		candidate.ID = now.UnixMilli()
		if candidate.ID <= lastID {
			if lastID == math.MaxInt64 {
				return nil, fmt.Errorf("no request id left after %d: %w", lastID, core.ErrStore)
			}
			candidate.ID = lastID + 1
		}

		stored = candidate
		return append(requests, candidate), nil
	})
	if err != nil {
		return core.CredentialRequest{}, err
	}

	return stored, nil
}

// ListPending returns the pending requests, oldest first, optionally only
// those of wallet.
func (l *Ledger) ListPending(ctx context.Context, wallet string) ([]core.CredentialRequest, error) {
	return l.List(ctx, Filter{Wallet: wallet, Status: core.StatusPending})
}

// List returns every request matching filter in insertion order
func (l *Ledger) List(ctx context.Context, filter Filter) ([]core.CredentialRequest, error) {
	requests, err := l.store.Load(ctx)
	if err != nil {
		return nil, err
	}

	matched := make([]core.CredentialRequest, 0, len(requests))
	for _, r := range requests {
		if filter.match(r) {
			matched = append(matched, r)
		}
	}
	return matched, nil
}

// Get returns the request with id
func (l *Ledger) Get(ctx context.Context, id int64) (core.CredentialRequest, error) {
	requests, err := l.store.Load(ctx)
	if err != nil {
		return core.CredentialRequest{}, err
	}

	for _, r := range requests {
		if r.ID == id {
			return r, nil
		}
	}
	return core.CredentialRequest{}, fmt.Errorf("request %d: %w", id, core.ErrNotFound)
}

// SetStatus moves a pending request to accepted or rejected. It is the only
// status mutation; of two concurrent calls on one request exactly one wins.
func (l *Ledger) SetStatus(ctx context.Context, id int64, status core.Status) (core.CredentialRequest, error) {
	if !status.IsTerminal() {
		return core.CredentialRequest{}, fmt.Errorf("status %q is not a terminal status: %w", status, core.ErrValidation)
	}

	var updated core.CredentialRequest
	err := l.store.Mutate(ctx, func(requests []core.CredentialRequest) ([]core.CredentialRequest, error) {
		for i := range requests {
			if requests[i].ID != id {
				continue
			}
			if !requests[i].Status.CanTransition(status) {
				return nil, fmt.Errorf("request %d is %s, cannot become %s: %w",
					id, requests[i].Status, status, core.ErrInvalidTransition)
			}
			requests[i].Status = status
			updated = requests[i]
			return requests, nil
		}
		return nil, fmt.Errorf("request %d: %w", id, core.ErrNotFound)
	})
	if err != nil {
		return core.CredentialRequest{}, err
	}

	return updated, nil
}
