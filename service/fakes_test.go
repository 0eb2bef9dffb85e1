package service

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/layer-3/credex/core"
	"github.com/layer-3/credex/ports"
)

type fakeWidget struct {
	mu       sync.Mutex
	handlers map[ports.WidgetEvent]ports.WidgetHandler
	onCalls  map[ports.WidgetEvent]int
	launched chan struct{}

	launchErr   error
	launchPanic bool

	// fired synchronously from Launch when set
	autoEvent   ports.WidgetEvent
	autoPayload ports.WidgetEventPayload

	destroyed int32
}

func newFakeWidget() *fakeWidget {
	return &fakeWidget{
		handlers: make(map[ports.WidgetEvent]ports.WidgetHandler),
		onCalls:  make(map[ports.WidgetEvent]int),
		launched: make(chan struct{}),
	}
}

func (w *fakeWidget) On(event ports.WidgetEvent, handler ports.WidgetHandler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers[event] = handler
	w.onCalls[event]++
}

func (w *fakeWidget) Launch() error {
	if w.launchPanic {
		panic("widget exploded")
	}
	if w.launchErr != nil {
		return w.launchErr
	}
	close(w.launched)

	if w.autoEvent != "" {
		w.fire(w.autoEvent, w.autoPayload)
	}
	return nil
}

func (w *fakeWidget) Destroy() {
	atomic.AddInt32(&w.destroyed, 1)
}

func (w *fakeWidget) fire(event ports.WidgetEvent, payload ports.WidgetEventPayload) {
	w.mu.Lock()
	handler := w.handlers[event]
	w.mu.Unlock()

	if handler != nil {
		handler(payload)
	}
}

func (w *fakeWidget) destroyCount() int {
	return int(atomic.LoadInt32(&w.destroyed))
}

func (w *fakeWidget) registrations() map[ports.WidgetEvent]int {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := make(map[ports.WidgetEvent]int, len(w.onCalls))
	for k, v := range w.onCalls {
		out[k] = v
	}
	return out
}

type fakeWidgetFactory struct {
	mu        sync.Mutex
	err       error
	configure func(w *fakeWidget)
	widgets   []*fakeWidget
	requests  []core.OperationRequest
	options   []core.WidgetOptions
	partners  []string
}

func (f *fakeWidgetFactory) NewWidget(req core.OperationRequest, partnerID string, opts core.WidgetOptions) (ports.Widget, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return nil, f.err
	}

	w := newFakeWidget()
	if f.configure != nil {
		f.configure(w)
	}
	f.widgets = append(f.widgets, w)
	f.requests = append(f.requests, req)
	f.options = append(f.options, opts)
	f.partners = append(f.partners, partnerID)
	return w, nil
}

func (f *fakeWidgetFactory) built() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.widgets)
}

func (f *fakeWidgetFactory) widget(i int) *fakeWidget {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.widgets[i]
}

type fakeTokens struct {
	mu       sync.Mutex
	token    string
	err      error
	requests []ports.TokenRequest
}

func (f *fakeTokens) FetchToken(ctx context.Context, req ports.TokenRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.requests = append(f.requests, req)
	if f.err != nil {
		return "", f.err
	}
	return f.token, nil
}

func (f *fakeTokens) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

type fakeNotifier struct {
	mu            sync.Mutex
	notifications []core.Notification
}

func (f *fakeNotifier) Notify(ctx context.Context, n core.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notifications = append(f.notifications, n)
	return nil
}

func (f *fakeNotifier) forRole(role core.Role) []core.Notification {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []core.Notification
	for _, n := range f.notifications {
		if n.Role == role {
			out = append(out, n)
		}
	}
	return out
}

type recordingSink struct {
	mu        sync.Mutex
	snapshots [][]core.CredentialRequest
	wallets   []string
}

func (s *recordingSink) PublishPending(ctx context.Context, wallet string, requests []core.CredentialRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots = append(s.snapshots, requests)
	s.wallets = append(s.wallets, wallet)
	return nil
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.snapshots)
}

func (s *recordingSink) last() []core.CredentialRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.snapshots) == 0 {
		return nil
	}
	return s.snapshots[len(s.snapshots)-1]
}

func employmentRequest() core.CredentialRequest {
	return core.CredentialRequest{
		SubjectName:    "Alice",
		SubjectWallet:  "0xabc",
		CredentialType: core.CredentialEmploymentVerification,
		Details: core.Details{
			Role:       "Engineer",
			Department: "R&D",
			StartDate:  "2023-01-01",
			Salary:     "$80,000 - $100,000",
		},
	}
}
