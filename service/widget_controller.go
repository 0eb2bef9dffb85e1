package service

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/layer-3/credex/core"
	"github.com/layer-3/credex/ports"
)

// SessionState is a state of the widget session state machine
type SessionState string

const (
	StateIdle         SessionState = "idle"
	StateConfiguring  SessionState = "configuring"
	StateLaunched     SessionState = "launched"
	StateCompleted    SessionState = "completed"
	StateClosedByUser SessionState = "closed_by_user"
	StateFailed       SessionState = "failed"
)

// SessionKind tells issuance and verification sessions apart
type SessionKind string

const (
	KindIssue  SessionKind = "issue"
	KindVerify SessionKind = "verify"
)

// SessionOutcome is the single resolution of a widget session
type SessionOutcome struct {
	State        SessionState
	Issued       bool
	Verification *core.VerificationResult
	Err          error
}

// SessionInfo describes the live session
type SessionInfo struct {
	ID        string                `json:"id"`
	Kind      SessionKind           `json:"kind"`
	State     SessionState          `json:"state"`
	PartnerID string                `json:"partnerId"`
	Request   core.OperationRequest `json:"request"`
	Options   core.WidgetOptions    `json:"options"`
	StartedAt time.Time             `json:"startedAt"`
}

// WidgetConfig holds the static part of every widget configuration
type WidgetConfig struct {
	PartnerID            string
	IssuerDID            string
	CredentialID         string
	VerifierDID          string
	Endpoint             string
	Environment          string
	Theme                string
	Locale               string
	RedirectURLForIssuer string
}

// WidgetController owns at most one live widget and turns its events into
// one awaitable outcome.
type WidgetController struct {
	factory ports.WidgetFactory
	cfg     WidgetConfig
	now     func() time.Time

	mu     sync.Mutex
	active *widgetSession
}

// NewWidgetController creates a controller building widgets with factory
func NewWidgetController(factory ports.WidgetFactory, cfg WidgetConfig) *WidgetController {
	if cfg.Theme == "" {
		cfg.Theme = "light"
	}
	if cfg.Locale == "" {
		cfg.Locale = "en"
	}
	return &WidgetController{
		factory: factory,
		cfg:     cfg,
		now:     time.Now,
	}
}

// StartIssue runs an issuance session for req and blocks until it ends
func (c *WidgetController) StartIssue(ctx context.Context, req core.CredentialRequest, token string) (SessionOutcome, error) {
	op := core.OperationRequest{
		Process:           core.ProcessIssue,
		IssuerDID:         c.cfg.IssuerDID,
		IssuerAuth:        token,
		CredentialID:      c.cfg.CredentialID,
		CredentialSubject: core.BuildSubject(req, c.now()),
	}
	return c.run(ctx, KindIssue, op)
}

// StartVerify runs a verification session for programID and blocks until it ends
func (c *WidgetController) StartVerify(ctx context.Context, programID, token string) (SessionOutcome, error) {
	op := core.OperationRequest{
		Process:      core.ProcessVerify,
		VerifierDID:  c.cfg.VerifierDID,
		VerifierAuth: token,
		ProgramID:    programID,
	}
	return c.run(ctx, KindVerify, op)
}

// Busy reports whether a session is configuring or launched
func (c *WidgetController) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active != nil
}

// Active returns the live session, if any
func (c *WidgetController) Active() (SessionInfo, bool) {
	c.mu.Lock()
	s := c.active
	c.mu.Unlock()

	if s == nil {
		return SessionInfo{}, false
	}
	return s.snapshot(), true
}

// Teardown force-closes the live session, resolving it as closed by the user.
// It reports whether a session was torn down.
func (c *WidgetController) Teardown() bool {
	c.mu.Lock()
	s := c.active
	c.mu.Unlock()

	if s == nil {
		return false
	}
	return s.resolve(SessionOutcome{
		State: StateClosedByUser,
		Err:   fmt.Errorf("session torn down: %w", core.ErrCancelledByUser),
	})
}

func (c *WidgetController) run(ctx context.Context, kind SessionKind, op core.OperationRequest) (SessionOutcome, error) {
	s, err := c.acquire(kind, op)
	if err != nil {
		return SessionOutcome{}, err
	}
	defer c.release(s)

	opts, err := c.options(kind)
	if err != nil {
		s.resolve(failed(err))
		return s.wait(ctx), nil
	}
	s.setOptions(opts)

	var w ports.Widget
	err = safely(func() error {
		var err error
		w, err = c.factory.NewWidget(op, c.cfg.PartnerID, opts)
		return err
	})
	if err == nil && w == nil {
		err = fmt.Errorf("factory returned no widget")
	}
	if err != nil {
		s.resolve(failed(fmt.Errorf("failed to construct widget: %v", err)))
		return s.wait(ctx), nil
	}

	if !s.attach(w) {
		return s.wait(ctx), nil
	}
	logger.Infof("starting %s widget session %s", kind, s.snapshot().ID)

	completion := ports.EventIssueCompleted
	if kind == KindVerify {
		completion = ports.EventVerifyCompleted
	}

	w.On(completion, func(p ports.WidgetEventPayload) {
		s.resolve(SessionOutcome{
			State:        StateCompleted,
			Issued:       kind == KindIssue,
			Verification: p.Verification,
		})
	})
	w.On(ports.EventClose, func(ports.WidgetEventPayload) {
		s.resolve(SessionOutcome{
			State: StateClosedByUser,
			Err:   fmt.Errorf("widget closed: %w", core.ErrCancelledByUser),
		})
	})
	w.On(ports.EventError, func(p ports.WidgetEventPayload) {
		cause := p.Err
		if cause == nil {
			cause = fmt.Errorf("unspecified error")
		}
		s.resolve(failed(fmt.Errorf("widget reported error: %v", cause)))
	})

	if s.isResolved() {
		return s.wait(ctx), nil
	}
	if err := safely(w.Launch); err != nil {
		s.resolve(failed(fmt.Errorf("failed to launch widget: %v", err)))
		return s.wait(ctx), nil
	}
	s.markLaunched()

	return s.wait(ctx), nil
}

func (c *WidgetController) acquire(kind SessionKind, op core.OperationRequest) (*widgetSession, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active != nil {
		info := c.active.snapshot()
		return nil, fmt.Errorf("session %s is %s: %w", info.ID, info.State, core.ErrSessionBusy)
	}

	c.active = &widgetSession{
		info: SessionInfo{
			ID:        uuid.New().String(),
			Kind:      kind,
			State:     StateConfiguring,
			PartnerID: c.cfg.PartnerID,
			Request:   op,
			StartedAt: c.now(),
		},
		done: make(chan SessionOutcome, 1),
	}
	return c.active, nil
}

func (c *WidgetController) release(s *widgetSession) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active == s {
		c.active = nil
	}
}

func (c *WidgetController) options(kind SessionKind) (core.WidgetOptions, error) {
	endpoint, err := decorateEndpoint(c.cfg.Endpoint, c.cfg.Theme)
	if err != nil {
		return core.WidgetOptions{}, err
	}

	opts := core.WidgetOptions{
		Endpoint:    endpoint,
		Environment: c.cfg.Environment,
		Theme:       c.cfg.Theme,
		Locale:      c.cfg.Locale,
	}
	if kind == KindIssue {
		opts.RedirectURLForIssuer = c.cfg.RedirectURLForIssuer
	}
	return opts, nil
}

// decorateEndpoint sets the presentation parameters the widget reads,
// replacing any already present on raw.
func decorateEndpoint(raw, theme string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("invalid widget endpoint %q", raw)
	}

	q := u.Query()
	q.Set("theme", theme)
	q.Set("color-scheme", theme)
	q.Set("mode", theme)
	u.RawQuery = q.Encode()

	return u.String(), nil
}

func failed(err error) SessionOutcome {
	return SessionOutcome{
		State: StateFailed,
		Err:   fmt.Errorf("%v: %w", err, core.ErrWidget),
	}
}

// safely runs fn, turning a panic into an error
func safely(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}

type widgetSession struct {
	mu       sync.Mutex
	info     SessionInfo
	widget   ports.Widget
	resolved bool
	done     chan SessionOutcome
}

// resolve settles the session once and destroys the widget handle exactly
// once; later calls are ignored.
func (s *widgetSession) resolve(out SessionOutcome) bool {
	s.mu.Lock()
	if s.resolved {
		s.mu.Unlock()
		return false
	}
	s.resolved = true
	s.info.State = out.State
	id := s.info.ID
	w := s.widget
	s.widget = nil
	s.mu.Unlock()

	if w != nil {
		w.Destroy()
	}

	logger.Infof("widget session %s ended %s", id, out.State)
	s.done <- out
	return true
}

// attach hands the constructed widget to the session. If the session was
// already resolved the widget is destroyed straight away.
func (s *widgetSession) attach(w ports.Widget) bool {
	s.mu.Lock()
	if s.resolved {
		s.mu.Unlock()
		w.Destroy()
		return false
	}
	s.widget = w
	if id, ok := w.(interface{ ID() string }); ok {
		s.info.ID = id.ID()
	}
	s.mu.Unlock()
	return true
}

func (s *widgetSession) wait(ctx context.Context) SessionOutcome {
	select {
	case out := <-s.done:
		return out
	case <-ctx.Done():
		s.resolve(SessionOutcome{
			State: StateClosedByUser,
			Err:   fmt.Errorf("owner went away: %v: %w", ctx.Err(), core.ErrCancelledByUser),
		})
		return <-s.done
	}
}

func (s *widgetSession) markLaunched() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.resolved {
		s.info.State = StateLaunched
	}
}

func (s *widgetSession) setOptions(opts core.WidgetOptions) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.info.Options = opts
}

func (s *widgetSession) isResolved() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resolved
}

func (s *widgetSession) snapshot() SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.info
}
