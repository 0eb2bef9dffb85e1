package widget

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/layer-3/credex/core"
	"github.com/layer-3/credex/ports"
	"github.com/sirupsen/logrus"
)

var logger = logrus.WithField("component", "widget")

var (
	// ErrUnknownSession is returned when an event targets no live session
	ErrUnknownSession = errors.New("unknown widget session")

	// ErrUnknownEvent is returned for event names the widget never emits
	ErrUnknownEvent = errors.New("unknown widget event")
)

// Session describes a launched hosted widget
type Session struct {
	ID        string                `json:"id"`
	PartnerID string                `json:"partnerId"`
	Request   core.OperationRequest `json:"request"`
	Options   core.WidgetOptions    `json:"options"`
}

// HostedRegistry builds hosted widgets and routes the events their browser
// side reports back to the handlers registered on them.
type HostedRegistry struct {
	mu       sync.RWMutex
	launched map[string]*HostedWidget
}

// NewHostedRegistry creates an empty registry
func NewHostedRegistry() *HostedRegistry {
	return &HostedRegistry{launched: make(map[string]*HostedWidget)}
}

// NewWidget implements ports.WidgetFactory
func (r *HostedRegistry) NewWidget(req core.OperationRequest, partnerID string, opts core.WidgetOptions) (ports.Widget, error) {
	if partnerID == "" {
		return nil, fmt.Errorf("partner id is required")
	}
	if opts.Endpoint == "" {
		return nil, fmt.Errorf("widget endpoint is required")
	}

	return &HostedWidget{
		registry: r,
		session: Session{
			ID:        uuid.New().String(),
			PartnerID: partnerID,
			Request:   req,
			Options:   opts,
		},
		handlers: make(map[ports.WidgetEvent]ports.WidgetHandler),
	}, nil
}

// Dispatch delivers an event reported by the browser to a launched widget
func (r *HostedRegistry) Dispatch(sessionID string, event ports.WidgetEvent, payload ports.WidgetEventPayload) error {
	switch event {
	case ports.EventIssueCompleted, ports.EventVerifyCompleted, ports.EventClose, ports.EventError:
	default:
		return fmt.Errorf("%q: %w", event, ErrUnknownEvent)
	}

	r.mu.RLock()
	w, ok := r.launched[sessionID]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%s: %w", sessionID, ErrUnknownSession)
	}

	w.fire(event, payload)
	return nil
}

func (r *HostedRegistry) register(w *HostedWidget) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.launched[w.session.ID] = w
}

func (r *HostedRegistry) unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.launched, id)
}

// HostedWidget is a widget rendered by the browser from its Session
type HostedWidget struct {
	registry *HostedRegistry
	session  Session

	mu        sync.Mutex
	handlers  map[ports.WidgetEvent]ports.WidgetHandler
	launched  bool
	destroyed bool
}

// ID returns the session id
func (w *HostedWidget) ID() string {
	return w.session.ID
}

// On subscribes a handler, replacing any previous one for the event
func (w *HostedWidget) On(event ports.WidgetEvent, handler ports.WidgetHandler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers[event] = handler
}

// Launch makes the session reachable for browser events
func (w *HostedWidget) Launch() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.destroyed {
		return fmt.Errorf("widget %s already destroyed", w.session.ID)
	}
	if w.launched {
		return fmt.Errorf("widget %s already launched", w.session.ID)
	}
	w.launched = true
	w.registry.register(w)

	logger.Debugf("launched %s widget session %s at %s", w.session.Request.Process, w.session.ID, w.session.Options.Endpoint)
	return nil
}

// Destroy detaches the session; further events are rejected
func (w *HostedWidget) Destroy() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.destroyed {
		return
	}
	w.destroyed = true
	w.registry.unregister(w.session.ID)
}

func (w *HostedWidget) fire(event ports.WidgetEvent, payload ports.WidgetEventPayload) {
	w.mu.Lock()
	handler, ok := w.handlers[event]
	destroyed := w.destroyed
	w.mu.Unlock()

	if !ok || destroyed {
		return
	}
	// handlers may call Destroy, so the lock is not held here
	handler(payload)
}

var _ ports.WidgetFactory = (*HostedRegistry)(nil)
