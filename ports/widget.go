package ports

import "github.com/layer-3/credex/core"

// WidgetEvent names an event emitted by the credential widget
type WidgetEvent string

const (
	EventIssueCompleted  WidgetEvent = "issueCompleted"
	EventVerifyCompleted WidgetEvent = "verifyCompleted"
	EventClose           WidgetEvent = "close"
	EventError           WidgetEvent = "error"
)

// WidgetEventPayload is passed to event handlers
type WidgetEventPayload struct {
	Verification *core.VerificationResult
	Err          error
}

// WidgetHandler reacts to a widget event
type WidgetHandler func(payload WidgetEventPayload)

// Widget is one instance of the external issuance/verification widget
type Widget interface {
	// On subscribes a handler to an event
	On(event WidgetEvent, handler WidgetHandler)

	// Launch opens the widget
	Launch() error

	// Destroy releases the widget and its resources
	Destroy()
}

// WidgetFactory constructs widget instances
type WidgetFactory interface {
	NewWidget(req core.OperationRequest, partnerID string, opts core.WidgetOptions) (Widget, error)
}
