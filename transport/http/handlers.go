package http

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/layer-3/credex/adapters/authclient"
	"github.com/layer-3/credex/adapters/widget"
	"github.com/layer-3/credex/core"
	"github.com/layer-3/credex/ports"
	"github.com/layer-3/credex/service"
)

// ProgramResolver maps experience years to a verification program
type ProgramResolver func(years int64) (string, bool)

// Handlers contains the HTTP handlers of the exchange API
type Handlers struct {
	orchestrator *service.Orchestrator
	registry     *widget.HostedRegistry
	programs     ProgramResolver
	pollInterval time.Duration
}

// NewHandlers creates new handlers
func NewHandlers(orchestrator *service.Orchestrator, registry *widget.HostedRegistry, programs ProgramResolver, pollInterval time.Duration) *Handlers {
	return &Handlers{
		orchestrator: orchestrator,
		registry:     registry,
		programs:     programs,
		pollInterval: pollInterval,
	}
}

type resultResponse struct {
	Outcome      core.Outcome             `json:"outcome"`
	Message      string                   `json:"message,omitempty"`
	Request      *core.CredentialRequest  `json:"request,omitempty"`
	Verification *core.VerificationResult `json:"verification,omitempty"`
}

func newResultResponse(res core.Result) resultResponse {
	return resultResponse{
		Outcome:      res.Outcome,
		Message:      res.Message(),
		Request:      res.Request,
		Verification: res.Verification,
	}
}

// errorStatus maps domain errors to HTTP status codes
func errorStatus(err error) int {
	switch {
	case errors.Is(err, core.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrInvalidTransition), errors.Is(err, core.ErrSessionBusy):
		return http.StatusConflict
	case errors.Is(err, core.ErrAuth):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

func abortWithError(c *gin.Context, err error) {
	status := errorStatus(err)
	if status == http.StatusInternalServerError {
		logger.Errorf("%s %s failed: %v", c.Request.Method, c.FullPath(), err)
		c.JSON(status, gin.H{"error": "Internal error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func requestID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request id"})
		return 0, false
	}
	return id, true
}

// CreateRequestBody is the employer form. ID, status and request date are
// always set by the ledger.
type CreateRequestBody struct {
	SubjectName    string              `json:"candidateName"`
	SubjectWallet  string              `json:"walletAddress"`
	CredentialType core.CredentialType `json:"credentialType"`
	Details        core.Details        `json:"details"`
}

// CreateRequest records a new credential request
func (h *Handlers) CreateRequest(c *gin.Context) {
	var body CreateRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	stored, err := h.orchestrator.RequestCredential(c.Request.Context(), core.CredentialRequest{
		SubjectName:    body.SubjectName,
		SubjectWallet:  body.SubjectWallet,
		CredentialType: body.CredentialType,
		Details:        body.Details,
	})
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, stored)
}

// ListRequests lists requests, optionally by wallet and status
func (h *Handlers) ListRequests(c *gin.Context) {
	filter := service.Filter{
		Wallet: c.Query("wallet"),
		Status: core.Status(c.Query("status")),
	}
	switch filter.Status {
	case "", core.StatusPending, core.StatusAccepted, core.StatusRejected:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid status"})
		return
	}

	requests, err := h.orchestrator.Ledger().List(c.Request.Context(), filter)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"requests": requests})
}

// GetRequest returns one request
func (h *Handlers) GetRequest(c *gin.Context) {
	id, ok := requestID(c)
	if !ok {
		return
	}

	req, err := h.orchestrator.Ledger().Get(c.Request.Context(), id)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, req)
}

// IssueRequest runs an issuance session for a pending request. The call
// blocks until the widget session ends; a client disconnect closes it.
func (h *Handlers) IssueRequest(c *gin.Context) {
	id, ok := requestID(c)
	if !ok {
		return
	}

	res, err := h.orchestrator.IssueCredential(c.Request.Context(), id)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, newResultResponse(res))
}

// RejectRequest rejects a pending request
func (h *Handlers) RejectRequest(c *gin.Context) {
	id, ok := requestID(c)
	if !ok {
		return
	}

	req, err := h.orchestrator.RejectRequest(c.Request.Context(), id)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, req)
}

// Verify runs a verification session for a program, given directly or
// resolved from the candidate's experience
func (h *Handlers) Verify(c *gin.Context) {
	var req struct {
		ProgramID       string `json:"programId"`
		ExperienceYears *int64 `json:"experienceYears"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	programID := req.ProgramID
	if programID == "" && req.ExperienceYears != nil && h.programs != nil {
		resolved, ok := h.programs(*req.ExperienceYears)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "No program for the given experience"})
			return
		}
		programID = resolved
	}

	res, err := h.orchestrator.VerifyCandidate(c.Request.Context(), programID)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, newResultResponse(res))
}

// PendingStream streams a holder's pending requests as server-sent events
// until the client goes away
func (h *Handlers) PendingStream(c *gin.Context) {
	ctx := c.Request.Context()
	sink := newChanSink()

	poller := service.NewPoller(h.orchestrator.Ledger(), c.Param("wallet"), h.pollInterval, sink)
	poller.Start(ctx)
	defer poller.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case requests := <-sink.ch:
			c.SSEvent("pending", gin.H{"requests": requests})
			return true
		}
	})
}

// WidgetSession describes the live widget session for the browser to mount
func (h *Handlers) WidgetSession(c *gin.Context) {
	info, ok := h.orchestrator.Widgets().Active()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "No active widget session"})
		return
	}

	c.JSON(http.StatusOK, info)
}

// TeardownWidget force-closes the live widget session
func (h *Handlers) TeardownWidget(c *gin.Context) {
	if !h.orchestrator.Teardown() {
		c.JSON(http.StatusNotFound, gin.H{"error": "No active widget session"})
		return
	}

	c.Status(http.StatusNoContent)
}

// WidgetEvent relays an event reported by the browser-side widget
func (h *Handlers) WidgetEvent(c *gin.Context) {
	var req struct {
		Event   ports.WidgetEvent `json:"event" binding:"required"`
		Status  string            `json:"status"`
		Payload map[string]any    `json:"payload"`
		Error   string            `json:"error"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	var payload ports.WidgetEventPayload
	switch req.Event {
	case ports.EventVerifyCompleted:
		payload.Verification = &core.VerificationResult{Status: req.Status, Payload: req.Payload}
	case ports.EventError:
		msg := req.Error
		if msg == "" {
			msg = "widget error"
		}
		payload.Err = errors.New(msg)
	}

	err := h.registry.Dispatch(c.Param("id"), req.Event, payload)
	switch {
	case errors.Is(err, widget.ErrUnknownEvent):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, widget.ErrUnknownSession):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case err != nil:
		abortWithError(c, err)
	default:
		c.Status(http.StatusAccepted)
	}
}

// Healthcheck reports liveness
func (h *Handlers) Healthcheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// AuthHandlers serve the development login endpoint
type AuthHandlers struct {
	authService *service.AuthService
}

// NewAuthHandlers creates new auth handlers
func NewAuthHandlers(authService *service.AuthService) *AuthHandlers {
	return &AuthHandlers{
		authService: authService,
	}
}

// Failure code returned in the login envelope
const loginFailedCode = 40100000

// Login trades a principal's API key for a bearer token, answering in the
// identity service envelope
func (h *AuthHandlers) Login(c *gin.Context) {
	role := core.Role(c.Param("role"))

	var body map[string]string
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, authclient.Envelope{Code: loginFailedCode, Msg: "Invalid request"})
		return
	}

	token, err := h.authService.Login(c.Request.Context(), role, body[string(role)+"Did"], body["authToken"])
	if err != nil {
		c.JSON(http.StatusOK, authclient.Envelope{Code: loginFailedCode, Msg: "Authentication failed"})
		return
	}

	c.JSON(http.StatusOK, authclient.Envelope{
		Code: authclient.SuccessCode,
		Msg:  "success",
		Data: authclient.EnvelopeData{Token: token},
	})
}

// Introspect returns the session behind the bearer token
func (h *AuthHandlers) Introspect(c *gin.Context) {
	session, exists := c.Get(sessionContextKey)
	if !exists {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Session not found in context"})
		return
	}

	c.JSON(http.StatusOK, session)
}

// chanSink hands poller snapshots to a stream handler
type chanSink struct {
	ch chan []core.CredentialRequest
}

func newChanSink() *chanSink {
	return &chanSink{ch: make(chan []core.CredentialRequest)}
}

func (s *chanSink) PublishPending(ctx context.Context, wallet string, requests []core.CredentialRequest) error {
	select {
	case s.ch <- requests:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
