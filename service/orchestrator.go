package service

import (
	"context"
	"fmt"
	"time"

	"github.com/layer-3/credex/core"
	"github.com/layer-3/credex/ports"
	"github.com/sirupsen/logrus"
)

var logger = logrus.WithField("component", "service")

// Credentials is a DID and the API key it logs in with
type Credentials struct {
	DID    string
	APIKey string
}

// OrchestratorConfig holds the identity service settings of the orchestrator
type OrchestratorConfig struct {
	APIBaseURL string
	Issuer     Credentials
	Verifier   Credentials
}

// Orchestrator runs the issuer, verifier and employer operations end to end
type Orchestrator struct {
	ledger   *Ledger
	tokens   ports.TokenFetcher
	widgets  *WidgetController
	notifier ports.Notifier
	cfg      OrchestratorConfig
	now      func() time.Time
}

// NewOrchestrator creates a new orchestrator
func NewOrchestrator(
	ledger *Ledger,
	tokens ports.TokenFetcher,
	widgets *WidgetController,
	notifier ports.Notifier,
	cfg OrchestratorConfig,
) *Orchestrator {
	return &Orchestrator{
		ledger:   ledger,
		tokens:   tokens,
		widgets:  widgets,
		notifier: notifier,
		cfg:      cfg,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Ledger exposes the underlying request ledger
func (o *Orchestrator) Ledger() *Ledger {
	return o.ledger
}

// Widgets exposes the widget session controller
func (o *Orchestrator) Widgets() *WidgetController {
	return o.widgets
}

// RequestCredential records an employer's request and lets the holder know
func (o *Orchestrator) RequestCredential(ctx context.Context, req core.CredentialRequest) (core.CredentialRequest, error) {
	stored, err := o.ledger.Append(ctx, req)
	if err != nil {
		return core.CredentialRequest{}, err
	}

	o.notify(ctx, core.Notification{
		Role:      core.RoleHolder,
		RequestID: stored.ID,
		Outcome:   core.OutcomeSuccess,
		Title:     "Credential request sent",
		Message:   fmt.Sprintf("%s requested for %s", stored.CredentialType, stored.SubjectWallet),
	})
	return stored, nil
}

// IssueCredential issues the credential for a pending request. Token and
// widget failures are reported in the result and leave the request pending;
// the error return is reserved for ledger misuse, busy sessions and store
// failures.
func (o *Orchestrator) IssueCredential(ctx context.Context, id int64) (core.Result, error) {
	req, err := o.ledger.Get(ctx, id)
	if err != nil {
		return core.Result{}, err
	}
	if req.Status != core.StatusPending {
		return core.Result{}, fmt.Errorf("request %d is %s: %w", id, req.Status, core.ErrInvalidTransition)
	}
	if o.widgets.Busy() {
		return core.Result{}, fmt.Errorf("cannot issue request %d: %w", id, core.ErrSessionBusy)
	}

	token, err := o.tokens.FetchToken(ctx, ports.TokenRequest{
		PrincipalDID: o.cfg.Issuer.DID,
		APIKey:       o.cfg.Issuer.APIKey,
		Endpoint:     o.cfg.APIBaseURL,
		Role:         core.RoleIssuer,
	})
	if err != nil {
		res := core.Result{Outcome: core.OutcomeAuthFailed, Err: err, Request: &req}
		o.notifyResult(ctx, core.RoleIssuer, id, res, "Failed to get issuer token")
		return res, nil
	}

	out, err := o.widgets.StartIssue(ctx, req, token)
	if err != nil {
		return core.Result{}, err
	}

	switch out.State {
	case StateCompleted:
		accepted, err := o.ledger.SetStatus(ctx, id, core.StatusAccepted)
		if err != nil {
			res := core.Result{Outcome: core.OutcomeError, Err: err, Request: &req}
			o.notifyResult(ctx, core.RoleIssuer, id, res, "Credential issued but request could not be updated")
			return res, err
		}
		res := core.Result{Outcome: core.OutcomeSuccess, Request: &accepted}
		o.notifyResult(ctx, core.RoleIssuer, id, res, "Credential issued successfully")
		return res, nil
	case StateClosedByUser:
		res := core.Result{Outcome: core.OutcomeCancelled, Err: out.Err, Request: &req}
		o.notifyResult(ctx, core.RoleIssuer, id, res, "Credential issuance cancelled")
		return res, nil
	default:
		res := core.Result{Outcome: core.OutcomeError, Err: out.Err, Request: &req}
		o.notifyResult(ctx, core.RoleIssuer, id, res, "Error issuing credential")
		return res, nil
	}
}

// RejectRequest marks a pending request rejected without touching the widget
func (o *Orchestrator) RejectRequest(ctx context.Context, id int64) (core.CredentialRequest, error) {
	rejected, err := o.ledger.SetStatus(ctx, id, core.StatusRejected)
	if err != nil {
		return core.CredentialRequest{}, err
	}

	o.notify(ctx, core.Notification{
		Role:      core.RoleIssuer,
		RequestID: id,
		Outcome:   core.OutcomeSuccess,
		Title:     "Credential request rejected",
	})
	return rejected, nil
}

// VerifyCandidate asks the holder to present a credential satisfying programID
func (o *Orchestrator) VerifyCandidate(ctx context.Context, programID string) (core.Result, error) {
	if programID == "" {
		return core.Result{}, fmt.Errorf("program id is required: %w", core.ErrValidation)
	}
	if o.widgets.Busy() {
		return core.Result{}, fmt.Errorf("cannot verify program %s: %w", programID, core.ErrSessionBusy)
	}

	token, err := o.tokens.FetchToken(ctx, ports.TokenRequest{
		PrincipalDID: o.cfg.Verifier.DID,
		APIKey:       o.cfg.Verifier.APIKey,
		Endpoint:     o.cfg.APIBaseURL,
		Role:         core.RoleVerifier,
	})
	if err != nil {
		res := core.Result{Outcome: core.OutcomeAuthFailed, Err: err}
		o.notifyResult(ctx, core.RoleVerifier, 0, res, "Failed to get verifier token")
		return res, nil
	}

	out, err := o.widgets.StartVerify(ctx, programID, token)
	if err != nil {
		return core.Result{}, err
	}

	switch out.State {
	case StateCompleted:
		if out.Verification.IsCompliant() {
			res := core.Result{Outcome: core.OutcomeSuccess, Verification: out.Verification}
			o.notifyResult(ctx, core.RoleVerifier, 0, res, "Candidate verified")
			return res, nil
		}
		res := core.Result{
			Outcome:      core.OutcomeNotCompliant,
			Err:          fmt.Errorf("verification status %q", verificationStatus(out.Verification)),
			Verification: out.Verification,
		}
		o.notifyResult(ctx, core.RoleVerifier, 0, res, "Candidate is not compliant")
		return res, nil
	case StateClosedByUser:
		res := core.Result{Outcome: core.OutcomeCancelled, Err: out.Err}
		o.notifyResult(ctx, core.RoleVerifier, 0, res, "Verification cancelled")
		return res, nil
	default:
		res := core.Result{Outcome: core.OutcomeError, Err: out.Err}
		o.notifyResult(ctx, core.RoleVerifier, 0, res, "Error verifying candidate")
		return res, nil
	}
}

// Teardown force-closes any live widget session
func (o *Orchestrator) Teardown() bool {
	return o.widgets.Teardown()
}

func (o *Orchestrator) notifyResult(ctx context.Context, role core.Role, requestID int64, res core.Result, title string) {
	o.notify(ctx, core.Notification{
		Role:      role,
		RequestID: requestID,
		Outcome:   res.Outcome,
		Title:     title,
		Message:   res.Message(),
	})
}

// notify never fails the operation; the outcome is already settled
func (o *Orchestrator) notify(ctx context.Context, n core.Notification) {
	if o.notifier == nil {
		return
	}
	n.At = o.now()

	// the request context may already be gone when a session was cancelled
	if err := o.notifier.Notify(context.WithoutCancel(ctx), n); err != nil {
		logger.Warnf("failed to deliver %s notification %q: %v", n.Role, n.Title, err)
	}
}

func verificationStatus(v *core.VerificationResult) string {
	if v == nil {
		return "missing"
	}
	return v.Status
}
