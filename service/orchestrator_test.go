package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/layer-3/credex/adapters/store"
	"github.com/layer-3/credex/core"
	"github.com/layer-3/credex/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type orchestratorFixture struct {
	orchestrator *Orchestrator
	ledger       *Ledger
	tokens       *fakeTokens
	widgets      *fakeWidgetFactory
	notifier     *fakeNotifier
}

func newOrchestratorFixture(t *testing.T, event ports.WidgetEvent, payload ports.WidgetEventPayload) *orchestratorFixture {
	t.Helper()

	fx := &orchestratorFixture{
		ledger:   NewLedger(store.NewMemoryStore()),
		tokens:   &fakeTokens{token: "bearer-token"},
		notifier: &fakeNotifier{},
		widgets: &fakeWidgetFactory{configure: func(w *fakeWidget) {
			w.autoEvent = event
			w.autoPayload = payload
		}},
	}
	fx.orchestrator = NewOrchestrator(
		fx.ledger,
		fx.tokens,
		NewWidgetController(fx.widgets, testWidgetConfig()),
		fx.notifier,
		OrchestratorConfig{
			APIBaseURL: "https://api.example.com",
			Issuer:     Credentials{DID: "did:issuer:1", APIKey: "issuer-key"},
			Verifier:   Credentials{DID: "did:verifier:1", APIKey: "verifier-key"},
		},
	)
	return fx
}

func (fx *orchestratorFixture) request(t *testing.T) core.CredentialRequest {
	t.Helper()
	stored, err := fx.orchestrator.RequestCredential(context.Background(), employmentRequest())
	require.NoError(t, err)
	return stored
}

func (fx *orchestratorFixture) status(t *testing.T, id int64) core.Status {
	t.Helper()
	got, err := fx.ledger.Get(context.Background(), id)
	require.NoError(t, err)
	return got.Status
}

func TestRequestCredentialNotifiesHolder(t *testing.T) {
	fx := newOrchestratorFixture(t, "", ports.WidgetEventPayload{})

	stored := fx.request(t)

	notes := fx.notifier.forRole(core.RoleHolder)
	require.Len(t, notes, 1)
	assert.Equal(t, stored.ID, notes[0].RequestID)
	assert.Equal(t, "Credential request sent", notes[0].Title)
	assert.False(t, notes[0].At.IsZero())

	_, err := fx.orchestrator.RequestCredential(context.Background(), core.CredentialRequest{})
	require.ErrorIs(t, err, core.ErrValidation)
	assert.Len(t, fx.notifier.forRole(core.RoleHolder), 1)
}

func TestIssueCredentialSuccess(t *testing.T) {
	fx := newOrchestratorFixture(t, ports.EventIssueCompleted, ports.WidgetEventPayload{})
	stored := fx.request(t)

	res, err := fx.orchestrator.IssueCredential(context.Background(), stored.ID)
	require.NoError(t, err)
	assert.Equal(t, core.OutcomeSuccess, res.Outcome)
	require.NotNil(t, res.Request)
	assert.Equal(t, core.StatusAccepted, res.Request.Status)
	assert.Equal(t, core.StatusAccepted, fx.status(t, stored.ID))

	require.Equal(t, 1, fx.tokens.calls())
	tokenReq := fx.tokens.requests[0]
	assert.Equal(t, core.RoleIssuer, tokenReq.Role)
	assert.Equal(t, "did:issuer:1", tokenReq.PrincipalDID)
	assert.Equal(t, "issuer-key", tokenReq.APIKey)
	assert.Equal(t, "https://api.example.com", tokenReq.Endpoint)
	assert.Equal(t, "bearer-token", fx.widgets.requests[0].IssuerAuth)

	notes := fx.notifier.forRole(core.RoleIssuer)
	require.Len(t, notes, 1)
	assert.Equal(t, core.OutcomeSuccess, notes[0].Outcome)
}

func TestIssueCredentialClosedStaysPending(t *testing.T) {
	fx := newOrchestratorFixture(t, ports.EventClose, ports.WidgetEventPayload{})
	stored := fx.request(t)

	res, err := fx.orchestrator.IssueCredential(context.Background(), stored.ID)
	require.NoError(t, err)
	assert.Equal(t, core.OutcomeCancelled, res.Outcome)
	assert.ErrorIs(t, res.Err, core.ErrCancelledByUser)
	assert.Equal(t, core.StatusPending, fx.status(t, stored.ID))

	notes := fx.notifier.forRole(core.RoleIssuer)
	require.Len(t, notes, 1)
	assert.Equal(t, core.OutcomeCancelled, notes[0].Outcome)
}

func TestIssueCredentialTokenFailure(t *testing.T) {
	fx := newOrchestratorFixture(t, ports.EventIssueCompleted, ports.WidgetEventPayload{})
	fx.tokens.err = fmt.Errorf("code 40100001: %w", core.ErrAuth)
	stored := fx.request(t)

	res, err := fx.orchestrator.IssueCredential(context.Background(), stored.ID)
	require.NoError(t, err)
	assert.Equal(t, core.OutcomeAuthFailed, res.Outcome)
	assert.ErrorIs(t, res.Err, core.ErrAuth)
	assert.Equal(t, 0, fx.widgets.built())
	assert.Equal(t, core.StatusPending, fx.status(t, stored.ID))

	notes := fx.notifier.forRole(core.RoleIssuer)
	require.Len(t, notes, 1)
	assert.Equal(t, core.OutcomeAuthFailed, notes[0].Outcome)
	assert.Contains(t, notes[0].Message, "40100001")
}

func TestIssueCredentialWidgetErrorStaysPending(t *testing.T) {
	fx := newOrchestratorFixture(t, ports.EventError, ports.WidgetEventPayload{Err: errors.New("boom")})
	stored := fx.request(t)

	res, err := fx.orchestrator.IssueCredential(context.Background(), stored.ID)
	require.NoError(t, err)
	assert.Equal(t, core.OutcomeError, res.Outcome)
	assert.ErrorIs(t, res.Err, core.ErrWidget)
	assert.Equal(t, core.StatusPending, fx.status(t, stored.ID))

	// the request can be retried
	fx.widgets.configure = func(w *fakeWidget) { w.autoEvent = ports.EventIssueCompleted }
	res, err = fx.orchestrator.IssueCredential(context.Background(), stored.ID)
	require.NoError(t, err)
	assert.Equal(t, core.OutcomeSuccess, res.Outcome)
	assert.Len(t, fx.notifier.forRole(core.RoleIssuer), 2)
}

func TestRejectThenIssueFails(t *testing.T) {
	fx := newOrchestratorFixture(t, ports.EventIssueCompleted, ports.WidgetEventPayload{})
	stored := fx.request(t)

	rejected, err := fx.orchestrator.RejectRequest(context.Background(), stored.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusRejected, rejected.Status)
	assert.Equal(t, core.StatusRejected, fx.status(t, stored.ID))

	_, err = fx.orchestrator.IssueCredential(context.Background(), stored.ID)
	require.ErrorIs(t, err, core.ErrInvalidTransition)
	assert.Equal(t, 0, fx.tokens.calls())
	assert.Equal(t, 0, fx.widgets.built())

	_, err = fx.orchestrator.RejectRequest(context.Background(), stored.ID)
	require.ErrorIs(t, err, core.ErrInvalidTransition)

	_, err = fx.orchestrator.IssueCredential(context.Background(), 12345)
	require.ErrorIs(t, err, core.ErrNotFound)
}

func TestIssueCredentialWhileBusy(t *testing.T) {
	fx := newOrchestratorFixture(t, "", ports.WidgetEventPayload{})
	first := fx.request(t)

	second := employmentRequest()
	second.CredentialType = core.CredentialRoleCertificate
	secondStored, err := fx.orchestrator.RequestCredential(context.Background(), second)
	require.NoError(t, err)

	done := make(chan core.Result, 1)
	go func() {
		res, err := fx.orchestrator.IssueCredential(context.Background(), first.ID)
		assert.NoError(t, err)
		done <- res
	}()
	w := waitLaunched(t, fx.widgets, 0)

	_, err = fx.orchestrator.IssueCredential(context.Background(), secondStored.ID)
	require.ErrorIs(t, err, core.ErrSessionBusy)
	assert.Equal(t, 1, fx.tokens.calls())
	assert.Equal(t, 0, w.destroyCount())

	assert.True(t, fx.orchestrator.Teardown())
	select {
	case res := <-done:
		assert.Equal(t, core.OutcomeCancelled, res.Outcome)
	case <-time.After(time.Second):
		t.Fatal("issue did not finish after teardown")
	}
	assert.Equal(t, core.StatusPending, fx.status(t, first.ID))
}

func TestVerifyCandidateOutcomes(t *testing.T) {
	tests := []struct {
		name    string
		event   ports.WidgetEvent
		payload ports.WidgetEventPayload
		want    core.Outcome
	}{
		{
			name:    "compliant",
			event:   ports.EventVerifyCompleted,
			payload: ports.WidgetEventPayload{Verification: &core.VerificationResult{Status: core.ComplianceCompliant}},
			want:    core.OutcomeSuccess,
		},
		{
			name:    "not compliant",
			event:   ports.EventVerifyCompleted,
			payload: ports.WidgetEventPayload{Verification: &core.VerificationResult{Status: "NonCompliant"}},
			want:    core.OutcomeNotCompliant,
		},
		{
			name:  "missing result",
			event: ports.EventVerifyCompleted,
			want:  core.OutcomeNotCompliant,
		},
		{
			name:  "closed",
			event: ports.EventClose,
			want:  core.OutcomeCancelled,
		},
		{
			name:    "widget error",
			event:   ports.EventError,
			payload: ports.WidgetEventPayload{Err: errors.New("boom")},
			want:    core.OutcomeError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newOrchestratorFixture(t, tt.event, tt.payload)

			res, err := fx.orchestrator.VerifyCandidate(context.Background(), "program-7")
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Outcome)

			require.Equal(t, 1, fx.tokens.calls())
			assert.Equal(t, core.RoleVerifier, fx.tokens.requests[0].Role)
			assert.Equal(t, "program-7", fx.widgets.requests[0].ProgramID)

			notes := fx.notifier.forRole(core.RoleVerifier)
			require.Len(t, notes, 1)
			assert.Equal(t, tt.want, notes[0].Outcome)
		})
	}
}

func TestVerifyCandidateFailures(t *testing.T) {
	fx := newOrchestratorFixture(t, ports.EventVerifyCompleted, ports.WidgetEventPayload{})

	_, err := fx.orchestrator.VerifyCandidate(context.Background(), "")
	require.ErrorIs(t, err, core.ErrValidation)
	assert.Equal(t, 0, fx.tokens.calls())

	fx.tokens.err = fmt.Errorf("unknown error: %w", core.ErrAuth)
	res, err := fx.orchestrator.VerifyCandidate(context.Background(), "program-7")
	require.NoError(t, err)
	assert.Equal(t, core.OutcomeAuthFailed, res.Outcome)
	assert.Equal(t, 0, fx.widgets.built())
	assert.Len(t, fx.notifier.forRole(core.RoleVerifier), 1)
}
