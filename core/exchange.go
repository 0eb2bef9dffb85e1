package core

import "time"

// Role identifies a participant in the exchange
type Role string

const (
	RoleIssuer   Role = "issuer"
	RoleHolder   Role = "holder"
	RoleVerifier Role = "verifier"
)

// CanLogin reports whether the role authenticates against the token endpoint
func (r Role) CanLogin() bool {
	return r == RoleIssuer || r == RoleVerifier
}

// Process values understood by the credential widget
const (
	ProcessIssue  = "Issue"
	ProcessVerify = "Verify"
)

// OperationRequest is the payload handed to the credential widget
type OperationRequest struct {
	Process           string         `json:"process"`
	IssuerDID         string         `json:"issuerDid,omitempty"`
	IssuerAuth        string         `json:"issuerAuth,omitempty"`
	CredentialID      string         `json:"credentialId,omitempty"`
	CredentialSubject map[string]any `json:"credentialSubject,omitempty"`
	VerifierDID       string         `json:"verifierDid,omitempty"`
	VerifierAuth      string         `json:"verifierAuth,omitempty"`
	ProgramID         string         `json:"programId,omitempty"`
}

// WidgetOptions configures a widget instance
type WidgetOptions struct {
	Endpoint             string `json:"endpoint"`
	Environment          string `json:"environment"`
	Theme                string `json:"theme"`
	Locale               string `json:"locale"`
	RedirectURLForIssuer string `json:"redirectUrlForIssuer,omitempty"`
}

// ComplianceCompliant is the verification status that counts as a pass
const ComplianceCompliant = "Compliant"

// VerificationResult is reported by the widget when a verification finishes
type VerificationResult struct {
	Status  string         `json:"status"`
	Payload map[string]any `json:"payload,omitempty"`
}

// IsCompliant reports whether the presented credential satisfied the program
func (v *VerificationResult) IsCompliant() bool {
	return v != nil && v.Status == ComplianceCompliant
}

// Outcome is the user-visible result of an orchestrated operation
type Outcome string

const (
	OutcomeSuccess      Outcome = "success"
	OutcomeCancelled    Outcome = "cancelled"
	OutcomeError        Outcome = "error"
	OutcomeNotCompliant Outcome = "not_compliant"
	OutcomeAuthFailed   Outcome = "auth_failed"
)

// Result carries an outcome with its diagnostic, if any
type Result struct {
	Outcome      Outcome             `json:"outcome"`
	Err          error               `json:"-"`
	Request      *CredentialRequest  `json:"request,omitempty"`
	Verification *VerificationResult `json:"verification,omitempty"`
}

// Message returns the diagnostic text, empty on success
func (r Result) Message() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

// Notification is delivered once per terminal outcome to the initiating role
type Notification struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	RequestID int64     `json:"requestId,omitempty"`
	Outcome   Outcome   `json:"outcome"`
	Title     string    `json:"title"`
	Message   string    `json:"message,omitempty"`
	At        time.Time `json:"at"`
}
