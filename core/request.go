package core

import (
	"fmt"
	"strings"
	"time"
)

// Status represents the lifecycle state of a credential request
type Status string

const (
	StatusPending  Status = "pending"
	StatusAccepted Status = "accepted"
	StatusRejected Status = "rejected"
)

// IsTerminal reports whether no further transition is allowed
func (s Status) IsTerminal() bool {
	return s == StatusAccepted || s == StatusRejected
}

// CanTransition reports whether s may move to next.
// Only pending requests move, and only to accepted or rejected.
func (s Status) CanTransition(next Status) bool {
	return s == StatusPending && next.IsTerminal()
}

// CredentialType names a request category
type CredentialType string

const (
	CredentialEmploymentVerification CredentialType = "Employment Verification"
	CredentialRoleCertificate        CredentialType = "Role Certificate"
	CredentialPerformanceReview      CredentialType = "Performance Review"
	CredentialTrainingCompletion     CredentialType = "Training Completion"
	CredentialDegreeCertificate      CredentialType = "Degree Certificate"
	CredentialCourseCompletion       CredentialType = "Course Completion"
	CredentialAcademicTranscript     CredentialType = "Academic Transcript"
)

var credentialTypes = map[string]CredentialType{
	"employment":  CredentialEmploymentVerification,
	"role":        CredentialRoleCertificate,
	"performance": CredentialPerformanceReview,
	"training":    CredentialTrainingCompletion,
	"degree":      CredentialDegreeCertificate,
	"course":      CredentialCourseCompletion,
	"transcript":  CredentialAcademicTranscript,
}

// ParseCredentialType accepts either the display name or the short form
// used by the request form ("employment", "role", ...).
func ParseCredentialType(s string) (CredentialType, error) {
	s = strings.TrimSpace(s)
	if t, ok := credentialTypes[strings.ToLower(s)]; ok {
		return t, nil
	}
	for _, t := range credentialTypes {
		if strings.EqualFold(string(t), s) {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown credential type %q: %w", s, ErrValidation)
}

// Details is the structured payload attached to a request
type Details struct {
	Role              string `json:"role"`
	Department        string `json:"department"`
	StartDate         string `json:"startDate"`
	EndDate           string `json:"endDate,omitempty"`
	Salary            string `json:"salary,omitempty"`
	Achievements      string `json:"achievements,omitempty"`
	PerformanceRating string `json:"performanceRating,omitempty"`
}

// CredentialRequest is one cross-role ask for a verifiable credential
type CredentialRequest struct {
	ID             int64          `json:"id"`
	SubjectName    string         `json:"candidateName"`
	SubjectWallet  string         `json:"walletAddress"`
	CredentialType CredentialType `json:"credentialType"`
	Details        Details        `json:"details"`
	Status         Status         `json:"status"`
	RequestDate    time.Time      `json:"requestDate"`
}

// Validate checks the fields required to create a request
func (r CredentialRequest) Validate() error {
	var missing []string
	if strings.TrimSpace(r.SubjectWallet) == "" {
		missing = append(missing, "walletAddress")
	}
	if strings.TrimSpace(string(r.CredentialType)) == "" {
		missing = append(missing, "credentialType")
	}
	if strings.TrimSpace(r.Details.Role) == "" {
		missing = append(missing, "details.role")
	}
	if strings.TrimSpace(r.Details.Department) == "" {
		missing = append(missing, "details.department")
	}
	if strings.TrimSpace(r.Details.StartDate) == "" {
		missing = append(missing, "details.startDate")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required fields %s: %w", strings.Join(missing, ", "), ErrValidation)
	}
	return nil
}

// SameTuple reports whether both requests share wallet, type and request date
func (r CredentialRequest) SameTuple(o CredentialRequest) bool {
	return strings.EqualFold(r.SubjectWallet, o.SubjectWallet) &&
		r.CredentialType == o.CredentialType &&
		r.RequestDate.Equal(o.RequestDate)
}
