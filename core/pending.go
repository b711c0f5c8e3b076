package core

import "time"

// Status of a pending email change.
type Status string

const (
	StatusIssued    Status = "issued"
	StatusVerified  Status = "verified"
	StatusCommitted Status = "committed"
	StatusExpired   Status = "expired"
	StatusFailed    Status = "failed"
)

// Terminal reports whether no further transition is possible without a new request.
func (s Status) Terminal() bool {
	return s == StatusCommitted || s == StatusExpired || s == StatusFailed
}

// Method selects how ownership of the candidate address is proven.
type Method string

const (
	MethodCode Method = "code"
	MethodLink Method = "link"
)

// PendingEmailChange is the caller-visible view of a pending request.
// It never carries the challenge secret.
type PendingEmailChange struct {
	ID              string    `json:"id"`
	PrincipalID     string    `json:"principal_id"`
	CurrentEmail    string    `json:"current_email"`
	CandidateEmail  string    `json:"candidate_email"`
	Method          Method    `json:"method"`
	Status          Status    `json:"status"`
	FailureReason   Reason    `json:"failure_reason,omitempty"`
	AttemptsLeft    int       `json:"attempts_left"`
	Delivered       bool      `json:"delivered"`
	IdentityUpdated bool      `json:"identity_updated"`
	CreatedAt       time.Time `json:"created_at"`
	ExpiresAt       time.Time `json:"expires_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Handle is returned by the mutating operations. DevSecret is only populated
// when ExposeChallenge is enabled outside production.
type Handle struct {
	ID        string    `json:"id"`
	Status    Status    `json:"status"`
	Method    Method    `json:"method"`
	ExpiresAt time.Time `json:"expires_at"`
	DevSecret string    `json:"dev_secret,omitempty"`
}

// Challenge is the persisted secret half of a pending change.
type Challenge struct {
	Method       Method    `json:"method"`
	SecretHash   string    `json:"secret_hash"`
	ExpiresAt    time.Time `json:"expires_at"`
	AttemptsLeft int       `json:"attempts_left"`
}

// pendingRecord is the stored form of a pending change.
type pendingRecord struct {
	ID              string    `json:"id"`
	PrincipalID     string    `json:"principal_id"`
	CurrentEmail    string    `json:"current_email"`
	CandidateEmail  string    `json:"candidate_email"`
	Challenge       Challenge `json:"challenge"`
	Status          Status    `json:"status"`
	FailureReason   Reason    `json:"failure_reason,omitempty"`
	Delivered       bool      `json:"delivered"`
	IdentityUpdated bool      `json:"identity_updated"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func (r *pendingRecord) view() *PendingEmailChange {
	return &PendingEmailChange{
		ID:              r.ID,
		PrincipalID:     r.PrincipalID,
		CurrentEmail:    r.CurrentEmail,
		CandidateEmail:  r.CandidateEmail,
		Method:          r.Challenge.Method,
		Status:          r.Status,
		FailureReason:   r.FailureReason,
		AttemptsLeft:    r.Challenge.AttemptsLeft,
		Delivered:       r.Delivered,
		IdentityUpdated: r.IdentityUpdated,
		CreatedAt:       r.CreatedAt,
		ExpiresAt:       r.Challenge.ExpiresAt,
		UpdatedAt:       r.UpdatedAt,
	}
}

func (r *pendingRecord) handle() *Handle {
	return &Handle{
		ID:        r.ID,
		Status:    r.Status,
		Method:    r.Challenge.Method,
		ExpiresAt: r.Challenge.ExpiresAt,
	}
}
