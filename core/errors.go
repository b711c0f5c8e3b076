package core

import (
	"errors"
	"fmt"
)

// Reason is the user-facing code attached to every failed email-change operation.
type Reason string

const (
	ReasonNone                     Reason = ""
	ReasonInvalidEmail             Reason = "invalid_email"
	ReasonEmailUnchanged           Reason = "email_unchanged"
	ReasonEmailInUse               Reason = "email_in_use"
	ReasonDeliveryFailed           Reason = "delivery_failed"
	ReasonInvalidChallenge         Reason = "invalid_challenge"
	ReasonAttemptsExhausted        Reason = "attempts_exhausted"
	ReasonChallengeExpired         Reason = "challenge_expired"
	ReasonReauthenticationRequired Reason = "reauthentication_required"
	ReasonInvalidCredential        Reason = "invalid_credential"
	ReasonPartialCommit            Reason = "partial_commit"
	ReasonUnreachable              Reason = "unreachable"
	ReasonNoPendingChange          Reason = "no_pending_change"
	ReasonInvalidState             Reason = "invalid_state"
	ReasonInternal                 Reason = "internal_error"
)

// Sentinel errors. Collaborators return the ones that apply to them
// (ErrEmailAlreadyInUse, ErrReauthenticationRequired, ErrInvalidCredential,
// ErrUnreachable, ErrDeliveryFailed), optionally wrapped.
var (
	ErrInvalidEmail             = errors.New("invalid email")
	ErrEmailUnchanged           = errors.New("new email is the same as current email")
	ErrEmailAlreadyInUse        = errors.New("email already in use")
	ErrDeliveryFailed           = errors.New("delivery failed")
	ErrInvalidChallenge         = errors.New("invalid challenge")
	ErrAttemptsExhausted        = errors.New("too many invalid attempts")
	ErrChallengeExpired         = errors.New("challenge expired")
	ErrReauthenticationRequired = errors.New("recent authentication required")
	ErrInvalidCredential        = errors.New("invalid credential")
	ErrPartialCommit            = errors.New("email change partially committed")
	ErrUnreachable              = errors.New("collaborator unreachable")
	ErrNoPendingChange          = errors.New("no pending email change found")
	ErrInvalidState             = errors.New("pending email change is not in the required state")
	ErrPrincipalNotFound        = errors.New("principal not found")
)

var reasonBySentinel = []struct {
	err    error
	reason Reason
}{
	{ErrPartialCommit, ReasonPartialCommit},
	{ErrInvalidEmail, ReasonInvalidEmail},
	{ErrEmailUnchanged, ReasonEmailUnchanged},
	{ErrEmailAlreadyInUse, ReasonEmailInUse},
	{ErrDeliveryFailed, ReasonDeliveryFailed},
	{ErrAttemptsExhausted, ReasonAttemptsExhausted},
	{ErrInvalidChallenge, ReasonInvalidChallenge},
	{ErrChallengeExpired, ReasonChallengeExpired},
	{ErrReauthenticationRequired, ReasonReauthenticationRequired},
	{ErrInvalidCredential, ReasonInvalidCredential},
	{ErrUnreachable, ReasonUnreachable},
	{ErrNoPendingChange, ReasonNoPendingChange},
	{ErrInvalidState, ReasonInvalidState},
}

// ReasonOf maps an error returned by Service to its reason code.
// Unknown errors map to ReasonInternal; nil maps to ReasonNone.
func ReasonOf(err error) Reason {
	if err == nil {
		return ReasonNone
	}
	for _, m := range reasonBySentinel {
		if errors.Is(err, m.err) {
			return m.reason
		}
	}
	return ReasonInternal
}

// PartialCommitError reports that the identity provider accepted the new email
// but the profile store could not be updated. RepairProfileEmail converges it.
type PartialCommitError struct {
	PrincipalID    string
	CandidateEmail string
	RepairQueued   bool
	Cause          error
}

func (e *PartialCommitError) Error() string {
	return fmt.Sprintf("email change partially committed for principal %s: identity updated to %s, profile sync failed: %v",
		e.PrincipalID, e.CandidateEmail, e.Cause)
}

func (e *PartialCommitError) Unwrap() error { return e.Cause }

func (e *PartialCommitError) Is(target error) bool { return target == ErrPartialCommit }
