package core

import (
	"context"
	"time"
)

// IdentityProvider holds the authoritative login email of a principal.
type IdentityProvider interface {
	CurrentEmail(ctx context.Context, principalID string) (string, error)
	// LookupByEmail returns the principal bound to email, if any.
	LookupByEmail(ctx context.Context, email string) (principalID string, found bool, err error)
	// UpdatePrimaryEmail returns ErrReauthenticationRequired when the principal's
	// last sign-in is too old and ErrEmailAlreadyInUse on collision.
	UpdatePrimaryEmail(ctx context.Context, principalID, newEmail string) error
	// Reauthenticate returns ErrInvalidCredential on a bad credential.
	Reauthenticate(ctx context.Context, principalID, credential string) error
}

// NativeLinkSender is optionally implemented by identity providers that can send
// their own verification link for a new address.
type NativeLinkSender interface {
	SendNativeVerificationLink(ctx context.Context, principalID, newEmail, returnURL string) error
}

// Profile is the denormalized user record kept in the profile store.
type Profile struct {
	PrincipalID string
	Email       string
	DisplayName string
	Phone       string
	Address     string
	PhotoURL    string
	UpdatedAt   time.Time
}

// ProfileFields is a partial update; only non-nil fields are written.
type ProfileFields struct {
	Email       *string
	DisplayName *string
	Phone       *string
	Address     *string
	PhotoURL    *string
}

// ProfileStore is the document store holding the denormalized profile.
type ProfileStore interface {
	// GetProfile returns (nil, nil) when no profile exists.
	GetProfile(ctx context.Context, principalID string) (*Profile, error)
	// MergeProfile upserts the given fields. Unreachable stores return ErrUnreachable.
	MergeProfile(ctx context.Context, principalID string, fields ProfileFields) error
	FindByEmail(ctx context.Context, email string) (principalID string, found bool, err error)
}

// Payload is what the delivery channel sends: either a code or a verification URL.
type Payload struct {
	Code            string
	VerificationURL string
	ExpiresAt       time.Time
}

// DeliveryChannel delivers a challenge to an address.
type DeliveryChannel interface {
	Deliver(ctx context.Context, to string, p Payload) error
}

// RepairScheduler queues an asynchronous profile re-sync after a partial commit.
type RepairScheduler interface {
	ScheduleProfileSync(ctx context.Context, principalID string) error
}

// DivergenceLister reports principals whose profile email differs from the
// identity provider email.
type DivergenceLister interface {
	ListDivergedPrincipals(ctx context.Context, limit int) ([]string, error)
}

// Provider is the surface used by the HTTP adapters. It is implemented by *Service.
type Provider interface {
	RequestChange(ctx context.Context, principalID, candidateEmail string) (*Handle, error)
	ResendChallenge(ctx context.Context, principalID string) (*Handle, error)
	VerifyChallenge(ctx context.Context, principalID, code string) (*Handle, error)
	ConsumeVerificationToken(ctx context.Context, principalID, token string) (*Handle, error)
	Commit(ctx context.Context, principalID string) (*Handle, error)
	Cancel(ctx context.Context, principalID string) error
	GetStatus(ctx context.Context, principalID string) (*PendingEmailChange, error)
	Reauthenticate(ctx context.Context, principalID, credential string) error
	RepairProfileEmail(ctx context.Context, principalID string) error
	Method() Method
}
