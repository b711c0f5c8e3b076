package core

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// Service coordinates email ownership changes: it issues a challenge to the
// candidate address, validates the response and applies the change to the
// identity provider and then the profile store.
type Service struct {
	opts           Options
	method         VerificationMethod
	idp            IdentityProvider
	profiles       ProfileStore
	delivery       DeliveryChannel
	locker         PrincipalLocker
	repair         RepairScheduler
	events         EventLogger
	logger         *slog.Logger
	ephemeralStore EphemeralStore
	ephemeralMode  EphemeralMode
	clock          func() time.Time
	validate       *validator.Validate
}

// NewService builds a Service from opts. Zero-valued fields take the same
// defaults as Config. Collaborators are attached with the With* methods.
func NewService(opts Options) *Service {
	opts = opts.withDefaults()
	s := &Service{
		opts:          opts,
		locker:        NewLocalLocker(),
		ephemeralMode: EphemeralMemory,
		clock:         time.Now,
		validate:      validator.New(),
	}
	switch opts.Method {
	case MethodLink:
		s.method = LinkToken{Secret: opts.LinkSecret, Issuer: opts.LinkIssuer, BaseURL: opts.LinkBaseURL, TTL: opts.LinkTTL}
	default:
		s.method = CodeChallenge{Length: opts.CodeLength, TTL: opts.CodeTTL}
	}
	return s
}

// NewFromConfig validates cfg for the detected environment and builds a Service.
// Enabling the bypass code in production is a construction error.
func NewFromConfig(cfg Config) (*Service, error) {
	opts, err := cfg.Options()
	if err != nil {
		return nil, err
	}
	return NewService(opts), nil
}

func (s *Service) Options() Options { return s.opts }

// Production reports whether the service was configured for production.
func (s *Service) Production() bool { return s.opts.Production }

func (s *Service) Method() Method { return s.method.Method() }

func (s *Service) WithIdentityProvider(p IdentityProvider) *Service { s.idp = p; return s }

func (s *Service) WithProfileStore(p ProfileStore) *Service { s.profiles = p; return s }

func (s *Service) WithDeliveryChannel(d DeliveryChannel) *Service { s.delivery = d; return s }

// HasDeliveryChannel reports whether challenges are sent through a real channel.
func (s *Service) HasDeliveryChannel() bool { return s.delivery != nil }

func (s *Service) WithLocker(l PrincipalLocker) *Service {
	if l != nil {
		s.locker = l
	}
	return s
}

func (s *Service) WithRepairScheduler(r RepairScheduler) *Service { s.repair = r; return s }

func (s *Service) WithLogger(l *slog.Logger) *Service { s.logger = l; return s }

// WithClock replaces the time source. Used by tests to drive expiry.
func (s *Service) WithClock(now func() time.Time) *Service {
	if now != nil {
		s.clock = now
	}
	return s
}

// WithVerificationMethod replaces the method derived from Options.
func (s *Service) WithVerificationMethod(m VerificationMethod) *Service {
	if m != nil {
		s.method = m
	}
	return s
}

func (s *Service) now() time.Time { return s.clock() }

func (s *Service) log() *slog.Logger {
	if s.logger == nil {
		return slog.Default()
	}
	return s.logger
}

// RequestChange starts a change of principalID's email to candidateEmail.
// Any previous pending request is superseded.
func (s *Service) RequestChange(ctx context.Context, principalID, candidateEmail string) (*Handle, error) {
	candidate, err := s.normalizeEmail(candidateEmail)
	if err != nil {
		return nil, err
	}
	var h *Handle
	err = s.withPrincipal(ctx, principalID, func() error {
		current, err := s.currentEmail(ctx, principalID)
		if err != nil {
			return err
		}
		if strings.EqualFold(current, candidate) {
			return ErrEmailUnchanged
		}
		if err := s.checkAvailable(ctx, principalID, candidate); err != nil {
			return err
		}
		prev, ok, err := s.loadPending(ctx, principalID)
		if err != nil {
			return err
		}
		if ok {
			if err := s.settlePrevious(ctx, prev); err != nil {
				return err
			}
		}
		rec := &pendingRecord{
			ID:             uuid.NewString(),
			PrincipalID:    principalID,
			CurrentEmail:   current,
			CandidateEmail: candidate,
			CreatedAt:      s.now(),
		}
		h, err = s.issue(ctx, rec)
		if err != nil {
			return err
		}
		s.logEvent(ctx, EventRequested, rec, ReasonNone)
		return nil
	})
	return h, err
}

// ResendChallenge issues a fresh challenge for the candidate of the current
// request. The previous challenge stops being accepted.
func (s *Service) ResendChallenge(ctx context.Context, principalID string) (*Handle, error) {
	var h *Handle
	err := s.withPrincipal(ctx, principalID, func() error {
		rec, err := s.mustLoad(ctx, principalID)
		if err != nil {
			return err
		}
		switch {
		case rec.IdentityUpdated:
			return s.partialCommitError(rec, ErrInvalidState)
		case rec.Status == StatusCommitted:
			return ErrNoPendingChange
		case rec.Status == StatusVerified:
			return ErrInvalidState
		}
		current, err := s.currentEmail(ctx, principalID)
		if err != nil {
			return err
		}
		if strings.EqualFold(current, rec.CandidateEmail) {
			return ErrEmailUnchanged
		}
		if err := s.checkAvailable(ctx, principalID, rec.CandidateEmail); err != nil {
			return err
		}
		if rec.Status == StatusIssued {
			s.logEvent(ctx, EventSuperseded, rec, ReasonNone)
		}
		rec.CurrentEmail = current
		h, err = s.issue(ctx, rec)
		return err
	})
	return h, err
}

// VerifyChallenge checks a code for the code method. Verifying an already
// verified request returns its handle unchanged.
func (s *Service) VerifyChallenge(ctx context.Context, principalID, code string) (*Handle, error) {
	return s.verifyWith(ctx, principalID, MethodCode, strings.TrimSpace(code))
}

// ConsumeVerificationToken checks a link token for the link method. The token
// subject must be principalID.
func (s *Service) ConsumeVerificationToken(ctx context.Context, principalID, token string) (*Handle, error) {
	return s.verifyWith(ctx, principalID, MethodLink, strings.TrimSpace(token))
}

func (s *Service) verifyWith(ctx context.Context, principalID string, m Method, presented string) (*Handle, error) {
	var h *Handle
	err := s.withPrincipal(ctx, principalID, func() error {
		rec, err := s.mustLoad(ctx, principalID)
		if err != nil {
			return err
		}
		if rec.Challenge.Method != m || s.method.Method() != m {
			return ErrInvalidState
		}
		switch rec.Status {
		case StatusVerified, StatusCommitted:
			h = rec.handle()
			return nil
		case StatusExpired:
			return ErrChallengeExpired
		case StatusFailed:
			return failureErr(rec)
		}
		if expired, err := s.expireIfDue(ctx, rec); err != nil {
			return err
		} else if expired {
			return ErrChallengeExpired
		}
		if !s.matches(presented, rec) {
			return s.rejectAttempt(ctx, rec)
		}
		rec.Status = StatusVerified
		if err := s.storePending(ctx, rec); err != nil {
			return err
		}
		s.logEvent(ctx, EventVerified, rec, ReasonNone)
		h = rec.handle()
		return nil
	})
	return h, err
}

func (s *Service) matches(presented string, rec *pendingRecord) bool {
	if presented == "" {
		return false
	}
	if s.opts.AllowBypass && !s.opts.Production && rec.Challenge.Method == MethodCode && s.opts.BypassCode != "" &&
		subtle.ConstantTimeCompare([]byte(presented), []byte(s.opts.BypassCode)) == 1 {
		s.log().Warn("email change verified with bypass code", "principal_id", rec.PrincipalID)
		return true
	}
	req := ChallengeRequest{RequestID: rec.ID, PrincipalID: rec.PrincipalID, CandidateEmail: rec.CandidateEmail, Now: s.now()}
	return s.method.Match(presented, req, rec.Challenge)
}

func (s *Service) rejectAttempt(ctx context.Context, rec *pendingRecord) error {
	rec.Challenge.AttemptsLeft--
	if rec.Challenge.AttemptsLeft <= 0 {
		rec.Challenge.AttemptsLeft = 0
		rec.Status = StatusFailed
		rec.FailureReason = ReasonAttemptsExhausted
		if err := s.storePending(ctx, rec); err != nil {
			return err
		}
		s.logEvent(ctx, EventFailed, rec, ReasonAttemptsExhausted)
		return ErrAttemptsExhausted
	}
	if err := s.storePending(ctx, rec); err != nil {
		return err
	}
	return ErrInvalidChallenge
}

// Commit applies a verified change: identity provider first, then the profile
// store. A profile failure after the identity update returns *PartialCommitError.
func (s *Service) Commit(ctx context.Context, principalID string) (*Handle, error) {
	var h *Handle
	err := s.withPrincipal(ctx, principalID, func() error {
		rec, err := s.mustLoad(ctx, principalID)
		if err != nil {
			return err
		}
		switch rec.Status {
		case StatusCommitted:
			h = rec.handle()
			return nil
		case StatusIssued:
			if expired, err := s.expireIfDue(ctx, rec); err != nil {
				return err
			} else if expired {
				return ErrChallengeExpired
			}
			return ErrInvalidState
		case StatusExpired:
			return ErrChallengeExpired
		case StatusFailed:
			return failureErr(rec)
		}
		if err := s.commit(ctx, rec); err != nil {
			return err
		}
		h = rec.handle()
		return nil
	})
	return h, err
}

func (s *Service) commit(ctx context.Context, rec *pendingRecord) error {
	if !rec.IdentityUpdated {
		if err := s.checkAvailable(ctx, rec.PrincipalID, rec.CandidateEmail); err != nil {
			if errors.Is(err, ErrEmailAlreadyInUse) {
				s.fail(ctx, rec, ReasonEmailInUse)
			}
			return err
		}
	}

	// Past this point the identity provider may have applied the change, so
	// the remaining steps must not be abandoned with the caller.
	ctx = context.WithoutCancel(ctx)

	if !rec.IdentityUpdated {
		if err := s.updateIdentity(ctx, rec); err != nil {
			switch {
			case errors.Is(err, ErrEmailAlreadyInUse):
				s.fail(ctx, rec, ReasonEmailInUse)
			case errors.Is(err, ErrReauthenticationRequired):
				s.log().Info("email change needs reauthentication", "principal_id", rec.PrincipalID, "request_id", rec.ID)
			default:
				s.log().Warn("identity provider update failed", "principal_id", rec.PrincipalID, "request_id", rec.ID, "error", err)
			}
			return err
		}
		rec.IdentityUpdated = true
		if err := s.storePending(ctx, rec); err != nil {
			s.log().Error("persist identity update marker", "principal_id", rec.PrincipalID, "request_id", rec.ID, "error", err)
		}
	}

	if err := s.syncProfile(ctx, rec.PrincipalID, rec.CandidateEmail); err != nil {
		return s.partialCommit(ctx, rec, err)
	}
	rec.Status = StatusCommitted
	rec.FailureReason = ReasonNone
	if err := s.storePending(ctx, rec); err != nil {
		return err
	}
	s.logEvent(ctx, EventCommitted, rec, ReasonNone)
	return nil
}

// updateIdentity reads the provider email first so a retried commit is a no-op.
// Ambiguous failures are resolved by reading it again.
func (s *Service) updateIdentity(ctx context.Context, rec *pendingRecord) error {
	current, err := s.currentEmail(ctx, rec.PrincipalID)
	if err != nil {
		return err
	}
	if strings.EqualFold(current, rec.CandidateEmail) {
		return nil
	}
	err = s.call(ctx, func(ctx context.Context) error {
		return s.idp.UpdatePrimaryEmail(ctx, rec.PrincipalID, rec.CandidateEmail)
	})
	if err == nil || errors.Is(err, ErrReauthenticationRequired) || errors.Is(err, ErrEmailAlreadyInUse) {
		return err
	}
	if current, rerr := s.currentEmail(ctx, rec.PrincipalID); rerr == nil && strings.EqualFold(current, rec.CandidateEmail) {
		s.log().Warn("identity update reported failure but was applied", "principal_id", rec.PrincipalID, "error", err)
		return nil
	}
	return err
}

func (s *Service) partialCommit(ctx context.Context, rec *pendingRecord, cause error) error {
	pc := s.partialCommitError(rec, cause)
	if s.repair != nil {
		if err := s.repair.ScheduleProfileSync(ctx, rec.PrincipalID); err != nil {
			s.log().Error("schedule profile repair", "principal_id", rec.PrincipalID, "error", err)
		} else {
			pc.RepairQueued = true
		}
	}
	rec.FailureReason = ReasonPartialCommit
	if err := s.storePending(ctx, rec); err != nil {
		s.log().Error("persist partial commit", "principal_id", rec.PrincipalID, "request_id", rec.ID, "error", err)
	}
	s.log().Error("email change partially committed",
		"principal_id", rec.PrincipalID,
		"request_id", rec.ID,
		"previous_email", rec.CurrentEmail,
		"candidate_email", rec.CandidateEmail,
		"repair_queued", pc.RepairQueued,
		"error", cause,
	)
	s.logEvent(ctx, EventPartialCommit, rec, ReasonPartialCommit)
	return pc
}

func (s *Service) partialCommitError(rec *pendingRecord, cause error) *PartialCommitError {
	return &PartialCommitError{PrincipalID: rec.PrincipalID, CandidateEmail: rec.CandidateEmail, Cause: cause}
}

func (s *Service) fail(ctx context.Context, rec *pendingRecord, reason Reason) {
	rec.Status = StatusFailed
	rec.FailureReason = reason
	if err := s.storePending(ctx, rec); err != nil {
		s.log().Error("persist failed email change", "principal_id", rec.PrincipalID, "error", err)
	}
	s.logEvent(ctx, EventFailed, rec, reason)
}

// Cancel discards an Issued or Verified request. Terminal and missing records
// are left alone. Once the identity provider holds the new email only repair
// can converge, so cancel is refused.
func (s *Service) Cancel(ctx context.Context, principalID string) error {
	return s.withPrincipal(ctx, principalID, func() error {
		rec, ok, err := s.loadPending(ctx, principalID)
		if err != nil || !ok {
			return err
		}
		if rec.Status.Terminal() {
			return nil
		}
		if rec.IdentityUpdated {
			return s.partialCommitError(rec, ErrInvalidState)
		}
		if err := s.deletePending(ctx, principalID); err != nil {
			return err
		}
		s.logEvent(ctx, EventCancelled, rec, ReasonNone)
		return nil
	})
}

// GetStatus returns the current request for principalID, or nil if there is none.
func (s *Service) GetStatus(ctx context.Context, principalID string) (*PendingEmailChange, error) {
	var view *PendingEmailChange
	err := s.withPrincipal(ctx, principalID, func() error {
		rec, ok, err := s.loadPending(ctx, principalID)
		if err != nil || !ok {
			return err
		}
		if _, err := s.expireIfDue(ctx, rec); err != nil {
			return err
		}
		view = rec.view()
		return nil
	})
	return view, err
}

// Reauthenticate refreshes the principal's sign-in with the identity provider
// so a commit that needed reauthentication can be retried.
func (s *Service) Reauthenticate(ctx context.Context, principalID, credential string) error {
	if strings.TrimSpace(principalID) == "" {
		return ErrPrincipalNotFound
	}
	if s.idp == nil {
		return fmt.Errorf("identity provider not configured")
	}
	if credential == "" {
		return ErrInvalidCredential
	}
	return s.call(ctx, func(ctx context.Context) error {
		return s.idp.Reauthenticate(ctx, principalID, credential)
	})
}

// RepairProfileEmail copies the identity provider email into the profile store.
// It is idempotent and completes a partially committed request.
func (s *Service) RepairProfileEmail(ctx context.Context, principalID string) error {
	return s.withPrincipal(ctx, principalID, func() error {
		email, err := s.currentEmail(ctx, principalID)
		if err != nil {
			return err
		}
		if err := s.syncProfile(ctx, principalID, email); err != nil {
			return err
		}
		rec, ok, err := s.loadPending(ctx, principalID)
		if err != nil || !ok {
			return err
		}
		if rec.Status != StatusVerified || !rec.IdentityUpdated || !strings.EqualFold(email, rec.CandidateEmail) {
			return nil
		}
		rec.Status = StatusCommitted
		rec.FailureReason = ReasonNone
		if err := s.storePending(ctx, rec); err != nil {
			return err
		}
		s.logEvent(ctx, EventRepaired, rec, ReasonNone)
		return nil
	})
}

// ReconcileProfiles repairs up to limit principals reported by lister and
// returns how many were repaired.
func (s *Service) ReconcileProfiles(ctx context.Context, lister DivergenceLister, limit int) (int, error) {
	if lister == nil {
		return 0, fmt.Errorf("divergence lister not configured")
	}
	ids, err := lister.ListDivergedPrincipals(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("list diverged principals: %w", err)
	}
	var errs []error
	repaired := 0
	for _, id := range ids {
		if err := s.RepairProfileEmail(ctx, id); err != nil {
			errs = append(errs, fmt.Errorf("repair %s: %w", id, err))
			continue
		}
		repaired++
	}
	if repaired > 0 {
		s.log().Info("reconciled profile emails", "repaired", repaired, "failed", len(errs))
	}
	return repaired, errors.Join(errs...)
}

// settlePrevious handles the record a new request supersedes. A partially
// committed record is repaired first so the profile is not left behind.
func (s *Service) settlePrevious(ctx context.Context, prev *pendingRecord) error {
	if prev.Status == StatusVerified && prev.IdentityUpdated {
		if err := s.syncProfile(ctx, prev.PrincipalID, prev.CandidateEmail); err != nil {
			return s.partialCommitError(prev, err)
		}
		prev.Status = StatusCommitted
		s.logEvent(ctx, EventRepaired, prev, ReasonNone)
		return nil
	}
	if !prev.Status.Terminal() {
		s.logEvent(ctx, EventSuperseded, prev, ReasonNone)
	}
	return nil
}

// issue generates a new challenge for rec, persists it and delivers it.
// The record is stored before delivery so a failed send can be retried.
func (s *Service) issue(ctx context.Context, rec *pendingRecord) (*Handle, error) {
	c, payload, secret, err := s.method.Issue(ChallengeRequest{
		RequestID:      rec.ID,
		PrincipalID:    rec.PrincipalID,
		CandidateEmail: rec.CandidateEmail,
		Now:            s.now(),
	})
	if err != nil {
		return nil, fmt.Errorf("issue challenge: %w", err)
	}
	c.AttemptsLeft = s.opts.MaxAttempts
	rec.Challenge = c
	rec.Status = StatusIssued
	rec.FailureReason = ReasonNone
	rec.Delivered = false
	rec.IdentityUpdated = false
	if err := s.storePending(ctx, rec); err != nil {
		return nil, err
	}
	if err := s.deliver(ctx, rec, payload); err != nil {
		return nil, err
	}
	rec.Delivered = true
	if err := s.storePending(ctx, rec); err != nil {
		return nil, err
	}
	h := rec.handle()
	if s.opts.ExposeChallenge && !s.opts.Production {
		h.DevSecret = secret
	}
	return h, nil
}

func (s *Service) deliver(ctx context.Context, rec *pendingRecord, p Payload) error {
	if s.opts.UseNativeLink && rec.Challenge.Method == MethodLink {
		if native, ok := s.idp.(NativeLinkSender); ok {
			err := s.call(ctx, func(ctx context.Context) error {
				return native.SendNativeVerificationLink(ctx, rec.PrincipalID, rec.CandidateEmail, p.VerificationURL)
			})
			if err != nil {
				s.log().Warn("native verification link failed", "principal_id", rec.PrincipalID, "error", err)
				return fmt.Errorf("%w: %w", ErrDeliveryFailed, err)
			}
			return nil
		}
	}
	if s.delivery == nil {
		if s.opts.Production {
			return fmt.Errorf("%w: no delivery channel configured", ErrDeliveryFailed)
		}
		s.log().Info("[emailchange/dev-email] email change challenge",
			"to", rec.CandidateEmail, "principal_id", rec.PrincipalID, "code", p.Code, "url", p.VerificationURL)
		return nil
	}
	err := s.call(ctx, func(ctx context.Context) error {
		return s.delivery.Deliver(ctx, rec.CandidateEmail, p)
	})
	if err != nil {
		s.log().Warn("email change delivery failed", "principal_id", rec.PrincipalID, "request_id", rec.ID, "error", err)
		return fmt.Errorf("%w: %w", ErrDeliveryFailed, err)
	}
	return nil
}

// checkAvailable fails with ErrEmailAlreadyInUse when email belongs to a
// different principal in either the identity provider or the profile store.
func (s *Service) checkAvailable(ctx context.Context, principalID, email string) error {
	var owner string
	var found bool
	err := s.call(ctx, func(ctx context.Context) error {
		var err error
		owner, found, err = s.idp.LookupByEmail(ctx, email)
		return err
	})
	if err != nil {
		return fmt.Errorf("lookup identity email: %w", err)
	}
	if found && owner != principalID {
		return ErrEmailAlreadyInUse
	}
	err = s.call(ctx, func(ctx context.Context) error {
		var err error
		owner, found, err = s.profiles.FindByEmail(ctx, email)
		return err
	})
	if err != nil {
		return fmt.Errorf("lookup profile email: %w", err)
	}
	if found && owner != principalID {
		return ErrEmailAlreadyInUse
	}
	return nil
}

func (s *Service) currentEmail(ctx context.Context, principalID string) (string, error) {
	var email string
	err := s.call(ctx, func(ctx context.Context) error {
		var err error
		email, err = s.idp.CurrentEmail(ctx, principalID)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("read identity email: %w", err)
	}
	return email, nil
}

func (s *Service) syncProfile(ctx context.Context, principalID, email string) error {
	var p *Profile
	err := s.call(ctx, func(ctx context.Context) error {
		var err error
		p, err = s.profiles.GetProfile(ctx, principalID)
		return err
	})
	if err != nil {
		return fmt.Errorf("read profile: %w", err)
	}
	if p != nil && strings.EqualFold(p.Email, email) {
		return nil
	}
	err = s.call(ctx, func(ctx context.Context) error {
		return s.profiles.MergeProfile(ctx, principalID, ProfileFields{Email: &email})
	})
	if err != nil {
		return fmt.Errorf("merge profile email: %w", err)
	}
	return nil
}

func (s *Service) mustLoad(ctx context.Context, principalID string) (*pendingRecord, error) {
	rec, ok, err := s.loadPending(ctx, principalID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNoPendingChange
	}
	return rec, nil
}

func failureErr(rec *pendingRecord) error {
	switch rec.FailureReason {
	case ReasonAttemptsExhausted:
		return ErrAttemptsExhausted
	case ReasonEmailInUse:
		return ErrEmailAlreadyInUse
	}
	return ErrInvalidState
}

func (s *Service) withPrincipal(ctx context.Context, principalID string, fn func() error) error {
	if strings.TrimSpace(principalID) == "" {
		return ErrPrincipalNotFound
	}
	if s.idp == nil || s.profiles == nil {
		return fmt.Errorf("identity provider and profile store must be configured")
	}
	unlock, err := s.locker.Lock(ctx, principalID)
	if err != nil {
		return fmt.Errorf("lock principal: %w", err)
	}
	defer unlock()
	return fn()
}

// call runs fn with the per-call timeout. Errors that are not domain
// sentinels mean the collaborator could not be reached.
func (s *Service) call(ctx context.Context, fn func(context.Context) error) error {
	timeout := s.opts.CallTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	err := fn(cctx)
	if err == nil || isDomainErr(err) {
		return err
	}
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		return err
	}
	return fmt.Errorf("%w: %w", ErrUnreachable, err)
}

func isDomainErr(err error) bool {
	if errors.Is(err, ErrPrincipalNotFound) {
		return true
	}
	for _, m := range reasonBySentinel {
		if errors.Is(err, m.err) {
			return true
		}
	}
	return false
}

func (s *Service) normalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" || len(email) > 254 {
		return "", ErrInvalidEmail
	}
	if err := s.validate.Var(email, "required,email"); err != nil {
		return "", ErrInvalidEmail
	}
	return email, nil
}

// IsDevEnvironment reports whether ENV/APP_ENV/ENVIRONMENT name a non-production environment.
func IsDevEnvironment() bool { return isDevEnvironment(getEnvironment()) }

// getEnvironment reads the environment from ENV, APP_ENV, or ENVIRONMENT variables
func getEnvironment() string {
	env := os.Getenv("ENV")
	if env == "" {
		env = os.Getenv("APP_ENV")
	}
	if env == "" {
		env = os.Getenv("ENVIRONMENT")
	}
	return env
}

// isDevEnvironment returns true unless the environment is explicitly set to prod/production
func isDevEnvironment(env string) bool {
	e := strings.ToLower(strings.TrimSpace(env))
	return e != "prod" && e != "production"
}
