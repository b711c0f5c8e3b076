package core_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/open-rails/emailchange/core"
	memorystore "github.com/open-rails/emailchange/storage/memory"
	sqlitestore "github.com/open-rails/emailchange/storage/sqlite"
)

func TestEmailChangeHappyPath(t *testing.T) {
	ctx := context.Background()
	stores := map[string]func(t *testing.T) core.EphemeralStore{
		"memory": func(t *testing.T) core.EphemeralStore { return nil },
		"sqlite": func(t *testing.T) core.EphemeralStore {
			kv, err := sqlitestore.Open(ctx, ":memory:")
			require.NoError(t, err)
			t.Cleanup(func() { _ = kv.Close() })
			return kv
		},
	}
	for name, mk := range stores {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, mk(t))
			f.addPrincipal(t, "u1", "alice@example.com")

			h, err := f.svc.RequestChange(ctx, "u1", "  Alice.New@Example.com ")
			require.NoError(t, err)
			require.Equal(t, core.StatusIssued, h.Status)
			require.Equal(t, core.MethodCode, h.Method)
			require.Empty(t, h.DevSecret)
			require.Zero(t, f.mail.Count("alice@example.com"), "challenge must only go to the candidate")

			code := f.lastCode(t, "alice.new@example.com")
			h, err = f.svc.VerifyChallenge(ctx, "u1", code)
			require.NoError(t, err)
			require.Equal(t, core.StatusVerified, h.Status)

			h, err = f.svc.Commit(ctx, "u1")
			require.NoError(t, err)
			require.Equal(t, core.StatusCommitted, h.Status)

			require.Equal(t, "alice.new@example.com", f.identityEmail(t, "u1"))
			require.Equal(t, "alice.new@example.com", f.profileEmail(t, "u1"))

			st, err := f.svc.GetStatus(ctx, "u1")
			require.NoError(t, err)
			require.Equal(t, core.StatusCommitted, st.Status)
			require.Equal(t, "alice@example.com", st.CurrentEmail)
			require.True(t, st.IdentityUpdated)

			// Both verify and commit are idempotent once done.
			h, err = f.svc.Commit(ctx, "u1")
			require.NoError(t, err)
			require.Equal(t, core.StatusCommitted, h.Status)
			_, err = f.svc.VerifyChallenge(ctx, "u1", code)
			require.NoError(t, err)
		})
	}
}

func TestRequestChangeRejectsInvalidAndUnchanged(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.addPrincipal(t, "u1", "alice@example.com")

	_, err := f.svc.RequestChange(ctx, "u1", "not-an-email")
	require.ErrorIs(t, err, core.ErrInvalidEmail)
	require.Equal(t, core.ReasonInvalidEmail, core.ReasonOf(err))

	_, err = f.svc.RequestChange(ctx, "u1", "ALICE@example.com")
	require.ErrorIs(t, err, core.ErrEmailUnchanged)
	require.Equal(t, core.ReasonEmailUnchanged, core.ReasonOf(err))

	_, err = f.svc.RequestChange(ctx, "", "new@example.com")
	require.ErrorIs(t, err, core.ErrPrincipalNotFound)
}

func TestRequestChangeCollisionDeliversNothing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.addPrincipal(t, "u1", "alice@example.com")
	f.addPrincipal(t, "u2", "bob@example.com")
	profileOnly := "carol@example.com"
	require.NoError(t, f.profiles.ProfileStore.MergeProfile(ctx, "u3", core.ProfileFields{Email: &profileOnly}))

	for _, taken := range []string{"bob@example.com", profileOnly} {
		_, err := f.svc.RequestChange(ctx, "u1", taken)
		require.ErrorIs(t, err, core.ErrEmailAlreadyInUse)
		require.Equal(t, core.ReasonEmailInUse, core.ReasonOf(err))
		require.Zero(t, f.mail.Count(taken))
	}
	st, err := f.svc.GetStatus(ctx, "u1")
	require.NoError(t, err)
	require.Nil(t, st)
}

func TestRequestChangeSupersedesPreviousChallenge(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.addPrincipal(t, "u1", "alice@example.com")

	first, err := f.svc.RequestChange(ctx, "u1", "first@example.com")
	require.NoError(t, err)
	staleCode := f.lastCode(t, "first@example.com")

	second, err := f.svc.RequestChange(ctx, "u1", "second@example.com")
	require.NoError(t, err)
	require.NotEqual(t, first.ID, second.ID)

	_, err = f.svc.VerifyChallenge(ctx, "u1", staleCode)
	require.ErrorIs(t, err, core.ErrInvalidChallenge)

	_, err = f.svc.VerifyChallenge(ctx, "u1", f.lastCode(t, "second@example.com"))
	require.NoError(t, err)
	_, err = f.svc.Commit(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, "second@example.com", f.identityEmail(t, "u1"))
	require.Equal(t, "second@example.com", f.profileEmail(t, "u1"))
}

func TestVerifyAfterExpiryFailsEvenWithCorrectCode(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.addPrincipal(t, "u1", "alice@example.com")

	_, err := f.svc.RequestChange(ctx, "u1", "new@example.com")
	require.NoError(t, err)
	code := f.lastCode(t, "new@example.com")

	f.clock.Advance(5*time.Minute + time.Second)

	_, err = f.svc.VerifyChallenge(ctx, "u1", code)
	require.ErrorIs(t, err, core.ErrChallengeExpired)
	require.Equal(t, core.ReasonChallengeExpired, core.ReasonOf(err))

	st, err := f.svc.GetStatus(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, core.StatusExpired, st.Status)
	require.Equal(t, core.ReasonChallengeExpired, st.FailureReason)

	_, err = f.svc.Commit(ctx, "u1")
	require.ErrorIs(t, err, core.ErrChallengeExpired)
	require.Equal(t, "alice@example.com", f.identityEmail(t, "u1"))
}

func TestGetStatusReportsExpiry(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.addPrincipal(t, "u1", "alice@example.com")

	_, err := f.svc.RequestChange(ctx, "u1", "new@example.com")
	require.NoError(t, err)

	st, err := f.svc.GetStatus(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, core.StatusIssued, st.Status)
	require.Equal(t, 5, st.AttemptsLeft)
	require.True(t, st.Delivered)

	f.clock.Advance(10 * time.Minute)
	st, err = f.svc.GetStatus(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, core.StatusExpired, st.Status)
}

func TestAttemptsExhaustedForcesReissue(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.addPrincipal(t, "u1", "alice@example.com")

	_, err := f.svc.RequestChange(ctx, "u1", "new@example.com")
	require.NoError(t, err)
	code := f.lastCode(t, "new@example.com")

	for i := 0; i < 4; i++ {
		_, err = f.svc.VerifyChallenge(ctx, "u1", "999999")
		require.ErrorIs(t, err, core.ErrInvalidChallenge)
	}
	_, err = f.svc.VerifyChallenge(ctx, "u1", "999999")
	require.ErrorIs(t, err, core.ErrAttemptsExhausted)

	_, err = f.svc.VerifyChallenge(ctx, "u1", code)
	require.ErrorIs(t, err, core.ErrAttemptsExhausted)

	st, err := f.svc.GetStatus(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, core.StatusFailed, st.Status)
	require.Equal(t, core.ReasonAttemptsExhausted, st.FailureReason)

	h, err := f.svc.ResendChallenge(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, core.StatusIssued, h.Status)
	_, err = f.svc.VerifyChallenge(ctx, "u1", f.lastCode(t, "new@example.com"))
	require.NoError(t, err)
}

func TestUniquenessRaceOnlyOneCommitWins(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.addPrincipal(t, "u1", "alice@example.com")
	f.addPrincipal(t, "u2", "bob@example.com")

	target := "shared@example.com"
	_, err := f.svc.RequestChange(ctx, "u1", target)
	require.NoError(t, err)
	_, err = f.svc.VerifyChallenge(ctx, "u1", f.lastCode(t, target))
	require.NoError(t, err)
	_, err = f.svc.RequestChange(ctx, "u2", target)
	require.NoError(t, err)
	_, err = f.svc.VerifyChallenge(ctx, "u2", f.lastCode(t, target))
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(map[string]error)
	var mu sync.Mutex
	for _, id := range []string{"u1", "u2"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := f.svc.Commit(ctx, id)
			mu.Lock()
			errs[id] = err
			mu.Unlock()
		}(id)
	}
	wg.Wait()

	winners := 0
	for id, err := range errs {
		if err == nil {
			winners++
			require.Equal(t, target, f.identityEmail(t, id))
			require.Equal(t, target, f.profileEmail(t, id))
			continue
		}
		require.ErrorIs(t, err, core.ErrEmailAlreadyInUse)
		st, serr := f.svc.GetStatus(ctx, id)
		require.NoError(t, serr)
		require.Equal(t, core.StatusFailed, st.Status)
		require.Equal(t, core.ReasonEmailInUse, st.FailureReason)
		require.NotEqual(t, target, f.identityEmail(t, id))
	}
	require.Equal(t, 1, winners)
}

func TestPartialCommitThenRepair(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.addPrincipal(t, "u1", "alice@example.com")

	_, err := f.svc.RequestChange(ctx, "u1", "new@example.com")
	require.NoError(t, err)
	_, err = f.svc.VerifyChallenge(ctx, "u1", f.lastCode(t, "new@example.com"))
	require.NoError(t, err)

	f.profiles.fail.Store(true)
	_, err = f.svc.Commit(ctx, "u1")
	require.ErrorIs(t, err, core.ErrPartialCommit)
	require.Equal(t, core.ReasonPartialCommit, core.ReasonOf(err))
	var pc *core.PartialCommitError
	require.True(t, errors.As(err, &pc))
	require.True(t, pc.RepairQueued)
	require.Equal(t, "new@example.com", pc.CandidateEmail)
	require.Equal(t, []string{"u1"}, f.repair.ids)

	require.Equal(t, "new@example.com", f.identityEmail(t, "u1"))
	require.Equal(t, "alice@example.com", f.profileEmail(t, "u1"))

	st, err := f.svc.GetStatus(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, core.StatusVerified, st.Status)
	require.True(t, st.IdentityUpdated)
	require.Equal(t, core.ReasonPartialCommit, st.FailureReason)

	err = f.svc.Cancel(ctx, "u1")
	require.ErrorIs(t, err, core.ErrPartialCommit)

	// Still failing: repair reports it and changes nothing.
	require.Error(t, f.svc.RepairProfileEmail(ctx, "u1"))

	f.profiles.fail.Store(false)
	require.NoError(t, f.svc.RepairProfileEmail(ctx, "u1"))
	require.Equal(t, "new@example.com", f.profileEmail(t, "u1"))

	st, err = f.svc.GetStatus(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, core.StatusCommitted, st.Status)

	require.NoError(t, f.svc.RepairProfileEmail(ctx, "u1"))
}

func TestCommitRetryAfterPartialCommitSkipsIdentityUpdate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.svc.WithRepairScheduler(nil)
	f.addPrincipal(t, "u1", "alice@example.com")

	_, err := f.svc.RequestChange(ctx, "u1", "new@example.com")
	require.NoError(t, err)
	_, err = f.svc.VerifyChallenge(ctx, "u1", f.lastCode(t, "new@example.com"))
	require.NoError(t, err)

	f.profiles.fail.Store(true)
	_, err = f.svc.Commit(ctx, "u1")
	var pc *core.PartialCommitError
	require.True(t, errors.As(err, &pc))
	require.False(t, pc.RepairQueued)

	f.profiles.fail.Store(false)
	h, err := f.svc.Commit(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, core.StatusCommitted, h.Status)
	require.Equal(t, "new@example.com", f.profileEmail(t, "u1"))
}

func TestCommitRequiresReauthentication(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.ids.RecentAuth = time.Minute
	f.addPrincipal(t, "u1", "alice@example.com")

	_, err := f.svc.RequestChange(ctx, "u1", "new@example.com")
	require.NoError(t, err)
	_, err = f.svc.VerifyChallenge(ctx, "u1", f.lastCode(t, "new@example.com"))
	require.NoError(t, err)

	f.ids.ExpireAuth("u1")
	_, err = f.svc.Commit(ctx, "u1")
	require.ErrorIs(t, err, core.ErrReauthenticationRequired)
	require.Equal(t, core.ReasonReauthenticationRequired, core.ReasonOf(err))

	st, err := f.svc.GetStatus(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, core.StatusVerified, st.Status)
	require.False(t, st.IdentityUpdated)
	require.Equal(t, "alice@example.com", f.profileEmail(t, "u1"))

	err = f.svc.Reauthenticate(ctx, "u1", "wrong")
	require.ErrorIs(t, err, core.ErrInvalidCredential)
	require.NoError(t, f.svc.Reauthenticate(ctx, "u1", "secret-u1"))

	h, err := f.svc.Commit(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, core.StatusCommitted, h.Status)
	require.Equal(t, "new@example.com", f.identityEmail(t, "u1"))
}

func TestProductionRejectsFixedCode(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, production)
	f.addPrincipal(t, "u1", "alice@example.com")

	h, err := f.svc.RequestChange(ctx, "u1", "new@example.com")
	require.NoError(t, err)
	require.Empty(t, h.DevSecret)

	_, err = f.svc.VerifyChallenge(ctx, "u1", "000000")
	require.ErrorIs(t, err, core.ErrInvalidChallenge)

	_, err = core.NewFromConfig(core.Config{Environment: "production", AllowBypass: true, BypassCode: "000000"})
	require.Error(t, err)
}

func TestBypassCodeOutsideProduction(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, func(cfg *core.Config) {
		cfg.AllowBypass = true
		cfg.BypassCode = "000000"
		cfg.ExposeChallenge = true
	})
	f.addPrincipal(t, "u1", "alice@example.com")

	h, err := f.svc.RequestChange(ctx, "u1", "new@example.com")
	require.NoError(t, err)
	require.Equal(t, f.lastCode(t, "new@example.com"), h.DevSecret)

	h, err = f.svc.VerifyChallenge(ctx, "u1", "000000")
	require.NoError(t, err)
	require.Equal(t, core.StatusVerified, h.Status)
}

func TestLinkTokenFlow(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, linkMethod)
	f.addPrincipal(t, "u1", "alice@example.com")
	f.addPrincipal(t, "u2", "bob@example.com")
	require.Equal(t, core.MethodLink, f.svc.Method())

	h, err := f.svc.RequestChange(ctx, "u1", "alice2@example.com")
	require.NoError(t, err)
	require.Equal(t, core.MethodLink, h.Method)
	stale := f.lastToken(t, "alice2@example.com")

	_, err = f.svc.ResendChallenge(ctx, "u1")
	require.NoError(t, err)
	token := f.lastToken(t, "alice2@example.com")
	require.NotEqual(t, stale, token)

	_, err = f.svc.RequestChange(ctx, "u2", "bob2@example.com")
	require.NoError(t, err)

	// A token is bound to the principal it was issued for.
	_, err = f.svc.ConsumeVerificationToken(ctx, "u2", token)
	require.ErrorIs(t, err, core.ErrInvalidChallenge)

	_, err = f.svc.ConsumeVerificationToken(ctx, "u1", stale)
	require.ErrorIs(t, err, core.ErrInvalidChallenge)

	_, err = f.svc.VerifyChallenge(ctx, "u1", "123456")
	require.ErrorIs(t, err, core.ErrInvalidState)

	h, err = f.svc.ConsumeVerificationToken(ctx, "u1", token)
	require.NoError(t, err)
	require.Equal(t, core.StatusVerified, h.Status)

	_, err = f.svc.Commit(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, "alice2@example.com", f.identityEmail(t, "u1"))
	require.Equal(t, "alice2@example.com", f.profileEmail(t, "u1"))
}

func TestLinkTokenExpires(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, linkMethod)
	f.addPrincipal(t, "u1", "alice@example.com")

	_, err := f.svc.RequestChange(ctx, "u1", "alice2@example.com")
	require.NoError(t, err)
	token := f.lastToken(t, "alice2@example.com")

	f.clock.Advance(time.Hour + time.Second)
	_, err = f.svc.ConsumeVerificationToken(ctx, "u1", token)
	require.ErrorIs(t, err, core.ErrChallengeExpired)
}

func TestCancel(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.addPrincipal(t, "u1", "alice@example.com")

	require.NoError(t, f.svc.Cancel(ctx, "u1"))

	_, err := f.svc.RequestChange(ctx, "u1", "new@example.com")
	require.NoError(t, err)
	code := f.lastCode(t, "new@example.com")
	require.NoError(t, f.svc.Cancel(ctx, "u1"))

	st, err := f.svc.GetStatus(ctx, "u1")
	require.NoError(t, err)
	require.Nil(t, st)

	_, err = f.svc.VerifyChallenge(ctx, "u1", code)
	require.ErrorIs(t, err, core.ErrNoPendingChange)
	_, err = f.svc.Commit(ctx, "u1")
	require.ErrorIs(t, err, core.ErrNoPendingChange)
	require.Equal(t, "alice@example.com", f.identityEmail(t, "u1"))
}

func TestCommitBeforeVerifyIsRejected(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.addPrincipal(t, "u1", "alice@example.com")

	_, err := f.svc.RequestChange(ctx, "u1", "new@example.com")
	require.NoError(t, err)
	_, err = f.svc.Commit(ctx, "u1")
	require.ErrorIs(t, err, core.ErrInvalidState)
	require.Equal(t, "alice@example.com", f.identityEmail(t, "u1"))
}

func TestDeliveryFailureKeepsRecordForResend(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.addPrincipal(t, "u1", "alice@example.com")

	f.mail.SetErr(errors.New("smtp down"))
	_, err := f.svc.RequestChange(ctx, "u1", "new@example.com")
	require.ErrorIs(t, err, core.ErrDeliveryFailed)
	require.Equal(t, core.ReasonDeliveryFailed, core.ReasonOf(err))

	st, err := f.svc.GetStatus(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, core.StatusIssued, st.Status)
	require.False(t, st.Delivered)

	f.mail.SetErr(nil)
	_, err = f.svc.ResendChallenge(ctx, "u1")
	require.NoError(t, err)
	st, err = f.svc.GetStatus(ctx, "u1")
	require.NoError(t, err)
	require.True(t, st.Delivered)
	_, err = f.svc.VerifyChallenge(ctx, "u1", f.lastCode(t, "new@example.com"))
	require.NoError(t, err)
}

func TestResendWithoutPendingChange(t *testing.T) {
	f := newFixture(t, nil)
	f.addPrincipal(t, "u1", "alice@example.com")
	_, err := f.svc.ResendChallenge(context.Background(), "u1")
	require.ErrorIs(t, err, core.ErrNoPendingChange)
	require.Equal(t, core.ReasonNoPendingChange, core.ReasonOf(err))
}

// hangingIdentity never answers reads.
type hangingIdentity struct{ *memorystore.IdentityStore }

func (h hangingIdentity) CurrentEmail(ctx context.Context, _ string) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func TestUnreachableIdentityProvider(t *testing.T) {
	f := newFixture(t, nil, func(cfg *core.Config) { cfg.CallTimeout = 20 * time.Millisecond })
	f.addPrincipal(t, "u1", "alice@example.com")
	f.svc.WithIdentityProvider(hangingIdentity{f.ids})

	_, err := f.svc.RequestChange(context.Background(), "u1", "new@example.com")
	require.ErrorIs(t, err, core.ErrUnreachable)
	require.Equal(t, core.ReasonUnreachable, core.ReasonOf(err))
}

// lossyIdentity applies the update but reports a transport failure.
type lossyIdentity struct{ *memorystore.IdentityStore }

func (l lossyIdentity) UpdatePrimaryEmail(ctx context.Context, principalID, email string) error {
	if err := l.IdentityStore.UpdatePrimaryEmail(ctx, principalID, email); err != nil {
		return err
	}
	return errors.New("connection reset by peer")
}

func TestAmbiguousIdentityUpdateIsResolvedByReread(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.addPrincipal(t, "u1", "alice@example.com")
	f.svc.WithIdentityProvider(lossyIdentity{f.ids})

	_, err := f.svc.RequestChange(ctx, "u1", "new@example.com")
	require.NoError(t, err)
	_, err = f.svc.VerifyChallenge(ctx, "u1", f.lastCode(t, "new@example.com"))
	require.NoError(t, err)

	h, err := f.svc.Commit(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, core.StatusCommitted, h.Status)
	require.Equal(t, "new@example.com", f.profileEmail(t, "u1"))
}

func TestCommitSurvivesCallerCancellationAfterIdentityUpdate(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f := newFixture(t, nil)
	f.addPrincipal(t, "u1", "alice@example.com")
	f.svc.WithIdentityProvider(cancellingIdentity{IdentityStore: f.ids, cancel: cancel})

	_, err := f.svc.RequestChange(ctx, "u1", "new@example.com")
	require.NoError(t, err)
	_, err = f.svc.VerifyChallenge(ctx, "u1", f.lastCode(t, "new@example.com"))
	require.NoError(t, err)

	_, err = f.svc.Commit(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, "new@example.com", f.profileEmail(t, "u1"))
}

// cancellingIdentity cancels the caller's context as soon as the update lands.
type cancellingIdentity struct {
	*memorystore.IdentityStore
	cancel context.CancelFunc
}

func (c cancellingIdentity) UpdatePrimaryEmail(ctx context.Context, principalID, email string) error {
	err := c.IdentityStore.UpdatePrimaryEmail(ctx, principalID, email)
	c.cancel()
	return err
}

func TestReconcileProfiles(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.addPrincipal(t, "u1", "alice@example.com")
	f.addPrincipal(t, "u2", "bob@example.com")
	require.NoError(t, f.ids.AddPrincipal("u2", "bob.new@example.com", "secret-u2"))

	lister := memorystore.Divergence{Identities: f.ids, Profiles: f.profiles.ProfileStore}
	ids, err := lister.ListDivergedPrincipals(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, []string{"u2"}, ids)

	n, err := f.svc.ReconcileProfiles(ctx, lister, 10)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, "bob.new@example.com", f.profileEmail(t, "u2"))

	ids, err = lister.ListDivergedPrincipals(ctx, 10)
	require.NoError(t, err)
	require.Empty(t, ids)
}
