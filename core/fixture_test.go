package core_test

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/open-rails/emailchange/core"
	"github.com/open-rails/emailchange/delivery"
	memorystore "github.com/open-rails/emailchange/storage/memory"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// sequentialCodes returns 100001, 100002, ... so tests know each code.
func sequentialCodes() func(int) string {
	var n atomic.Int64
	return func(length int) string {
		return fmt.Sprintf("%0*d", length, 100000+n.Add(1))
	}
}

// flakyProfiles fails MergeProfile while fail is set.
type flakyProfiles struct {
	*memorystore.ProfileStore
	fail atomic.Bool
}

func (p *flakyProfiles) MergeProfile(ctx context.Context, principalID string, f core.ProfileFields) error {
	if p.fail.Load() {
		return errors.New("profile backend unavailable")
	}
	return p.ProfileStore.MergeProfile(ctx, principalID, f)
}

type recordingScheduler struct {
	mu  sync.Mutex
	ids []string
}

func (r *recordingScheduler) ScheduleProfileSync(_ context.Context, principalID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, principalID)
	return nil
}

type fixture struct {
	svc      *core.Service
	clock    *fakeClock
	ids      *memorystore.IdentityStore
	profiles *flakyProfiles
	mail     *delivery.Recorder
	repair   *recordingScheduler
}

type fixtureOption func(*core.Config)

func production(cfg *core.Config) { cfg.Environment = "production" }

func linkMethod(cfg *core.Config) {
	cfg.Method = "link"
	cfg.LinkSecret = "0123456789abcdef0123456789abcdef"
	cfg.LinkBaseURL = "https://app.example.com/verify-email-change"
}

func newFixture(t *testing.T, store core.EphemeralStore, opts ...fixtureOption) *fixture {
	t.Helper()
	cfg := core.Config{Environment: "development", CodeLength: 6}
	for _, o := range opts {
		o(&cfg)
	}
	svc, err := core.NewFromConfig(cfg)
	require.NoError(t, err)

	f := &fixture{
		clock:    newClock(),
		ids:      memorystore.NewIdentityStore(),
		profiles: &flakyProfiles{ProfileStore: memorystore.NewProfileStore()},
		mail:     delivery.NewRecorder(),
		repair:   &recordingScheduler{},
	}
	f.ids.WithClock(f.clock.Now)
	if store == nil {
		store = memorystore.NewKV().WithClock(f.clock.Now)
	}
	svc.WithEphemeralStore(store, core.EphemeralMemory).
		WithIdentityProvider(f.ids).
		WithProfileStore(f.profiles).
		WithDeliveryChannel(f.mail).
		WithRepairScheduler(f.repair).
		WithClock(f.clock.Now)
	if svc.Method() == core.MethodCode {
		svc.WithVerificationMethod(core.CodeChallenge{Length: 6, TTL: svc.Options().CodeTTL, Generate: sequentialCodes()})
	}
	f.svc = svc
	return f
}

func (f *fixture) addPrincipal(t *testing.T, id, email string) {
	t.Helper()
	require.NoError(t, f.ids.AddPrincipal(id, email, "secret-"+id))
	require.NoError(t, f.profiles.ProfileStore.MergeProfile(context.Background(), id, core.ProfileFields{Email: &email}))
}

func (f *fixture) lastCode(t *testing.T, to string) string {
	t.Helper()
	p, ok := f.mail.Last(to)
	require.True(t, ok, "no challenge delivered to %s", to)
	require.NotEmpty(t, p.Code)
	return p.Code
}

func (f *fixture) lastToken(t *testing.T, to string) string {
	t.Helper()
	p, ok := f.mail.Last(to)
	require.True(t, ok, "no link delivered to %s", to)
	u, err := url.Parse(p.VerificationURL)
	require.NoError(t, err)
	tok := u.Query().Get("token")
	require.NotEmpty(t, tok)
	return tok
}

func (f *fixture) profileEmail(t *testing.T, id string) string {
	t.Helper()
	p, err := f.profiles.GetProfile(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, p)
	return p.Email
}

func (f *fixture) identityEmail(t *testing.T, id string) string {
	t.Helper()
	email, err := f.ids.CurrentEmail(context.Background(), id)
	require.NoError(t, err)
	return email
}
