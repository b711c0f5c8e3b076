package memorystore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/open-rails/emailchange/core"
)

// ProfileStore is an in-memory profile store for development and tests.
type ProfileStore struct {
	mu       sync.Mutex
	profiles map[string]core.Profile
}

func NewProfileStore() *ProfileStore {
	return &ProfileStore{profiles: make(map[string]core.Profile)}
}

func (s *ProfileStore) GetProfile(ctx context.Context, principalID string) (*core.Profile, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[principalID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (s *ProfileStore) MergeProfile(ctx context.Context, principalID string, f core.ProfileFields) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.profiles[principalID]
	p.PrincipalID = principalID
	if f.Email != nil {
		p.Email = strings.ToLower(strings.TrimSpace(*f.Email))
	}
	if f.DisplayName != nil {
		p.DisplayName = *f.DisplayName
	}
	if f.Phone != nil {
		p.Phone = *f.Phone
	}
	if f.Address != nil {
		p.Address = *f.Address
	}
	if f.PhotoURL != nil {
		p.PhotoURL = *f.PhotoURL
	}
	p.UpdatedAt = time.Now()
	s.profiles[principalID] = p
	return nil
}

func (s *ProfileStore) FindByEmail(ctx context.Context, email string) (string, bool, error) {
	_ = ctx
	email = strings.ToLower(strings.TrimSpace(email))
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, p := range s.profiles {
		if p.Email == email {
			return id, true, nil
		}
	}
	return "", false, nil
}

// Divergence lists principals whose profile email differs from the identity email.
type Divergence struct {
	Identities *IdentityStore
	Profiles   *ProfileStore
}

func (d Divergence) ListDivergedPrincipals(ctx context.Context, limit int) ([]string, error) {
	d.Identities.mu.Lock()
	emails := make(map[string]string, len(d.Identities.accounts))
	for id, a := range d.Identities.accounts {
		emails[id] = a.email
	}
	d.Identities.mu.Unlock()

	d.Profiles.mu.Lock()
	var out []string
	for id, email := range emails {
		if p, ok := d.Profiles.profiles[id]; ok && p.Email != email {
			out = append(out, id)
		}
	}
	d.Profiles.mu.Unlock()

	sort.Strings(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, ctx.Err()
}
