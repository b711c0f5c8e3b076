package memorystore

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/open-rails/emailchange/core"
)

type account struct {
	email        string
	passwordHash []byte
	lastAuthAt   time.Time
}

// IdentityStore is an in-memory identity provider for development and tests.
// Emails are unique across principals.
type IdentityStore struct {
	mu       sync.Mutex
	accounts map[string]*account
	byEmail  map[string]string
	now      func() time.Time
	// RecentAuth is how long a sign-in counts as recent for sensitive
	// updates. Zero disables the check.
	RecentAuth time.Duration
}

func NewIdentityStore() *IdentityStore {
	return &IdentityStore{
		accounts: make(map[string]*account),
		byEmail:  make(map[string]string),
		now:      time.Now,
	}
}

func (s *IdentityStore) WithClock(now func() time.Time) *IdentityStore {
	if now != nil {
		s.now = now
	}
	return s
}

// AddPrincipal registers a principal as freshly authenticated.
func (s *IdentityStore) AddPrincipal(principalID, email, password string) error {
	var hash []byte
	if password != "" {
		h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
		if err != nil {
			return err
		}
		hash = h
	}
	email = strings.ToLower(strings.TrimSpace(email))
	s.mu.Lock()
	defer s.mu.Unlock()
	if owner, ok := s.byEmail[email]; ok && owner != principalID {
		return core.ErrEmailAlreadyInUse
	}
	if prev, ok := s.accounts[principalID]; ok {
		delete(s.byEmail, prev.email)
	}
	s.accounts[principalID] = &account{email: email, passwordHash: hash, lastAuthAt: s.now()}
	s.byEmail[email] = principalID
	return nil
}

// ExpireAuth marks the principal's last sign-in as stale.
func (s *IdentityStore) ExpireAuth(principalID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.accounts[principalID]; ok {
		a.lastAuthAt = time.Time{}
	}
}

func (s *IdentityStore) CurrentEmail(ctx context.Context, principalID string) (string, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[principalID]
	if !ok {
		return "", core.ErrPrincipalNotFound
	}
	return a.email, nil
}

func (s *IdentityStore) LookupByEmail(ctx context.Context, email string) (string, bool, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byEmail[strings.ToLower(strings.TrimSpace(email))]
	return id, ok, nil
}

func (s *IdentityStore) UpdatePrimaryEmail(ctx context.Context, principalID, newEmail string) error {
	_ = ctx
	newEmail = strings.ToLower(strings.TrimSpace(newEmail))
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[principalID]
	if !ok {
		return core.ErrPrincipalNotFound
	}
	if s.RecentAuth > 0 && s.now().Sub(a.lastAuthAt) > s.RecentAuth {
		return core.ErrReauthenticationRequired
	}
	if owner, ok := s.byEmail[newEmail]; ok && owner != principalID {
		return core.ErrEmailAlreadyInUse
	}
	delete(s.byEmail, a.email)
	a.email = newEmail
	s.byEmail[newEmail] = principalID
	return nil
}

func (s *IdentityStore) Reauthenticate(ctx context.Context, principalID, credential string) error {
	_ = ctx
	s.mu.Lock()
	a, ok := s.accounts[principalID]
	var hash []byte
	if ok {
		hash = a.passwordHash
	}
	s.mu.Unlock()
	if !ok || len(hash) == 0 {
		return core.ErrInvalidCredential
	}
	if err := bcrypt.CompareHashAndPassword(hash, []byte(credential)); err != nil {
		return core.ErrInvalidCredential
	}
	s.mu.Lock()
	a.lastAuthAt = s.now()
	s.mu.Unlock()
	return nil
}
