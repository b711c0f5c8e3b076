package pgstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"

	"github.com/open-rails/emailchange/core"
)

const uniqueViolation = "23505"

// Identity is the authoritative account store (identity.accounts).
type Identity struct {
	pg *pgxpool.Pool
	// RecentAuth is how long a sign-in counts as recent for an email update.
	// Zero disables the check.
	RecentAuth time.Duration
}

func NewIdentity(pool *pgxpool.Pool) *Identity {
	return &Identity{pg: pool, RecentAuth: 15 * time.Minute}
}

// CreateAccount inserts an account with a bcrypt password hash and marks it
// freshly authenticated.
func (s *Identity) CreateAccount(ctx context.Context, principalID, email, password string) error {
	var hash *string
	if password != "" {
		h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return err
		}
		hs := string(h)
		hash = &hs
	}
	_, err := s.pg.Exec(ctx, `
		INSERT INTO identity.accounts (id, email, password_hash, last_auth_at)
		VALUES ($1, lower($2), $3, NOW())`, principalID, strings.TrimSpace(email), hash)
	return mapErr(err)
}

func (s *Identity) CurrentEmail(ctx context.Context, principalID string) (string, error) {
	var email string
	err := s.pg.QueryRow(ctx, `SELECT email FROM identity.accounts WHERE id=$1`, principalID).Scan(&email)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", core.ErrPrincipalNotFound
	}
	if err != nil {
		return "", mapErr(err)
	}
	return email, nil
}

func (s *Identity) LookupByEmail(ctx context.Context, email string) (string, bool, error) {
	var id string
	err := s.pg.QueryRow(ctx, `SELECT id FROM identity.accounts WHERE lower(email)=lower($1)`, strings.TrimSpace(email)).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, mapErr(err)
	}
	return id, true, nil
}

// UpdatePrimaryEmail relies on the unique index to settle races between principals.
func (s *Identity) UpdatePrimaryEmail(ctx context.Context, principalID, newEmail string) error {
	var lastAuth *time.Time
	err := s.pg.QueryRow(ctx, `SELECT last_auth_at FROM identity.accounts WHERE id=$1`, principalID).Scan(&lastAuth)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.ErrPrincipalNotFound
	}
	if err != nil {
		return mapErr(err)
	}
	if s.RecentAuth > 0 && (lastAuth == nil || time.Since(*lastAuth) > s.RecentAuth) {
		return core.ErrReauthenticationRequired
	}
	_, err = s.pg.Exec(ctx, `UPDATE identity.accounts SET email=lower($2), updated_at=NOW() WHERE id=$1`, principalID, strings.TrimSpace(newEmail))
	return mapErr(err)
}

func (s *Identity) Reauthenticate(ctx context.Context, principalID, credential string) error {
	var hash *string
	err := s.pg.QueryRow(ctx, `SELECT password_hash FROM identity.accounts WHERE id=$1`, principalID).Scan(&hash)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.ErrInvalidCredential
	}
	if err != nil {
		return mapErr(err)
	}
	if hash == nil || bcrypt.CompareHashAndPassword([]byte(*hash), []byte(credential)) != nil {
		return core.ErrInvalidCredential
	}
	_, err = s.pg.Exec(ctx, `UPDATE identity.accounts SET last_auth_at=NOW() WHERE id=$1`, principalID)
	return mapErr(err)
}

// mapErr turns unique violations into ErrEmailAlreadyInUse and connection
// failures into ErrUnreachable.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code == uniqueViolation {
			return core.ErrEmailAlreadyInUse
		}
		return fmt.Errorf("postgres: %w", err)
	}
	if pgconn.SafeToRetry(err) || pgconn.Timeout(err) {
		return fmt.Errorf("%w: postgres: %w", core.ErrUnreachable, err)
	}
	return fmt.Errorf("postgres: %w", err)
}
