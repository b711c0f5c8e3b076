package pgstore

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/open-rails/emailchange/core"
)

// Profiles is the denormalized profile store (profiles.users).
type Profiles struct {
	pg *pgxpool.Pool
}

func NewProfiles(pool *pgxpool.Pool) *Profiles { return &Profiles{pg: pool} }

func (s *Profiles) GetProfile(ctx context.Context, principalID string) (*core.Profile, error) {
	var p core.Profile
	var email *string
	err := s.pg.QueryRow(ctx, `
		SELECT id, email, display_name, phone, address, photo_url, updated_at
		FROM profiles.users WHERE id=$1`, principalID).
		Scan(&p.PrincipalID, &email, &p.DisplayName, &p.Phone, &p.Address, &p.PhotoURL, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, mapErr(err)
	}
	if email != nil {
		p.Email = *email
	}
	return &p, nil
}

// MergeProfile upserts only the non-nil fields.
func (s *Profiles) MergeProfile(ctx context.Context, principalID string, f core.ProfileFields) error {
	var email *string
	if f.Email != nil {
		e := strings.ToLower(strings.TrimSpace(*f.Email))
		email = &e
	}
	_, err := s.pg.Exec(ctx, `
		INSERT INTO profiles.users (id, email, display_name, phone, address, photo_url)
		VALUES ($1, $2, COALESCE($3, ''), COALESCE($4, ''), COALESCE($5, ''), COALESCE($6, ''))
		ON CONFLICT (id) DO UPDATE SET
			email        = COALESCE($2, profiles.users.email),
			display_name = COALESCE($3, profiles.users.display_name),
			phone        = COALESCE($4, profiles.users.phone),
			address      = COALESCE($5, profiles.users.address),
			photo_url    = COALESCE($6, profiles.users.photo_url),
			updated_at   = NOW()`,
		principalID, email, f.DisplayName, f.Phone, f.Address, f.PhotoURL)
	return mapErr(err)
}

func (s *Profiles) FindByEmail(ctx context.Context, email string) (string, bool, error) {
	var id string
	err := s.pg.QueryRow(ctx, `SELECT id FROM profiles.users WHERE lower(email)=lower($1) LIMIT 1`, strings.TrimSpace(email)).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, mapErr(err)
	}
	return id, true, nil
}

// ListDivergedPrincipals returns principals whose profile email differs from
// the account email, oldest profile update first.
func (s *Profiles) ListDivergedPrincipals(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pg.Query(ctx, `
		SELECT a.id
		FROM identity.accounts a
		JOIN profiles.users u ON u.id = a.id
		WHERE u.email IS DISTINCT FROM a.email
		ORDER BY u.updated_at ASC
		LIMIT $1`, limit)
	if err != nil {
		return nil, mapErr(err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, mapErr(err)
	}
	return ids, nil
}
