package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/profile/entity"
)

var ErrNotFound = errors.New("profile not found")

// ProfileRepo provides data access for the user_profiles table using sqlx.
type ProfileRepo struct {
	db sqlx.ExtContext
}

func NewProfileRepo(db sqlx.ExtContext) *ProfileRepo { return &ProfileRepo{db: db} }

// Upsert inserts p or refreshes the login fields of the existing row for its
// subject. ID, status and created_at of an existing row are kept.
func (r *ProfileRepo) Upsert(ctx context.Context, p *entity.Profile) (*entity.Profile, error) {
	const q = `INSERT INTO user_profiles (id, subject, email, name, scope, status, created_at, updated_at, last_login_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (subject) DO UPDATE SET
			email = excluded.email,
			name = excluded.name,
			scope = excluded.scope,
			updated_at = excluded.updated_at,
			last_login_at = excluded.last_login_at`
	_, err := r.db.ExecContext(ctx, r.db.Rebind(q),
		p.ID, p.Subject, p.Email, p.Name, p.Scope, p.Status,
		p.CreatedAt.UTC(), p.UpdatedAt.UTC(), p.LastLoginAt.UTC())
	if err != nil {
		return nil, fmt.Errorf("upsert profile: %w", err)
	}
	return r.FindBySubject(ctx, p.Subject)
}

func (r *ProfileRepo) FindBySubject(ctx context.Context, subject string) (*entity.Profile, error) {
	const q = `SELECT id, subject, email, name, scope, status, created_at, updated_at, last_login_at FROM user_profiles WHERE subject = ?`
	var p entity.Profile
	if err := sqlx.GetContext(ctx, r.db, &p, r.db.Rebind(q), subject); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return &p, nil
}
