package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/credential/entity"
)

var ErrNotFound = errors.New("credential not found")

const selectColumns = `SELECT subject, email, display_name, refresh_token, access_token, expires_at FROM user_credentials`

// CredentialRepo persists upstream credentials keyed by subject. It works on
// both *sqlx.DB and *sqlx.Tx.
type CredentialRepo struct {
	db sqlx.ExtContext
}

func NewCredentialRepo(db sqlx.ExtContext) *CredentialRepo {
	return &CredentialRepo{db: db}
}

// Upsert inserts the credential or overwrites the profile and token fields of
// the existing row. A nil RefreshToken keeps the stored one. The access token
// and its expiry are always written together. Returns the persisted record.
func (r *CredentialRepo) Upsert(ctx context.Context, c *entity.Credential) (*entity.Credential, error) {
	if c.Subject == "" {
		return nil, errors.New("upsert credential: empty subject")
	}
	const q = `INSERT INTO user_credentials (subject, email, display_name, refresh_token, access_token, expires_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (subject) DO UPDATE SET
			email = excluded.email,
			display_name = excluded.display_name,
			refresh_token = COALESCE(excluded.refresh_token, user_credentials.refresh_token),
			access_token = excluded.access_token,
			expires_at = excluded.expires_at`
	_, err := r.db.ExecContext(ctx, r.db.Rebind(q),
		c.Subject, c.Email, c.DisplayName, c.RefreshToken, c.AccessToken, c.ExpiresAt.UTC())
	if err != nil {
		return nil, fmt.Errorf("upsert credential: %w", err)
	}
	return r.FindBySubject(ctx, c.Subject)
}

func (r *CredentialRepo) FindBySubject(ctx context.Context, subject string) (*entity.Credential, error) {
	return r.findOne(ctx, selectColumns+` WHERE subject = ?`, subject)
}

// FindByRefreshToken looks a credential up by its stored upstream refresh token.
func (r *CredentialRepo) FindByRefreshToken(ctx context.Context, token string) (*entity.Credential, error) {
	if token == "" {
		return nil, ErrNotFound
	}
	return r.findOne(ctx, selectColumns+` WHERE refresh_token = ?`, token)
}

func (r *CredentialRepo) findOne(ctx context.Context, q string, arg any) (*entity.Credential, error) {
	var c entity.Credential
	if err := sqlx.GetContext(ctx, r.db, &c, r.db.Rebind(q), arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get credential: %w", err)
	}
	return &c, nil
}

// PurgeTerminal deletes at most batch credentials that can no longer be
// renewed (no refresh token) and whose access token expired before cutoff.
// The matching user_profiles rows are kept: they hold the account status and
// creation time, which a later login must find again.
func (r *CredentialRepo) PurgeTerminal(ctx context.Context, cutoff time.Time, batch int) (int64, error) {
	if batch <= 0 {
		batch = 500
	}
	const q = `DELETE FROM user_credentials WHERE subject IN (
		SELECT subject FROM user_credentials
		WHERE refresh_token IS NULL AND expires_at < ?
		ORDER BY expires_at
		LIMIT ?
	)`
	res, err := r.db.ExecContext(ctx, r.db.Rebind(q), cutoff.UTC(), batch)
	if err != nil {
		return 0, fmt.Errorf("purge credentials: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge credentials rows: %w", err)
	}
	return n, nil
}
