package login

import (
	"context"

	"github.com/jmoiron/sqlx"

	credentialentity "github.com/ovaphlow/pitchfork/service-auth-go/internal/credential/entity"
	credentialrepo "github.com/ovaphlow/pitchfork/service-auth-go/internal/credential/repo"
	profileentity "github.com/ovaphlow/pitchfork/service-auth-go/internal/profile/entity"
	profilerepo "github.com/ovaphlow/pitchfork/service-auth-go/internal/profile/repo"
	"github.com/ovaphlow/pitchfork/service-auth-go/pkg/database"
)

// SQLStore writes the credential and the profile in a single transaction.
type SQLStore struct {
	db *sqlx.DB
}

func NewSQLStore(db *sqlx.DB) *SQLStore { return &SQLStore{db: db} }

func (s *SQLStore) SaveLogin(ctx context.Context, cred *credentialentity.Credential, prof *profileentity.Profile) error {
	return database.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		if _, err := credentialrepo.NewCredentialRepo(tx).Upsert(ctx, cred); err != nil {
			return err
		}
		if _, err := profilerepo.NewProfileRepo(tx).Upsert(ctx, prof); err != nil {
			return err
		}
		return nil
	})
}
