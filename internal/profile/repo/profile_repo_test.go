package repo

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/profile/entity"
	"github.com/ovaphlow/pitchfork/service-auth-go/pkg/database"
)

func TestProfileUpsertKeepsIdentityFields(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db, err := database.Connect(database.Config{Driver: "sqlite", DSN: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, database.RunMigrations(context.Background(), db))
	r := NewProfileRepo(db)

	first := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	got, err := r.Upsert(ctx, &entity.Profile{
		ID: "100", Subject: "u1", Email: "a@x", Name: "A", Scope: "read",
		Status: entity.StatusActive, CreatedAt: first, UpdatedAt: first, LastLoginAt: first,
	})
	require.NoError(t, err)
	assert.Equal(t, "100", got.ID)

	second := first.Add(24 * time.Hour)
	got, err = r.Upsert(ctx, &entity.Profile{
		ID: "200", Subject: "u1", Email: "b@x", Name: "B", Scope: "read write",
		Status: "SHOULD_NOT_APPLY", CreatedAt: second, UpdatedAt: second, LastLoginAt: second,
	})
	require.NoError(t, err)
	assert.Equal(t, "100", got.ID)
	assert.Equal(t, entity.StatusActive, got.Status)
	assert.Equal(t, "b@x", got.Email)
	assert.Equal(t, "read write", got.Scope)
	assert.True(t, first.Equal(got.CreatedAt))
	assert.True(t, second.Equal(got.LastLoginAt))

	_, err = r.FindBySubject(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}
