package profile

import (
	"context"
	"errors"
	"time"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/profile/entity"
	profilerepo "github.com/ovaphlow/pitchfork/service-auth-go/internal/profile/repo"
	"github.com/ovaphlow/pitchfork/service-auth-go/pkg/utilities"
)

var ErrProfileNotFound = errors.New("profile not found")

// Store is the persistence the service needs.
type Store interface {
	FindBySubject(ctx context.Context, subject string) (*entity.Profile, error)
}

// NewProfile builds the ACTIVE profile provisioned for a login at now.
func NewProfile(subject, email, name, scope string, now time.Time) *entity.Profile {
	now = now.UTC()
	return &entity.Profile{
		ID:          utilities.NewSnowflakeID(),
		Subject:     subject,
		Email:       email,
		Name:        name,
		Scope:       scope,
		Status:      entity.StatusActive,
		CreatedAt:   now,
		UpdatedAt:   now,
		LastLoginAt: now,
	}
}

// ProfileService reads provisioned profiles.
type ProfileService struct {
	store Store
}

func NewProfileService(store Store) *ProfileService {
	return &ProfileService{store: store}
}

// Get returns the profile for subject or ErrProfileNotFound.
func (s *ProfileService) Get(ctx context.Context, subject string) (*entity.Profile, error) {
	p, err := s.store.FindBySubject(ctx, subject)
	if err != nil {
		if errors.Is(err, profilerepo.ErrNotFound) {
			return nil, ErrProfileNotFound
		}
		return nil, err
	}
	return p, nil
}
