package renewal

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/credential/entity"
	credentialrepo "github.com/ovaphlow/pitchfork/service-auth-go/internal/credential/repo"
	"github.com/ovaphlow/pitchfork/service-auth-go/pkg/database"
)

var testNow = time.Date(2030, 1, 1, 12, 0, 0, 0, time.UTC)

type fakeUpstream struct {
	calls atomic.Int32
	gate  chan struct{}
	token *UpstreamToken
	err   error
	seen  []string
	mu    sync.Mutex
}

func (f *fakeUpstream) Refresh(_ context.Context, refreshToken string) (*UpstreamToken, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.seen = append(f.seen, refreshToken)
	f.mu.Unlock()
	if f.gate != nil {
		<-f.gate
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.token, nil
}

type brokenStore struct{}

func (brokenStore) FindBySubject(context.Context, string) (*entity.Credential, error) {
	return nil, errors.New("connection refused")
}

func (brokenStore) FindByRefreshToken(context.Context, string) (*entity.Credential, error) {
	return nil, errors.New("connection refused")
}

func (brokenStore) Upsert(context.Context, *entity.Credential) (*entity.Credential, error) {
	return nil, errors.New("connection refused")
}

func newRepo(t *testing.T) *credentialrepo.CredentialRepo {
	t.Helper()
	db, err := database.Connect(database.Config{Driver: "sqlite", DSN: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, database.RunMigrations(context.Background(), db))
	return credentialrepo.NewCredentialRepo(db)
}

func newService(store Store, up Upstream) *RenewalService {
	s := NewRenewalService(store, up, zap.NewNop().Sugar())
	s.now = func() time.Time { return testNow }
	return s
}

func seed(t *testing.T, repo *credentialrepo.CredentialRepo, c entity.Credential) {
	t.Helper()
	_, err := repo.Upsert(context.Background(), &c)
	require.NoError(t, err)
}

func strPtr(s string) *string { return &s }

func TestRenewBySubjectReturnsCachedTokenWithoutUpstream(t *testing.T) {
	t.Parallel()

	repo := newRepo(t)
	seed(t, repo, entity.Credential{
		Subject:      "u1",
		RefreshToken: strPtr("rt"),
		AccessToken:  "cached",
		ExpiresAt:    testNow.Add(time.Minute),
	})
	up := &fakeUpstream{}
	svc := newService(repo, up)

	first, err := svc.RenewBySubject(context.Background(), "u1")
	require.NoError(t, err)
	second, err := svc.RenewBySubject(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "cached", first.AccessToken)
	assert.Equal(t, first.AccessToken, second.AccessToken)
	assert.True(t, first.ExpiresAt.Equal(second.ExpiresAt))
	assert.Zero(t, up.calls.Load())
}

func TestRenewBySubjectRefreshesExpiredToken(t *testing.T) {
	t.Parallel()

	repo := newRepo(t)
	seed(t, repo, entity.Credential{
		Subject:      "u1",
		Email:        "a@x",
		RefreshToken: strPtr("rt"),
		AccessToken:  "stale",
		ExpiresAt:    testNow,
	})
	up := &fakeUpstream{token: &UpstreamToken{AccessToken: "fresh", ExpiresIn: time.Hour}}

	got, err := newService(repo, up).RenewBySubject(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "fresh", got.AccessToken)
	assert.True(t, testNow.Add(time.Hour).Equal(got.ExpiresAt))
	assert.Equal(t, "rt", *got.RefreshToken)
	assert.Equal(t, "a@x", got.Email)
	assert.Equal(t, []string{"rt"}, up.seen)

	stored, err := repo.FindBySubject(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "fresh", stored.AccessToken)

	again, err := newService(repo, up).RenewBySubject(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "fresh", again.AccessToken)
	assert.Equal(t, int32(1), up.calls.Load())
}

func TestRenewBySubjectStoresRotatedRefreshToken(t *testing.T) {
	t.Parallel()

	repo := newRepo(t)
	seed(t, repo, entity.Credential{Subject: "u1", RefreshToken: strPtr("rt1"), AccessToken: "a", ExpiresAt: testNow.Add(-time.Hour)})
	up := &fakeUpstream{token: &UpstreamToken{AccessToken: "b", RefreshToken: "rt2", ExpiresIn: time.Hour}}

	got, err := newService(repo, up).RenewBySubject(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "rt2", *got.RefreshToken)

	_, err = repo.FindByRefreshToken(context.Background(), "rt1")
	assert.ErrorIs(t, err, credentialrepo.ErrNotFound)
}

func TestRenewBySubjectWithoutRefreshToken(t *testing.T) {
	t.Parallel()

	repo := newRepo(t)
	seed(t, repo, entity.Credential{Subject: "u1", AccessToken: "a", ExpiresAt: testNow.Add(-time.Second)})
	up := &fakeUpstream{}

	_, err := newService(repo, up).RenewBySubject(context.Background(), "u1")
	assert.ErrorIs(t, err, ErrNoRefreshTokenAvailable)
	assert.Zero(t, up.calls.Load())
}

func TestRenewBySubjectUnknownSubject(t *testing.T) {
	t.Parallel()

	_, err := newService(newRepo(t), &fakeUpstream{}).RenewBySubject(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrUnknownSubject)
}

func TestRenewUpstreamFailureLeavesStoreUntouched(t *testing.T) {
	t.Parallel()

	repo := newRepo(t)
	seed(t, repo, entity.Credential{Subject: "u1", RefreshToken: strPtr("rt"), AccessToken: "old", ExpiresAt: testNow.Add(-time.Minute)})
	up := &fakeUpstream{err: &UpstreamError{Status: 400, Body: `{"error":"invalid_grant"}`}}

	_, err := newService(repo, up).RenewByRefreshToken(context.Background(), "rt")
	require.ErrorIs(t, err, ErrUpstreamRefreshFailed)
	var ue *UpstreamError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, `{"error":"invalid_grant"}`, ue.Body)
	assert.Equal(t, int32(1), up.calls.Load())

	stored, err := repo.FindBySubject(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "old", stored.AccessToken)
	assert.Equal(t, "rt", *stored.RefreshToken)
	assert.True(t, testNow.Add(-time.Minute).Equal(stored.ExpiresAt))
}

func TestRenewByRefreshTokenUnknown(t *testing.T) {
	t.Parallel()

	repo := newRepo(t)
	seed(t, repo, entity.Credential{Subject: "u1", RefreshToken: strPtr("rt"), AccessToken: "a", ExpiresAt: testNow.Add(-time.Minute)})
	up := &fakeUpstream{}

	_, err := newService(repo, up).RenewByRefreshToken(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrUnknownRefreshToken)
	assert.Zero(t, up.calls.Load())

	stored, err := repo.FindBySubject(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "a", stored.AccessToken)
}

func TestRenewStoreUnavailable(t *testing.T) {
	t.Parallel()

	svc := newService(brokenStore{}, &fakeUpstream{})

	_, err := svc.RenewBySubject(context.Background(), "u1")
	assert.ErrorIs(t, err, ErrCredentialStoreUnavailable)

	_, err = svc.RenewByRefreshToken(context.Background(), "rt")
	assert.ErrorIs(t, err, ErrCredentialStoreUnavailable)
}

func TestConcurrentRenewalsShareOneUpstreamCall(t *testing.T) {
	t.Parallel()

	repo := newRepo(t)
	seed(t, repo, entity.Credential{Subject: "u1", RefreshToken: strPtr("rt"), AccessToken: "old", ExpiresAt: testNow.Add(-time.Minute)})
	up := &fakeUpstream{
		gate:  make(chan struct{}),
		token: &UpstreamToken{AccessToken: "new", ExpiresIn: time.Hour},
	}
	svc := newService(repo, up)

	const callers = 8
	var wg sync.WaitGroup
	results := make([]string, callers)
	errs := make([]error, callers)
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c, err := svc.RenewBySubject(context.Background(), "u1")
			errs[i] = err
			if err == nil {
				results[i] = c.AccessToken
			}
		}()
	}
	require.Eventually(t, func() bool { return up.calls.Load() == 1 }, time.Second, time.Millisecond)
	close(up.gate)
	wg.Wait()

	for i := range callers {
		require.NoError(t, errs[i])
		assert.Equal(t, "new", results[i])
	}
	assert.Equal(t, int32(1), up.calls.Load())
}

func TestRenewalSurvivesCallerCancellation(t *testing.T) {
	t.Parallel()

	repo := newRepo(t)
	seed(t, repo, entity.Credential{Subject: "u1", RefreshToken: strPtr("rt"), AccessToken: "old", ExpiresAt: testNow.Add(-time.Minute)})
	up := &fakeUpstream{token: &UpstreamToken{AccessToken: "new", ExpiresIn: time.Hour}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	got, err := newService(repo, up).RenewBySubject(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "new", got.AccessToken)
}
