package session

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aniruddha-M-Dhir/learnflow-lms/internal/credential"
	"github.com/Aniruddha-M-Dhir/learnflow-lms/internal/domain"
	"github.com/Aniruddha-M-Dhir/learnflow-lms/internal/gateway"
	"github.com/Aniruddha-M-Dhir/learnflow-lms/internal/issuer"
	"github.com/Aniruddha-M-Dhir/learnflow-lms/internal/metrics"
	"github.com/Aniruddha-M-Dhir/learnflow-lms/internal/testutil/fakeapi"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	api     *fakeapi.Server
	store   *credential.MemoryStore
	manager *Manager
	userID  int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	api := fakeapi.New(t)
	userID := api.AddUser("ada", "correct horse", "instructor")
	api.AddUser("bob", "hunter2", "student")

	store := credential.NewMemoryStore()
	iss := issuer.NewClient(api.URL, time.Second)
	refresher := gateway.NewRefreshProtocol(iss, store, gateway.RefreshConfig{
		Logger:  quietLogger(),
		Metrics: metrics.Nop(),
		Timeout: time.Second,
	})
	gw := gateway.New(store, refresher, gateway.Config{
		BaseURL:    api.URL,
		HTTPClient: api.Client(),
		Logger:     quietLogger(),
		Metrics:    metrics.Nop(),
	})

	return &fixture{
		api:     api,
		store:   store,
		manager: NewManager(iss, gw, store, quietLogger()),
		userID:  userID,
	}
}

func (f *fixture) seed(t *testing.T, username string) {
	t.Helper()
	access, refresh := f.api.IssuePair(username)
	f.store.Put(context.Background(), access, refresh)
}

func (f *fixture) assertNoCredentials(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	_, ok := f.store.Get(ctx, credential.Access)
	assert.False(t, ok, "access credential should be cleared")
	_, ok = f.store.Get(ctx, credential.Refresh)
	assert.False(t, ok, "refresh credential should be cleared")
}

// stubRequester answers every JSON call with a fixed identity or error.
type stubRequester struct {
	err      error
	identity domain.Identity
	status   int
	calls    int
}

func (s *stubRequester) JSON(_ context.Context, _, _ string, _, out interface{}) (int, error) {
	s.calls++
	if s.err != nil {
		return s.status, s.err
	}
	if identity, ok := out.(*domain.Identity); ok {
		*identity = s.identity
	}
	return http.StatusOK, nil
}

func TestManager_InitialState(t *testing.T) {
	f := newFixture(t)

	state := f.manager.State()
	assert.False(t, state.Ready)
	assert.False(t, state.Authenticated())
}

func TestManager_HydrateWithoutCredentialMakesNoCall(t *testing.T) {
	f := newFixture(t)

	f.manager.Hydrate(context.Background())

	state := f.manager.State()
	assert.True(t, state.Ready)
	assert.Nil(t, state.Identity)
	assert.Zero(t, f.api.TotalHits())
}

func TestManager_HydrateRestoresSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, "ada")

	f.manager.Hydrate(ctx)

	state := f.manager.State()
	assert.True(t, state.Ready)
	require.NotNil(t, state.Identity)
	assert.Equal(t, f.userID, state.Identity.ID)
	assert.Equal(t, "ada", state.Identity.Username)
	assert.Equal(t, domain.RoleInstructor, state.Identity.Role)
	assert.Equal(t, 1, f.api.Hits(MePath))
}

func TestManager_HydrateRefreshesExpiredAccess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, "bob")
	f.api.RevokeAccessTokens()

	f.manager.Hydrate(ctx)

	state := f.manager.State()
	require.NotNil(t, state.Identity)
	assert.Equal(t, domain.RoleStudent, state.Identity.Role)
	assert.Equal(t, 2, f.api.Hits(MePath))
	assert.Equal(t, 1, f.api.Hits(issuer.RefreshPath))
}

func TestManager_HydrateWithRejectedSessionLogsOut(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, "ada")
	f.api.RevokeAccessTokens()
	f.api.FailRefresh(http.StatusUnauthorized)

	f.manager.Hydrate(ctx)

	state := f.manager.State()
	assert.True(t, state.Ready)
	assert.Nil(t, state.Identity)
	f.assertNoCredentials(t)
}

func TestManager_HydrateWithProfileErrorLogsOut(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, "ada")
	f.api.FailMe(http.StatusInternalServerError)

	f.manager.Hydrate(ctx)

	state := f.manager.State()
	assert.True(t, state.Ready)
	assert.Nil(t, state.Identity)
	f.assertNoCredentials(t)
}

func TestManager_HydrateWithNetworkFailureLogsOut(t *testing.T) {
	store := credential.NewMemoryStore()
	ctx := context.Background()
	store.Put(ctx, "a1", "r1")
	requester := &stubRequester{err: domain.NewTransientNetworkError("REQUEST_FAILED", "connection refused", nil)}
	m := NewManager(nil, requester, store, quietLogger())

	m.Hydrate(ctx)

	state := m.State()
	assert.True(t, state.Ready)
	assert.Nil(t, state.Identity)
	_, ok := store.Get(ctx, credential.Access)
	assert.False(t, ok)
}

func TestManager_HydrateWithMalformedIdentityLogsOut(t *testing.T) {
	store := credential.NewMemoryStore()
	ctx := context.Background()
	store.Put(ctx, "a1", "r1")
	requester := &stubRequester{identity: domain.Identity{ID: 0, Username: "ghost"}}
	m := NewManager(nil, requester, store, quietLogger())

	m.Hydrate(ctx)

	assert.Nil(t, m.State().Identity)
	_, ok := store.Get(ctx, credential.Refresh)
	assert.False(t, ok)
}

func TestManager_HydrateRunsOnce(t *testing.T) {
	store := credential.NewMemoryStore()
	ctx := context.Background()
	store.Put(ctx, "a1", "r1")
	requester := &stubRequester{identity: domain.Identity{ID: 7, Username: "ada", Role: domain.RoleInstructor}}
	m := NewManager(nil, requester, store, quietLogger())

	m.Hydrate(ctx)
	m.Hydrate(ctx)

	assert.Equal(t, 1, requester.calls)
	require.NotNil(t, m.State().Identity)
	assert.Equal(t, int64(7), m.State().Identity.ID)
}

func TestManager_LoginSuccess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.manager.Login(ctx, "ada", "correct horse")
	require.NoError(t, err)

	state := f.manager.State()
	assert.True(t, state.Ready)
	require.NotNil(t, state.Identity)
	assert.Equal(t, "ada", state.Identity.Username)
	assert.True(t, state.Identity.IsInstructor())

	access, ok := f.store.Get(ctx, credential.Access)
	require.True(t, ok)
	_, ok = f.store.Get(ctx, credential.Refresh)
	require.True(t, ok)

	auths := f.api.Authorizations(MePath)
	require.Len(t, auths, 1)
	assert.Equal(t, "Bearer "+access, auths[0])
}

func TestManager_LoginWithWrongPasswordLeavesStateUnchanged(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.manager.Login(ctx, "ada", "correct horse"))
	before := f.manager.State()
	access, _ := f.store.Get(ctx, credential.Access)

	err := f.manager.Login(ctx, "bob", "wrong")
	require.Error(t, err)
	assert.True(t, domain.IsInvalidCredentials(err))

	assert.Equal(t, before, f.manager.State())
	stored, _ := f.store.Get(ctx, credential.Access)
	assert.Equal(t, access, stored)
}

func TestManager_LoginWithFailedProfileKeepsTokens(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.api.FailMe(http.StatusInternalServerError)

	err := f.manager.Login(ctx, "ada", "correct horse")
	require.Error(t, err)

	var apiErr *gateway.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)

	assert.Nil(t, f.manager.State().Identity)
	_, ok := f.store.Get(ctx, credential.Access)
	assert.True(t, ok)
	_, ok = f.store.Get(ctx, credential.Refresh)
	assert.True(t, ok)
}

func TestManager_Logout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.manager.Login(ctx, "ada", "correct horse"))

	f.manager.Logout(ctx)

	state := f.manager.State()
	assert.True(t, state.Ready)
	assert.Nil(t, state.Identity)
	f.assertNoCredentials(t)

	// The next hydrate finds nothing to restore.
	hits := f.api.TotalHits()
	f.manager.Hydrate(ctx)
	assert.Equal(t, hits, f.api.TotalHits())
}

func TestManager_LogoutDuringHydrateSticks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, "ada")
	f.api.RevokeAccessTokens()
	f.api.DelayRefresh(200 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		defer close(done)
		f.manager.Hydrate(ctx)
	}()

	require.Eventually(t, func() bool {
		return f.api.Hits(issuer.RefreshPath) == 1
	}, time.Second, 5*time.Millisecond)
	f.manager.Logout(ctx)
	<-done

	state := f.manager.State()
	assert.True(t, state.Ready)
	assert.Nil(t, state.Identity)
	f.assertNoCredentials(t)
}

func TestManager_CancelledHydrateStaysLoggedOut(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "ada")
	f.api.RevokeAccessTokens()
	f.api.DelayRefresh(300 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	f.manager.Hydrate(ctx)

	assert.True(t, f.manager.State().Ready)
	assert.Nil(t, f.manager.State().Identity)
	f.assertNoCredentials(t)

	// The detached exchange finishes later and must not restore a credential.
	assert.Never(t, func() bool {
		_, ok := f.store.Get(context.Background(), credential.Access)
		return ok
	}, 500*time.Millisecond, 20*time.Millisecond)
	assert.Nil(t, f.manager.State().Identity)
}

func TestManager_FailedRelogDropsPreviousIdentity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.manager.Login(ctx, "ada", "correct horse"))
	adaAccess, _ := f.store.Get(ctx, credential.Access)

	f.api.FailMe(http.StatusInternalServerError)
	err := f.manager.Login(ctx, "bob", "hunter2")
	require.Error(t, err)

	state := f.manager.State()
	assert.True(t, state.Ready)
	assert.Nil(t, state.Identity)

	access, ok := f.store.Get(ctx, credential.Access)
	require.True(t, ok)
	assert.NotEqual(t, adaAccess, access)
}

func TestManager_WaitReady(t *testing.T) {
	f := newFixture(t)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, f.manager.WaitReady(ctx), context.DeadlineExceeded)

	done := make(chan error, 1)
	go func() {
		done <- f.manager.WaitReady(context.Background())
	}()

	f.manager.Hydrate(context.Background())

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("WaitReady did not return after Hydrate")
	}
}

func TestManager_SubscribeReceivesChanges(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	updates, unsubscribe := f.manager.Subscribe()
	defer unsubscribe()

	initial := <-updates
	assert.False(t, initial.Ready)

	require.NoError(t, f.manager.Login(ctx, "bob", "hunter2"))
	loggedIn := <-updates
	assert.True(t, loggedIn.Ready)
	require.NotNil(t, loggedIn.Identity)
	assert.Equal(t, "bob", loggedIn.Identity.Username)

	f.manager.Logout(ctx)
	loggedOut := <-updates
	assert.Nil(t, loggedOut.Identity)
}

func TestManager_SlowSubscriberSeesLatestState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	updates, unsubscribe := f.manager.Subscribe()

	require.NoError(t, f.manager.Login(ctx, "ada", "correct horse"))
	f.manager.Logout(ctx)

	latest := <-updates
	assert.True(t, latest.Ready)
	assert.Nil(t, latest.Identity)

	unsubscribe()
	unsubscribe()
	_, open := <-updates
	assert.False(t, open)
}

func TestManager_StateIsACopy(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.manager.Login(context.Background(), "ada", "correct horse"))

	state := f.manager.State()
	state.Identity.Username = "mallory"

	assert.Equal(t, "ada", f.manager.State().Identity.Username)
}
