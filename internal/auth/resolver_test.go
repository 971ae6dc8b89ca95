package auth_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/contacts/internal/auth"
)

func seededRepo(t *testing.T) *memoryRepo {
	t.Helper()
	repo := newMemoryRepo()
	require.NoError(t, repo.Insert(context.Background(), &auth.Account{Username: "alice", Email: "a@x.com", PasswordHash: "hash", Confirmed: true}))
	return repo
}

func TestResolverCachesStoreLookups(t *testing.T) {
	repo := seededRepo(t)
	cache, _, _ := newRedisCache(t)
	codec := newCodec(t)
	resolver := auth.NewResolver(codec, cache, repo, 0, nil)
	token, err := codec.IssueAccess("a@x.com")
	require.NoError(t, err)
	ctx := context.Background()

	account, err := resolver.Resolve(ctx, token)
	require.NoError(t, err)
	require.Equal(t, "alice", account.Username)
	require.Equal(t, 1, repo.findCount())

	again, err := resolver.Resolve(ctx, token)
	require.NoError(t, err)
	require.Equal(t, account.ID, again.ID)
	require.Equal(t, 1, repo.findCount())
}

func TestResolverFallsBackWhenCacheUnavailable(t *testing.T) {
	repo := seededRepo(t)
	cache, mr, _ := newRedisCache(t)
	mr.Close()
	codec := newCodec(t)
	resolver := auth.NewResolver(codec, cache, repo, time.Minute, nil)
	token, err := codec.IssueAccess("a@x.com")
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		account, err := resolver.Resolve(context.Background(), token)
		require.NoError(t, err)
		require.Equal(t, "a@x.com", account.Email)
	}
	require.Equal(t, 2, repo.findCount())
}

func TestResolverRejections(t *testing.T) {
	repo := seededRepo(t)
	codec := newCodec(t)
	resolver := auth.NewResolver(codec, nil, repo, 0, nil)
	ctx := context.Background()

	_, err := resolver.Resolve(ctx, "")
	require.ErrorIs(t, err, auth.ErrMissingCredentials)

	_, err = resolver.Resolve(ctx, "garbage")
	require.ErrorIs(t, err, auth.ErrInvalidCredentials)

	refresh, err := codec.IssueRefresh("a@x.com")
	require.NoError(t, err)
	_, err = resolver.Resolve(ctx, refresh)
	require.ErrorIs(t, err, auth.ErrInvalidCredentials)

	ghost, err := codec.IssueAccess("ghost@x.com")
	require.NoError(t, err)
	_, err = resolver.Resolve(ctx, ghost)
	require.ErrorIs(t, err, auth.ErrInvalidCredentials)
}

func TestResolverMiddleware(t *testing.T) {
	repo := seededRepo(t)
	codec := newCodec(t)
	resolver := auth.NewResolver(codec, nil, repo, 0, nil)
	protected := resolver.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		account := auth.AccountFromContext(r.Context())
		require.NotNil(t, account)
		_, _ = w.Write([]byte(account.Email))
	}))

	rec := httptest.NewRecorder()
	protected.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/me", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "Bearer", rec.Header().Get("WWW-Authenticate"))

	token, err := codec.IssueAccess("a@x.com")
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	protected.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "a@x.com", rec.Body.String())
}

func TestBearerToken(t *testing.T) {
	cases := map[string]string{
		"Bearer abc":   "abc",
		"bearer  abc ": "abc",
		"Basic abc":    "",
		"abc":          "",
		"":             "",
	}
	for header, want := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		require.Equal(t, want, auth.BearerToken(req), header)
	}
}

// gatedFinder holds every lookup until release is closed, or until the
// lookup context ends.
type gatedFinder struct {
	started     chan struct{}
	release     chan struct{}
	startedOnce sync.Once
}

func (g *gatedFinder) FindByEmail(ctx context.Context, email string) (*auth.Account, error) {
	g.startedOnce.Do(func() { close(g.started) })
	select {
	case <-g.release:
		return &auth.Account{ID: 1, Username: "alice", Email: email, Confirmed: true}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestResolverSharedLookupSurvivesCallerCancel(t *testing.T) {
	finder := &gatedFinder{started: make(chan struct{}), release: make(chan struct{})}
	codec := newCodec(t)
	resolver := auth.NewResolver(codec, nil, finder, 0, nil)
	token, err := codec.IssueAccess("a@x.com")
	require.NoError(t, err)

	firstCtx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := resolver.Resolve(firstCtx, token)
		firstErr <- err
	}()
	<-finder.started

	type result struct {
		account *auth.Account
		err     error
	}
	second := make(chan result, 1)
	go func() {
		account, err := resolver.Resolve(context.Background(), token)
		second <- result{account, err}
	}()
	// Give the second caller time to join the in-flight lookup.
	time.Sleep(20 * time.Millisecond)

	cancel()
	require.ErrorIs(t, <-firstErr, context.Canceled)

	close(finder.release)
	select {
	case res := <-second:
		require.NoError(t, res.err)
		require.Equal(t, "a@x.com", res.account.Email)
	case <-time.After(2 * time.Second):
		t.Fatal("second resolve did not return")
	}
}
