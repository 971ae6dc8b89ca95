package auth_test

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/odyssey-erp/contacts/internal/auth"
	"github.com/odyssey-erp/contacts/internal/mail"
	_ "github.com/odyssey-erp/contacts/testing"
)

type memoryRepo struct {
	mu      sync.Mutex
	nextID  int64
	byEmail map[string]auth.Account
	finds   int
	// afterFind runs once, after the next FindByEmail has read the row.
	afterFind func()
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{byEmail: make(map[string]auth.Account)}
}

func (m *memoryRepo) FindByEmail(ctx context.Context, email string) (*auth.Account, error) {
	m.mu.Lock()
	m.finds++
	account, ok := m.byEmail[email]
	hook := m.afterFind
	m.afterFind = nil
	m.mu.Unlock()
	if hook != nil {
		hook()
	}
	if !ok {
		return nil, auth.ErrNotFound
	}
	return &account, nil
}

func (m *memoryRepo) Insert(ctx context.Context, account *auth.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byEmail[account.Email]; ok {
		return auth.ErrConflict
	}
	m.nextID++
	account.ID = m.nextID
	account.CreatedAt = time.Now()
	account.UpdatedAt = account.CreatedAt
	m.byEmail[account.Email] = *account
	return nil
}

// modify applies fn to the account with id under the lock.
func (m *memoryRepo) modify(id int64, fn func(*auth.Account) bool) (*auth.Account, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for email, account := range m.byEmail {
		if account.ID != id {
			continue
		}
		if !fn(&account) {
			return nil, false
		}
		account.UpdatedAt = time.Now()
		m.byEmail[email] = account
		return &account, true
	}
	return nil, false
}

func (m *memoryRepo) SetRefreshToken(ctx context.Context, id int64, token *string) error {
	if _, ok := m.modify(id, func(a *auth.Account) bool { a.RefreshToken = token; return true }); !ok {
		return auth.ErrNotFound
	}
	return nil
}

func (m *memoryRepo) SetConfirmed(ctx context.Context, id int64) error {
	if _, ok := m.modify(id, func(a *auth.Account) bool { a.Confirmed = true; return true }); !ok {
		return auth.ErrNotFound
	}
	return nil
}

func (m *memoryRepo) SetPassword(ctx context.Context, id int64, current, next string) (bool, error) {
	_, ok := m.modify(id, func(a *auth.Account) bool {
		if a.PasswordHash != current {
			return false
		}
		a.PasswordHash = next
		a.RefreshToken = nil
		return true
	})
	return ok, nil
}

func (m *memoryRepo) SetAvatar(ctx context.Context, id int64, url string) (*auth.Account, error) {
	account, ok := m.modify(id, func(a *auth.Account) bool { a.Avatar = &url; return true })
	if !ok {
		return nil, auth.ErrNotFound
	}
	return account, nil
}

func (m *memoryRepo) onNextFind(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.afterFind = fn
}

func (m *memoryRepo) SwapRefreshToken(ctx context.Context, id int64, current, next *string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for email, account := range m.byEmail {
		if account.ID != id {
			continue
		}
		if current == nil || account.RefreshToken == nil || *account.RefreshToken != *current {
			return false, nil
		}
		account.RefreshToken = next
		m.byEmail[email] = account
		return true, nil
	}
	return false, nil
}

func (m *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, auth.Repository) error) error {
	return fn(ctx, m)
}

func (m *memoryRepo) stored(t *testing.T, email string) auth.Account {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	account, ok := m.byEmail[email]
	require.True(t, ok, "account %s not stored", email)
	return account
}

func (m *memoryRepo) findCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.finds
}

type mailRecorder struct {
	mu   sync.Mutex
	sent []mail.Message
	err  error
}

func (r *mailRecorder) EnqueueEmail(ctx context.Context, msg mail.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, msg)
	return nil
}

func (r *mailRecorder) last(t *testing.T) mail.Message {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	require.NotEmpty(t, r.sent)
	return r.sent[len(r.sent)-1]
}

func (r *mailRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}

type avatarStub struct {
	url string
	err error
}

func (a avatarStub) Lookup(ctx context.Context, email string) (string, error) {
	return a.url, a.err
}

type uploaderStub struct {
	url        string
	identity   string
	identities []string
	body       []byte
}

func (u *uploaderStub) Upload(ctx context.Context, file io.Reader, identity string) (string, error) {
	body, err := io.ReadAll(file)
	if err != nil {
		return "", err
	}
	u.identity = identity
	u.identities = append(u.identities, identity)
	u.body = body
	return u.url, nil
}

type cacheRecorder struct {
	mu      sync.Mutex
	entries map[string]auth.Account
	ttls    map[string]time.Duration
}

func newCacheRecorder() *cacheRecorder {
	return &cacheRecorder{entries: make(map[string]auth.Account), ttls: make(map[string]time.Duration)}
}

func (c *cacheRecorder) Get(ctx context.Context, email string) (*auth.Account, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	account, ok := c.entries[email]
	if !ok {
		return nil, false
	}
	return &account, true
}

func (c *cacheRecorder) Put(ctx context.Context, email string, account *auth.Account, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[email] = *account
	c.ttls[email] = ttl
}

func (c *cacheRecorder) Invalidate(ctx context.Context, email string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, email)
	delete(c.ttls, email)
}

func newCodec(t *testing.T) *auth.TokenCodec {
	t.Helper()
	codec, err := auth.NewTokenCodec(auth.TokenConfig{Secret: []byte("unit-test-secret")})
	require.NoError(t, err)
	return codec
}

type fixture struct {
	repo     *memoryRepo
	mail     *mailRecorder
	cache    *cacheRecorder
	uploader *uploaderStub
	codec    *auth.TokenCodec
	service  *auth.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		repo:     newMemoryRepo(),
		mail:     &mailRecorder{},
		cache:    newCacheRecorder(),
		uploader: &uploaderStub{url: "https://cdn.example.com/ContactsApp/user-1?v=1"},
		codec:    newCodec(t),
	}
	f.service = auth.NewService(auth.ServiceDeps{
		Repo:     f.repo,
		Hasher:   auth.NewBcryptHasher(bcrypt.MinCost),
		Codec:    f.codec,
		Cache:    f.cache,
		Mail:     f.mail,
		Avatars:  avatarStub{url: "https://www.gravatar.com/avatar/abc"},
		Uploader: f.uploader,
		BaseURL:  "http://contacts.test",
	})
	return f
}

// signupConfirmed registers and confirms the a@x.com account.
func (f *fixture) signupConfirmed(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	_, err := f.service.Signup(ctx, auth.SignupInput{Username: "alice", Email: "a@x.com", Password: "password1"})
	require.NoError(t, err)
	_, err = f.service.ConfirmEmail(ctx, f.mail.last(t).Token)
	require.NoError(t, err)
}
