package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/contacts/internal/platform/httpx"
)

// DefaultSessionTTL is how long a resolved account stays cached.
const DefaultSessionTTL = 100 * time.Second

// lookupTimeout bounds a shared store lookup. It is detached from the caller
// that started it, so one disconnecting client cannot fail the others.
const lookupTimeout = 5 * time.Second

// AccountFinder loads accounts on a cache miss.
type AccountFinder interface {
	FindByEmail(ctx context.Context, email string) (*Account, error)
}

// Resolver turns an access token into the account that owns it.
type Resolver struct {
	codec  *TokenCodec
	cache  SessionCache
	finder AccountFinder
	ttl    time.Duration
	logger *slog.Logger
	group  singleflight.Group
}

// NewResolver wires a Resolver. ttl <= 0 falls back to DefaultSessionTTL.
func NewResolver(codec *TokenCodec, cache SessionCache, finder AccountFinder, ttl time.Duration, logger *slog.Logger) *Resolver {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{codec: codec, cache: cache, finder: finder, ttl: ttl, logger: logger}
}

// Resolve validates token and returns a copy of the owning account.
func (r *Resolver) Resolve(ctx context.Context, token string) (*Account, error) {
	if strings.TrimSpace(token) == "" {
		return nil, ErrMissingCredentials
	}
	email, err := r.codec.Decode(token, ScopeAccess)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
	}
	if r.cache != nil {
		if cached, ok := r.cache.Get(ctx, email); ok {
			return cached, nil
		}
	}

	// Concurrent misses for one email share a single store lookup.
	ch := r.group.DoChan(email, func() (interface{}, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), lookupTimeout)
		defer cancel()
		account, err := r.finder.FindByEmail(loadCtx, email)
		if err != nil {
			return nil, err
		}
		if r.cache != nil {
			r.cache.Put(loadCtx, email, account, r.ttl)
		}
		return account, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			if errors.Is(res.Err, ErrNotFound) {
				return nil, ErrInvalidCredentials
			}
			return nil, res.Err
		}
		account := *res.Val.(*Account)
		return &account, nil
	}
}

// Middleware rejects requests without a valid bearer token and stores the
// resolved account in the request context.
func (r *Resolver) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		account, err := r.Resolve(req.Context(), BearerToken(req))
		if err != nil {
			if !errors.Is(err, ErrMissingCredentials) && !errors.Is(err, ErrInvalidCredentials) {
				r.logger.Error("resolve identity", slog.Any("error", err))
			}
			w.Header().Set("WWW-Authenticate", "Bearer")
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "Could not validate credentials")
			return
		}
		next.ServeHTTP(w, req.WithContext(ContextWithAccount(req.Context(), account)))
	})
}

// BearerToken extracts the token from an "Authorization: Bearer" header.
func BearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

type accountContextKey struct{}

// ContextWithAccount stores the authenticated account in ctx.
func ContextWithAccount(ctx context.Context, account *Account) context.Context {
	return context.WithValue(ctx, accountContextKey{}, account)
}

// AccountFromContext returns the authenticated account, or nil.
func AccountFromContext(ctx context.Context) *Account {
	account, _ := ctx.Value(accountContextKey{}).(*Account)
	return account
}
