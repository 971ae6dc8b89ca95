package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Scope restricts what a token may be used for.
type Scope string

// Token scopes. Confirmation and recovery tokens carry distinct scopes so a
// confirmation link can never be replayed against the password reset endpoint.
const (
	ScopeAccess        Scope = "access_token"
	ScopeRefresh       Scope = "refresh_token"
	ScopeEmailConfirm  Scope = "email_confirm"
	ScopePasswordReset Scope = "password_reset"
)

// Default token lifetimes.
const (
	DefaultAccessTTL  = 15 * time.Minute
	DefaultRefreshTTL = 7 * 24 * time.Hour
	DefaultEmailTTL   = 7 * 24 * time.Hour
)

// TokenConfig is the signing configuration, built once at startup.
type TokenConfig struct {
	Secret     []byte
	Algorithm  string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	EmailTTL   time.Duration
}

// Claims is the JWT payload shared by every token kind.
type Claims struct {
	jwt.RegisteredClaims
	Scope       Scope  `json:"scope,omitempty"`
	Fingerprint string `json:"pwd,omitempty"`
}

// EmailClaims is what an email-action token proves.
type EmailClaims struct {
	Subject     string
	Fingerprint string
}

// TokenCodec signs and verifies scoped, expiring tokens with a symmetric key.
type TokenCodec struct {
	secret     []byte
	method     jwt.SigningMethod
	accessTTL  time.Duration
	refreshTTL time.Duration
	emailTTL   time.Duration
	now        func() time.Time
}

// NewTokenCodec validates cfg and returns a codec. Only HMAC algorithms are accepted.
func NewTokenCodec(cfg TokenConfig) (*TokenCodec, error) {
	if len(cfg.Secret) == 0 {
		return nil, errors.New("auth: signing secret is empty")
	}
	alg := cfg.Algorithm
	if alg == "" {
		alg = jwt.SigningMethodHS256.Alg()
	}
	method, ok := jwt.GetSigningMethod(alg).(*jwt.SigningMethodHMAC)
	if !ok {
		return nil, fmt.Errorf("auth: unsupported signing algorithm %q", alg)
	}
	codec := &TokenCodec{
		secret:     cfg.Secret,
		method:     method,
		accessTTL:  orDefault(cfg.AccessTTL, DefaultAccessTTL),
		refreshTTL: orDefault(cfg.RefreshTTL, DefaultRefreshTTL),
		emailTTL:   orDefault(cfg.EmailTTL, DefaultEmailTTL),
		now:        time.Now,
	}
	return codec, nil
}

// IssueAccess returns a short-lived access token for subject.
func (c *TokenCodec) IssueAccess(subject string) (string, error) {
	return c.issue(subject, ScopeAccess, c.accessTTL, "")
}

// IssueRefresh returns a long-lived refresh token for subject.
func (c *TokenCodec) IssueRefresh(subject string) (string, error) {
	return c.issue(subject, ScopeRefresh, c.refreshTTL, "")
}

// IssueEmailAction returns a confirmation or recovery token. fingerprint is
// embedded verbatim and handed back by DecodeEmailAction.
func (c *TokenCodec) IssueEmailAction(subject string, scope Scope, fingerprint string) (string, error) {
	if scope != ScopeEmailConfirm && scope != ScopePasswordReset {
		return "", fmt.Errorf("auth: %q is not an email-action scope", scope)
	}
	return c.issue(subject, scope, c.emailTTL, fingerprint)
}

// Decode verifies token and returns its subject when the scope matches required.
func (c *TokenCodec) Decode(token string, required Scope) (string, error) {
	claims, err := c.parse(token)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if claims.Scope != required {
		return "", ErrWrongScope
	}
	return claims.Subject, nil
}

// DecodeEmailAction verifies an email-action token of the given scope.
func (c *TokenCodec) DecodeEmailAction(token string, scope Scope) (EmailClaims, error) {
	claims, err := c.parse(token)
	if err != nil {
		return EmailClaims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Scope != scope {
		return EmailClaims{}, fmt.Errorf("%w: scope %q", ErrInvalidToken, claims.Scope)
	}
	return EmailClaims{Subject: claims.Subject, Fingerprint: claims.Fingerprint}, nil
}

func (c *TokenCodec) issue(subject string, scope Scope, ttl time.Duration, fingerprint string) (string, error) {
	if subject == "" {
		return "", errors.New("auth: token subject is empty")
	}
	now := c.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
		Scope:       scope,
		Fingerprint: fingerprint,
	}
	signed, err := jwt.NewWithClaims(c.method, claims).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, nil
}

func (c *TokenCodec) parse(token string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{c.method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		return nil, err
	}
	if claims.Subject == "" {
		return nil, errors.New("token has no subject")
	}
	return claims, nil
}

func orDefault(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}
