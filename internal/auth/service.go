package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/odyssey-erp/contacts/internal/mail"
)

// DefaultAvatarCacheTTL is how long a snapshot stays cached after an avatar change.
const DefaultAvatarCacheTTL = 300 * time.Second

// MailQueue hands account emails to the background worker.
type MailQueue interface {
	EnqueueEmail(ctx context.Context, msg mail.Message) error
}

// AvatarLookup resolves a default avatar URL for an email address.
type AvatarLookup interface {
	Lookup(ctx context.Context, email string) (string, error)
}

// AvatarUploader stores an image and returns its public URL.
type AvatarUploader interface {
	Upload(ctx context.Context, file io.Reader, identity string) (string, error)
}

// ServiceDeps groups the collaborators of Service. Mail, Avatars and Uploader are optional.
type ServiceDeps struct {
	Repo           Repository
	Hasher         Hasher
	Codec          *TokenCodec
	Cache          SessionCache
	Mail           MailQueue
	Avatars        AvatarLookup
	Uploader       AvatarUploader
	Logger         *slog.Logger
	BaseURL        string
	AvatarCacheTTL time.Duration
}

// Service implements the account flows.
type Service struct {
	repo      Repository
	hasher    Hasher
	codec     *TokenCodec
	cache     SessionCache
	mail      MailQueue
	avatars   AvatarLookup
	uploader  AvatarUploader
	logger    *slog.Logger
	baseURL   string
	avatarTTL time.Duration
}

// NewService constructs a Service.
func NewService(deps ServiceDeps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ttl := deps.AvatarCacheTTL
	if ttl <= 0 {
		ttl = DefaultAvatarCacheTTL
	}
	return &Service{
		repo:      deps.Repo,
		hasher:    deps.Hasher,
		codec:     deps.Codec,
		cache:     deps.Cache,
		mail:      deps.Mail,
		avatars:   deps.Avatars,
		uploader:  deps.Uploader,
		logger:    logger,
		baseURL:   deps.BaseURL,
		avatarTTL: ttl,
	}
}

// Signup registers an unconfirmed account and queues its confirmation email.
func (s *Service) Signup(ctx context.Context, input SignupInput) (*Account, error) {
	digest, err := s.hasher.Hash(input.Password)
	if err != nil {
		return nil, fmt.Errorf("auth: hash password: %w", err)
	}
	account := &Account{
		Username:     input.Username,
		Email:        input.Email,
		PasswordHash: digest,
		Avatar:       s.defaultAvatar(ctx, input.Email),
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		_, err := repo.FindByEmail(ctx, input.Email)
		switch {
		case err == nil:
			return ErrConflict
		case !errors.Is(err, ErrNotFound):
			return err
		}
		return repo.Insert(ctx, account)
	})
	if err != nil {
		return nil, err
	}
	s.sendEmailAction(ctx, account, mail.KindConfirmation)
	return account, nil
}

// Login exchanges credentials for a token pair.
func (s *Service) Login(ctx context.Context, email, password string) (TokenPair, error) {
	account, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return TokenPair{}, ErrInvalidEmail
		}
		return TokenPair{}, err
	}
	if !account.Confirmed {
		return TokenPair{}, ErrEmailNotConfirmed
	}
	if !s.hasher.Verify(password, account.PasswordHash) {
		return TokenPair{}, ErrInvalidPassword
	}
	pair, err := s.issuePair(account.Email)
	if err != nil {
		return TokenPair{}, err
	}
	if err := s.repo.SetRefreshToken(ctx, account.ID, &pair.RefreshToken); err != nil {
		return TokenPair{}, err
	}
	return pair, nil
}

// Refresh rotates a refresh token. A token that no longer matches the stored
// one revokes the session.
func (s *Service) Refresh(ctx context.Context, token string) (TokenPair, error) {
	email, err := s.codec.Decode(token, ScopeRefresh)
	if err != nil {
		return TokenPair{}, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	account, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return TokenPair{}, ErrUnauthorized
		}
		return TokenPair{}, err
	}
	if account.RefreshToken == nil || *account.RefreshToken != token {
		s.revoke(ctx, account)
		return TokenPair{}, ErrUnauthorized
	}
	pair, err := s.issuePair(account.Email)
	if err != nil {
		return TokenPair{}, err
	}
	swapped, err := s.repo.SwapRefreshToken(ctx, account.ID, &token, &pair.RefreshToken)
	if err != nil {
		return TokenPair{}, err
	}
	if !swapped {
		// Another refresh committed first.
		return TokenPair{}, ErrUnauthorized
	}
	return pair, nil
}

// Logout drops the stored refresh token of account.
func (s *Service) Logout(ctx context.Context, account *Account) error {
	if err := s.repo.SetRefreshToken(ctx, account.ID, nil); err != nil {
		return err
	}
	s.invalidate(ctx, account.Email)
	return nil
}

// ConfirmEmail marks the token's account as confirmed.
func (s *Service) ConfirmEmail(ctx context.Context, token string) (Message, error) {
	claims, err := s.codec.DecodeEmailAction(token, ScopeEmailConfirm)
	if err != nil {
		return Message{}, err
	}
	account, err := s.repo.FindByEmail(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Message{}, ErrVerification
		}
		return Message{}, err
	}
	if account.Confirmed {
		return Message{Message: MsgAlreadyConfirmed}, nil
	}
	if err := s.repo.SetConfirmed(ctx, account.ID); err != nil {
		return Message{}, err
	}
	s.invalidate(ctx, account.Email)
	return Message{Message: MsgEmailConfirmed}, nil
}

// RequestConfirmation queues a new confirmation email. Unknown addresses get
// the same answer as known ones.
func (s *Service) RequestConfirmation(ctx context.Context, email string) (Message, error) {
	account, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Message{Message: MsgCheckEmail}, nil
		}
		return Message{}, err
	}
	if account.Confirmed {
		return Message{Message: MsgAlreadyConfirmed}, nil
	}
	s.sendEmailAction(ctx, account, mail.KindConfirmation)
	return Message{Message: MsgCheckEmail}, nil
}

// RequestRecovery queues a password recovery email.
func (s *Service) RequestRecovery(ctx context.Context, email string) (Message, error) {
	account, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Message{Message: MsgCheckRecovery}, nil
		}
		return Message{}, err
	}
	s.sendEmailAction(ctx, account, mail.KindRecovery)
	return Message{Message: MsgCheckRecovery}, nil
}

// CompleteRecovery sets a new password. Each recovery token works once: it is
// bound to the password hash current when it was issued.
func (s *Service) CompleteRecovery(ctx context.Context, token, newPassword string) (Message, error) {
	claims, err := s.codec.DecodeEmailAction(token, ScopePasswordReset)
	if err != nil {
		return Message{}, err
	}
	account, err := s.repo.FindByEmail(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Message{}, ErrRecovering
		}
		return Message{}, err
	}
	if claims.Fingerprint != passwordFingerprint(account.PasswordHash) {
		return Message{}, fmt.Errorf("%w: token already used", ErrInvalidToken)
	}
	digest, err := s.hasher.Hash(newPassword)
	if err != nil {
		return Message{}, fmt.Errorf("auth: hash password: %w", err)
	}
	changed, err := s.repo.SetPassword(ctx, account.ID, account.PasswordHash, digest)
	if err != nil {
		return Message{}, err
	}
	if !changed {
		return Message{}, fmt.Errorf("%w: token already used", ErrInvalidToken)
	}
	s.invalidate(ctx, account.Email)
	return Message{Message: MsgPasswordReset}, nil
}

// UpdateAvatar uploads file as the account's avatar and refreshes its cache entry.
func (s *Service) UpdateAvatar(ctx context.Context, account *Account, file io.Reader) (*Account, error) {
	if s.uploader == nil {
		return nil, errors.New("auth: avatar uploads are not configured")
	}
	url, err := s.uploader.Upload(ctx, file, AvatarIdentity(account))
	if err != nil {
		return nil, fmt.Errorf("auth: upload avatar: %w", err)
	}
	current, err := s.repo.SetAvatar(ctx, account.ID, url)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		s.cache.Put(ctx, current.Email, current, s.avatarTTL)
	}
	return current, nil
}

// AvatarIdentity names the stored avatar object of account. Usernames are not
// unique, so the account id is used.
func AvatarIdentity(account *Account) string {
	return "user-" + strconv.FormatInt(account.ID, 10)
}

func (s *Service) issuePair(subject string) (TokenPair, error) {
	access, err := s.codec.IssueAccess(subject)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := s.codec.IssueRefresh(subject)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh, TokenType: TokenTypeBearer}, nil
}

func (s *Service) revoke(ctx context.Context, account *Account) {
	if account.RefreshToken == nil {
		return
	}
	// Only the token seen by this request is dropped.
	if _, err := s.repo.SwapRefreshToken(ctx, account.ID, account.RefreshToken, nil); err != nil {
		s.logger.Error("revoke refresh token", slog.String("email", account.Email), slog.Any("error", err))
	}
}

func (s *Service) defaultAvatar(ctx context.Context, email string) *string {
	if s.avatars == nil {
		return nil
	}
	url, err := s.avatars.Lookup(ctx, email)
	if err != nil || url == "" {
		if err != nil {
			s.logger.Warn("avatar lookup failed", slog.String("email", email), slog.Any("error", err))
		}
		return nil
	}
	return &url
}

// sendEmailAction links to the configured base URL only; request headers are
// never trusted for it.
func (s *Service) sendEmailAction(ctx context.Context, account *Account, kind mail.Kind) {
	if s.mail == nil {
		return
	}
	scope, fingerprint := ScopeEmailConfirm, ""
	if kind == mail.KindRecovery {
		scope, fingerprint = ScopePasswordReset, passwordFingerprint(account.PasswordHash)
	}
	token, err := s.codec.IssueEmailAction(account.Email, scope, fingerprint)
	if err != nil {
		s.logger.Error("issue email token", slog.String("kind", string(kind)), slog.Any("error", err))
		return
	}
	msg := mail.Message{Kind: kind, To: account.Email, Username: account.Username, Token: token, BaseURL: s.baseURL}
	if err := s.mail.EnqueueEmail(ctx, msg); err != nil {
		s.logger.Error("enqueue email", slog.String("kind", string(kind)), slog.String("to", account.Email), slog.Any("error", err))
	}
}

func (s *Service) invalidate(ctx context.Context, email string) {
	if s.cache != nil {
		s.cache.Invalidate(ctx, email)
	}
}
