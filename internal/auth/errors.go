package auth

import "errors"

var (
	// ErrNotFound is returned by the account store when no row matches.
	ErrNotFound = errors.New("account not found")
	// ErrConflict is returned by signup when the email is taken.
	ErrConflict = errors.New("account already exists")
	// ErrInvalidEmail is returned by login when no account matches the email.
	ErrInvalidEmail = errors.New("invalid email")
	// ErrInvalidPassword is returned by login when the password does not match.
	ErrInvalidPassword = errors.New("invalid password")
	// ErrEmailNotConfirmed is returned by login for unconfirmed accounts.
	ErrEmailNotConfirmed = errors.New("email not confirmed")
	// ErrUnauthorized covers bad, expired, wrong-scope or stale refresh tokens.
	ErrUnauthorized = errors.New("invalid refresh token")
	// ErrVerification is returned when a confirmation token outlives its account.
	ErrVerification = errors.New("verification error")
	// ErrRecovering is returned when a recovery token outlives its account.
	ErrRecovering = errors.New("recovering error")
	// ErrInvalidToken is returned for malformed or expired email-action tokens.
	ErrInvalidToken = errors.New("invalid token for email verification")

	// ErrInvalidSignature is returned by the codec for malformed, forged or expired tokens.
	ErrInvalidSignature = errors.New("could not validate credentials")
	// ErrWrongScope is returned by the codec when a token is used outside its scope.
	ErrWrongScope = errors.New("invalid scope for token")

	// ErrMissingCredentials is returned by the resolver when no bearer token is present.
	ErrMissingCredentials = errors.New("not authenticated")
	// ErrInvalidCredentials is returned by the resolver for any unusable token.
	ErrInvalidCredentials = errors.New("could not validate credentials")

	// ErrEmptyPassword is returned when hashing an empty password.
	ErrEmptyPassword = errors.New("password cannot be empty")
)
