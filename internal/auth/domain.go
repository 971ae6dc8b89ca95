package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// TokenTypeBearer is reported alongside issued token pairs.
const TokenTypeBearer = "bearer"

// Account represents a registered user. Credentials never leave the process:
// PasswordHash and RefreshToken are excluded from JSON, which also keeps them
// out of session cache snapshots.
type Account struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Avatar       *string   `json:"avatar"`
	RefreshToken *string   `json:"-"`
	Confirmed    bool      `json:"confirmed"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TokenPair is returned by login and refresh.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
}

// SignupInput carries the fields needed to register an account.
type SignupInput struct {
	Username string `json:"username" validate:"required,min=5,max=50"`
	Email    string `json:"email" validate:"required,email,max=150"`
	Password string `json:"password" validate:"required,min=6,max=72"`
}

// Message is the body of flows that only report an outcome.
type Message struct {
	Message string `json:"message"`
}

// Outcome messages shared by the email flows.
const (
	MsgAlreadyConfirmed = "Your email is already confirmed"
	MsgEmailConfirmed   = "Email confirmed"
	MsgCheckEmail       = "Check your email for confirmation."
	MsgCheckRecovery    = "Check your email for instruction to recovery."
	MsgPasswordReset    = "Password was successfully reseted"
)

// passwordFingerprint binds a recovery token to the hash it was issued against.
func passwordFingerprint(hash string) string {
	sum := sha256.Sum256([]byte(hash))
	return hex.EncodeToString(sum[:8])
}
