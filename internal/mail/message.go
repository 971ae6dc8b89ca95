// Package mail renders and delivers account emails.
package mail

import "errors"

// Kind selects the template used for a message.
type Kind string

const (
	KindConfirmation   Kind = "confirmation"
	KindRecovery       Kind = "recovery"
	KindBirthdayDigest Kind = "birthdays"
)

// Message is the payload queued for delivery.
type Message struct {
	Kind     Kind   `json:"kind"`
	To       string `json:"to"`
	Username string `json:"username"`
	Token    string `json:"token"`
	BaseURL  string `json:"base_url"`

	Birthdays []Birthday `json:"birthdays,omitempty"`
}

// Birthday is one line of a birthday digest.
type Birthday struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Date  string `json:"date"`
}

// ErrUnknownKind is returned when no template exists for a message kind.
var ErrUnknownKind = errors.New("mail: unknown message kind")

// Validate reports whether m can be rendered.
func (m Message) Validate() error {
	if m.To == "" {
		return errors.New("mail: recipient is empty")
	}
	switch m.Kind {
	case KindConfirmation, KindRecovery:
		if m.Token == "" {
			return errors.New("mail: token is empty")
		}
	case KindBirthdayDigest:
		if len(m.Birthdays) == 0 {
			return errors.New("mail: digest has no birthdays")
		}
	default:
		return ErrUnknownKind
	}
	return nil
}
