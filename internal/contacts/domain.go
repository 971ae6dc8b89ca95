package contacts

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/odyssey-erp/contacts/internal/platform/httpx"
)

// DateLayout is the wire format of birthdates.
const DateLayout = "2006-01-02"

var (
	// ErrNotFound is returned when the contact does not exist or belongs to someone else.
	ErrNotFound = fmt.Errorf("contact %w", httpx.ErrNotFound)
	// ErrDuplicate is returned when the owner already has a contact with the email.
	ErrDuplicate = fmt.Errorf("contact email %w", httpx.ErrDuplicate)
)

// Date is a calendar date without time of day.
type Date struct {
	time.Time
}

// NewDate builds a calendar date in UTC.
func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// MarshalJSON encodes d as "YYYY-MM-DD".
func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Format(DateLayout))
}

// UnmarshalJSON decodes "YYYY-MM-DD".
func (d *Date) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	t, err := time.Parse(DateLayout, raw)
	if err != nil {
		return fmt.Errorf("birthdate must look like %s", DateLayout)
	}
	d.Time = t
	return nil
}

// Contact is an address book entry owned by one account.
type Contact struct {
	ID             int64     `json:"id"`
	UserID         int64     `json:"-"`
	FirstName      string    `json:"first_name"`
	LastName       string    `json:"last_name"`
	Email          string    `json:"email"`
	PhoneNumber    string    `json:"phonenumber"`
	Birthdate      *Date     `json:"birthdate"`
	AdditionalInfo *string   `json:"additional_info"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Input carries the writable fields of a contact.
type Input struct {
	FirstName      string  `json:"first_name" validate:"required,min=3,max=50"`
	LastName       string  `json:"last_name" validate:"required,min=5,max=50"`
	Email          string  `json:"email" validate:"required,email,max=150"`
	PhoneNumber    string  `json:"phonenumber" validate:"required,min=12,max=15"`
	Birthdate      *Date   `json:"birthdate"`
	AdditionalInfo *string `json:"additional_info" validate:"omitempty,max=300"`
}

// ListFilter narrows List results. Text filters match substrings, case-insensitively.
type ListFilter struct {
	Limit     int
	Offset    int
	FirstName string
	LastName  string
	Email     string
}

// Paging bounds.
const (
	DefaultLimit = 10
	MinLimit     = 10
	MaxLimit     = 100
	SearchLimit  = 100
)

// Birthday window bounds, in days.
const (
	DefaultBirthdayDays = 7
	MaxBirthdayDays     = 366
)

// DayRange is an inclusive range of "MM-DD" keys within one calendar year.
type DayRange struct {
	From string
	To   string
}

// Reminder groups the upcoming birthdays of one confirmed owner.
type Reminder struct {
	OwnerID    int64
	OwnerEmail string
	OwnerName  string
	Contacts   []Contact
}
