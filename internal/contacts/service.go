package contacts

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/odyssey-erp/contacts/internal/platform/httpx"
)

// Store is the persistence surface used by Service.
type Store interface {
	List(ctx context.Context, ownerID int64, filter ListFilter) ([]Contact, error)
	Search(ctx context.Context, ownerID int64, query string, limit int) ([]Contact, error)
	Birthdays(ctx context.Context, ownerID int64, ranges []DayRange) ([]Contact, error)
	Get(ctx context.Context, ownerID, id int64) (Contact, error)
	Create(ctx context.Context, c *Contact) error
	Update(ctx context.Context, c *Contact) error
	Delete(ctx context.Context, ownerID, id int64) error
}

// Service implements contact use cases for a single owner at a time.
type Service struct {
	store Store
	now   func() time.Time
}

// NewService constructs Service.
func NewService(store Store) *Service {
	return &Service{store: store, now: time.Now}
}

// List returns the owner's contacts matching filter.
func (s *Service) List(ctx context.Context, ownerID int64, filter ListFilter) ([]Contact, error) {
	if filter.Limit == 0 {
		filter.Limit = DefaultLimit
	}
	if filter.Limit < MinLimit || filter.Limit > MaxLimit {
		return nil, fmt.Errorf("%w: limit must be between %d and %d", httpx.ErrValidation, MinLimit, MaxLimit)
	}
	if filter.Offset < 0 {
		return nil, fmt.Errorf("%w: offset must not be negative", httpx.ErrValidation)
	}
	filter.FirstName = normalize(filter.FirstName)
	filter.LastName = normalize(filter.LastName)
	filter.Email = normalize(filter.Email)
	return s.store.List(ctx, ownerID, filter)
}

// Search runs a free-text query over names and email.
func (s *Service) Search(ctx context.Context, ownerID int64, query string) ([]Contact, error) {
	query = normalize(query)
	if query == "" {
		return nil, fmt.Errorf("%w: query is required", httpx.ErrValidation)
	}
	return s.store.Search(ctx, ownerID, query, SearchLimit)
}

// UpcomingBirthdays returns contacts with a birthday from today through today+days.
// days == 0 selects DefaultBirthdayDays.
func (s *Service) UpcomingBirthdays(ctx context.Context, ownerID int64, days int) ([]Contact, error) {
	if days == 0 {
		days = DefaultBirthdayDays
	}
	if days < 0 || days > MaxBirthdayDays {
		return nil, fmt.Errorf("%w: days must be between 1 and %d", httpx.ErrValidation, MaxBirthdayDays)
	}
	return s.store.Birthdays(ctx, ownerID, BirthdayRanges(s.now(), days))
}

// Get returns one contact.
func (s *Service) Get(ctx context.Context, ownerID, id int64) (Contact, error) {
	return s.store.Get(ctx, ownerID, id)
}

// Create adds a contact for the owner.
func (s *Service) Create(ctx context.Context, ownerID int64, input Input) (Contact, error) {
	contact := fromInput(input)
	contact.UserID = ownerID
	if err := s.store.Create(ctx, &contact); err != nil {
		return Contact{}, err
	}
	return contact, nil
}

// Update replaces a contact. Birthdate and additional info are mandatory here.
func (s *Service) Update(ctx context.Context, ownerID, id int64, input Input) (Contact, error) {
	if input.Birthdate == nil || input.AdditionalInfo == nil {
		return Contact{}, fmt.Errorf("%w: birthdate and additional_info are required", httpx.ErrValidation)
	}
	contact := fromInput(input)
	contact.ID = id
	contact.UserID = ownerID
	if err := s.store.Update(ctx, &contact); err != nil {
		return Contact{}, err
	}
	return contact, nil
}

// Delete removes a contact.
func (s *Service) Delete(ctx context.Context, ownerID, id int64) error {
	return s.store.Delete(ctx, ownerID, id)
}

func fromInput(input Input) Contact {
	c := Contact{
		FirstName:   normalize(input.FirstName),
		LastName:    normalize(input.LastName),
		Email:       strings.TrimSpace(input.Email),
		PhoneNumber: strings.TrimSpace(input.PhoneNumber),
		Birthdate:   input.Birthdate,
	}
	if input.AdditionalInfo != nil {
		info := norm.NFC.String(*input.AdditionalInfo)
		c.AdditionalInfo = &info
	}
	return c
}

func normalize(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}
