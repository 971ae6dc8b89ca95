package contacts

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/odyssey-erp/contacts/internal/platform/db"
)

// Repository persists contacts in PostgreSQL. Every query is scoped by owner.
type Repository struct {
	db db.DBTX
}

// NewRepository constructs Repository.
func NewRepository(conn db.DBTX) *Repository {
	return &Repository{db: conn}
}

const contactColumns = `id, user_id, first_name, last_name, email, phonenumber, birthdate, additional_info, created_at, updated_at`

// List returns a page of the owner's contacts ordered by id.
func (r *Repository) List(ctx context.Context, ownerID int64, filter ListFilter) ([]Contact, error) {
	where := []string{"user_id = $1"}
	args := []any{ownerID}
	addLike := func(column, value string) {
		if value == "" {
			return
		}
		args = append(args, "%"+escapeLike(value)+"%")
		where = append(where, column+" ILIKE $"+strconv.Itoa(len(args)))
	}
	addLike("first_name", filter.FirstName)
	addLike("last_name", filter.LastName)
	addLike("email", filter.Email)

	args = append(args, filter.Limit, filter.Offset)
	query := `SELECT ` + contactColumns + ` FROM contacts WHERE ` + strings.Join(where, " AND ") +
		fmt.Sprintf(` ORDER BY id LIMIT $%d OFFSET $%d`, len(args)-1, len(args))
	return r.query(ctx, query, args...)
}

// Search matches query against first name, last name and email.
func (r *Repository) Search(ctx context.Context, ownerID int64, query string, limit int) ([]Contact, error) {
	pattern := "%" + escapeLike(query) + "%"
	return r.query(ctx, `SELECT `+contactColumns+` FROM contacts
WHERE user_id = $1 AND (first_name ILIKE $2 OR last_name ILIKE $2 OR email ILIKE $2)
ORDER BY id LIMIT $3`, ownerID, pattern, limit)
}

// Birthdays returns contacts whose birthday month and day fall in any of ranges,
// ordered by how soon the birthday comes after the first range start.
func (r *Repository) Birthdays(ctx context.Context, ownerID int64, ranges []DayRange) ([]Contact, error) {
	if len(ranges) == 0 {
		return nil, nil
	}
	args := []any{ownerID}
	clauses := make([]string, 0, len(ranges))
	for _, rng := range ranges {
		args = append(args, rng.From, rng.To)
		clauses = append(clauses, fmt.Sprintf("to_char(birthdate, 'MM-DD') BETWEEN $%d AND $%d", len(args)-1, len(args)))
	}
	query := `SELECT ` + contactColumns + ` FROM contacts
WHERE user_id = $1 AND birthdate IS NOT NULL AND (` + strings.Join(clauses, " OR ") + `)
ORDER BY to_char(birthdate, 'MM-DD') < $2, to_char(birthdate, 'MM-DD'), id`
	return r.query(ctx, query, args...)
}

// Reminders returns, for every confirmed account, the contacts whose birthday falls in ranges.
func (r *Repository) Reminders(ctx context.Context, ranges []DayRange) ([]Reminder, error) {
	if len(ranges) == 0 {
		return nil, nil
	}
	args := make([]any, 0, len(ranges)*2)
	clauses := make([]string, 0, len(ranges))
	for _, rng := range ranges {
		args = append(args, rng.From, rng.To)
		clauses = append(clauses, fmt.Sprintf("to_char(c.birthdate, 'MM-DD') BETWEEN $%d AND $%d", len(args)-1, len(args)))
	}
	query := `SELECT u.id, u.email, u.username, c.id, c.first_name, c.last_name, c.email, c.birthdate
FROM contacts c JOIN users u ON u.id = c.user_id
WHERE u.confirmed AND c.birthdate IS NOT NULL AND (` + strings.Join(clauses, " OR ") + `)
ORDER BY u.id, to_char(c.birthdate, 'MM-DD') < $1, to_char(c.birthdate, 'MM-DD'), c.id`
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("contacts: reminders: %w", err)
	}
	defer rows.Close()

	var result []Reminder
	for rows.Next() {
		var (
			owner     Reminder
			c         Contact
			birthdate pgtype.Date
		)
		if err := rows.Scan(&owner.OwnerID, &owner.OwnerEmail, &owner.OwnerName, &c.ID, &c.FirstName, &c.LastName, &c.Email, &birthdate); err != nil {
			return nil, fmt.Errorf("contacts: scan reminder: %w", err)
		}
		c.UserID = owner.OwnerID
		if birthdate.Valid {
			c.Birthdate = &Date{Time: birthdate.Time}
		}
		if n := len(result); n == 0 || result[n-1].OwnerID != owner.OwnerID {
			result = append(result, owner)
		}
		last := &result[len(result)-1]
		last.Contacts = append(last.Contacts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("contacts: rows: %w", err)
	}
	return result, nil
}

// Get loads one contact.
func (r *Repository) Get(ctx context.Context, ownerID, id int64) (Contact, error) {
	row := r.db.QueryRow(ctx, `SELECT `+contactColumns+` FROM contacts WHERE user_id = $1 AND id = $2`, ownerID, id)
	contact, err := scanContact(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Contact{}, ErrNotFound
		}
		return Contact{}, fmt.Errorf("contacts: get: %w", err)
	}
	return contact, nil
}

// Create inserts c and fills its generated fields.
func (r *Repository) Create(ctx context.Context, c *Contact) error {
	row := r.db.QueryRow(ctx, `INSERT INTO contacts (user_id, first_name, last_name, email, phonenumber, birthdate, additional_info)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING id, created_at, updated_at`,
		c.UserID, c.FirstName, c.LastName, c.Email, c.PhoneNumber, toPGDate(c.Birthdate), c.AdditionalInfo)
	if err := row.Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return mapWriteError("create", err)
	}
	return nil
}

// Update replaces every writable field of c.
func (r *Repository) Update(ctx context.Context, c *Contact) error {
	row := r.db.QueryRow(ctx, `UPDATE contacts
SET first_name = $3, last_name = $4, email = $5, phonenumber = $6, birthdate = $7, additional_info = $8, updated_at = NOW()
WHERE user_id = $1 AND id = $2
RETURNING created_at, updated_at`,
		c.UserID, c.ID, c.FirstName, c.LastName, c.Email, c.PhoneNumber, toPGDate(c.Birthdate), c.AdditionalInfo)
	if err := row.Scan(&c.CreatedAt, &c.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return mapWriteError("update", err)
	}
	return nil
}

// Delete removes one contact.
func (r *Repository) Delete(ctx context.Context, ownerID, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM contacts WHERE user_id = $1 AND id = $2`, ownerID, id)
	if err != nil {
		return fmt.Errorf("contacts: delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) query(ctx context.Context, sql string, args ...any) ([]Contact, error) {
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("contacts: query: %w", err)
	}
	defer rows.Close()

	result := make([]Contact, 0)
	for rows.Next() {
		contact, err := scanContact(rows)
		if err != nil {
			return nil, fmt.Errorf("contacts: scan: %w", err)
		}
		result = append(result, contact)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("contacts: rows: %w", err)
	}
	return result, nil
}

func scanContact(row pgx.Row) (Contact, error) {
	var (
		c         Contact
		birthdate pgtype.Date
	)
	err := row.Scan(&c.ID, &c.UserID, &c.FirstName, &c.LastName, &c.Email, &c.PhoneNumber, &birthdate, &c.AdditionalInfo, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return Contact{}, err
	}
	if birthdate.Valid {
		c.Birthdate = &Date{Time: birthdate.Time}
	}
	return c, nil
}

func toPGDate(d *Date) pgtype.Date {
	if d == nil {
		return pgtype.Date{}
	}
	return pgtype.Date{Time: d.Time, Valid: true}
}

func mapWriteError(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
		return ErrDuplicate
	}
	return fmt.Errorf("contacts: %s: %w", op, err)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
