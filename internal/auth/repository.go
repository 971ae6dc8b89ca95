package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/odyssey-erp/contacts/internal/platform/db"
)

// Repository persists accounts.
type Repository interface {
	FindByEmail(ctx context.Context, email string) (*Account, error)
	Insert(ctx context.Context, account *Account) error
	SetRefreshToken(ctx context.Context, id int64, token *string) error
	SwapRefreshToken(ctx context.Context, id int64, current, next *string) (bool, error)
	SetConfirmed(ctx context.Context, id int64) error
	SetPassword(ctx context.Context, id int64, current, next string) (bool, error)
	SetAvatar(ctx context.Context, id int64, url string) (*Account, error)
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
}

// PGRepository is the PostgreSQL account store.
type PGRepository struct {
	db   db.DBTX
	pool db.TxBeginner
}

// NewRepository constructs a PGRepository on pool.
func NewRepository(pool db.Pool) *PGRepository {
	return &PGRepository{db: pool, pool: pool}
}

const accountColumns = `id, username, email, password, avatar, refresh_token, confirmed, created_at, updated_at`

// WithTx runs fn against a transaction-scoped repository.
func (r *PGRepository) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	if r.pool == nil {
		return fn(ctx, r)
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &PGRepository{db: tx})
	})
}

// FindByEmail returns ErrNotFound when no account uses email.
func (r *PGRepository) FindByEmail(ctx context.Context, email string) (*Account, error) {
	row := r.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM users WHERE email = $1`, email)
	account, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("auth: find account: %w", err)
	}
	return account, nil
}

func scanAccount(row pgx.Row) (*Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.Username, &a.Email, &a.PasswordHash, &a.Avatar, &a.RefreshToken, &a.Confirmed, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// Insert stores a new account and fills its generated fields.
func (r *PGRepository) Insert(ctx context.Context, account *Account) error {
	row := r.db.QueryRow(ctx, `INSERT INTO users (username, email, password, avatar, confirmed)
VALUES ($1, $2, $3, $4, $5)
RETURNING id, created_at, updated_at`,
		account.Username, account.Email, account.PasswordHash, account.Avatar, account.Confirmed)
	if err := row.Scan(&account.ID, &account.CreatedAt, &account.UpdatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return ErrConflict
		}
		return fmt.Errorf("auth: insert account: %w", err)
	}
	return nil
}

// SetRefreshToken stores token, or clears it when token is nil.
func (r *PGRepository) SetRefreshToken(ctx context.Context, id int64, token *string) error {
	tag, err := r.db.Exec(ctx, `UPDATE users SET refresh_token = $2, updated_at = NOW() WHERE id = $1`, id, token)
	if err != nil {
		return fmt.Errorf("auth: set refresh token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetConfirmed marks the account's email as confirmed.
func (r *PGRepository) SetConfirmed(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `UPDATE users SET confirmed = TRUE, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("auth: confirm account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetPassword replaces the password hash while it still equals current and
// drops the stored refresh token. It reports whether the change happened.
func (r *PGRepository) SetPassword(ctx context.Context, id int64, current, next string) (bool, error) {
	tag, err := r.db.Exec(ctx, `UPDATE users SET password = $3, refresh_token = NULL, updated_at = NOW()
WHERE id = $1 AND password = $2`, id, current, next)
	if err != nil {
		return false, fmt.Errorf("auth: set password: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// SetAvatar stores url and returns the updated account.
func (r *PGRepository) SetAvatar(ctx context.Context, id int64, url string) (*Account, error) {
	row := r.db.QueryRow(ctx, `UPDATE users SET avatar = $2, updated_at = NOW() WHERE id = $1
RETURNING `+accountColumns, id, url)
	account, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("auth: set avatar: %w", err)
	}
	return account, nil
}

// SwapRefreshToken replaces the stored refresh token only while it still equals
// current. It reports whether the swap happened.
func (r *PGRepository) SwapRefreshToken(ctx context.Context, id int64, current, next *string) (bool, error) {
	if current == nil {
		return false, nil
	}
	tag, err := r.db.Exec(ctx, `UPDATE users SET refresh_token = $3, updated_at = NOW()
WHERE id = $1 AND refresh_token = $2`, id, *current, next)
	if err != nil {
		return false, fmt.Errorf("auth: swap refresh token: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
