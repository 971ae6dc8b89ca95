package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Migration commands understood by Migrate.
const (
	MigrateUp     = "up"
	MigrateDown   = "down"
	MigrateStatus = "status"
)

// Migrate applies the embedded goose migrations against dsn.
func Migrate(ctx context.Context, dsn, command string) error {
	conn, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("platform/db: open: %w", err)
	}
	defer conn.Close()

	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("platform/db: dialect: %w", err)
	}

	switch command {
	case "", MigrateUp:
		err = goose.UpContext(ctx, conn, "migrations")
	case MigrateDown:
		err = goose.DownContext(ctx, conn, "migrations")
	case MigrateStatus:
		err = goose.StatusContext(ctx, conn, "migrations")
	default:
		return fmt.Errorf("platform/db: unknown migration command %q", command)
	}
	if err != nil {
		return fmt.Errorf("platform/db: migrate %s: %w", command, err)
	}
	return nil
}
