package store

import (
	"context"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"pkt.systems/pslog"
)

// NewPool creates a new pgxpool connection pool.
func NewPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return pool, nil
}

// MigrationFiles returns the .sql files of fsys in apply order.
func MigrationFiles(fsys fs.FS) ([]string, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// RunMigrations executes every migration in fsys in name order. The scripts
// are idempotent, so this is safe on every start.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool, fsys fs.FS, logger pslog.Logger) error {
	names, err := MigrationFiles(fsys)
	if err != nil {
		return err
	}
	for _, name := range names {
		sql, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if _, err := pool.Exec(ctx, string(sql)); err != nil {
			return fmt.Errorf("exec migration %s: %w", name, err)
		}
		logger.Info("store.migration.applied", "file", name)
	}
	return nil
}

// withUser runs fn in a transaction whose row-level security settings carry
// uc. The settings are transaction-local and vanish on commit or rollback.
func withUser(ctx context.Context, pool *pgxpool.Pool, uc UserContext, mode pgx.TxAccessMode, fn func(pgx.Tx) error) error {
	tx, err := pool.BeginTx(ctx, pgx.TxOptions{AccessMode: mode})
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	const q = `SELECT set_config('app.current_user_id', $1, true), set_config('app.current_user_roles', $2, true)`
	if _, err := tx.Exec(ctx, q, uc.UserID, uc.RolesCSV()); err != nil {
		return fmt.Errorf("set user context: %w", err)
	}
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
