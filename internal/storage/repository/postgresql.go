// Package repository реализует хранилище прав доступа на PostgreSQL (pgx/v5).
// Многошаговые изменения выполняются в транзакции, строки блокируются через SELECT ... FOR UPDATE.
package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/magabrotheeeer/vpn-entitlements/internal/lib/sl"
	"github.com/magabrotheeeer/vpn-entitlements/internal/migrations"
	"github.com/magabrotheeeer/vpn-entitlements/internal/storage"
)

// querier — общее подмножество pgxpool.Pool и pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Storage реализует storage.Store поверх пула соединений.
type Storage struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

var _ storage.Store = (*Storage)(nil)

// New подключается к PostgreSQL и проверяет соединение.
func New(ctx context.Context, dsn string, maxConns int32, log *slog.Logger) (*Storage, error) {
	const op = "storage.New"

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err = pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &Storage{pool: pool, log: log}, nil
}

// Migrate применяет встроенные миграции через database/sql поверх того же пула.
func (s *Storage) Migrate() error {
	const op = "storage.Migrate"
	db := stdlib.OpenDBFromPool(s.pool)
	defer func() {
		_ = db.Close()
	}()
	if err := migrations.Run(db); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// MigrationVersion возвращает текущую версию схемы.
func (s *Storage) MigrationVersion() (uint, bool, error) {
	const op = "storage.MigrationVersion"
	db := stdlib.OpenDBFromPool(s.pool)
	defer func() {
		_ = db.Close()
	}()
	version, dirty, err := migrations.Version(db)
	if err != nil {
		return 0, false, fmt.Errorf("%s: %w", op, err)
	}
	return version, dirty, nil
}

// InTx выполняет fn в транзакции: ошибка или паника откатывают её.
func (s *Storage) InTx(ctx context.Context, fn func(ctx context.Context, tx storage.Tx) error) error {
	const op = "storage.InTx"

	pgTx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%s: begin: %w", op, err)
	}
	defer func() {
		if p := recover(); p != nil {
			if rbErr := pgTx.Rollback(ctx); rbErr != nil {
				s.log.Error("rollback during panic recovery failed", sl.Err(rbErr))
			}
			panic(p)
		}
	}()

	if err := fn(ctx, &Tx{q: pgTx}); err != nil {
		if rbErr := pgTx.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("%s: rollback: %v (original error: %w)", op, rbErr, err)
		}
		return err
	}
	if err := pgTx.Commit(ctx); err != nil {
		return fmt.Errorf("%s: commit: %w", op, err)
	}
	return nil
}

func (s *Storage) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Storage) Close() {
	s.pool.Close()
}

// Tx реализует storage.Tx поверх pgx.Tx.
type Tx struct {
	q querier
}

var _ storage.Tx = (*Tx)(nil)

func mapErr(op string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23503" {
		return fmt.Errorf("%s: %s: %w", op, pgErr.ConstraintName, storage.ErrNotFound)
	}
	return fmt.Errorf("%s: %w", op, err)
}
