// Package postgres is the Postgres-backed persistence layer for the
// orchestration core's SagaInstance, LedgerReservation/LimitCounter and
// TransactionEvent/outbox aggregates, plus routing rules and fraud toggles.
// The migrations also create queued_messages, but no repository here reads
// or writes it. Tenant filtering varies by query: the reservation, counter,
// routing-rule and fraud-toggle lookups filter on a tenant_id argument;
// SagaRepository.Get and ListActive, LimitRepository.ListExpired and the
// outbox queries have no tenant_id predicate, and SagaRepository.GetForTenant
// checks the loaded row with tenant.Guard.
package postgres

import (
	"context"
	"embed"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Open establishes a pooled Postgres connection via sqlx, backed by
// github.com/lib/pq, and verifies connectivity with a ping.
func Open(ctx context.Context, dsn string, maxOpen, maxIdle int, connMaxLife time.Duration) (*sqlx.DB, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}
	if maxOpen > 0 {
		db.SetMaxOpenConns(maxOpen)
	}
	if maxIdle > 0 {
		db.SetMaxIdleConns(maxIdle)
	}
	if connMaxLife > 0 {
		db.SetConnMaxLifetime(connMaxLife)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return db, nil
}

// Migrate applies every pending migration embedded under migrations/ using
// golang-migrate, against the database dsn points at. It is idempotent:
// calling it against an already-current schema is a no-op.
func Migrate(dsn string) error {
	src, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return fmt.Errorf("postgres: loading embedded migrations: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, dsn)
	if err != nil {
		return fmt.Errorf("postgres: constructing migrator: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("postgres: applying migrations: %w", err)
	}
	return nil
}
