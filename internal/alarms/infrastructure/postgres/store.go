// Package postgres implements the alarm engine store on PostgreSQL via
// database/sql and the pgx stdlib driver.
package postgres

import (
	"context"
	"database/sql"
	"errors"

	"shopfloor-cloud/internal/alarms/store"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store runs the alarm engine operations against Postgres. Outside a
// transaction each call autocommits; InTx hands fn a Store bound to a
// repeatable-read transaction.
type Store struct {
	q  querier
	db *sql.DB
}

// NewStore constructs a store over db.
func NewStore(db *sql.DB) *Store {
	return &Store{q: db, db: db}
}

// InTx runs fn inside one repeatable-read transaction. The alarm check
// reads the log and writes events under a single snapshot, so a
// concurrent check of the same alarm aborts instead of double-firing.
func (s *Store) InTx(ctx context.Context, fn func(store.Store) error) error {
	if s == nil || s.db == nil {
		return errors.New("postgres store: nil db")
	}
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead})
	if err != nil {
		return err
	}
	if err := fn(&Store{q: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (s *Store) ready() error {
	if s == nil || s.q == nil {
		return errors.New("postgres store: nil db")
	}
	return nil
}
