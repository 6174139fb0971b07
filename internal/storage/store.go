package storage

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/rs/zerolog"

	"github.com/signalnoise/workbench/internal/apperr"
	"github.com/signalnoise/workbench/internal/metrics"
)

const (
	pgSerializationFailure = "40001"
	pgUniqueViolation      = "23505"
	pgForeignKeyViolation  = "23503"

	// commitRetries is the number of times a serializable transaction is
	// re-run after a serialization failure before giving up.
	commitRetries = 3
)

// Store owns the relational schema and all persistence.
type Store struct {
	db     *pgxpool.Pool
	logger zerolog.Logger
}

// Config holds connection settings for New.
type Config struct {
	DatabaseURL    string
	MaxConns       int
	ConnectTimeout time.Duration
}

// New connects to Postgres, applies the schema, and returns the store.
func New(ctx context.Context, cfg Config, logger zerolog.Logger) (*Store, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxConns)
	}
	if cfg.ConnectTimeout > 0 {
		poolCfg.ConnConfig.ConnectTimeout = cfg.ConnectTimeout
	}

	pool, err := pgxpool.ConnectConfig(ctx, poolCfg)
	if err != nil {
		return nil, apperr.Wrap(apperr.Unavailable, "database unreachable", err)
	}

	s := &Store{
		db:     pool,
		logger: logger.With().Str("component", "storage").Logger(),
	}

	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, apperr.Wrap(apperr.Unavailable, "schema migration failed", err)
	}

	s.logger.Info().Msg("Database ready")
	return s, nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.db.Close()
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.Ping(ctx); err != nil {
		return apperr.Wrap(apperr.Unavailable, "database unreachable", err)
	}
	return nil
}

// migrate applies the schema. All statements are idempotent.
func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// withTx runs fn inside a plain read-committed transaction.
func (s *Store) withTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return apperr.Wrap(apperr.Unavailable, "begin transaction", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

// withSerializableRetry runs fn inside a REPEATABLE READ transaction and
// re-runs it up to commitRetries times on serialization failures, with
// jitter between attempts. Concurrent evidence commits for the same
// (hypothesis, segment) pair serialize on the link row; the loser retries
// against the winner's state.
func (s *Store) withSerializableRetry(ctx context.Context, fn func(tx pgx.Tx) error) error {
	var lastErr error
	for attempt := 1; attempt <= commitRetries; attempt++ {
		tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
		if err != nil {
			return apperr.Wrap(apperr.Unavailable, "begin transaction", err)
		}

		err = fn(tx)
		if err == nil {
			err = tx.Commit(ctx)
			if err == nil {
				return nil
			}
		} else {
			_ = tx.Rollback(ctx)
		}
		lastErr = err

		if !isSerializationFailure(err) || attempt == commitRetries {
			return err
		}

		metrics.EvidenceCommitRetriesTotal.WithLabelValues().Inc()
		delay := time.Duration(rand.Int63n(int64(50*time.Millisecond))) + 25*time.Millisecond
		s.logger.Warn().
			Err(err).
			Int("attempt", attempt).
			Dur("retry_in", delay).
			Msg("Serialization failure, retrying transaction")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return lastErr
}

// isSerializationFailure reports whether err is SQLSTATE 40001.
func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgSerializationFailure
}

// isUniqueViolation reports whether err is SQLSTATE 23505.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

// isForeignKeyViolation reports whether err is SQLSTATE 23503.
func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation
}

// notFound converts pgx.ErrNoRows into a NotFound apperr.
func notFound(err error, what string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.Newf(apperr.NotFound, "%s not found", what)
	}
	return err
}
