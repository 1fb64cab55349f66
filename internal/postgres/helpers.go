package postgres

import (
	"context"
	"errors"
	"strings"

	"github.com/dukerupert/cakery/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is the query surface shared by *pgxpool.Pool and pgx.Tx, so every store
// runs unchanged inside or outside a transaction. Begin on a pgx.Tx opens a
// savepoint.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// SQLSTATE codes and classes that mean the database could not serve the
// request right now. Retrying the same statement later may succeed.
var unavailableCodes = map[string]bool{
	"40001": true, // serialization_failure
	"40P01": true, // deadlock_detected
	"53300": true, // too_many_connections
	"55P03": true, // lock_not_available
	"57014": true, // query_canceled
	"57P01": true, // admin_shutdown
	"57P02": true, // crash_shutdown
	"57P03": true, // cannot_connect_now
}

const uniqueViolation = "23505"

// classify converts a pgx error into a domain error. Errors that are already
// domain errors pass through untouched.
func classify(err error, op, message string) error {
	if err == nil {
		return nil
	}

	var de *domain.Error
	if errors.As(err, &de) {
		return err
	}

	if isUnavailable(err) {
		return domain.Unavailable(err, op, "The order store is temporarily unavailable")
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return domain.WrapError(err, domain.ECONFLICT, op, message)
	}

	return domain.Internal(err, op, message)
}

// isUnavailable reports whether err is a transient connectivity or contention
// failure.
func isUnavailable(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return unavailableCodes[pgErr.Code] || strings.HasPrefix(pgErr.Code, "08")
	}

	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return true
	}

	return pgconn.SafeToRetry(err) || pgconn.Timeout(err)
}
