package postgres

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// Common errors returned by the postgres package.
var (
	// ErrSchemaMissing means the rate-limit table does not exist; run the
	// migrations first.
	ErrSchemaMissing = errors.New("rate limit schema is missing")

	// ErrUnavailable means the database could not be reached or refused the
	// connection.
	ErrUnavailable = errors.New("database unavailable")
)

// PostgreSQL error codes
const (
	// undefinedTableCode is raised when a query names a table that does not exist
	undefinedTableCode = "42P01"

	// checkViolationCode is the PostgreSQL error code for check constraint violations
	checkViolationCode = "23514"

	// connectionExceptionClass prefixes every connection-related error code
	connectionExceptionClass = "08"

	// cannotConnectNowCode is raised while the server is starting or shutting down
	cannotConnectNowCode = "57P03"
)

// MapError maps a database error to a package error, wrapping the original
// so the cause stays visible in logs.
func MapError(err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == undefinedTableCode:
			return fmt.Errorf("%w: %v", ErrSchemaMissing, err)
		case pgErr.Code == cannotConnectNowCode,
			strings.HasPrefix(pgErr.Code, connectionExceptionClass):
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		case pgErr.Code == checkViolationCode:
			return fmt.Errorf("check constraint violation (%s): %w", pgErr.ConstraintName, err)
		}
		return err
	}

	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return err
}
