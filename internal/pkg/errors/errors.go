package errors

import (
	"context"
	"database/sql/driver"
	"errors"
	"io"
	"net"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrNotFound is a generic sentinel for missing resources.
	ErrNotFound = errors.New("not found")
	// ErrInvalidArgument is a generic sentinel for invalid input.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrMissingCredentials marks configuration errors that are fatal to a batch run.
	ErrMissingCredentials = errors.New("missing credentials")
	// ErrStoreUnavailable marks a lost database connection.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrLockLost is returned when a fenced write finds the lock token no longer matches.
	ErrLockLost = errors.New("lock lost")
)

type storeError struct{ err error }

func (e *storeError) Error() string        { return e.err.Error() }
func (e *storeError) Unwrap() error        { return e.err }
func (e *storeError) Is(target error) bool { return target == ErrStoreUnavailable }

// Store tags err with ErrStoreUnavailable when it came from a broken database
// connection. Call it on errors returned by a repository; a network error from
// anything else is not a store outage.
func Store(err error) error {
	if err == nil || errors.Is(err, ErrStoreUnavailable) {
		return err
	}
	// context.DeadlineExceeded satisfies net.Error.
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var ne net.Error
	if connectionLost(err) || errors.As(err, &ne) || errors.Is(err, io.ErrUnexpectedEOF) {
		return &storeError{err: err}
	}
	return err
}

func connectionLost(err error) bool {
	var ce *pgconn.ConnectError
	return errors.As(err, &ce) || errors.Is(err, driver.ErrBadConn)
}

// IsFatal reports whether err should abort the invoking batch run instead of
// being recorded against a single item.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrMissingCredentials) || errors.Is(err, ErrStoreUnavailable) || connectionLost(err)
}
