package errs

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

type Kind string

const (
	KindNotFound             Kind = "not_found"
	KindForbidden            Kind = "forbidden"
	KindDuplicateAssignment  Kind = "duplicate_assignment"
	KindNotAssigned          Kind = "not_assigned"
	KindAlreadySubmitted     Kind = "already_submitted"
	KindNotSubmitted         Kind = "not_submitted"
	KindNotGraded            Kind = "not_graded"
	KindAssignmentClosed     Kind = "assignment_closed"
	KindAttemptLimitExceeded Kind = "attempt_limit_exceeded"
	KindValidationFailed     Kind = "validation_failed"
	KindUnavailable          Kind = "unavailable"
	KindInternal             Kind = "internal"
)

// Error is a condition raised by the domain layer. Details holds whatever the
// caller needs to correct the request (window bounds, attempt counts, field).
type Error struct {
	Kind    Kind
	Message string
	Details map[string]any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// With returns a copy of e with one more detail entry.
func (e *Error) With(key string, value any) *Error {
	cp := *e
	cp.Details = make(map[string]any, len(e.Details)+1)
	for k, v := range e.Details {
		cp.Details[k] = v
	}
	cp.Details[key] = value
	return &cp
}

func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, err error, msg string) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

func NotFound(entity string) *Error {
	return Newf(KindNotFound, "%s not found", entity)
}

func Forbidden(msg string) *Error {
	return New(KindForbidden, msg)
}

func Validation(field, msg string) *Error {
	return New(KindValidationFailed, msg).With("field", field)
}

// KindOf reports the Kind carried by err, KindInternal for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

func Is(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// IsUniqueViolation detects a unique-constraint rejection from postgres
// (SQLSTATE 23505), sqlite, or gorm's translated ErrDuplicatedKey.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate key")
}

// FromStore maps a raw store error: record-not-found becomes NotFound for the
// named entity, a lost or refused connection becomes Unavailable, and
// anything else is Internal.
func FromStore(err error, entity string) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return NotFound(entity)
	}
	if IsConnectionFailure(err) {
		return Wrap(KindUnavailable, err, "store unavailable")
	}
	return Wrap(KindInternal, err, "store failure")
}

// IsConnectionFailure reports whether err means the store could not be
// reached, as opposed to the store rejecting the statement.
func IsConnectionFailure(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// 08: connection exception, 53300: too many connections, 57P0x: shutdown
		return strings.HasPrefix(pgErr.Code, "08") || pgErr.Code == "53300" ||
			strings.HasPrefix(pgErr.Code, "57P0")
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
