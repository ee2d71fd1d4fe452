package pubquery

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrorKind enumerates the four error kinds from spec.md §7.
type ErrorKind int

const (
	KindBadRequest ErrorKind = iota
	KindNotFound
	KindBackendFailure
	KindInternalError
)

func (k ErrorKind) String() string {
	switch k {
	case KindBadRequest:
		return "bad_request"
	case KindNotFound:
		return "not_found"
	case KindBackendFailure:
		return "backend_failure"
	default:
		return "internal_error"
	}
}

// CoreError is the structured error type surfaced by every component,
// adapted from the teacher's ORMError but collapsed onto the four kinds
// spec.md §7 defines instead of a fine-grained Postgres error taxonomy.
type CoreError struct {
	Kind    ErrorKind
	Message string
	Cause   error
	SQL     string
	Args    []any
}

func (e *CoreError) Error() string {
	if e.Kind == KindBackendFailure && e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *CoreError) Unwrap() error { return e.Cause }

// HTTPStatus maps an error kind to the status code an (out-of-scope) HTTP
// layer would use, per spec.md §7.
func (k ErrorKind) HTTPStatus() int {
	switch k {
	case KindBadRequest:
		return 400
	case KindNotFound:
		return 404
	case KindBackendFailure:
		return 500
	default:
		return 500
	}
}

func badRequest(format string, args ...any) error {
	return &CoreError{Kind: KindBadRequest, Message: fmt.Sprintf(format, args...)}
}

func notFound(format string, args ...any) error {
	return &CoreError{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func internalError(format string, args ...any) error {
	return &CoreError{Kind: KindInternalError, Message: fmt.Sprintf(format, args...)}
}

// wrapBackendError wraps a driver/pool error as backend_failure, passing
// context cancellation and circuit-breaker-open errors through with the
// same kind since both represent an unavailable backend from the caller's
// point of view.
func wrapBackendError(err error, sql string, args []any) error {
	if err == nil {
		return nil
	}
	var ce *CoreError
	if errors.As(err, &ce) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &CoreError{Kind: KindBackendFailure, Message: "context cancelled", Cause: err, SQL: sql, Args: args}
	}
	if isCircuitOpenError(err) {
		return &CoreError{Kind: KindBackendFailure, Message: "circuit open", Cause: err, SQL: sql, Args: args}
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return &CoreError{Kind: KindBackendFailure, Message: pgErr.Message, Cause: err, SQL: sql, Args: args}
	}
	return &CoreError{Kind: KindBackendFailure, Message: err.Error(), Cause: err, SQL: sql, Args: args}
}
