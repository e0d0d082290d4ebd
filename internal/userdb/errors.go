package userdb

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a database failure for tool-level error reporting.
type Kind string

const (
	KindOpenFailed     Kind = "open_failed"
	KindTableNotFound  Kind = "table_not_found"
	KindColumnNotFound Kind = "column_not_found"
	KindSyntax         Kind = "syntax_error"
	KindGeneric        Kind = "generic"
)

// QueryError wraps a database error with its classification. The
// original message is preserved for logging; callers compose their own
// user-facing text from Kind.
type QueryError struct {
	Kind Kind
	Err  error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *QueryError) Unwrap() error {
	return e.Err
}

// classify maps a raw SQLite error to a Kind by message inspection.
// SQLite does not expose structured error details for these cases.
func classify(err error) Kind {
	if err == nil {
		return KindGeneric
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "no such table"):
		return KindTableNotFound
	case strings.Contains(msg, "no such column"):
		return KindColumnNotFound
	case strings.Contains(msg, "syntax error"):
		return KindSyntax
	case strings.Contains(msg, "unable to open database"):
		return KindOpenFailed
	default:
		return KindGeneric
	}
}

// wrapQueryError classifies err unless it is already a QueryError.
func wrapQueryError(err error) error {
	if err == nil {
		return nil
	}
	var qe *QueryError
	if errors.As(err, &qe) {
		return qe
	}
	return &QueryError{Kind: classify(err), Err: err}
}

// TableNotFoundError reports a request for a table that does not exist,
// carrying the names that do.
type TableNotFoundError struct {
	Table     string
	Available []string
}

func (e *TableNotFoundError) Error() string {
	return fmt.Sprintf("table %q not found (available: %s)", e.Table, strings.Join(e.Available, ", "))
}
