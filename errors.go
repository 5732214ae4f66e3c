package literecord

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

// ErrInvalidParams marks malformed list parameters such as an unknown
// order direction or ordering by an undeclared attribute.
var ErrInvalidParams = errors.New("invalid list parameters")

// UnknownRelationError is returned when an object-valued filter names a
// relation the schema does not declare.
type UnknownRelationError struct {
	Schema   string
	Relation string
}

func (e *UnknownRelationError) Error() string {
	return fmt.Sprintf("schema %s has no relation %q", e.Schema, e.Relation)
}

// UnresolvedTargetError is returned when a relation points at a schema that
// is not registered.
type UnresolvedTargetError struct {
	Schema   string
	Relation string
	Target   string
}

func (e *UnresolvedTargetError) Error() string {
	return fmt.Sprintf("relation %s.%s targets unregistered schema %q", e.Schema, e.Relation, e.Target)
}

// ValidationError carries per-attribute validation messages.
type ValidationError struct {
	Errors map[string][]string
}

func (e *ValidationError) Error() string {
	attrs := make([]string, 0, len(e.Errors))
	for attr := range e.Errors {
		attrs = append(attrs, attr)
	}
	sort.Strings(attrs)

	var parts []string
	for _, attr := range attrs {
		parts = append(parts, strings.Join(e.Errors[attr], "; "))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Persistence error codes.
const (
	CodeUnknown         = "UNKNOWN"
	CodeUniqueViolation = "UNIQUE_VIOLATION"
)

// PersistenceError wraps a failure reported by the database driver.
type PersistenceError struct {
	Op   string
	Code string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// IsUniqueViolation reports whether err is a persistence error caused by a
// unique constraint.
func IsUniqueViolation(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe) && pe.Code == CodeUniqueViolation
}

func persistenceError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &PersistenceError{Op: op, Code: classify(err), Err: err}
}

func classify(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return CodeUniqueViolation
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return CodeUniqueViolation
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) && liteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
		return CodeUniqueViolation
	}
	return CodeUnknown
}
