package db

import "errors"

// Sentinel errors for database operations.
var (
	ErrKeyNotFound = errors.New("db: key not found")
	// ErrNotFound is returned by point lookups that matched no document.
	ErrNotFound = errors.New("db: document not found")
	// ErrMissingKey is returned when an upsert document lacks its key field.
	ErrMissingKey = errors.New("db: document has no value for key field")
)

// Op constants name the failing operation for error context.
const (
	OpGet    = "GET"
	OpSet    = "SET"
	OpIncrBy = "INCRBY"
	OpExpire = "EXPIRE"
	OpInsert = "INSERT"
	OpUpsert = "UPSERT"
	OpQuery  = "QUERY"
	OpExec   = "EXEC"
)

// Error wraps an underlying error with the operation name for diagnostics.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return e.Op + ": " + e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }
