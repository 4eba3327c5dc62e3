package store

import (
	"errors"
	"strings"

	"github.com/lib/pq"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// ErrAlreadyPublished is returned when an image is attached to a listing
// that already has one.
var ErrAlreadyPublished = errors.New("listing already published")

// ErrInvalidReference is returned when a write points at a category, price
// band or user that does not exist.
var ErrInvalidReference = errors.New("invalid reference")

// ReferenceError reports the foreign key column a write violated. It
// matches ErrInvalidReference.
type ReferenceError struct {
	Column string
}

func (e *ReferenceError) Error() string {
	if e.Column == "" {
		return ErrInvalidReference.Error()
	}
	return ErrInvalidReference.Error() + ": " + e.Column
}

func (e *ReferenceError) Unwrap() error {
	return ErrInvalidReference
}

// ErrDuplicate is returned when a unique column already holds the value.
var ErrDuplicate = errors.New("duplicate value")

const (
	pqForeignKeyViolation = "23503"
	pqUniqueViolation     = "23505"
)

func translateError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case pqForeignKeyViolation:
			return &ReferenceError{Column: referenceColumn(pqErr)}
		case pqUniqueViolation:
			return ErrDuplicate
		}
	}
	return err
}

// referenceColumn recovers the column from Postgres' default constraint
// name, <table>_<column>_fkey.
func referenceColumn(pqErr *pq.Error) string {
	name := strings.TrimSuffix(pqErr.Constraint, "_fkey")
	if pqErr.Table != "" {
		name = strings.TrimPrefix(name, pqErr.Table+"_")
	}
	return name
}
