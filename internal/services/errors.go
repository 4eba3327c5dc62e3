package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/homefinder/apiserver/internal/policy"
)

var (
	// ErrDenied matches every DenialError. Callers at the boundary treat all
	// denials alike, whatever the internal reason.
	ErrDenied = errors.New("not authorized")

	// ErrNotFound is returned when a message targets a listing that does not
	// exist or is not published, and for unknown account tokens.
	ErrNotFound = errors.New("not found")

	// ErrStorage wraps blob or record write failures.
	ErrStorage = errors.New("storage failure")

	// ErrInvalidPage is returned for a page number below one.
	ErrInvalidPage = errors.New("invalid page")

	ErrUnknownUser   = errors.New("user does not exist")
	ErrUnconfirmed   = errors.New("account is not confirmed")
	ErrWrongPassword = errors.New("wrong password")
	ErrInvalidToken  = errors.New("invalid or expired token")
)

const (
	opCreate    policy.Operation = "create"
	opListOwned policy.Operation = "list-owned"
)

// DenialError records why an operation on a listing was refused.
type DenialError struct {
	Op        policy.Operation
	ListingID int
	Reason    policy.Reason
}

func (e *DenialError) Error() string {
	return fmt.Sprintf("%s on listing %d denied: %s", e.Op, e.ListingID, e.Reason)
}

func (e *DenialError) Is(target error) bool {
	return target == ErrDenied
}

// FieldError describes one violated input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError carries every violated field of a rejected input.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		names = append(names, f.Field)
	}
	return "validation failed: " + strings.Join(names, ", ")
}

// Has reports whether the given field was rejected.
func (e *ValidationError) Has(field string) bool {
	for _, f := range e.Fields {
		if f.Field == field {
			return true
		}
	}
	return false
}

func invalid(field, message string) *ValidationError {
	return &ValidationError{Fields: []FieldError{{Field: field, Message: message}}}
}
