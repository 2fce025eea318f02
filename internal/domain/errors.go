package domain

import (
	"errors"
	"maps"
	"slices"
	"strings"
)

// Sentinels shared by the adapters. s3err maps each to the S3 error code a
// client sees, so adapters wrap these rather than inventing codes.
var (
	ErrNotFound    = errors.New("not found")
	ErrValidation  = errors.New("validation error")
	ErrConflict    = errors.New("conflict")
	ErrForbidden   = errors.New("forbidden")
	ErrUnavailable = errors.New("unavailable")
)

// ValidationError names the offending request fields. It matches
// ErrValidation under errors.Is.
type ValidationError struct {
	Fields map[string]string
}

// Error lists the fields in sorted order so the message is stable in
// error documents and logs.
func (e *ValidationError) Error() string {
	var b strings.Builder
	b.WriteString(ErrValidation.Error())
	for i, field := range slices.Sorted(maps.Keys(e.Fields)) {
		if i == 0 {
			b.WriteString(": ")
		} else {
			b.WriteString("; ")
		}
		b.WriteString(field + ": " + e.Fields[field])
	}
	return b.String()
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}
