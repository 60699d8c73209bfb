package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrValidation marks malformed or missing input. Requests failing
	// validation are rejected before any write is issued.
	ErrValidation = errors.New("validation error")

	// ErrNotFound marks a lookup that matched no batch.
	ErrNotFound = errors.New("not found")

	// ErrConflict marks a write rejected by a uniqueness constraint.
	ErrConflict = errors.New("conflict")
)

// FieldErrors carries per-field validation messages so the caller can render
// them inline. It matches ErrValidation under errors.Is.
type FieldErrors map[string]string

func (e FieldErrors) Error() string {
	if len(e) == 0 {
		return ErrValidation.Error()
	}

	fields := make([]string, 0, len(e))
	for field := range e {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	parts := make([]string, 0, len(fields))
	for _, field := range fields {
		parts = append(parts, fmt.Sprintf("%s: %s", field, e[field]))
	}
	return "validation error: " + strings.Join(parts, "; ")
}

func (e FieldErrors) Is(target error) bool {
	return target == ErrValidation
}
