package common

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrConnection marks a store that could not be reached. Adapters wrap
	// the transport error with it and never retry on their own.
	ErrConnection = errors.New("store unreachable")

	// ErrNotFound is returned when a document with the given id does not exist.
	ErrNotFound = errors.New("not found")

	// ErrEmptyResult is returned by query runners when the precondition set
	// of a question is empty.
	ErrEmptyResult = errors.New("empty result")

	// ErrNodeMissing is returned when a relationship refers to a node that has
	// not been materialized.
	ErrNodeMissing = errors.New("graph node missing")
)

// ValidationError lists the fields of a malformed input with the reason
// each one was rejected.
type ValidationError struct {
	Fields map[string]string
}

func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: reason}}
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

// MissingNodesError reports the keys a relationship upsert could not resolve.
// It matches ErrNodeMissing with errors.Is.
type MissingNodesError struct {
	Kind     RelationshipKind
	Films    []string
	Entities []string
}

func (e *MissingNodesError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s", ErrNodeMissing.Error(), e.Kind)
	if len(e.Films) > 0 {
		fmt.Fprintf(&b, " films=[%s]", strings.Join(e.Films, ", "))
	}
	if len(e.Entities) > 0 {
		fmt.Fprintf(&b, " %s=[%s]", strings.ToLower(e.Kind.Entity().Label()), strings.Join(e.Entities, ", "))
	}
	return b.String()
}

func (e *MissingNodesError) Is(target error) bool {
	return target == ErrNodeMissing
}
