package provider

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Errors for gateway operations.
var (
	ErrAllProvidersExhausted = errors.New("all providers exhausted")
	ErrNoProviders           = errors.New("no providers configured")
	ErrEmptyPrompt           = errors.New("prompt context is empty")
	ErrEmptyCompletion       = errors.New("backend returned an empty completion")
	ErrUnavailable           = errors.New("provider marked unavailable")
)

// ExhaustedError reports a generation that failed against every candidate
// backend. It carries the last failure per provider and matches
// ErrAllProvidersExhausted under errors.Is.
type ExhaustedError struct {
	// Failures maps provider name to its last error for this call.
	Failures map[string]error
}

func (e *ExhaustedError) Error() string {
	names := make([]string, 0, len(e.Failures))
	for name := range e.Failures {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString("all providers exhausted:")
	for _, name := range names {
		fmt.Fprintf(&b, " %s: %v;", name, e.Failures[name])
	}
	return strings.TrimSuffix(b.String(), ";")
}

// Is reports a match for ErrAllProvidersExhausted.
func (e *ExhaustedError) Is(target error) bool {
	return target == ErrAllProvidersExhausted
}
