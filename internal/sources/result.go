// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package sources holds one client per external provider: the GEO-style
// catalog, PubMed metadata, the five citation-discovery backends, and
// the nine URL/PDF-discovery backends. Every client returns a Result so
// call sites never need a type switch on error vs. skip vs. success.
package sources

import "fmt"

// Result is the typed outcome of one source call: exactly one of Value
// is populated (success), Skipped names why prerequisites were missing,
// or Err holds a failure. Collects per-backend outcomes rather than
// raising past the client boundary.
type Result[T any] struct {
	Value   T
	Skipped string
	Err     error
}

// Ok reports whether Value is valid.
func (r Result[T]) Ok() bool { return r.Err == nil && r.Skipped == "" }

func Success[T any](v T) Result[T] { return Result[T]{Value: v} }

func Skip[T any](reason string) Result[T] { return Result[T]{Skipped: reason} }

func Fail[T any](err error) Result[T] { return Result[T]{Err: err} }

func Failf[T any](format string, args ...any) Result[T] {
	return Result[T]{Err: fmt.Errorf(format, args...)}
}

// Priority ranks a source for the tie-break and adaptive-skip policies.
// Named distinctly from types.SourcePriority because a source's
// configured priority (operator-assigned) and its compile-time default
// (provider-assigned) are different concerns. The constants follow the
// same CRITICAL-to-FALLBACK order as types.SourcePriority.
type Priority int

const (
	PriorityCritical Priority = iota
	PriorityHigh
	PriorityMedium
	PriorityLow
	PriorityFallback
)
