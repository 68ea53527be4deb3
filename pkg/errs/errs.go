// Package errs defines the four error kinds spec.md §7 distinguishes,
// as typed errors callers can match with errors.As, in place of the
// source's ad-hoc status codes.
package errs

import "fmt"

// StructuralInvariant reports a detected B+ tree invariant violation
// (duplicate separator, mislinked sibling, depth mismatch). It is
// fatal to the owning peer: callers log it at CRITICAL and exit.
type StructuralInvariant struct {
	Detail string
}

func (e *StructuralInvariant) Error() string {
	return fmt.Sprintf("structural invariant violated: %s", e.Detail)
}

// NewStructuralInvariant builds a StructuralInvariant error.
func NewStructuralInvariant(detail string) error {
	return &StructuralInvariant{Detail: detail}
}

// Protocol reports a malformed envelope or unknown request/op code.
// Callers reply ERROR and keep the connection open.
type Protocol struct {
	Detail string
}

func (e *Protocol) Error() string {
	return fmt.Sprintf("protocol error: %s", e.Detail)
}

// NewProtocol builds a Protocol error.
func NewProtocol(detail string) error {
	return &Protocol{Detail: detail}
}

// NotFound reports a missing namespace path or record. It never
// surfaces as a transport ERROR: CONTAINS maps it to false, GET_KEY to
// the null sentinel, DELETE_* to false.
type NotFound struct {
	Path string
}

func (e *NotFound) Error() string {
	return fmt.Sprintf("not found: %s", e.Path)
}

// NewNotFound builds a NotFound error.
func NewNotFound(path string) error {
	return &NotFound{Path: path}
}

// CapacityExhausted reports that an allocator-backed tree ran out of
// room mid-operation. It propagates to the originating request as
// ERROR; the tree itself is guaranteed to remain consistent (the
// operation never publishes a partial mutation).
type CapacityExhausted struct {
	Detail string
}

func (e *CapacityExhausted) Error() string {
	return fmt.Sprintf("capacity exhausted: %s", e.Detail)
}

// NewCapacityExhausted builds a CapacityExhausted error.
func NewCapacityExhausted(detail string) error {
	return &CapacityExhausted{Detail: detail}
}
