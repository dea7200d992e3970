//go:build !h3router_debug

package graph

// invariantViolation is a no-op in release builds; callers fail the
// operation with ErrCorruptLongEdge instead.
func invariantViolation(string, ...any) {}
