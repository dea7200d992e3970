//go:build h3router_debug

package graph

import "fmt"

func invariantViolation(format string, args ...any) {
	panic("graph invariant violated: " + fmt.Sprintf(format, args...))
}
