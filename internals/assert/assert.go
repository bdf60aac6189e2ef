package assert

import (
	"fmt"
)

// Assert panics with msg when condition does not hold. Used for startup
// invariants where there is no caller to hand an error to.
func Assert(condition bool, msg string, other ...any) {
	if condition {
		return
	}
	if len(other) > 0 {
		panic(fmt.Sprintf("%s: %v", msg, other))
	}
	panic(msg)
}

// AssertNil panics when value is a non-nil error or value.
func AssertNil(value any, msg string, other ...any) {
	if value == nil {
		return
	}
	Assert(false, msg, append([]any{value}, other...)...)
}
