package assert

import (
	"errors"
	"testing"
)

func TestAssertNilPassesOnNil(t *testing.T) {
	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("unexpected panic: %v", r)
		}
	}()
	AssertNil(nil, "should not panic")
	Assert(true, "should not panic")
}

func TestAssertNilPanicsOnError(t *testing.T) {
	defer func() {
		r := recover()
		if r == nil {
			t.Fatalf("expected panic")
		}
		if got := r.(string); got != "boom: [disk full]" {
			t.Fatalf("unexpected panic message %q", got)
		}
	}()
	AssertNil(errors.New("disk full"), "boom")
}
