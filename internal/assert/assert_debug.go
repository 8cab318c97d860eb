//go:build debug

package assert

import "fmt"

// Invariant panics in debug builds when ok is false. It guards internal
// postconditions of the engine, never caller input.
//
//	assert.Invariant(seq > prev, "accepted sequence must exceed the previous photo sequence")
func Invariant(ok bool, msg string) {
	if !ok {
		panic(fmt.Sprintf("INVARIANT VIOLATION: %s", msg))
	}
}
