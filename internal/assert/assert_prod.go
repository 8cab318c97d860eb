//go:build !debug

package assert

// Invariant is compiled out of release builds.
func Invariant(bool, string) {}
