//go:build !debug

package check

// Assert is a no-op in release builds.
func Assert(_ bool, _ string) {}

// Invariant is a no-op in release builds.
func Invariant(_ string, _ error) {}
