//go:build debug

package check

import "fmt"

// Assert panics when cond is false. Debug builds only.
func Assert(cond bool, msg string) {
	if !cond {
		panic("assertion failed: " + msg)
	}
}

// Invariant panics when err reports a broken invariant. Debug builds only;
// tests build with -tags debug to catch registry drift early.
func Invariant(where string, err error) {
	if err != nil {
		panic(fmt.Sprintf("invariant violated in %s: %v", where, err))
	}
}
