package cmn

import "fmt"

// Assert panics if cond is false. Used sparingly, at invariants that a bug
// would violate, not at boundaries that user input can reach.
func Assert(cond bool) {
	if !cond {
		panic("cmn: assertion failed")
	}
}

// AssertMsg is Assert with a message, formatted lazily only on failure.
func AssertMsg(cond bool, msg string) {
	if !cond {
		panic("cmn: assertion failed: " + msg)
	}
}

// AssertNoErr panics if err is non-nil. Used where an error is known by
// construction to be impossible (e.g. re-parsing a value this process
// itself just formatted).
func AssertNoErr(err error) {
	if err != nil {
		panic(fmt.Sprintf("cmn: unexpected error: %v", err))
	}
}
