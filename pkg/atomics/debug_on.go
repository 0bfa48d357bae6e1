//go:build shmatomicsdebug

package atomics

import "fmt"

const verificationBuild = true

// assertAtomicIndex re-checks a validated view after operand conversion ran
// user code. Shared regions never change shape, so a failure is a bug.
func assertAtomicIndex(model ObjectModel, candidate any, index uint64) {
	if model.IsDetached(candidate) {
		panic(fmt.Sprintf("atomics: view %v detached during operand conversion", candidate))
	}
	if length := model.LengthOf(candidate); index >= length {
		panic(fmt.Sprintf("atomics: index %d no longer below length %d", index, length))
	}
}
