//go:build !shmatomicsdebug

package atomics

const verificationBuild = false

func assertAtomicIndex(ObjectModel, any, uint64) {}
