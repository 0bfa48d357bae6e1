// Package atomics performs atomic operations on the elements of typed views
// over shared memory regions.
//
// Every call validates its view (an integer kind over a shared region) and its
// index before touching memory, converts its value operands, then runs a
// single atomic read, write or read-modify-write on the element:
//
//	engine, err := atomics.New(atomics.DefaultConfig())
//	// ...
//	prev, err := engine.Add(view, 3, 1)
//
// Elements of up to 32 bits come back as compact integers, Int64 and Uint64
// elements as wide integers (see Result and WideValue).
//
// Targets without native instructions for some operations send them to a
// Runtime, by default a compare-and-swap based GeneralRuntime. The capability
// table decides per GOARCH; Config.Strategy forces either path. Both paths
// give identical results and errors.
//
// Building with the shmatomicsdebug tag re-checks each view after operand
// conversion and panics if it changed shape.
package atomics
