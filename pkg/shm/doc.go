// Package shm provides shared memory regions and the typed views laid over
// them.
//
// A Region is mapped from /dev/shm or a memfd on Linux, or allocated on the
// heap. Regions opened with Open are shared: they are never detached or resized
// while open. Views are carved out of a region with NewView or a Layout, and
// are the operands of the atomics package.
//
// Open is instrumented with OpenTelemetry metrics and tracing (OTel Go SDK v1.30.0).
//
// Example usage:
//
//	region, err := shm.Open(ctx, shm.OpenOptions{
//	  Name:   "counters",
//	  Size:   4096,
//	  Create: true,
//	  Meter:  myMeter,
//	  Tracer: myTracer,
//	})
//	// ...
//	layout, err := shm.NewLayout(region,
//	  shm.ViewSpec{Name: "hits", Kind: shm.KindUint64, Length: 16},
//	)
//
// Platform-specific helpers are in internal/shm.
package shm
