package shm

import (
	"sync/atomic"
	"unsafe"
)

// Cell is the set of atomic primitives for one cell width. Operands and
// results travel zero-extended in a uint64; callers truncate operands to the
// cell width. Every pointer must be aligned to the cell width and lie inside an
// 8-byte aligned mapping, so that sub-word cells can be reached through their
// containing 32-bit word.
type Cell struct {
	Size            uintptr
	Load            func(p unsafe.Pointer) uint64
	Store           func(p unsafe.Pointer, v uint64)
	Exchange        func(p unsafe.Pointer, v uint64) uint64
	CompareExchange func(p unsafe.Pointer, expected, replacement uint64) uint64
	FetchAdd        func(p unsafe.Pointer, v uint64) uint64
	FetchSub        func(p unsafe.Pointer, v uint64) uint64
	FetchAnd        func(p unsafe.Pointer, v uint64) uint64
	FetchOr         func(p unsafe.Pointer, v uint64) uint64
	FetchXor        func(p unsafe.Pointer, v uint64) uint64
}

// Inline holds the native primitives, indexed by log2 of the cell size.
// 32- and 64-bit cells use the dedicated sync/atomic instructions wherever the
// package has one; sub-word cells have no native instruction in Go and go
// through a compare-and-swap on the containing word.
var Inline = [4]Cell{
	{
		Size:            1,
		Load:            func(p unsafe.Pointer) uint64 { return uint64(loadSubword[uint8](p)) },
		Store:           func(p unsafe.Pointer, v uint64) { rmwSubword(p, func(uint8) uint8 { return uint8(v) }) },
		Exchange:        func(p unsafe.Pointer, v uint64) uint64 { return uint64(rmwSubword(p, func(uint8) uint8 { return uint8(v) })) },
		CompareExchange: func(p unsafe.Pointer, e, r uint64) uint64 { return uint64(casSubword(p, uint8(e), uint8(r))) },
		FetchAdd:        func(p unsafe.Pointer, v uint64) uint64 { return uint64(rmwSubword(p, func(x uint8) uint8 { return x + uint8(v) })) },
		FetchSub:        func(p unsafe.Pointer, v uint64) uint64 { return uint64(rmwSubword(p, func(x uint8) uint8 { return x - uint8(v) })) },
		FetchAnd:        func(p unsafe.Pointer, v uint64) uint64 { return uint64(rmwSubword(p, func(x uint8) uint8 { return x & uint8(v) })) },
		FetchOr:         func(p unsafe.Pointer, v uint64) uint64 { return uint64(rmwSubword(p, func(x uint8) uint8 { return x | uint8(v) })) },
		FetchXor:        func(p unsafe.Pointer, v uint64) uint64 { return uint64(rmwSubword(p, func(x uint8) uint8 { return x ^ uint8(v) })) },
	},
	{
		Size:            2,
		Load:            func(p unsafe.Pointer) uint64 { return uint64(loadSubword[uint16](p)) },
		Store:           func(p unsafe.Pointer, v uint64) { rmwSubword(p, func(uint16) uint16 { return uint16(v) }) },
		Exchange:        func(p unsafe.Pointer, v uint64) uint64 { return uint64(rmwSubword(p, func(uint16) uint16 { return uint16(v) })) },
		CompareExchange: func(p unsafe.Pointer, e, r uint64) uint64 { return uint64(casSubword(p, uint16(e), uint16(r))) },
		FetchAdd:        func(p unsafe.Pointer, v uint64) uint64 { return uint64(rmwSubword(p, func(x uint16) uint16 { return x + uint16(v) })) },
		FetchSub:        func(p unsafe.Pointer, v uint64) uint64 { return uint64(rmwSubword(p, func(x uint16) uint16 { return x - uint16(v) })) },
		FetchAnd:        func(p unsafe.Pointer, v uint64) uint64 { return uint64(rmwSubword(p, func(x uint16) uint16 { return x & uint16(v) })) },
		FetchOr:         func(p unsafe.Pointer, v uint64) uint64 { return uint64(rmwSubword(p, func(x uint16) uint16 { return x | uint16(v) })) },
		FetchXor:        func(p unsafe.Pointer, v uint64) uint64 { return uint64(rmwSubword(p, func(x uint16) uint16 { return x ^ uint16(v) })) },
	},
	{
		Size:  4,
		Load:  func(p unsafe.Pointer) uint64 { return uint64(atomic.LoadUint32((*uint32)(p))) },
		Store: func(p unsafe.Pointer, v uint64) { atomic.StoreUint32((*uint32)(p), uint32(v)) },
		Exchange: func(p unsafe.Pointer, v uint64) uint64 {
			return uint64(atomic.SwapUint32((*uint32)(p), uint32(v)))
		},
		CompareExchange: func(p unsafe.Pointer, e, r uint64) uint64 {
			return uint64(cas32((*uint32)(p), uint32(e), uint32(r)))
		},
		FetchAdd: func(p unsafe.Pointer, v uint64) uint64 {
			return uint64(atomic.AddUint32((*uint32)(p), uint32(v)) - uint32(v))
		},
		FetchSub: func(p unsafe.Pointer, v uint64) uint64 {
			return uint64(atomic.AddUint32((*uint32)(p), -uint32(v)) + uint32(v))
		},
		FetchAnd: func(p unsafe.Pointer, v uint64) uint64 { return uint64(atomic.AndUint32((*uint32)(p), uint32(v))) },
		FetchOr:  func(p unsafe.Pointer, v uint64) uint64 { return uint64(atomic.OrUint32((*uint32)(p), uint32(v))) },
		FetchXor: func(p unsafe.Pointer, v uint64) uint64 {
			return uint64(rmw32((*uint32)(p), func(x uint32) uint32 { return x ^ uint32(v) }))
		},
	},
	{
		Size:            8,
		Load:            func(p unsafe.Pointer) uint64 { return atomic.LoadUint64((*uint64)(p)) },
		Store:           func(p unsafe.Pointer, v uint64) { atomic.StoreUint64((*uint64)(p), v) },
		Exchange:        func(p unsafe.Pointer, v uint64) uint64 { return atomic.SwapUint64((*uint64)(p), v) },
		CompareExchange: func(p unsafe.Pointer, e, r uint64) uint64 { return cas64((*uint64)(p), e, r) },
		FetchAdd:        func(p unsafe.Pointer, v uint64) uint64 { return atomic.AddUint64((*uint64)(p), v) - v },
		FetchSub:        func(p unsafe.Pointer, v uint64) uint64 { return atomic.AddUint64((*uint64)(p), -v) + v },
		FetchAnd:        func(p unsafe.Pointer, v uint64) uint64 { return atomic.AndUint64((*uint64)(p), v) },
		FetchOr:         func(p unsafe.Pointer, v uint64) uint64 { return atomic.OrUint64((*uint64)(p), v) },
		FetchXor: func(p unsafe.Pointer, v uint64) uint64 {
			return rmw64((*uint64)(p), func(x uint64) uint64 { return x ^ v })
		},
	},
}

type subword interface {
	~uint8 | ~uint16
}

// wordOf returns the aligned 32-bit word holding the sub-word cell at p, the
// bit position of the cell inside that word and the cell mask.
func wordOf[T subword](p unsafe.Pointer) (*uint32, uint, uint32) {
	var zero T
	size := unsafe.Sizeof(zero)
	w, shift := containingWord(p, size)
	return w, shift, uint32(1)<<(size*8) - 1
}

func loadSubword[T subword](p unsafe.Pointer) T {
	w, shift, _ := wordOf[T](p)
	return T(atomic.LoadUint32(w) >> shift)
}

// rmwSubword replaces the cell with f(cell) and returns the previous cell value.
func rmwSubword[T subword](p unsafe.Pointer, f func(T) T) T {
	w, shift, mask := wordOf[T](p)
	for {
		old := atomic.LoadUint32(w)
		cur := T(old >> shift)
		next := old&^(mask<<shift) | (uint32(f(cur))&mask)<<shift
		if atomic.CompareAndSwapUint32(w, old, next) {
			return cur
		}
	}
}

func casSubword[T subword](p unsafe.Pointer, expected, replacement T) T {
	w, shift, mask := wordOf[T](p)
	for {
		old := atomic.LoadUint32(w)
		cur := T(old >> shift)
		if cur != expected {
			return cur
		}
		next := old&^(mask<<shift) | (uint32(replacement)&mask)<<shift
		if atomic.CompareAndSwapUint32(w, old, next) {
			return cur
		}
	}
}

// cas32 is a value-returning compare-and-swap: it returns the content observed
// before the (possibly skipped) swap.
func cas32(p *uint32, expected, replacement uint32) uint32 {
	for {
		old := atomic.LoadUint32(p)
		if old != expected {
			return old
		}
		if atomic.CompareAndSwapUint32(p, old, replacement) {
			return old
		}
	}
}

func cas64(p *uint64, expected, replacement uint64) uint64 {
	for {
		old := atomic.LoadUint64(p)
		if old != expected {
			return old
		}
		if atomic.CompareAndSwapUint64(p, old, replacement) {
			return old
		}
	}
}

func rmw32(p *uint32, f func(uint32) uint32) uint32 {
	for {
		old := atomic.LoadUint32(p)
		if atomic.CompareAndSwapUint32(p, old, f(old)) {
			return old
		}
	}
}

func rmw64(p *uint64, f func(uint64) uint64) uint64 {
	for {
		old := atomic.LoadUint64(p)
		if atomic.CompareAndSwapUint64(p, old, f(old)) {
			return old
		}
	}
}

// CellIndex maps a cell size of 1, 2, 4 or 8 bytes to its slot in Inline and General.
func CellIndex(size uintptr) int {
	switch size {
	case 1:
		return 0
	case 2:
		return 1
	case 4:
		return 2
	case 8:
		return 3
	}
	panic("shm: unsupported cell size")
}
