package shm

import (
	"sync/atomic"
	"unsafe"
)

// General holds the portable primitives used by the call-out path. Every
// read-modify-write is a compare-and-swap loop over a naturally aligned word:
// the containing 32-bit word for cells of up to 4 bytes, the 64-bit word
// otherwise. They are interchangeable with Inline on the same memory.
var General = [4]Cell{
	generalCell(1),
	generalCell(2),
	generalCell(4),
	generalCell(8),
}

func generalCell(size uintptr) Cell {
	rmw, load := wordRMW(size)
	return Cell{
		Size: size,
		Load: load,
		Store: func(p unsafe.Pointer, v uint64) {
			rmw(p, func(uint64) (uint64, bool) { return v, true })
		},
		Exchange: func(p unsafe.Pointer, v uint64) uint64 {
			return rmw(p, func(uint64) (uint64, bool) { return v, true })
		},
		CompareExchange: func(p unsafe.Pointer, e, r uint64) uint64 {
			return rmw(p, func(x uint64) (uint64, bool) { return r, x == e })
		},
		FetchAdd: func(p unsafe.Pointer, v uint64) uint64 {
			return rmw(p, func(x uint64) (uint64, bool) { return x + v, true })
		},
		FetchSub: func(p unsafe.Pointer, v uint64) uint64 {
			return rmw(p, func(x uint64) (uint64, bool) { return x - v, true })
		},
		FetchAnd: func(p unsafe.Pointer, v uint64) uint64 {
			return rmw(p, func(x uint64) (uint64, bool) { return x & v, true })
		},
		FetchOr: func(p unsafe.Pointer, v uint64) uint64 {
			return rmw(p, func(x uint64) (uint64, bool) { return x | v, true })
		},
		FetchXor: func(p unsafe.Pointer, v uint64) uint64 {
			return rmw(p, func(x uint64) (uint64, bool) { return x ^ v, true })
		},
	}
}

// rmwFunc applies f to the cell at p. f returns the replacement and whether to
// write it; the cell value seen by f is returned.
type rmwFunc func(p unsafe.Pointer, f func(uint64) (uint64, bool)) uint64

func wordRMW(size uintptr) (rmwFunc, func(unsafe.Pointer) uint64) {
	if size == 8 {
		rmw := func(p unsafe.Pointer, f func(uint64) (uint64, bool)) uint64 {
			w := (*uint64)(p)
			for {
				old := atomic.LoadUint64(w)
				next, write := f(old)
				if !write || atomic.CompareAndSwapUint64(w, old, next) {
					return old
				}
			}
		}
		return rmw, func(p unsafe.Pointer) uint64 { return atomic.LoadUint64((*uint64)(p)) }
	}

	bits := size * 8
	mask := uint32(1<<bits - 1)
	rmw := func(p unsafe.Pointer, f func(uint64) (uint64, bool)) uint64 {
		w, shift := containingWord(p, size)
		for {
			old := atomic.LoadUint32(w)
			cur := (old >> shift) & mask
			next, write := f(uint64(cur))
			if !write {
				return uint64(cur)
			}
			word := old&^(mask<<shift) | (uint32(next)&mask)<<shift
			if atomic.CompareAndSwapUint32(w, old, word) {
				return uint64(cur)
			}
		}
	}
	load := func(p unsafe.Pointer) uint64 {
		w, shift := containingWord(p, size)
		return uint64((atomic.LoadUint32(w) >> shift) & mask)
	}
	return rmw, load
}

func containingWord(p unsafe.Pointer, size uintptr) (*uint32, uint) {
	off := uintptr(p) & 3
	shift := off * 8
	if bigEndian {
		shift = (4 - size - off) * 8
	}
	return (*uint32)(unsafe.Add(p, -int(off))), uint(shift)
}
