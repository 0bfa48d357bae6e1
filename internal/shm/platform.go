// Package shm contains platform-specific helpers for mapping shared regions and
// the raw atomic primitives used on them.
package shm

import (
	"errors"
	"path/filepath"
	"unsafe"
)

// MapType tells how a MappedRegion is backed.
type MapType int

const (
	MapTypeDevShmFile MapType = iota
	MapTypeMemFd
	MapTypeHeap
)

func (t MapType) String() string {
	switch t {
	case MapTypeDevShmFile:
		return "devshm"
	case MapTypeMemFd:
		return "memfd"
	case MapTypeHeap:
		return "heap"
	default:
		return "unknown"
	}
}

// Alignment is the guaranteed alignment of every mapping base and the
// granularity of every mapping size.
const Alignment = 8

var (
	ErrInvalidSize  = errors.New("shm: size must be positive")
	ErrUnalignedMap = errors.New("shm: mapping size is not a multiple of 8")

	// ErrRegionTooSmall reports an existing region smaller than the size asked
	// for when creating it.
	ErrRegionTooSmall = errors.New("shm: existing region is smaller than requested")
)

// MappedRegion represents a memory-mapped shared region.
type MappedRegion struct {
	Addr []byte
	Path string
	Fd   int
	Type MapType

	unlink bool
	words  []uint64
}

// MapOptions defines options for mapping shared memory.
type MapOptions struct {
	Name   string
	Size   int
	Create bool
	// MemFd creates an anonymous memfd instead of a /dev/shm file (Linux only).
	MemFd bool
	// Unlink removes the backing file when the region is unmapped.
	Unlink bool
}

// AlignSize rounds size up to a multiple of Alignment.
func AlignSize(size int) int {
	return (size + Alignment - 1) &^ (Alignment - 1)
}

// DevShmPath resolves a region name to its file path.
func DevShmPath(name string) string {
	if filepath.IsAbs(name) {
		return filepath.Clean(name)
	}
	return filepath.Join("/dev/shm", name)
}

// AllocHeap returns an 8-byte aligned region backed by the Go heap.
func AllocHeap(size int) (*MappedRegion, error) {
	if size <= 0 {
		return nil, ErrInvalidSize
	}
	size = AlignSize(size)
	words := make([]uint64, size/Alignment)
	return &MappedRegion{
		Addr:  unsafe.Slice((*byte)(unsafe.Pointer(&words[0])), size),
		Fd:    -1,
		Type:  MapTypeHeap,
		words: words,
	}, nil
}

// Base returns the address of the first byte of the region.
func (r *MappedRegion) Base() unsafe.Pointer {
	if len(r.Addr) == 0 {
		return nil
	}
	return unsafe.Pointer(&r.Addr[0])
}
