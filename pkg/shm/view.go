package shm

import (
	"fmt"
	"unsafe"
)

// View is a typed window over a Region: length elements of one kind starting
// at a byte offset aligned to the element size.
type View struct {
	region     *Region
	kind       ElementKind
	byteOffset uintptr
	length     uint64
}

// NewView lays a view of length elements of kind over r at byteOffset.
func NewView(r *Region, kind ElementKind, byteOffset uintptr, length uint64) (*View, error) {
	if r == nil || !r.Usable() {
		return nil, ErrRegionClosed
	}
	if !kind.Valid() {
		return nil, fmt.Errorf("invalid element kind %d", uint8(kind))
	}
	size := kind.Size()
	if byteOffset%size != 0 {
		return nil, fmt.Errorf("%w: offset %d, %s", ErrMisaligned, byteOffset, kind)
	}
	total := uint64(r.Size())
	if uint64(byteOffset) > total || length > (total-uint64(byteOffset))>>kind.Shift() {
		return nil, fmt.Errorf("%w: %d %s at offset %d in %d bytes", ErrOutOfBounds, length, kind, byteOffset, total)
	}
	return &View{region: r, kind: kind, byteOffset: byteOffset, length: length}, nil
}

func (v *View) Kind() ElementKind { return v.kind }

func (v *View) ByteOffset() uintptr { return v.byteOffset }

// Length is the element count, zero once the region is detached or closed.
func (v *View) Length() uint64 {
	if !v.region.Usable() {
		return 0
	}
	return v.length
}

// ByteLength is Length times the element size.
func (v *View) ByteLength() uint64 { return v.Length() << v.kind.Shift() }

func (v *View) Region() *Region { return v.region }

// Pointer returns the address of element 0, or nil if the region is gone.
func (v *View) Pointer() unsafe.Pointer {
	base := v.region.Base()
	if base == nil {
		return nil
	}
	return unsafe.Add(base, v.byteOffset)
}

// Detached reports whether the memory behind the view is no longer accessible.
func (v *View) Detached() bool { return !v.region.Usable() }

func (v *View) String() string {
	return fmt.Sprintf("%s[%d]@%d", v.kind, v.length, v.byteOffset)
}
