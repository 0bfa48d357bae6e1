package atomics

import (
	"unsafe"

	"github.com/srediag/shm-atomics/pkg/shm"
)

// ObjectModel answers questions about candidate views. Candidates are
// arbitrary values; only IsTypedView may be asked of a value that is not a
// typed view.
type ObjectModel interface {
	IsTypedView(candidate any) bool
	ElementKindOf(candidate any) shm.ElementKind
	IsSharedRegion(candidate any) bool
	LengthOf(candidate any) uint64
	// BackingAddressOf is the region base plus the view's byte offset.
	BackingAddressOf(candidate any) unsafe.Pointer
	// IsDetached is only consulted by verification builds.
	IsDetached(candidate any) bool
}

// ViewModel is the ObjectModel for *shm.View.
type ViewModel struct{}

var _ ObjectModel = ViewModel{}

func (ViewModel) IsTypedView(candidate any) bool {
	v, ok := candidate.(*shm.View)
	return ok && v != nil
}

func (ViewModel) ElementKindOf(candidate any) shm.ElementKind {
	return candidate.(*shm.View).Kind()
}

// IsSharedRegion is false for a closed region, so operations on a view whose
// region was closed fail validation instead of touching unmapped memory.
func (ViewModel) IsSharedRegion(candidate any) bool {
	r := candidate.(*shm.View).Region()
	return r.Shared() && r.Usable()
}

func (ViewModel) LengthOf(candidate any) uint64 {
	return candidate.(*shm.View).Length()
}

func (ViewModel) BackingAddressOf(candidate any) unsafe.Pointer {
	return candidate.(*shm.View).Pointer()
}

func (ViewModel) IsDetached(candidate any) bool {
	return candidate.(*shm.View).Detached()
}
