package shm

import (
	"fmt"
	"sync"
)

// ViewSpec describes one view of a Layout.
type ViewSpec struct {
	Name   string
	Kind   ElementKind
	Length uint64
}

// Layout carves named views out of a region front to back, aligning each one
// to its element size. Processes that apply the same specs in the same order
// over one region get identical views.
type Layout struct {
	mu     sync.Mutex
	region *Region
	next   uintptr
	views  map[string]*View
	order  []string
}

// LayoutStats describes how much of the region a Layout has handed out.
type LayoutStats struct {
	Views int
	Used  int
	Free  int
}

// NewLayout creates a Layout over r and allocates specs in order.
func NewLayout(r *Region, specs ...ViewSpec) (*Layout, error) {
	l := &Layout{
		region: r,
		views:  make(map[string]*View),
	}
	for _, s := range specs {
		if _, err := l.Alloc(s.Name, s.Kind, s.Length); err != nil {
			return nil, err
		}
	}
	return l, nil
}

// Alloc places the next view.
func (l *Layout) Alloc(name string, kind ElementKind, length uint64) (*View, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("view %q: invalid element kind %d", name, uint8(kind))
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.views[name]; ok {
		return nil, fmt.Errorf("view %q already allocated", name)
	}
	size := kind.Size()
	offset := (l.next + size - 1) &^ (size - 1)
	if uint64(offset) > uint64(l.region.Size()) || length > (uint64(l.region.Size())-uint64(offset))>>kind.Shift() {
		return nil, fmt.Errorf("%w: view %q needs %d x %s at offset %d", ErrLayoutExhausted, name, length, kind, offset)
	}
	v, err := NewView(l.region, kind, offset, length)
	if err != nil {
		return nil, err
	}
	l.next = offset + uintptr(length)<<kind.Shift()
	l.views[name] = v
	l.order = append(l.order, name)
	return v, nil
}

// View returns the view allocated under name.
func (l *Layout) View(name string) (*View, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	v, ok := l.views[name]
	return v, ok
}

// Views returns the views in allocation order.
func (l *Layout) Views() []*View {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*View, 0, len(l.order))
	for _, name := range l.order {
		out = append(out, l.views[name])
	}
	return out
}

// Stats returns the number of views and the used and free byte counts.
func (l *Layout) Stats() LayoutStats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return LayoutStats{
		Views: len(l.views),
		Used:  int(l.next),
		Free:  l.region.Size() - int(l.next),
	}
}

// LayoutSize is the smallest region size that fits specs laid out by
// NewLayout.
func LayoutSize(specs ...ViewSpec) int {
	var next uintptr
	for _, s := range specs {
		size := s.Kind.Size()
		next = (next+size-1)&^(size-1) + uintptr(s.Length)<<s.Kind.Shift()
	}
	return int(next)
}
