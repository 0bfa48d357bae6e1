package shm

import (
	"context"
	"sync"
	"sync/atomic"

	cmap "github.com/orcaman/concurrent-map/v2"
)

// Registry hands out one Region per name and counts its users. The region is
// closed when the last user releases it.
type Registry struct {
	regions cmap.ConcurrentMap[string, *registryEntry]
	open    func(context.Context, OpenOptions) (*Region, error)
}

type registryEntry struct {
	once   sync.Once
	region atomic.Pointer[Region]
	err    error
	// written under the map shard lock
	refs atomic.Int32
}

// NewRegistry returns an empty registry that maps regions with Open.
func NewRegistry() *Registry {
	return &Registry{
		regions: cmap.New[*registryEntry](),
		open:    Open,
	}
}

// Acquire returns the region registered under opts.Name, opening it on first
// use. Every successful Acquire must be paired with a Release.
func (r *Registry) Acquire(ctx context.Context, opts OpenOptions) (*Region, error) {
	e := r.regions.Upsert(opts.Name, nil, func(exist bool, cur, _ *registryEntry) *registryEntry {
		if exist {
			cur.refs.Add(1)
			return cur
		}
		e := &registryEntry{}
		e.refs.Store(1)
		return e
	})
	e.once.Do(func() {
		region, err := r.open(ctx, opts)
		if err != nil {
			e.err = err
			return
		}
		e.region.Store(region)
	})
	if e.err != nil {
		err := e.err
		_ = r.Release(ctx, opts.Name)
		return nil, err
	}
	return e.region.Load(), nil
}

// Release drops one reference to the named region.
func (r *Registry) Release(ctx context.Context, name string) error {
	var last *registryEntry
	found := false
	r.regions.RemoveCb(name, func(_ string, e *registryEntry, exists bool) bool {
		if !exists {
			return false
		}
		found = true
		if e.refs.Add(-1) > 0 {
			return false
		}
		last = e
		return true
	})
	if !found {
		return ErrUnknownRegion
	}
	if last == nil || last.region.Load() == nil {
		return nil
	}
	return last.region.Load().Close(ctx)
}

// Get returns the open region registered under name without taking a reference.
func (r *Registry) Get(name string) (*Region, bool) {
	e, ok := r.regions.Get(name)
	if !ok || e.region.Load() == nil {
		return nil, false
	}
	return e.region.Load(), true
}

// Names lists the registered region names.
func (r *Registry) Names() []string {
	return r.regions.Keys()
}

// Refs returns the number of users of the named region.
func (r *Registry) Refs(name string) int {
	e, ok := r.regions.Get(name)
	if !ok {
		return 0
	}
	return int(e.refs.Load())
}

// Close closes every registered region regardless of its references.
func (r *Registry) Close(ctx context.Context) error {
	var firstErr error
	for _, name := range r.regions.Keys() {
		e, ok := r.regions.Pop(name)
		if !ok || e.region.Load() == nil {
			continue
		}
		if err := e.region.Load().Close(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
