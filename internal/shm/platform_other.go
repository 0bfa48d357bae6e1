//go:build !linux

package shm

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sync"
)

// Without POSIX shared memory, named regions live on the heap and are shared
// between goroutines of one process only.
var (
	heapMu      sync.Mutex
	heapRegions = make(map[string]*MappedRegion)
)

// MapRegion maps or creates a process-local named region.
func MapRegion(ctx context.Context, opts MapOptions) (*MappedRegion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := DevShmPath(opts.Name)
	heapMu.Lock()
	defer heapMu.Unlock()
	if r, ok := heapRegions[path]; ok {
		if opts.Create && len(r.Addr) < AlignSize(opts.Size) {
			return nil, fmt.Errorf("%w: %d bytes, want %d", ErrRegionTooSmall, len(r.Addr), AlignSize(opts.Size))
		}
		return &MappedRegion{Addr: r.Addr, Path: path, Fd: -1, Type: MapTypeHeap, unlink: opts.Unlink, words: r.words}, nil
	}
	if !opts.Create {
		return nil, fmt.Errorf("open %s: %w", path, fs.ErrNotExist)
	}
	r, err := AllocHeap(opts.Size)
	if err != nil {
		return nil, err
	}
	r.Path = path
	heapRegions[path] = r
	return &MappedRegion{Addr: r.Addr, Path: path, Fd: -1, Type: MapTypeHeap, unlink: opts.Unlink, words: r.words}, nil
}

// MapFd is not available without file descriptor backed shared memory.
func MapFd(ctx context.Context, fd int) (*MappedRegion, error) {
	return nil, errors.New("shm: MapFd is only supported on linux")
}

// UnmapRegion drops the mapping and, when asked to, forgets the named region.
func UnmapRegion(ctx context.Context, region *MappedRegion) error {
	if region == nil || region.Addr == nil {
		return nil
	}
	if region.unlink && region.Path != "" {
		heapMu.Lock()
		delete(heapRegions, region.Path)
		heapMu.Unlock()
	}
	region.Addr, region.words = nil, nil
	return nil
}
