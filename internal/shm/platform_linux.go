//go:build linux

package shm

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/shirou/gopsutil/v3/disk"
	"golang.org/x/sys/unix"
)

// MapRegion maps or creates a shared memory region (Linux implementation).
func MapRegion(ctx context.Context, opts MapOptions) (*MappedRegion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if opts.MemFd {
		return mapMemFd(opts)
	}
	if opts.Create && opts.Size <= 0 {
		return nil, ErrInvalidSize
	}
	shmPath := DevShmPath(opts.Name)
	flags := unix.O_RDWR | unix.O_CLOEXEC
	size := AlignSize(opts.Size)
	if opts.Create {
		flags |= unix.O_CREAT
		if !canCreateOnDevShm(uint64(size), shmPath) {
			return nil, fmt.Errorf("no space left on /dev/shm for %s, size:%d", shmPath, size)
		}
	}
	fd, err := unix.Open(shmPath, flags, 0600)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", shmPath, err)
	}
	if opts.Create {
		if size, err = sizeOnCreate(fd, size); err != nil {
			_ = unix.Close(fd)
			return nil, err
		}
	} else {
		if size, err = fdSize(fd); err != nil {
			_ = unix.Close(fd)
			return nil, err
		}
	}
	r, err := mmapFd(fd, size, MapTypeDevShmFile)
	if err != nil {
		return nil, err
	}
	r.Path = shmPath
	r.unlink = opts.Unlink
	return r, nil
}

// MapFd maps an already open descriptor, typically a memfd received from a peer.
// The descriptor is owned by the returned region.
func MapFd(ctx context.Context, fd int) (*MappedRegion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	size, err := fdSize(fd)
	if err != nil {
		return nil, err
	}
	return mmapFd(fd, size, MapTypeMemFd)
}

// UnmapRegion unmaps and closes the shared memory region (Linux implementation).
func UnmapRegion(ctx context.Context, region *MappedRegion) error {
	if region == nil || region.Addr == nil {
		return nil
	}
	if region.Type == MapTypeHeap {
		region.Addr, region.words = nil, nil
		return nil
	}
	var firstErr error
	if err := unix.Munmap(region.Addr); err != nil {
		firstErr = fmt.Errorf("munmap: %w", err)
	}
	region.Addr = nil
	if region.Fd >= 0 {
		if err := unix.Close(region.Fd); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close fd %d: %w", region.Fd, err)
		}
		region.Fd = -1
	}
	if region.unlink && region.Type == MapTypeDevShmFile {
		if err := os.Remove(region.Path); err != nil && !os.IsNotExist(err) && firstErr == nil {
			firstErr = fmt.Errorf("remove %s: %w", region.Path, err)
		}
	}
	return firstErr
}

func mapMemFd(opts MapOptions) (*MappedRegion, error) {
	if opts.Size <= 0 {
		return nil, ErrInvalidSize
	}
	size := AlignSize(opts.Size)
	fd, err := unix.MemfdCreate(opts.Name, unix.MFD_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("memfd_create: %w", err)
	}
	if err := unix.Ftruncate(fd, int64(size)); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("ftruncate memfd: %w", err)
	}
	r, err := mmapFd(fd, size, MapTypeMemFd)
	if err != nil {
		return nil, err
	}
	r.Path = opts.Name
	return r, nil
}

func mmapFd(fd int, size int, typ MapType) (*MappedRegion, error) {
	addr, err := unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("mmap: %w", err)
	}
	return &MappedRegion{
		Addr: addr,
		Fd:   fd,
		Type: typ,
	}, nil
}

// sizeOnCreate sizes a freshly created file to size. A file that already has
// a size belongs to a peer that may have it mapped, so it is never resized: its
// size is kept when it covers size and rejected otherwise. The flock orders
// concurrent creators.
func sizeOnCreate(fd int, size int) (int, error) {
	if err := unix.Flock(fd, unix.LOCK_EX); err != nil {
		return 0, fmt.Errorf("flock: %w", err)
	}
	defer func() { _ = unix.Flock(fd, unix.LOCK_UN) }()
	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		return 0, fmt.Errorf("fstat: %w", err)
	}
	if st.Size == 0 {
		if err := unix.Ftruncate(fd, int64(size)); err != nil {
			return 0, fmt.Errorf("ftruncate: %w", err)
		}
		return size, nil
	}
	existing, err := fdSize(fd)
	if err != nil {
		return 0, err
	}
	if existing < size {
		return 0, fmt.Errorf("%w: %d bytes, want %d", ErrRegionTooSmall, existing, size)
	}
	return existing, nil
}

func fdSize(fd int) (int, error) {
	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		return 0, fmt.Errorf("fstat: %w", err)
	}
	if st.Size <= 0 {
		return 0, ErrInvalidSize
	}
	if st.Size%Alignment != 0 {
		return 0, fmt.Errorf("%w: %d bytes", ErrUnalignedMap, st.Size)
	}
	return int(st.Size), nil
}

// canCreateOnDevShm reports whether /dev/shm has room for size bytes. Paths
// outside /dev/shm, and an unknown free size, never block creation.
func canCreateOnDevShm(size uint64, path string) bool {
	if !strings.HasPrefix(path, "/dev/shm") {
		return true
	}
	stat, err := disk.Usage("/dev/shm")
	if err != nil {
		return true
	}
	return stat.Free >= size
}
