package shm

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/srediag/shm-atomics/internal/logger"
	internalshm "github.com/srediag/shm-atomics/internal/shm"
)

var log = logger.New("shm", os.Stderr)

// Region is a mapped block of memory that views are laid over. A shared region
// is never detached or resized while it is open, which is what lets atomic
// operations skip re-validating it after running user callbacks.
type Region struct {
	mapped *internalshm.MappedRegion
	base   unsafe.Pointer
	size   int
	name   string
	shared bool
	inst   *instruments

	closed   atomic.Bool
	detached atomic.Bool
}

// OpenOptions defines options for creating or opening a shared memory region.
type OpenOptions struct {
	// Name is the identifier for the shared memory region. Relative names live
	// under /dev/shm.
	Name string
	// Size is the region size in bytes, rounded up to a multiple of 8. Only
	// used when creating.
	Size int
	// Create indicates whether to create (if not exists) or open existing. An
	// existing region keeps its size; it fails with ErrRegionTooSmall when
	// smaller than Size.
	Create bool
	// MemFd creates an anonymous memfd region (Linux only). Share it with
	// peers through Fd and OpenFd.
	MemFd bool
	// Unlink removes the backing file on Close.
	Unlink bool
	// WaitTimeout makes Open retry for up to this long while a region that is
	// not created here does not exist yet.
	WaitTimeout time.Duration

	Meter  metric.Meter
	Tracer trace.Tracer
}

// Open creates or opens a shared memory region with the given options.
func Open(ctx context.Context, opts OpenOptions) (*Region, error) {
	if (opts.Create || opts.MemFd) && opts.Size <= 0 {
		return nil, ErrInvalidSize
	}
	inst := newInstruments(opts.Meter, opts.Tracer)
	ctx, span := inst.tracer.Start(ctx, "shm.Open", trace.WithAttributes(
		attribute.String("shm.name", opts.Name),
		attribute.Bool("shm.create", opts.Create),
		attribute.Bool("shm.memfd", opts.MemFd),
	))
	defer span.End()

	mapped, err := mapWithWait(ctx, internalshm.MapOptions{
		Name:   opts.Name,
		Size:   opts.Size,
		Create: opts.Create,
		MemFd:  opts.MemFd,
		Unlink: opts.Unlink,
	}, opts.WaitTimeout)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "map region")
		inst.failures.Add(ctx, 1, metric.WithAttributes(attribute.String("shm.op", "open")))
		return nil, fmt.Errorf("open region %q: %w", opts.Name, err)
	}
	r := newRegion(mapped, opts.Name, true, inst)
	inst.opens.Add(ctx, 1, metric.WithAttributes(attribute.String("shm.type", mapped.Type.String())))
	span.SetAttributes(attribute.Int("shm.size", r.size))
	log.Infof("opened region %s (%s, %d bytes)", opts.Name, mapped.Type, r.size)
	return r, nil
}

// OpenFd maps a shared region from a descriptor, typically a memfd passed by a
// peer. The region takes ownership of fd.
func OpenFd(ctx context.Context, fd int, opts OpenOptions) (*Region, error) {
	inst := newInstruments(opts.Meter, opts.Tracer)
	ctx, span := inst.tracer.Start(ctx, "shm.OpenFd", trace.WithAttributes(attribute.Int("shm.fd", fd)))
	defer span.End()
	mapped, err := internalshm.MapFd(ctx, fd)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "map fd")
		inst.failures.Add(ctx, 1, metric.WithAttributes(attribute.String("shm.op", "open")))
		return nil, fmt.Errorf("open fd %d: %w", fd, err)
	}
	inst.opens.Add(ctx, 1, metric.WithAttributes(attribute.String("shm.type", mapped.Type.String())))
	return newRegion(mapped, opts.Name, true, inst), nil
}

// NewSharedRegion allocates a shared region visible to every goroutine of the
// process.
func NewSharedRegion(size int) (*Region, error) {
	return newHeapRegion(size, true)
}

// NewRegion allocates a non-shared region. It can be detached, and atomic
// operations refuse views over it.
func NewRegion(size int) (*Region, error) {
	return newHeapRegion(size, false)
}

func newHeapRegion(size int, shared bool) (*Region, error) {
	mapped, err := internalshm.AllocHeap(size)
	if err != nil {
		return nil, err
	}
	return newRegion(mapped, "", shared, newInstruments(nil, nil)), nil
}

func newRegion(mapped *internalshm.MappedRegion, name string, shared bool, inst *instruments) *Region {
	return &Region{
		mapped: mapped,
		base:   mapped.Base(),
		size:   len(mapped.Addr),
		name:   name,
		shared: shared,
		inst:   inst,
	}
}

func mapWithWait(ctx context.Context, opts internalshm.MapOptions, wait time.Duration) (*internalshm.MappedRegion, error) {
	if wait <= 0 || opts.Create || opts.MemFd {
		return internalshm.MapRegion(ctx, opts)
	}
	b := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(5*time.Millisecond),
		backoff.WithMaxInterval(250*time.Millisecond),
		backoff.WithMaxElapsedTime(wait),
	)
	return backoff.RetryWithData(func() (*internalshm.MappedRegion, error) {
		m, err := internalshm.MapRegion(ctx, opts)
		// A peer may have created the file but not sized it yet.
		if err != nil && !errors.Is(err, fs.ErrNotExist) && !errors.Is(err, internalshm.ErrInvalidSize) {
			return nil, backoff.Permanent(err)
		}
		if err != nil {
			log.Debugf("region %s not there yet, retrying", opts.Name)
		}
		return m, err
	}, backoff.WithContext(b, ctx))
}

// Detach releases a non-shared region. Views over it report a zero length
// afterwards.
func (r *Region) Detach() error {
	if r.shared {
		return ErrNotDetachable
	}
	if r.closed.Load() || !r.detached.CompareAndSwap(false, true) {
		return ErrRegionClosed
	}
	return nil
}

// Close unmaps the region. Views over it must no longer be used; a second Close
// is a no-op.
func (r *Region) Close(ctx context.Context) error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}
	ctx, span := r.inst.tracer.Start(ctx, "shm.Close", trace.WithAttributes(attribute.String("shm.name", r.name)))
	defer span.End()
	if err := internalshm.UnmapRegion(ctx, r.mapped); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "unmap region")
		r.inst.failures.Add(ctx, 1, metric.WithAttributes(attribute.String("shm.op", "close")))
		log.Warnf("close region %s: %v", r.name, err)
		return err
	}
	r.inst.closes.Add(ctx, 1)
	log.Infof("closed region %s", r.name)
	return nil
}

// Base returns the address of the first byte, or nil once the region is closed.
func (r *Region) Base() unsafe.Pointer {
	if !r.Usable() {
		return nil
	}
	return r.base
}

// Bytes exposes the region memory for non-atomic inspection.
func (r *Region) Bytes() []byte {
	if !r.Usable() {
		return nil
	}
	return unsafe.Slice((*byte)(r.base), r.size)
}

func (r *Region) Size() int { return r.size }

func (r *Region) Name() string { return r.name }

func (r *Region) Shared() bool { return r.shared }

func (r *Region) Closed() bool { return r.closed.Load() }

func (r *Region) Detached() bool { return r.detached.Load() }

// Usable reports whether the memory can still be accessed.
func (r *Region) Usable() bool { return !r.closed.Load() && !r.detached.Load() }

// Fd returns the backing descriptor, or -1 for heap regions.
func (r *Region) Fd() int { return r.mapped.Fd }

// Type names the backing: devshm, memfd or heap.
func (r *Region) Type() string { return r.mapped.Type.String() }
