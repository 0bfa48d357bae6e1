package shm

import (
	"errors"

	internalshm "github.com/srediag/shm-atomics/internal/shm"
)

var (
	ErrInvalidSize     = internalshm.ErrInvalidSize
	ErrRegionTooSmall  = internalshm.ErrRegionTooSmall
	ErrNotDetachable   = errors.New("shm: shared region cannot be detached")
	ErrRegionClosed    = errors.New("shm: region is closed or detached")
	ErrMisaligned      = errors.New("shm: view offset is not aligned to its element size")
	ErrOutOfBounds     = errors.New("shm: view exceeds region bounds")
	ErrLayoutExhausted = errors.New("shm: no room left in region layout")
	ErrUnknownRegion   = errors.New("shm: region is not registered")
)
