package atomics

import (
	"errors"
	"fmt"
	"unsafe"

	"github.com/srediag/shm-atomics/pkg/shm"
)

var (
	errNotTypedView   = errors.New("value is not a typed view")
	errNonSharedView  = errors.New("view is not backed by a shared region")
	errIndexOutOfView = errors.New("index out of bounds")
)

// Validator checks candidates before any memory is accessed.
type Validator struct {
	model   ObjectModel
	coercer Coercer
}

// NewValidator returns a Validator over model and coercer.
func NewValidator(model ObjectModel, coercer Coercer) *Validator {
	return &Validator{model: model, coercer: coercer}
}

// ValidateView returns the element kind of candidate and the address of its
// element 0. It fails with a TypeKind error unless candidate is a typed view
// of an integer kind over a shared region.
func (v *Validator) ValidateView(candidate any) (shm.ElementKind, unsafe.Pointer, error) {
	if !v.model.IsTypedView(candidate) {
		return 0, nil, typeError(ErrNotIntegerSharedView, fmt.Errorf("%T: %w", candidate, errNotTypedView))
	}
	kind := v.model.ElementKindOf(candidate)
	if !kind.IsInteger() {
		return 0, nil, typeError(ErrNotIntegerSharedView, fmt.Errorf("element kind %s", kind))
	}
	if !v.model.IsSharedRegion(candidate) {
		return 0, nil, typeError(ErrNotIntegerSharedView, errNonSharedView)
	}
	addr := v.model.BackingAddressOf(candidate)
	if addr == nil {
		return 0, nil, typeError(ErrNotIntegerSharedView, errNonSharedView)
	}
	return kind, addr, nil
}

// ValidateIndex converts raw to an element index of candidate. Conversion
// failures and indexes at or beyond the view length are RangeKind errors.
// Conversion may run user code.
func (v *Validator) ValidateIndex(candidate any, raw any) (uint64, error) {
	index, err := v.coercer.ToIndexInteger(raw)
	if err != nil {
		return 0, rangeError(err)
	}
	if err := v.checkBounds(candidate, index); err != nil {
		return 0, err
	}
	return index, nil
}

func (v *Validator) checkBounds(candidate any, index uint64) error {
	if length := v.model.LengthOf(candidate); index >= length {
		return rangeError(fmt.Errorf("%w: %d >= length %d", errIndexOutOfView, index, length))
	}
	return nil
}
