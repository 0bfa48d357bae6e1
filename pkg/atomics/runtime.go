package atomics

import (
	internalshm "github.com/srediag/shm-atomics/internal/shm"
)

// Runtime runs operations the target cannot run inline. It receives the
// unconverted operands and must behave exactly like the inline path,
// including the errors it returns.
type Runtime interface {
	RunGeneralAtomic(op Op, candidate any, index uint64, operands ...any) (Result, error)
}

// GeneralRuntime is the portable Runtime: it validates the view again and
// runs the operation as a compare-and-swap loop on the containing word.
type GeneralRuntime struct {
	model     ObjectModel
	coercer   Coercer
	validator *Validator
}

var _ Runtime = (*GeneralRuntime)(nil)

// NewGeneralRuntime returns a GeneralRuntime using model and coercer.
func NewGeneralRuntime(model ObjectModel, coercer Coercer) *GeneralRuntime {
	return &GeneralRuntime{
		model:     model,
		coercer:   coercer,
		validator: NewValidator(model, coercer),
	}
}

func (g *GeneralRuntime) RunGeneralAtomic(op Op, candidate any, index uint64, operands ...any) (Result, error) {
	if !op.Valid() || len(operands) != op.Operands() {
		return Result{}, ErrOperandCount
	}
	kind, base, err := g.validator.ValidateView(candidate)
	if err != nil {
		return Result{}, err
	}
	if err := g.validator.checkBounds(candidate, index); err != nil {
		return Result{}, err
	}
	return perform(&internalshm.General, g.model, g.coercer, op, candidate, kind, base, index, operands)
}
