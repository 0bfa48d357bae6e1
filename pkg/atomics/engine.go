package atomics

import (
	"fmt"
	"os"

	"github.com/srediag/shm-atomics/internal/logger"
	internalshm "github.com/srediag/shm-atomics/internal/shm"
	"github.com/srediag/shm-atomics/pkg/shm"
)

var log = logger.New("atomics", os.Stderr)

// Engine is the entry point for atomic operations on typed views. It holds no
// per-call state and is safe for concurrent use.
type Engine struct {
	strategy  Strategy
	caps      Capabilities
	model     ObjectModel
	coercer   Coercer
	validator *Validator
	runtime   Runtime
	metrics   *metrics
}

// Option customizes an Engine.
type Option func(*Engine)

// WithObjectModel replaces ViewModel.
func WithObjectModel(m ObjectModel) Option {
	return func(e *Engine) { e.model = m }
}

// WithCoercer replaces DefaultCoercer.
func WithCoercer(c Coercer) Option {
	return func(e *Engine) { e.coercer = c }
}

// WithRuntime replaces the GeneralRuntime used for call-outs.
func WithRuntime(r Runtime) Option {
	return func(e *Engine) { e.runtime = r }
}

// New creates an Engine. A nil config means DefaultConfig.
func New(config *Config, opts ...Option) (*Engine, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := VerifyConfig(config); err != nil {
		return nil, err
	}
	e := &Engine{
		strategy: config.Strategy,
		model:    ViewModel{},
		coercer:  DefaultCoercer{},
	}
	for _, opt := range opts {
		opt(e)
	}
	caps := HostCapabilities()
	if config.Capabilities != nil {
		caps = *config.Capabilities
	}
	e.caps = config.Strategy.effective(caps)
	e.validator = NewValidator(e.model, e.coercer)
	if e.runtime == nil {
		e.runtime = NewGeneralRuntime(e.model, e.coercer)
	}
	m, err := newMetrics(config.MetricsNamespace, config.Registerer)
	if err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}
	e.metrics = m
	log.Debugf("engine strategy=%s %s verification=%t", e.strategy, e.caps, verificationBuild)
	return e, nil
}

// Strategy returns the configured strategy.
func (e *Engine) Strategy() Strategy { return e.strategy }

// Capabilities returns the operations the engine runs inline.
func (e *Engine) Capabilities() Capabilities { return e.caps }

// Inline reports whether op on kind runs natively rather than in the Runtime.
func (e *Engine) Inline(op Op, kind shm.ElementKind) bool { return e.caps.Inline(op, kind) }

// Execute validates view and index, converts operands and runs op. Load takes
// no operand, CompareExchange takes expected and replacement, every other
// operation takes one value.
func (e *Engine) Execute(op Op, view any, index any, operands ...any) (Result, error) {
	if !op.Valid() || len(operands) != op.Operands() {
		return Result{}, fmt.Errorf("%w: %s takes %d, got %d", ErrOperandCount, op, op.Operands(), len(operands))
	}
	kind, base, err := e.validator.ValidateView(view)
	if err != nil {
		e.metrics.failed(op, err)
		return Result{}, err
	}
	idx, err := e.validator.ValidateIndex(view, index)
	if err != nil {
		e.metrics.failed(op, err)
		return Result{}, err
	}

	if !e.caps.Inline(op, kind) {
		res, err := e.runtime.RunGeneralAtomic(op, view, idx, operands...)
		if err != nil {
			e.metrics.failed(op, err)
			return Result{}, err
		}
		e.metrics.done(op, kind, pathCallOut)
		return res, nil
	}
	res, err := perform(&internalshm.Inline, e.model, e.coercer, op, view, kind, base, idx, operands)
	if err != nil {
		e.metrics.failed(op, err)
		return Result{}, err
	}
	e.metrics.done(op, kind, pathInline)
	return res, nil
}

// Load returns the element at index.
func (e *Engine) Load(view, index any) (Result, error) {
	return e.Execute(OpLoad, view, index)
}

// Store writes value and returns it as converted, before truncation to the
// element width. Result.BigInt and Result.String give the exact converted value
// even when it does not fit in 64 bits.
func (e *Engine) Store(view, index, value any) (Result, error) {
	return e.Execute(OpStore, view, index, value)
}

// Exchange writes value and returns the previous element.
func (e *Engine) Exchange(view, index, value any) (Result, error) {
	return e.Execute(OpExchange, view, index, value)
}

// CompareExchange writes replacement if the element equals expected. It
// returns the element as it was before the call either way.
func (e *Engine) CompareExchange(view, index, expected, replacement any) (Result, error) {
	return e.Execute(OpCompareExchange, view, index, expected, replacement)
}

// Add adds value modulo the element width and returns the previous element.
func (e *Engine) Add(view, index, value any) (Result, error) {
	return e.Execute(OpAdd, view, index, value)
}

// Sub subtracts value modulo the element width and returns the previous element.
func (e *Engine) Sub(view, index, value any) (Result, error) {
	return e.Execute(OpSub, view, index, value)
}

// And stores the bitwise AND of the element and value and returns the previous
// element.
func (e *Engine) And(view, index, value any) (Result, error) {
	return e.Execute(OpAnd, view, index, value)
}

// Or stores the bitwise OR of the element and value and returns the previous
// element.
func (e *Engine) Or(view, index, value any) (Result, error) {
	return e.Execute(OpOr, view, index, value)
}

// Xor stores the bitwise XOR of the element and value and returns the previous
// element.
func (e *Engine) Xor(view, index, value any) (Result, error) {
	return e.Execute(OpXor, view, index, value)
}
