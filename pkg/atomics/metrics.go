package atomics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/srediag/shm-atomics/pkg/shm"
)

const (
	pathInline = iota
	pathCallOut
)

var pathNames = [...]string{pathInline: "inline", pathCallOut: "callout"}

// metrics holds one counter per label combination so the hot path only does
// an atomic increment.
type metrics struct {
	ops    [opCount][shm.KindUint64 + 1][2]prometheus.Counter
	errors [opCount][RangeKind + 1]prometheus.Counter
}

func newMetrics(namespace string, reg prometheus.Registerer) (*metrics, error) {
	opsVec, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "operations_total",
		Help:      "Atomic operations performed, by operation, element kind and execution path.",
	}, []string{"op", "kind", "path"}))
	if err != nil {
		return nil, err
	}
	errVec, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "errors_total",
		Help:      "Atomic operations rejected, by operation and error kind.",
	}, []string{"op", "error"}))
	if err != nil {
		return nil, err
	}

	m := &metrics{}
	for _, op := range Ops {
		for _, kind := range shm.IntegerKinds {
			for path, name := range pathNames {
				m.ops[op][kind][path] = opsVec.WithLabelValues(op.String(), kind.String(), name)
			}
		}
		m.errors[op][0] = errVec.WithLabelValues(op.String(), "other")
		m.errors[op][TypeKind] = errVec.WithLabelValues(op.String(), TypeKind.String())
		m.errors[op][RangeKind] = errVec.WithLabelValues(op.String(), RangeKind.String())
	}
	return m, nil
}

// register tolerates a second engine registering the same collectors.
func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if reg == nil {
		return c, nil
	}
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

func (m *metrics) done(op Op, kind shm.ElementKind, path int) {
	m.ops[op][kind][path].Inc()
}

func (m *metrics) failed(op Op, err error) {
	var ae *Error
	if errors.As(err, &ae) && (ae.Kind == TypeKind || ae.Kind == RangeKind) {
		m.errors[op][ae.Kind].Inc()
		return
	}
	m.errors[op][0].Inc()
}
