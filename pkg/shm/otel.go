package shm

import (
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

const instrumentationName = "github.com/srediag/shm-atomics/pkg/shm"

type instruments struct {
	tracer   trace.Tracer
	opens    metric.Int64Counter
	closes   metric.Int64Counter
	failures metric.Int64Counter
}

func newInstruments(m metric.Meter, t trace.Tracer) *instruments {
	if m == nil {
		m = metricnoop.NewMeterProvider().Meter(instrumentationName)
	}
	if t == nil {
		t = tracenoop.NewTracerProvider().Tracer(instrumentationName)
	}
	return &instruments{
		tracer:   t,
		opens:    counter(m, "shm.region.opens", "Regions mapped."),
		closes:   counter(m, "shm.region.closes", "Regions unmapped."),
		failures: counter(m, "shm.region.failures", "Failed region map or unmap calls."),
	}
}

func counter(m metric.Meter, name, desc string) metric.Int64Counter {
	c, err := m.Int64Counter(name, metric.WithDescription(desc), metric.WithUnit("{region}"))
	if err != nil {
		log.Warnf("create counter %s: %v", name, err)
		return metricnoop.Int64Counter{}
	}
	return c
}
