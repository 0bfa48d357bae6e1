// Package health exposes liveness and readiness checks for shared regions and
// atomics engines over HTTP.
package health

import (
	"errors"
	"fmt"
	"time"

	"github.com/heptiolabs/healthcheck"

	"github.com/srediag/shm-atomics/pkg/atomics"
	"github.com/srediag/shm-atomics/pkg/shm"
)

var (
	ErrRegionUnusable = errors.New("region closed or detached")
	ErrProbeMismatch  = errors.New("probe cell changed during compare-exchange")
)

// Options tune how checks run. Zero values run each check inline on every
// request without a deadline.
type Options struct {
	// Interval runs checks in the background and serves the last result.
	Interval time.Duration
	// Timeout fails a check that takes longer.
	Timeout time.Duration
}

// Checker serves /live and /ready.
type Checker struct {
	healthcheck.Handler
	opts Options
}

func NewChecker(opts Options) *Checker {
	return &Checker{Handler: healthcheck.NewHandler(), opts: opts}
}

func (c *Checker) wrap(check healthcheck.Check) healthcheck.Check {
	if c.opts.Timeout > 0 {
		check = healthcheck.Timeout(check, c.opts.Timeout)
	}
	if c.opts.Interval > 0 {
		check = healthcheck.Async(check, c.opts.Interval)
	}
	return check
}

// AddRegion makes readiness depend on r staying mapped.
func (c *Checker) AddRegion(name string, r *shm.Region) {
	c.AddReadinessCheck("region-"+name, c.wrap(RegionCheck(r)))
}

// AddEngine makes liveness depend on e completing a probe on probe[index].
func (c *Checker) AddEngine(name string, e *atomics.Engine, probe *shm.View, index uint64) {
	c.AddLivenessCheck("engine-"+name, c.wrap(EngineCheck(e, probe, index)))
}

func RegionCheck(r *shm.Region) healthcheck.Check {
	return func() error {
		if !r.Usable() {
			return fmt.Errorf("%s: %w", r.Name(), ErrRegionUnusable)
		}
		return nil
	}
}

// EngineCheck loads the probe cell and compare-exchanges it with itself, so a
// healthy engine leaves memory untouched.
func EngineCheck(e *atomics.Engine, probe *shm.View, index uint64) healthcheck.Check {
	return func() error {
		cur, err := e.Load(probe, index)
		if err != nil {
			return err
		}
		seen, err := e.CompareExchange(probe, index, cur, cur)
		if err != nil {
			return err
		}
		if seen != cur {
			return ErrProbeMismatch
		}
		return nil
	}
}
