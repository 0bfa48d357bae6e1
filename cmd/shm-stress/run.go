package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/srediag/shm-atomics/pkg/atomics"
	"github.com/srediag/shm-atomics/pkg/health"
	"github.com/srediag/shm-atomics/pkg/shm"
)

// RegionFlags select the region and its counter view.
type RegionFlags struct {
	Name        string        `arg:"" help:"Region name under /dev/shm, or an absolute path."`
	Kind        string        `help:"Element kind of the counter cells." default:"int32"`
	Length      uint64        `help:"Number of counter cells." default:"16"`
	WaitTimeout time.Duration `help:"How long to wait for a peer to create the region." default:"0s"`
}

func (f RegionFlags) specs() ([]shm.ViewSpec, error) {
	kind, err := shm.ParseElementKind(f.Kind)
	if err != nil {
		return nil, err
	}
	if !kind.IsInteger() {
		return nil, fmt.Errorf("counter cells must have an integer kind, got %s", kind)
	}
	if f.Length == 0 {
		return nil, errors.New("at least one counter cell is needed")
	}
	return cellSpecs(kind, f.Length), nil
}

type runCmd struct {
	RegionFlags

	Attach     bool          `help:"Attach to an existing region instead of creating it."`
	Unlink     bool          `help:"Remove the region name when the run ends."`
	Strategy   string        `help:"Execution strategy." default:"auto" enum:"auto,inline,callout"`
	Workers    int           `help:"Worker pool size." default:"8"`
	Iterations int           `help:"Increments per counter cell." default:"1000"`
	Listen     string        `help:"Serve /metrics, /live and /ready on this address."`
	Hold       time.Duration `help:"Keep serving after the run finishes." default:"0s"`
}

func (c *runCmd) Run(env *env) error {
	ctx := env.ctx
	specs, err := c.specs()
	if err != nil {
		return err
	}
	strategy, err := atomics.ParseStrategy(c.Strategy)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	config := atomics.DefaultConfig()
	config.Strategy = strategy
	config.MetricsNamespace = "shm_stress"
	config.Registerer = reg
	engine, err := atomics.New(config)
	if err != nil {
		return err
	}

	regions := shm.NewRegistry()
	defer func() {
		if err := regions.Close(context.Background()); err != nil {
			log.Warnf("close regions: %v", err)
		}
	}()
	region, err := regions.Acquire(ctx, shm.OpenOptions{
		Name:        c.Name,
		Size:        shm.LayoutSize(specs...),
		Create:      !c.Attach,
		Unlink:      c.Unlink,
		WaitTimeout: c.WaitTimeout,
	})
	if err != nil {
		return err
	}
	layout, err := shm.NewLayout(region, specs...)
	if err != nil {
		return err
	}
	counters, _ := layout.View(countersView)
	token, _ := layout.View(tokenView)
	probe, _ := layout.View(probeView)

	checker := health.NewChecker(health.Options{Timeout: time.Second})
	checker.AddRegion(c.Name, region)
	checker.AddEngine("stress", engine, probe, 0)
	if c.Listen != "" {
		srv := serve(c.Listen, reg, checker)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	log.Infof("stressing %s: %s strategy=%s workers=%d iterations=%d", c.Name, counters, engine.Strategy(), c.Workers, c.Iterations)
	rep, err := stress(ctx, engine, counters, token, c.Workers, c.Iterations)
	if err != nil {
		return err
	}
	log.Infof("done: %s", rep)

	if c.Hold > 0 {
		select {
		case <-ctx.Done():
		case <-time.After(c.Hold):
		}
	}
	if !rep.ok() {
		return fmt.Errorf("lost updates: %s", rep)
	}
	return nil
}

func serve(addr string, reg *prometheus.Registry, checker *health.Checker) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	mux.HandleFunc("/live", checker.LiveEndpoint)
	mux.HandleFunc("/ready", checker.ReadyEndpoint)
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("serve %s: %v", addr, err)
		}
	}()
	log.Infof("serving metrics and health on %s", addr)
	return srv
}
