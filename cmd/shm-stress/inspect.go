package main

import (
	"context"
	"fmt"
	"os"

	"github.com/valyala/bytebufferpool"

	"github.com/srediag/shm-atomics/pkg/atomics"
	"github.com/srediag/shm-atomics/pkg/shm"
)

type inspectCmd struct {
	RegionFlags
}

func (c *inspectCmd) Run(env *env) error {
	specs, err := c.specs()
	if err != nil {
		return err
	}
	region, err := shm.Open(env.ctx, shm.OpenOptions{Name: c.Name, WaitTimeout: c.WaitTimeout})
	if err != nil {
		return err
	}
	defer func() { _ = region.Close(context.Background()) }()

	layout, err := shm.NewLayout(region, specs...)
	if err != nil {
		return err
	}
	engine, err := atomics.New(nil)
	if err != nil {
		return err
	}

	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)
	if err := writeCells(buf, engine, layout, specs); err != nil {
		return err
	}
	_, err = buf.WriteTo(os.Stdout)
	return err
}

// writeCells loads every cell of the layout atomically and prints one line
// per view.
func writeCells(buf *bytebufferpool.ByteBuffer, e *atomics.Engine, l *shm.Layout, specs []shm.ViewSpec) error {
	for _, s := range specs {
		v, ok := l.View(s.Name)
		if !ok {
			return fmt.Errorf("view %q missing from layout", s.Name)
		}
		fmt.Fprintf(buf, "%-8s %s:", s.Name, v)
		for i := uint64(0); i < v.Length(); i++ {
			res, err := e.Load(v, i)
			if err != nil {
				return err
			}
			_ = buf.WriteByte(' ')
			_, _ = buf.WriteString(res.String())
		}
		_ = buf.WriteByte('\n')
	}
	return nil
}
