package main

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Workiva/go-datastructures/queue"
	"github.com/panjf2000/ants/v2"

	"github.com/srediag/shm-atomics/pkg/atomics"
	"github.com/srediag/shm-atomics/pkg/shm"
)

const (
	countersView = "counters"
	tokenView    = "token"
	probeView    = "probe"
)

// cellSpecs is the region layout every command agrees on.
func cellSpecs(kind shm.ElementKind, length uint64) []shm.ViewSpec {
	return []shm.ViewSpec{
		{Name: countersView, Kind: kind, Length: length},
		{Name: tokenView, Kind: shm.KindUint32, Length: 1},
		{Name: probeView, Kind: shm.KindUint64, Length: 1},
	}
}

type taskKind uint8

const (
	taskAdd taskKind = iota
	taskExchange
)

type task struct {
	kind  taskKind
	index uint64
	token uint32
}

type report struct {
	Adds      int
	Exchanges int
	// Lost counts counter cells whose increase differs from the iterations.
	Lost int
	// Mismatched counts exchanged tokens seen a different number of times
	// than they were written.
	Mismatched int
	Elapsed    time.Duration
}

func (r report) String() string {
	return fmt.Sprintf("adds=%d exchanges=%d lost=%d mismatched=%d elapsed=%s",
		r.Adds, r.Exchanges, r.Lost, r.Mismatched, r.Elapsed)
}

func (r report) ok() bool { return r.Lost == 0 && r.Mismatched == 0 }

// stress adds 1 to every counter cell iterations times and exchanges one
// fresh token per iteration, all from a pool of workers. Verification assumes
// no other process writes the cells meanwhile.
func stress(ctx context.Context, e *atomics.Engine, counters, token *shm.View, workers, iterations int) (report, error) {
	if workers <= 0 || iterations <= 0 {
		return report{}, fmt.Errorf("workers and iterations must be positive, got %d and %d", workers, iterations)
	}
	length := counters.Length()
	before := make([]uint64, length)
	for i := range before {
		res, err := e.Load(counters, uint64(i))
		if err != nil {
			return report{}, err
		}
		before[i] = res.Uint64()
	}
	first, err := e.Load(token, 0)
	if err != nil {
		return report{}, err
	}

	seen := queue.New(int64(iterations))
	defer seen.Dispose()

	var (
		wg      sync.WaitGroup
		errOnce sync.Once
		runErr  error
	)
	fail := func(err error) { errOnce.Do(func() { runErr = err }) }

	pool, err := ants.NewPoolWithFunc(workers, func(arg any) {
		defer wg.Done()
		defer func() {
			if p := recover(); p != nil {
				fail(fmt.Errorf("worker panic: %v", p))
			}
		}()
		t := arg.(task)
		switch t.kind {
		case taskAdd:
			if _, err := e.Add(counters, t.index, 1); err != nil {
				fail(err)
			}
		case taskExchange:
			prev, err := e.Exchange(token, 0, t.token)
			if err != nil {
				fail(err)
				return
			}
			if err := seen.Put(prev.Uint64()); err != nil {
				fail(err)
			}
		}
	}, ants.WithPreAlloc(true), ants.WithPanicHandler(func(p any) {
		log.Errorf("pool panic: %v", p)
	}))
	if err != nil {
		return report{}, err
	}
	defer pool.Release()

	start := time.Now()
	rep := report{}
loop:
	for it := 0; it < iterations && ctx.Err() == nil; it++ {
		for i := uint64(0); i < length; i++ {
			wg.Add(1)
			if err := pool.Invoke(task{kind: taskAdd, index: i}); err != nil {
				wg.Done()
				fail(err)
				break loop
			}
			rep.Adds++
		}
		wg.Add(1)
		if err := pool.Invoke(task{kind: taskExchange, token: uint32(it + 1)}); err != nil {
			wg.Done()
			fail(err)
			break loop
		}
		rep.Exchanges++
	}
	wg.Wait()
	rep.Elapsed = time.Since(start)
	if runErr != nil {
		return rep, runErr
	}
	if err := ctx.Err(); err != nil {
		return rep, err
	}

	mask := ^uint64(0) >> (64 - 8*counters.Kind().Size())
	want := uint64(iterations) & mask
	for i := range before {
		res, err := e.Load(counters, uint64(i))
		if err != nil {
			return rep, err
		}
		if (res.Uint64()-before[i])&mask != want {
			log.Warnf("cell %d: increased by %d, want %d", i, (res.Uint64()-before[i])&mask, want)
			rep.Lost++
		}
	}

	last, err := e.Load(token, 0)
	if err != nil {
		return rep, err
	}
	// Every token written, plus the one found at the start, is read back exactly
	// once: by a later exchange or by the final load.
	balance := map[uint64]int{first.Uint64(): 1}
	for t := 1; t <= rep.Exchanges; t++ {
		balance[uint64(t)]++
	}
	balance[last.Uint64()]--
	items, err := drain(seen)
	if err != nil {
		return rep, err
	}
	for _, v := range items {
		balance[v.(uint64)]--
	}
	for tok, n := range balance {
		if n != 0 {
			log.Warnf("token %d: off by %d", tok, n)
			rep.Mismatched++
		}
	}
	return rep, nil
}

func drain(q *queue.Queue) ([]any, error) {
	n := q.Len()
	if n == 0 {
		return nil, nil
	}
	items, err := q.Get(n)
	if err != nil && !errors.Is(err, queue.ErrDisposed) {
		return nil, err
	}
	return items, nil
}
