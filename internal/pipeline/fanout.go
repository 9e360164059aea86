// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package pipeline implements the four acquisition stages (citation
// discovery, URL collection, PDF acquisition, content extraction) and
// the coordinator that drives them.
package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/pdiddy/research-engine/internal/sources"
)

// fanOutCall is one named unit of work submitted to fanOut.
type fanOutCall[T any] struct {
	name string
	run  func(ctx context.Context) sources.Result[T]
}

// fanOutResult pairs a call's name with its outcome and wall-clock
// duration, everything P1's and P2's per-source metrics need.
type fanOutResult[T any] struct {
	Name    string
	Result  sources.Result[T]
	Elapsed time.Duration
}

// fanOut runs every call concurrently, each under its own deadline, and
// returns once all have finished or been cancelled. Uses a
// goroutine-per-backend shape (channel + WaitGroup + closer goroutine)
// with a per-call context.WithTimeout so one slow source never blocks
// the others.
func fanOut[T any](ctx context.Context, deadline time.Duration, calls []fanOutCall[T]) []fanOutResult[T] {
	out := make(chan fanOutResult[T], len(calls))
	var wg sync.WaitGroup

	for _, c := range calls {
		wg.Add(1)
		go func(c fanOutCall[T]) {
			defer wg.Done()
			cctx := ctx
			if deadline > 0 {
				var cancel context.CancelFunc
				cctx, cancel = context.WithTimeout(ctx, deadline)
				defer cancel()
			}
			start := time.Now()
			out <- fanOutResult[T]{Name: c.name, Result: c.run(cctx), Elapsed: time.Since(start)}
		}(c)
	}

	go func() {
		wg.Wait()
		close(out)
	}()

	results := make([]fanOutResult[T], 0, len(calls))
	for r := range out {
		results = append(results, r)
	}
	return results
}
