// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/pdiddy/research-engine/internal/sources"
)

func TestFanOutRunsAllCallsConcurrently(t *testing.T) {
	calls := []fanOutCall[int]{
		{name: "a", run: func(ctx context.Context) sources.Result[int] {
			time.Sleep(10 * time.Millisecond)
			return sources.Success(1)
		}},
		{name: "b", run: func(ctx context.Context) sources.Result[int] {
			time.Sleep(10 * time.Millisecond)
			return sources.Success(2)
		}},
	}

	start := time.Now()
	results := fanOut(context.Background(), 0, calls)
	elapsed := time.Since(start)

	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if elapsed > 30*time.Millisecond {
		t.Fatalf("calls did not run concurrently, took %s", elapsed)
	}
}

func TestFanOutCollectsErrorsWithoutAborting(t *testing.T) {
	calls := []fanOutCall[string]{
		{name: "ok", run: func(ctx context.Context) sources.Result[string] {
			return sources.Success("fine")
		}},
		{name: "broken", run: func(ctx context.Context) sources.Result[string] {
			return sources.Fail[string](fmt.Errorf("boom"))
		}},
	}

	results := fanOut(context.Background(), 0, calls)
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}

	byName := make(map[string]fanOutResult[string])
	for _, r := range results {
		byName[r.Name] = r
	}
	if !byName["ok"].Result.Ok() {
		t.Fatalf("expected ok call to succeed")
	}
	if byName["broken"].Result.Ok() {
		t.Fatalf("expected broken call to fail")
	}
}

func TestFanOutRespectsPerCallDeadline(t *testing.T) {
	calls := []fanOutCall[int]{
		{name: "slow", run: func(ctx context.Context) sources.Result[int] {
			select {
			case <-time.After(200 * time.Millisecond):
				return sources.Success(1)
			case <-ctx.Done():
				return sources.Fail[int](ctx.Err())
			}
		}},
	}

	results := fanOut(context.Background(), 20*time.Millisecond, calls)
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].Result.Ok() {
		t.Fatalf("expected call to be cancelled by its deadline")
	}
}
