package core

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestImportLimiter_AcquireRelease(t *testing.T) {
	limiter := NewImportLimiter(2, time.Second)
	ctx := context.Background()

	if got := limiter.Status(); got.Active != 0 || got.Available != 2 || got.MaxConcurrent != 2 {
		t.Fatalf("initial Status = %+v", got)
	}

	if err := limiter.Acquire(ctx); err != nil {
		t.Fatalf("first Acquire failed: %v", err)
	}
	if err := limiter.Acquire(ctx); err != nil {
		t.Fatalf("second Acquire failed: %v", err)
	}
	if got := limiter.Status(); got.Active != 2 || got.Available != 0 {
		t.Errorf("after two Acquires, Status = %+v", got)
	}

	limiter.Release()
	if got := limiter.ActiveCount(); got != 1 {
		t.Errorf("after Release, ActiveCount = %d, want 1", got)
	}

	limiter.Release()
	if got := limiter.ActiveCount(); got != 0 {
		t.Errorf("after second Release, ActiveCount = %d, want 0", got)
	}
}

func TestImportLimiter_BlocksWhenFull(t *testing.T) {
	limiter := NewImportLimiter(1, 50*time.Millisecond)
	ctx := context.Background()

	if err := limiter.Acquire(ctx); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	defer limiter.Release()

	start := time.Now()
	err := limiter.Acquire(ctx)
	if !errors.Is(err, ErrTooManyImports) {
		t.Errorf("expected ErrTooManyImports, got %v", err)
	}
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Errorf("Acquire returned after %v, expected to wait", elapsed)
	}
}

func TestImportLimiter_ContextCancelled(t *testing.T) {
	limiter := NewImportLimiter(1, time.Minute)
	if err := limiter.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	defer limiter.Release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := limiter.Acquire(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestImportLimiter_Defaults(t *testing.T) {
	limiter := NewImportLimiter(0, 0)
	if got := limiter.Status().MaxConcurrent; got != DefaultMaxConcurrentImports {
		t.Errorf("MaxConcurrent = %d, want %d", got, DefaultMaxConcurrentImports)
	}
}

func TestImportLimiter_ConcurrentNeverExceedsMax(t *testing.T) {
	const maxConcurrent = 3
	limiter := NewImportLimiter(maxConcurrent, time.Second)

	var current, peak int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := limiter.Acquire(context.Background()); err != nil {
				t.Errorf("Acquire failed: %v", err)
				return
			}
			n := atomic.AddInt32(&current, 1)
			for {
				p := atomic.LoadInt32(&peak)
				if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt32(&current, -1)
			limiter.Release()
		}()
	}
	wg.Wait()

	if peak > maxConcurrent {
		t.Errorf("peak concurrency = %d, want <= %d", peak, maxConcurrent)
	}
}

func TestImportLimiter_WaitForDrain(t *testing.T) {
	limiter := NewImportLimiter(1, time.Second)
	if err := limiter.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	go func() {
		time.Sleep(20 * time.Millisecond)
		limiter.Release()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := limiter.WaitForDrain(ctx); err != nil {
		t.Errorf("WaitForDrain() error = %v", err)
	}
}

func TestImportLimiter_WaitForDrainTimeout(t *testing.T) {
	limiter := NewImportLimiter(1, time.Second)
	if err := limiter.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	defer limiter.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if err := limiter.WaitForDrain(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("WaitForDrain() error = %v, want deadline exceeded", err)
	}
}
