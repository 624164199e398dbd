package core

// import_limiter.go bounds how many imports reconcile at once.
//
// Each import holds one database transaction for its whole reconciliation,
// so the slot count should stay below the connection pool size. When all
// slots are taken, new imports wait up to maxWait and then fail with
// ErrTooManyImports. WaitForDrain lets shutdown wait for running imports.

import (
	"context"
	"sync"
	"time"
)

// DefaultMaxConcurrentImports is the default limit for parallel imports.
const DefaultMaxConcurrentImports = 2

// DefaultMaxWaitTime is how long to wait for a slot before rejecting.
const DefaultMaxWaitTime = 30 * time.Second

// ImportLimiter is a counting semaphore over import slots.
type ImportLimiter struct {
	semaphore chan struct{}
	maxWait   time.Duration

	mu     sync.RWMutex
	active int
}

// NewImportLimiter allows at most maxConcurrent simultaneous imports.
func NewImportLimiter(maxConcurrent int, maxWait time.Duration) *ImportLimiter {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentImports
	}
	if maxWait <= 0 {
		maxWait = DefaultMaxWaitTime
	}

	return &ImportLimiter{
		semaphore: make(chan struct{}, maxConcurrent),
		maxWait:   maxWait,
	}
}

// Acquire takes a slot or returns ErrTooManyImports once maxWait expires.
// The caller MUST call Release when the import completes.
func (l *ImportLimiter) Acquire(ctx context.Context) error {
	timer := time.NewTimer(l.maxWait)
	defer timer.Stop()

	select {
	case l.semaphore <- struct{}{}:
		l.mu.Lock()
		l.active++
		l.mu.Unlock()
		return nil
	case <-timer.C:
		return ErrTooManyImports
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release returns a slot. Call exactly once per successful Acquire.
func (l *ImportLimiter) Release() {
	l.mu.Lock()
	l.active--
	l.mu.Unlock()

	<-l.semaphore
}

// ActiveCount returns the number of running imports.
func (l *ImportLimiter) ActiveCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.active
}

// WaitForDrain blocks until no import is running or ctx is done.
func (l *ImportLimiter) WaitForDrain(ctx context.Context) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		if l.ActiveCount() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// ImportLimiterStatus is a snapshot of the limiter.
type ImportLimiterStatus struct {
	Active        int `json:"active"`
	Available     int `json:"available"`
	MaxConcurrent int `json:"max_concurrent"`
}

// Status returns the current limiter state for monitoring.
func (l *ImportLimiter) Status() ImportLimiterStatus {
	l.mu.RLock()
	active := l.active
	l.mu.RUnlock()

	return ImportLimiterStatus{
		Active:        active,
		Available:     cap(l.semaphore) - len(l.semaphore),
		MaxConcurrent: cap(l.semaphore),
	}
}
