package utils

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// WorkerPool manages a pool of goroutines with rate limiting.
type WorkerPool struct {
	semaphore chan struct{}
	limiter   *rate.Limiter
	wg        sync.WaitGroup
}

// NewWorkerPool creates a WorkerPool with the given concurrency and the
// minimum interval between job starts. rateLimitMs <= 0 disables pacing.
func NewWorkerPool(maxWorkers, rateLimitMs int) *WorkerPool {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	limit := rate.Inf
	if rateLimitMs > 0 {
		limit = rate.Every(time.Duration(rateLimitMs) * time.Millisecond)
	}
	return &WorkerPool{
		semaphore: make(chan struct{}, maxWorkers),
		limiter:   rate.NewLimiter(limit, 1),
	}
}

// Submit enqueues a job for execution in the pool, blocking while all
// workers are busy.
func (wp *WorkerPool) Submit(job func()) {
	_ = wp.SubmitContext(context.Background(), job)
}

// SubmitContext is Submit that gives up when ctx is done before a worker
// slot frees up. A job that has been started always runs to completion.
func (wp *WorkerPool) SubmitContext(ctx context.Context, job func()) error {
	select {
	case wp.semaphore <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}

	wp.wg.Add(1)
	go func() {
		defer wp.wg.Done()
		defer func() { <-wp.semaphore }()

		_ = wp.limiter.Wait(context.Background())
		job()
	}()
	return nil
}

// Wait blocks until all submitted jobs have completed.
func (wp *WorkerPool) Wait() {
	wp.wg.Wait()
}

// URLSet is a thread-safe set for tracking listing URLs already claimed
// within a batch.
type URLSet struct {
	mu   sync.RWMutex
	seen map[string]struct{}
}

// NewURLSet creates an empty URLSet.
func NewURLSet() *URLSet {
	return &URLSet{seen: make(map[string]struct{})}
}

// Add returns true if the URL was newly added, false if already present.
func (s *URLSet) Add(url string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.seen[url]; exists {
		return false
	}
	s.seen[url] = struct{}{}
	return true
}

// Contains returns true if the URL has already been seen.
func (s *URLSet) Contains(url string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, exists := s.seen[url]
	return exists
}

// Size returns the number of unique URLs tracked.
func (s *URLSet) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.seen)
}
