package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"dealscout/metrics"
	"dealscout/utils"
)

// Job names.
const (
	JobEnrich      = "enrich"
	JobNeedsReview = "needs_review"
)

var (
	// ErrJobRunning is returned when a job is triggered while it is running.
	ErrJobRunning = errors.New("job already running")
	// ErrUnknownJob is returned for a job name that was never added.
	ErrUnknownJob = errors.New("unknown job")
	// ErrInvalidInterval rejects a job with a non-positive interval.
	ErrInvalidInterval = errors.New("job interval must be positive")
)

type job struct {
	name     string
	interval time.Duration
	run      func(ctx context.Context) error
	running  sync.Mutex
}

// Scheduler runs jobs on fixed intervals. A job never overlaps with itself;
// different jobs may run at the same time.
type Scheduler struct {
	mu     sync.RWMutex
	jobs   map[string]*job
	wg     sync.WaitGroup
	logger *utils.Logger
}

// NewScheduler creates an empty Scheduler.
func NewScheduler(logger *utils.Logger) *Scheduler {
	return &Scheduler{
		jobs:   make(map[string]*job),
		logger: logger.WithComponent("scheduler"),
	}
}

// Add registers a job. It must be called before Start.
func (s *Scheduler) Add(name string, interval time.Duration, run func(ctx context.Context) error) error {
	if interval <= 0 {
		return fmt.Errorf("%w: %s every %v", ErrInvalidInterval, name, interval)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[name] = &job{name: name, interval: interval, run: run}
	return nil
}

// Jobs returns the registered job names in sorted order.
func (s *Scheduler) Jobs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.jobs))
	for n := range s.jobs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Start launches one ticker loop per job. Loops exit when ctx is done; Wait
// blocks until they and any in-flight run have returned.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, j := range s.jobs {
		s.wg.Add(1)
		go s.loop(ctx, j)
		s.logger.Info("[scheduler] %s every %v", j.name, j.interval)
	}
}

func (s *Scheduler) loop(ctx context.Context, j *job) {
	defer s.wg.Done()

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.execute(ctx, j); errors.Is(err, ErrJobRunning) {
				s.logger.Warn("[scheduler] %s still running, skipping this interval", j.name)
			}
		}
	}
}

// Trigger runs the named job now, outside the timer. It returns
// ErrJobRunning when the job is already in progress.
func (s *Scheduler) Trigger(ctx context.Context, name string) error {
	s.mu.RLock()
	j, ok := s.jobs[name]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	return s.execute(ctx, j)
}

// Wait blocks until every job loop has stopped.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) execute(ctx context.Context, j *job) (err error) {
	if !j.running.TryLock() {
		return ErrJobRunning
	}
	defer j.running.Unlock()

	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%s panicked: %v", j.name, p)
		}
		metrics.RecordJob(j.name, time.Since(start), err)
		if err != nil {
			s.logger.WithError(err).Error("[scheduler] %s failed after %v", j.name, time.Since(start).Round(time.Millisecond))
			return
		}
		s.logger.Debug("[scheduler] %s finished in %v", j.name, time.Since(start).Round(time.Millisecond))
	}()

	return j.run(ctx)
}
