// Package scheduler runs the core's periodic background jobs: the promotion
// sweep that evaluates recently active players against the rank catalog.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/emberhollow/emberhollow-core/pkg/logger"
)

// Job is one periodic task.
type Job interface {
	// Name returns the unique job name.
	Name() string

	// Run executes the job. The context is cancelled on shutdown.
	Run(ctx context.Context) error
}

// scheduledJob wraps a Job with its cadence and counters.
type scheduledJob struct {
	job       Job
	interval  time.Duration
	runCount  int64
	failCount int64
}

// Scheduler executes registered jobs on fixed intervals, one goroutine per
// job. Failures are logged and the cadence continues; a failing job never
// stops the scheduler.
type Scheduler struct {
	mu      sync.Mutex
	jobs    []*scheduledJob
	log     *slog.Logger
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewScheduler creates an empty scheduler.
func NewScheduler(log *slog.Logger) *Scheduler {
	return &Scheduler{log: log}
}

// Register adds a job. Must be called before Start.
func (s *Scheduler) Register(job Job, interval time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append(s.jobs, &scheduledJob{job: job, interval: interval})
}

// Start launches all registered jobs.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true

	ctx, s.cancel = context.WithCancel(ctx)
	for _, sj := range s.jobs {
		s.wg.Add(1)
		go s.runLoop(ctx, sj)
	}
	s.log.Info("scheduler started", slog.Int("jobs", len(s.jobs)))
}

// Stop cancels all jobs and waits for them to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	s.wg.Wait()
	s.log.Info("scheduler stopped")
}

func (s *Scheduler) runLoop(ctx context.Context, sj *scheduledJob) {
	defer s.wg.Done()

	ticker := time.NewTicker(sj.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		started := time.Now()
		err := sj.job.Run(ctx)
		sj.runCount++

		if err != nil {
			sj.failCount++
			s.log.Warn("job failed",
				slog.String("job", sj.job.Name()),
				logger.Latency(time.Since(started)),
				logger.Err(err))
			continue
		}
		s.log.Debug("job completed",
			slog.String("job", sj.job.Name()),
			logger.Latency(time.Since(started)))
	}
}
