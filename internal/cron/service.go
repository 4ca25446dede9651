package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/partyshop-backend/pkg/logger"
	"github.com/angelmondragon/partyshop-backend/pkg/metrics"
)

const defaultInterval = 15 * time.Minute

type ServiceParams struct {
	Logger   *logger.Logger
	Registry *Registry
	Lock     Lock
	Metrics  *metrics.CronJobMetrics
	Interval time.Duration
	// JobTimeout bounds a single job. Zero uses Interval so one job cannot
	// outlive the lock that guards its cycle.
	JobTimeout time.Duration
}

// Service wakes every Interval, takes the lock and runs each job whose
// cadence has elapsed. A failing or panicking job never stops the loop.
type Service struct {
	logg       *logger.Logger
	registry   *Registry
	lock       Lock
	metrics    *metrics.CronJobMetrics
	interval   time.Duration
	jobTimeout time.Duration
	lastRun    map[string]time.Time
	now        func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Logger == nil:
		return nil, errors.New("logger required")
	case params.Lock == nil:
		return nil, errors.New("lock required")
	}
	s := &Service{
		logg:       params.Logger,
		registry:   params.Registry,
		lock:       params.Lock,
		metrics:    params.Metrics,
		interval:   params.Interval,
		jobTimeout: params.JobTimeout,
		lastRun:    map[string]time.Time{},
		now:        time.Now,
	}
	if s.registry == nil {
		s.registry = NewRegistry()
	}
	if s.interval <= 0 {
		s.interval = defaultInterval
	}
	if s.jobTimeout <= 0 {
		s.jobTimeout = s.interval
	}
	return s, nil
}

// Run executes a cycle right away and then once per interval until ctx ends.
func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		if err := s.runCycle(ctx); err != nil {
			s.logg.Error(ctx, "cron cycle failed", err)
		}
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "cron service stopping")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *Service) runCycle(ctx context.Context) error {
	now := s.now()
	due := s.dueEntries(now)
	if len(due) == 0 {
		return nil
	}

	held, err := s.lock.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire cron lock: %w", err)
	}
	if !held {
		s.logg.Info(ctx, "cron lock held elsewhere, skipping cycle")
		return nil
	}
	defer func() {
		if err := s.lock.Release(ctx); err != nil {
			s.logg.Error(ctx, "release cron lock", err)
		}
	}()

	cycleCtx := s.logg.WithField(ctx, "jobs_due", len(due))
	s.logg.Info(cycleCtx, "cron cycle starting")
	failed := 0
	for _, entry := range due {
		if s.runJob(ctx, entry.Job) != nil {
			failed++
		}
		// A failed job still waits for its next slot.
		s.lastRun[entry.Job.Name()] = now
	}
	s.logg.Info(s.logg.WithField(cycleCtx, "jobs_failed", failed), "cron cycle complete")
	return nil
}

// dueEntries returns jobs that never ran, run every tick, or whose cadence
// has elapsed since their last start.
func (s *Service) dueEntries(now time.Time) []Entry {
	var due []Entry
	for _, entry := range s.registry.Entries() {
		last, ran := s.lastRun[entry.Job.Name()]
		if !ran || entry.Every == 0 || now.Sub(last) >= entry.Every {
			due = append(due, entry)
		}
	}
	return due
}

func (s *Service) runJob(ctx context.Context, job Job) error {
	jobCtx, cancel := context.WithTimeout(s.logg.WithFields(ctx, map[string]any{
		"job":   job.Name(),
		"event": "cron.job",
	}), s.jobTimeout)
	defer cancel()

	started := time.Now()
	err := guarded(jobCtx, job)
	elapsed := time.Since(started)
	s.metrics.Observe(job.Name(), elapsed, err)

	jobCtx = s.logg.WithField(jobCtx, "duration_ms", elapsed.Milliseconds())
	if err != nil {
		s.logg.Error(jobCtx, "cron job failed", err)
		return err
	}
	s.logg.Info(jobCtx, "cron job completed")
	return nil
}

// guarded turns a panic inside job into an error.
func guarded(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", job.Name(), r)
		}
	}()
	return job.Run(ctx)
}
