package cron

import (
	"context"
	"fmt"
	"time"
)

// Job represents a scheduled task that runs inside the cron worker.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Entry pairs a job with its cadence. A zero Every runs the job on every
// service tick.
type Entry struct {
	Job   Job
	Every time.Duration
}

// Registry tracks registered cron jobs.
type Registry struct {
	entries []Entry
	names   map[string]struct{}
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{names: map[string]struct{}{}}
}

// Register adds a job to the registry. Job names must be unique because they
// key metrics and schedule state.
func (r *Registry) Register(job Job, every time.Duration) error {
	if job == nil {
		return fmt.Errorf("job required")
	}
	if _, dup := r.names[job.Name()]; dup {
		return fmt.Errorf("job %q already registered", job.Name())
	}
	if every < 0 {
		every = 0
	}
	r.names[job.Name()] = struct{}{}
	r.entries = append(r.entries, Entry{Job: job, Every: every})
	return nil
}

// Entries returns the registered jobs in the order they were added.
func (r *Registry) Entries() []Entry {
	entries := make([]Entry, len(r.entries))
	copy(entries, r.entries)
	return entries
}
