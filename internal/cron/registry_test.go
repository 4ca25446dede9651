package cron

import (
	"context"
	"testing"
	"time"
)

type stubJob struct {
	name string
}

func (s *stubJob) Name() string              { return s.name }
func (s *stubJob) Run(context.Context) error { return nil }

func TestRegistryStoresJobs(t *testing.T) {
	registry := NewRegistry()
	jobA := &stubJob{name: "a"}
	jobB := &stubJob{name: "b"}
	if err := registry.Register(jobA, time.Hour); err != nil {
		t.Fatalf("register a: %v", err)
	}
	if err := registry.Register(jobB, 0); err != nil {
		t.Fatalf("register b: %v", err)
	}
	entries := registry.Entries()
	if len(entries) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(entries))
	}
	if entries[0].Job != jobA || entries[1].Job != jobB {
		t.Fatalf("jobs returned out of order")
	}
	if entries[0].Every != time.Hour {
		t.Fatalf("expected hourly cadence, got %v", entries[0].Every)
	}
	entries[0].Job = nil
	if registry.Entries()[0].Job == nil {
		t.Fatalf("internal slice leaked")
	}
}

func TestRegistryRejectsDuplicatesAndNil(t *testing.T) {
	registry := NewRegistry()
	if err := registry.Register(nil, 0); err == nil {
		t.Fatal("expected nil job to be rejected")
	}
	if err := registry.Register(&stubJob{name: "a"}, 0); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := registry.Register(&stubJob{name: "a"}, time.Minute); err == nil {
		t.Fatal("expected duplicate name to be rejected")
	}
}
