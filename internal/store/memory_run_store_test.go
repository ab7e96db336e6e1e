package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bookdepot/coverdl/internal/domain"
	"github.com/bookdepot/coverdl/internal/pipeline"
)

func TestMemoryRunStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryRunStore()

	now := time.Now().UTC()
	run := domain.Run{
		ID:         "run-1",
		Status:     domain.RunStatusPending,
		SourceName: "covers.xlsx",
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.Create(ctx, run); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, ok, err := s.Get(ctx, "run-1")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if got.Status != domain.RunStatusPending {
		t.Fatalf("status = %q, want pending", got.Status)
	}

	updated, err := s.UpdateStatus(ctx, "run-1", domain.RunStatusSucceeded, "")
	if err != nil {
		t.Fatalf("update status: %v", err)
	}
	if updated.Status != domain.RunStatusSucceeded {
		t.Fatalf("status = %q, want succeeded", updated.Status)
	}

	report := domain.Report{
		Stats:        pipeline.Stats{Succeeded: 3, Failed: 1},
		ArchiveBytes: 1024,
		CompletedAt:  time.Now().UTC(),
	}
	if err := s.SetReport(ctx, "run-1", report); err != nil {
		t.Fatalf("set report: %v", err)
	}

	gotReport, ok, err := s.GetReport(ctx, "run-1")
	if err != nil || !ok {
		t.Fatalf("get report: ok=%v err=%v", ok, err)
	}
	if gotReport.Stats.Succeeded != 3 {
		t.Fatalf("report succeeded = %d, want 3", gotReport.Stats.Succeeded)
	}

	runs, err := s.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected 1 run, got %d", len(runs))
	}
}

func TestMemoryRunStoreUnknownRun(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryRunStore()

	if _, err := s.UpdateStatus(ctx, "missing", domain.RunStatusFailed, "boom"); !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("expected ErrRunNotFound, got %v", err)
	}
	if err := s.SetReport(ctx, "missing", domain.Report{}); !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("expected ErrRunNotFound, got %v", err)
	}
	if _, ok, err := s.Get(ctx, "missing"); ok || err != nil {
		t.Fatalf("expected absent run, ok=%v err=%v", ok, err)
	}
}
