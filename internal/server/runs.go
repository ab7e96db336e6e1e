package server

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/bookdepot/coverdl/internal/domain"
	"github.com/bookdepot/coverdl/internal/pipeline"
)

// ArchivePublisher pushes a finished archive to durable storage. The in-memory
// copy served by the archive endpoint is kept either way.
type ArchivePublisher interface {
	PublishArchive(ctx context.Context, runID string, archive []byte) (string, error)
}

// executeRun drives one download run to completion. Runs execute one at a
// time; the slot channel serializes them so a burst of uploads never fans out
// into concurrent crawls of the same image host.
func (s *Server) executeRun(run domain.Run) {
	s.runSlot <- struct{}{}
	defer func() { <-s.runSlot }()

	ctx := context.Background()
	ctx, span := s.tracer.Start(ctx, "server.run", trace.WithSpanKind(trace.SpanKindInternal))
	span.SetAttributes(attribute.String("run.id", run.ID))
	defer span.End()

	start := time.Now()
	s.setStatus(ctx, run.ID, domain.RunStatusRunning, "")

	s.mu.Lock()
	rows := s.rows[run.ID]
	delete(s.rows, run.ID)
	s.mu.Unlock()

	runner := pipeline.NewRunner(s.fetcher, s.normalizer, run.Request.PipelineOptions())
	runner.OnRow = func(row pipeline.RowResult) {
		s.metrics.rowsTotal.WithLabelValues(string(row.Outcome)).Inc()
	}

	result, err := runner.Run(ctx, rows)
	if err != nil {
		s.logger.Printf("run failed run_id=%s err=%v", run.ID, err)
		span.RecordError(err)
		s.setStatus(ctx, run.ID, domain.RunStatusFailed, err.Error())
		s.observeRun(domain.RunStatusFailed, start)
		return
	}

	report := domain.Report{
		Stats:       result.Stats,
		Errors:      result.Errors,
		Missing:     result.Missing,
		CompletedAt: time.Now().UTC(),
	}

	if result.Bundle.Len() > 0 {
		archive, err := result.Bundle.Finalize()
		if err != nil {
			s.logger.Printf("archive finalize failed run_id=%s err=%v", run.ID, err)
			span.RecordError(err)
			s.setStatus(ctx, run.ID, domain.RunStatusFailed, err.Error())
			s.observeRun(domain.RunStatusFailed, start)
			return
		}

		report.ArchiveEntries = result.Bundle.Names()
		report.ArchiveBytes = len(archive)

		s.mu.Lock()
		s.archives[run.ID] = archive
		s.mu.Unlock()
		s.metrics.archiveBytes.Add(float64(len(archive)))

		if s.publisher != nil {
			if key, err := s.publisher.PublishArchive(ctx, run.ID, archive); err != nil {
				s.logger.Printf("archive publish failed run_id=%s err=%v", run.ID, err)
				span.RecordError(err)
			} else {
				s.logger.Printf("archive published run_id=%s key=%s bytes=%d", run.ID, key, len(archive))
			}
		}
	}

	s.setReport(ctx, run.ID, report)
	s.setStatus(ctx, run.ID, domain.RunStatusSucceeded, "")
	s.observeRun(domain.RunStatusSucceeded, start)

	span.SetAttributes(
		attribute.Int("run.rows", len(rows)),
		attribute.Int("run.succeeded", result.Stats.Succeeded),
		attribute.Int("run.failed", result.Stats.Failed),
		attribute.Int("run.archive_bytes", report.ArchiveBytes),
	)
	s.logger.Printf("run finished run_id=%s rows=%d succeeded=%d failed=%d duration=%s",
		run.ID, len(rows), result.Stats.Succeeded, result.Stats.Failed, time.Since(start).Round(time.Millisecond))
}

func (s *Server) setStatus(ctx context.Context, runID, status, runErr string) {
	if _, err := s.runStore.UpdateStatus(ctx, runID, status, runErr); err != nil {
		s.logger.Printf("update run status failed run_id=%s status=%s err=%v", runID, status, err)
	}
	if s.history != nil {
		if _, err := s.history.UpdateStatus(ctx, runID, status, runErr); err != nil {
			s.logger.Printf("history status update failed run_id=%s err=%v", runID, err)
		}
	}
}

func (s *Server) setReport(ctx context.Context, runID string, report domain.Report) {
	if err := s.runStore.SetReport(ctx, runID, report); err != nil {
		s.logger.Printf("store run report failed run_id=%s err=%v", runID, err)
	}
	if s.history != nil {
		if err := s.history.SetReport(ctx, runID, report); err != nil {
			s.logger.Printf("history report update failed run_id=%s err=%v", runID, err)
		}
	}
}

func (s *Server) observeRun(status string, start time.Time) {
	s.metrics.runsTotal.WithLabelValues(status).Inc()
	s.metrics.runDuration.WithLabelValues(status).Observe(time.Since(start).Seconds())
}
