package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"orcamento/internal/amqp"
	"orcamento/internal/core"
	"orcamento/internal/sheets"

	"golang.org/x/sync/errgroup"
)

// Store is what the worker needs from storage.
type Store interface {
	sheets.AllocationStore
	sheets.ExportQueue
}

// ExportWorker copies confirmed allocations from storage to the spreadsheet.
type ExportWorker struct {
	store       Store
	exporter    sheets.AllocationExporter
	batchSize   int
	concurrency int
}

func NewExportWorker(store Store, exporter sheets.AllocationExporter, batchSize int) *ExportWorker {
	if batchSize <= 0 {
		batchSize = 10
	}
	return &ExportWorker{
		store:       store,
		exporter:    exporter,
		batchSize:   batchSize,
		concurrency: 4,
	}
}

// HandleConfirmed processes one AllocationConfirmed message. Messages for a
// version older than the stored one are dropped; a version storage does not
// know yet returns an error so the message is redelivered.
func (w *ExportWorker) HandleConfirmed(ctx context.Context, msg *amqp.AllocationConfirmedMessage) error {
	slog.InfoContext(ctx, "Processing allocation confirmed message",
		"household_id", msg.HouseholdID,
		"version", msg.Version)

	rec, err := w.store.LoadAllocation(ctx, msg.HouseholdID)
	if errors.Is(err, core.ErrNotFound) {
		slog.WarnContext(ctx, "Allocation not found, dropping message", "household_id", msg.HouseholdID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("load allocation: %w", err)
	}

	switch {
	case rec.Version > msg.Version:
		slog.InfoContext(ctx, "Skipping superseded allocation message",
			"household_id", msg.HouseholdID,
			"version", msg.Version,
			"current_version", rec.Version)
		return nil
	case rec.Version < msg.Version:
		return fmt.Errorf("allocation %s at version %d, message announces %d", msg.HouseholdID, rec.Version, msg.Version)
	case rec.ExportStatus == core.ExportDone:
		slog.InfoContext(ctx, "Allocation already exported", "household_id", msg.HouseholdID, "version", rec.Version)
		return nil
	}

	return w.export(ctx, rec)
}

// ProcessPending exports one batch of allocations still pending, covering
// lost messages. Allocations marked as failed wait for the next confirmation.
func (w *ExportWorker) ProcessPending(ctx context.Context) error {
	_, _, err := w.exportPending(ctx, w.batchSize)
	return err
}

// StartupCheck drains a larger batch at worker start.
func (w *ExportWorker) StartupCheck(ctx context.Context) error {
	ok, failed, err := w.exportPending(ctx, w.batchSize*5)
	if err != nil {
		return fmt.Errorf("startup export check: %w", err)
	}
	if ok+failed == 0 {
		slog.InfoContext(ctx, "No pending allocations found on startup")
		return nil
	}
	slog.InfoContext(ctx, "Startup export completed",
		"total", ok+failed,
		"exported", ok,
		"errors", failed)
	return nil
}

// Run calls ProcessPending every interval until ctx is done.
func (w *ExportWorker) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := w.ProcessPending(ctx); err != nil {
				slog.ErrorContext(ctx, "Periodic export failed", "error", err)
			}
		}
	}
}

func (w *ExportWorker) exportPending(ctx context.Context, limit int) (int, int, error) {
	pending, err := w.store.PendingExports(ctx, limit)
	if err != nil {
		return 0, 0, fmt.Errorf("get pending exports: %w", err)
	}
	if len(pending) == 0 {
		return 0, 0, nil
	}
	slog.InfoContext(ctx, "Processing pending exports", "count", len(pending))

	var ok, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.concurrency)
	for _, p := range pending {
		g.Go(func() error {
			rec, err := w.store.LoadAllocation(gctx, p.HouseholdID)
			if err != nil {
				slog.ErrorContext(gctx, "Failed to load allocation", "household_id", p.HouseholdID, "error", err)
				failed.Add(1)
				return nil
			}
			if err := w.export(gctx, rec); err != nil {
				slog.ErrorContext(gctx, "Failed to export allocation", "household_id", p.HouseholdID, "error", err)
				failed.Add(1)
				return nil
			}
			ok.Add(1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return int(ok.Load()), int(failed.Load()), err
	}
	return int(ok.Load()), int(failed.Load()), nil
}

func (w *ExportWorker) export(ctx context.Context, rec core.ConfirmedAllocation) error {
	ref, err := w.exporter.ExportAllocation(ctx, rec)
	if err != nil {
		if markErr := w.store.MarkExportError(ctx, rec.HouseholdID, rec.Version, err.Error()); markErr != nil {
			slog.ErrorContext(ctx, "Failed to mark export error", "household_id", rec.HouseholdID, "error", markErr)
		}
		return fmt.Errorf("export allocation: %w", err)
	}

	if err := w.store.MarkExported(ctx, rec.HouseholdID, rec.Version); err != nil {
		// The sheet already holds the data; the next pass re-exports idempotently.
		slog.ErrorContext(ctx, "Failed to mark as exported", "household_id", rec.HouseholdID, "error", err)
	}

	slog.InfoContext(ctx, "Exported allocation",
		"household_id", rec.HouseholdID,
		"version", rec.Version,
		"sheets_ref", ref,
		"outcome", rec.Outcome)
	return nil
}
