package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"tally/internal/amqp"
	"tally/internal/core"
	"tally/internal/export"
	"tally/internal/storage"
)

// ExportWorker mirrors ledger rows into the backup destination. The backup
// is an append-only journal: every add or update appends a row with the
// expense's state at export time, so an updated expense appears more than
// once and the last row per id is current. Events trigger per-row exports;
// the periodic sweep is the backup mechanism for lost messages.
type ExportWorker struct {
	storage   *storage.Repository
	writer    export.BackupWriter
	batchSize int
}

func NewExportWorker(storage *storage.Repository, writer export.BackupWriter, batchSize int) *ExportWorker {
	if batchSize <= 0 {
		batchSize = 10
	}
	return &ExportWorker{
		storage:   storage,
		writer:    writer,
		batchSize: batchSize,
	}
}

// HandleLedgerEvent processes a single ledger event message.
func (w *ExportWorker) HandleLedgerEvent(ctx context.Context, msg *amqp.LedgerEventMessage) error {
	slog.InfoContext(ctx, "Processing ledger event",
		"expense_id", msg.ExpenseID,
		"user_id", msg.UserID,
		"action", msg.Action)

	if msg.Action == amqp.ActionDeleted {
		// The journal is append-only and never rewrites rows, so a delete
		// leaves the already-exported history in place.
		return nil
	}

	expense, err := w.storage.GetExpense(ctx, msg.UserID, msg.ExpenseID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			// Deleted before the event was consumed.
			slog.WarnContext(ctx, "Expense gone before export", "expense_id", msg.ExpenseID)
			return nil
		}
		return fmt.Errorf("get expense for export: %w", err)
	}

	return w.exportExpense(ctx, *expense)
}

// ProcessPending exports a batch of rows still marked pending.
func (w *ExportWorker) ProcessPending(ctx context.Context) error {
	pending, err := w.storage.GetPendingExportExpenses(ctx, w.batchSize)
	if err != nil {
		return fmt.Errorf("get pending expenses: %w", err)
	}
	if len(pending) == 0 {
		return nil
	}

	slog.InfoContext(ctx, "Processing pending exports", "count", len(pending))
	for _, e := range pending {
		if err := w.exportExpense(ctx, e); err != nil {
			slog.ErrorContext(ctx, "Failed to export expense", "id", e.ID, "error", err)
		}
	}
	return nil
}

// StartupCheck drains a larger pending backlog once at worker start, to
// recover from downtime or missed messages.
func (w *ExportWorker) StartupCheck(ctx context.Context) error {
	pending, err := w.storage.GetPendingExportExpenses(ctx, w.batchSize*5)
	if err != nil {
		return fmt.Errorf("get pending expenses for startup check: %w", err)
	}
	if len(pending) == 0 {
		slog.InfoContext(ctx, "No pending exports found on startup")
		return nil
	}

	slog.InfoContext(ctx, "Found pending exports on startup", "count", len(pending))
	exported, failed := 0, 0
	for _, e := range pending {
		if err := w.exportExpense(ctx, e); err != nil {
			slog.ErrorContext(ctx, "Failed to export expense during startup", "id", e.ID, "error", err)
			failed++
			continue
		}
		exported++
	}

	slog.InfoContext(ctx, "Startup export completed",
		"total", len(pending),
		"exported", exported,
		"errors", failed)
	return nil
}

// RunSweep processes pending rows on the given interval until ctx ends.
func (w *ExportWorker) RunSweep(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := w.ProcessPending(ctx); err != nil {
				slog.ErrorContext(ctx, "Pending sweep failed", "error", err)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (w *ExportWorker) exportExpense(ctx context.Context, e core.Expense) error {
	ref, err := w.writer.AppendExpense(ctx, e)
	if err != nil {
		if markErr := w.storage.MarkExportError(ctx, e.ID); markErr != nil {
			slog.ErrorContext(ctx, "Failed to mark export error", "id", e.ID, "error", markErr)
		}
		return fmt.Errorf("append expense: %w", err)
	}

	if err := w.storage.MarkExported(ctx, e.ID); err != nil {
		// The row was written; only the bookkeeping failed.
		slog.ErrorContext(ctx, "Failed to mark as exported", "id", e.ID, "error", err)
	}

	slog.InfoContext(ctx, "Expense exported",
		"id", e.ID,
		"ref", ref,
		"amount_cents", e.Amount.Cents)
	return nil
}
