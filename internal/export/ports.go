package export

import (
	"context"

	"tally/internal/core"
)

// BackupWriter mirrors ledger rows into an external backup destination.
// Append returns a destination-specific reference for the written row.
type BackupWriter interface {
	AppendExpense(ctx context.Context, e core.Expense) (string, error)
}
