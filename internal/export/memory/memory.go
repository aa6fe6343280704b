package memory

import (
	"context"
	"fmt"
	"sync"

	"tally/internal/core"
	ports "tally/internal/export"
)

// Writer keeps appended rows in memory. Used in tests and local runs
// without Sheets credentials.
type Writer struct {
	mu   sync.Mutex
	rows []core.Expense

	// FailWith, when set, makes every append fail with this error.
	FailWith error
}

var _ ports.BackupWriter = (*Writer)(nil)

func New() *Writer {
	return &Writer{}
}

func (w *Writer) AppendExpense(_ context.Context, e core.Expense) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.FailWith != nil {
		return "", w.FailWith
	}
	w.rows = append(w.rows, e)
	return fmt.Sprintf("mem:%d", len(w.rows)), nil
}

// Rows returns a copy of everything appended so far.
func (w *Writer) Rows() []core.Expense {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := make([]core.Expense, len(w.rows))
	copy(out, w.rows)
	return out
}
