// Package services holds the ledger and analytics operations built on top of
// the storage layer. Every operation is scoped by the owning user's identity;
// no call path exists that reads or mutates another user's rows.
package services

import (
	"context"
	"fmt"
	"log/slog"

	"tally/internal/amqp"
	"tally/internal/core"
	"tally/internal/storage"
)

// EventPublisher pushes mutation events for downstream consumers. Publishing
// is best-effort: a broker failure never fails the ledger operation.
type EventPublisher interface {
	PublishLedgerEvent(ctx context.Context, expenseID, userID int64, action string) error
}

// LedgerService orchestrates expense mutations and reads against SQLite and
// publishes a ledger event after each successful mutation.
type LedgerService struct {
	storage   *storage.Repository
	publisher EventPublisher
}

func NewLedgerService(storage *storage.Repository, publisher EventPublisher) *LedgerService {
	return &LedgerService{
		storage:   storage,
		publisher: publisher,
	}
}

// AddExpense validates and persists a new expense, returning the stored
// record. A zero date defaults to today's calendar date (UTC).
func (s *LedgerService) AddExpense(ctx context.Context, userID int64, amount core.Money, category, note string, date core.Date) (*core.Expense, error) {
	if date.IsZero() {
		date = core.Today()
	}

	expense := core.Expense{
		UserID:   userID,
		Amount:   amount,
		Category: category,
		Note:     note,
		Date:     date,
	}
	if err := expense.Validate(); err != nil {
		return nil, err
	}

	id, err := s.storage.InsertExpense(ctx, expense)
	if err != nil {
		return nil, fmt.Errorf("save expense: %w", err)
	}
	expense.ID = id

	s.publishEvent(ctx, id, userID, amqp.ActionCreated)

	return &expense, nil
}

// ListResult is the outcome of a ListExpenses call, with the summary figures
// the conversational agent renders alongside the records.
type ListResult struct {
	Expenses   []core.Expense
	Total      core.Money
	ByCategory map[string]core.Money
}

// ListExpenses returns the user's expenses within the optional inclusive date
// bounds, ordered by date. An empty result is a success, not an error.
func (s *LedgerService) ListExpenses(ctx context.Context, userID int64, start, end core.Date) (*ListResult, error) {
	expenses, err := s.storage.ListExpenses(ctx, userID, start, end)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}

	result := &ListResult{
		Expenses:   expenses,
		ByCategory: make(map[string]core.Money, len(expenses)),
	}
	for _, e := range expenses {
		result.Total.Cents += e.Amount.Cents
		bucket := result.ByCategory[e.Category]
		bucket.Cents += e.Amount.Cents
		result.ByCategory[e.Category] = bucket
	}

	return result, nil
}

// UpdateExpense applies a partial update under the owner's scope. An expense
// owned by another user is indistinguishable from a missing one.
func (s *LedgerService) UpdateExpense(ctx context.Context, userID, expenseID int64, patch core.ExpensePatch) error {
	if err := patch.Validate(); err != nil {
		return err
	}

	if err := s.storage.UpdateExpense(ctx, userID, expenseID, patch); err != nil {
		return err
	}

	s.publishEvent(ctx, expenseID, userID, amqp.ActionUpdated)
	return nil
}

// DeleteExpense removes the expense under the owner's scope and returns the
// deleted record so the caller can echo amount and category back to the user.
func (s *LedgerService) DeleteExpense(ctx context.Context, userID, expenseID int64) (*core.Expense, error) {
	deleted, err := s.storage.DeleteExpense(ctx, userID, expenseID)
	if err != nil {
		return nil, err
	}

	s.publishEvent(ctx, expenseID, userID, amqp.ActionDeleted)
	return deleted, nil
}

func (s *LedgerService) publishEvent(ctx context.Context, expenseID, userID int64, action string) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishLedgerEvent(ctx, expenseID, userID, action); err != nil {
		// The mutation already committed; the periodic export sweep will
		// pick the row up even without the event.
		slog.ErrorContext(ctx, "Failed to publish ledger event",
			"expense_id", expenseID,
			"user_id", userID,
			"action", action,
			"error", err)
	}
}
