package core

import (
	"errors"
	"strings"
	"time"
)

var (
	ErrInvalidAmount      = errors.New("amount must be positive")
	ErrInvalidDate        = errors.New("invalid date")
	ErrEmptyCategory      = errors.New("empty category")
	ErrNotFound           = errors.New("expense not found")
	ErrNoFields           = errors.New("no fields provided")
	ErrDuplicateEmail     = errors.New("email already registered")
	ErrUserNotFound       = errors.New("no account with this email")
	ErrInvalidCredentials = errors.New("incorrect password")
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// User is an account in the credential store. The password hash never leaves
// the auth package.
type User struct {
	ID           int64
	Name         string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// Expense is a single ledger record. Category is free text; the set of
// category labels is a convention imposed by the calling agent, not a closed
// enum enforced here.
type Expense struct {
	ID        int64
	UserID    int64
	Amount    Money
	Category  string
	Note      string
	Date      Date
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (e Expense) Validate() error {
	if err := e.Amount.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(e.Category) == "" {
		return ErrEmptyCategory
	}
	if e.Date.IsZero() {
		return ErrInvalidDate
	}
	return nil
}

// Optional wraps a value with an explicit set/unset flag, so a partial update
// can distinguish "leave untouched" from "set to the zero value" (an empty
// note is a legitimate update).
type Optional[T any] struct {
	Value T
	Set   bool
}

// Some returns a set Optional carrying v.
func Some[T any](v T) Optional[T] {
	return Optional[T]{Value: v, Set: true}
}

// ExpensePatch describes a partial update of an expense. Only set fields are
// applied; the updated_at timestamp is refreshed regardless of which fields
// change.
type ExpensePatch struct {
	Amount   Optional[Money]
	Category Optional[string]
	Note     Optional[string]
	Date     Optional[Date]
}

// Empty reports whether the patch carries no fields at all.
func (p ExpensePatch) Empty() bool {
	return !p.Amount.Set && !p.Category.Set && !p.Note.Set && !p.Date.Set
}

func (p ExpensePatch) Validate() error {
	if p.Empty() {
		return ErrNoFields
	}
	if p.Amount.Set {
		if err := p.Amount.Value.Validate(); err != nil {
			return err
		}
	}
	if p.Category.Set && strings.TrimSpace(p.Category.Value) == "" {
		return ErrEmptyCategory
	}
	if p.Date.Set && p.Date.Value.IsZero() {
		return ErrInvalidDate
	}
	return nil
}

// GroupBy selects the bucketing dimension for analytics.
type GroupBy string

const (
	GroupByCategory GroupBy = "category"
	GroupByDate     GroupBy = "date"
	GroupByMonth    GroupBy = "month"
)

// ParseGroupBy maps a request parameter to a GroupBy, defaulting to category
// when empty.
func ParseGroupBy(s string) (GroupBy, error) {
	switch GroupBy(strings.ToLower(strings.TrimSpace(s))) {
	case "":
		return GroupByCategory, nil
	case GroupByCategory:
		return GroupByCategory, nil
	case GroupByDate:
		return GroupByDate, nil
	case GroupByMonth:
		return GroupByMonth, nil
	default:
		return "", errors.New("group_by must be one of: category, date, month")
	}
}

// Key returns the grouping key of e under g.
func (g GroupBy) Key(e Expense) string {
	switch g {
	case GroupByDate:
		return e.Date.String()
	case GroupByMonth:
		return e.Date.MonthKey()
	default:
		return e.Category
	}
}
