// Package storage owns the SQLite persistence layer: schema bootstrap, the
// users and expenses tables, and the owner-scoped queries every other
// component goes through.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"tally/internal/core"

	_ "modernc.org/sqlite"
)

const timeLayout = time.RFC3339

// Repository wraps the shared *sql.DB handle. It is opened once at process
// start and passed into each component at construction.
type Repository struct {
	db *sql.DB
}

// NewRepository opens the database, applies pragmas, and runs migrations
// before anything else touches the schema.
func NewRepository(dbPath string) (*Repository, error) {
	if dir := filepath.Dir(dbPath); dbPath != ":memory:" && dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	// A single connection keeps every check-then-mutate pair serialized and
	// makes :memory: databases behave (each new connection would otherwise
	// get its own empty database).
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Repository{db: db}, nil
}

func dsn(path string) string {
	pragmas := "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	if path == ":memory:" {
		return "file::memory:" + pragmas
	}
	return "file:" + path + pragmas
}

// Ping reports whether the database handle is still usable. Readiness
// probes call this.
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *Repository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// CreateUser inserts a new account. A violation of the unique email index is
// the only duplicate detection; there is no racy pre-check.
func (r *Repository) CreateUser(ctx context.Context, name, email, passwordHash string) (int64, error) {
	now := time.Now().UTC().Format(timeLayout)
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO users (name, email, password_hash, created_at) VALUES (?, ?, ?, ?)`,
		name, email, passwordHash, now,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: users.email") {
			return 0, core.ErrDuplicateEmail
		}
		return 0, fmt.Errorf("insert user: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}

	slog.InfoContext(ctx, "User created", "id", id, "email", email)
	return id, nil
}

// GetUserByEmail returns core.ErrUserNotFound when no account has this email.
func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*core.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, name, email, password_hash, created_at FROM users WHERE email = ?`,
		email,
	)
	return scanUser(row)
}

func (r *Repository) GetUserByID(ctx context.Context, id int64) (*core.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, name, email, password_hash, created_at FROM users WHERE id = ?`,
		id,
	)
	return scanUser(row)
}

// DeleteUser removes an account; owned expenses go with it via the cascading
// foreign key.
func (r *Repository) DeleteUser(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return core.ErrUserNotFound
	}
	return nil
}

func scanUser(row *sql.Row) (*core.User, error) {
	var u core.User
	var createdAt string
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, core.ErrUserNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	u.CreatedAt, _ = time.Parse(timeLayout, createdAt)
	return &u, nil
}

// InsertExpense appends a row to the ledger and returns its assigned id.
func (r *Repository) InsertExpense(ctx context.Context, e core.Expense) (int64, error) {
	now := time.Now().UTC().Format(timeLayout)
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO expenses (user_id, amount_cents, category, note, date, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.UserID, e.Amount.Cents, e.Category, e.Note, e.Date.String(), now, now,
	)
	if err != nil {
		return 0, fmt.Errorf("insert expense: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}

	slog.InfoContext(ctx, "Expense saved",
		"id", id,
		"user_id", e.UserID,
		"amount_cents", e.Amount.Cents,
		"category", e.Category,
		"date", e.Date.String())

	return id, nil
}

// GetExpense reads one expense under the given owner. An expense owned by a
// different user is indistinguishable from a missing one.
func (r *Repository) GetExpense(ctx context.Context, userID, id int64) (*core.Expense, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, amount_cents, category, note, date, created_at, updated_at
		 FROM expenses WHERE id = ? AND user_id = ?`,
		id, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("get expense: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("get expense: %w", err)
		}
		return nil, core.ErrNotFound
	}
	e, err := scanExpense(rows)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// ListExpenses returns the owner's expenses within the optional inclusive
// date bounds (zero Date means unbounded on that side), ordered by date then
// id for a deterministic tie-break.
func (r *Repository) ListExpenses(ctx context.Context, userID int64, start, end core.Date) ([]core.Expense, error) {
	query := `SELECT id, user_id, amount_cents, category, note, date, created_at, updated_at
		 FROM expenses WHERE user_id = ?`
	args := []any{userID}

	// ISO dates compare correctly as text.
	if !start.IsZero() {
		query += ` AND date >= ?`
		args = append(args, start.String())
	}
	if !end.IsZero() {
		query += ` AND date <= ?`
		args = append(args, end.String())
	}
	query += ` ORDER BY date ASC, id ASC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	defer rows.Close()

	var expenses []core.Expense
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, err
		}
		expenses = append(expenses, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}

	return expenses, nil
}

// UpdateExpense applies a partial update as a single conditional statement:
// the ownership predicate is folded into the UPDATE itself, so the existence
// check cannot race with a concurrent delete. Zero rows affected means the
// expense does not exist under this owner.
func (r *Repository) UpdateExpense(ctx context.Context, userID, id int64, patch core.ExpensePatch) error {
	if patch.Empty() {
		return core.ErrNoFields
	}

	var sets []string
	var args []any
	if patch.Amount.Set {
		sets = append(sets, "amount_cents = ?")
		args = append(args, patch.Amount.Value.Cents)
	}
	if patch.Category.Set {
		sets = append(sets, "category = ?")
		args = append(args, patch.Category.Value)
	}
	if patch.Note.Set {
		sets = append(sets, "note = ?")
		args = append(args, patch.Note.Value)
	}
	if patch.Date.Set {
		sets = append(sets, "date = ?")
		args = append(args, patch.Date.Value.String())
	}
	// updated_at refreshes no matter which fields changed, and the row goes
	// back on the export queue.
	sets = append(sets, "updated_at = ?", "export_status = 'pending'")
	args = append(args, time.Now().UTC().Format(timeLayout), id, userID)

	res, err := r.db.ExecContext(ctx,
		`UPDATE expenses SET `+strings.Join(sets, ", ")+` WHERE id = ? AND user_id = ?`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("update expense: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return core.ErrNotFound
	}

	slog.InfoContext(ctx, "Expense updated", "id", id, "user_id", userID)
	return nil
}

// DeleteExpense removes the row and returns it, using a single conditional
// DELETE ... RETURNING so the ownership check and the mutation cannot race.
func (r *Repository) DeleteExpense(ctx context.Context, userID, id int64) (*core.Expense, error) {
	row := r.db.QueryRowContext(ctx,
		`DELETE FROM expenses WHERE id = ? AND user_id = ?
		 RETURNING id, user_id, amount_cents, category, note, date, created_at, updated_at`,
		id, userID,
	)

	var e core.Expense
	var note sql.NullString
	var dateStr, createdAt, updatedAt string
	err := row.Scan(&e.ID, &e.UserID, &e.Amount.Cents, &e.Category, &note, &dateStr, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, core.ErrNotFound
		}
		return nil, fmt.Errorf("delete expense: %w", err)
	}
	e.Note = note.String
	e.Date, _ = core.ParseDate(dateStr)
	e.CreatedAt, _ = time.Parse(timeLayout, createdAt)
	e.UpdatedAt, _ = time.Parse(timeLayout, updatedAt)

	slog.InfoContext(ctx, "Expense deleted", "id", id, "user_id", userID)
	return &e, nil
}

// GetPendingExportExpenses returns rows the backup worker has not mirrored
// yet, oldest first.
func (r *Repository) GetPendingExportExpenses(ctx context.Context, limit int) ([]core.Expense, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, amount_cents, category, note, date, created_at, updated_at
		 FROM expenses WHERE export_status = 'pending' ORDER BY id ASC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("get pending export expenses: %w", err)
	}
	defer rows.Close()

	var expenses []core.Expense
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, err
		}
		expenses = append(expenses, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("get pending export expenses: %w", err)
	}

	return expenses, nil
}

// MarkExported marks an expense as successfully mirrored to the backup.
func (r *Repository) MarkExported(ctx context.Context, id int64) error {
	if _, err := r.db.ExecContext(ctx,
		`UPDATE expenses SET export_status = 'done' WHERE id = ?`, id); err != nil {
		return fmt.Errorf("mark exported: %w", err)
	}
	return nil
}

// MarkExportError marks an expense as having failed to export.
func (r *Repository) MarkExportError(ctx context.Context, id int64) error {
	if _, err := r.db.ExecContext(ctx,
		`UPDATE expenses SET export_status = 'error' WHERE id = ?`, id); err != nil {
		return fmt.Errorf("mark export error: %w", err)
	}
	slog.WarnContext(ctx, "Expense marked with export error", "id", id)
	return nil
}

func scanExpense(rows *sql.Rows) (core.Expense, error) {
	var e core.Expense
	var note sql.NullString
	var dateStr, createdAt, updatedAt string
	if err := rows.Scan(&e.ID, &e.UserID, &e.Amount.Cents, &e.Category, &note, &dateStr, &createdAt, &updatedAt); err != nil {
		return core.Expense{}, fmt.Errorf("scan expense: %w", err)
	}
	e.Note = note.String

	var err error
	e.Date, err = core.ParseDate(dateStr)
	if err != nil {
		return core.Expense{}, fmt.Errorf("scan expense date: %w", err)
	}
	e.CreatedAt, _ = time.Parse(timeLayout, createdAt)
	e.UpdatedAt, _ = time.Parse(timeLayout, updatedAt)
	return e, nil
}
