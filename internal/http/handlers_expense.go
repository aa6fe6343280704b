package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"tally/internal/core"
)

type expensePayload struct {
	ID        int64   `json:"id"`
	Amount    float64 `json:"amount"`
	Category  string  `json:"category"`
	Note      string  `json:"note,omitempty"`
	Date      string  `json:"date"`
	CreatedAt string  `json:"created_at"`
	UpdatedAt string  `json:"updated_at"`
}

func toExpensePayload(e core.Expense) expensePayload {
	return expensePayload{
		ID:        e.ID,
		Amount:    e.Amount.Amount(),
		Category:  e.Category,
		Note:      e.Note,
		Date:      e.Date.String(),
		CreatedAt: e.CreatedAt.Format(time.RFC3339),
		UpdatedAt: e.UpdatedAt.Format(time.RFC3339),
	}
}

// handleExpenses dispatches the collection endpoint: POST adds, GET lists.
func (s *Server) handleExpenses(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleAddExpense(w, r)
	case http.MethodGet:
		s.handleListExpenses(w, r)
	default:
		w.Header().Set("Allow", "GET, POST")
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

type addExpenseRequest struct {
	UserID   int64   `json:"user_id"`
	Amount   float64 `json:"amount"`
	Category string  `json:"category"`
	Note     string  `json:"note"`
	Date     string  `json:"date"`
}

type addExpenseResponse struct {
	OK      bool   `json:"ok"`
	ID      int64  `json:"id"`
	Message string `json:"message"`
}

func (s *Server) handleAddExpense(w http.ResponseWriter, r *http.Request) {
	var req addExpenseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFailure(w, http.StatusBadRequest, "invalid request body")
		return
	}

	amount, err := core.MoneyFromAmount(req.Amount)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var date core.Date
	if req.Date != "" {
		if date, err = core.ParseDate(req.Date); err != nil {
			writeError(w, r, err)
			return
		}
	}

	e, err := s.ledger.AddExpense(r.Context(), req.UserID, amount, req.Category, req.Note, date)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, addExpenseResponse{
		OK:      true,
		ID:      e.ID,
		Message: fmt.Sprintf("Successfully added expense: $%.2f for %s", e.Amount.Amount(), e.Category),
	})
}

type listExpensesResponse struct {
	OK         bool               `json:"ok"`
	Expenses   []expensePayload   `json:"expenses"`
	Total      float64            `json:"total"`
	Count      int                `json:"count"`
	ByCategory map[string]float64 `json:"by_category"`
	Message    string             `json:"message"`
}

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	userID, ok := parseUserIDQuery(w, r)
	if !ok {
		return
	}
	start, end, ok := parseDateRange(w, r)
	if !ok {
		return
	}

	result, err := s.ledger.ListExpenses(r.Context(), userID, start, end)
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := listExpensesResponse{
		OK:         true,
		Expenses:   make([]expensePayload, 0, len(result.Expenses)),
		Total:      result.Total.Amount(),
		Count:      len(result.Expenses),
		ByCategory: make(map[string]float64, len(result.ByCategory)),
		Message:    fmt.Sprintf("Found %d expense(s) totaling $%.2f", len(result.Expenses), result.Total.Amount()),
	}
	for _, e := range result.Expenses {
		resp.Expenses = append(resp.Expenses, toExpensePayload(e))
	}
	for cat, total := range result.ByCategory {
		resp.ByCategory[cat] = total.Amount()
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleExpenseByID dispatches /api/expenses/{id}: PATCH updates, DELETE removes.
func (s *Server) handleExpenseByID(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(strings.TrimPrefix(r.URL.Path, "/api/expenses/"), 10, 64)
	if err != nil || id <= 0 {
		writeFailure(w, http.StatusBadRequest, "invalid expense id")
		return
	}

	switch r.Method {
	case http.MethodPatch:
		s.handleUpdateExpense(w, r, id)
	case http.MethodDelete:
		s.handleDeleteExpense(w, r, id)
	default:
		w.Header().Set("Allow", "PATCH, DELETE")
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// updateExpenseRequest distinguishes absent fields from present ones with
// pointers, so a note can be cleared by sending an empty string.
type updateExpenseRequest struct {
	UserID   int64    `json:"user_id"`
	Amount   *float64 `json:"amount"`
	Category *string  `json:"category"`
	Note     *string  `json:"note"`
	Date     *string  `json:"date"`
}

type messageResponse struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

func (s *Server) handleUpdateExpense(w http.ResponseWriter, r *http.Request, id int64) {
	var req updateExpenseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFailure(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var patch core.ExpensePatch
	if req.Amount != nil {
		amount, err := core.MoneyFromAmount(*req.Amount)
		if err != nil {
			writeError(w, r, err)
			return
		}
		patch.Amount = core.Some(amount)
	}
	if req.Category != nil {
		patch.Category = core.Some(*req.Category)
	}
	if req.Note != nil {
		patch.Note = core.Some(*req.Note)
	}
	if req.Date != nil {
		date, err := core.ParseDate(*req.Date)
		if err != nil {
			writeError(w, r, err)
			return
		}
		patch.Date = core.Some(date)
	}

	if err := s.ledger.UpdateExpense(r.Context(), req.UserID, id, patch); err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{
		OK:      true,
		Message: fmt.Sprintf("Successfully updated expense %d", id),
	})
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request, id int64) {
	userID, ok := parseUserIDQuery(w, r)
	if !ok {
		return
	}

	deleted, err := s.ledger.DeleteExpense(r.Context(), userID, id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{
		OK:      true,
		Message: fmt.Sprintf("Successfully deleted expense: $%.2f for %s", deleted.Amount.Amount(), deleted.Category),
	})
}

func parseUserIDQuery(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.URL.Query().Get("user_id"), 10, 64)
	if err != nil || id <= 0 {
		writeFailure(w, http.StatusBadRequest, "user_id is required")
		return 0, false
	}
	return id, true
}

func parseDateRange(w http.ResponseWriter, r *http.Request) (start, end core.Date, ok bool) {
	var err error
	if v := r.URL.Query().Get("start_date"); v != "" {
		if start, err = core.ParseDate(v); err != nil {
			writeError(w, r, err)
			return core.Date{}, core.Date{}, false
		}
	}
	if v := r.URL.Query().Get("end_date"); v != "" {
		if end, err = core.ParseDate(v); err != nil {
			writeError(w, r, err)
			return core.Date{}, core.Date{}, false
		}
	}
	return start, end, true
}
