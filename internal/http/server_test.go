package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"tally/internal/auth"
	"tally/internal/core"
	"tally/internal/services"
	"tally/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"golang.org/x/crypto/bcrypt"
)

type ServerTestSuite struct {
	suite.Suite
	repo   *storage.Repository
	server *Server
}

func (s *ServerTestSuite) SetupTest() {
	repo, err := storage.NewRepository(":memory:")
	require.NoError(s.T(), err)
	s.repo = repo

	authSvc := auth.NewService(repo, bcrypt.MinCost)
	ledger := services.NewLedgerService(repo, nil)
	analytics := services.NewAnalyticsService(repo)
	s.server = NewServer("127.0.0.1:0", authSvc, ledger, analytics, func(ctx context.Context) error {
		return repo.Ping(ctx)
	})
}

func (s *ServerTestSuite) TearDownTest() {
	if s.server != nil {
		_ = s.server.Shutdown(context.Background())
	}
	if s.repo != nil {
		s.repo.Close()
	}
}

// do runs a request against the server handler and decodes the JSON body.
func (s *ServerTestSuite) do(method, path string, body any) (int, map[string]any) {
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.T(), json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	s.server.Handler.ServeHTTP(rec, req)

	var decoded map[string]any
	if rec.Body.Len() > 0 && rec.Header().Get("Content-Type") != "" {
		require.NoError(s.T(), json.Unmarshal(rec.Body.Bytes(), &decoded))
	}
	return rec.Code, decoded
}

func (s *ServerTestSuite) register(name, email string) {
	code, body := s.do(http.MethodPost, "/api/register", map[string]any{
		"name": name, "email": email, "password": "secret",
	})
	require.Equal(s.T(), http.StatusCreated, code)
	require.Equal(s.T(), true, body["ok"])
}

func (s *ServerTestSuite) login(email string) int64 {
	code, body := s.do(http.MethodPost, "/api/login", map[string]any{
		"email": email, "password": "secret",
	})
	require.Equal(s.T(), http.StatusOK, code)
	user := body["user"].(map[string]any)
	return int64(user["id"].(float64))
}

func (s *ServerTestSuite) addExpense(userID int64, amount float64, category, note, date string) int64 {
	code, body := s.do(http.MethodPost, "/api/expenses", map[string]any{
		"user_id": userID, "amount": amount, "category": category, "note": note, "date": date,
	})
	require.Equal(s.T(), http.StatusCreated, code)
	require.Equal(s.T(), true, body["ok"])
	return int64(body["id"].(float64))
}

func (s *ServerTestSuite) TestRegisterAndLogin() {
	s.register("Alice", "alice@example.com")
	userID := s.login("alice@example.com")
	assert.Positive(s.T(), userID)
}

func (s *ServerTestSuite) TestRegisterDuplicateEmail() {
	s.register("Alice", "alice@example.com")
	code, body := s.do(http.MethodPost, "/api/register", map[string]any{
		"name": "Other", "email": "alice@example.com", "password": "secret",
	})
	assert.Equal(s.T(), http.StatusConflict, code)
	assert.Equal(s.T(), false, body["ok"])
	assert.Equal(s.T(), "email already registered", body["message"])
}

func (s *ServerTestSuite) TestRegisterValidation() {
	code, body := s.do(http.MethodPost, "/api/register", map[string]any{
		"name": "Alice", "email": "not-an-email", "password": "secret",
	})
	assert.Equal(s.T(), http.StatusUnprocessableEntity, code)
	assert.Equal(s.T(), "invalid email address", body["message"])
}

func (s *ServerTestSuite) TestLoginFailures() {
	s.register("Alice", "alice@example.com")

	code, body := s.do(http.MethodPost, "/api/login", map[string]any{
		"email": "alice@example.com", "password": "wrong",
	})
	assert.Equal(s.T(), http.StatusUnauthorized, code)
	assert.Equal(s.T(), "incorrect password", body["message"])

	code, body = s.do(http.MethodPost, "/api/login", map[string]any{
		"email": "nobody@example.com", "password": "secret",
	})
	assert.Equal(s.T(), http.StatusUnauthorized, code)
	assert.Equal(s.T(), "no account with this email", body["message"])
}

func (s *ServerTestSuite) TestAddExpense() {
	s.register("Alice", "alice@example.com")
	userID := s.login("alice@example.com")

	code, body := s.do(http.MethodPost, "/api/expenses", map[string]any{
		"user_id": userID, "amount": 600.0, "category": "Food", "note": "dinner", "date": "2025-10-01",
	})
	assert.Equal(s.T(), http.StatusCreated, code)
	assert.Equal(s.T(), true, body["ok"])
	assert.Positive(s.T(), body["id"].(float64))
	assert.Equal(s.T(), "Successfully added expense: $600.00 for Food", body["message"])
}

func (s *ServerTestSuite) TestAddExpenseRejectsInvalidInput() {
	s.register("Alice", "alice@example.com")
	userID := s.login("alice@example.com")

	code, body := s.do(http.MethodPost, "/api/expenses", map[string]any{
		"user_id": userID, "amount": -5.0, "category": "Food",
	})
	assert.Equal(s.T(), http.StatusUnprocessableEntity, code)
	assert.Equal(s.T(), "amount must be positive", body["message"])

	code, _ = s.do(http.MethodPost, "/api/expenses", map[string]any{
		"user_id": userID, "amount": 5.0, "category": "Food", "date": "10/01/2025",
	})
	assert.Equal(s.T(), http.StatusUnprocessableEntity, code)

	req := httptest.NewRequest(http.MethodPost, "/api/expenses", bytes.NewBufferString("{broken"))
	rec := httptest.NewRecorder()
	s.server.Handler.ServeHTTP(rec, req)
	assert.Equal(s.T(), http.StatusBadRequest, rec.Code)
}

func (s *ServerTestSuite) TestListExpenses() {
	s.register("Alice", "alice@example.com")
	userID := s.login("alice@example.com")
	s.addExpense(userID, 600, "Food", "dinner", "2025-10-01")
	s.addExpense(userID, 50, "Transport", "uber", "2025-10-02")

	code, body := s.do(http.MethodGet, fmt.Sprintf("/api/expenses?user_id=%d", userID), nil)
	assert.Equal(s.T(), http.StatusOK, code)
	assert.Equal(s.T(), float64(2), body["count"])
	assert.Equal(s.T(), 650.0, body["total"])
	assert.Equal(s.T(), "Found 2 expense(s) totaling $650.00", body["message"])

	byCategory := body["by_category"].(map[string]any)
	assert.Equal(s.T(), 600.0, byCategory["Food"])
	assert.Equal(s.T(), 50.0, byCategory["Transport"])

	expenses := body["expenses"].([]any)
	require.Len(s.T(), expenses, 2)
	first := expenses[0].(map[string]any)
	assert.Equal(s.T(), "2025-10-01", first["date"])
	assert.Equal(s.T(), "dinner", first["note"])
}

func (s *ServerTestSuite) TestListExpensesDateFilter() {
	s.register("Alice", "alice@example.com")
	userID := s.login("alice@example.com")
	s.addExpense(userID, 600, "Food", "", "2025-09-30")
	s.addExpense(userID, 50, "Transport", "", "2025-10-02")

	code, body := s.do(http.MethodGet,
		fmt.Sprintf("/api/expenses?user_id=%d&start_date=2025-10-01&end_date=2025-10-31", userID), nil)
	assert.Equal(s.T(), http.StatusOK, code)
	assert.Equal(s.T(), float64(1), body["count"])
	assert.Equal(s.T(), 50.0, body["total"])
}

func (s *ServerTestSuite) TestListExpensesRequiresUserID() {
	code, body := s.do(http.MethodGet, "/api/expenses", nil)
	assert.Equal(s.T(), http.StatusBadRequest, code)
	assert.Equal(s.T(), "user_id is required", body["message"])
}

func (s *ServerTestSuite) TestUpdateExpense() {
	s.register("Alice", "alice@example.com")
	userID := s.login("alice@example.com")
	id := s.addExpense(userID, 600, "Food", "dinner", "2025-10-01")

	code, body := s.do(http.MethodPatch, fmt.Sprintf("/api/expenses/%d", id), map[string]any{
		"user_id": userID, "amount": 700.0,
	})
	assert.Equal(s.T(), http.StatusOK, code)
	assert.Equal(s.T(), fmt.Sprintf("Successfully updated expense %d", id), body["message"])

	_, list := s.do(http.MethodGet, fmt.Sprintf("/api/expenses?user_id=%d", userID), nil)
	expense := list["expenses"].([]any)[0].(map[string]any)
	assert.Equal(s.T(), 700.0, expense["amount"])
	assert.Equal(s.T(), "dinner", expense["note"], "unsupplied fields stay unchanged")
}

func (s *ServerTestSuite) TestUpdateExpenseNoFields() {
	s.register("Alice", "alice@example.com")
	userID := s.login("alice@example.com")
	id := s.addExpense(userID, 600, "Food", "", "2025-10-01")

	code, body := s.do(http.MethodPatch, fmt.Sprintf("/api/expenses/%d", id), map[string]any{
		"user_id": userID,
	})
	assert.Equal(s.T(), http.StatusUnprocessableEntity, code)
	assert.Equal(s.T(), "no fields provided", body["message"])
}

func (s *ServerTestSuite) TestUpdateExpenseCrossUser() {
	s.register("Alice", "alice@example.com")
	s.register("Bob", "bob@example.com")
	aliceID := s.login("alice@example.com")
	bobID := s.login("bob@example.com")
	id := s.addExpense(aliceID, 600, "Food", "", "2025-10-01")

	code, body := s.do(http.MethodPatch, fmt.Sprintf("/api/expenses/%d", id), map[string]any{
		"user_id": bobID, "amount": 1.0,
	})
	assert.Equal(s.T(), http.StatusNotFound, code)
	assert.Equal(s.T(), "expense not found", body["message"])
}

func (s *ServerTestSuite) TestDeleteExpense() {
	s.register("Alice", "alice@example.com")
	userID := s.login("alice@example.com")
	id := s.addExpense(userID, 600, "Food", "dinner", "2025-10-01")

	code, body := s.do(http.MethodDelete, fmt.Sprintf("/api/expenses/%d?user_id=%d", id, userID), nil)
	assert.Equal(s.T(), http.StatusOK, code)
	assert.Equal(s.T(), "Successfully deleted expense: $600.00 for Food", body["message"])

	code, _ = s.do(http.MethodDelete, fmt.Sprintf("/api/expenses/%d?user_id=%d", id, userID), nil)
	assert.Equal(s.T(), http.StatusNotFound, code)
}

func (s *ServerTestSuite) TestExpenseByIDBadPath() {
	code, body := s.do(http.MethodDelete, "/api/expenses/abc?user_id=1", nil)
	assert.Equal(s.T(), http.StatusBadRequest, code)
	assert.Equal(s.T(), "invalid expense id", body["message"])
}

func (s *ServerTestSuite) TestAnalyzeByCategory() {
	s.register("Alice", "alice@example.com")
	userID := s.login("alice@example.com")
	s.addExpense(userID, 600, "Food", "dinner", "2025-10-01")
	s.addExpense(userID, 50, "Transport", "uber", "2025-10-02")

	code, body := s.do(http.MethodGet,
		fmt.Sprintf("/api/analyze?user_id=%d&group_by=category", userID), nil)
	assert.Equal(s.T(), http.StatusOK, code)
	assert.Equal(s.T(), float64(2), body["count"])
	assert.Equal(s.T(), 650.0, body["total"])
	assert.Equal(s.T(), 325.0, body["mean"])
	assert.Equal(s.T(), 325.0, body["median"])
	assert.Equal(s.T(), 50.0, body["min"])
	assert.Equal(s.T(), 600.0, body["max"])

	grouped := body["grouped_data"].([]any)
	require.Len(s.T(), grouped, 2)
	top := grouped[0].(map[string]any)
	assert.Equal(s.T(), "Food", top["key"])
	assert.Equal(s.T(), 600.0, top["total"])

	topSpending := body["top_spending"].(map[string]any)
	assert.Equal(s.T(), "Food", topSpending["category"])
	assert.Equal(s.T(), 600.0, topSpending["amount"])
}

func (s *ServerTestSuite) TestAnalyzeEmpty() {
	s.register("Alice", "alice@example.com")
	userID := s.login("alice@example.com")

	code, body := s.do(http.MethodGet, fmt.Sprintf("/api/analyze?user_id=%d", userID), nil)
	assert.Equal(s.T(), http.StatusOK, code)
	assert.Equal(s.T(), float64(0), body["count"])
	assert.Equal(s.T(), 0.0, body["total"])
	assert.NotContains(s.T(), body, "mean")
	assert.Equal(s.T(), "No expenses found for the selected period", body["message"])
}

func (s *ServerTestSuite) TestAnalyzeAlwaysRecomputes() {
	s.register("Alice", "alice@example.com")
	userID := s.login("alice@example.com")
	s.addExpense(userID, 600, "Food", "", "2025-10-01")

	_, body := s.do(http.MethodGet, fmt.Sprintf("/api/analyze?user_id=%d", userID), nil)
	assert.Equal(s.T(), float64(1), body["count"])

	// A write that bypasses the HTTP layer, as another process sharing the
	// database file would do. The next read must see it.
	date, err := core.ParseDate("2025-10-02")
	require.NoError(s.T(), err)
	_, err = s.repo.InsertExpense(context.Background(), core.Expense{
		UserID:   userID,
		Amount:   core.Money{Cents: 5000},
		Category: "Transport",
		Date:     date,
	})
	require.NoError(s.T(), err)

	_, body = s.do(http.MethodGet, fmt.Sprintf("/api/analyze?user_id=%d", userID), nil)
	assert.Equal(s.T(), float64(2), body["count"], "analysis is computed per request")
	assert.Equal(s.T(), 650.0, body["total"])
}

func (s *ServerTestSuite) TestAnalyzeRejectsUnknownGroupBy() {
	s.register("Alice", "alice@example.com")
	userID := s.login("alice@example.com")

	code, body := s.do(http.MethodGet,
		fmt.Sprintf("/api/analyze?user_id=%d&group_by=year", userID), nil)
	assert.Equal(s.T(), http.StatusUnprocessableEntity, code)
	assert.Equal(s.T(), "group_by must be one of: category, date, month", body["message"])
}

func (s *ServerTestSuite) TestHealthAndReadiness() {
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.server.Handler.ServeHTTP(rec, req)
	assert.Equal(s.T(), http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rec = httptest.NewRecorder()
	s.server.Handler.ServeHTTP(rec, req)
	assert.Equal(s.T(), http.StatusOK, rec.Code)

	s.server.ready = func(context.Context) error { return errors.New("db gone") }
	req = httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rec = httptest.NewRecorder()
	s.server.Handler.ServeHTTP(rec, req)
	assert.Equal(s.T(), http.StatusServiceUnavailable, rec.Code)
}

func (s *ServerTestSuite) TestMethodNotAllowed() {
	code, _ := s.do(http.MethodGet, "/api/register", nil)
	assert.Equal(s.T(), http.StatusMethodNotAllowed, code)

	code, _ = s.do(http.MethodPut, "/api/expenses", nil)
	assert.Equal(s.T(), http.StatusMethodNotAllowed, code)
}

func TestServerSuite(t *testing.T) {
	suite.Run(t, new(ServerTestSuite))
}
