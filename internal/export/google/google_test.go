package google

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"tally/internal/cache"
	"tally/internal/core"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

// fakeSheets serves the two Sheets API calls the client makes: spreadsheet
// metadata and value append. It counts metadata lookups.
type fakeSheets struct {
	metadataCalls int
	appendCalls   int
	titles        []string
}

func (f *fakeSheets) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.Contains(r.URL.Path, ":append"):
			f.appendCalls++
			_ = json.NewEncoder(w).Encode(map[string]any{
				"updates": map[string]any{"updatedRange": "Expenses!A2:F2"},
			})
		default:
			f.metadataCalls++
			sheets := make([]map[string]any, 0, len(f.titles))
			for _, title := range f.titles {
				sheets = append(sheets, map[string]any{
					"properties": map[string]any{"title": title},
				})
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"sheets": sheets})
		}
	}
}

func newTestClient(t *testing.T, fake *fakeSheets, sheetName string) *Client {
	t.Helper()

	srv := httptest.NewServer(fake.handler())
	t.Cleanup(srv.Close)

	svc, err := gsheet.NewService(context.Background(),
		goption.WithoutAuthentication(),
		goption.WithEndpoint(srv.URL))
	if err != nil {
		t.Fatalf("sheets service: %v", err)
	}

	return &Client{
		svc:           svc,
		spreadsheetID: "spreadsheet-1",
		sheetName:     sheetName,
		knownSheets:   cache.NewLRU[bool](16, time.Hour),
	}
}

func TestAppendExpenseVerifiesSheetTitleOnce(t *testing.T) {
	fake := &fakeSheets{titles: []string{"Expenses"}}
	c := newTestClient(t, fake, "Expenses")

	e := core.Expense{ID: 1, UserID: 1, Amount: core.Money{Cents: 1500}, Category: "Food"}

	ref, err := c.AppendExpense(context.Background(), e)
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if ref != "Expenses!A2:F2" {
		t.Errorf("unexpected range ref: %q", ref)
	}

	if _, err := c.AppendExpense(context.Background(), e); err != nil {
		t.Fatalf("second append: %v", err)
	}

	if fake.metadataCalls != 1 {
		t.Errorf("expected 1 metadata lookup, got %d", fake.metadataCalls)
	}
	if fake.appendCalls != 2 {
		t.Errorf("expected 2 appends, got %d", fake.appendCalls)
	}
}

func TestAppendExpenseRejectsUnknownSheetTitle(t *testing.T) {
	fake := &fakeSheets{titles: []string{"Spese"}}
	c := newTestClient(t, fake, "Expenses")

	_, err := c.AppendExpense(context.Background(), core.Expense{ID: 1, UserID: 1})
	if err == nil {
		t.Fatal("expected error for missing sheet title")
	}
	if !strings.Contains(err.Error(), `sheet "Expenses" not found`) {
		t.Errorf("unexpected error: %v", err)
	}
	if fake.appendCalls != 0 {
		t.Errorf("expected no append attempts, got %d", fake.appendCalls)
	}
}

func TestNewRequiresSpreadsheetID(t *testing.T) {
	if _, err := New(context.Background(), "  ", "Expenses"); err == nil {
		t.Fatal("expected error for missing spreadsheet id")
	}
}
