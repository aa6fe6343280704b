package http

import (
	"fmt"
	"net/http"

	"tally/internal/core"
	"tally/internal/services"
)

type groupTotalPayload struct {
	Key   string  `json:"key"`
	Total float64 `json:"total"`
}

type analyzeResponse struct {
	OK          bool                `json:"ok"`
	Count       int                 `json:"count"`
	Total       float64             `json:"total"`
	Mean        *float64            `json:"mean,omitempty"`
	Median      *float64            `json:"median,omitempty"`
	StdDev      *float64            `json:"std_dev,omitempty"`
	Min         *float64            `json:"min,omitempty"`
	Max         *float64            `json:"max,omitempty"`
	GroupedData []groupTotalPayload `json:"grouped_data"`
	TopSpending map[string]any      `json:"top_spending,omitempty"`
	Message     string              `json:"message"`
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	userID, ok := parseUserIDQuery(w, r)
	if !ok {
		return
	}
	start, end, ok := parseDateRange(w, r)
	if !ok {
		return
	}
	groupBy, err := core.ParseGroupBy(r.URL.Query().Get("group_by"))
	if err != nil {
		writeFailure(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	// Always computed from the ledger; other writers to the same database
	// file must be visible immediately.
	analysis, err := s.analytics.Analyze(r.Context(), userID, start, end, groupBy)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toAnalyzeResponse(analysis))
}

func toAnalyzeResponse(a *services.Analysis) analyzeResponse {
	resp := analyzeResponse{
		OK:          true,
		Count:       a.Count,
		Total:       a.Total.Amount(),
		GroupedData: make([]groupTotalPayload, 0, len(a.Groups)),
	}

	if a.Count == 0 {
		resp.Message = "No expenses found for the selected period"
		return resp
	}

	if a.Stats != nil {
		resp.Mean = &a.Stats.Mean
		resp.Median = &a.Stats.Median
		resp.StdDev = &a.Stats.StdDev
		resp.Min = &a.Stats.Min
		resp.Max = &a.Stats.Max
	}
	for _, g := range a.Groups {
		resp.GroupedData = append(resp.GroupedData, groupTotalPayload{Key: g.Key, Total: g.Total.Amount()})
	}
	if a.Top != nil {
		resp.TopSpending = map[string]any{
			string(a.GroupBy): a.Top.Key,
			"amount":          a.Top.Total.Amount(),
		}
		resp.Message = fmt.Sprintf("Analyzed %d expense(s) totaling $%.2f, top %s: %s ($%.2f)",
			a.Count, a.Total.Amount(), a.GroupBy, a.Top.Key, a.Top.Total.Amount())
	} else {
		resp.Message = fmt.Sprintf("Analyzed %d expense(s) totaling $%.2f", a.Count, a.Total.Amount())
	}
	return resp
}
