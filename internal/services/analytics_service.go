package services

import (
	"context"
	"fmt"
	"math"
	"sort"

	"tally/internal/core"
	"tally/internal/storage"
)

// Stats are the descriptive statistics over a filtered expense set, rounded
// to two decimals. They are absent entirely when the set is empty.
type Stats struct {
	Mean   float64
	Median float64
	StdDev float64
	Min    float64
	Max    float64
}

// GroupTotal is one bucket of the grouped sums. The total stays in cents so
// group sums are exact; callers convert at the presentation boundary.
type GroupTotal struct {
	Key   string
	Total core.Money
}

// Analysis is the result of an Analyze call. Groups are ordered by descending
// total with first-seen order breaking ties; Top is the first group.
type Analysis struct {
	GroupBy core.GroupBy
	Count   int
	Total   core.Money
	Stats   *Stats
	Groups  []GroupTotal
	Top     *GroupTotal
}

// AnalyticsService computes descriptive statistics and groupings over a
// user's filtered expenses. Every call recomputes from the ledger; there is
// no cached aggregate to go stale.
type AnalyticsService struct {
	storage *storage.Repository
}

func NewAnalyticsService(storage *storage.Repository) *AnalyticsService {
	return &AnalyticsService{storage: storage}
}

// Analyze is read-only: it never mutates the ledger.
func (s *AnalyticsService) Analyze(ctx context.Context, userID int64, start, end core.Date, groupBy core.GroupBy) (*Analysis, error) {
	expenses, err := s.storage.ListExpenses(ctx, userID, start, end)
	if err != nil {
		return nil, fmt.Errorf("load expenses for analysis: %w", err)
	}

	analysis := &Analysis{
		GroupBy: groupBy,
		Count:   len(expenses),
	}
	if len(expenses) == 0 {
		// count 0, total 0, and no statistical fields: an empty period is a
		// valid answer, not a failure.
		return analysis, nil
	}

	cents := make([]int64, len(expenses))
	for i, e := range expenses {
		cents[i] = e.Amount.Cents
		analysis.Total.Cents += e.Amount.Cents
	}

	analysis.Stats = computeStats(cents)
	analysis.Groups = computeGroups(expenses, groupBy)
	analysis.Top = &analysis.Groups[0]

	return analysis, nil
}

// computeStats works on cents and converts to two-decimal output at the end,
// so the intermediate sums stay exact.
func computeStats(cents []int64) *Stats {
	n := len(cents)

	var sum int64
	minC, maxC := cents[0], cents[0]
	for _, c := range cents {
		sum += c
		if c < minC {
			minC = c
		}
		if c > maxC {
			maxC = c
		}
	}
	mean := float64(sum) / float64(n)

	sorted := make([]int64, n)
	copy(sorted, cents)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	var median float64
	if n%2 == 1 {
		median = float64(sorted[n/2])
	} else {
		median = float64(sorted[n/2-1]+sorted[n/2]) / 2
	}

	// Sample standard deviation; a single observation has no spread, so it
	// yields 0 rather than a divide-by-zero.
	var stdDev float64
	if n > 1 {
		var sq float64
		for _, c := range cents {
			d := float64(c) - mean
			sq += d * d
		}
		stdDev = math.Sqrt(sq / float64(n-1))
	}

	return &Stats{
		Mean:   round2(mean / 100),
		Median: round2(median / 100),
		StdDev: round2(stdDev / 100),
		Min:    round2(float64(minC) / 100),
		Max:    round2(float64(maxC) / 100),
	}
}

func computeGroups(expenses []core.Expense, groupBy core.GroupBy) []GroupTotal {
	totals := make(map[string]int64)
	var order []string
	for _, e := range expenses {
		key := groupBy.Key(e)
		if _, seen := totals[key]; !seen {
			order = append(order, key)
		}
		totals[key] += e.Amount.Cents
	}

	groups := make([]GroupTotal, len(order))
	for i, key := range order {
		groups[i] = GroupTotal{Key: key, Total: core.Money{Cents: totals[key]}}
	}
	// Stable sort keeps first-seen order between equal totals.
	sort.SliceStable(groups, func(i, j int) bool { return groups[i].Total.Cents > groups[j].Total.Cents })

	return groups
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
