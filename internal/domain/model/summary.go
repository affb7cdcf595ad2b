package model

import (
	"math"
	"sort"
)

// topRiskFactorCount caps how many risk factors a summary snapshot reports.
const topRiskFactorCount = 5

// RiskFactorCount pairs a risk factor name with the number of rows it affected.
type RiskFactorCount struct {
	Factor string `json:"factor"`
	Count  int    `json:"count"`
}

// Summary holds the aggregate statistics of a job, computed incrementally as
// rows are verified and finalized when the job reaches a terminal state.
type Summary struct {
	Valid          int               `json:"valid"`
	Risky          int               `json:"risky"`
	Invalid        int               `json:"invalid"`
	Total          int               `json:"total"`
	AvgScore       float64           `json:"avg_score"`
	TopRiskFactors []RiskFactorCount `json:"top_risk_factors,omitempty"`
}

// SummaryAccumulator incrementally builds a Summary from observed result rows.
// It is not safe for concurrent use; each job runner owns exactly one.
type SummaryAccumulator struct {
	valid    int
	risky    int
	invalid  int
	scoreSum int
	factors  map[string]int
}

// NewSummaryAccumulator returns an empty accumulator.
func NewSummaryAccumulator() *SummaryAccumulator {
	return &SummaryAccumulator{factors: make(map[string]int)}
}

// Observe folds one result row into the running totals.
func (a *SummaryAccumulator) Observe(row *ResultRow) {
	switch row.Status {
	case StatusValid:
		a.valid++
	case StatusRisky:
		a.risky++
	case StatusInvalid:
		a.invalid++
	}
	a.scoreSum += row.Score
	for _, f := range row.RiskFactors {
		a.factors[f]++
	}
}

// Total returns the number of rows observed so far.
func (a *SummaryAccumulator) Total() int {
	return a.valid + a.risky + a.invalid
}

// Snapshot returns the Summary for the rows observed so far. The average
// score is rounded to one decimal place; top risk factors are ordered by
// count descending, then name, and capped.
func (a *SummaryAccumulator) Snapshot() *Summary {
	total := a.Total()
	avg := 0.0
	if total > 0 {
		avg = math.Round(float64(a.scoreSum)/float64(total)*10) / 10
	}

	top := make([]RiskFactorCount, 0, len(a.factors))
	for factor, count := range a.factors {
		top = append(top, RiskFactorCount{Factor: factor, Count: count})
	}
	sort.Slice(top, func(i, j int) bool {
		if top[i].Count != top[j].Count {
			return top[i].Count > top[j].Count
		}
		return top[i].Factor < top[j].Factor
	})
	if len(top) > topRiskFactorCount {
		top = top[:topRiskFactorCount]
	}
	if len(top) == 0 {
		top = nil
	}

	return &Summary{
		Valid:          a.valid,
		Risky:          a.risky,
		Invalid:        a.invalid,
		Total:          total,
		AvgScore:       avg,
		TopRiskFactors: top,
	}
}
