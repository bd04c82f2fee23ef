package core

import (
	"sort"
	"time"
)

const (
	recentRunsLimit = 10
	trendRunsLimit  = 20
)

// ProfileMetrics summarises a player's simulation history
type ProfileMetrics struct {
	UserID     string         `json:"user_id"`
	Overall    OverallMetrics `json:"overall"`
	RecentRuns []RunMetrics   `json:"recent_runs"`
	ByLevel    []LevelMetrics `json:"by_level"`
	Trends     TrendMetrics   `json:"trends"`
}

// OverallMetrics are lifetime totals across completed runs and decisions
type OverallMetrics struct {
	TotalRuns                       int     `json:"total_runs"`
	TotalAttempts                   int     `json:"total_attempts"`
	Accuracy                        float64 `json:"accuracy"`
	DecisionEvents                  int     `json:"decision_events"`
	PctLinkClickBeforeDecision      float64 `json:"pct_link_click_before_decision"`
	PctAttachmentOpenBeforeDecision float64 `json:"pct_attachment_open_before_decision"`
}

// RunMetrics describes one completed run
type RunMetrics struct {
	RunID       int64      `json:"run_id"`
	LevelNumber int        `json:"level_number"`
	ScenarioID  int64      `json:"scenario_id,omitempty"`
	Correct     int        `json:"correct"`
	Incorrect   int        `json:"incorrect"`
	Attempts    int        `json:"attempts"`
	Accuracy    float64    `json:"accuracy"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// LevelMetrics aggregates runs per level number
type LevelMetrics struct {
	LevelNumber int     `json:"level_number"`
	Runs        int     `json:"runs"`
	Accuracy    float64 `json:"accuracy"`
	Attempts    int     `json:"attempts"`
}

// TrendPoint is one run's accuracy in time order
type TrendPoint struct {
	T           *time.Time `json:"t"`
	Accuracy    float64    `json:"accuracy"`
	LevelNumber int        `json:"level_number"`
}

// TrendMetrics holds time series derived from runs
type TrendMetrics struct {
	Accuracy []TrendPoint `json:"accuracy"`
}

func ratio(num, den int) float64 {
	if den <= 0 {
		return 0
	}
	return float64(num) / float64(den)
}

// BuildProfileMetrics aggregates completed runs and decisions, both ordered newest first
func BuildProfileMetrics(userID string, runs []LevelRun, decisions []DecisionEvent) *ProfileMetrics {
	m := &ProfileMetrics{
		UserID:     userID,
		RecentRuns: []RunMetrics{},
		ByLevel:    []LevelMetrics{},
		Trends:     TrendMetrics{Accuracy: []TrendPoint{}},
	}

	totalCorrect, totalIncorrect := 0, 0
	type levelAgg struct {
		runs, correct, incorrect int
	}
	byLevel := make(map[int]*levelAgg)

	for i, r := range runs {
		totalCorrect += r.Correct
		totalIncorrect += r.Incorrect
		attempts := r.Correct + r.Incorrect

		if i < recentRunsLimit {
			m.RecentRuns = append(m.RecentRuns, RunMetrics{
				RunID:       r.ID,
				LevelNumber: r.LevelNumber,
				ScenarioID:  r.ScenarioID,
				Correct:     r.Correct,
				Incorrect:   r.Incorrect,
				Attempts:    attempts,
				Accuracy:    ratio(r.Correct, attempts),
				StartedAt:   r.StartedAt,
				CompletedAt: r.CompletedAt,
			})
		}

		agg, ok := byLevel[r.LevelNumber]
		if !ok {
			agg = &levelAgg{}
			byLevel[r.LevelNumber] = agg
		}
		agg.runs++
		agg.correct += r.Correct
		agg.incorrect += r.Incorrect
	}

	// Trend runs oldest to newest over the latest window
	window := runs
	if len(window) > trendRunsLimit {
		window = window[:trendRunsLimit]
	}
	for i := len(window) - 1; i >= 0; i-- {
		r := window[i]
		m.Trends.Accuracy = append(m.Trends.Accuracy, TrendPoint{
			T:           r.CompletedAt,
			Accuracy:    ratio(r.Correct, r.Correct+r.Incorrect),
			LevelNumber: r.LevelNumber,
		})
	}

	levels := make([]int, 0, len(byLevel))
	for lvl := range byLevel {
		levels = append(levels, lvl)
	}
	sort.Ints(levels)
	for _, lvl := range levels {
		agg := byLevel[lvl]
		attempts := agg.correct + agg.incorrect
		m.ByLevel = append(m.ByLevel, LevelMetrics{
			LevelNumber: lvl,
			Runs:        agg.runs,
			Accuracy:    ratio(agg.correct, attempts),
			Attempts:    attempts,
		})
	}

	linkBefore, attachBefore := 0, 0
	for _, d := range decisions {
		if d.HadLinkClick {
			linkBefore++
		}
		if d.HadAttachmentOpen {
			attachBefore++
		}
	}

	totalAttempts := totalCorrect + totalIncorrect
	m.Overall = OverallMetrics{
		TotalRuns:                       len(runs),
		TotalAttempts:                   totalAttempts,
		Accuracy:                        ratio(totalCorrect, totalAttempts),
		DecisionEvents:                  len(decisions),
		PctLinkClickBeforeDecision:      ratio(linkBefore, len(decisions)),
		PctAttachmentOpenBeforeDecision: ratio(attachBefore, len(decisions)),
	}

	return m
}
