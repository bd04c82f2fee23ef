package core_test

import (
	"testing"
	"time"

	"github.com/BuddyGames04/gamified-phishing-awareness-platform/internal/core"
)

func completedRun(id int64, level, correct, incorrect int, at time.Time) core.LevelRun {
	return core.LevelRun{
		ID:          id,
		Mode:        core.ModeSimulation,
		LevelNumber: level,
		Correct:     correct,
		Incorrect:   incorrect,
		StartedAt:   at.Add(-time.Minute),
		CompletedAt: &at,
	}
}

func TestBuildProfileMetricsEmpty(t *testing.T) {
	m := core.BuildProfileMetrics("7", nil, nil)

	if m.Overall.TotalRuns != 0 || m.Overall.Accuracy != 0 {
		t.Fatalf("unexpected overall: %+v", m.Overall)
	}
	if m.RecentRuns == nil || m.ByLevel == nil || m.Trends.Accuracy == nil {
		t.Fatal("empty metrics should use empty slices, not nil")
	}
}

func TestBuildProfileMetrics(t *testing.T) {
	now := time.Now()

	// newest first
	var runs []core.LevelRun
	for i := 0; i < 25; i++ {
		level := 1 + i%3
		runs = append(runs, completedRun(int64(100-i), level, 4, 1, now.Add(-time.Duration(i)*time.Hour)))
	}

	decisions := []core.DecisionEvent{
		{HadLinkClick: true},
		{HadLinkClick: true, HadAttachmentOpen: true},
		{},
		{},
	}

	m := core.BuildProfileMetrics("7", runs, decisions)

	if m.Overall.TotalRuns != 25 || m.Overall.TotalAttempts != 125 {
		t.Fatalf("unexpected overall: %+v", m.Overall)
	}
	if m.Overall.Accuracy != 0.8 {
		t.Fatalf("expected accuracy 0.8, got %v", m.Overall.Accuracy)
	}
	if m.Overall.PctLinkClickBeforeDecision != 0.5 || m.Overall.PctAttachmentOpenBeforeDecision != 0.25 {
		t.Fatalf("unexpected decision rates: %+v", m.Overall)
	}

	if len(m.RecentRuns) != 10 || m.RecentRuns[0].RunID != 100 {
		t.Fatalf("unexpected recent runs: %d first=%d", len(m.RecentRuns), m.RecentRuns[0].RunID)
	}

	if len(m.ByLevel) != 3 {
		t.Fatalf("expected 3 levels, got %d", len(m.ByLevel))
	}
	for i, lvl := range m.ByLevel {
		if lvl.LevelNumber != i+1 {
			t.Fatalf("levels should be sorted: %+v", m.ByLevel)
		}
	}

	if len(m.Trends.Accuracy) != 20 {
		t.Fatalf("expected 20 trend points, got %d", len(m.Trends.Accuracy))
	}
	first, last := m.Trends.Accuracy[0].T, m.Trends.Accuracy[19].T
	if !first.Before(*last) {
		t.Fatal("trend should run oldest to newest")
	}
}
