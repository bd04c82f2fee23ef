package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultMessageLimit is used when a query does not ask for a batch size
	DefaultMessageLimit = 20
	// MaxMessageLimit caps the batch size of a single query
	MaxMessageLimit = 100

	correctPoints   = 10
	incorrectPoints = 2
)

// TrainingService is the core service behind the Content API
type TrainingService struct {
	content ContentRepository
	metrics MetricsRepository
	logger  *zap.Logger
	now     func() time.Time
}

// NewTrainingService creates a new training service
func NewTrainingService(content ContentRepository, metrics MetricsRepository, logger *zap.Logger) *TrainingService {
	return &TrainingService{
		content: content,
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
	}
}

// ClampLimit applies the default and maximum batch sizes
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultMessageLimit
	}
	if limit > MaxMessageLimit {
		return MaxMessageLimit
	}
	return limit
}

// ListMessages returns the batch of messages for a mode
func (s *TrainingService) ListMessages(ctx context.Context, q MessageQuery) ([]Message, error) {
	limit := ClampLimit(q.Limit)

	switch q.Mode {
	case ModeSimulation:
		if q.Level <= 0 {
			return nil, NewValidationError("level", "level required")
		}

		// Prefer the scenario's own level, fall back to the global level number
		scenarioID := q.ScenarioID
		if scenarioID != 0 {
			ok, err := s.content.LevelExists(ctx, scenarioID, q.Level)
			if err != nil {
				return nil, fmt.Errorf("failed to look up level: %w", err)
			}
			if !ok {
				scenarioID = 0
			}
		}
		if scenarioID == 0 {
			ok, err := s.content.LevelExists(ctx, 0, q.Level)
			if err != nil {
				return nil, fmt.Errorf("failed to look up level: %w", err)
			}
			if !ok {
				return nil, fmt.Errorf("level %d: %w", q.Level, ErrNotFound)
			}
		}

		msgs, err := s.content.ListLevelEmails(ctx, scenarioID, q.Level, q.Wave, limit)
		if err != nil {
			return nil, fmt.Errorf("failed to list level emails: %w", err)
		}
		return msgs, nil
	case ModeArcade, "":
		msgs, err := s.content.ListArcadeEmails(ctx, limit)
		if err != nil {
			return nil, fmt.Errorf("failed to list arcade emails: %w", err)
		}
		return msgs, nil
	default:
		return nil, ErrInvalidMode
	}
}

// ListScenarios returns every simulation scenario
func (s *TrainingService) ListScenarios(ctx context.Context) ([]Scenario, error) {
	scenarios, err := s.content.ListScenarios(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list scenarios: %w", err)
	}
	return scenarios, nil
}

// SubmitResult updates the user's lifetime progress
func (s *TrainingService) SubmitResult(ctx context.Context, userID string, correct bool) (*UserProgress, error) {
	progress, err := s.metrics.RecordResult(ctx, userID, correct)
	if err != nil {
		return nil, fmt.Errorf("failed to record result: %w", err)
	}
	return progress, nil
}

// ApplyResult adds one attempt to a progress record
func ApplyResult(p *UserProgress, correct bool) {
	p.TotalAttempts++
	if correct {
		p.Correct++
		p.Score += correctPoints
	} else {
		p.Incorrect++
		p.Score -= incorrectPoints
		if p.Score < 0 {
			p.Score = 0
		}
	}
}

// RecordInteraction stores a link click or attachment open
func (s *TrainingService) RecordInteraction(ctx context.Context, userID string, req InteractionRequest) (*InteractionEvent, error) {
	if req.EmailID <= 0 {
		return nil, NewValidationError("email_id", "email_id is required")
	}
	if !req.Kind.Valid() {
		return nil, NewValidationError("event_type", "unknown event type")
	}
	if req.Mode == "" {
		req.Mode = ModeSimulation
	}

	// Simulation content must exist; PVP ids live in their own table
	if req.Mode != ModePvP {
		if _, err := s.content.GetEmail(ctx, req.EmailID); err != nil {
			return nil, fmt.Errorf("email %d: %w", req.EmailID, err)
		}
	}

	event := &InteractionEvent{
		UserID:    userID,
		EmailID:   req.EmailID,
		Mode:      req.Mode,
		Kind:      req.Kind,
		Value:     strings.TrimSpace(req.Value),
		CreatedAt: s.now(),
	}
	id, err := s.metrics.CreateInteraction(ctx, event)
	if err != nil {
		return nil, fmt.Errorf("failed to store interaction: %w", err)
	}
	event.ID = id

	s.logger.Debug("Recorded interaction",
		zap.String("user_id", userID),
		zap.Int64("email_id", req.EmailID),
		zap.String("event_type", string(req.Kind)))

	return event, nil
}

// StartRun opens a run record
func (s *TrainingService) StartRun(ctx context.Context, userID string, req StartRunRequest) (*LevelRun, error) {
	if req.Mode == "" {
		req.Mode = ModeSimulation
	}
	if _, err := ParseMode(string(req.Mode)); err != nil {
		return nil, NewValidationError("mode", "unknown mode")
	}
	if req.LevelNumber <= 0 {
		req.LevelNumber = 1
	}
	if req.EmailsTotal < 0 {
		return nil, NewValidationError("emails_total", "must not be negative")
	}

	// Unknown scenarios are dropped rather than rejected
	if req.ScenarioID != 0 {
		if _, err := s.content.GetScenario(ctx, req.ScenarioID); err != nil {
			if !errors.Is(err, ErrNotFound) {
				return nil, fmt.Errorf("failed to look up scenario: %w", err)
			}
			req.ScenarioID = 0
		}
	}

	run := &LevelRun{
		UserID:      userID,
		Mode:        req.Mode,
		ScenarioID:  req.ScenarioID,
		LevelNumber: req.LevelNumber,
		EmailsTotal: req.EmailsTotal,
		StartedAt:   s.now(),
	}
	id, err := s.metrics.CreateRun(ctx, run)
	if err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}
	run.ID = id

	s.logger.Info("Started level run",
		zap.Int64("run_id", id),
		zap.String("user_id", userID),
		zap.Int("level_number", run.LevelNumber),
		zap.Int("emails_total", run.EmailsTotal))

	return run, nil
}

// CompleteRun finalizes a run; a run can only be completed once
func (s *TrainingService) CompleteRun(ctx context.Context, userID string, runID int64, correct, incorrect int) (*LevelRun, error) {
	if correct < 0 || incorrect < 0 {
		return nil, NewValidationError("correct", "counts must not be negative")
	}

	run, err := s.metrics.GetRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("run %d: %w", runID, err)
	}
	if run.UserID != userID {
		return nil, ErrForbidden
	}
	if run.Completed() {
		return nil, ErrRunAlreadyCompleted
	}

	at := s.now()
	if err := s.metrics.CompleteRun(ctx, runID, correct, incorrect, at); err != nil {
		return nil, fmt.Errorf("failed to complete run: %w", err)
	}
	run.Correct = correct
	run.Incorrect = incorrect
	run.CompletedAt = &at

	s.logger.Info("Completed level run",
		zap.Int64("run_id", runID),
		zap.Int("correct", correct),
		zap.Int("incorrect", incorrect))

	return run, nil
}

// RecordDecision stores a verdict and derives the risk flags from prior interactions
func (s *TrainingService) RecordDecision(ctx context.Context, userID string, req DecisionRequest) (*DecisionEvent, error) {
	if req.EmailID <= 0 {
		return nil, NewValidationError("email_id", "email_id is required")
	}
	if !req.Decision.Valid() {
		return nil, NewValidationError("decision", "unknown decision")
	}

	// Flags only count interactions since the run started, or any time without a run
	var since time.Time
	var runID int64
	if req.RunID != 0 {
		run, err := s.metrics.GetRun(ctx, req.RunID)
		switch {
		case err == nil:
			since = run.StartedAt
			runID = run.ID
		case errors.Is(err, ErrNotFound):
		default:
			return nil, fmt.Errorf("failed to look up run: %w", err)
		}
	}

	hadLink, err := s.metrics.HasInteraction(ctx, userID, req.EmailID, InteractionLinkClick, since)
	if err != nil {
		return nil, fmt.Errorf("failed to check link clicks: %w", err)
	}
	hadAttachment, err := s.metrics.HasInteraction(ctx, userID, req.EmailID, InteractionAttachmentOpen, since)
	if err != nil {
		return nil, fmt.Errorf("failed to check attachment opens: %w", err)
	}

	event := &DecisionEvent{
		UserID:            userID,
		RunID:             runID,
		EmailID:           req.EmailID,
		Decision:          req.Decision,
		WasCorrect:        req.WasCorrect,
		HadLinkClick:      hadLink,
		HadAttachmentOpen: hadAttachment,
		CreatedAt:         s.now(),
	}
	id, err := s.metrics.CreateDecision(ctx, event)
	if err != nil {
		return nil, fmt.Errorf("failed to store decision: %w", err)
	}
	event.ID = id

	return event, nil
}

// ProfileMetrics aggregates a user's completed runs and decisions
func (s *TrainingService) ProfileMetrics(ctx context.Context, userID string) (*ProfileMetrics, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, NewValidationError("user_id", "user_id is required")
	}

	runs, err := s.metrics.ListCompletedRuns(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	decisions, err := s.metrics.ListDecisions(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list decisions: %w", err)
	}

	return BuildProfileMetrics(userID, runs, decisions), nil
}

// PruneAbandonedRuns removes incomplete runs older than ttl
func (s *TrainingService) PruneAbandonedRuns(ctx context.Context, ttl time.Duration) error {
	removed, err := s.metrics.PruneAbandonedRuns(ctx, s.now().Add(-ttl))
	if err != nil {
		return fmt.Errorf("failed to prune abandoned runs: %w", err)
	}
	s.logger.Debug("Pruned abandoned runs", zap.Int64("removed_count", removed))
	return nil
}
