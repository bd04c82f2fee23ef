package core

import (
	"context"
	"time"
)

// ContentAPI is the remote content and telemetry service a player talks to
type ContentAPI interface {
	// FetchMessages returns a batch of arcade or simulation messages
	FetchMessages(ctx context.Context, creds Credentials, q MessageQuery) ([]Message, error)

	// FetchPvpMessages returns a batch of messages from a player-authored level
	FetchPvpMessages(ctx context.Context, creds Credentials, levelID int64, limit int, wave bool) ([]Message, error)

	// SubmitDecision records a verdict on a message
	SubmitDecision(ctx context.Context, creds Credentials, req DecisionRequest) error

	// SubmitInteraction records a link click or attachment open
	SubmitInteraction(ctx context.Context, creds Credentials, req InteractionRequest) error

	// SubmitResult updates the player's lifetime progress
	SubmitResult(ctx context.Context, creds Credentials, correct bool) error

	// StartRun opens a server-side run record and returns its id
	StartRun(ctx context.Context, creds Credentials, req StartRunRequest) (int64, error)

	// CompleteRun finalizes a server-side run record
	CompleteRun(ctx context.Context, creds Credentials, runID int64, correct, incorrect int) error

	// FetchScenarios lists the simulation scenarios
	FetchScenarios(ctx context.Context, creds Credentials) ([]Scenario, error)

	// FetchProfileMetrics returns aggregated metrics for a player
	FetchProfileMetrics(ctx context.Context, creds Credentials, userID string) (*ProfileMetrics, error)
}

// Analyzer produces an automated phishing verdict for a message
type Analyzer interface {
	// AnalyzeMessage judges whether a message is phishing
	AnalyzeMessage(ctx context.Context, msg *Message) (*Analysis, error)
}

// UserRepository persists player accounts
type UserRepository interface {
	CreateUser(ctx context.Context, user *User) (int64, error)
	GetUserByUsername(ctx context.Context, username string) (*User, error)
	GetUserByID(ctx context.Context, id int64) (*User, error)
}

// ContentRepository persists scenarios and level content
type ContentRepository interface {
	CreateScenario(ctx context.Context, scenario *Scenario) (int64, error)
	ListScenarios(ctx context.Context) ([]Scenario, error)
	GetScenario(ctx context.Context, id int64) (*Scenario, error)
	CreateEmail(ctx context.Context, email *LevelEmail) (int64, error)
	GetEmail(ctx context.Context, id int64) (*LevelEmail, error)

	// LevelExists reports whether any content is placed at the scenario and level;
	// a zero scenario id matches any scenario
	LevelExists(ctx context.Context, scenarioID int64, level int) (bool, error)

	// ListLevelEmails returns simulation content ordered by sort order then id
	ListLevelEmails(ctx context.Context, scenarioID int64, level int, wave bool, limit int) ([]Message, error)

	// ListArcadeEmails returns arcade content in random order
	ListArcadeEmails(ctx context.Context, limit int) ([]Message, error)
}

// MetricsRepository persists progress, interactions, runs and decisions
type MetricsRepository interface {
	RecordResult(ctx context.Context, userID string, correct bool) (*UserProgress, error)
	CreateInteraction(ctx context.Context, event *InteractionEvent) (int64, error)

	// HasInteraction reports whether the user had an interaction of kind with
	// the email at or after since
	HasInteraction(ctx context.Context, userID string, emailID int64, kind InteractionKind, since time.Time) (bool, error)

	CreateRun(ctx context.Context, run *LevelRun) (int64, error)
	GetRun(ctx context.Context, id int64) (*LevelRun, error)
	CompleteRun(ctx context.Context, id int64, correct, incorrect int, at time.Time) error
	CreateDecision(ctx context.Context, event *DecisionEvent) (int64, error)

	// ListCompletedRuns returns the user's completed simulation runs, newest first
	ListCompletedRuns(ctx context.Context, userID string) ([]LevelRun, error)

	// ListDecisions returns the user's decisions, newest first
	ListDecisions(ctx context.Context, userID string) ([]DecisionEvent, error)

	// PruneAbandonedRuns deletes incomplete runs started before cutoff
	PruneAbandonedRuns(ctx context.Context, cutoff time.Time) (int64, error)
}

// PvpRepository persists player-authored levels and their emails
type PvpRepository interface {
	CreatePvpLevel(ctx context.Context, level *PvpLevel) (int64, error)
	GetPvpLevel(ctx context.Context, id int64) (*PvpLevel, error)
	ListPvpLevelsByOwner(ctx context.Context, ownerID int64) ([]PvpLevel, error)
	ListPostedPvpLevels(ctx context.Context) ([]PvpLevel, error)
	SetPvpLevelVisibility(ctx context.Context, id int64, visibility Visibility) error
	DeletePvpLevel(ctx context.Context, id int64) error
	CreatePvpEmail(ctx context.Context, email *PvpEmail) (int64, error)

	// ListPvpEmails returns the level's emails ordered by wave flag, sort order
	// and id; a nil wave matches both
	ListPvpEmails(ctx context.Context, levelID int64, wave *bool, limit int) ([]PvpEmail, error)

	DeletePvpEmail(ctx context.Context, levelID, emailID int64) error

	// CountPvpEmails returns the total and phishing email counts of a level
	CountPvpEmails(ctx context.Context, levelID int64) (total int, phish int, err error)
}

// Store aggregates every repository a server needs
type Store interface {
	UserRepository
	ContentRepository
	MetricsRepository
	PvpRepository

	// Close releases the underlying resources
	Close() error
}
