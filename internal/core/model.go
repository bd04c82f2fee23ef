package core

import (
	"time"
)

// Mode identifies how a run is played
type Mode string

const (
	ModeArcade     Mode = "arcade"
	ModeSimulation Mode = "simulation"
	ModePvP        Mode = "pvp"
)

// ParseMode converts a raw mode string into a Mode
func ParseMode(raw string) (Mode, error) {
	switch Mode(raw) {
	case ModeArcade, ModeSimulation, ModePvP:
		return Mode(raw), nil
	default:
		return "", ErrInvalidMode
	}
}

// SupportsWaves reports whether a mode can receive a mid-run wave
func (m Mode) SupportsWaves() bool {
	return m == ModeSimulation || m == ModePvP
}

// TracksOpens reports whether a mode gates "mark safe/read" on an interaction
func (m Mode) TracksOpens() bool {
	return m == ModeSimulation || m == ModePvP
}

// DecisionKind is the verdict a player gives on a message
type DecisionKind string

const (
	DecisionReportPhish DecisionKind = "report_phish"
	DecisionMarkSafe    DecisionKind = "mark_safe"
	DecisionMarkRead    DecisionKind = "mark_read"
)

// DecisionKindFor maps a guess onto the decision kind reported for a mode
func DecisionKindFor(mode Mode, guessMalicious bool) DecisionKind {
	if guessMalicious {
		return DecisionReportPhish
	}
	if mode == ModeArcade {
		return DecisionMarkSafe
	}
	return DecisionMarkRead
}

// Valid reports whether the decision kind is known
func (d DecisionKind) Valid() bool {
	switch d {
	case DecisionReportPhish, DecisionMarkSafe, DecisionMarkRead:
		return true
	}
	return false
}

// InteractionKind is the type of risky interaction a player had with a message
type InteractionKind string

const (
	InteractionLinkClick      InteractionKind = "link_click"
	InteractionAttachmentOpen InteractionKind = "attachment_open"
)

// Valid reports whether the interaction kind is known
func (k InteractionKind) Valid() bool {
	return k == InteractionLinkClick || k == InteractionAttachmentOpen
}

// Message represents an email shown in the inbox
type Message struct {
	ID          int64    `json:"id"`
	SenderName  string   `json:"sender_name"`
	SenderEmail string   `json:"sender_email"`
	Subject     string   `json:"subject"`
	Body        string   `json:"body"`
	IsPhish     bool     `json:"is_phish"`
	Difficulty  int      `json:"difficulty"`
	Category    string   `json:"category,omitempty"`
	Links       []string `json:"links"`
	Attachments []string `json:"attachments"`
}

// HasLink reports whether url is one of the message's links
func (m *Message) HasLink(url string) bool {
	for _, l := range m.Links {
		if l == url {
			return true
		}
	}
	return false
}

// HasAttachment reports whether name is one of the message's attachments
func (m *Message) HasAttachment(name string) bool {
	for _, a := range m.Attachments {
		if a == name {
			return true
		}
	}
	return false
}

// LevelEmail is a stored message together with its placement in the game
type LevelEmail struct {
	Message
	Mode        Mode
	ScenarioID  int64
	LevelNumber int
	SortOrder   int
	IsWave      bool
	CreatedAt   time.Time
}

// Scenario describes the fictional workplace a simulation level is set in
type Scenario struct {
	ID               int64     `json:"id"`
	CompanyName      string    `json:"company_name"`
	Sector           string    `json:"sector"`
	RoleTitle        string    `json:"role_title"`
	DepartmentName   string    `json:"department_name"`
	LineManagerName  string    `json:"line_manager_name"`
	Responsibilities []string  `json:"responsibilities"`
	IntroText        string    `json:"intro_text"`
	CreatedAt        time.Time `json:"created_at"`
}

// Credentials identify the player on every Content API call
type Credentials struct {
	UserID string
	Token  string
}

// User is a registered player account
type User struct {
	ID           int64
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

// UserProgress tracks a player's lifetime score
type UserProgress struct {
	UserID        string    `json:"user_id"`
	Score         int       `json:"score"`
	Correct       int       `json:"correct"`
	Incorrect     int       `json:"incorrect"`
	TotalAttempts int       `json:"total_attempts"`
	LastUpdated   time.Time `json:"last_updated"`
}

// InteractionEvent records a link click or attachment open
type InteractionEvent struct {
	ID        int64           `json:"id"`
	UserID    string          `json:"user_id"`
	EmailID   int64           `json:"email_id"`
	Mode      Mode            `json:"mode"`
	Kind      InteractionKind `json:"event_type"`
	Value     string          `json:"value"`
	CreatedAt time.Time       `json:"created_at"`
}

// LevelRun is the server-side record of a simulation run
type LevelRun struct {
	ID          int64      `json:"id"`
	UserID      string     `json:"user_id"`
	Mode        Mode       `json:"mode"`
	ScenarioID  int64      `json:"scenario_id,omitempty"`
	LevelNumber int        `json:"level_number"`
	EmailsTotal int        `json:"emails_total"`
	Correct     int        `json:"correct"`
	Incorrect   int        `json:"incorrect"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Completed reports whether the run has been finalized
func (r *LevelRun) Completed() bool {
	return r.CompletedAt != nil
}

// DecisionEvent records a verdict together with server-computed risk flags
type DecisionEvent struct {
	ID                int64        `json:"id"`
	UserID            string       `json:"user_id"`
	RunID             int64        `json:"run_id,omitempty"`
	EmailID           int64        `json:"email_id"`
	Decision          DecisionKind `json:"decision"`
	WasCorrect        bool         `json:"was_correct"`
	HadLinkClick      bool         `json:"had_link_click"`
	HadAttachmentOpen bool         `json:"had_attachment_open"`
	CreatedAt         time.Time    `json:"created_at"`
}

// MessageQuery selects a batch of messages for a run
type MessageQuery struct {
	Mode       Mode
	ScenarioID int64
	Level      int
	Limit      int
	Wave       bool
}

// DecisionRequest is the decision telemetry sent by a client
type DecisionRequest struct {
	RunID      int64        `json:"run_id,omitempty"`
	EmailID    int64        `json:"email_id"`
	Decision   DecisionKind `json:"decision"`
	WasCorrect bool         `json:"was_correct"`
}

// InteractionRequest is the interaction telemetry sent by a client
type InteractionRequest struct {
	EmailID int64           `json:"email_id"`
	Kind    InteractionKind `json:"event_type"`
	Value   string          `json:"value"`
	Mode    Mode            `json:"mode"`
}

// StartRunRequest opens a server-side run record
type StartRunRequest struct {
	Mode        Mode  `json:"mode"`
	ScenarioID  int64 `json:"scenario_id,omitempty"`
	LevelNumber int   `json:"level_number"`
	EmailsTotal int   `json:"emails_total"`
}

// Visibility controls who can play a PVP level
type Visibility string

const (
	VisibilityUnlisted Visibility = "unlisted"
	VisibilityPosted   Visibility = "posted"
)

// PvpLevel is a player-authored level
type PvpLevel struct {
	ID          int64      `json:"id"`
	OwnerID     int64      `json:"owner_id"`
	Title       string     `json:"title"`
	Briefing    string     `json:"briefing"`
	CompanyName string     `json:"company_name"`
	RoleTitle   string     `json:"role_title"`
	Visibility  Visibility `json:"visibility"`
	CreatedAt   time.Time  `json:"created_at"`
}

// PvpEmail is a message inside a player-authored level
type PvpEmail struct {
	Message
	LevelID   int64     `json:"level_id"`
	IsWave    bool      `json:"is_wave"`
	SortOrder int       `json:"sort_order"`
	CreatedAt time.Time `json:"created_at"`
}

// Analysis is an automated phishing verdict on a message
type Analysis struct {
	IsPhish     bool
	Confidence  float64
	Explanation string
	AnalyzedAt  time.Time
	ModelUsed   string
}
