package core

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	MinPublishEmails = 5
	MaxPublishEmails = 20

	// DefaultDifficulty is used when no rating can be produced
	DefaultDifficulty = 3
)

// PvpLevelInput holds the author-supplied fields of a level
type PvpLevelInput struct {
	Title       string `json:"title"`
	Briefing    string `json:"briefing"`
	CompanyName string `json:"company_name"`
	RoleTitle   string `json:"role_title"`
}

// PvpEmailInput holds the author-supplied fields of a level email
type PvpEmailInput struct {
	SenderName  string   `json:"sender_name"`
	SenderEmail string   `json:"sender_email"`
	Subject     string   `json:"subject"`
	Body        string   `json:"body"`
	IsPhish     bool     `json:"is_phish"`
	Difficulty  int      `json:"difficulty"`
	Category    string   `json:"category"`
	Links       []string `json:"links"`
	Attachments []string `json:"attachments"`
	IsWave      bool     `json:"is_wave"`
	SortOrder   int      `json:"sort_order"`
}

// Validate checks the required fields and the link/attachment rule
func (in *PvpEmailInput) Validate() error {
	v := &ValidationError{Fields: map[string]string{}}
	if strings.TrimSpace(in.SenderName) == "" {
		v.Fields["sender_name"] = "required"
	}
	if _, err := mail.ParseAddress(strings.TrimSpace(in.SenderEmail)); err != nil {
		v.Fields["sender_email"] = "must be a valid address"
	}
	if strings.TrimSpace(in.Subject) == "" {
		v.Fields["subject"] = "required"
	}
	if strings.TrimSpace(in.Body) == "" {
		v.Fields["body"] = "required"
	}
	if in.Difficulty < 0 || in.Difficulty > 5 {
		v.Fields["difficulty"] = "must be between 1 and 5, or 0 to rate automatically"
	}

	links := compact(in.Links)
	attachments := compact(in.Attachments)
	switch {
	case len(links) > 0 && len(attachments) > 0:
		v.Fields["links"] = "an email carries links or attachments, not both"
	case len(links) == 0 && len(attachments) == 0:
		v.Fields["links"] = "an email needs a link or an attachment"
	}

	if len(v.Fields) > 0 {
		return v
	}
	return nil
}

func compact(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s := strings.TrimSpace(item); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// DifficultyRater turns an automated verdict into a 1..5 difficulty
type DifficultyRater struct {
	analyzer Analyzer
	logger   *zap.Logger
}

// NewDifficultyRater creates a rater; a nil analyzer always yields the default
func NewDifficultyRater(analyzer Analyzer, logger *zap.Logger) *DifficultyRater {
	return &DifficultyRater{analyzer: analyzer, logger: logger}
}

// Rate returns how hard the message is to classify correctly
func (r *DifficultyRater) Rate(ctx context.Context, msg *Message) int {
	if r == nil || r.analyzer == nil {
		return DefaultDifficulty
	}

	analysis, err := r.analyzer.AnalyzeMessage(ctx, msg)
	if err != nil {
		r.logger.Warn("Difficulty rating failed, using default",
			zap.Error(err),
			zap.String("subject", msg.Subject))
		return DefaultDifficulty
	}

	difficulty := DifficultyFromAnalysis(msg.IsPhish, analysis)
	r.logger.Debug("Rated message difficulty",
		zap.String("subject", msg.Subject),
		zap.Bool("analyzer_agrees", analysis.IsPhish == msg.IsPhish),
		zap.Float64("confidence", analysis.Confidence),
		zap.Int("difficulty", difficulty),
		zap.String("model", analysis.ModelUsed))

	return difficulty
}

// DifficultyFromAnalysis maps agreement and confidence onto a difficulty.
// A confident correct verdict means an easy message; a confident wrong one a hard message.
func DifficultyFromAnalysis(truth bool, a *Analysis) int {
	if a.IsPhish == truth {
		switch {
		case a.Confidence >= 0.8:
			return 1
		case a.Confidence >= 0.5:
			return 2
		default:
			return 3
		}
	}
	if a.Confidence >= 0.7 {
		return 5
	}
	return 4
}

// PvpService manages player-authored levels
type PvpService struct {
	repo   PvpRepository
	rater  *DifficultyRater
	logger *zap.Logger
	now    func() time.Time
}

// NewPvpService creates a new PVP service
func NewPvpService(repo PvpRepository, rater *DifficultyRater, logger *zap.Logger) *PvpService {
	return &PvpService{
		repo:   repo,
		rater:  rater,
		logger: logger,
		now:    time.Now,
	}
}

// CreateLevel stores a new unlisted level
func (s *PvpService) CreateLevel(ctx context.Context, ownerID int64, in PvpLevelInput) (*PvpLevel, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, NewValidationError("title", "required")
	}

	level := &PvpLevel{
		OwnerID:     ownerID,
		Title:       title,
		Briefing:    strings.TrimSpace(in.Briefing),
		CompanyName: strings.TrimSpace(in.CompanyName),
		RoleTitle:   strings.TrimSpace(in.RoleTitle),
		Visibility:  VisibilityUnlisted,
		CreatedAt:   s.now(),
	}
	id, err := s.repo.CreatePvpLevel(ctx, level)
	if err != nil {
		return nil, fmt.Errorf("failed to create level: %w", err)
	}
	level.ID = id

	s.logger.Info("Created PVP level",
		zap.Int64("level_id", id),
		zap.Int64("owner_id", ownerID))

	return level, nil
}

// ListMine returns the levels authored by ownerID
func (s *PvpService) ListMine(ctx context.Context, ownerID int64) ([]PvpLevel, error) {
	levels, err := s.repo.ListPvpLevelsByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list levels: %w", err)
	}
	return levels, nil
}

// ListPosted returns every posted level
func (s *PvpService) ListPosted(ctx context.Context) ([]PvpLevel, error) {
	levels, err := s.repo.ListPostedPvpLevels(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list posted levels: %w", err)
	}
	return levels, nil
}

func (s *PvpService) ownedLevel(ctx context.Context, ownerID, levelID int64) (*PvpLevel, error) {
	level, err := s.repo.GetPvpLevel(ctx, levelID)
	if err != nil {
		return nil, fmt.Errorf("level %d: %w", levelID, err)
	}
	if level.OwnerID != ownerID {
		return nil, ErrForbidden
	}
	return level, nil
}

// DeleteLevel removes a level and its emails
func (s *PvpService) DeleteLevel(ctx context.Context, ownerID, levelID int64) error {
	if _, err := s.ownedLevel(ctx, ownerID, levelID); err != nil {
		return err
	}
	if err := s.repo.DeletePvpLevel(ctx, levelID); err != nil {
		return fmt.Errorf("failed to delete level: %w", err)
	}
	return nil
}

// SetVisibility posts or unlists a level; posting enforces the content rules
func (s *PvpService) SetVisibility(ctx context.Context, ownerID, levelID int64, visibility Visibility) (*PvpLevel, error) {
	if visibility != VisibilityPosted && visibility != VisibilityUnlisted {
		return nil, NewValidationError("visibility", "must be posted or unlisted")
	}

	level, err := s.ownedLevel(ctx, ownerID, levelID)
	if err != nil {
		return nil, err
	}

	if visibility == VisibilityPosted {
		total, phish, err := s.repo.CountPvpEmails(ctx, levelID)
		if err != nil {
			return nil, fmt.Errorf("failed to count level emails: %w", err)
		}
		if total < MinPublishEmails || total > MaxPublishEmails {
			return nil, NewValidationError("emails",
				fmt.Sprintf("a posted level needs %d to %d emails, has %d", MinPublishEmails, MaxPublishEmails, total))
		}
		if phish == 0 {
			return nil, NewValidationError("emails", "a posted level needs at least one phishing email")
		}
		if phish == total {
			return nil, NewValidationError("emails", "a posted level needs at least one legitimate email")
		}
	}

	if err := s.repo.SetPvpLevelVisibility(ctx, levelID, visibility); err != nil {
		return nil, fmt.Errorf("failed to update visibility: %w", err)
	}
	level.Visibility = visibility

	s.logger.Info("Changed PVP level visibility",
		zap.Int64("level_id", levelID),
		zap.String("visibility", string(visibility)))

	return level, nil
}

// AddEmail validates and stores an email in an owned level
func (s *PvpService) AddEmail(ctx context.Context, ownerID, levelID int64, in PvpEmailInput) (*PvpEmail, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	if _, err := s.ownedLevel(ctx, ownerID, levelID); err != nil {
		return nil, err
	}
	return s.storeEmail(ctx, levelID, in)
}

// ImportEmail stores an email for a level without an owner check; used by the mail importer
func (s *PvpService) ImportEmail(ctx context.Context, levelID int64, in PvpEmailInput) (*PvpEmail, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	if _, err := s.repo.GetPvpLevel(ctx, levelID); err != nil {
		return nil, fmt.Errorf("level %d: %w", levelID, err)
	}
	return s.storeEmail(ctx, levelID, in)
}

func (s *PvpService) storeEmail(ctx context.Context, levelID int64, in PvpEmailInput) (*PvpEmail, error) {
	email := &PvpEmail{
		Message: Message{
			SenderName:  strings.TrimSpace(in.SenderName),
			SenderEmail: strings.TrimSpace(in.SenderEmail),
			Subject:     strings.TrimSpace(in.Subject),
			Body:        in.Body,
			IsPhish:     in.IsPhish,
			Difficulty:  in.Difficulty,
			Category:    strings.TrimSpace(in.Category),
			Links:       compact(in.Links),
			Attachments: compact(in.Attachments),
		},
		LevelID:   levelID,
		IsWave:    in.IsWave,
		SortOrder: in.SortOrder,
		CreatedAt: s.now(),
	}

	if email.Difficulty == 0 {
		email.Difficulty = s.rater.Rate(ctx, &email.Message)
	}

	id, err := s.repo.CreatePvpEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to store level email: %w", err)
	}
	email.ID = id

	return email, nil
}

// ListEmails returns every email of an owned level
func (s *PvpService) ListEmails(ctx context.Context, ownerID, levelID int64) ([]PvpEmail, error) {
	if _, err := s.ownedLevel(ctx, ownerID, levelID); err != nil {
		return nil, err
	}
	emails, err := s.repo.ListPvpEmails(ctx, levelID, nil, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to list level emails: %w", err)
	}
	return emails, nil
}

// DeleteEmail removes an email from an owned level
func (s *PvpService) DeleteEmail(ctx context.Context, ownerID, levelID, emailID int64) error {
	if _, err := s.ownedLevel(ctx, ownerID, levelID); err != nil {
		return err
	}
	if err := s.repo.DeletePvpEmail(ctx, levelID, emailID); err != nil {
		return fmt.Errorf("failed to delete level email: %w", err)
	}
	return nil
}

// PlayEmails returns a level's initial or wave content to a player.
// A level is playable when it is posted or owned by the player.
func (s *PvpService) PlayEmails(ctx context.Context, userID, levelID int64, limit int, wave bool) ([]Message, error) {
	level, err := s.repo.GetPvpLevel(ctx, levelID)
	if err != nil {
		return nil, fmt.Errorf("level %d: %w", levelID, err)
	}
	if level.Visibility != VisibilityPosted && level.OwnerID != userID {
		return nil, fmt.Errorf("level %d: %w", levelID, ErrNotFound)
	}

	emails, err := s.repo.ListPvpEmails(ctx, levelID, &wave, ClampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list level emails: %w", err)
	}

	msgs := make([]Message, 0, len(emails))
	for _, e := range emails {
		msgs = append(msgs, e.Message)
	}
	return msgs, nil
}
