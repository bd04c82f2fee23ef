package seed

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BuddyGames04/gamified-phishing-awareness-platform/internal/core"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// waveSortBase offsets wave emails after the initial batch of a level
const waveSortBase = 100

// File is the YAML content catalogue
type File struct {
	Scenarios []ScenarioSeed `yaml:"scenarios"`
	Levels    []LevelSeed    `yaml:"levels"`
	Arcade    []EmailSeed    `yaml:"arcade"`
}

// ScenarioSeed describes a fictional workplace; Key links levels to it
type ScenarioSeed struct {
	Key              string   `yaml:"key"`
	CompanyName      string   `yaml:"company_name"`
	Sector           string   `yaml:"sector"`
	RoleTitle        string   `yaml:"role_title"`
	DepartmentName   string   `yaml:"department_name"`
	LineManagerName  string   `yaml:"line_manager_name"`
	Responsibilities []string `yaml:"responsibilities"`
	IntroText        string   `yaml:"intro_text"`
}

// LevelSeed is one simulation level of a scenario
type LevelSeed struct {
	Scenario   string      `yaml:"scenario"`
	Number     int         `yaml:"number"`
	Title      string      `yaml:"title"`
	Briefing   string      `yaml:"briefing"`
	Emails     []EmailSeed `yaml:"emails"`
	WaveEmails []EmailSeed `yaml:"wave_emails"`
}

// EmailSeed is one message of the catalogue
type EmailSeed struct {
	SenderName  string   `yaml:"sender_name"`
	SenderEmail string   `yaml:"sender_email"`
	Subject     string   `yaml:"subject"`
	Body        string   `yaml:"body"`
	IsPhish     bool     `yaml:"is_phish"`
	Difficulty  int      `yaml:"difficulty"`
	Category    string   `yaml:"category"`
	Links       []string `yaml:"links"`
	Attachments []string `yaml:"attachments"`
}

func (e EmailSeed) validate(where string) error {
	in := core.PvpEmailInput{
		SenderName:  e.SenderName,
		SenderEmail: e.SenderEmail,
		Subject:     e.Subject,
		Body:        e.Body,
		Difficulty:  clampDifficulty(e.Difficulty),
		Links:       e.Links,
		Attachments: e.Attachments,
	}
	if err := in.Validate(); err != nil {
		return fmt.Errorf("%s: %w", where, err)
	}
	return nil
}

func (e EmailSeed) message() core.Message {
	return core.Message{
		SenderName:  strings.TrimSpace(e.SenderName),
		SenderEmail: strings.TrimSpace(e.SenderEmail),
		Subject:     strings.TrimSpace(e.Subject),
		Body:        e.Body,
		IsPhish:     e.IsPhish,
		Difficulty:  clampDifficulty(e.Difficulty),
		Category:    e.Category,
		Links:       e.Links,
		Attachments: e.Attachments,
	}
}

func clampDifficulty(d int) int {
	switch {
	case d < 1:
		return 1
	case d > 5:
		return 5
	}
	return d
}

// Parse decodes and validates a catalogue
func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse content: %w", err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// LoadFile reads and validates a catalogue from disk
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read content file: %w", err)
	}
	return Parse(data)
}

// Validate checks scenario references and every email
func (f *File) Validate() error {
	keys := make(map[string]bool, len(f.Scenarios))
	for i, s := range f.Scenarios {
		if s.Key == "" || s.CompanyName == "" {
			return fmt.Errorf("scenario %d: key and company_name are required", i)
		}
		if keys[s.Key] {
			return fmt.Errorf("scenario %q: duplicate key", s.Key)
		}
		keys[s.Key] = true
	}

	type levelKey struct {
		scenario string
		number   int
	}
	seen := make(map[levelKey]bool, len(f.Levels))
	for _, l := range f.Levels {
		if !keys[l.Scenario] {
			return fmt.Errorf("level %d: unknown scenario %q", l.Number, l.Scenario)
		}
		if l.Number <= 0 {
			return fmt.Errorf("level of scenario %q: number must be positive", l.Scenario)
		}
		k := levelKey{l.Scenario, l.Number}
		if seen[k] {
			return fmt.Errorf("level %d of scenario %q: duplicate level", l.Number, l.Scenario)
		}
		seen[k] = true

		if len(l.Emails) == 0 {
			return fmt.Errorf("level %d of scenario %q: no emails", l.Number, l.Scenario)
		}
		for i, e := range l.Emails {
			if err := e.validate(fmt.Sprintf("%s level %d email %d", l.Scenario, l.Number, i)); err != nil {
				return err
			}
		}
		for i, e := range l.WaveEmails {
			if err := e.validate(fmt.Sprintf("%s level %d wave email %d", l.Scenario, l.Number, i)); err != nil {
				return err
			}
		}
	}

	for i, e := range f.Arcade {
		if err := e.validate(fmt.Sprintf("arcade email %d", i)); err != nil {
			return err
		}
	}
	return nil
}

// Result counts what a seeding pass created
type Result struct {
	ScenariosCreated int
	LevelsCreated    int
	LevelsSkipped    int
	EmailsCreated    int
}

// Seeder writes a catalogue into content storage.
// Scenarios match by company name and levels that already have content are skipped.
type Seeder struct {
	repo   core.ContentRepository
	logger *zap.Logger
	now    func() time.Time
}

// NewSeeder creates a seeder
func NewSeeder(repo core.ContentRepository, logger *zap.Logger) *Seeder {
	return &Seeder{repo: repo, logger: logger, now: time.Now}
}

// Apply seeds the catalogue
func (s *Seeder) Apply(ctx context.Context, f *File) (*Result, error) {
	res := &Result{}

	existing, err := s.repo.ListScenarios(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list scenarios: %w", err)
	}
	byCompany := make(map[string]int64, len(existing))
	for _, sc := range existing {
		byCompany[strings.ToLower(sc.CompanyName)] = sc.ID
	}

	ids := make(map[string]int64, len(f.Scenarios))
	for _, sc := range f.Scenarios {
		if id, ok := byCompany[strings.ToLower(sc.CompanyName)]; ok {
			ids[sc.Key] = id
			continue
		}
		id, err := s.repo.CreateScenario(ctx, &core.Scenario{
			CompanyName:      sc.CompanyName,
			Sector:           sc.Sector,
			RoleTitle:        sc.RoleTitle,
			DepartmentName:   sc.DepartmentName,
			LineManagerName:  sc.LineManagerName,
			Responsibilities: sc.Responsibilities,
			IntroText:        strings.TrimSpace(sc.IntroText),
			CreatedAt:        s.now(),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create scenario %q: %w", sc.Key, err)
		}
		ids[sc.Key] = id
		res.ScenariosCreated++
	}

	for _, l := range f.Levels {
		scenarioID := ids[l.Scenario]
		ok, err := s.repo.LevelExists(ctx, scenarioID, l.Number)
		if err != nil {
			return nil, fmt.Errorf("failed to check level %d: %w", l.Number, err)
		}
		if ok {
			res.LevelsSkipped++
			continue
		}

		for i, e := range l.Emails {
			if err := s.createEmail(ctx, e, core.ModeSimulation, scenarioID, l.Number, i, false); err != nil {
				return nil, err
			}
			res.EmailsCreated++
		}
		for i, e := range l.WaveEmails {
			if err := s.createEmail(ctx, e, core.ModeSimulation, scenarioID, l.Number, waveSortBase+i, true); err != nil {
				return nil, err
			}
			res.EmailsCreated++
		}
		res.LevelsCreated++

		s.logger.Debug("Seeded level",
			zap.String("scenario", l.Scenario),
			zap.Int("level", l.Number),
			zap.Int("email_count", len(l.Emails)),
			zap.Int("wave_count", len(l.WaveEmails)))
	}

	if len(f.Arcade) > 0 {
		arcade, err := s.repo.ListArcadeEmails(ctx, 1)
		if err != nil {
			return nil, fmt.Errorf("failed to check arcade content: %w", err)
		}
		if len(arcade) == 0 {
			for i, e := range f.Arcade {
				if err := s.createEmail(ctx, e, core.ModeArcade, 0, 0, i, false); err != nil {
					return nil, err
				}
				res.EmailsCreated++
			}
		}
	}

	s.logger.Info("Seeded content",
		zap.Int("scenarios_created", res.ScenariosCreated),
		zap.Int("levels_created", res.LevelsCreated),
		zap.Int("levels_skipped", res.LevelsSkipped),
		zap.Int("emails_created", res.EmailsCreated))

	return res, nil
}

func (s *Seeder) createEmail(ctx context.Context, e EmailSeed, mode core.Mode, scenarioID int64, level, sortOrder int, wave bool) error {
	_, err := s.repo.CreateEmail(ctx, &core.LevelEmail{
		Message:     e.message(),
		Mode:        mode,
		ScenarioID:  scenarioID,
		LevelNumber: level,
		SortOrder:   sortOrder,
		IsWave:      wave,
		CreatedAt:   s.now(),
	})
	if err != nil {
		return fmt.Errorf("failed to create email %q: %w", e.Subject, err)
	}
	return nil
}

// ErrNoContent is returned by LoadDefault when no catalogue path is configured
var ErrNoContent = errors.New("no content file configured")

// LoadDefault loads path, or returns ErrNoContent for an empty path
func LoadDefault(path string) (*File, error) {
	if strings.TrimSpace(path) == "" {
		return nil, ErrNoContent
	}
	return LoadFile(path)
}
