package store

import (
	"context"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/BuddyGames04/gamified-phishing-awareness-platform/internal/core"
	"go.uber.org/zap"
)

// MemoryStore is an in-memory implementation of core.Store
type MemoryStore struct {
	mu sync.RWMutex

	users        map[int64]*core.User
	scenarios    map[int64]*core.Scenario
	emails       map[int64]*core.LevelEmail
	progress     map[string]*core.UserProgress
	interactions []core.InteractionEvent
	runs         map[int64]*core.LevelRun
	decisions    []core.DecisionEvent
	pvpLevels    map[int64]*core.PvpLevel
	pvpEmails    map[int64]*core.PvpEmail
	nextID       int64

	logger      *zap.Logger
	cleanupFreq time.Duration
	runTTL      time.Duration
	stopCh      chan struct{}
	stopOnce    sync.Once
}

// NewMemoryStore creates a new in-memory store; a zero cleanupFreq disables run pruning
func NewMemoryStore(logger *zap.Logger, cleanupFreq, runTTL time.Duration) *MemoryStore {
	s := &MemoryStore{
		users:       make(map[int64]*core.User),
		scenarios:   make(map[int64]*core.Scenario),
		emails:      make(map[int64]*core.LevelEmail),
		progress:    make(map[string]*core.UserProgress),
		runs:        make(map[int64]*core.LevelRun),
		pvpLevels:   make(map[int64]*core.PvpLevel),
		pvpEmails:   make(map[int64]*core.PvpEmail),
		logger:      logger,
		cleanupFreq: cleanupFreq,
		runTTL:      runTTL,
		stopCh:      make(chan struct{}),
	}

	if cleanupFreq > 0 && runTTL > 0 {
		go runCleanupTask(s, logger, cleanupFreq, runTTL, s.stopCh)
	}

	return s
}

// id must be called with the write lock held
func (s *MemoryStore) id() int64 {
	s.nextID++
	return s.nextID
}

func copyStrings(in []string) []string {
	if in == nil {
		return []string{}
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func copyMessage(m core.Message) core.Message {
	m.Links = copyStrings(m.Links)
	m.Attachments = copyStrings(m.Attachments)
	return m
}

// CreateUser stores a new user; usernames are unique case-insensitively
func (s *MemoryStore) CreateUser(ctx context.Context, user *core.User) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if strings.EqualFold(u.Username, user.Username) {
			return 0, core.ErrConflict
		}
	}

	u := *user
	u.ID = s.id()
	s.users[u.ID] = &u
	return u.ID, nil
}

// GetUserByUsername looks a user up by name
func (s *MemoryStore) GetUserByUsername(ctx context.Context, username string) (*core.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if strings.EqualFold(u.Username, username) {
			out := *u
			return &out, nil
		}
	}
	return nil, core.ErrNotFound
}

// GetUserByID looks a user up by id
func (s *MemoryStore) GetUserByID(ctx context.Context, id int64) (*core.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	out := *u
	return &out, nil
}

// CreateScenario stores a scenario
func (s *MemoryStore) CreateScenario(ctx context.Context, scenario *core.Scenario) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sc := *scenario
	sc.ID = s.id()
	sc.Responsibilities = copyStrings(sc.Responsibilities)
	s.scenarios[sc.ID] = &sc
	return sc.ID, nil
}

// ListScenarios returns every scenario ordered by id
func (s *MemoryStore) ListScenarios(ctx context.Context) ([]core.Scenario, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]core.Scenario, 0, len(s.scenarios))
	for _, sc := range s.scenarios {
		c := *sc
		c.Responsibilities = copyStrings(sc.Responsibilities)
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// GetScenario returns a scenario by id
func (s *MemoryStore) GetScenario(ctx context.Context, id int64) (*core.Scenario, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sc, ok := s.scenarios[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	out := *sc
	out.Responsibilities = copyStrings(sc.Responsibilities)
	return &out, nil
}

// CreateEmail stores level or arcade content
func (s *MemoryStore) CreateEmail(ctx context.Context, email *core.LevelEmail) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := *email
	e.Message = copyMessage(email.Message)
	e.ID = s.id()
	s.emails[e.ID] = &e
	return e.ID, nil
}

// GetEmail returns stored content by id
func (s *MemoryStore) GetEmail(ctx context.Context, id int64) (*core.LevelEmail, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.emails[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	out := *e
	out.Message = copyMessage(e.Message)
	return &out, nil
}

func matchesLevel(e *core.LevelEmail, scenarioID int64, level int) bool {
	if e.Mode != core.ModeSimulation || e.LevelNumber != level {
		return false
	}
	return scenarioID == 0 || e.ScenarioID == scenarioID
}

// LevelExists reports whether content is placed at the scenario and level
func (s *MemoryStore) LevelExists(ctx context.Context, scenarioID int64, level int) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, e := range s.emails {
		if matchesLevel(e, scenarioID, level) {
			return true, nil
		}
	}
	return false, nil
}

// ListLevelEmails returns simulation content ordered by sort order then id
func (s *MemoryStore) ListLevelEmails(ctx context.Context, scenarioID int64, level int, wave bool, limit int) ([]core.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]*core.LevelEmail, 0)
	for _, e := range s.emails {
		if matchesLevel(e, scenarioID, level) && e.IsWave == wave {
			matched = append(matched, e)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].SortOrder != matched[j].SortOrder {
			return matched[i].SortOrder < matched[j].SortOrder
		}
		return matched[i].ID < matched[j].ID
	})

	out := make([]core.Message, 0, len(matched))
	for _, e := range matched {
		if limit > 0 && len(out) >= limit {
			break
		}
		out = append(out, copyMessage(e.Message))
	}
	return out, nil
}

// ListArcadeEmails returns arcade content in random order
func (s *MemoryStore) ListArcadeEmails(ctx context.Context, limit int) ([]core.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]core.Message, 0)
	for _, e := range s.emails {
		if e.Mode == core.ModeArcade {
			out = append(out, copyMessage(e.Message))
		}
	}
	rand.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// RecordResult applies one attempt to the user's progress
func (s *MemoryStore) RecordResult(ctx context.Context, userID string, correct bool) (*core.UserProgress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.progress[userID]
	if !ok {
		p = &core.UserProgress{UserID: userID}
		s.progress[userID] = p
	}
	core.ApplyResult(p, correct)
	p.LastUpdated = time.Now()

	out := *p
	return &out, nil
}

// CreateInteraction stores an interaction event
func (s *MemoryStore) CreateInteraction(ctx context.Context, event *core.InteractionEvent) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := *event
	e.ID = s.id()
	s.interactions = append(s.interactions, e)
	return e.ID, nil
}

// HasInteraction reports whether a matching interaction happened at or after since
func (s *MemoryStore) HasInteraction(ctx context.Context, userID string, emailID int64, kind core.InteractionKind, since time.Time) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, e := range s.interactions {
		if e.UserID == userID && e.EmailID == emailID && e.Kind == kind && !e.CreatedAt.Before(since) {
			return true, nil
		}
	}
	return false, nil
}

// CreateRun stores a run record
func (s *MemoryStore) CreateRun(ctx context.Context, run *core.LevelRun) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := *run
	r.ID = s.id()
	s.runs[r.ID] = &r
	return r.ID, nil
}

// GetRun returns a run by id
func (s *MemoryStore) GetRun(ctx context.Context, id int64) (*core.LevelRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.runs[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	out := *r
	return &out, nil
}

// CompleteRun finalizes an open run
func (s *MemoryStore) CompleteRun(ctx context.Context, id int64, correct, incorrect int, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.runs[id]
	if !ok {
		return core.ErrNotFound
	}
	if r.Completed() {
		return core.ErrRunAlreadyCompleted
	}
	r.Correct = correct
	r.Incorrect = incorrect
	r.CompletedAt = &at
	return nil
}

// CreateDecision stores a decision event
func (s *MemoryStore) CreateDecision(ctx context.Context, event *core.DecisionEvent) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := *event
	e.ID = s.id()
	s.decisions = append(s.decisions, e)
	return e.ID, nil
}

// ListCompletedRuns returns completed simulation runs, newest first
func (s *MemoryStore) ListCompletedRuns(ctx context.Context, userID string) ([]core.LevelRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]core.LevelRun, 0)
	for _, r := range s.runs {
		if r.UserID == userID && r.Mode == core.ModeSimulation && r.Completed() {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CompletedAt.Equal(*out[j].CompletedAt) {
			return out[i].CompletedAt.After(*out[j].CompletedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

// ListDecisions returns the user's decisions, newest first
func (s *MemoryStore) ListDecisions(ctx context.Context, userID string) ([]core.DecisionEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]core.DecisionEvent, 0)
	for i := len(s.decisions) - 1; i >= 0; i-- {
		if s.decisions[i].UserID == userID {
			out = append(out, s.decisions[i])
		}
	}
	return out, nil
}

// PruneAbandonedRuns deletes incomplete runs started before cutoff
func (s *MemoryStore) PruneAbandonedRuns(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed int64
	for id, r := range s.runs {
		if !r.Completed() && r.StartedAt.Before(cutoff) {
			delete(s.runs, id)
			removed++
		}
	}
	return removed, nil
}

// CreatePvpLevel stores a player-authored level
func (s *MemoryStore) CreatePvpLevel(ctx context.Context, level *core.PvpLevel) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l := *level
	l.ID = s.id()
	s.pvpLevels[l.ID] = &l
	return l.ID, nil
}

// GetPvpLevel returns a level by id
func (s *MemoryStore) GetPvpLevel(ctx context.Context, id int64) (*core.PvpLevel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	l, ok := s.pvpLevels[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	out := *l
	return &out, nil
}

func (s *MemoryStore) listLevels(keep func(*core.PvpLevel) bool) []core.PvpLevel {
	out := make([]core.PvpLevel, 0)
	for _, l := range s.pvpLevels {
		if keep(l) {
			out = append(out, *l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out
}

// ListPvpLevelsByOwner returns the owner's levels, newest first
func (s *MemoryStore) ListPvpLevelsByOwner(ctx context.Context, ownerID int64) ([]core.PvpLevel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.listLevels(func(l *core.PvpLevel) bool { return l.OwnerID == ownerID }), nil
}

// ListPostedPvpLevels returns posted levels, newest first
func (s *MemoryStore) ListPostedPvpLevels(ctx context.Context) ([]core.PvpLevel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.listLevels(func(l *core.PvpLevel) bool { return l.Visibility == core.VisibilityPosted }), nil
}

// SetPvpLevelVisibility updates a level's visibility
func (s *MemoryStore) SetPvpLevelVisibility(ctx context.Context, id int64, visibility core.Visibility) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.pvpLevels[id]
	if !ok {
		return core.ErrNotFound
	}
	l.Visibility = visibility
	return nil
}

// DeletePvpLevel removes a level and its emails
func (s *MemoryStore) DeletePvpLevel(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.pvpLevels[id]; !ok {
		return core.ErrNotFound
	}
	delete(s.pvpLevels, id)
	for eid, e := range s.pvpEmails {
		if e.LevelID == id {
			delete(s.pvpEmails, eid)
		}
	}
	return nil
}

// CreatePvpEmail stores an email in a level
func (s *MemoryStore) CreatePvpEmail(ctx context.Context, email *core.PvpEmail) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.pvpLevels[email.LevelID]; !ok {
		return 0, core.ErrNotFound
	}
	e := *email
	e.Message = copyMessage(email.Message)
	e.ID = s.id()
	s.pvpEmails[e.ID] = &e
	return e.ID, nil
}

// ListPvpEmails returns a level's emails ordered by wave flag, sort order and id
func (s *MemoryStore) ListPvpEmails(ctx context.Context, levelID int64, wave *bool, limit int) ([]core.PvpEmail, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]core.PvpEmail, 0)
	for _, e := range s.pvpEmails {
		if e.LevelID != levelID {
			continue
		}
		if wave != nil && e.IsWave != *wave {
			continue
		}
		c := *e
		c.Message = copyMessage(e.Message)
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].IsWave != out[j].IsWave {
			return !out[i].IsWave
		}
		if out[i].SortOrder != out[j].SortOrder {
			return out[i].SortOrder < out[j].SortOrder
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// DeletePvpEmail removes an email from a level
func (s *MemoryStore) DeletePvpEmail(ctx context.Context, levelID, emailID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.pvpEmails[emailID]
	if !ok || e.LevelID != levelID {
		return core.ErrNotFound
	}
	delete(s.pvpEmails, emailID)
	return nil
}

// CountPvpEmails returns the total and phishing email counts of a level
func (s *MemoryStore) CountPvpEmails(ctx context.Context, levelID int64) (int, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total, phish := 0, 0
	for _, e := range s.pvpEmails {
		if e.LevelID != levelID {
			continue
		}
		total++
		if e.IsPhish {
			phish++
		}
	}
	return total, phish, nil
}

// Close stops the background cleanup task
func (s *MemoryStore) Close() error {
	s.stopOnce.Do(func() { close(s.stopCh) })
	return nil
}
