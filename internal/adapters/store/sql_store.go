package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/BuddyGames04/gamified-phishing-awareness-platform/internal/core"
	"go.uber.org/zap"
)

// SQLStore is a database/sql implementation of core.Store for SQLite, MySQL and PostgreSQL
type SQLStore struct {
	db       *sql.DB
	d        dialect
	logger   *zap.Logger
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewSQLiteStore opens (and migrates) a SQLite database file
func NewSQLiteStore(dbPath string, logger *zap.Logger, cleanupFreq, runTTL time.Duration) (*SQLStore, error) {
	return openSQLStore(sqliteDialect, dbPath, logger, cleanupFreq, runTTL)
}

// NewMySQLStore opens (and migrates) a MySQL database
func NewMySQLStore(dsn string, logger *zap.Logger, cleanupFreq, runTTL time.Duration) (*SQLStore, error) {
	dsn, err := mysqlDSN(dsn)
	if err != nil {
		return nil, err
	}
	return openSQLStore(mysqlDialect, dsn, logger, cleanupFreq, runTTL)
}

// NewPostgresStore opens (and migrates) a PostgreSQL database
func NewPostgresStore(dsn string, logger *zap.Logger, cleanupFreq, runTTL time.Duration) (*SQLStore, error) {
	return openSQLStore(postgresDialect, dsn, logger, cleanupFreq, runTTL)
}

func openSQLStore(d dialect, dsn string, logger *zap.Logger, cleanupFreq, runTTL time.Duration) (*SQLStore, error) {
	db, err := sql.Open(d.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", d.name, err)
	}

	if d.name == "sqlite" {
		// A single connection keeps in-memory databases shared and avoids SQLITE_BUSY
		db.SetMaxOpenConns(1)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to %s database: %w", d.name, err)
	}

	s := &SQLStore{
		db:     db,
		d:      d,
		logger: logger,
		stopCh: make(chan struct{}),
	}

	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}

	if cleanupFreq > 0 && runTTL > 0 {
		go runCleanupTask(s, logger, cleanupFreq, runTTL, s.stopCh)
	}

	logger.Info("Opened SQL store", zap.String("dialect", d.name))
	return s, nil
}

func (s *SQLStore) migrate(ctx context.Context) error {
	stmts := append([]string{}, s.d.extraStmts...)
	for _, t := range schemaTables {
		stmts = append(stmts, s.d.columns.Replace(t))
	}
	if s.d.name != "mysql" {
		stmts = append(stmts, schemaIndexes...)
	}

	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

func (s *SQLStore) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.db.ExecContext(ctx, s.d.rebind(query), args...)
}

func (s *SQLStore) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, s.d.rebind(query), args...)
}

func (s *SQLStore) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return s.db.QueryRowContext(ctx, s.d.rebind(query), args...)
}

// insert runs an INSERT and returns the new row id
func (s *SQLStore) insert(ctx context.Context, query string, args ...any) (int64, error) {
	if s.d.returning {
		var id int64
		if err := s.queryRow(ctx, query+" RETURNING id", args...).Scan(&id); err != nil {
			return 0, err
		}
		return id, nil
	}

	res, err := s.exec(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func encodeList(items []string) string {
	if items == nil {
		items = []string{}
	}
	b, err := json.Marshal(items)
	if err != nil {
		return "[]"
	}
	return string(b)
}

func decodeList(raw string) []string {
	out := []string{}
	if raw == "" {
		return out
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return []string{}
	}
	return out
}

func nullID(id int64) sql.NullInt64 {
	return sql.NullInt64{Int64: id, Valid: id != 0}
}

func utc(t time.Time) time.Time {
	return t.UTC()
}

type scanner interface {
	Scan(dest ...any) error
}

const messageColumns = "id, sender_name, sender_email, subject, body, is_phish, difficulty, category, links, attachments"

func scanMessage(row scanner, m *core.Message, extra ...any) error {
	var links, attachments string
	dest := []any{&m.ID, &m.SenderName, &m.SenderEmail, &m.Subject, &m.Body, &m.IsPhish, &m.Difficulty, &m.Category, &links, &attachments}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return err
	}
	m.Links = decodeList(links)
	m.Attachments = decodeList(attachments)
	return nil
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return core.ErrNotFound
	}
	return err
}

// CreateUser stores a new user; usernames are unique
func (s *SQLStore) CreateUser(ctx context.Context, user *core.User) (int64, error) {
	if _, err := s.GetUserByUsername(ctx, user.Username); err == nil {
		return 0, core.ErrConflict
	} else if !errors.Is(err, core.ErrNotFound) {
		return 0, err
	}

	id, err := s.insert(ctx,
		`INSERT INTO users (username, password_hash, created_at) VALUES (?, ?, ?)`,
		user.Username, user.PasswordHash, utc(user.CreatedAt))
	if err != nil {
		return 0, fmt.Errorf("failed to insert user: %w", err)
	}
	return id, nil
}

// GetUserByUsername looks a user up by name, ignoring case
func (s *SQLStore) GetUserByUsername(ctx context.Context, username string) (*core.User, error) {
	var u core.User
	err := s.queryRow(ctx,
		`SELECT id, username, password_hash, created_at FROM users WHERE LOWER(username) = ?`,
		strings.ToLower(username)).Scan(&u.ID, &u.Username, &u.PasswordHash, &u.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

// GetUserByID looks a user up by id
func (s *SQLStore) GetUserByID(ctx context.Context, id int64) (*core.User, error) {
	var u core.User
	err := s.queryRow(ctx,
		`SELECT id, username, password_hash, created_at FROM users WHERE id = ?`,
		id).Scan(&u.ID, &u.Username, &u.PasswordHash, &u.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

// CreateScenario stores a scenario
func (s *SQLStore) CreateScenario(ctx context.Context, sc *core.Scenario) (int64, error) {
	id, err := s.insert(ctx, `
		INSERT INTO scenarios (company_name, sector, role_title, department_name, line_manager_name, responsibilities, intro_text, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sc.CompanyName, sc.Sector, sc.RoleTitle, sc.DepartmentName, sc.LineManagerName,
		encodeList(sc.Responsibilities), sc.IntroText, utc(sc.CreatedAt))
	if err != nil {
		return 0, fmt.Errorf("failed to insert scenario: %w", err)
	}
	return id, nil
}

const scenarioColumns = "id, company_name, sector, role_title, department_name, line_manager_name, responsibilities, intro_text, created_at"

func scanScenario(row scanner) (*core.Scenario, error) {
	var sc core.Scenario
	var responsibilities string
	err := row.Scan(&sc.ID, &sc.CompanyName, &sc.Sector, &sc.RoleTitle, &sc.DepartmentName,
		&sc.LineManagerName, &responsibilities, &sc.IntroText, &sc.CreatedAt)
	if err != nil {
		return nil, err
	}
	sc.Responsibilities = decodeList(responsibilities)
	return &sc, nil
}

// ListScenarios returns every scenario ordered by id
func (s *SQLStore) ListScenarios(ctx context.Context) ([]core.Scenario, error) {
	rows, err := s.query(ctx, `SELECT `+scenarioColumns+` FROM scenarios ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query scenarios: %w", err)
	}
	defer rows.Close()

	out := make([]core.Scenario, 0)
	for rows.Next() {
		sc, err := scanScenario(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan scenario: %w", err)
		}
		out = append(out, *sc)
	}
	return out, rows.Err()
}

// GetScenario returns a scenario by id
func (s *SQLStore) GetScenario(ctx context.Context, id int64) (*core.Scenario, error) {
	sc, err := scanScenario(s.queryRow(ctx, `SELECT `+scenarioColumns+` FROM scenarios WHERE id = ?`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return sc, nil
}

// CreateEmail stores level or arcade content
func (s *SQLStore) CreateEmail(ctx context.Context, e *core.LevelEmail) (int64, error) {
	id, err := s.insert(ctx, `
		INSERT INTO emails (sender_name, sender_email, subject, body, is_phish, difficulty, category, links, attachments,
			mode, scenario_id, level_number, sort_order, is_wave, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.SenderName, e.SenderEmail, e.Subject, e.Body, e.IsPhish, e.Difficulty, e.Category,
		encodeList(e.Links), encodeList(e.Attachments),
		string(e.Mode), nullID(e.ScenarioID), e.LevelNumber, e.SortOrder, e.IsWave, utc(e.CreatedAt))
	if err != nil {
		return 0, fmt.Errorf("failed to insert email: %w", err)
	}
	return id, nil
}

// GetEmail returns stored content by id
func (s *SQLStore) GetEmail(ctx context.Context, id int64) (*core.LevelEmail, error) {
	var e core.LevelEmail
	var mode string
	var scenarioID sql.NullInt64
	err := scanMessage(s.queryRow(ctx,
		`SELECT `+messageColumns+`, mode, scenario_id, level_number, sort_order, is_wave, created_at FROM emails WHERE id = ?`, id),
		&e.Message, &mode, &scenarioID, &e.LevelNumber, &e.SortOrder, &e.IsWave, &e.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	e.Mode = core.Mode(mode)
	e.ScenarioID = scenarioID.Int64
	return &e, nil
}

func levelFilter(scenarioID int64, level int) (string, []any) {
	where := `mode = ? AND level_number = ?`
	args := []any{string(core.ModeSimulation), level}
	if scenarioID != 0 {
		where += ` AND scenario_id = ?`
		args = append(args, scenarioID)
	}
	return where, args
}

// LevelExists reports whether content is placed at the scenario and level
func (s *SQLStore) LevelExists(ctx context.Context, scenarioID int64, level int) (bool, error) {
	where, args := levelFilter(scenarioID, level)
	var n int
	if err := s.queryRow(ctx, `SELECT COUNT(*) FROM emails WHERE `+where, args...).Scan(&n); err != nil {
		return false, fmt.Errorf("failed to count level emails: %w", err)
	}
	return n > 0, nil
}

func (s *SQLStore) listMessages(ctx context.Context, query string, args ...any) ([]core.Message, error) {
	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query emails: %w", err)
	}
	defer rows.Close()

	out := make([]core.Message, 0)
	for rows.Next() {
		var m core.Message
		if err := scanMessage(rows, &m); err != nil {
			return nil, fmt.Errorf("failed to scan email: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// ListLevelEmails returns simulation content ordered by sort order then id
func (s *SQLStore) ListLevelEmails(ctx context.Context, scenarioID int64, level int, wave bool, limit int) ([]core.Message, error) {
	where, args := levelFilter(scenarioID, level)
	query := `SELECT ` + messageColumns + ` FROM emails WHERE ` + where + ` AND is_wave = ? ORDER BY sort_order, id`
	args = append(args, wave)
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	return s.listMessages(ctx, query, args...)
}

// ListArcadeEmails returns arcade content in random order
func (s *SQLStore) ListArcadeEmails(ctx context.Context, limit int) ([]core.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM emails WHERE mode = ? ORDER BY ` + s.d.random
	args := []any{string(core.ModeArcade)}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	return s.listMessages(ctx, query, args...)
}

// RecordResult applies one attempt to the user's progress inside a transaction
func (s *SQLStore) RecordResult(ctx context.Context, userID string, correct bool) (*core.UserProgress, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	lock := ""
	if s.d.name != "sqlite" {
		lock = " FOR UPDATE"
	}

	p := core.UserProgress{UserID: userID}
	err = tx.QueryRowContext(ctx, s.d.rebind(
		`SELECT score, correct, incorrect, total_attempts FROM user_progress WHERE user_id = ?`+lock), userID).
		Scan(&p.Score, &p.Correct, &p.Incorrect, &p.TotalAttempts)
	exists := true
	if errors.Is(err, sql.ErrNoRows) {
		exists = false
	} else if err != nil {
		return nil, fmt.Errorf("failed to read progress: %w", err)
	}

	core.ApplyResult(&p, correct)
	p.LastUpdated = time.Now().UTC()

	if exists {
		_, err = tx.ExecContext(ctx, s.d.rebind(
			`UPDATE user_progress SET score = ?, correct = ?, incorrect = ?, total_attempts = ?, last_updated = ? WHERE user_id = ?`),
			p.Score, p.Correct, p.Incorrect, p.TotalAttempts, p.LastUpdated, userID)
	} else {
		_, err = tx.ExecContext(ctx, s.d.rebind(
			`INSERT INTO user_progress (user_id, score, correct, incorrect, total_attempts, last_updated) VALUES (?, ?, ?, ?, ?, ?)`),
			userID, p.Score, p.Correct, p.Incorrect, p.TotalAttempts, p.LastUpdated)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to write progress: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit progress: %w", err)
	}
	return &p, nil
}

// CreateInteraction stores an interaction event
func (s *SQLStore) CreateInteraction(ctx context.Context, e *core.InteractionEvent) (int64, error) {
	id, err := s.insert(ctx, `
		INSERT INTO interaction_events (user_id, email_id, mode, event_type, event_value, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		e.UserID, e.EmailID, string(e.Mode), string(e.Kind), e.Value, utc(e.CreatedAt))
	if err != nil {
		return 0, fmt.Errorf("failed to insert interaction: %w", err)
	}
	return id, nil
}

// HasInteraction reports whether a matching interaction happened at or after since
func (s *SQLStore) HasInteraction(ctx context.Context, userID string, emailID int64, kind core.InteractionKind, since time.Time) (bool, error) {
	var n int
	err := s.queryRow(ctx, `
		SELECT COUNT(*) FROM interaction_events
		WHERE user_id = ? AND email_id = ? AND event_type = ? AND created_at >= ?`,
		userID, emailID, string(kind), utc(since)).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to count interactions: %w", err)
	}
	return n > 0, nil
}

// CreateRun stores a run record
func (s *SQLStore) CreateRun(ctx context.Context, r *core.LevelRun) (int64, error) {
	id, err := s.insert(ctx, `
		INSERT INTO level_runs (user_id, mode, scenario_id, level_number, emails_total, correct, incorrect, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.UserID, string(r.Mode), nullID(r.ScenarioID), r.LevelNumber, r.EmailsTotal, r.Correct, r.Incorrect, utc(r.StartedAt))
	if err != nil {
		return 0, fmt.Errorf("failed to insert run: %w", err)
	}
	return id, nil
}

const runColumns = "id, user_id, mode, scenario_id, level_number, emails_total, correct, incorrect, started_at, completed_at"

func scanRun(row scanner) (*core.LevelRun, error) {
	var r core.LevelRun
	var mode string
	var scenarioID sql.NullInt64
	var completedAt sql.NullTime
	err := row.Scan(&r.ID, &r.UserID, &mode, &scenarioID, &r.LevelNumber, &r.EmailsTotal,
		&r.Correct, &r.Incorrect, &r.StartedAt, &completedAt)
	if err != nil {
		return nil, err
	}
	r.Mode = core.Mode(mode)
	r.ScenarioID = scenarioID.Int64
	if completedAt.Valid {
		t := completedAt.Time
		r.CompletedAt = &t
	}
	return &r, nil
}

// GetRun returns a run by id
func (s *SQLStore) GetRun(ctx context.Context, id int64) (*core.LevelRun, error) {
	r, err := scanRun(s.queryRow(ctx, `SELECT `+runColumns+` FROM level_runs WHERE id = ?`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return r, nil
}

// CompleteRun finalizes an open run; the update only matches runs not yet completed
func (s *SQLStore) CompleteRun(ctx context.Context, id int64, correct, incorrect int, at time.Time) error {
	res, err := s.exec(ctx,
		`UPDATE level_runs SET correct = ?, incorrect = ?, completed_at = ? WHERE id = ? AND completed_at IS NULL`,
		correct, incorrect, utc(at), id)
	if err != nil {
		return fmt.Errorf("failed to complete run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to complete run: %w", err)
	}
	if n == 0 {
		if _, err := s.GetRun(ctx, id); err != nil {
			return err
		}
		return core.ErrRunAlreadyCompleted
	}
	return nil
}

// CreateDecision stores a decision event
func (s *SQLStore) CreateDecision(ctx context.Context, e *core.DecisionEvent) (int64, error) {
	id, err := s.insert(ctx, `
		INSERT INTO decision_events (user_id, run_id, email_id, decision, was_correct, had_link_click, had_attachment_open, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.UserID, nullID(e.RunID), e.EmailID, string(e.Decision), e.WasCorrect, e.HadLinkClick, e.HadAttachmentOpen, utc(e.CreatedAt))
	if err != nil {
		return 0, fmt.Errorf("failed to insert decision: %w", err)
	}
	return id, nil
}

// ListCompletedRuns returns completed simulation runs, newest first
func (s *SQLStore) ListCompletedRuns(ctx context.Context, userID string) ([]core.LevelRun, error) {
	rows, err := s.query(ctx, `
		SELECT `+runColumns+` FROM level_runs
		WHERE user_id = ? AND mode = ? AND completed_at IS NOT NULL
		ORDER BY completed_at DESC, id DESC`,
		userID, string(core.ModeSimulation))
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	out := make([]core.LevelRun, 0)
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// ListDecisions returns the user's decisions, newest first
func (s *SQLStore) ListDecisions(ctx context.Context, userID string) ([]core.DecisionEvent, error) {
	rows, err := s.query(ctx, `
		SELECT id, user_id, run_id, email_id, decision, was_correct, had_link_click, had_attachment_open, created_at
		FROM decision_events WHERE user_id = ? ORDER BY created_at DESC, id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query decisions: %w", err)
	}
	defer rows.Close()

	out := make([]core.DecisionEvent, 0)
	for rows.Next() {
		var e core.DecisionEvent
		var runID sql.NullInt64
		var decision string
		if err := rows.Scan(&e.ID, &e.UserID, &runID, &e.EmailID, &decision, &e.WasCorrect,
			&e.HadLinkClick, &e.HadAttachmentOpen, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan decision: %w", err)
		}
		e.RunID = runID.Int64
		e.Decision = core.DecisionKind(decision)
		out = append(out, e)
	}
	return out, rows.Err()
}

// PruneAbandonedRuns deletes incomplete runs started before cutoff
func (s *SQLStore) PruneAbandonedRuns(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.exec(ctx, `DELETE FROM level_runs WHERE completed_at IS NULL AND started_at < ?`, utc(cutoff))
	if err != nil {
		return 0, fmt.Errorf("failed to delete abandoned runs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		s.logger.Warn("Failed to get rows affected during run pruning", zap.Error(err))
		return 0, nil
	}
	return n, nil
}

// CreatePvpLevel stores a player-authored level
func (s *SQLStore) CreatePvpLevel(ctx context.Context, l *core.PvpLevel) (int64, error) {
	id, err := s.insert(ctx, `
		INSERT INTO pvp_levels (owner_id, title, briefing, company_name, role_title, visibility, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		l.OwnerID, l.Title, l.Briefing, l.CompanyName, l.RoleTitle, string(l.Visibility), utc(l.CreatedAt))
	if err != nil {
		return 0, fmt.Errorf("failed to insert level: %w", err)
	}
	return id, nil
}

const levelColumns = "id, owner_id, title, briefing, company_name, role_title, visibility, created_at"

func scanLevel(row scanner) (*core.PvpLevel, error) {
	var l core.PvpLevel
	var visibility string
	if err := row.Scan(&l.ID, &l.OwnerID, &l.Title, &l.Briefing, &l.CompanyName, &l.RoleTitle, &visibility, &l.CreatedAt); err != nil {
		return nil, err
	}
	l.Visibility = core.Visibility(visibility)
	return &l, nil
}

// GetPvpLevel returns a level by id
func (s *SQLStore) GetPvpLevel(ctx context.Context, id int64) (*core.PvpLevel, error) {
	l, err := scanLevel(s.queryRow(ctx, `SELECT `+levelColumns+` FROM pvp_levels WHERE id = ?`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return l, nil
}

func (s *SQLStore) listLevels(ctx context.Context, where string, arg any) ([]core.PvpLevel, error) {
	rows, err := s.query(ctx, `SELECT `+levelColumns+` FROM pvp_levels WHERE `+where+` ORDER BY id DESC`, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to query levels: %w", err)
	}
	defer rows.Close()

	out := make([]core.PvpLevel, 0)
	for rows.Next() {
		l, err := scanLevel(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan level: %w", err)
		}
		out = append(out, *l)
	}
	return out, rows.Err()
}

// ListPvpLevelsByOwner returns the owner's levels, newest first
func (s *SQLStore) ListPvpLevelsByOwner(ctx context.Context, ownerID int64) ([]core.PvpLevel, error) {
	return s.listLevels(ctx, `owner_id = ?`, ownerID)
}

// ListPostedPvpLevels returns posted levels, newest first
func (s *SQLStore) ListPostedPvpLevels(ctx context.Context) ([]core.PvpLevel, error) {
	return s.listLevels(ctx, `visibility = ?`, string(core.VisibilityPosted))
}

// SetPvpLevelVisibility updates a level's visibility
func (s *SQLStore) SetPvpLevelVisibility(ctx context.Context, id int64, visibility core.Visibility) error {
	if _, err := s.exec(ctx, `UPDATE pvp_levels SET visibility = ? WHERE id = ?`, string(visibility), id); err != nil {
		return fmt.Errorf("failed to update level: %w", err)
	}
	return nil
}

// DeletePvpLevel removes a level and its emails
func (s *SQLStore) DeletePvpLevel(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, s.d.rebind(`DELETE FROM pvp_emails WHERE level_id = ?`), id); err != nil {
		return fmt.Errorf("failed to delete level emails: %w", err)
	}
	res, err := tx.ExecContext(ctx, s.d.rebind(`DELETE FROM pvp_levels WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("failed to delete level: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return core.ErrNotFound
	}
	return tx.Commit()
}

// CreatePvpEmail stores an email in a level
func (s *SQLStore) CreatePvpEmail(ctx context.Context, e *core.PvpEmail) (int64, error) {
	id, err := s.insert(ctx, `
		INSERT INTO pvp_emails (level_id, sender_name, sender_email, subject, body, is_phish, difficulty, category,
			links, attachments, is_wave, sort_order, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.LevelID, e.SenderName, e.SenderEmail, e.Subject, e.Body, e.IsPhish, e.Difficulty, e.Category,
		encodeList(e.Links), encodeList(e.Attachments), e.IsWave, e.SortOrder, utc(e.CreatedAt))
	if err != nil {
		return 0, fmt.Errorf("failed to insert level email: %w", err)
	}
	return id, nil
}

// ListPvpEmails returns a level's emails ordered by wave flag, sort order and id
func (s *SQLStore) ListPvpEmails(ctx context.Context, levelID int64, wave *bool, limit int) ([]core.PvpEmail, error) {
	var b strings.Builder
	b.WriteString(`SELECT ` + messageColumns + `, level_id, is_wave, sort_order, created_at FROM pvp_emails WHERE level_id = ?`)
	args := []any{levelID}
	if wave != nil {
		b.WriteString(` AND is_wave = ?`)
		args = append(args, *wave)
	}
	b.WriteString(` ORDER BY is_wave, sort_order, id`)
	if limit > 0 {
		b.WriteString(` LIMIT ?`)
		args = append(args, limit)
	}

	rows, err := s.query(ctx, b.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query level emails: %w", err)
	}
	defer rows.Close()

	out := make([]core.PvpEmail, 0)
	for rows.Next() {
		var e core.PvpEmail
		if err := scanMessage(rows, &e.Message, &e.LevelID, &e.IsWave, &e.SortOrder, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan level email: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// DeletePvpEmail removes an email from a level
func (s *SQLStore) DeletePvpEmail(ctx context.Context, levelID, emailID int64) error {
	res, err := s.exec(ctx, `DELETE FROM pvp_emails WHERE id = ? AND level_id = ?`, emailID, levelID)
	if err != nil {
		return fmt.Errorf("failed to delete level email: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return core.ErrNotFound
	}
	return nil
}

// CountPvpEmails returns the total and phishing email counts of a level
func (s *SQLStore) CountPvpEmails(ctx context.Context, levelID int64) (int, int, error) {
	var total int
	var phish sql.NullInt64
	err := s.queryRow(ctx,
		`SELECT COUNT(*), SUM(CASE WHEN is_phish THEN 1 ELSE 0 END) FROM pvp_emails WHERE level_id = ?`,
		levelID).Scan(&total, &phish)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count level emails: %w", err)
	}
	return total, int(phish.Int64), nil
}

// Close stops the background cleanup task and closes the database connection
func (s *SQLStore) Close() error {
	var err error
	s.stopOnce.Do(func() {
		close(s.stopCh)
		if err = s.db.Close(); err != nil {
			s.logger.Error("Failed to close database", zap.Error(err))
		}
	})
	return err
}
