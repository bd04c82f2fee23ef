package store

var schemaTables = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id {{id}},
		username {{key}} NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		created_at {{ts}} NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS scenarios (
		id {{id}},
		company_name TEXT NOT NULL,
		sector TEXT NOT NULL,
		role_title TEXT NOT NULL,
		department_name TEXT NOT NULL,
		line_manager_name TEXT NOT NULL,
		responsibilities TEXT NOT NULL,
		intro_text TEXT NOT NULL,
		created_at {{ts}} NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS emails (
		id {{id}},
		sender_name TEXT NOT NULL,
		sender_email TEXT NOT NULL,
		subject TEXT NOT NULL,
		body TEXT NOT NULL,
		is_phish BOOLEAN NOT NULL,
		difficulty INTEGER NOT NULL,
		category TEXT NOT NULL,
		links TEXT NOT NULL,
		attachments TEXT NOT NULL,
		mode {{key}} NOT NULL,
		scenario_id BIGINT NULL,
		level_number INTEGER NOT NULL,
		sort_order INTEGER NOT NULL,
		is_wave BOOLEAN NOT NULL,
		created_at {{ts}} NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS user_progress (
		user_id {{key}} PRIMARY KEY,
		score INTEGER NOT NULL,
		correct INTEGER NOT NULL,
		incorrect INTEGER NOT NULL,
		total_attempts INTEGER NOT NULL,
		last_updated {{ts}} NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS interaction_events (
		id {{id}},
		user_id {{key}} NOT NULL,
		email_id BIGINT NOT NULL,
		mode {{key}} NOT NULL,
		event_type {{key}} NOT NULL,
		event_value TEXT NOT NULL,
		created_at {{ts}} NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS level_runs (
		id {{id}},
		user_id {{key}} NOT NULL,
		mode {{key}} NOT NULL,
		scenario_id BIGINT NULL,
		level_number INTEGER NOT NULL,
		emails_total INTEGER NOT NULL,
		correct INTEGER NOT NULL,
		incorrect INTEGER NOT NULL,
		started_at {{ts}} NOT NULL,
		completed_at {{ts}} NULL
	)`,
	`CREATE TABLE IF NOT EXISTS decision_events (
		id {{id}},
		user_id {{key}} NOT NULL,
		run_id BIGINT NULL,
		email_id BIGINT NOT NULL,
		decision {{key}} NOT NULL,
		was_correct BOOLEAN NOT NULL,
		had_link_click BOOLEAN NOT NULL,
		had_attachment_open BOOLEAN NOT NULL,
		created_at {{ts}} NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS pvp_levels (
		id {{id}},
		owner_id BIGINT NOT NULL,
		title TEXT NOT NULL,
		briefing TEXT NOT NULL,
		company_name TEXT NOT NULL,
		role_title TEXT NOT NULL,
		visibility {{key}} NOT NULL,
		created_at {{ts}} NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS pvp_emails (
		id {{id}},
		level_id BIGINT NOT NULL,
		sender_name TEXT NOT NULL,
		sender_email TEXT NOT NULL,
		subject TEXT NOT NULL,
		body TEXT NOT NULL,
		is_phish BOOLEAN NOT NULL,
		difficulty INTEGER NOT NULL,
		category TEXT NOT NULL,
		links TEXT NOT NULL,
		attachments TEXT NOT NULL,
		is_wave BOOLEAN NOT NULL,
		sort_order INTEGER NOT NULL,
		created_at {{ts}} NOT NULL
	)`,
}

// MySQL has no CREATE INDEX IF NOT EXISTS, so these only run on the other dialects
var schemaIndexes = []string{
	`CREATE INDEX IF NOT EXISTS idx_emails_level ON emails(mode, level_number, is_wave)`,
	`CREATE INDEX IF NOT EXISTS idx_interactions_lookup ON interaction_events(user_id, email_id, event_type)`,
	`CREATE INDEX IF NOT EXISTS idx_runs_user ON level_runs(user_id, completed_at)`,
	`CREATE INDEX IF NOT EXISTS idx_runs_started_at ON level_runs(started_at)`,
	`CREATE INDEX IF NOT EXISTS idx_decisions_user ON decision_events(user_id)`,
	`CREATE INDEX IF NOT EXISTS idx_pvp_emails_level ON pvp_emails(level_id)`,
}
