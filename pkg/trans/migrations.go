package trans

import (
	"context"
	"database/sql"
	"fmt"
)

// Migration is a versioned schema change.
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// GetMigrations returns all translation-data migrations in order.
func GetMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create languages table",
			SQL: `
				CREATE TABLE IF NOT EXISTS languages (
					id BIGSERIAL PRIMARY KEY,
					code VARCHAR(50) NOT NULL UNIQUE,
					name VARCHAR(255) NOT NULL
				);
			`,
		},
		{
			Version:     2,
			Description: "Create projects table",
			SQL: `
				CREATE TABLE IF NOT EXISTS projects (
					id BIGSERIAL PRIMARY KEY,
					slug VARCHAR(255) NOT NULL UNIQUE,
					name VARCHAR(255) NOT NULL,
					access_control INT NOT NULL DEFAULT 0,
					enforce_2fa BOOLEAN NOT NULL DEFAULT FALSE,
					translation_review BOOLEAN NOT NULL DEFAULT FALSE,
					source_review BOOLEAN NOT NULL DEFAULT FALSE
				);

				CREATE INDEX idx_projects_access_control ON projects(access_control);
			`,
		},
		{
			Version:     3,
			Description: "Create categories table",
			SQL: `
				CREATE TABLE IF NOT EXISTS categories (
					id BIGSERIAL PRIMARY KEY,
					project_id BIGINT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
					slug VARCHAR(255) NOT NULL,
					name VARCHAR(255) NOT NULL,
					UNIQUE(project_id, slug)
				);
			`,
		},
		{
			Version:     4,
			Description: "Create components table",
			SQL: `
				CREATE TABLE IF NOT EXISTS components (
					id BIGSERIAL PRIMARY KEY,
					project_id BIGINT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
					category_id BIGINT REFERENCES categories(id) ON DELETE SET NULL,
					slug VARCHAR(255) NOT NULL,
					name VARCHAR(255) NOT NULL,
					restricted BOOLEAN NOT NULL DEFAULT FALSE,
					locked BOOLEAN NOT NULL DEFAULT FALSE,
					is_glossary BOOLEAN NOT NULL DEFAULT FALSE,
					agreement TEXT NOT NULL DEFAULT '',
					manage_units BOOLEAN NOT NULL DEFAULT FALSE,
					template VARCHAR(255) NOT NULL DEFAULT '',
					edit_template BOOLEAN NOT NULL DEFAULT TRUE,
					source_language_id BIGINT REFERENCES languages(id),
					suggestion_voting BOOLEAN NOT NULL DEFAULT FALSE,
					suggestion_autoaccept INT NOT NULL DEFAULT 0,
					UNIQUE(project_id, slug)
				);

				CREATE INDEX idx_components_project_id ON components(project_id);
				CREATE INDEX idx_components_restricted ON components(restricted);
			`,
		},
		{
			Version:     5,
			Description: "Create component lists",
			SQL: `
				CREATE TABLE IF NOT EXISTS component_lists (
					id BIGSERIAL PRIMARY KEY,
					slug VARCHAR(255) NOT NULL UNIQUE,
					name VARCHAR(255) NOT NULL
				);

				CREATE TABLE IF NOT EXISTS component_list_components (
					list_id BIGINT NOT NULL REFERENCES component_lists(id) ON DELETE CASCADE,
					component_id BIGINT NOT NULL REFERENCES components(id) ON DELETE CASCADE,
					PRIMARY KEY (list_id, component_id)
				);
			`,
		},
		{
			Version:     6,
			Description: "Create translations table",
			SQL: `
				CREATE TABLE IF NOT EXISTS translations (
					id BIGSERIAL PRIMARY KEY,
					component_id BIGINT NOT NULL REFERENCES components(id) ON DELETE CASCADE,
					language_id BIGINT NOT NULL REFERENCES languages(id),
					is_source BOOLEAN NOT NULL DEFAULT FALSE,
					UNIQUE(component_id, language_id)
				);
			`,
		},
		{
			Version:     7,
			Description: "Create units table",
			SQL: `
				CREATE TABLE IF NOT EXISTS units (
					id BIGSERIAL PRIMARY KEY,
					translation_id BIGINT NOT NULL REFERENCES translations(id) ON DELETE CASCADE,
					position INT NOT NULL DEFAULT 0,
					context TEXT NOT NULL DEFAULT '',
					source TEXT NOT NULL DEFAULT '',
					target TEXT NOT NULL DEFAULT '',
					note TEXT NOT NULL DEFAULT '',
					location TEXT NOT NULL DEFAULT '',
					explanation TEXT NOT NULL DEFAULT '',
					state INT NOT NULL DEFAULT 0,
					pending BOOLEAN NOT NULL DEFAULT FALSE,
					priority INT NOT NULL DEFAULT 100,
					added TIMESTAMP NOT NULL DEFAULT NOW()
				);

				CREATE INDEX idx_units_translation_id ON units(translation_id);
				CREATE INDEX idx_units_state ON units(state);
			`,
		},
		{
			Version:     8,
			Description: "Create unit annotation tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS checks (
					id BIGSERIAL PRIMARY KEY,
					unit_id BIGINT NOT NULL REFERENCES units(id) ON DELETE CASCADE,
					name VARCHAR(100) NOT NULL,
					dismissed BOOLEAN NOT NULL DEFAULT FALSE
				);
				CREATE INDEX idx_checks_unit_id ON checks(unit_id);

				CREATE TABLE IF NOT EXISTS suggestions (
					id BIGSERIAL PRIMARY KEY,
					unit_id BIGINT NOT NULL REFERENCES units(id) ON DELETE CASCADE,
					target TEXT NOT NULL DEFAULT '',
					author_id BIGINT,
					votes INT NOT NULL DEFAULT 0
				);
				CREATE INDEX idx_suggestions_unit_id ON suggestions(unit_id);

				CREATE TABLE IF NOT EXISTS comments (
					id BIGSERIAL PRIMARY KEY,
					unit_id BIGINT NOT NULL REFERENCES units(id) ON DELETE CASCADE,
					comment TEXT NOT NULL DEFAULT '',
					author_id BIGINT
				);
				CREATE INDEX idx_comments_unit_id ON comments(unit_id);

				CREATE TABLE IF NOT EXISTS labels (
					id BIGSERIAL PRIMARY KEY,
					project_id BIGINT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
					name VARCHAR(100) NOT NULL
				);
				CREATE TABLE IF NOT EXISTS unit_labels (
					unit_id BIGINT NOT NULL REFERENCES units(id) ON DELETE CASCADE,
					label_id BIGINT NOT NULL REFERENCES labels(id) ON DELETE CASCADE,
					PRIMARY KEY (unit_id, label_id)
				);

				CREATE TABLE IF NOT EXISTS screenshots (
					id BIGSERIAL PRIMARY KEY,
					name VARCHAR(255) NOT NULL
				);
				CREATE TABLE IF NOT EXISTS screenshot_units (
					screenshot_id BIGINT NOT NULL REFERENCES screenshots(id) ON DELETE CASCADE,
					unit_id BIGINT NOT NULL REFERENCES units(id) ON DELETE CASCADE,
					PRIMARY KEY (screenshot_id, unit_id)
				);

				CREATE TABLE IF NOT EXISTS variants (
					id BIGSERIAL PRIMARY KEY,
					unit_id BIGINT NOT NULL REFERENCES units(id) ON DELETE CASCADE,
					key VARCHAR(255) NOT NULL
				);
			`,
		},
		{
			Version:     9,
			Description: "Create changes table",
			SQL: `
				CREATE TABLE IF NOT EXISTS changes (
					id BIGSERIAL PRIMARY KEY,
					unit_id BIGINT REFERENCES units(id) ON DELETE CASCADE,
					translation_id BIGINT REFERENCES translations(id) ON DELETE CASCADE,
					action INT NOT NULL,
					author VARCHAR(255) NOT NULL DEFAULT '',
					created_at TIMESTAMP NOT NULL DEFAULT NOW()
				);

				CREATE INDEX idx_changes_unit_id ON changes(unit_id);
				CREATE INDEX idx_changes_action ON changes(action);
			`,
		},
		{
			Version:     10,
			Description: "Create unit search view",
			SQL: `
				CREATE VIEW unit_search AS
				SELECT
					u.id AS id,
					u.source AS source,
					u.target AS target,
					u.context AS context,
					u.note AS note,
					u.location AS location,
					u.explanation AS explanation,
					u.position AS position,
					u.priority AS priority,
					u.state AS state,
					u.pending AS pending,
					u.added AS added,
					l.code AS language_code,
					sl.code AS source_language_code,
					c.slug AS component_slug,
					p.slug AS project_slug,
					chk.name AS check_name,
					chk.dismissed AS check_dismissed,
					sg.target AS suggestion_target,
					cm.comment AS comment_text,
					lb.name AS label_name,
					sc.name AS screenshot_name,
					ch.author AS change_author,
					ch.created_at AS changed,
					ch.created_at AS change_time,
					ch.action AS change_action,
					(SELECT COUNT(*) FROM suggestions s2 WHERE s2.unit_id = u.id) AS suggestion_count,
					(SELECT COUNT(*) FROM comments c2 WHERE c2.unit_id = u.id) AS comment_count,
					(SELECT COUNT(*) FROM checks k2 WHERE k2.unit_id = u.id AND NOT k2.dismissed) AS active_check_count,
					(SELECT COUNT(*) FROM checks k3 WHERE k3.unit_id = u.id AND k3.dismissed) AS dismissed_check_count,
					(SELECT COUNT(*) FROM variants v2 WHERE v2.unit_id = u.id) AS variant_count,
					(SELECT COUNT(*) FROM screenshot_units su2 WHERE su2.unit_id = u.id) AS screenshot_count,
					(SELECT COUNT(*) FROM unit_labels ul2 WHERE ul2.unit_id = u.id) AS label_count
				FROM units u
				JOIN translations t ON t.id = u.translation_id
				JOIN languages l ON l.id = t.language_id
				JOIN components c ON c.id = t.component_id
				LEFT JOIN languages sl ON sl.id = c.source_language_id
				JOIN projects p ON p.id = c.project_id
				LEFT JOIN checks chk ON chk.unit_id = u.id
				LEFT JOIN suggestions sg ON sg.unit_id = u.id
				LEFT JOIN comments cm ON cm.unit_id = u.id
				LEFT JOIN unit_labels ul ON ul.unit_id = u.id
				LEFT JOIN labels lb ON lb.id = ul.label_id
				LEFT JOIN screenshot_units su ON su.unit_id = u.id
				LEFT JOIN screenshots sc ON sc.id = su.screenshot_id
				LEFT JOIN changes ch ON ch.unit_id = u.id;
			`,
		},
	}
}

// RunMigrations applies all pending translation-data migrations.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS trans_migrations (
			version INT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	rows, err := db.QueryContext(ctx, "SELECT version FROM trans_migrations ORDER BY version")
	if err != nil {
		return fmt.Errorf("failed to query migrations: %w", err)
	}
	applied := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan migration version: %w", err)
		}
		applied[version] = true
	}
	rows.Close()

	for _, migration := range GetMigrations() {
		if applied[migration.Version] {
			continue
		}
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to start transaction: %w", err)
		}
		if _, err := tx.ExecContext(ctx, migration.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to execute migration %d: %w", migration.Version, err)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO trans_migrations (version, description) VALUES ($1, $2)",
			migration.Version, migration.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}
	}
	return nil
}
