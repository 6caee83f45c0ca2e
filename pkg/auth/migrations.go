package auth

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

// GetMigrations returns all access-control migrations in order.
func GetMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create users table",
			SQL: `
				CREATE TABLE IF NOT EXISTS auth_users (
					id BIGSERIAL PRIMARY KEY,
					username VARCHAR(150) NOT NULL UNIQUE,
					full_name VARCHAR(255) NOT NULL DEFAULT '',
					email VARCHAR(255) NOT NULL DEFAULT '',
					is_superuser BOOLEAN NOT NULL DEFAULT FALSE,
					is_active BOOLEAN NOT NULL DEFAULT TRUE,
					is_bot BOOLEAN NOT NULL DEFAULT FALSE,
					has_2fa BOOLEAN NOT NULL DEFAULT FALSE,
					email_verified BOOLEAN NOT NULL DEFAULT FALSE,
					date_joined TIMESTAMP NOT NULL DEFAULT NOW()
				);

				CREATE INDEX idx_auth_users_email ON auth_users(email);
			`,
		},
		{
			Version:     2,
			Description: "Create roles table",
			SQL: `
				CREATE TABLE IF NOT EXISTS auth_roles (
					id BIGSERIAL PRIMARY KEY,
					name VARCHAR(200) NOT NULL UNIQUE,
					permissions JSONB NOT NULL DEFAULT '[]'
				);
			`,
		},
		{
			Version:     3,
			Description: "Create groups and relation tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS auth_groups (
					id BIGSERIAL PRIMARY KEY,
					name VARCHAR(150) NOT NULL,
					defining_project_id BIGINT REFERENCES projects(id) ON DELETE CASCADE,
					project_selection INT NOT NULL DEFAULT 0,
					language_selection INT NOT NULL DEFAULT 0,
					internal BOOLEAN NOT NULL DEFAULT FALSE,
					enforce_2fa BOOLEAN NOT NULL DEFAULT FALSE,
					UNIQUE(name, defining_project_id)
				);

				CREATE INDEX idx_auth_groups_defining_project ON auth_groups(defining_project_id);

				CREATE TABLE IF NOT EXISTS auth_group_roles (
					group_id BIGINT NOT NULL REFERENCES auth_groups(id) ON DELETE CASCADE,
					role_id BIGINT NOT NULL REFERENCES auth_roles(id) ON DELETE CASCADE,
					PRIMARY KEY (group_id, role_id)
				);

				CREATE TABLE IF NOT EXISTS auth_group_projects (
					group_id BIGINT NOT NULL REFERENCES auth_groups(id) ON DELETE CASCADE,
					project_id BIGINT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
					PRIMARY KEY (group_id, project_id)
				);

				CREATE TABLE IF NOT EXISTS auth_group_components (
					group_id BIGINT NOT NULL REFERENCES auth_groups(id) ON DELETE CASCADE,
					component_id BIGINT NOT NULL REFERENCES components(id) ON DELETE CASCADE,
					PRIMARY KEY (group_id, component_id)
				);

				CREATE TABLE IF NOT EXISTS auth_group_componentlists (
					group_id BIGINT NOT NULL REFERENCES auth_groups(id) ON DELETE CASCADE,
					list_id BIGINT NOT NULL REFERENCES component_lists(id) ON DELETE CASCADE,
					PRIMARY KEY (group_id, list_id)
				);

				CREATE TABLE IF NOT EXISTS auth_group_languages (
					group_id BIGINT NOT NULL REFERENCES auth_groups(id) ON DELETE CASCADE,
					language_id BIGINT NOT NULL REFERENCES languages(id) ON DELETE CASCADE,
					PRIMARY KEY (group_id, language_id)
				);

				CREATE TABLE IF NOT EXISTS auth_group_admins (
					group_id BIGINT NOT NULL REFERENCES auth_groups(id) ON DELETE CASCADE,
					user_id BIGINT NOT NULL REFERENCES auth_users(id) ON DELETE CASCADE,
					PRIMARY KEY (group_id, user_id)
				);

				CREATE TABLE IF NOT EXISTS auth_user_groups (
					user_id BIGINT NOT NULL REFERENCES auth_users(id) ON DELETE CASCADE,
					group_id BIGINT NOT NULL REFERENCES auth_groups(id) ON DELETE CASCADE,
					PRIMARY KEY (user_id, group_id)
				);
			`,
		},
		{
			Version:     4,
			Description: "Create user blocks table",
			SQL: `
				CREATE TABLE IF NOT EXISTS auth_user_blocks (
					id BIGSERIAL PRIMARY KEY,
					user_id BIGINT NOT NULL REFERENCES auth_users(id) ON DELETE CASCADE,
					project_id BIGINT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
					expiry TIMESTAMP,
					UNIQUE(user_id, project_id)
				);

				CREATE INDEX idx_auth_user_blocks_user_id ON auth_user_blocks(user_id);
			`,
		},
		{
			Version:     5,
			Description: "Create invitations table",
			SQL: `
				CREATE TABLE IF NOT EXISTS auth_invitations (
					id BIGSERIAL PRIMARY KEY,
					token UUID NOT NULL UNIQUE,
					author_id BIGINT NOT NULL REFERENCES auth_users(id) ON DELETE CASCADE,
					user_id BIGINT REFERENCES auth_users(id) ON DELETE CASCADE,
					email VARCHAR(255) NOT NULL DEFAULT '',
					username VARCHAR(150) NOT NULL DEFAULT '',
					full_name VARCHAR(255) NOT NULL DEFAULT '',
					group_id BIGINT REFERENCES auth_groups(id) ON DELETE CASCADE,
					is_superuser BOOLEAN NOT NULL DEFAULT FALSE,
					created_at TIMESTAMP NOT NULL DEFAULT NOW()
				);
			`,
		},
		{
			Version:     6,
			Description: "Create automatic group assignment table",
			SQL: `
				CREATE TABLE IF NOT EXISTS auth_autogroups (
					id BIGSERIAL PRIMARY KEY,
					match VARCHAR(200) NOT NULL,
					group_id BIGINT NOT NULL REFERENCES auth_groups(id) ON DELETE CASCADE,
					UNIQUE(match, group_id)
				);
			`,
		},
		{
			Version:     7,
			Description: "Create contributor agreements table",
			SQL: `
				CREATE TABLE IF NOT EXISTS auth_agreements (
					user_id BIGINT NOT NULL REFERENCES auth_users(id) ON DELETE CASCADE,
					component_id BIGINT NOT NULL REFERENCES components(id) ON DELETE CASCADE,
					signed_at TIMESTAMP NOT NULL DEFAULT NOW(),
					PRIMARY KEY (user_id, component_id)
				);
			`,
		},
		{
			Version:     8,
			Description: "Create user profile relation tables and search view",
			SQL: `
				CREATE TABLE IF NOT EXISTS auth_user_languages (
					user_id BIGINT NOT NULL REFERENCES auth_users(id) ON DELETE CASCADE,
					language_id BIGINT NOT NULL REFERENCES languages(id) ON DELETE CASCADE,
					PRIMARY KEY (user_id, language_id)
				);

				CREATE TABLE IF NOT EXISTS auth_user_contributions (
					user_id BIGINT NOT NULL REFERENCES auth_users(id) ON DELETE CASCADE,
					project_id BIGINT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
					PRIMARY KEY (user_id, project_id)
				);

				CREATE VIEW user_search AS
				SELECT
					u.id AS id,
					u.username AS username,
					u.full_name AS full_name,
					u.email AS email,
					u.is_active AS is_active,
					u.is_bot AS is_bot,
					u.is_superuser AS is_superuser,
					u.date_joined AS date_joined,
					l.code AS language_code,
					p.slug AS project_slug
				FROM auth_users u
				LEFT JOIN auth_user_languages ul ON ul.user_id = u.id
				LEFT JOIN languages l ON l.id = ul.language_id
				LEFT JOIN auth_user_contributions uc ON uc.user_id = u.id
				LEFT JOIN projects p ON p.id = uc.project_id;
			`,
		},
	}
}

// RunMigrations applies all pending access-control migrations. The
// translation-data migrations must run first because the group relation
// tables reference projects and components.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS auth_migrations (
			version INT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	rows, err := db.QueryContext(ctx, "SELECT version FROM auth_migrations ORDER BY version")
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
			"INSERT INTO auth_migrations (version, description) VALUES ($1, $2)",
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
