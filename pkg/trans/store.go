package trans

import (
	"context"
	"database/sql"
	"fmt"
)

// Store handles translation data persistence.
type Store struct {
	db *sql.DB
}

// NewStore creates a translation data store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// CreateLanguage creates a language.
func (s *Store) CreateLanguage(ctx context.Context, language *Language) error {
	err := s.db.QueryRowContext(ctx,
		"INSERT INTO languages (code, name) VALUES ($1, $2) RETURNING id",
		language.Code, language.Name,
	).Scan(&language.ID)
	if err != nil {
		return fmt.Errorf("failed to create language: %w", err)
	}
	return nil
}

// GetLanguagesByIDs loads a set of languages keyed by ID.
func (s *Store) GetLanguagesByIDs(ctx context.Context, ids []int64) (map[int64]*Language, error) {
	out := make(map[int64]*Language, len(ids))
	for _, id := range ids {
		if _, ok := out[id]; ok {
			continue
		}
		var lang Language
		err := s.db.QueryRowContext(ctx,
			"SELECT id, code, name FROM languages WHERE id = $1", id,
		).Scan(&lang.ID, &lang.Code, &lang.Name)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load language %d: %w", id, err)
		}
		out[lang.ID] = &lang
	}
	return out, nil
}

// CreateProject creates a project.
func (s *Store) CreateProject(ctx context.Context, project *Project) error {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO projects (slug, name, access_control, enforce_2fa, translation_review, source_review)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		project.Slug, project.Name, int(project.Access),
		project.Enforce2FA, project.TranslationReview, project.SourceReview,
	).Scan(&project.ID)
	if err != nil {
		return fmt.Errorf("failed to create project: %w", err)
	}
	return nil
}

const projectColumns = "id, slug, name, access_control, enforce_2fa, translation_review, source_review"

func scanProject(row *sql.Row) (*Project, error) {
	var project Project
	var access int
	err := row.Scan(&project.ID, &project.Slug, &project.Name, &access,
		&project.Enforce2FA, &project.TranslationReview, &project.SourceReview)
	if err != nil {
		return nil, err
	}
	project.Access = AccessControl(access)
	return &project, nil
}

// GetProject retrieves a project by ID.
func (s *Store) GetProject(ctx context.Context, id int64) (*Project, error) {
	project, err := scanProject(s.db.QueryRowContext(ctx,
		"SELECT "+projectColumns+" FROM projects WHERE id = $1", id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project %d: %w", id, err)
	}
	return project, nil
}

// GetProjectBySlug retrieves a project by slug.
func (s *Store) GetProjectBySlug(ctx context.Context, slug string) (*Project, error) {
	project, err := scanProject(s.db.QueryRowContext(ctx,
		"SELECT "+projectColumns+" FROM projects WHERE slug = $1", slug))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project %q: %w", slug, err)
	}
	return project, nil
}

// UpdateProjectAccess changes a project's access control level.
func (s *Store) UpdateProjectAccess(ctx context.Context, projectID int64, access AccessControl) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE projects SET access_control = $1 WHERE id = $2", int(access), projectID)
	if err != nil {
		return fmt.Errorf("failed to update project access: %w", err)
	}
	return nil
}

// CreateComponent creates a component.
func (s *Store) CreateComponent(ctx context.Context, component *Component) error {
	if component.Project == nil {
		return fmt.Errorf("component requires a project")
	}
	var sourceLanguage sql.NullInt64
	if component.SourceLanguage != nil {
		sourceLanguage = sql.NullInt64{Int64: component.SourceLanguage.ID, Valid: true}
	}
	var category sql.NullInt64
	if component.Category != nil {
		category = sql.NullInt64{Int64: component.Category.ID, Valid: true}
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO components (project_id, category_id, slug, name, restricted, locked, is_glossary,
			agreement, manage_units, template, edit_template, source_language_id,
			suggestion_voting, suggestion_autoaccept)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id`,
		component.Project.ID, category, component.Slug, component.Name,
		component.Restricted, component.Locked, component.IsGlossary,
		component.Agreement, component.ManageUnits, component.Template,
		component.EditTemplate, sourceLanguage,
		component.SuggestionVoting, component.SuggestionAutoaccept,
	).Scan(&component.ID)
	if err != nil {
		return fmt.Errorf("failed to create component: %w", err)
	}
	return nil
}

const componentColumns = `c.id, c.slug, c.name, c.restricted, c.locked, c.is_glossary,
	c.agreement, c.manage_units, c.template, c.edit_template,
	c.suggestion_voting, c.suggestion_autoaccept,
	p.id, p.slug, p.name, p.access_control, p.enforce_2fa, p.translation_review, p.source_review`

func scanComponent(scan func(dest ...any) error) (*Component, error) {
	var component Component
	var project Project
	var access int
	err := scan(&component.ID, &component.Slug, &component.Name,
		&component.Restricted, &component.Locked, &component.IsGlossary,
		&component.Agreement, &component.ManageUnits, &component.Template,
		&component.EditTemplate, &component.SuggestionVoting, &component.SuggestionAutoaccept,
		&project.ID, &project.Slug, &project.Name, &access,
		&project.Enforce2FA, &project.TranslationReview, &project.SourceReview)
	if err != nil {
		return nil, err
	}
	project.Access = AccessControl(access)
	component.Project = &project
	return &component, nil
}

// GetComponent retrieves a component with its project.
func (s *Store) GetComponent(ctx context.Context, id int64) (*Component, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+componentColumns+`
		FROM components c JOIN projects p ON p.id = c.project_id
		WHERE c.id = $1`, id)
	component, err := scanComponent(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get component %d: %w", id, err)
	}
	return component, nil
}

// GetProjectComponents loads all components of a project.
func (s *Store) GetProjectComponents(ctx context.Context, projectID int64) ([]*Component, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+componentColumns+`
		FROM components c JOIN projects p ON p.id = c.project_id
		WHERE c.project_id = $1
		ORDER BY c.slug`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list components: %w", err)
	}
	defer rows.Close()
	var out []*Component
	for rows.Next() {
		component, err := scanComponent(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan component: %w", err)
		}
		out = append(out, component)
	}
	return out, rows.Err()
}

// CreateComponentList creates a component list.
func (s *Store) CreateComponentList(ctx context.Context, list *ComponentList) error {
	err := s.db.QueryRowContext(ctx,
		"INSERT INTO component_lists (slug, name) VALUES ($1, $2) RETURNING id",
		list.Slug, list.Name,
	).Scan(&list.ID)
	if err != nil {
		return fmt.Errorf("failed to create component list: %w", err)
	}
	for _, component := range list.Components {
		if err := s.AddComponentToList(ctx, list.ID, component.ID); err != nil {
			return err
		}
	}
	return nil
}

// AddComponentToList adds a component to a component list.
func (s *Store) AddComponentToList(ctx context.Context, listID, componentID int64) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO component_list_components (list_id, component_id) VALUES ($1, $2) ON CONFLICT DO NOTHING",
		listID, componentID)
	if err != nil {
		return fmt.Errorf("failed to add component to list: %w", err)
	}
	return nil
}

// GetComponentList retrieves a component list with its components.
func (s *Store) GetComponentList(ctx context.Context, id int64) (*ComponentList, error) {
	var list ComponentList
	err := s.db.QueryRowContext(ctx,
		"SELECT id, slug, name FROM component_lists WHERE id = $1", id,
	).Scan(&list.ID, &list.Slug, &list.Name)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get component list %d: %w", id, err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+componentColumns+`
		FROM component_list_components lc
		JOIN components c ON c.id = lc.component_id
		JOIN projects p ON p.id = c.project_id
		WHERE lc.list_id = $1
		ORDER BY c.slug`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load list components: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		component, err := scanComponent(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan list component: %w", err)
		}
		list.Components = append(list.Components, component)
	}
	return &list, rows.Err()
}

// CreateTranslation creates a translation.
func (s *Store) CreateTranslation(ctx context.Context, translation *Translation) error {
	if translation.Component == nil || translation.Language == nil {
		return fmt.Errorf("translation requires a component and a language")
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO translations (component_id, language_id, is_source)
		VALUES ($1, $2, $3)
		RETURNING id`,
		translation.Component.ID, translation.Language.ID, translation.IsSource,
	).Scan(&translation.ID)
	if err != nil {
		return fmt.Errorf("failed to create translation: %w", err)
	}
	return nil
}

// GetTranslation retrieves a translation with component, project and
// language attached, ready for permission checks.
func (s *Store) GetTranslation(ctx context.Context, id int64) (*Translation, error) {
	var translation Translation
	var componentID, languageID int64
	err := s.db.QueryRowContext(ctx,
		"SELECT id, component_id, language_id, is_source FROM translations WHERE id = $1", id,
	).Scan(&translation.ID, &componentID, &languageID, &translation.IsSource)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get translation %d: %w", id, err)
	}
	translation.Component, err = s.GetComponent(ctx, componentID)
	if err != nil {
		return nil, err
	}
	languages, err := s.GetLanguagesByIDs(ctx, []int64{languageID})
	if err != nil {
		return nil, err
	}
	translation.Language = languages[languageID]
	return &translation, nil
}

// CreateUnit creates a unit.
func (s *Store) CreateUnit(ctx context.Context, unit *Unit) error {
	if unit.Translation == nil {
		return fmt.Errorf("unit requires a translation")
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO units (translation_id, position, context, source, target, note, location, explanation, state, pending, priority)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id`,
		unit.Translation.ID, unit.Position, unit.Context, unit.Source, unit.Target,
		unit.Note, unit.Location, unit.Explanation, int(unit.State), unit.Pending, unit.Priority,
	).Scan(&unit.ID)
	if err != nil {
		return fmt.Errorf("failed to create unit: %w", err)
	}
	return nil
}

// GetUnit retrieves a unit with its translation graph attached.
func (s *Store) GetUnit(ctx context.Context, id int64) (*Unit, error) {
	var unit Unit
	var translationID int64
	var state int
	err := s.db.QueryRowContext(ctx, `
		SELECT id, translation_id, position, context, source, target, note, location, explanation, state, pending, priority
		FROM units WHERE id = $1`, id,
	).Scan(&unit.ID, &translationID, &unit.Position, &unit.Context, &unit.Source,
		&unit.Target, &unit.Note, &unit.Location, &unit.Explanation, &state,
		&unit.Pending, &unit.Priority)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get unit %d: %w", id, err)
	}
	unit.State = State(state)
	unit.Translation, err = s.GetTranslation(ctx, translationID)
	if err != nil {
		return nil, err
	}
	return &unit, nil
}

// GlossaryTerms returns the source strings of a project's glossary
// components, feeding has:glossary search matching.
func (s *Store) GlossaryTerms(ctx context.Context, projectID int64) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT u.source
		FROM units u
		JOIN translations t ON t.id = u.translation_id
		JOIN components c ON c.id = t.component_id
		WHERE c.project_id = $1 AND c.is_glossary AND t.is_source AND u.source <> ''
		ORDER BY u.source`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to load glossary terms: %w", err)
	}
	defer rows.Close()
	var terms []string
	for rows.Next() {
		var term string
		if err := rows.Scan(&term); err != nil {
			return nil, fmt.Errorf("failed to scan glossary term: %w", err)
		}
		terms = append(terms, term)
	}
	return terms, rows.Err()
}

// SearchUnits runs a rendered search predicate against the unit search
// view and returns matching unit IDs. The predicate comes out of the
// query compiler; this store does not interpret it.
func (s *Store) SearchUnits(ctx context.Context, where string, args []any) ([]int64, error) {
	query := "SELECT DISTINCT id FROM unit_search WHERE " + where + " ORDER BY id"
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search units: %w", err)
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan unit id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// RecordChange appends a change history entry for a unit.
func (s *Store) RecordChange(ctx context.Context, unitID int64, action ChangeAction, author string) error {
	var translationID sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		"SELECT translation_id FROM units WHERE id = $1", unitID,
	).Scan(&translationID.Int64)
	if err != nil {
		return fmt.Errorf("failed to resolve unit %d: %w", unitID, err)
	}
	translationID.Valid = true
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO changes (unit_id, translation_id, action, author) VALUES ($1, $2, $3, $4)",
		unitID, translationID, int(action), author)
	if err != nil {
		return fmt.Errorf("failed to record change: %w", err)
	}
	return nil
}
