package auth

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"

	"github.com/WeblateOrg/weblate-go/pkg/search"
	"github.com/WeblateOrg/weblate-go/pkg/trans"
)

// Invalidator is notified whenever a mutation changes what a user may
// do, so cached User values can be dropped. A nil invalidator is fine
// for callers that load users per request.
type Invalidator interface {
	InvalidateUser(userID int64)
}

// Store handles access-control persistence. Entity references inside
// groups are resolved through the translation data store.
type Store struct {
	db          *sql.DB
	entities    *trans.Store
	dialect     search.Dialect
	invalidator Invalidator
}

// NewStore creates an access-control store.
func NewStore(db *sql.DB, entities *trans.Store) *Store {
	return &Store{db: db, entities: entities, dialect: search.DialectPostgres}
}

// SetInvalidator registers the cache invalidation hook.
func (s *Store) SetInvalidator(inv Invalidator) {
	s.invalidator = inv
}

// SetDialect switches the SQL flavor user searches are rendered to.
func (s *Store) SetDialect(dialect search.Dialect) {
	s.dialect = dialect
}

func (s *Store) invalidate(userIDs ...int64) {
	if s.invalidator == nil {
		return
	}
	for _, id := range userIDs {
		s.invalidator.InvalidateUser(id)
	}
}

// invalidateGroup drops the cache of every member of a group.
func (s *Store) invalidateGroup(ctx context.Context, groupID int64) {
	if s.invalidator == nil {
		return
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT user_id FROM auth_user_groups WHERE group_id = $1", groupID)
	if err != nil {
		return
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		if rows.Scan(&id) == nil {
			s.invalidator.InvalidateUser(id)
		}
	}
}

// CreateUser creates a user and applies automatic group assignment
// based on the e-mail address.
func (s *Store) CreateUser(ctx context.Context, user *User) error {
	if user.DateJoined.IsZero() {
		user.DateJoined = time.Now()
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO auth_users (username, full_name, email, is_superuser, is_active, is_bot, has_2fa, email_verified, date_joined)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`,
		user.Username, user.FullName, user.Email, user.IsSuperuser,
		user.IsActive, user.IsBot, user.Has2FA, user.EmailVerified, user.DateJoined,
	).Scan(&user.ID)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return s.applyAutoGroups(ctx, user)
}

// applyAutoGroups joins the user into every automatic group whose
// pattern matches the e-mail. Broken patterns are skipped rather than
// failing user creation.
func (s *Store) applyAutoGroups(ctx context.Context, user *User) error {
	rows, err := s.db.QueryContext(ctx, "SELECT match, group_id FROM auth_autogroups")
	if err != nil {
		return fmt.Errorf("failed to load automatic groups: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var match string
		var groupID int64
		if err := rows.Scan(&match, &groupID); err != nil {
			return fmt.Errorf("failed to scan automatic group: %w", err)
		}
		re, err := regexp.Compile(match)
		if err != nil || !re.MatchString(user.Email) {
			continue
		}
		if err := s.AddUserToGroup(ctx, user.ID, groupID); err != nil {
			return err
		}
	}
	return rows.Err()
}

// EnsureAnonymousUser gets or creates the distinguished anonymous user
// row. It is inactive so it can never log in, and it picks up the
// Guests team grants through automatic group assignment.
func (s *Store) EnsureAnonymousUser(ctx context.Context) (*User, error) {
	existing, err := s.GetUserByUsername(ctx, AnonymousUsername)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}
	anonymous := &User{
		Username: AnonymousUsername,
		FullName: "Anonymous",
		IsActive: false,
	}
	if err := s.CreateUser(ctx, anonymous); err != nil {
		return nil, err
	}
	guests, err := s.GetGroupByName(ctx, TeamGuests, 0)
	if err != nil {
		return nil, err
	}
	if guests != nil {
		if err := s.AddUserToGroup(ctx, anonymous.ID, guests.ID); err != nil {
			return nil, err
		}
	}
	return s.GetUser(ctx, anonymous.ID)
}

const userColumns = "id, username, full_name, email, is_superuser, is_active, is_bot, has_2fa, email_verified, date_joined"

func scanUser(row *sql.Row) (*User, error) {
	var user User
	err := row.Scan(&user.ID, &user.Username, &user.FullName, &user.Email,
		&user.IsSuperuser, &user.IsActive, &user.IsBot,
		&user.Has2FA, &user.EmailVerified, &user.DateJoined)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetUser loads a user with the full membership graph: groups with
// their roles, scope selections and entity references, plus blocks and
// signed agreements. The result is ready for permission evaluation
// without further queries.
func (s *Store) GetUser(ctx context.Context, id int64) (*User, error) {
	user, err := scanUser(s.db.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM auth_users WHERE id = $1", id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user %d: %w", id, err)
	}
	if err := s.loadUserRelations(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// GetUserByUsername loads a user by username, with relations.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	user, err := scanUser(s.db.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM auth_users WHERE username = $1", username))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user %q: %w", username, err)
	}
	if err := s.loadUserRelations(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *Store) loadUserRelations(ctx context.Context, user *User) error {
	groups, err := s.getUserGroups(ctx, user.ID)
	if err != nil {
		return err
	}
	user.Groups = groups

	blocks, err := s.getUserBlocks(ctx, user.ID)
	if err != nil {
		return err
	}
	user.Blocks = blocks

	agreements, err := s.getSignedAgreements(ctx, user.ID)
	if err != nil {
		return err
	}
	user.SignedAgreements = agreements
	user.Invalidate()
	return nil
}

func (s *Store) getUserGroups(ctx context.Context, userID int64) ([]*Group, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT g.id, g.name, g.defining_project_id, g.project_selection, g.language_selection, g.internal, g.enforce_2fa
		FROM auth_groups g
		JOIN auth_user_groups ug ON ug.group_id = g.id
		WHERE ug.user_id = $1
		ORDER BY g.id`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load user groups: %w", err)
	}
	defer rows.Close()

	var groups []*Group
	for rows.Next() {
		group, err := scanGroup(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan group: %w", err)
		}
		groups = append(groups, group)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, group := range groups {
		if err := s.loadGroupRelations(ctx, group); err != nil {
			return nil, err
		}
	}
	return groups, nil
}

func scanGroup(scan func(dest ...any) error) (*Group, error) {
	var group Group
	var definingProject sql.NullInt64
	var projectSelection, languageSelection int
	err := scan(&group.ID, &group.Name, &definingProject,
		&projectSelection, &languageSelection, &group.Internal, &group.Enforce2FA)
	if err != nil {
		return nil, err
	}
	group.ProjectSelection = ProjectSelection(projectSelection)
	group.LanguageSelection = LanguageSelection(languageSelection)
	if definingProject.Valid {
		// Filled in by loadGroupRelations.
		group.DefiningProject = &trans.Project{ID: definingProject.Int64}
	}
	return &group, nil
}

func (s *Store) loadGroupRelations(ctx context.Context, group *Group) error {
	if group.DefiningProject != nil {
		project, err := s.entities.GetProject(ctx, group.DefiningProject.ID)
		if err != nil {
			return err
		}
		group.DefiningProject = project
	}

	roles, err := s.getGroupRoles(ctx, group.ID)
	if err != nil {
		return err
	}
	group.Roles = roles

	projectIDs, err := s.relationIDs(ctx, "SELECT project_id FROM auth_group_projects WHERE group_id = $1", group.ID)
	if err != nil {
		return err
	}
	group.Projects = group.Projects[:0]
	for _, id := range projectIDs {
		project, err := s.entities.GetProject(ctx, id)
		if err != nil {
			return err
		}
		if project != nil {
			group.Projects = append(group.Projects, project)
		}
	}

	componentIDs, err := s.relationIDs(ctx, "SELECT component_id FROM auth_group_components WHERE group_id = $1", group.ID)
	if err != nil {
		return err
	}
	group.Components = group.Components[:0]
	for _, id := range componentIDs {
		component, err := s.entities.GetComponent(ctx, id)
		if err != nil {
			return err
		}
		if component != nil {
			group.Components = append(group.Components, component)
		}
	}

	listIDs, err := s.relationIDs(ctx, "SELECT list_id FROM auth_group_componentlists WHERE group_id = $1", group.ID)
	if err != nil {
		return err
	}
	group.ComponentLists = group.ComponentLists[:0]
	for _, id := range listIDs {
		list, err := s.entities.GetComponentList(ctx, id)
		if err != nil {
			return err
		}
		if list != nil {
			group.ComponentLists = append(group.ComponentLists, list)
		}
	}

	languageIDs, err := s.relationIDs(ctx, "SELECT language_id FROM auth_group_languages WHERE group_id = $1", group.ID)
	if err != nil {
		return err
	}
	languages, err := s.entities.GetLanguagesByIDs(ctx, languageIDs)
	if err != nil {
		return err
	}
	group.Languages = group.Languages[:0]
	for _, id := range languageIDs {
		if lang, ok := languages[id]; ok {
			group.Languages = append(group.Languages, lang)
		}
	}

	group.AdminIDs, err = s.relationIDs(ctx, "SELECT user_id FROM auth_group_admins WHERE group_id = $1", group.ID)
	return err
}

func (s *Store) relationIDs(ctx context.Context, query string, arg int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to load relation: %w", err)
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan relation id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) getGroupRoles(ctx context.Context, groupID int64) ([]*Role, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.name, r.permissions
		FROM auth_roles r
		JOIN auth_group_roles gr ON gr.role_id = r.id
		WHERE gr.group_id = $1
		ORDER BY r.id`, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to load group roles: %w", err)
	}
	defer rows.Close()
	var roles []*Role
	for rows.Next() {
		var role Role
		var permissionsJSON string
		if err := rows.Scan(&role.ID, &role.Name, &permissionsJSON); err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		if err := json.Unmarshal([]byte(permissionsJSON), &role.Permissions); err != nil {
			return nil, fmt.Errorf("failed to unmarshal role permissions: %w", err)
		}
		roles = append(roles, &role)
	}
	return roles, rows.Err()
}

func (s *Store) getUserBlocks(ctx context.Context, userID int64) ([]*UserBlock, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project_id, expiry FROM auth_user_blocks WHERE user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load user blocks: %w", err)
	}
	defer rows.Close()

	type rawBlock struct {
		id        int64
		projectID int64
		expiry    sql.NullTime
	}
	var raw []rawBlock
	for rows.Next() {
		var b rawBlock
		if err := rows.Scan(&b.id, &b.projectID, &b.expiry); err != nil {
			return nil, fmt.Errorf("failed to scan user block: %w", err)
		}
		raw = append(raw, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	blocks := make([]*UserBlock, 0, len(raw))
	for _, b := range raw {
		project, err := s.entities.GetProject(ctx, b.projectID)
		if err != nil {
			return nil, err
		}
		if project == nil {
			continue
		}
		block := &UserBlock{ID: b.id, UserID: userID, Project: project}
		if b.expiry.Valid {
			block.Expiry = b.expiry.Time
		}
		blocks = append(blocks, block)
	}
	return blocks, nil
}

func (s *Store) getSignedAgreements(ctx context.Context, userID int64) (map[int64]bool, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT component_id FROM auth_agreements WHERE user_id = $1", userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load agreements: %w", err)
	}
	defer rows.Close()
	signed := make(map[int64]bool)
	for rows.Next() {
		var componentID int64
		if err := rows.Scan(&componentID); err != nil {
			return nil, fmt.Errorf("failed to scan agreement: %w", err)
		}
		signed[componentID] = true
	}
	return signed, rows.Err()
}

// CreateRole creates a role with its permission codenames stored as
// JSON, validating each codename against the catalog.
func (s *Store) CreateRole(ctx context.Context, role *Role) error {
	for _, perm := range role.Permissions {
		if !KnownPermission(perm) && !GlobalPermission(perm) {
			return fmt.Errorf("%w: %q", ErrUnknownPermission, perm)
		}
	}
	permissionsJSON, err := json.Marshal(role.Permissions)
	if err != nil {
		return fmt.Errorf("failed to marshal permissions: %w", err)
	}
	err = s.db.QueryRowContext(ctx,
		"INSERT INTO auth_roles (name, permissions) VALUES ($1, $2) RETURNING id",
		role.Name, string(permissionsJSON),
	).Scan(&role.ID)
	if err != nil {
		return fmt.Errorf("failed to create role: %w", err)
	}
	return nil
}

// GetRoleByName retrieves a role by name.
func (s *Store) GetRoleByName(ctx context.Context, name string) (*Role, error) {
	var role Role
	var permissionsJSON string
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, permissions FROM auth_roles WHERE name = $1", name,
	).Scan(&role.ID, &role.Name, &permissionsJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get role %q: %w", name, err)
	}
	if err := json.Unmarshal([]byte(permissionsJSON), &role.Permissions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal role permissions: %w", err)
	}
	return &role, nil
}

// UpdateRolePermissions replaces a role's permission set and drops the
// caches of every user reached through it.
func (s *Store) UpdateRolePermissions(ctx context.Context, roleID int64, permissions []string) error {
	for _, perm := range permissions {
		if !KnownPermission(perm) && !GlobalPermission(perm) {
			return fmt.Errorf("%w: %q", ErrUnknownPermission, perm)
		}
	}
	permissionsJSON, err := json.Marshal(permissions)
	if err != nil {
		return fmt.Errorf("failed to marshal permissions: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		"UPDATE auth_roles SET permissions = $1 WHERE id = $2",
		string(permissionsJSON), roleID)
	if err != nil {
		return fmt.Errorf("failed to update role: %w", err)
	}

	groupIDs, err := s.relationIDs(ctx, "SELECT group_id FROM auth_group_roles WHERE role_id = $1", roleID)
	if err != nil {
		return err
	}
	for _, groupID := range groupIDs {
		s.invalidateGroup(ctx, groupID)
	}
	return nil
}

// CreateGroup creates a group with all of its relations. The group is
// normalized first so the selection invariants hold in storage.
func (s *Store) CreateGroup(ctx context.Context, group *Group) error {
	group.Normalize()

	var definingProject sql.NullInt64
	if group.DefiningProject != nil {
		definingProject = sql.NullInt64{Int64: group.DefiningProject.ID, Valid: true}
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO auth_groups (name, defining_project_id, project_selection, language_selection, internal, enforce_2fa)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		group.Name, definingProject, int(group.ProjectSelection),
		int(group.LanguageSelection), group.Internal, group.Enforce2FA,
	).Scan(&group.ID)
	if err != nil {
		return fmt.Errorf("failed to create group: %w", err)
	}
	return s.saveGroupRelations(ctx, group)
}

// UpdateGroup rewrites a group row and all of its relations, then
// invalidates every member.
func (s *Store) UpdateGroup(ctx context.Context, group *Group) error {
	group.Normalize()

	var definingProject sql.NullInt64
	if group.DefiningProject != nil {
		definingProject = sql.NullInt64{Int64: group.DefiningProject.ID, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE auth_groups
		SET name = $1, defining_project_id = $2, project_selection = $3, language_selection = $4, internal = $5, enforce_2fa = $6
		WHERE id = $7`,
		group.Name, definingProject, int(group.ProjectSelection),
		int(group.LanguageSelection), group.Internal, group.Enforce2FA, group.ID)
	if err != nil {
		return fmt.Errorf("failed to update group: %w", err)
	}

	for _, table := range []string{
		"auth_group_roles", "auth_group_projects", "auth_group_components",
		"auth_group_componentlists", "auth_group_languages", "auth_group_admins",
	} {
		if _, err := s.db.ExecContext(ctx,
			fmt.Sprintf("DELETE FROM %s WHERE group_id = $1", table), group.ID); err != nil {
			return fmt.Errorf("failed to clear group relations: %w", err)
		}
	}
	if err := s.saveGroupRelations(ctx, group); err != nil {
		return err
	}
	s.invalidateGroup(ctx, group.ID)
	return nil
}

func (s *Store) saveGroupRelations(ctx context.Context, group *Group) error {
	insert := func(query string, id int64) error {
		if _, err := s.db.ExecContext(ctx, query, group.ID, id); err != nil {
			return fmt.Errorf("failed to save group relation: %w", err)
		}
		return nil
	}
	for _, role := range group.Roles {
		if err := insert("INSERT INTO auth_group_roles (group_id, role_id) VALUES ($1, $2) ON CONFLICT DO NOTHING", role.ID); err != nil {
			return err
		}
	}
	for _, project := range group.Projects {
		if err := insert("INSERT INTO auth_group_projects (group_id, project_id) VALUES ($1, $2) ON CONFLICT DO NOTHING", project.ID); err != nil {
			return err
		}
	}
	for _, component := range group.Components {
		if err := insert("INSERT INTO auth_group_components (group_id, component_id) VALUES ($1, $2) ON CONFLICT DO NOTHING", component.ID); err != nil {
			return err
		}
	}
	for _, list := range group.ComponentLists {
		if err := insert("INSERT INTO auth_group_componentlists (group_id, list_id) VALUES ($1, $2) ON CONFLICT DO NOTHING", list.ID); err != nil {
			return err
		}
	}
	for _, language := range group.Languages {
		if err := insert("INSERT INTO auth_group_languages (group_id, language_id) VALUES ($1, $2) ON CONFLICT DO NOTHING", language.ID); err != nil {
			return err
		}
	}
	for _, adminID := range group.AdminIDs {
		if err := insert("INSERT INTO auth_group_admins (group_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING", adminID); err != nil {
			return err
		}
	}
	return nil
}

// GetGroupByName retrieves a group by name and defining project (0 for
// site-wide groups), with relations.
func (s *Store) GetGroupByName(ctx context.Context, name string, definingProjectID int64) (*Group, error) {
	query := "SELECT id, name, defining_project_id, project_selection, language_selection, internal, enforce_2fa FROM auth_groups WHERE name = $1 AND "
	args := []any{name}
	if definingProjectID == 0 {
		query += "defining_project_id IS NULL"
	} else {
		query += "defining_project_id = $2"
		args = append(args, definingProjectID)
	}
	row := s.db.QueryRowContext(ctx, query, args...)
	group, err := scanGroup(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get group %q: %w", name, err)
	}
	if err := s.loadGroupRelations(ctx, group); err != nil {
		return nil, err
	}
	return group, nil
}

// AddUserToGroup adds a membership and invalidates the user.
func (s *Store) AddUserToGroup(ctx context.Context, userID, groupID int64) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO auth_user_groups (user_id, group_id) VALUES ($1, $2) ON CONFLICT DO NOTHING",
		userID, groupID)
	if err != nil {
		return fmt.Errorf("failed to add user to group: %w", err)
	}
	s.invalidate(userID)
	return nil
}

// RemoveUserFromGroup removes a membership and invalidates the user.
func (s *Store) RemoveUserFromGroup(ctx context.Context, userID, groupID int64) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM auth_user_groups WHERE user_id = $1 AND group_id = $2",
		userID, groupID)
	if err != nil {
		return fmt.Errorf("failed to remove user from group: %w", err)
	}
	s.invalidate(userID)
	return nil
}

// CreateUserBlock blocks a user on a project. A zero expiry blocks
// indefinitely.
func (s *Store) CreateUserBlock(ctx context.Context, block *UserBlock) error {
	if block.Project == nil {
		return fmt.Errorf("user block requires a project")
	}
	var expiry sql.NullTime
	if !block.Expiry.IsZero() {
		expiry = sql.NullTime{Time: block.Expiry, Valid: true}
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO auth_user_blocks (user_id, project_id, expiry)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, project_id) DO UPDATE SET expiry = EXCLUDED.expiry
		RETURNING id`,
		block.UserID, block.Project.ID, expiry,
	).Scan(&block.ID)
	if err != nil {
		return fmt.Errorf("failed to create user block: %w", err)
	}
	s.invalidate(block.UserID)
	return nil
}

// DeleteUserBlock removes a block by ID. Implements the evaluator's
// expired-block cleanup hook.
func (s *Store) DeleteUserBlock(ctx context.Context, blockID int64) error {
	var userID int64
	err := s.db.QueryRowContext(ctx,
		"DELETE FROM auth_user_blocks WHERE id = $1 RETURNING user_id", blockID,
	).Scan(&userID)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to delete user block: %w", err)
	}
	s.invalidate(userID)
	return nil
}

// DeleteExpiredBlocks sweeps all blocks past their expiry. Run
// periodically; the evaluator also drops them lazily.
func (s *Store) DeleteExpiredBlocks(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM auth_user_blocks WHERE expiry IS NOT NULL AND expiry < NOW()")
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired blocks: %w", err)
	}
	n, _ := result.RowsAffected()
	return n, nil
}

// SignAgreement records the user's acceptance of a component's
// contributor agreement.
func (s *Store) SignAgreement(ctx context.Context, userID, componentID int64) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO auth_agreements (user_id, component_id) VALUES ($1, $2) ON CONFLICT DO NOTHING",
		userID, componentID)
	if err != nil {
		return fmt.Errorf("failed to sign agreement: %w", err)
	}
	s.invalidate(userID)
	return nil
}

// CreateInvitation creates a pending invitation with a fresh token.
func (s *Store) CreateInvitation(ctx context.Context, invitation *Invitation) error {
	invitation.Token = uuid.NewString()
	invitation.CreatedAt = time.Now()
	var userID, groupID sql.NullInt64
	if invitation.UserID != 0 {
		userID = sql.NullInt64{Int64: invitation.UserID, Valid: true}
	}
	if invitation.GroupID != 0 {
		groupID = sql.NullInt64{Int64: invitation.GroupID, Valid: true}
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO auth_invitations (token, author_id, user_id, email, username, full_name, group_id, is_superuser, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`,
		invitation.Token, invitation.AuthorID, userID, invitation.Email,
		invitation.Username, invitation.FullName, groupID,
		invitation.IsSuperuser, invitation.CreatedAt,
	).Scan(&invitation.ID)
	if err != nil {
		return fmt.Errorf("failed to create invitation: %w", err)
	}
	return nil
}

// GetInvitationByToken retrieves a pending invitation.
func (s *Store) GetInvitationByToken(ctx context.Context, token string) (*Invitation, error) {
	var invitation Invitation
	var userID, groupID sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT id, token, author_id, user_id, email, username, full_name, group_id, is_superuser, created_at
		FROM auth_invitations WHERE token = $1`, token,
	).Scan(&invitation.ID, &invitation.Token, &invitation.AuthorID, &userID,
		&invitation.Email, &invitation.Username, &invitation.FullName,
		&groupID, &invitation.IsSuperuser, &invitation.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get invitation: %w", err)
	}
	invitation.UserID = userID.Int64
	invitation.GroupID = groupID.Int64
	return &invitation, nil
}

// AcceptInvitation applies an invitation to a user and consumes it:
// group membership and the superuser flag are granted atomically with
// the invitation's deletion, so a token can only be used once.
func (s *Store) AcceptInvitation(ctx context.Context, invitation *Invitation, userID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		"DELETE FROM auth_invitations WHERE id = $1", invitation.ID)
	if err != nil {
		return fmt.Errorf("failed to consume invitation: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("invitation already used")
	}

	if invitation.GroupID != 0 {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO auth_user_groups (user_id, group_id) VALUES ($1, $2) ON CONFLICT DO NOTHING",
			userID, invitation.GroupID); err != nil {
			return fmt.Errorf("failed to apply invitation group: %w", err)
		}
	}
	if invitation.IsSuperuser {
		if _, err := tx.ExecContext(ctx,
			"UPDATE auth_users SET is_superuser = TRUE WHERE id = $1", userID); err != nil {
			return fmt.Errorf("failed to apply invitation superuser flag: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit invitation: %w", err)
	}
	s.invalidate(userID)
	return nil
}

// DeleteStaleInvitations removes invitations older than maxAge.
func (s *Store) DeleteStaleInvitations(ctx context.Context, maxAge time.Duration) (int64, error) {
	cutoff := time.Now().Add(-maxAge)
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM auth_invitations WHERE created_at < $1", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete stale invitations: %w", err)
	}
	n, _ := result.RowsAffected()
	return n, nil
}

// CreateAutoGroup registers an automatic group assignment pattern. The
// pattern must be a valid regular expression.
func (s *Store) CreateAutoGroup(ctx context.Context, autoGroup *AutoGroup) error {
	if _, err := regexp.Compile(autoGroup.Match); err != nil {
		return fmt.Errorf("invalid automatic group pattern: %w", err)
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO auth_autogroups (match, group_id) VALUES ($1, $2)
		ON CONFLICT (match, group_id) DO UPDATE SET match = EXCLUDED.match
		RETURNING id`,
		autoGroup.Match, autoGroup.GroupID,
	).Scan(&autoGroup.ID)
	if err != nil {
		return fmt.Errorf("failed to create automatic group: %w", err)
	}
	return nil
}

// SearchUsers compiles a user search query and returns matching user
// IDs. Kind selects the field table; the superuser variant exposes
// e-mail and account flags.
func (s *Store) SearchUsers(ctx context.Context, text string, kind search.Kind) ([]int64, error) {
	if kind != search.KindUser && kind != search.KindSuperuser {
		return nil, fmt.Errorf("unsupported user search kind %q", kind)
	}
	query, err := search.ParseQuery(text, kind, nil)
	if err != nil {
		return nil, err
	}
	where, args := search.ToSQL(query, s.dialect)
	rows, err := s.db.QueryContext(ctx,
		"SELECT DISTINCT id FROM user_search WHERE "+where+" ORDER BY id", args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search users: %w", err)
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan user id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
