package auth

import (
	"context"
	"fmt"

	"github.com/WeblateOrg/weblate-go/pkg/trans"
)

// seedStore is the slice of Store the seeding routines consume.
type seedStore interface {
	GetRoleByName(ctx context.Context, name string) (*Role, error)
	CreateRole(ctx context.Context, role *Role) error
	UpdateRolePermissions(ctx context.Context, roleID int64, permissions []string) error
	GetGroupByName(ctx context.Context, name string, definingProjectID int64) (*Group, error)
	CreateGroup(ctx context.Context, group *Group) error
	UpdateGroup(ctx context.Context, group *Group) error
	CreateAutoGroup(ctx context.Context, autoGroup *AutoGroup) error
}

// SetupGroups seeds the built-in roles and sitewide teams. It is
// idempotent: existing rows are left alone unless update is set, in
// which case built-in role permission sets are rewritten to match the
// current catalog. User membership is never touched.
func SetupGroups(ctx context.Context, store seedStore, update bool) error {
	roles := make(map[string]*Role)
	for _, def := range RoleDefinitions() {
		permissions := def.Permissions
		if permissions == nil {
			permissions = AllPermissionCodenames()
		}
		role, err := store.GetRoleByName(ctx, def.Name)
		if err != nil {
			return err
		}
		switch {
		case role == nil:
			role = &Role{Name: def.Name, Permissions: permissions}
			if err := store.CreateRole(ctx, role); err != nil {
				return fmt.Errorf("failed to seed role %q: %w", def.Name, err)
			}
		case update:
			if err := store.UpdateRolePermissions(ctx, role.ID, permissions); err != nil {
				return fmt.Errorf("failed to update role %q: %w", def.Name, err)
			}
			role.Permissions = permissions
		}
		roles[def.Name] = role
	}

	for _, def := range TeamDefinitions() {
		group, err := store.GetGroupByName(ctx, def.Name, 0)
		if err != nil {
			return err
		}
		if group != nil && !update {
			continue
		}
		teamRoles := make([]*Role, 0, len(def.Roles))
		for _, name := range def.Roles {
			role, ok := roles[name]
			if !ok {
				return fmt.Errorf("team %q references unknown role %q", def.Name, name)
			}
			teamRoles = append(teamRoles, role)
		}
		if group == nil {
			group = &Group{
				Name:              def.Name,
				ProjectSelection:  def.ProjectSelection,
				LanguageSelection: def.LanguageSelection,
				Roles:             teamRoles,
				Internal:          true,
			}
			if err := store.CreateGroup(ctx, group); err != nil {
				return fmt.Errorf("failed to seed team %q: %w", def.Name, err)
			}
			continue
		}
		group.ProjectSelection = def.ProjectSelection
		group.LanguageSelection = def.LanguageSelection
		group.Roles = teamRoles
		group.Internal = true
		if err := store.UpdateGroup(ctx, group); err != nil {
			return fmt.Errorf("failed to update team %q: %w", def.Name, err)
		}
	}

	// New accounts land in Users and Viewers.
	for _, name := range []string{TeamUsers, TeamViewers} {
		group, err := store.GetGroupByName(ctx, name, 0)
		if err != nil {
			return err
		}
		if group == nil {
			continue
		}
		if err := store.CreateAutoGroup(ctx, &AutoGroup{Match: "^.*$", GroupID: group.ID}); err != nil {
			return err
		}
	}
	return nil
}

// SetupProjectGroups creates the per-project teams for a project with
// custom access control. Idempotent; the review team is only created
// when the project has review enabled, the billing team only when
// billing is installed.
func SetupProjectGroups(ctx context.Context, store seedStore, project *trans.Project, billingInstalled bool) error {
	for _, def := range ProjectTeamDefinitions() {
		if def.ReviewOnly && !project.TranslationReview {
			continue
		}
		if def.BillingOnly && !billingInstalled {
			continue
		}
		existing, err := store.GetGroupByName(ctx, def.Name, project.ID)
		if err != nil {
			return err
		}
		if existing != nil {
			continue
		}
		role, err := store.GetRoleByName(ctx, def.Role)
		if err != nil {
			return err
		}
		if role == nil {
			return fmt.Errorf("project team %q references unknown role %q", def.Name, def.Role)
		}
		group := &Group{
			Name:              def.Name,
			DefiningProject:   project,
			ProjectSelection:  SelectionManual,
			LanguageSelection: LanguageSelectionAll,
			Roles:             []*Role{role},
			Projects:          []*trans.Project{project},
			Internal:          true,
		}
		if err := store.CreateGroup(ctx, group); err != nil {
			return fmt.Errorf("failed to create project team %q: %w", def.Name, err)
		}
	}
	return nil
}
