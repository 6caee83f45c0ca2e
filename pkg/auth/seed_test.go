package auth

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/WeblateOrg/weblate-go/pkg/trans"
)

// seedFixture is an in-memory seedStore tracking how many rows the
// seeding routines create, so reruns can be asserted not to grow it.
type seedFixture struct {
	roles       map[string]*Role
	groups      map[string]*Group
	autoGroups  map[string]bool
	nextID      int64
	rolesMade   int
	groupsMade  int
	roleUpdates int
}

func newSeedFixture() *seedFixture {
	return &seedFixture{
		roles:      make(map[string]*Role),
		groups:     make(map[string]*Group),
		autoGroups: make(map[string]bool),
	}
}

func (f *seedFixture) groupKey(name string, projectID int64) string {
	return fmt.Sprintf("%d/%s", projectID, name)
}

func (f *seedFixture) GetRoleByName(ctx context.Context, name string) (*Role, error) {
	return f.roles[name], nil
}

func (f *seedFixture) CreateRole(ctx context.Context, role *Role) error {
	f.nextID++
	role.ID = f.nextID
	f.roles[role.Name] = role
	f.rolesMade++
	return nil
}

func (f *seedFixture) UpdateRolePermissions(ctx context.Context, roleID int64, permissions []string) error {
	for _, role := range f.roles {
		if role.ID == roleID {
			role.Permissions = permissions
		}
	}
	f.roleUpdates++
	return nil
}

func (f *seedFixture) GetGroupByName(ctx context.Context, name string, definingProjectID int64) (*Group, error) {
	return f.groups[f.groupKey(name, definingProjectID)], nil
}

func (f *seedFixture) CreateGroup(ctx context.Context, group *Group) error {
	f.nextID++
	group.ID = f.nextID
	var projectID int64
	if group.DefiningProject != nil {
		projectID = group.DefiningProject.ID
	}
	f.groups[f.groupKey(group.Name, projectID)] = group
	f.groupsMade++
	return nil
}

func (f *seedFixture) UpdateGroup(ctx context.Context, group *Group) error {
	return nil
}

func (f *seedFixture) CreateAutoGroup(ctx context.Context, autoGroup *AutoGroup) error {
	// The store upserts on (match, group_id); duplicates are no-ops.
	f.autoGroups[fmt.Sprintf("%d/%s", autoGroup.GroupID, autoGroup.Match)] = true
	return nil
}

func TestSetupGroups(t *testing.T) {
	ctx := context.Background()

	t.Run("creates the full catalog", func(t *testing.T) {
		fixture := newSeedFixture()
		require.NoError(t, SetupGroups(ctx, fixture, false))

		assert.Len(t, fixture.roles, len(RoleDefinitions()))
		assert.Len(t, fixture.groups, len(TeamDefinitions()))

		// New accounts land in Users and Viewers.
		assert.Len(t, fixture.autoGroups, 2)

		// A nil permission list seeds every object-scoped permission.
		admin := fixture.roles[RoleAdministration]
		require.NotNil(t, admin)
		assert.Equal(t, AllPermissionCodenames(), admin.Permissions)

		viewers := fixture.groups[fixture.groupKey(TeamViewers, 0)]
		require.NotNil(t, viewers)
		assert.True(t, viewers.Internal)
		assert.Equal(t, SelectionAllProtected, viewers.ProjectSelection)
		assert.Empty(t, viewers.Roles)
	})

	t.Run("rerun creates nothing new", func(t *testing.T) {
		fixture := newSeedFixture()
		require.NoError(t, SetupGroups(ctx, fixture, false))
		roles, groups := fixture.rolesMade, fixture.groupsMade

		require.NoError(t, SetupGroups(ctx, fixture, false))
		assert.Equal(t, roles, fixture.rolesMade)
		assert.Equal(t, groups, fixture.groupsMade)
		assert.Zero(t, fixture.roleUpdates)
		assert.Len(t, fixture.autoGroups, 2)
	})

	t.Run("update converges drifted role permissions", func(t *testing.T) {
		fixture := newSeedFixture()
		require.NoError(t, SetupGroups(ctx, fixture, false))

		drifted := fixture.roles[RoleTranslate]
		require.NotNil(t, drifted)
		drifted.Permissions = []string{"comment.add"}

		// Without update the drift stays.
		require.NoError(t, SetupGroups(ctx, fixture, false))
		assert.Equal(t, []string{"comment.add"}, fixture.roles[RoleTranslate].Permissions)

		require.NoError(t, SetupGroups(ctx, fixture, true))
		assert.Contains(t, fixture.roles[RoleTranslate].Permissions, "unit.edit")
		assert.Positive(t, fixture.roleUpdates)
		assert.Zero(t, fixture.groupsMade-len(TeamDefinitions()), "update must not duplicate teams")
	})
}

func TestSetupProjectGroups(t *testing.T) {
	ctx := context.Background()

	seeded := func(t *testing.T) *seedFixture {
		t.Helper()
		fixture := newSeedFixture()
		require.NoError(t, SetupGroups(ctx, fixture, false))
		return fixture
	}

	t.Run("review and billing teams are conditional", func(t *testing.T) {
		fixture := seeded(t)
		project := &trans.Project{ID: 5, Slug: "hello"}
		before := len(fixture.groups)

		require.NoError(t, SetupProjectGroups(ctx, fixture, project, false))
		assert.Len(t, fixture.groups, before+len(ProjectTeamDefinitions())-2)
		assert.Nil(t, fixture.groups[fixture.groupKey("Review", 5)])
		assert.Nil(t, fixture.groups[fixture.groupKey("Billing", 5)])

		team := fixture.groups[fixture.groupKey("Translate", 5)]
		require.NotNil(t, team)
		assert.Equal(t, SelectionManual, team.ProjectSelection)
		assert.Equal(t, []*trans.Project{project}, team.Projects)
		assert.True(t, team.Internal)
	})

	t.Run("review-enabled project with billing gets every team", func(t *testing.T) {
		fixture := seeded(t)
		project := &trans.Project{ID: 6, Slug: "docs", TranslationReview: true}
		before := len(fixture.groups)

		require.NoError(t, SetupProjectGroups(ctx, fixture, project, true))
		assert.Len(t, fixture.groups, before+len(ProjectTeamDefinitions()))
		assert.NotNil(t, fixture.groups[fixture.groupKey("Review", 6)])
		assert.NotNil(t, fixture.groups[fixture.groupKey("Billing", 6)])
	})

	t.Run("rerun creates no duplicates", func(t *testing.T) {
		fixture := seeded(t)
		project := &trans.Project{ID: 7, Slug: "web"}

		require.NoError(t, SetupProjectGroups(ctx, fixture, project, false))
		made := fixture.groupsMade
		require.NoError(t, SetupProjectGroups(ctx, fixture, project, false))
		assert.Equal(t, made, fixture.groupsMade)
	})

	t.Run("teams for different projects do not collide", func(t *testing.T) {
		fixture := seeded(t)
		require.NoError(t, SetupProjectGroups(ctx, fixture, &trans.Project{ID: 8}, false))
		require.NoError(t, SetupProjectGroups(ctx, fixture, &trans.Project{ID: 9}, false))
		assert.NotNil(t, fixture.groups[fixture.groupKey("Translate", 8)])
		assert.NotNil(t, fixture.groups[fixture.groupKey("Translate", 9)])
	})
}
