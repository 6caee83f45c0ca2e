package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/WeblateOrg/weblate-go/pkg/trans"
)

func TestBuildPermissionsProjectGrants(t *testing.T) {
	project := testProject(1, trans.AccessPublic)
	user := testUser(projectGroup([]*trans.Project{project}, "unit.edit"))

	cache := buildPermissions(user, time.Now())

	grants := cache.Projects[SpecificProject(project.ID)]
	require.Len(t, grants, 1)
	assert.True(t, grants[0].Permissions.Has("unit.edit"))
	assert.False(t, grants[0].Permissions.Has("unit.review"))
	assert.Nil(t, grants[0].Languages, "all-languages selection must be nil")
}

func TestBuildPermissionsWildcards(t *testing.T) {
	user := testUser(
		wildcardGroup(SelectionAllPublic, "suggestion.add"),
		wildcardGroup(SelectionAll, "unit.review"),
	)

	cache := buildPermissions(user, time.Now())

	assert.Empty(t, cache.Projects[SpecificProject(1)])
	assert.Len(t, cache.Projects[WildcardProjects(SelectionAllPublic)], 1)
	assert.Len(t, cache.Projects[WildcardProjects(SelectionAll)], 1)
	assert.Empty(t, cache.Projects[WildcardProjects(SelectionAllProtected)])
}

func TestBuildPermissionsComponentGrants(t *testing.T) {
	project := testProject(1, trans.AccessPrivate)
	component := testComponent(10, project)
	user := testUser(componentGroup([]*trans.Component{component}, "unit.edit"))

	cache := buildPermissions(user, time.Now())

	// The component carries the rights.
	grants := cache.Components[component.ID]
	require.Len(t, grants, 1)
	assert.True(t, grants[0].Permissions.Has("unit.edit"))

	// The project gets bare access only: a grant with no permissions.
	projectGrants := cache.Projects[SpecificProject(project.ID)]
	require.Len(t, projectGrants, 1)
	assert.NotNil(t, projectGrants[0].Permissions)
	assert.Empty(t, projectGrants[0].Permissions)
}

func TestBuildPermissionsComponentListSplitsIntoComponents(t *testing.T) {
	projectA := testProject(1, trans.AccessPublic)
	projectB := testProject(2, trans.AccessPublic)
	componentA := testComponent(10, projectA)
	componentB := testComponent(20, projectB)
	list := &trans.ComponentList{ID: 5, Components: []*trans.Component{componentA, componentB}}

	user := testUser(&Group{
		Name:              "list team",
		ProjectSelection:  SelectionComponentList,
		LanguageSelection: LanguageSelectionAll,
		Roles:             []*Role{testRole("unit.edit")},
		ComponentLists:    []*trans.ComponentList{list},
	})

	cache := buildPermissions(user, time.Now())

	assert.Len(t, cache.Components[componentA.ID], 1)
	assert.Len(t, cache.Components[componentB.ID], 1)
	assert.Len(t, cache.Projects[SpecificProject(projectA.ID)], 1)
	assert.Len(t, cache.Projects[SpecificProject(projectB.ID)], 1)
}

func TestBuildPermissionsLanguageRestriction(t *testing.T) {
	project := testProject(1, trans.AccessPublic)
	czech := &trans.Language{ID: 3, Code: "cs"}
	user := testUser(&Group{
		Name:              "czech translators",
		ProjectSelection:  SelectionManual,
		LanguageSelection: LanguageSelectionManual,
		Roles:             []*Role{testRole("unit.edit")},
		Projects:          []*trans.Project{project},
		Languages:         []*trans.Language{czech},
	})

	cache := buildPermissions(user, time.Now())

	grants := cache.Projects[SpecificProject(project.ID)]
	require.Len(t, grants, 1)
	assert.True(t, grants[0].Languages.Has(czech.ID))
	assert.False(t, grants[0].Languages.Has(99))
}

func TestBuildPermissionsEnforce2FAGroup(t *testing.T) {
	project := testProject(1, trans.AccessPublic)
	group := projectGroup([]*trans.Project{project}, "unit.edit")
	group.Enforce2FA = true

	t.Run("without second factor the group grants nothing", func(t *testing.T) {
		user := testUser(group)
		cache := buildPermissions(user, time.Now())
		assert.Empty(t, cache.Projects[SpecificProject(project.ID)])
	})

	t.Run("with second factor the group applies", func(t *testing.T) {
		user := testUser(group)
		user.Has2FA = true
		cache := buildPermissions(user, time.Now())
		assert.Len(t, cache.Projects[SpecificProject(project.ID)], 1)
	})
}

func TestBuildPermissionsGlobalPermissionsExcluded(t *testing.T) {
	project := testProject(1, trans.AccessPublic)
	user := testUser(projectGroup([]*trans.Project{project}, "unit.edit", "management.use"))

	cache := buildPermissions(user, time.Now())

	grants := cache.Projects[SpecificProject(project.ID)]
	require.Len(t, grants, 1)
	assert.False(t, grants[0].Permissions.Has("management.use"),
		"global permissions must not leak into project grants")
	assert.True(t, user.GlobalPerms().Has("management.use"))
}

func TestBuildPermissionsBlocks(t *testing.T) {
	project := testProject(1, trans.AccessPublic)

	t.Run("active block overrides grants", func(t *testing.T) {
		user := testUser(projectGroup([]*trans.Project{project}, "unit.edit"))
		user.Blocks = []*UserBlock{{ID: 50, UserID: user.ID, Project: project}}

		cache := buildPermissions(user, time.Now())

		grants := cache.Projects[SpecificProject(project.ID)]
		require.Len(t, grants, 1)
		assert.True(t, grants[0].Denied)
		assert.Empty(t, cache.ExpiredBlocks)
	})

	t.Run("expired block is collected instead of applied", func(t *testing.T) {
		user := testUser(projectGroup([]*trans.Project{project}, "unit.edit"))
		user.Blocks = []*UserBlock{{
			ID:      51,
			UserID:  user.ID,
			Project: project,
			Expiry:  time.Now().Add(-time.Hour),
		}}

		cache := buildPermissions(user, time.Now())

		grants := cache.Projects[SpecificProject(project.ID)]
		require.Len(t, grants, 1)
		assert.False(t, grants[0].Denied)
		assert.Equal(t, []int64{51}, cache.ExpiredBlocks)
	})

	t.Run("zero expiry never expires", func(t *testing.T) {
		block := &UserBlock{ID: 52, Project: project}
		assert.False(t, block.Expired(time.Now().Add(100*365*24*time.Hour)))
	})
}

func TestProjectGrantsWildcardResolution(t *testing.T) {
	public := testProject(1, trans.AccessPublic)
	protected := testProject(2, trans.AccessProtected)
	private := testProject(3, trans.AccessPrivate)

	user := testUser(
		wildcardGroup(SelectionAllPublic, "suggestion.add"),
		wildcardGroup(SelectionAllProtected, "unit.check"),
		wildcardGroup(SelectionAll, "unit.review"),
	)
	cache := buildPermissions(user, time.Now())

	grantsFor := func(p *trans.Project) StringSet {
		grants, blocked := cache.projectGrants(p)
		require.False(t, blocked)
		out := make(StringSet)
		for _, g := range grants {
			for perm := range g.Permissions {
				out[perm] = struct{}{}
			}
		}
		return out
	}

	assert.True(t, grantsFor(public).Has("suggestion.add"))
	assert.False(t, grantsFor(public).Has("unit.check"))
	assert.True(t, grantsFor(public).Has("unit.review"))

	assert.True(t, grantsFor(protected).Has("unit.check"))
	assert.False(t, grantsFor(protected).Has("suggestion.add"))
	assert.True(t, grantsFor(protected).Has("unit.review"))

	// Private projects see only the all-projects wildcard.
	assert.False(t, grantsFor(private).Has("suggestion.add"))
	assert.False(t, grantsFor(private).Has("unit.check"))
	assert.True(t, grantsFor(private).Has("unit.review"))
}

func TestGroupNormalize(t *testing.T) {
	projectA := testProject(1, trans.AccessPublic)
	projectB := testProject(2, trans.AccessPublic)

	t.Run("wildcard clears explicit projects", func(t *testing.T) {
		group := &Group{
			ProjectSelection: SelectionAll,
			Projects:         []*trans.Project{projectA},
		}
		group.Normalize()
		assert.Nil(t, group.Projects)
	})

	t.Run("component list derives projects", func(t *testing.T) {
		list := &trans.ComponentList{Components: []*trans.Component{
			testComponent(10, projectA),
			testComponent(11, projectA),
			testComponent(12, projectB),
		}}
		group := &Group{
			ProjectSelection: SelectionComponentList,
			ComponentLists:   []*trans.ComponentList{list},
		}
		group.Normalize()
		require.Len(t, group.Projects, 2)
		assert.Equal(t, projectA.ID, group.Projects[0].ID)
		assert.Equal(t, projectB.ID, group.Projects[1].ID)
	})
}

func TestUserInvalidateDropsCaches(t *testing.T) {
	project := testProject(1, trans.AccessPublic)
	user := testUser(projectGroup([]*trans.Project{project}, "unit.edit"))

	first := user.Perms()
	assert.Same(t, first, user.Perms(), "cache must be reused between checks")

	user.Groups = nil
	user.Invalidate()

	second := user.Perms()
	assert.NotSame(t, first, second)
	assert.Empty(t, second.Projects)
}
