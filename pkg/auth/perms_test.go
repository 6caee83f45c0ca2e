package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/WeblateOrg/weblate-go/pkg/observability"
	"github.com/WeblateOrg/weblate-go/pkg/trans"
)

func newTestChecker() *Checker {
	return NewChecker(Options{})
}

func TestCheckSuperuser(t *testing.T) {
	checker := newTestChecker()
	user := testUser()
	user.IsSuperuser = true
	project := testProject(1, trans.AccessPrivate)

	// Superusers pass everything, including permissions they hold no
	// grant for and projects that block them.
	user.Blocks = []*UserBlock{{ID: 1, UserID: user.ID, Project: project}}

	allowed, err := checker.HasPerm(context.Background(), user, "project.permissions", project)
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.True(t, checker.CanAccessProject(context.Background(), user, project))
}

func TestCheckNilUser(t *testing.T) {
	checker := newTestChecker()
	_, err := checker.Check(context.Background(), nil, "unit.edit", testProject(1, trans.AccessPublic))
	assert.Error(t, err)
}

func TestCheckUnknownPermission(t *testing.T) {
	checker := newTestChecker()
	user := testUser()
	project := testProject(1, trans.AccessPublic)

	_, err := checker.HasPerm(context.Background(), user, "no.such.permission", project)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownPermission))
}

func TestCheckUnsupportedTarget(t *testing.T) {
	checker := newTestChecker()
	user := testUser()

	_, err := checker.HasPerm(context.Background(), user, "unit.edit", "not a model")
	require.Error(t, err)
	var unsupported *UnsupportedTargetError
	assert.True(t, errors.As(err, &unsupported))
}

func TestCheckGlobalPermission(t *testing.T) {
	checker := newTestChecker()

	t.Run("granted through a role", func(t *testing.T) {
		user := testUser(wildcardGroup(SelectionAll, "unit.edit"))
		user.Groups[0].Roles[0].Permissions = append(user.Groups[0].Roles[0].Permissions, "management.use")

		decision, err := checker.Check(context.Background(), user, "management.use", nil)
		require.NoError(t, err)
		assert.True(t, decision.Allowed)
	})

	t.Run("denied without the role", func(t *testing.T) {
		user := testUser()
		decision, err := checker.Check(context.Background(), user, "management.use", nil)
		require.NoError(t, err)
		assert.False(t, decision.Allowed)
		assert.NotEmpty(t, decision.Reason)
	})
}

func TestCheckProjectGrant(t *testing.T) {
	checker := newTestChecker()
	project := testProject(1, trans.AccessPublic)
	other := testProject(2, trans.AccessPublic)
	user := testUser(projectGroup([]*trans.Project{project}, "unit.edit"))

	allowed, err := checker.HasPerm(context.Background(), user, "unit.edit", project)
	require.NoError(t, err)
	assert.True(t, allowed)

	allowed, err = checker.HasPerm(context.Background(), user, "unit.edit", other)
	require.NoError(t, err)
	assert.False(t, allowed, "grant must not leak to other projects")

	allowed, err = checker.HasPerm(context.Background(), user, "unit.review", project)
	require.NoError(t, err)
	assert.False(t, allowed, "grant must not widen to other permissions")
}

func TestCheckWildcardAgainstAccessControl(t *testing.T) {
	checker := newTestChecker()
	user := testUser(wildcardGroup(SelectionAllPublic, "unit.edit"))

	allowed, err := checker.HasPerm(context.Background(), user, "unit.edit", testProject(1, trans.AccessPublic))
	require.NoError(t, err)
	assert.True(t, allowed)

	for _, access := range []trans.AccessControl{trans.AccessProtected, trans.AccessPrivate, trans.AccessCustom} {
		allowed, err := checker.HasPerm(context.Background(), user, "unit.edit", testProject(2, access))
		require.NoError(t, err)
		assert.False(t, allowed, "public wildcard must not reach %s projects", access)
	}
}

func TestCheckBlockOverridesWildcard(t *testing.T) {
	checker := newTestChecker()
	project := testProject(1, trans.AccessPublic)
	user := testUser(wildcardGroup(SelectionAll, "unit.edit"))
	user.Blocks = []*UserBlock{{ID: 9, UserID: user.ID, Project: project}}

	decision, err := checker.Check(context.Background(), user, "unit.edit", project)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Contains(t, decision.Reason, "blocked")

	// The block is scoped to its project.
	allowed, err := checker.HasPerm(context.Background(), user, "unit.edit", testProject(2, trans.AccessPublic))
	require.NoError(t, err)
	assert.True(t, allowed)
}

type blockCleanerSpy struct {
	deleted []int64
}

func (s *blockCleanerSpy) DeleteUserBlock(ctx context.Context, blockID int64) error {
	s.deleted = append(s.deleted, blockID)
	return nil
}

func TestCheckExpiredBlockCleanup(t *testing.T) {
	spy := &blockCleanerSpy{}
	checker := NewChecker(Options{Blocks: spy})

	project := testProject(1, trans.AccessPublic)
	user := testUser(projectGroup([]*trans.Project{project}, "unit.edit"))
	user.Blocks = []*UserBlock{{
		ID:      42,
		UserID:  user.ID,
		Project: project,
		Expiry:  time.Now().Add(-time.Minute),
	}}

	allowed, err := checker.HasPerm(context.Background(), user, "unit.edit", project)
	require.NoError(t, err)
	assert.True(t, allowed, "expired block must not deny")
	assert.Equal(t, []int64{42}, spy.deleted)

	// Cleanup happens once per cache build.
	_, err = checker.HasPerm(context.Background(), user, "unit.edit", project)
	require.NoError(t, err)
	assert.Len(t, spy.deleted, 1)
}

func TestCheckRestrictedComponent(t *testing.T) {
	checker := newTestChecker()
	project := testProject(1, trans.AccessPublic)
	component := testComponent(10, project)
	component.Restricted = true

	t.Run("project grant does not reach restricted component", func(t *testing.T) {
		user := testUser(projectGroup([]*trans.Project{project}, "unit.edit"))
		allowed, err := checker.HasPerm(context.Background(), user, "unit.edit", component)
		require.NoError(t, err)
		assert.False(t, allowed)
	})

	t.Run("component grant does", func(t *testing.T) {
		user := testUser(componentGroup([]*trans.Component{component}, "unit.edit"))
		allowed, err := checker.HasPerm(context.Background(), user, "unit.edit", component)
		require.NoError(t, err)
		assert.True(t, allowed)
	})
}

func TestCheckComponentGrantStaysNarrow(t *testing.T) {
	checker := newTestChecker()
	project := testProject(1, trans.AccessPrivate)
	granted := testComponent(10, project)
	sibling := testComponent(11, project)
	user := testUser(componentGroup([]*trans.Component{granted}, "unit.edit"))

	allowed, err := checker.HasPerm(context.Background(), user, "unit.edit", granted)
	require.NoError(t, err)
	assert.True(t, allowed)

	allowed, err = checker.HasPerm(context.Background(), user, "unit.edit", sibling)
	require.NoError(t, err)
	assert.False(t, allowed, "component grant must not widen to siblings")

	// But it exposes the containing project without any rights.
	assert.True(t, checker.CanAccessProject(context.Background(), user, project))
	allowed, err = checker.HasPerm(context.Background(), user, "unit.edit", project)
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestCheckTranslationLanguageRestriction(t *testing.T) {
	checker := newTestChecker()
	project := testProject(1, trans.AccessPublic)
	component := testComponent(10, project)
	czech := &trans.Language{ID: 3, Code: "cs"}
	german := &trans.Language{ID: 4, Code: "de"}

	user := testUser(&Group{
		Name:              "czech translators",
		ProjectSelection:  SelectionManual,
		LanguageSelection: LanguageSelectionManual,
		Roles:             []*Role{testRole("unit.check")},
		Projects:          []*trans.Project{project},
		Languages:         []*trans.Language{czech},
	})

	allowed, err := checker.HasPerm(context.Background(), user, "unit.check", testTranslation(100, component, czech))
	require.NoError(t, err)
	assert.True(t, allowed)

	allowed, err = checker.HasPerm(context.Background(), user, "unit.check", testTranslation(101, component, german))
	require.NoError(t, err)
	assert.False(t, allowed)

	// Language restriction does not apply to the component as a whole.
	allowed, err = checker.HasPerm(context.Background(), user, "unit.check", component)
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestCheckProjectEnforce2FA(t *testing.T) {
	checker := newTestChecker()
	project := testProject(1, trans.AccessPublic)
	project.Enforce2FA = true
	component := testComponent(10, project)
	user := testUser(projectGroup([]*trans.Project{project}, "unit.check"))

	decision, err := checker.Check(context.Background(), user, "unit.check", component)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Contains(t, decision.Reason, "two-factor")

	user.Has2FA = true
	user.Invalidate()
	decision, err = checker.Check(context.Background(), user, "unit.check", component)
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
}

func TestCheckComponentList(t *testing.T) {
	checker := newTestChecker()
	project := testProject(1, trans.AccessPublic)
	a := testComponent(10, project)
	b := testComponent(11, project)
	list := &trans.ComponentList{ID: 5, Components: []*trans.Component{a, b}}

	t.Run("requires the permission on every member", func(t *testing.T) {
		user := testUser(componentGroup([]*trans.Component{a}, "unit.check"))
		allowed, err := checker.HasPerm(context.Background(), user, "unit.check", list)
		require.NoError(t, err)
		assert.False(t, allowed)

		user = testUser(componentGroup([]*trans.Component{a, b}, "unit.check"))
		allowed, err = checker.HasPerm(context.Background(), user, "unit.check", list)
		require.NoError(t, err)
		assert.True(t, allowed)
	})

	t.Run("empty list passes vacuously", func(t *testing.T) {
		user := testUser()
		allowed, err := checker.HasPerm(context.Background(), user, "unit.check", &trans.ComponentList{ID: 6})
		require.NoError(t, err)
		assert.True(t, allowed)
	})
}

func TestPermissionCacheRebuildMetric(t *testing.T) {
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	checker := NewChecker(Options{Metrics: metrics})
	project := testProject(1, trans.AccessPublic)
	user := testUser(projectGroup([]*trans.Project{project}, "unit.check"))

	// First check builds the cache; the second reuses it.
	_, err := checker.HasPerm(context.Background(), user, "unit.check", project)
	require.NoError(t, err)
	_, err = checker.HasPerm(context.Background(), user, "unit.check", project)
	require.NoError(t, err)
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.PermissionCacheRebuilds))

	user.Invalidate()
	_, err = checker.HasPerm(context.Background(), user, "unit.check", project)
	require.NoError(t, err)
	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.PermissionCacheRebuilds))
}

func TestCheckDerivedTargets(t *testing.T) {
	checker := newTestChecker()
	project := testProject(1, trans.AccessPublic)
	user := testUser(projectGroup([]*trans.Project{project}, "reports.view"))

	category := &trans.Category{ID: 2, Project: project}
	language := &trans.Language{ID: 3, Code: "cs"}

	targets := map[string]any{
		"category":          category,
		"project language":  &trans.ProjectLanguage{Project: project, Language: language},
		"category language": &trans.CategoryLanguage{Category: category, Language: language},
	}
	for name, target := range targets {
		allowed, err := checker.HasPerm(context.Background(), user, "reports.view", target)
		require.NoError(t, err, name)
		assert.True(t, allowed, name)
	}
}

func TestCanAccessProject(t *testing.T) {
	checker := newTestChecker()
	private := testProject(1, trans.AccessPrivate)
	public := testProject(2, trans.AccessPublic)

	t.Run("no grants means no access", func(t *testing.T) {
		user := testUser()
		assert.False(t, checker.CanAccessProject(context.Background(), user, private))
	})

	t.Run("wildcard viewer reaches public projects", func(t *testing.T) {
		user := testUser(wildcardGroup(SelectionAllPublic))
		assert.True(t, checker.CanAccessProject(context.Background(), user, public))
		assert.False(t, checker.CanAccessProject(context.Background(), user, private))
	})

	t.Run("block removes access", func(t *testing.T) {
		user := testUser(projectGroup([]*trans.Project{private}, "unit.edit"))
		assert.True(t, checker.CanAccessProject(context.Background(), user, private))

		user.Blocks = []*UserBlock{{ID: 1, UserID: user.ID, Project: private}}
		user.Invalidate()
		assert.False(t, checker.CanAccessProject(context.Background(), user, private))
	})
}
