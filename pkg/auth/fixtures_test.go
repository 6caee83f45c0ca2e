package auth

import (
	"github.com/WeblateOrg/weblate-go/pkg/trans"
)

// Shared fixtures for the evaluator tests. Everything is built in
// memory; the store is not involved.

func testProject(id int64, access trans.AccessControl) *trans.Project {
	return &trans.Project{
		ID:     id,
		Slug:   "project",
		Name:   "Project",
		Access: access,
	}
}

func testComponent(id int64, project *trans.Project) *trans.Component {
	return &trans.Component{
		ID:      id,
		Project: project,
		Slug:    "component",
		Name:    "Component",
	}
}

func testTranslation(id int64, component *trans.Component, language *trans.Language) *trans.Translation {
	return &trans.Translation{
		ID:        id,
		Component: component,
		Language:  language,
	}
}

func testUnit(id int64, translation *trans.Translation, state trans.State) *trans.Unit {
	return &trans.Unit{
		ID:          id,
		Translation: translation,
		State:       state,
		Source:      "Hello",
	}
}

func testRole(permissions ...string) *Role {
	return &Role{Name: "test role", Permissions: permissions}
}

func testUser(groups ...*Group) *User {
	return &User{
		ID:            7,
		Username:      "translator",
		EmailVerified: true,
		IsActive:      true,
		Groups:        groups,
	}
}

// projectGroup grants the permissions on the given projects for all
// languages.
func projectGroup(projects []*trans.Project, permissions ...string) *Group {
	return &Group{
		Name:              "project team",
		ProjectSelection:  SelectionManual,
		LanguageSelection: LanguageSelectionAll,
		Roles:             []*Role{testRole(permissions...)},
		Projects:          projects,
	}
}

// wildcardGroup grants the permissions via a wildcard selection.
func wildcardGroup(selection ProjectSelection, permissions ...string) *Group {
	return &Group{
		Name:              "wildcard team",
		ProjectSelection:  selection,
		LanguageSelection: LanguageSelectionAll,
		Roles:             []*Role{testRole(permissions...)},
	}
}

// componentGroup grants the permissions on the given components only.
func componentGroup(components []*trans.Component, permissions ...string) *Group {
	return &Group{
		Name:              "component team",
		ProjectSelection:  SelectionManual,
		LanguageSelection: LanguageSelectionAll,
		Roles:             []*Role{testRole(permissions...)},
		Components:        components,
	}
}
