package auth

import "sort"

// PermissionInfo describes one permission codename.
type PermissionInfo struct {
	Codename string
	Name     string
}

// Permissions enumerates every object-scoped permission. The set is
// static; roles reference codenames from this table only.
var Permissions = []PermissionInfo{
	{"comment.add", "Post comment"},
	{"comment.delete", "Delete comment"},
	{"comment.resolve", "Resolve comment"},

	{"component.edit", "Edit component settings"},
	{"component.lock", "Lock component, preventing translations"},

	{"glossary.add", "Add glossary entry"},
	{"glossary.edit", "Edit glossary entry"},
	{"glossary.delete", "Delete glossary entry"},
	{"glossary.upload", "Upload glossary entries"},

	{"machinery.view", "Use automatic suggestions"},

	{"memory.edit", "Edit translation memory"},
	{"memory.delete", "Delete translation memory"},

	{"project.edit", "Edit project settings"},
	{"project.permissions", "Manage project access"},

	{"reports.view", "Download reports"},

	{"screenshot.add", "Add screenshot"},
	{"screenshot.edit", "Edit screenshot"},
	{"screenshot.delete", "Delete screenshot"},

	{"source.edit", "Edit additional string info"},

	{"suggestion.accept", "Accept suggestion"},
	{"suggestion.add", "Add suggestion"},
	{"suggestion.delete", "Delete suggestion"},
	{"suggestion.vote", "Vote on suggestion"},

	{"translation.add", "Add language for translation"},
	{"translation.auto", "Perform automatic translation"},
	{"translation.delete", "Delete existing translation"},
	{"translation.add_more", "Add several languages for translation"},

	{"unit.add", "Add new string"},
	{"unit.check", "Dismiss failing check"},
	{"unit.delete", "Remove a string"},
	{"unit.edit", "Edit strings"},
	{"unit.flag", "Edit string flags"},
	{"unit.override", "Edit strings when suggestions are enforced"},
	{"unit.review", "Review strings"},
	{"unit.template", "Edit source strings"},

	{"upload.authorship", "Define author of uploaded translation"},
	{"upload.overwrite", "Overwrite existing strings with upload"},
	{"upload.perform", "Upload translations"},

	{"vcs.access", "Access the internal repository"},
	{"vcs.commit", "Commit changes to the internal repository"},
	{"vcs.push", "Push change from the internal repository"},
	{"vcs.reset", "Reset changes in the internal repository"},
	{"vcs.update", "Update the internal repository"},
	{"vcs.view", "View upstream repository location"},
}

// GlobalPermissions enumerates site-wide permissions. Disjoint from the
// object-scoped set; membership here routes a check through the global
// code path instead of the project/component rules.
var GlobalPermissions = []PermissionInfo{
	{"management.use", "Use management interface"},
	{"project.add", "Add new projects"},
	{"language.add", "Add language definitions"},
	{"language.edit", "Manage language definitions"},
	{"group.add", "Add teams"},
	{"group.edit", "Manage teams"},
	{"user.add", "Add users"},
	{"user.edit", "Manage users"},
	{"announcement.add", "Post site-wide announcements"},
	{"memory.global", "Manage shared translation memory"},
}

// Built-in role names.
const (
	RoleAdministration  = "Administration"
	RoleEditSource      = "Edit source"
	RoleAddSuggestion   = "Add suggestion"
	RoleAccessRepo      = "Access repository"
	RoleManageGlossary  = "Manage glossary"
	RolePowerUser       = "Power user"
	RoleReviewStrings   = "Review strings"
	RoleTranslate       = "Translate"
	RoleManageLanguages = "Manage languages"
	RoleAutoTranslate   = "Automatic translation"
	RoleManageMemory    = "Manage memory"
	RoleScreenshots     = "Manage screenshots"
	RoleManageRepo      = "Manage repository"
	RoleBilling         = "Billing"
)

// RoleDefinition seeds one built-in role. A nil Permissions slice means
// every object-scoped permission.
type RoleDefinition struct {
	Name        string
	Permissions []string
}

// RoleDefinitions lists the built-in roles seeded by SetupGroups.
func RoleDefinitions() []RoleDefinition {
	translate := []string{
		"comment.add",
		"machinery.view",
		"suggestion.accept", "suggestion.add", "suggestion.vote",
		"unit.check", "unit.edit",
		"upload.overwrite", "upload.perform",
	}
	return []RoleDefinition{
		{Name: RoleAdministration, Permissions: nil},
		{Name: RoleEditSource, Permissions: append(clone(translate), "source.edit", "unit.template", "unit.flag")},
		{Name: RoleAddSuggestion, Permissions: []string{"suggestion.add"}},
		{Name: RoleAccessRepo, Permissions: []string{"vcs.access", "vcs.view"}},
		{Name: RoleManageGlossary, Permissions: []string{
			"glossary.add", "glossary.edit", "glossary.delete", "glossary.upload",
		}},
		{Name: RolePowerUser, Permissions: append(clone(translate),
			"translation.add", "unit.template", "suggestion.delete", "vcs.access", "vcs.view")},
		{Name: RoleReviewStrings, Permissions: append(clone(translate), "unit.review", "unit.override")},
		{Name: RoleTranslate, Permissions: translate},
		{Name: RoleManageLanguages, Permissions: []string{"translation.add", "translation.delete", "translation.add_more"}},
		{Name: RoleAutoTranslate, Permissions: []string{"translation.auto"}},
		{Name: RoleManageMemory, Permissions: []string{"memory.edit", "memory.delete"}},
		{Name: RoleScreenshots, Permissions: []string{"screenshot.add", "screenshot.edit", "screenshot.delete"}},
		{Name: RoleManageRepo, Permissions: []string{
			"component.lock", "vcs.access", "vcs.commit", "vcs.push", "vcs.reset", "vcs.update", "vcs.view",
		}},
		{Name: RoleBilling, Permissions: []string{"project.permissions", "reports.view"}},
	}
}

// Built-in sitewide team names.
const (
	TeamGuests    = "Guests"
	TeamViewers   = "Viewers"
	TeamUsers     = "Users"
	TeamReviewers = "Reviewers"
	TeamManagers  = "Managers"
)

// TeamDefinition seeds one built-in sitewide team.
type TeamDefinition struct {
	Name              string
	Roles             []string
	ProjectSelection  ProjectSelection
	LanguageSelection LanguageSelection
}

// TeamDefinitions lists the default sitewide teams.
func TeamDefinitions() []TeamDefinition {
	return []TeamDefinition{
		{
			Name:              TeamGuests,
			Roles:             []string{RoleAddSuggestion, RoleAccessRepo},
			ProjectSelection:  SelectionAllPublic,
			LanguageSelection: LanguageSelectionAll,
		},
		{
			Name:              TeamViewers,
			Roles:             nil,
			ProjectSelection:  SelectionAllProtected,
			LanguageSelection: LanguageSelectionAll,
		},
		{
			Name:              TeamUsers,
			Roles:             []string{RolePowerUser},
			ProjectSelection:  SelectionAllPublic,
			LanguageSelection: LanguageSelectionAll,
		},
		{
			Name:              TeamReviewers,
			Roles:             []string{RoleReviewStrings},
			ProjectSelection:  SelectionAll,
			LanguageSelection: LanguageSelectionAll,
		},
		{
			Name:              TeamManagers,
			Roles:             []string{RoleAdministration},
			ProjectSelection:  SelectionAll,
			LanguageSelection: LanguageSelectionAll,
		},
	}
}

// ProjectTeamDefinition seeds one per-project team created when a
// project's access control changes.
type ProjectTeamDefinition struct {
	Name string
	Role string

	// ReviewOnly teams are created only when review is enabled,
	// BillingOnly teams only when billing is installed.
	ReviewOnly  bool
	BillingOnly bool
}

// ProjectTeamDefinitions lists the per-project teams instantiated by
// SetupProjectGroups.
func ProjectTeamDefinitions() []ProjectTeamDefinition {
	return []ProjectTeamDefinition{
		{Name: "Administration", Role: RoleAdministration},
		{Name: "Review", Role: RoleReviewStrings, ReviewOnly: true},
		{Name: "Translate", Role: RoleTranslate},
		{Name: "Sources", Role: RoleEditSource},
		{Name: "Languages", Role: RoleManageLanguages},
		{Name: "Glossary", Role: RoleManageGlossary},
		{Name: "Memory", Role: RoleManageMemory},
		{Name: "Screenshots", Role: RoleScreenshots},
		{Name: "Automatic translation", Role: RoleAutoTranslate},
		{Name: "VCS", Role: RoleManageRepo},
		{Name: "Billing", Role: RoleBilling, BillingOnly: true},
	}
}

var (
	permissionNames = buildNameSet(Permissions)
	globalNames     = buildNameSet(GlobalPermissions)
)

func buildNameSet(perms []PermissionInfo) map[string]bool {
	out := make(map[string]bool, len(perms))
	for _, p := range perms {
		out[p.Codename] = true
	}
	return out
}

// KnownPermission reports whether codename is a valid object-scoped
// permission.
func KnownPermission(codename string) bool {
	return permissionNames[codename]
}

// GlobalPermission reports whether codename is a global permission.
func GlobalPermission(codename string) bool {
	return globalNames[codename]
}

// AllPermissionCodenames returns every object-scoped codename, sorted.
func AllPermissionCodenames() []string {
	out := make([]string, 0, len(Permissions))
	for _, p := range Permissions {
		out = append(out, p.Codename)
	}
	sort.Strings(out)
	return out
}

func clone(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	return out
}
