package auth

import (
	"time"

	"github.com/WeblateOrg/weblate-go/pkg/trans"
)

// AnonymousUsername is the username of the distinguished anonymous
// user row. Unauthenticated requests are evaluated against that user
// object; no code path handles a nil user.
const AnonymousUsername = "anonymous"

// ProjectSelection is how a group selects the projects it applies to.
type ProjectSelection int

const (
	SelectionManual        ProjectSelection = 0
	SelectionAll           ProjectSelection = 1
	SelectionAllPublic     ProjectSelection = 2
	SelectionAllProtected  ProjectSelection = 3
	SelectionComponentList ProjectSelection = 4
)

// LanguageSelection is how a group selects languages.
type LanguageSelection int

const (
	LanguageSelectionManual LanguageSelection = 0
	LanguageSelectionAll    LanguageSelection = 1
)

// Wildcard reports whether the selection grants by project class
// instead of explicit membership.
func (s ProjectSelection) Wildcard() bool {
	return s == SelectionAll || s == SelectionAllPublic || s == SelectionAllProtected
}

// Role is a named bundle of permission codenames.
type Role struct {
	ID          int64    `json:"id"`
	Name        string   `json:"name"`
	Permissions []string `json:"permissions"`
}

// Group is a team: roles plus the scope they apply to. DefiningProject
// is set for the per-project teams created by SetupProjectGroups.
type Group struct {
	ID              int64          `json:"id"`
	Name            string         `json:"name"`
	DefiningProject *trans.Project `json:"-"`

	ProjectSelection  ProjectSelection  `json:"project_selection"`
	LanguageSelection LanguageSelection `json:"language_selection"`

	Roles          []*Role                `json:"-"`
	Projects       []*trans.Project       `json:"-"`
	Components     []*trans.Component     `json:"-"`
	ComponentLists []*trans.ComponentList `json:"-"`
	Languages      []*trans.Language      `json:"-"`

	// Internal teams are managed by the system and hidden from team
	// administration.
	Internal bool `json:"internal"`

	// AdminIDs are users allowed to edit this team's membership.
	AdminIDs []int64 `json:"admin_ids"`

	// Enforce2FA withholds all of this team's grants from members
	// without two-factor authentication.
	Enforce2FA bool `json:"enforce_2fa"`
}

// Normalize applies the selection invariants before a group is saved:
// wildcard selections supersede the explicit project list, and a
// component-list selection derives the project list from the lists'
// components.
func (g *Group) Normalize() {
	switch {
	case g.ProjectSelection.Wildcard():
		g.Projects = nil
	case g.ProjectSelection == SelectionComponentList:
		seen := make(map[int64]bool)
		var projects []*trans.Project
		for _, list := range g.ComponentLists {
			for _, component := range list.Components {
				if component.Project == nil || seen[component.Project.ID] {
					continue
				}
				seen[component.Project.ID] = true
				projects = append(projects, component.Project)
			}
		}
		g.Projects = projects
	}
}

// UserBlock removes all permissions of a user on one project. A zero
// Expiry never expires; expired blocks are dropped on the next
// permission evaluation.
type UserBlock struct {
	ID      int64          `json:"id"`
	UserID  int64          `json:"user_id"`
	Project *trans.Project `json:"-"`
	Expiry  time.Time      `json:"expiry"`
}

// Expired reports whether the block no longer applies.
func (b *UserBlock) Expired(now time.Time) bool {
	return !b.Expiry.IsZero() && b.Expiry.Before(now)
}

// User is an account including its prefetched membership graph. The
// permission caches hang off the value and live for a single request.
type User struct {
	ID          int64  `json:"id"`
	Username    string `json:"username"`
	FullName    string `json:"full_name"`
	Email       string `json:"email"`
	IsSuperuser bool   `json:"is_superuser"`
	IsActive    bool   `json:"is_active"`
	IsBot       bool   `json:"is_bot"`

	// Has2FA reports a configured second factor; EmailVerified gates
	// contribution for authenticated users.
	Has2FA        bool `json:"has_2fa"`
	EmailVerified bool `json:"email_verified"`

	DateJoined time.Time `json:"date_joined"`

	// Prefetched relations, loaded by Store.GetUser.
	Groups []*Group    `json:"-"`
	Blocks []*UserBlock `json:"-"`

	// SignedAgreements holds component IDs whose contributor agreement
	// this user accepted.
	SignedAgreements map[int64]bool `json:"-"`

	// Lazily built caches; always dropped together via Invalidate.
	perms       *PermCache
	globalPerms StringSet
	adminGroups map[int64]bool
}

// Anonymous reports whether this is the shared anonymous user.
func (u *User) Anonymous() bool {
	return u.Username == AnonymousUsername
}

// Authenticated reports whether the user is a real signed-in account.
func (u *User) Authenticated() bool {
	return !u.Anonymous()
}

// Invalidate drops every derived cache. Any mutation affecting group
// membership, roles, permissions or blocks must call this before the
// next permission check on the same User value.
func (u *User) Invalidate() {
	u.perms = nil
	u.globalPerms = nil
	u.adminGroups = nil
}

// GlobalPerms resolves the user's global permissions transitively
// through group roles. Cached until Invalidate.
func (u *User) GlobalPerms() StringSet {
	if u.globalPerms == nil {
		set := make(StringSet)
		for _, group := range u.Groups {
			for _, role := range group.Roles {
				for _, perm := range role.Permissions {
					if GlobalPermission(perm) {
						set[perm] = struct{}{}
					}
				}
			}
		}
		u.globalPerms = set
	}
	return u.globalPerms
}

// AdministeredGroupIDs returns the IDs of groups this user may manage.
func (u *User) AdministeredGroupIDs() map[int64]bool {
	if u.adminGroups == nil {
		out := make(map[int64]bool)
		for _, group := range u.Groups {
			for _, id := range group.AdminIDs {
				if id == u.ID {
					out[group.ID] = true
				}
			}
		}
		u.adminGroups = out
	}
	return u.adminGroups
}

// Invitation is a pending offer of group membership. Accepting is a
// single-use operation handled by Store.AcceptInvitation.
type Invitation struct {
	ID          int64     `json:"id"`
	Token       string    `json:"token"`
	AuthorID    int64     `json:"author_id"`
	UserID      int64     `json:"user_id,omitempty"`
	Email       string    `json:"email,omitempty"`
	Username    string    `json:"username,omitempty"`
	FullName    string    `json:"full_name,omitempty"`
	GroupID     int64     `json:"group_id"`
	IsSuperuser bool      `json:"is_superuser"`
	CreatedAt   time.Time `json:"created_at"`
}

// AutoGroup joins newly created users whose email matches the pattern
// into the target group.
type AutoGroup struct {
	ID      int64  `json:"id"`
	Match   string `json:"match"`
	GroupID int64  `json:"group_id"`
}

// StringSet is a set of permission codenames.
type StringSet map[string]struct{}

// Has reports membership.
func (s StringSet) Has(v string) bool {
	_, ok := s[v]
	return ok
}

// NewStringSet builds a set from values.
func NewStringSet(values ...string) StringSet {
	out := make(StringSet, len(values))
	for _, v := range values {
		out[v] = struct{}{}
	}
	return out
}

// Int64Set is a set of entity IDs; a nil set means "unrestricted".
type Int64Set map[int64]struct{}

// Has reports membership; a nil set contains everything.
func (s Int64Set) Has(v int64) bool {
	if s == nil {
		return true
	}
	_, ok := s[v]
	return ok
}
