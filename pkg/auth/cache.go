package auth

import (
	"time"

	"github.com/WeblateOrg/weblate-go/pkg/trans"
)

// ProjectKey keys the project grant map. Exactly one of the fields is
// meaningful: a specific project ID, or a wildcard selection covering
// every project whose access control matches. The tagged key keeps the
// lookup O(1) without reserving magic ID values.
type ProjectKey struct {
	ID        int64
	Selection ProjectSelection
}

// SpecificProject keys a grant on one project.
func SpecificProject(id int64) ProjectKey {
	return ProjectKey{ID: id}
}

// WildcardProjects keys a grant on a wildcard selection.
func WildcardProjects(selection ProjectSelection) ProjectKey {
	return ProjectKey{Selection: selection}
}

// Grant is one resolved permission bundle. An empty (non-nil)
// Permissions set grants bare access without any rights, which is how
// component-scoped membership exposes the containing project. A nil
// Languages set means all languages. Denied is the block sentinel: the
// consumer checks it first and short-circuits to no access.
type Grant struct {
	Denied      bool
	Permissions StringSet
	Languages   Int64Set
}

// PermCache is the resolved permission state of one user. It is built
// once per User value and replaced wholesale on rebuild; it is never
// mutated after construction.
type PermCache struct {
	Projects   map[ProjectKey][]Grant
	Components map[int64][]Grant

	// ExpiredBlocks are block rows found expired during the build;
	// the evaluator deletes them opportunistically.
	ExpiredBlocks []int64
}

// Perms returns the user's permission cache, building it on first use.
func (u *User) Perms() *PermCache {
	if u.perms == nil {
		u.perms = buildPermissions(u, time.Now())
	}
	return u.perms
}

// buildPermissions walks the user's groups and resolves the project and
// component grant maps. It never fails: malformed relations are skipped
// rather than reported, since this runs on every permission check.
func buildPermissions(u *User, now time.Time) *PermCache {
	cache := &PermCache{
		Projects:   make(map[ProjectKey][]Grant),
		Components: make(map[int64][]Grant),
	}

	for _, group := range u.Groups {
		if group == nil {
			continue
		}
		// A 2FA-enforcing team grants nothing to members without a
		// second factor.
		if group.Enforce2FA && !u.Has2FA {
			continue
		}

		languages := groupLanguages(group)
		permissions := groupPermissions(group)

		switch {
		case len(group.ComponentLists) > 0:
			for _, list := range group.ComponentLists {
				for _, component := range list.Components {
					grantComponent(cache, component, permissions, languages)
				}
			}
		case len(group.Components) > 0:
			for _, component := range group.Components {
				grantComponent(cache, component, permissions, languages)
			}
		case group.ProjectSelection.Wildcard():
			key := WildcardProjects(group.ProjectSelection)
			cache.Projects[key] = append(cache.Projects[key], Grant{
				Permissions: permissions,
				Languages:   languages,
			})
		default:
			for _, project := range group.Projects {
				if project == nil {
					continue
				}
				key := SpecificProject(project.ID)
				cache.Projects[key] = append(cache.Projects[key], Grant{
					Permissions: permissions,
					Languages:   languages,
				})
			}
		}
	}

	// Blocks override everything granted above for their project.
	for _, block := range u.Blocks {
		if block == nil || block.Project == nil {
			continue
		}
		if block.Expired(now) {
			cache.ExpiredBlocks = append(cache.ExpiredBlocks, block.ID)
			continue
		}
		cache.Projects[SpecificProject(block.Project.ID)] = []Grant{{Denied: true}}
	}

	return cache
}

// grantComponent records a component-level grant and bare access to the
// containing project. Rights granted through components never widen to
// the project itself.
func grantComponent(cache *PermCache, component *trans.Component, permissions StringSet, languages Int64Set) {
	if component == nil || component.Project == nil {
		return
	}
	cache.Components[component.ID] = append(cache.Components[component.ID], Grant{
		Permissions: permissions,
		Languages:   languages,
	})
	key := SpecificProject(component.Project.ID)
	cache.Projects[key] = append(cache.Projects[key], Grant{
		Permissions: make(StringSet),
		Languages:   languages,
	})
}

func groupLanguages(group *Group) Int64Set {
	if group.LanguageSelection == LanguageSelectionAll {
		return nil
	}
	set := make(Int64Set, len(group.Languages))
	for _, lang := range group.Languages {
		if lang != nil {
			set[lang.ID] = struct{}{}
		}
	}
	return set
}

func groupPermissions(group *Group) StringSet {
	set := make(StringSet)
	for _, role := range group.Roles {
		if role == nil {
			continue
		}
		for _, perm := range role.Permissions {
			if !GlobalPermission(perm) {
				set[perm] = struct{}{}
			}
		}
	}
	return set
}

// projectGrants resolves the grants applying to one project: its
// specific grants plus whichever wildcard rules its access control
// admits. The second return is true when a block denies everything.
func (c *PermCache) projectGrants(project *trans.Project) ([]Grant, bool) {
	specific := c.Projects[SpecificProject(project.ID)]
	if len(specific) == 1 && specific[0].Denied {
		return nil, true
	}

	grants := make([]Grant, 0, len(specific)+2)
	grants = append(grants, specific...)
	switch project.Access {
	case trans.AccessPublic:
		grants = append(grants, c.Projects[WildcardProjects(SelectionAllPublic)]...)
	case trans.AccessProtected:
		grants = append(grants, c.Projects[WildcardProjects(SelectionAllProtected)]...)
	}
	grants = append(grants, c.Projects[WildcardProjects(SelectionAll)]...)
	return grants, false
}
