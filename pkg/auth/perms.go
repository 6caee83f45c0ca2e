package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/WeblateOrg/weblate-go/pkg/observability"
	"github.com/WeblateOrg/weblate-go/pkg/trans"
)

// ErrUnknownPermission reports a permission codename outside the
// catalog. This is a caller bug, not a denial.
var ErrUnknownPermission = errors.New("unknown permission")

// UnsupportedTargetError reports a permission check against an object
// type the evaluator has no rule for. Also a caller bug; the evaluator
// never silently grants or denies in this case.
type UnsupportedTargetError struct {
	Permission string
	Target     any
}

func (e *UnsupportedTargetError) Error() string {
	return fmt.Sprintf("permission %q cannot be checked against %T", e.Permission, e.Target)
}

// Decision is the outcome of a permission check. The reason of a
// denial is meant for direct display to the user.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

// Allow is a positive decision.
func Allow() Decision {
	return Decision{Allowed: true}
}

// Deny is a negative decision with a user-facing reason.
func Deny(reason string) Decision {
	return Decision{Allowed: false, Reason: reason}
}

// BillingChecker is the billing collaborator consulted by the
// project-permissions check. A nil checker means billing is not
// installed and the check passes.
type BillingChecker interface {
	// CanChangeAccessControl reports whether the project's plan allows
	// changing its access control.
	CanChangeAccessControl(ctx context.Context, project *trans.Project) bool
	// IsPaid reports whether the project's billing is in good standing.
	IsPaid(ctx context.Context, project *trans.Project) bool
}

// BlockCleaner deletes expired user blocks discovered during cache
// builds. Optional; without one expired blocks are merely skipped.
type BlockCleaner interface {
	DeleteUserBlock(ctx context.Context, blockID int64) error
}

// Checker evaluates permissions. The zero value works for pure
// in-memory checks; wire billing, block cleanup and metrics through
// Options for service use.
type Checker struct {
	billing BillingChecker
	blocks  BlockCleaner
	metrics *observability.Metrics
}

// Options configures a Checker.
type Options struct {
	Billing BillingChecker
	Blocks  BlockCleaner
	Metrics *observability.Metrics
}

// NewChecker creates a permission checker.
func NewChecker(opts Options) *Checker {
	return &Checker{
		billing: opts.Billing,
		blocks:  opts.Blocks,
		metrics: opts.Metrics,
	}
}

// HasPerm reports whether user holds permission on target. Errors are
// reserved for programmer mistakes (unknown codename, unsupported
// target); a legitimate denial is (false, nil).
func (c *Checker) HasPerm(ctx context.Context, user *User, permission string, target any) (bool, error) {
	decision, err := c.Check(ctx, user, permission, target)
	if err != nil {
		return false, err
	}
	return decision.Allowed, nil
}

// Check is the rich form of HasPerm, returning the denial reason for
// interactive surfaces.
func (c *Checker) Check(ctx context.Context, user *User, permission string, target any) (Decision, error) {
	if user == nil {
		return Decision{}, errors.New("permission check without a user; use the anonymous user")
	}

	decision, err := c.check(ctx, user, permission, target)
	if c.metrics != nil && err == nil {
		c.metrics.RecordPermissionCheck(permission, decision.Allowed)
	}
	return decision, err
}

func (c *Checker) check(ctx context.Context, user *User, permission string, target any) (Decision, error) {
	if user.IsSuperuser {
		return Allow(), nil
	}

	if GlobalPermission(permission) {
		return c.checkGlobal(user, permission)
	}

	if handler, ok := specialChecks[permission]; ok {
		return handler(ctx, c, user, permission, target)
	}

	if !KnownPermission(permission) {
		return Decision{}, fmt.Errorf("%w: %q", ErrUnknownPermission, permission)
	}

	return c.checkGeneric(ctx, user, permission, target)
}

func (c *Checker) checkGlobal(user *User, permission string) (Decision, error) {
	if !GlobalPermission(permission) {
		return Decision{}, fmt.Errorf("%w: %q is not a global permission", ErrUnknownPermission, permission)
	}
	if user.GlobalPerms().Has(permission) {
		return Allow(), nil
	}
	return Deny("Insufficient privileges for the management interface."), nil
}

// checkGeneric applies the object-type rules for permissions without a
// special handler.
func (c *Checker) checkGeneric(ctx context.Context, user *User, permission string, target any) (Decision, error) {
	switch t := target.(type) {
	case *trans.Project:
		return c.checkProject(ctx, user, permission, t), nil
	case *trans.Component:
		return c.checkComponent(ctx, user, permission, t, nil), nil
	case *trans.Translation:
		return c.checkTranslation(ctx, user, permission, t), nil
	case *trans.Unit:
		if t.Translation == nil {
			return Decision{}, &UnsupportedTargetError{Permission: permission, Target: t}
		}
		return c.checkTranslation(ctx, user, permission, t.Translation), nil
	case *trans.ComponentList:
		return c.checkComponentList(ctx, user, permission, t), nil
	case *trans.Category:
		if t.Project == nil {
			return Decision{}, &UnsupportedTargetError{Permission: permission, Target: t}
		}
		return c.checkProject(ctx, user, permission, t.Project), nil
	case *trans.ProjectLanguage:
		if t.Project == nil {
			return Decision{}, &UnsupportedTargetError{Permission: permission, Target: t}
		}
		return c.checkProject(ctx, user, permission, t.Project), nil
	case *trans.CategoryLanguage:
		if t.Category == nil || t.Category.Project == nil {
			return Decision{}, &UnsupportedTargetError{Permission: permission, Target: t}
		}
		return c.checkProject(ctx, user, permission, t.Category.Project), nil
	default:
		return Decision{}, &UnsupportedTargetError{Permission: permission, Target: target}
	}
}

func (c *Checker) checkProject(ctx context.Context, user *User, permission string, project *trans.Project) Decision {
	grants, blocked := c.grants(ctx, user, project)
	if blocked {
		return Deny("You are blocked on this project.")
	}
	for _, grant := range grants {
		if grant.Permissions.Has(permission) {
			return Allow()
		}
	}
	return Deny("Insufficient privileges for this project.")
}

func (c *Checker) checkComponent(ctx context.Context, user *User, permission string, component *trans.Component, language *trans.Language) Decision {
	project := component.Project
	if project == nil {
		return Deny("Component without a project.")
	}
	grants, blocked := c.grants(ctx, user, project)
	if blocked {
		return Deny("You are blocked on this project.")
	}
	if d := check2FA(user, project); !d.Allowed {
		return d
	}

	languageOK := func(grant Grant) bool {
		return language == nil || grant.Languages.Has(language.ID)
	}

	// Project-level grants apply unless the component is restricted.
	if !component.Restricted {
		for _, grant := range grants {
			if grant.Permissions.Has(permission) && languageOK(grant) {
				return Allow()
			}
		}
	}
	// Component-level grants bypass the restricted flag.
	for _, grant := range user.Perms().Components[component.ID] {
		if grant.Permissions.Has(permission) && languageOK(grant) {
			return Allow()
		}
	}
	return Deny("Insufficient privileges for this component.")
}

func (c *Checker) checkTranslation(ctx context.Context, user *User, permission string, translation *trans.Translation) Decision {
	if translation.Component == nil {
		return Deny("Translation without a component.")
	}
	return c.checkComponent(ctx, user, permission, translation.Component, translation.Language)
}

// checkComponentList requires the permission on every contained
// component; a list grants an aggregate capability only when each
// member would grant it individually. An empty list passes vacuously.
func (c *Checker) checkComponentList(ctx context.Context, user *User, permission string, list *trans.ComponentList) Decision {
	for _, component := range list.Components {
		if d := c.checkComponent(ctx, user, permission, component, nil); !d.Allowed {
			return d
		}
	}
	return Allow()
}

// CanAccessProject reports bare access: whether any grant, even an
// empty one, reaches the project.
func (c *Checker) CanAccessProject(ctx context.Context, user *User, project *trans.Project) bool {
	if user.IsSuperuser {
		return true
	}
	grants, blocked := c.grants(ctx, user, project)
	if blocked {
		return false
	}
	return len(grants) > 0
}

// grants resolves project grants and opportunistically deletes expired
// blocks discovered by the cache build.
func (c *Checker) grants(ctx context.Context, user *User, project *trans.Project) ([]Grant, bool) {
	if c.metrics != nil && user.perms == nil {
		c.metrics.PermissionCacheRebuilds.Inc()
	}
	cache := user.Perms()
	if len(cache.ExpiredBlocks) > 0 && c.blocks != nil {
		for _, id := range cache.ExpiredBlocks {
			// Deletion failures are harmless; the block is expired and
			// already ignored.
			_ = c.blocks.DeleteUserBlock(ctx, id)
		}
		cache.ExpiredBlocks = nil
	}
	return cache.projectGrants(project)
}

func check2FA(user *User, project *trans.Project) Decision {
	if project.Enforce2FA && !user.Has2FA {
		return Deny("This project requires two-factor authentication.")
	}
	return Allow()
}
