package auth

import (
	"context"

	"github.com/WeblateOrg/weblate-go/pkg/trans"
)

// specialCheck implements a permission with business rules beyond the
// generic grant lookup.
type specialCheck func(ctx context.Context, c *Checker, user *User, permission string, target any) (Decision, error)

var specialChecks = map[string]specialCheck{
	"unit.edit":         checkUnitEdit,
	"suggestion.accept": checkUnitEdit,
	"unit.add":          checkManageUnits,
	"unit.delete":       checkManageUnits,
	"suggestion.vote":   checkSuggestionVote,
	"translation.auto":  checkAutoTranslate,

	"billing:project.permissions": checkBilling,
}

// unwrapTranslation extracts the translation behind a check target, if
// there is one. Project-level checks for the same permissions fall
// back to the generic rule.
func unwrapTranslation(target any) (*trans.Translation, *trans.Unit) {
	switch t := target.(type) {
	case *trans.Unit:
		return t.Translation, t
	case *trans.Translation:
		return t, nil
	default:
		return nil, nil
	}
}

// checkUnitEdit handles unit.edit and suggestion.accept: the full
// "can this user change this string right now" rule.
func checkUnitEdit(ctx context.Context, c *Checker, user *User, permission string, target any) (Decision, error) {
	translation, unit := unwrapTranslation(target)
	if translation == nil {
		// Permission asked about a project or component as a whole;
		// apply the plain grant rule.
		return c.checkGeneric(ctx, user, permission, target)
	}
	component := translation.Component
	if component == nil {
		return Decision{}, &UnsupportedTargetError{Permission: permission, Target: target}
	}

	// Editing glossary entries is governed by the glossary permissions
	// rather than the translation ones.
	if component.IsGlossary && permission == "unit.edit" {
		permission = "glossary.edit"
	}

	if d := checkCanEdit(ctx, c, user, component); !d.Allowed {
		return d, nil
	}

	if unit != nil {
		if d := checkEditApproved(ctx, c, user, unit); !d.Allowed {
			return d, nil
		}
	}

	// Enforced suggestion voting: regular editors must go through
	// suggestions; only the override permission writes directly.
	if component.SuggestionVoting && component.SuggestionAutoaccept > 0 && permission != "glossary.edit" {
		return c.checkTranslation(ctx, user, "unit.override", translation), nil
	}

	// Source strings of a monolingual component are the template; they
	// need the source-editing permission on top of the base one.
	if translation.IsSource && component.HasTemplate() {
		if !component.EditTemplate {
			return Deny("Source string editing is turned off for this component."), nil
		}
		if d := c.checkTranslation(ctx, user, "unit.template", translation); !d.Allowed {
			return d, nil
		}
	}

	return c.checkTranslation(ctx, user, permission, translation), nil
}

// checkCanEdit covers the preconditions shared by every write to a
// component: verified e-mail, 2FA, lock state, contributor agreement
// and billing standing.
func checkCanEdit(ctx context.Context, c *Checker, user *User, component *trans.Component) Decision {
	if user.Authenticated() && !user.EmailVerified {
		return Deny("Please verify your e-mail address before contributing.")
	}
	project := component.Project
	if project != nil {
		if d := check2FA(user, project); !d.Allowed {
			return d
		}
	}
	if component.Locked {
		return Deny("This translation is currently locked.")
	}
	if component.Agreement != "" && !user.IsBot && !user.SignedAgreements[component.ID] {
		return Deny("Contributing requires agreeing to the contributor agreement first.")
	}
	if project != nil && c.billing != nil && !c.billing.IsPaid(ctx, project) {
		return Deny("Billing for this project is overdue, translating is disabled.")
	}
	return Allow()
}

// checkEditApproved applies the review-workflow state rules to a
// concrete unit.
func checkEditApproved(ctx context.Context, c *Checker, user *User, unit *trans.Unit) Decision {
	if unit.Readonly() {
		return Deny("This string is read-only.")
	}
	translation := unit.Translation
	if translation == nil || translation.Component == nil || translation.Component.Project == nil {
		return Allow()
	}
	project := translation.Component.Project
	if unit.Approved() && project.TranslationReview {
		if d := c.checkTranslation(ctx, user, "unit.review", translation); !d.Allowed {
			return Deny("Only reviewers can change an approved string; please leave a suggestion instead.")
		}
	}
	return Allow()
}

// checkManageUnits handles unit.add and unit.delete: string management
// must be enabled, and monolingual components only take new strings on
// the source language.
func checkManageUnits(ctx context.Context, c *Checker, user *User, permission string, target any) (Decision, error) {
	translation, _ := unwrapTranslation(target)
	if translation == nil {
		return c.checkGeneric(ctx, user, permission, target)
	}
	component := translation.Component
	if component == nil {
		return Decision{}, &UnsupportedTargetError{Permission: permission, Target: target}
	}
	if !component.ManageUnits {
		return Deny("Adding and removing strings is turned off for this component."), nil
	}
	if permission == "unit.add" && component.HasTemplate() && !translation.IsSource {
		return Deny("New strings of a monolingual component are added on the source language."), nil
	}
	if d := checkCanEdit(ctx, c, user, component); !d.Allowed {
		return d, nil
	}
	return c.checkTranslation(ctx, user, permission, translation), nil
}

// checkSuggestionVote allows voting only where the component collects
// votes at all.
func checkSuggestionVote(ctx context.Context, c *Checker, user *User, permission string, target any) (Decision, error) {
	translation, _ := unwrapTranslation(target)
	if translation == nil {
		return c.checkGeneric(ctx, user, permission, target)
	}
	if translation.Component == nil {
		return Decision{}, &UnsupportedTargetError{Permission: permission, Target: target}
	}
	if !translation.Component.SuggestionVoting {
		return Deny("Suggestion voting is turned off for this component."), nil
	}
	return c.checkTranslation(ctx, user, permission, translation), nil
}

// checkAutoTranslate layers the edit preconditions on top of the
// automatic-translation grant, so a locked or unpaid component cannot
// be bulk-written either.
func checkAutoTranslate(ctx context.Context, c *Checker, user *User, permission string, target any) (Decision, error) {
	translation, _ := unwrapTranslation(target)
	if translation == nil {
		return c.checkGeneric(ctx, user, permission, target)
	}
	if translation.Component == nil {
		return Decision{}, &UnsupportedTargetError{Permission: permission, Target: target}
	}
	if d := checkCanEdit(ctx, c, user, translation.Component); !d.Allowed {
		return d, nil
	}
	return c.checkTranslation(ctx, user, permission, translation), nil
}

// checkBilling gates changing a project's access control on the
// billing plan. Without billing wired in, the check reduces to the
// plain project.permissions grant. A project whose access control was
// already changed off the public default keeps the permission even
// without a paying plan.
func checkBilling(ctx context.Context, c *Checker, user *User, permission string, target any) (Decision, error) {
	project, ok := target.(*trans.Project)
	if !ok {
		return Decision{}, &UnsupportedTargetError{Permission: permission, Target: target}
	}
	if c.billing != nil && project.Access == trans.AccessPublic &&
		!c.billing.CanChangeAccessControl(ctx, project) {
		return Deny("Your billing plan does not allow changing access control."), nil
	}
	return c.checkProject(ctx, user, "project.permissions", project), nil
}
