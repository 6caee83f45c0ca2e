package trans

import "fmt"

// AccessControl determines who can see a project and which wildcard
// team selections reach it.
type AccessControl int

const (
	AccessPublic    AccessControl = 0
	AccessProtected AccessControl = 1
	AccessPrivate   AccessControl = 100
	AccessCustom    AccessControl = 200
)

func (a AccessControl) String() string {
	switch a {
	case AccessPublic:
		return "public"
	case AccessProtected:
		return "protected"
	case AccessPrivate:
		return "private"
	case AccessCustom:
		return "custom"
	default:
		return fmt.Sprintf("access(%d)", int(a))
	}
}

// Language is a translation target language.
type Language struct {
	ID   int64  `json:"id"`
	Code string `json:"code"`
	Name string `json:"name"`
}

// Project is the top-level grouping of components.
type Project struct {
	ID     int64         `json:"id"`
	Slug   string        `json:"slug"`
	Name   string        `json:"name"`
	Access AccessControl `json:"access_control"`

	// Enforce2FA requires two-factor authentication for any
	// contribution to the project.
	Enforce2FA bool `json:"enforce_2fa"`

	// TranslationReview enables the dedicated review workflow:
	// approved strings can only be changed by reviewers.
	TranslationReview bool `json:"translation_review"`

	// SourceReview enables review of source string changes.
	SourceReview bool `json:"source_review"`
}

// Category is an optional folder-like grouping of components inside a
// project. Categories can nest.
type Category struct {
	ID      int64     `json:"id"`
	Project *Project  `json:"-"`
	Parent  *Category `json:"-"`
	Slug    string    `json:"slug"`
	Name    string    `json:"name"`
}

// Component is a single translatable resource (one file pattern in one
// repository) within a project.
type Component struct {
	ID       int64     `json:"id"`
	Project  *Project  `json:"-"`
	Category *Category `json:"-"`
	Slug     string    `json:"slug"`
	Name     string    `json:"name"`

	// Restricted components require an explicit component-level grant;
	// project-level grants do not apply.
	Restricted bool `json:"restricted"`

	// Locked components reject all translation edits.
	Locked bool `json:"locked"`

	// IsGlossary marks the component holding the project's canonical
	// terminology.
	IsGlossary bool `json:"is_glossary"`

	// Agreement, when non-empty, is a contributor license agreement the
	// user must sign before contributing.
	Agreement string `json:"agreement"`

	// ManageUnits allows adding and removing strings through the UI.
	ManageUnits bool `json:"manage_units"`

	// Template is the monolingual base file; empty means the component
	// is bilingual.
	Template string `json:"template"`

	// EditTemplate allows editing source strings of a monolingual
	// component.
	EditTemplate bool `json:"edit_template"`

	SourceLanguage *Language `json:"-"`

	// SuggestionVoting gates accepting suggestions on votes;
	// SuggestionAutoaccept is the vote threshold (0 disables
	// automatic acceptance).
	SuggestionVoting     bool `json:"suggestion_voting"`
	SuggestionAutoaccept int  `json:"suggestion_autoaccept"`
}

// HasTemplate reports whether the component is monolingual.
func (c *Component) HasTemplate() bool {
	return c.Template != ""
}

// ComponentList is a named, cross-project collection of components.
type ComponentList struct {
	ID         int64        `json:"id"`
	Slug       string       `json:"slug"`
	Name       string       `json:"name"`
	Components []*Component `json:"-"`
}

// Translation is one component in one language.
type Translation struct {
	ID        int64       `json:"id"`
	Component *Component  `json:"-"`
	Language  *Language   `json:"-"`

	// IsSource marks the source-language translation (the template side
	// of a monolingual component).
	IsSource bool `json:"is_source"`
}

// State is the workflow state of a unit.
type State int

const (
	StateEmpty        State = 0
	StateNeedsEditing State = 10
	StateTranslated   State = 20
	StateApproved     State = 30
	StateReadonly     State = 100
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateNeedsEditing:
		return "needs-editing"
	case StateTranslated:
		return "translated"
	case StateApproved:
		return "approved"
	case StateReadonly:
		return "read-only"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Unit is a single translatable string within a translation.
type Unit struct {
	ID          int64        `json:"id"`
	Translation *Translation `json:"-"`
	State       State        `json:"state"`
	Source      string       `json:"source"`
	Target      string       `json:"target"`
	Context     string       `json:"context"`
	Note        string       `json:"note"`
	Location    string       `json:"location"`
	Explanation string       `json:"explanation"`
	Position    int          `json:"position"`
	Priority    int          `json:"priority"`
	Pending     bool         `json:"pending"`
}

// Readonly reports whether the unit can never be edited directly.
func (u *Unit) Readonly() bool {
	return u.State == StateReadonly
}

// Approved reports whether the unit passed review.
func (u *Unit) Approved() bool {
	return u.State == StateApproved
}

// ProjectLanguage is the project/language join used as a permission
// check target.
type ProjectLanguage struct {
	Project  *Project
	Language *Language
}

// CategoryLanguage is the category/language join used as a permission
// check target.
type CategoryLanguage struct {
	Category *Category
	Language *Language
}
