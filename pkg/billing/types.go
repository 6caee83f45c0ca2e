package billing

import "time"

// State is the lifecycle state of a billing record.
type State int

const (
	StateActive     State = 0
	StateTrial      State = 1
	StateExpired    State = 2
	StateTerminated State = 3
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateTrial:
		return "trial"
	case StateExpired:
		return "expired"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Plan describes what a paid tier allows.
type Plan struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Price int    `json:"price"`

	// LimitStrings and LimitLanguages are 0 for unlimited.
	LimitStrings   int `json:"limit_strings"`
	LimitLanguages int `json:"limit_languages"`

	// ChangeAccessControl allows projects on this plan to change their
	// visibility.
	ChangeAccessControl bool `json:"change_access_control"`
}

// Billing ties one or more projects to a plan.
type Billing struct {
	ID         int64     `json:"id"`
	Plan       *Plan     `json:"plan"`
	State      State     `json:"state"`
	Paid       bool      `json:"paid"`
	ExpiryDate time.Time `json:"expiry_date,omitempty"`

	// ProjectIDs are the projects covered by this billing record.
	ProjectIDs []int64 `json:"project_ids"`
}

// Active reports whether the billing record currently grants its plan.
func (b *Billing) Active() bool {
	return b.State == StateActive || b.State == StateTrial
}
