package billing

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/WeblateOrg/weblate-go/pkg/trans"
)

// Store handles billing persistence.
type Store struct {
	db *sql.DB
}

// NewStore creates a billing store, creating its tables if needed.
func NewStore(db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.ensureTables(); err != nil {
		return nil, fmt.Errorf("failed to create billing tables: %w", err)
	}
	return s, nil
}

func (s *Store) ensureTables() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS billing_plans (
			id BIGSERIAL PRIMARY KEY,
			name VARCHAR(100) NOT NULL UNIQUE,
			price INT NOT NULL DEFAULT 0,
			limit_strings INT NOT NULL DEFAULT 0,
			limit_languages INT NOT NULL DEFAULT 0,
			change_access_control BOOLEAN NOT NULL DEFAULT TRUE
		);

		CREATE TABLE IF NOT EXISTS billings (
			id BIGSERIAL PRIMARY KEY,
			plan_id BIGINT NOT NULL REFERENCES billing_plans(id),
			state INT NOT NULL DEFAULT 0,
			paid BOOLEAN NOT NULL DEFAULT TRUE,
			expiry_date TIMESTAMP
		);

		CREATE TABLE IF NOT EXISTS billing_projects (
			billing_id BIGINT NOT NULL REFERENCES billings(id) ON DELETE CASCADE,
			project_id BIGINT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
			PRIMARY KEY (billing_id, project_id)
		);
	`)
	return err
}

// CreatePlan creates a plan.
func (s *Store) CreatePlan(ctx context.Context, plan *Plan) error {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO billing_plans (name, price, limit_strings, limit_languages, change_access_control)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		plan.Name, plan.Price, plan.LimitStrings, plan.LimitLanguages, plan.ChangeAccessControl,
	).Scan(&plan.ID)
	if err != nil {
		return fmt.Errorf("failed to create plan: %w", err)
	}
	return nil
}

// CreateBilling creates a billing record and links its projects.
func (s *Store) CreateBilling(ctx context.Context, billing *Billing) error {
	if billing.Plan == nil {
		return fmt.Errorf("billing requires a plan")
	}
	var expiry sql.NullTime
	if !billing.ExpiryDate.IsZero() {
		expiry = sql.NullTime{Time: billing.ExpiryDate, Valid: true}
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO billings (plan_id, state, paid, expiry_date)
		VALUES ($1, $2, $3, $4)
		RETURNING id`,
		billing.Plan.ID, int(billing.State), billing.Paid, expiry,
	).Scan(&billing.ID)
	if err != nil {
		return fmt.Errorf("failed to create billing: %w", err)
	}
	for _, projectID := range billing.ProjectIDs {
		if _, err := s.db.ExecContext(ctx,
			"INSERT INTO billing_projects (billing_id, project_id) VALUES ($1, $2) ON CONFLICT DO NOTHING",
			billing.ID, projectID); err != nil {
			return fmt.Errorf("failed to link billing project: %w", err)
		}
	}
	return nil
}

// GetProjectBillings loads all billing records covering a project.
func (s *Store) GetProjectBillings(ctx context.Context, projectID int64) ([]*Billing, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT b.id, b.state, b.paid, b.expiry_date,
			pl.id, pl.name, pl.price, pl.limit_strings, pl.limit_languages, pl.change_access_control
		FROM billings b
		JOIN billing_plans pl ON pl.id = b.plan_id
		JOIN billing_projects bp ON bp.billing_id = b.id
		WHERE bp.project_id = $1`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to load project billings: %w", err)
	}
	defer rows.Close()

	var billings []*Billing
	for rows.Next() {
		var billing Billing
		var plan Plan
		var state int
		var expiry sql.NullTime
		err := rows.Scan(&billing.ID, &state, &billing.Paid, &expiry,
			&plan.ID, &plan.Name, &plan.Price, &plan.LimitStrings,
			&plan.LimitLanguages, &plan.ChangeAccessControl)
		if err != nil {
			return nil, fmt.Errorf("failed to scan billing: %w", err)
		}
		billing.State = State(state)
		if expiry.Valid {
			billing.ExpiryDate = expiry.Time
		}
		billing.Plan = &plan
		billing.ProjectIDs = []int64{projectID}
		billings = append(billings, &billing)
	}
	return billings, rows.Err()
}

// Service answers the billing questions the permission evaluator asks.
// It implements auth.BillingChecker.
type Service struct {
	store *Store
}

// NewService creates a billing service.
func NewService(store *Store) *Service {
	return &Service{store: store}
}

// CanChangeAccessControl reports whether any active billing covering
// the project runs a plan that allows visibility changes. Projects
// without a billing record cannot change access control once billing
// is installed.
func (s *Service) CanChangeAccessControl(ctx context.Context, project *trans.Project) bool {
	billings, err := s.store.GetProjectBillings(ctx, project.ID)
	if err != nil {
		return false
	}
	for _, billing := range billings {
		if billing.Active() && billing.Plan.ChangeAccessControl {
			return true
		}
	}
	return false
}

// IsPaid reports whether the project's billing is in good standing.
// Projects with no billing record are treated as paid.
func (s *Service) IsPaid(ctx context.Context, project *trans.Project) bool {
	billings, err := s.store.GetProjectBillings(ctx, project.ID)
	if err != nil || len(billings) == 0 {
		return true
	}
	for _, billing := range billings {
		if billing.Active() && billing.Paid {
			return true
		}
	}
	return false
}
