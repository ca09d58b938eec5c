package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/gofrs/uuid/v5"

	"simplicity-itsm/core/utils"
)

type OrgsStore interface {
	CreateOrganization(ctx context.Context, name, plan string) (*Organization, error)
	GetOrganization(ctx context.Context, id string) (*Organization, error)
	FindOrganizationByCustomer(ctx context.Context, customerID string) (*Organization, error)
	UpdateOrganization(ctx context.Context, id string, name string, overrides map[string]bool) (*Organization, error)
	UpdateOrganizationBilling(ctx context.Context, id string, upd BillingUpdate) (*Organization, error)
}

// BillingUpdate carries the subscription fields written from billing webhook
// processing. Nil pointers leave the stored value untouched.
type BillingUpdate struct {
	Plan               *string
	FeatureOverrides   map[string]bool
	CustomerID         *string
	SubscriptionID     *string
	SubscriptionStatus *string
	CurrentPeriodEnd   *time.Time
}

type orgsStore struct {
	db *sql.DB
}

func NewOrgsStore(db *sql.DB) OrgsStore {
	return &orgsStore{db: db}
}

const orgColumns = `id, name, plan, feature_overrides, billing_customer_id, subscription_id, subscription_status, current_period_end, created_at, updated_at`

func (s *orgsStore) CreateOrganization(ctx context.Context, name, plan string) (*Organization, error) {
	id := uuid.Must(uuid.NewV4()).String()
	now := utils.NowUTC()
	if plan == "" {
		plan = "free"
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO organizations (id, name, plan, feature_overrides, created_at, updated_at)
		 VALUES (?, ?, ?, '{}', ?, ?)`,
		id, name, plan, now, now,
	)
	if err != nil {
		return nil, err
	}
	return &Organization{ID: id, Name: name, Plan: plan, CreatedAt: now, UpdatedAt: now}, nil
}

func (s *orgsStore) GetOrganization(ctx context.Context, id string) (*Organization, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+orgColumns+` FROM organizations WHERE id = ?`, id)
	return scanOrganization(row)
}

func (s *orgsStore) FindOrganizationByCustomer(ctx context.Context, customerID string) (*Organization, error) {
	if customerID == "" {
		return nil, nil
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT `+orgColumns+` FROM organizations WHERE billing_customer_id = ?`, customerID)
	return scanOrganization(row)
}

func (s *orgsStore) UpdateOrganization(ctx context.Context, id string, name string, overrides map[string]bool) (*Organization, error) {
	now := utils.NowUTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE organizations SET name = ?, feature_overrides = ?, updated_at = ? WHERE id = ?`,
		name, boolMapToJSON(overrides), now, id,
	)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	return s.GetOrganization(ctx, id)
}

func (s *orgsStore) UpdateOrganizationBilling(ctx context.Context, id string, upd BillingUpdate) (*Organization, error) {
	current, err := s.GetOrganization(ctx, id)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, ErrNotFound
	}

	plan := current.Plan
	if upd.Plan != nil {
		plan = *upd.Plan
	}
	overrides := current.FeatureOverrides
	if upd.FeatureOverrides != nil {
		overrides = upd.FeatureOverrides
	}
	customerID := current.Billing.CustomerID
	if upd.CustomerID != nil {
		customerID = *upd.CustomerID
	}
	subID := current.Billing.SubscriptionID
	if upd.SubscriptionID != nil {
		subID = *upd.SubscriptionID
	}
	subStatus := current.Billing.SubscriptionStatus
	if upd.SubscriptionStatus != nil {
		subStatus = *upd.SubscriptionStatus
	}
	periodEnd := current.Billing.CurrentPeriodEnd
	if upd.CurrentPeriodEnd != nil {
		periodEnd = upd.CurrentPeriodEnd
	}

	now := utils.NowUTC()
	_, err = s.db.ExecContext(ctx,
		`UPDATE organizations
		 SET plan = ?, feature_overrides = ?, billing_customer_id = ?, subscription_id = ?, subscription_status = ?, current_period_end = ?, updated_at = ?
		 WHERE id = ?`,
		plan, boolMapToJSON(overrides), customerID, subID, subStatus, periodEnd, now, id,
	)
	if err != nil {
		return nil, err
	}
	return s.GetOrganization(ctx, id)
}

func scanOrganization(row *sql.Row) (*Organization, error) {
	var o Organization
	var overrides string
	var periodEnd sql.NullTime
	err := row.Scan(&o.ID, &o.Name, &o.Plan, &overrides,
		&o.Billing.CustomerID, &o.Billing.SubscriptionID, &o.Billing.SubscriptionStatus,
		&periodEnd, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	o.FeatureOverrides = boolMapFromJSON(overrides)
	if periodEnd.Valid {
		t := periodEnd.Time
		o.Billing.CurrentPeriodEnd = &t
	}
	return &o, nil
}
