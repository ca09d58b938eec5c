package billing

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"simplicity-itsm/config"
	"simplicity-itsm/core/audit"
	"simplicity-itsm/core/features"
	"simplicity-itsm/core/store"
	"simplicity-itsm/core/utils"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	cfg := &config.AppConfig{
		DBDriver: "sqlite",
		DBURL:    filepath.Join(t.TempDir(), "test.db"),
	}
	db, err := store.NewDB(cfg, utils.NewNopLogger())
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := store.ApplyMigrations(context.Background(), db, "sqlite", nil); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func newTestBilling(t *testing.T) (*Service, store.OrgsStore, store.AuditStore, *store.Organization) {
	t.Helper()
	db := newTestDB(t)
	ctx := context.Background()

	orgs := store.NewOrgsStore(db)
	auditStore := store.NewAuditStore(db)
	org, err := orgs.CreateOrganization(ctx, "Acme", "free")
	if err != nil {
		t.Fatalf("create org: %v", err)
	}
	customer := "cus_123"
	if _, err := orgs.UpdateOrganizationBilling(ctx, org.ID, store.BillingUpdate{CustomerID: &customer}); err != nil {
		t.Fatalf("set customer: %v", err)
	}

	cfg := config.BillingConfig{
		WebhookSecret: "whsec_test",
		PricePlans:    map[string]string{"price_pro": "pro", "price_ent": "enterprise"},
	}
	svc := NewService(orgs, audit.NewRecorder(auditStore, nil), cfg, nil)
	return svc, orgs, auditStore, org
}

func subscriptionEvent(eventType, subStatus, priceID string, periodEnd int64) []byte {
	return []byte(fmt.Sprintf(`{
		"id": "evt_1",
		"type": %q,
		"data": {"object": {
			"id": "sub_1",
			"customer": "cus_123",
			"status": %q,
			"current_period_end": %d,
			"items": {"data": [{"price": {"id": %q}}]}
		}}
	}`, eventType, subStatus, periodEnd, priceID))
}

func TestSubscriptionUpgradeSetsPlanAndOverrides(t *testing.T) {
	svc, orgs, _, org := newTestBilling(t)
	ctx := context.Background()

	end := time.Now().Add(30 * 24 * time.Hour).Unix()
	if err := svc.ProcessEvent(ctx, subscriptionEvent(EventSubscriptionUpdated, "active", "price_pro", end)); err != nil {
		t.Fatalf("ProcessEvent: %v", err)
	}

	updated, err := orgs.GetOrganization(ctx, org.ID)
	if err != nil {
		t.Fatalf("reload org: %v", err)
	}
	if updated.Plan != "pro" {
		t.Fatalf("plan = %s, want pro", updated.Plan)
	}
	if updated.Billing.SubscriptionStatus != "active" || updated.Billing.SubscriptionID != "sub_1" {
		t.Fatalf("billing state %+v", updated.Billing)
	}
	if updated.Billing.CurrentPeriodEnd == nil {
		t.Fatal("period end not stored")
	}
	// Overrides are reset to the full plan map, wiping one-off grants.
	if !updated.FeatureOverrides[string(features.ProblemManagement)] {
		t.Fatal("pro override missing")
	}
	if updated.FeatureOverrides[string(features.ChangeManagement)] {
		t.Fatal("non-pro feature enabled")
	}
}

func TestSubscriptionDeletedDowngradesToFree(t *testing.T) {
	svc, orgs, _, org := newTestBilling(t)
	ctx := context.Background()

	if err := svc.ProcessEvent(ctx, subscriptionEvent(EventSubscriptionUpdated, "active", "price_ent", 0)); err != nil {
		t.Fatalf("upgrade: %v", err)
	}
	if err := svc.ProcessEvent(ctx, subscriptionEvent(EventSubscriptionDeleted, "canceled", "price_ent", 0)); err != nil {
		t.Fatalf("delete: %v", err)
	}

	updated, err := orgs.GetOrganization(ctx, org.ID)
	if err != nil {
		t.Fatalf("reload org: %v", err)
	}
	if updated.Plan != "free" {
		t.Fatalf("plan = %s, want free", updated.Plan)
	}
	if updated.Billing.SubscriptionStatus != "canceled" {
		t.Fatalf("status = %s, want canceled", updated.Billing.SubscriptionStatus)
	}
	if updated.FeatureOverrides[string(features.AssetManagement)] {
		t.Fatal("downgrade kept paid feature")
	}
}

func TestUnknownPriceKeepsFreePlan(t *testing.T) {
	svc, orgs, _, org := newTestBilling(t)
	ctx := context.Background()

	if err := svc.ProcessEvent(ctx, subscriptionEvent(EventSubscriptionCreated, "active", "price_mystery", 0)); err != nil {
		t.Fatalf("ProcessEvent: %v", err)
	}
	updated, err := orgs.GetOrganization(ctx, org.ID)
	if err != nil {
		t.Fatalf("reload org: %v", err)
	}
	if updated.Plan != "free" {
		t.Fatalf("plan = %s, want free", updated.Plan)
	}
}

func TestUnknownCustomerIsAcknowledged(t *testing.T) {
	svc, _, _, _ := newTestBilling(t)
	event := []byte(`{
		"id": "evt_2",
		"type": "customer.subscription.updated",
		"data": {"object": {"id": "sub_9", "customer": "cus_unknown", "status": "active"}}
	}`)
	if err := svc.ProcessEvent(context.Background(), event); err != nil {
		t.Fatalf("unknown customer should be skipped, got %v", err)
	}
}

func TestPaymentFailureMarksPastDueAndAudits(t *testing.T) {
	svc, orgs, auditStore, org := newTestBilling(t)
	ctx := context.Background()

	event := []byte(`{
		"id": "evt_3",
		"type": "invoice.payment_failed",
		"data": {"object": {"id": "in_1", "customer": "cus_123"}}
	}`)
	if err := svc.ProcessEvent(ctx, event); err != nil {
		t.Fatalf("ProcessEvent: %v", err)
	}

	updated, err := orgs.GetOrganization(ctx, org.ID)
	if err != nil {
		t.Fatalf("reload org: %v", err)
	}
	if updated.Billing.SubscriptionStatus != "past_due" {
		t.Fatalf("status = %s, want past_due", updated.Billing.SubscriptionStatus)
	}

	entries, err := auditStore.ListAudit(ctx, store.AuditFilter{OrgID: org.ID, Limit: 10})
	if err != nil {
		t.Fatalf("ListAudit: %v", err)
	}
	if len(entries) != 1 || entries[0].Resource != "invoice" || entries[0].ResourceID != "in_1" {
		t.Fatalf("unexpected audit entries %+v", entries)
	}
}
