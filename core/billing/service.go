// Package billing applies subscription lifecycle events from the payment
// provider to organization plans and feature sets.
package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"simplicity-itsm/config"
	"simplicity-itsm/core/audit"
	"simplicity-itsm/core/features"
	"simplicity-itsm/core/store"
	"simplicity-itsm/core/utils"
)

const (
	EventSubscriptionCreated = "customer.subscription.created"
	EventSubscriptionUpdated = "customer.subscription.updated"
	EventSubscriptionDeleted = "customer.subscription.deleted"
	EventPaymentSucceeded    = "invoice.payment_succeeded"
	EventPaymentFailed       = "invoice.payment_failed"
)

// WebhookEvent is the subset of the provider's event envelope we consume.
type WebhookEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

type subscriptionObject struct {
	ID               string `json:"id"`
	Customer         string `json:"customer"`
	Status           string `json:"status"`
	CurrentPeriodEnd int64  `json:"current_period_end"`
	Items            struct {
		Data []struct {
			Price struct {
				ID string `json:"id"`
			} `json:"price"`
		} `json:"data"`
	} `json:"items"`
}

type invoiceObject struct {
	ID       string `json:"id"`
	Customer string `json:"customer"`
}

type Service struct {
	orgs     store.OrgsStore
	recorder *audit.Recorder
	cfg      config.BillingConfig
	logger   *utils.Logger
}

func NewService(orgs store.OrgsStore, recorder *audit.Recorder, cfg config.BillingConfig, logger *utils.Logger) *Service {
	return &Service{orgs: orgs, recorder: recorder, cfg: cfg, logger: logger}
}

// Tolerance returns the replay window for webhook signatures.
func (s *Service) Tolerance() time.Duration {
	sec := s.cfg.ToleranceSec
	if sec <= 0 {
		sec = 300
	}
	return time.Duration(sec) * time.Second
}

// Secret returns the configured webhook signing secret.
func (s *Service) Secret() string { return s.cfg.WebhookSecret }

// ProcessEvent applies one verified webhook event. Events for customers we
// do not know, and event types we do not handle, are acknowledged and
// skipped.
func (s *Service) ProcessEvent(ctx context.Context, raw []byte) error {
	var event WebhookEvent
	if err := json.Unmarshal(raw, &event); err != nil {
		return fmt.Errorf("billing: decode event: %w", err)
	}
	switch event.Type {
	case EventSubscriptionCreated, EventSubscriptionUpdated:
		return s.applySubscription(ctx, event, false)
	case EventSubscriptionDeleted:
		return s.applySubscription(ctx, event, true)
	case EventPaymentSucceeded, EventPaymentFailed:
		return s.recordPayment(ctx, event)
	default:
		if s.logger != nil {
			s.logger.Printf("billing event ignored type=%s id=%s", event.Type, event.ID)
		}
		return nil
	}
}

func (s *Service) applySubscription(ctx context.Context, event WebhookEvent, deleted bool) error {
	var sub subscriptionObject
	if err := json.Unmarshal(event.Data.Object, &sub); err != nil {
		return fmt.Errorf("billing: decode subscription: %w", err)
	}
	org, err := s.orgs.FindOrganizationByCustomer(ctx, sub.Customer)
	if err != nil {
		return err
	}
	if org == nil {
		if s.logger != nil {
			s.logger.Printf("billing event for unknown customer=%s type=%s", sub.Customer, event.Type)
		}
		return nil
	}

	plan := "free"
	status := sub.Status
	if deleted {
		status = "canceled"
	} else if sub.Status == "active" || sub.Status == "trialing" {
		plan = s.planForPrice(sub)
	}

	upd := store.BillingUpdate{
		Plan:               &plan,
		FeatureOverrides:   features.PlanFeatureMap(plan),
		SubscriptionID:     &sub.ID,
		SubscriptionStatus: &status,
	}
	if sub.CurrentPeriodEnd > 0 {
		end := time.Unix(sub.CurrentPeriodEnd, 0).UTC()
		upd.CurrentPeriodEnd = &end
	}
	if _, err := s.orgs.UpdateOrganizationBilling(ctx, org.ID, upd); err != nil {
		return err
	}

	s.recorder.Record(ctx, store.AuditEntry{
		OrgID:      org.ID,
		UserID:     "system",
		Action:     audit.ActionBillingUpdated,
		Resource:   "subscription",
		ResourceID: sub.ID,
		Details: map[string]any{
			"event":  event.Type,
			"plan":   plan,
			"status": status,
		},
	})
	if s.logger != nil {
		s.logger.Printf("billing applied org=%s plan=%s status=%s event=%s", org.ID, plan, status, event.Type)
	}
	return nil
}

func (s *Service) recordPayment(ctx context.Context, event WebhookEvent) error {
	var inv invoiceObject
	if err := json.Unmarshal(event.Data.Object, &inv); err != nil {
		return fmt.Errorf("billing: decode invoice: %w", err)
	}
	org, err := s.orgs.FindOrganizationByCustomer(ctx, inv.Customer)
	if err != nil {
		return err
	}
	if org == nil {
		return nil
	}

	status := "active"
	if event.Type == EventPaymentFailed {
		status = "past_due"
	}
	if _, err := s.orgs.UpdateOrganizationBilling(ctx, org.ID, store.BillingUpdate{SubscriptionStatus: &status}); err != nil {
		return err
	}
	s.recorder.Record(ctx, store.AuditEntry{
		OrgID:      org.ID,
		UserID:     "system",
		Action:     audit.ActionBillingUpdated,
		Resource:   "invoice",
		ResourceID: inv.ID,
		Details:    map[string]any{"event": event.Type},
	})
	return nil
}

// planForPrice maps a provider price id to a plan name via configuration.
// Unknown prices keep the org on free.
func (s *Service) planForPrice(sub subscriptionObject) string {
	for _, item := range sub.Items.Data {
		if plan, ok := s.cfg.PricePlans[item.Price.ID]; ok && features.ValidPlan(plan) {
			return plan
		}
	}
	return "free"
}
