package store

import (
	"encoding/json"
	"errors"
	"time"
)

var ErrNotFound = errors.New("not found")

// Organization is the tenant boundary: it owns users, incidents and audit
// entries, and carries the billing state that drives feature availability.
type Organization struct {
	ID               string          `json:"id"`
	Name             string          `json:"name"`
	Plan             string          `json:"plan"`
	FeatureOverrides map[string]bool `json:"feature_overrides,omitempty"`
	Billing          OrgBilling      `json:"billing"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

type OrgBilling struct {
	CustomerID         string     `json:"customer_id,omitempty"`
	SubscriptionID     string     `json:"subscription_id,omitempty"`
	SubscriptionStatus string     `json:"subscription_status,omitempty"`
	CurrentPeriodEnd   *time.Time `json:"current_period_end,omitempty"`
}

type User struct {
	ID           string    `json:"id"`
	OrgID        string    `json:"org_id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	Roles        []string  `json:"roles"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type Incident struct {
	ID               string     `json:"id"`
	OrgID            string     `json:"org_id"`
	Title            string     `json:"title"`
	Description      string     `json:"description,omitempty"`
	Severity         string     `json:"severity"`
	Status           string     `json:"status"`
	Assignees        []string   `json:"assignees"`
	ReporterID       string     `json:"reporter_id"`
	Tags             []string   `json:"tags,omitempty"`
	AffectedServices []string   `json:"affected_services,omitempty"`
	ResolvedAt       *time.Time `json:"resolved_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// TimelineEntry is an immutable record of one change on an incident.
// OldValue/NewValue are set for status and severity entries only.
type TimelineEntry struct {
	ID         int64     `json:"id"`
	IncidentID string    `json:"incident_id"`
	Type       string    `json:"type"`
	Text       string    `json:"text"`
	UserID     string    `json:"user_id"`
	OldValue   string    `json:"old_value,omitempty"`
	NewValue   string    `json:"new_value,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

const (
	TimelineNote       = "note"
	TimelineStatus     = "status"
	TimelineAssignment = "assignment"
	TimelineSeverity   = "severity"
)

type AuditEntry struct {
	ID         int64          `json:"id"`
	OrgID      string         `json:"org_id"`
	UserID     string         `json:"user_id"`
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	ResourceID string         `json:"resource_id"`
	Details    map[string]any `json:"details,omitempty"`
	IP         string         `json:"ip,omitempty"`
	UserAgent  string         `json:"user_agent,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

func stringsToJSON(values []string) string {
	if len(values) == 0 {
		return "[]"
	}
	b, err := json.Marshal(values)
	if err != nil {
		return "[]"
	}
	return string(b)
}

func stringsFromJSON(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil
	}
	return out
}

func boolMapToJSON(m map[string]bool) string {
	if len(m) == 0 {
		return "{}"
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "{}"
	}
	return string(b)
}

func boolMapFromJSON(raw string) map[string]bool {
	if raw == "" {
		return nil
	}
	var out map[string]bool
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil
	}
	return out
}

func detailsToJSON(m map[string]any) string {
	if len(m) == 0 {
		return "{}"
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "{}"
	}
	return string(b)
}

func detailsFromJSON(raw string) map[string]any {
	if raw == "" {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil
	}
	return out
}
