// Package incidents implements the incident lifecycle: creation, field
// updates with automatic timeline entries, and the status transitions that
// set the resolution timestamp.
package incidents

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"simplicity-itsm/core/audit"
	"simplicity-itsm/core/notify"
	"simplicity-itsm/core/store"
	"simplicity-itsm/core/utils"
)

var ErrValidation = errors.New("validation failed")

var (
	Statuses   = []string{"open", "acknowledged", "investigating", "resolved", "closed"}
	Severities = []string{"P1", "P2", "P3", "P4"}
)

const maxTitleLength = 200

type Service struct {
	store    store.IncidentsStore
	users    store.UsersStore
	recorder *audit.Recorder
	notifier *notify.Service
	logger   *utils.Logger
}

func NewService(st store.IncidentsStore, users store.UsersStore, recorder *audit.Recorder, notifier *notify.Service, logger *utils.Logger) *Service {
	return &Service{store: st, users: users, recorder: recorder, notifier: notifier, logger: logger}
}

type CreateParams struct {
	Title            string
	Description      string
	Severity         string
	Assignees        []string
	Tags             []string
	AffectedServices []string
}

// RequestMeta carries audit attribution for the HTTP request behind a call.
type RequestMeta struct {
	IP        string
	UserAgent string
}

func (s *Service) Create(ctx context.Context, org *store.Organization, actor *store.User, p CreateParams, meta RequestMeta) (*store.Incident, error) {
	title := strings.TrimSpace(p.Title)
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrValidation)
	}
	if len(title) > maxTitleLength {
		return nil, fmt.Errorf("%w: title exceeds %d characters", ErrValidation, maxTitleLength)
	}
	severity := p.Severity
	if severity == "" {
		severity = "P3"
	}
	if !validSeverity(severity) {
		return nil, fmt.Errorf("%w: unknown severity %q", ErrValidation, p.Severity)
	}

	inc := &store.Incident{
		OrgID:            org.ID,
		Title:            title,
		Description:      p.Description,
		Severity:         severity,
		Status:           "open",
		Assignees:        p.Assignees,
		ReporterID:       actor.ID,
		Tags:             p.Tags,
		AffectedServices: p.AffectedServices,
	}
	seed := []store.TimelineEntry{{
		Type:   store.TimelineNote,
		Text:   "Incident created",
		UserID: actor.ID,
	}}
	created, err := s.store.CreateIncident(ctx, inc, seed)
	if err != nil {
		return nil, err
	}

	s.recorder.Record(ctx, store.AuditEntry{
		OrgID:      org.ID,
		UserID:     actor.ID,
		Action:     audit.ActionIncidentCreated,
		Resource:   "incident",
		ResourceID: created.ID,
		Details:    map[string]any{"title": created.Title, "severity": created.Severity},
		IP:         meta.IP,
		UserAgent:  meta.UserAgent,
	})
	s.notifier.Dispatch(ctx, notify.Event{
		Org:        org,
		Incident:   created,
		Action:     notify.ActionCreated,
		Actor:      actor,
		Recipients: s.recipientEmails(ctx, org.ID, created.Assignees),
	})
	return created, nil
}

type UpdateParams struct {
	Title       *string
	Description *string
	Status      *string
	Severity    *string
	Assignees   []string
}

func (s *Service) ApplyUpdate(ctx context.Context, org *store.Organization, actor *store.User, incidentID string, p UpdateParams, meta RequestMeta) (*store.Incident, error) {
	current, err := s.store.GetIncident(ctx, org.ID, incidentID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, store.ErrNotFound
	}

	changes, entries, action, err := applyChanges(current, p, actor.ID, utils.NowUTC())
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 && changes.Title == nil && changes.Description == nil {
		// No effective change; do not touch the store or notify.
		return current, nil
	}

	updated, err := s.store.UpdateIncident(ctx, org.ID, incidentID, changes, entries)
	if err != nil {
		return nil, err
	}

	auditAction := audit.ActionIncidentUpdated
	if action == notify.ActionResolved {
		auditAction = audit.ActionIncidentResolved
	}
	s.recorder.Record(ctx, store.AuditEntry{
		OrgID:      org.ID,
		UserID:     actor.ID,
		Action:     auditAction,
		Resource:   "incident",
		ResourceID: updated.ID,
		Details:    auditDetails(p),
		IP:         meta.IP,
		UserAgent:  meta.UserAgent,
	})
	s.notifier.Dispatch(ctx, notify.Event{
		Org:        org,
		Incident:   updated,
		Action:     action,
		Actor:      actor,
		Recipients: s.recipientEmails(ctx, org.ID, updated.Assignees),
	})
	return updated, nil
}

// recipientEmails resolves assignee user ids to email addresses. Ids that no
// longer resolve to a user are skipped, as is a lookup failure: notification
// fan-out must not fail the incident change.
func (s *Service) recipientEmails(ctx context.Context, orgID string, assignees []string) []string {
	if s.users == nil {
		return nil
	}
	var out []string
	for _, id := range assignees {
		u, err := s.users.GetUser(ctx, orgID, id)
		if err != nil {
			if s.logger != nil {
				s.logger.Errorf("resolve notification recipient %s: %v", id, err)
			}
			continue
		}
		if u != nil && u.Email != "" {
			out = append(out, u.Email)
		}
	}
	return out
}

// applyChanges computes the store changes and timeline entries for one
// update against the current incident state. It is pure: no clock, no store.
// The returned action is the notification category for the change.
func applyChanges(current *store.Incident, p UpdateParams, userID string, now time.Time) (store.IncidentChanges, []store.TimelineEntry, string, error) {
	var ch store.IncidentChanges
	var entries []store.TimelineEntry
	action := notify.ActionUpdated

	if p.Title != nil {
		title := strings.TrimSpace(*p.Title)
		if title == "" {
			return ch, nil, "", fmt.Errorf("%w: title is required", ErrValidation)
		}
		if len(title) > maxTitleLength {
			return ch, nil, "", fmt.Errorf("%w: title exceeds %d characters", ErrValidation, maxTitleLength)
		}
		if title != current.Title {
			ch.Title = &title
		}
	}
	if p.Description != nil && *p.Description != current.Description {
		ch.Description = p.Description
	}

	if p.Status != nil && *p.Status != current.Status {
		status := *p.Status
		if !validStatus(status) {
			return ch, nil, "", fmt.Errorf("%w: unknown status %q", ErrValidation, status)
		}
		ch.Status = &status
		entries = append(entries, store.TimelineEntry{
			Type:     store.TimelineStatus,
			Text:     fmt.Sprintf("Status changed from %s to %s", current.Status, status),
			UserID:   userID,
			OldValue: current.Status,
			NewValue: status,
		})
		if status == "resolved" && current.Status != "resolved" {
			resolved := &now
			ch.ResolvedAt = &resolved
			action = notify.ActionResolved
		}
		// Reopening keeps the old resolved_at as a record of the last
		// resolution.
	}

	if p.Severity != nil && *p.Severity != current.Severity {
		severity := *p.Severity
		if !validSeverity(severity) {
			return ch, nil, "", fmt.Errorf("%w: unknown severity %q", ErrValidation, severity)
		}
		ch.Severity = &severity
		entries = append(entries, store.TimelineEntry{
			Type:     store.TimelineSeverity,
			Text:     fmt.Sprintf("Severity changed from %s to %s", current.Severity, severity),
			UserID:   userID,
			OldValue: current.Severity,
			NewValue: severity,
		})
		if action == notify.ActionUpdated {
			action = notify.ActionEscalated
		}
	}

	if p.Assignees != nil && !sameStrings(p.Assignees, current.Assignees) {
		ch.Assignees = p.Assignees
		entries = append(entries, store.TimelineEntry{
			Type:   store.TimelineAssignment,
			Text:   "Assignees updated",
			UserID: userID,
		})
	}

	return ch, entries, action, nil
}

// AddNote appends a free-form note to the incident timeline.
func (s *Service) AddNote(ctx context.Context, org *store.Organization, actor *store.User, incidentID, text string) (*store.Incident, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: note text is required", ErrValidation)
	}
	entries := []store.TimelineEntry{{
		Type:   store.TimelineNote,
		Text:   text,
		UserID: actor.ID,
	}}
	return s.store.UpdateIncident(ctx, org.ID, incidentID, store.IncidentChanges{}, entries)
}

func (s *Service) Get(ctx context.Context, orgID, id string) (*store.Incident, error) {
	return s.store.GetIncident(ctx, orgID, id)
}

func (s *Service) List(ctx context.Context, f store.IncidentFilter) ([]*store.Incident, int, error) {
	items, err := s.store.ListIncidents(ctx, f)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.store.CountIncidents(ctx, f)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (s *Service) Timeline(ctx context.Context, orgID, incidentID string) ([]*store.TimelineEntry, error) {
	return s.store.ListTimeline(ctx, orgID, incidentID)
}

func validStatus(s string) bool {
	for _, v := range Statuses {
		if v == s {
			return true
		}
	}
	return false
}

func validSeverity(s string) bool {
	for _, v := range Severities {
		if v == s {
			return true
		}
	}
	return false
}

func sameStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func auditDetails(p UpdateParams) map[string]any {
	d := map[string]any{}
	if p.Title != nil {
		d["title"] = *p.Title
	}
	if p.Status != nil {
		d["status"] = *p.Status
	}
	if p.Severity != nil {
		d["severity"] = *p.Severity
	}
	if p.Assignees != nil {
		d["assignees"] = p.Assignees
	}
	return d
}
