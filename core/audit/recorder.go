// Package audit records who did what inside an organization and prunes old
// entries on a schedule.
package audit

import (
	"context"

	"simplicity-itsm/core/store"
	"simplicity-itsm/core/utils"
)

const (
	ActionIncidentCreated  = "incident.created"
	ActionIncidentUpdated  = "incident.updated"
	ActionIncidentResolved = "incident.resolved"
	ActionUserInvited      = "user.invited"
	ActionUserUpdated      = "user.updated"
	ActionOrgUpdated       = "org.updated"
	ActionBillingUpdated   = "billing.updated"
	ActionUserLogin        = "user.login"
	ActionUserSignup       = "user.signup"
)

// Recorder writes audit entries best-effort: a failed write is logged and
// swallowed so auditing never fails the operation being audited.
type Recorder struct {
	store  store.AuditStore
	logger *utils.Logger
}

func NewRecorder(st store.AuditStore, logger *utils.Logger) *Recorder {
	return &Recorder{store: st, logger: logger}
}

func (r *Recorder) Record(ctx context.Context, e store.AuditEntry) {
	if r == nil || r.store == nil {
		return
	}
	if err := r.store.InsertAudit(ctx, &e); err != nil && r.logger != nil {
		r.logger.Errorf("audit write failed action=%s org=%s: %v", e.Action, e.OrgID, err)
	}
}
