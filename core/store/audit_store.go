package store

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"simplicity-itsm/core/utils"
)

type AuditStore interface {
	InsertAudit(ctx context.Context, e *AuditEntry) error
	ListAudit(ctx context.Context, f AuditFilter) ([]*AuditEntry, error)
	CountAudit(ctx context.Context, f AuditFilter) (int, error)
	DeleteAuditBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type AuditFilter struct {
	OrgID    string
	UserID   string
	Action   string
	Resource string
	Since    *time.Time
	Until    *time.Time
	Limit    int
	Offset   int
}

type auditStore struct {
	db *sql.DB
}

func NewAuditStore(db *sql.DB) AuditStore {
	return &auditStore{db: db}
}

func (s *auditStore) InsertAudit(ctx context.Context, e *AuditEntry) error {
	created := e.CreatedAt
	if created.IsZero() {
		created = utils.NowUTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_log (org_id, user_id, action, resource, resource_id, details, ip, user_agent, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.OrgID, e.UserID, e.Action, e.Resource, e.ResourceID,
		detailsToJSON(e.Details), e.IP, e.UserAgent, created,
	)
	return err
}

func (s *auditStore) ListAudit(ctx context.Context, f AuditFilter) ([]*AuditEntry, error) {
	where, args := auditWhere(f)
	args = append(args, f.Limit, f.Offset)
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, org_id, user_id, action, resource, resource_id, details, ip, user_agent, created_at
		 FROM audit_log `+where+` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`,
		args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*AuditEntry
	for rows.Next() {
		var e AuditEntry
		var details string
		if err := rows.Scan(&e.ID, &e.OrgID, &e.UserID, &e.Action, &e.Resource,
			&e.ResourceID, &details, &e.IP, &e.UserAgent, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Details = detailsFromJSON(details)
		out = append(out, &e)
	}
	return out, rows.Err()
}

func (s *auditStore) CountAudit(ctx context.Context, f AuditFilter) (int, error) {
	where, args := auditWhere(f)
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM audit_log `+where, args...).Scan(&n)
	return n, err
}

func (s *auditStore) DeleteAuditBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM audit_log WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func auditWhere(f AuditFilter) (string, []any) {
	clauses := []string{"org_id = ?"}
	args := []any{f.OrgID}
	if f.UserID != "" {
		clauses = append(clauses, "user_id = ?")
		args = append(args, f.UserID)
	}
	if f.Action != "" {
		clauses = append(clauses, "action = ?")
		args = append(args, f.Action)
	}
	if f.Resource != "" {
		clauses = append(clauses, "resource = ?")
		args = append(args, f.Resource)
	}
	if f.Since != nil {
		clauses = append(clauses, "created_at >= ?")
		args = append(args, *f.Since)
	}
	if f.Until != nil {
		clauses = append(clauses, "created_at < ?")
		args = append(args, *f.Until)
	}
	return "WHERE " + strings.Join(clauses, " AND "), args
}
