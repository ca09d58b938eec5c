package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"

	"simplicity-itsm/core/utils"
)

type IncidentsStore interface {
	CreateIncident(ctx context.Context, inc *Incident, entries []TimelineEntry) (*Incident, error)
	GetIncident(ctx context.Context, orgID, id string) (*Incident, error)
	ListIncidents(ctx context.Context, f IncidentFilter) ([]*Incident, error)
	CountIncidents(ctx context.Context, f IncidentFilter) (int, error)
	UpdateIncident(ctx context.Context, orgID, id string, ch IncidentChanges, entries []TimelineEntry) (*Incident, error)
	ListTimeline(ctx context.Context, orgID, incidentID string) ([]*TimelineEntry, error)
	CountIncidentsByStatus(ctx context.Context, orgID string) (map[string]int, error)
	CountIncidentsBySeverity(ctx context.Context, orgID string) (map[string]int, error)
	AvgResolutionTime(ctx context.Context, orgID string) (time.Duration, error)
}

type IncidentFilter struct {
	OrgID    string
	Status   string
	Severity string
	Assignee string
	Limit    int
	Offset   int
}

// IncidentChanges lists the mutable incident fields. Nil pointers leave the
// stored value untouched; ResolvedAt uses a double pointer so a change to
// NULL stays distinguishable from no change.
type IncidentChanges struct {
	Title       *string
	Description *string
	Status      *string
	Severity    *string
	Assignees   []string
	ResolvedAt  **time.Time
}

type incidentsStore struct {
	db *sql.DB
}

func NewIncidentsStore(db *sql.DB) IncidentsStore {
	return &incidentsStore{db: db}
}

const incidentColumns = `id, org_id, title, description, severity, status, assignees, reporter_id, tags, affected_services, resolved_at, created_at, updated_at`

func (s *incidentsStore) CreateIncident(ctx context.Context, inc *Incident, entries []TimelineEntry) (*Incident, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	now := utils.NowUTC()
	created := *inc
	created.ID = uuid.Must(uuid.NewV4()).String()
	created.CreatedAt = now
	created.UpdatedAt = now
	if created.Severity == "" {
		created.Severity = "P3"
	}
	if created.Status == "" {
		created.Status = "open"
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO incidents (id, org_id, title, description, severity, status, assignees, reporter_id, tags, affected_services, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		created.ID, created.OrgID, created.Title, created.Description,
		created.Severity, created.Status, stringsToJSON(created.Assignees),
		created.ReporterID, stringsToJSON(created.Tags),
		stringsToJSON(created.AffectedServices), now, now,
	)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if err := insertTimelineEntry(ctx, tx, created.ID, e, now); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &created, nil
}

func (s *incidentsStore) GetIncident(ctx context.Context, orgID, id string) (*Incident, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+incidentColumns+` FROM incidents WHERE org_id = ? AND id = ?`, orgID, id)
	return scanIncident(row)
}

func (s *incidentsStore) ListIncidents(ctx context.Context, f IncidentFilter) ([]*Incident, error) {
	where, args := incidentWhere(f)
	args = append(args, f.Limit, f.Offset)
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+incidentColumns+` FROM incidents `+where+` ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Incident
	for rows.Next() {
		inc, err := scanIncidentRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inc)
	}
	return out, rows.Err()
}

func (s *incidentsStore) CountIncidents(ctx context.Context, f IncidentFilter) (int, error) {
	where, args := incidentWhere(f)
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM incidents `+where, args...).Scan(&n)
	return n, err
}

func (s *incidentsStore) UpdateIncident(ctx context.Context, orgID, id string, ch IncidentChanges, entries []TimelineEntry) (*Incident, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	now := utils.NowUTC()
	sets := []string{"updated_at = ?"}
	args := []any{now}
	if ch.Title != nil {
		sets = append(sets, "title = ?")
		args = append(args, *ch.Title)
	}
	if ch.Description != nil {
		sets = append(sets, "description = ?")
		args = append(args, *ch.Description)
	}
	if ch.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, *ch.Status)
	}
	if ch.Severity != nil {
		sets = append(sets, "severity = ?")
		args = append(args, *ch.Severity)
	}
	if ch.Assignees != nil {
		sets = append(sets, "assignees = ?")
		args = append(args, stringsToJSON(ch.Assignees))
	}
	if ch.ResolvedAt != nil {
		sets = append(sets, "resolved_at = ?")
		args = append(args, *ch.ResolvedAt)
	}
	args = append(args, orgID, id)

	res, err := tx.ExecContext(ctx,
		`UPDATE incidents SET `+strings.Join(sets, ", ")+` WHERE org_id = ? AND id = ?`,
		args...)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	for _, e := range entries {
		if err := insertTimelineEntry(ctx, tx, id, e, now); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return s.GetIncident(ctx, orgID, id)
}

func (s *incidentsStore) ListTimeline(ctx context.Context, orgID, incidentID string) ([]*TimelineEntry, error) {
	inc, err := s.GetIncident(ctx, orgID, incidentID)
	if err != nil {
		return nil, err
	}
	if inc == nil {
		return nil, ErrNotFound
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, incident_id, entry_type, text, user_id, old_value, new_value, created_at
		 FROM incident_timeline WHERE incident_id = ? ORDER BY id`, incidentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*TimelineEntry
	for rows.Next() {
		var e TimelineEntry
		if err := rows.Scan(&e.ID, &e.IncidentID, &e.Type, &e.Text, &e.UserID, &e.OldValue, &e.NewValue, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

func (s *incidentsStore) CountIncidentsByStatus(ctx context.Context, orgID string) (map[string]int, error) {
	return s.countGrouped(ctx, orgID, "status")
}

func (s *incidentsStore) CountIncidentsBySeverity(ctx context.Context, orgID string) (map[string]int, error) {
	return s.countGrouped(ctx, orgID, "severity")
}

// AvgResolutionTime averages resolved_at - created_at over incidents that
// have been resolved. Zero when nothing has a resolution timestamp yet.
func (s *incidentsStore) AvgResolutionTime(ctx context.Context, orgID string) (time.Duration, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT created_at, resolved_at FROM incidents WHERE org_id = ? AND resolved_at IS NOT NULL`, orgID)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	var total time.Duration
	var n int
	for rows.Next() {
		var created, resolved time.Time
		if err := rows.Scan(&created, &resolved); err != nil {
			return 0, err
		}
		total += resolved.Sub(created)
		n++
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, nil
	}
	return total / time.Duration(n), nil
}

func (s *incidentsStore) countGrouped(ctx context.Context, orgID, column string) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+column+`, COUNT(*) FROM incidents WHERE org_id = ? GROUP BY `+column, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]int{}
	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return nil, err
		}
		out[key] = n
	}
	return out, rows.Err()
}

func incidentWhere(f IncidentFilter) (string, []any) {
	clauses := []string{"org_id = ?"}
	args := []any{f.OrgID}
	if f.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, f.Status)
	}
	if f.Severity != "" {
		clauses = append(clauses, "severity = ?")
		args = append(args, f.Severity)
	}
	if f.Assignee != "" {
		// assignees is a JSON array of ids stored as TEXT.
		clauses = append(clauses, "assignees LIKE ?")
		args = append(args, `%"`+f.Assignee+`"%`)
	}
	return "WHERE " + strings.Join(clauses, " AND "), args
}

func insertTimelineEntry(ctx context.Context, tx *sql.Tx, incidentID string, e TimelineEntry, now time.Time) error {
	created := e.CreatedAt
	if created.IsZero() {
		created = now
	}
	_, err := tx.ExecContext(ctx,
		`INSERT INTO incident_timeline (incident_id, entry_type, text, user_id, old_value, new_value, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		incidentID, e.Type, e.Text, e.UserID, e.OldValue, e.NewValue, created,
	)
	return err
}

func scanIncident(row *sql.Row) (*Incident, error) {
	var inc Incident
	var assignees, tags, services string
	var resolvedAt sql.NullTime
	err := row.Scan(&inc.ID, &inc.OrgID, &inc.Title, &inc.Description,
		&inc.Severity, &inc.Status, &assignees, &inc.ReporterID,
		&tags, &services, &resolvedAt, &inc.CreatedAt, &inc.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	fillIncidentJSON(&inc, assignees, tags, services, resolvedAt)
	return &inc, nil
}

func scanIncidentRows(rows *sql.Rows) (*Incident, error) {
	var inc Incident
	var assignees, tags, services string
	var resolvedAt sql.NullTime
	err := rows.Scan(&inc.ID, &inc.OrgID, &inc.Title, &inc.Description,
		&inc.Severity, &inc.Status, &assignees, &inc.ReporterID,
		&tags, &services, &resolvedAt, &inc.CreatedAt, &inc.UpdatedAt)
	if err != nil {
		return nil, err
	}
	fillIncidentJSON(&inc, assignees, tags, services, resolvedAt)
	return &inc, nil
}

func fillIncidentJSON(inc *Incident, assignees, tags, services string, resolvedAt sql.NullTime) {
	inc.Assignees = stringsFromJSON(assignees)
	inc.Tags = stringsFromJSON(tags)
	inc.AffectedServices = stringsFromJSON(services)
	if resolvedAt.Valid {
		t := resolvedAt.Time
		inc.ResolvedAt = &t
	}
}
