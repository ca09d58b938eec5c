package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/gofrs/uuid/v5"

	"simplicity-itsm/core/utils"
)

// ErrDuplicateEmail reports an insert that would reuse an email address
// already registered in the same organization.
var ErrDuplicateEmail = errors.New("email already registered in organization")

type UsersStore interface {
	CreateUser(ctx context.Context, u *User) (*User, error)
	GetUser(ctx context.Context, orgID, id string) (*User, error)
	FindUserByEmail(ctx context.Context, email string) (*User, error)
	FindUserByOrgEmail(ctx context.Context, orgID, email string) (*User, error)
	ListUsers(ctx context.Context, orgID string, limit, offset int) ([]*User, error)
	CountUsers(ctx context.Context, orgID string) (int, error)
	UpdateUser(ctx context.Context, orgID, id string, name *string, roles []string) (*User, error)
}

type usersStore struct {
	db *sql.DB
}

func NewUsersStore(db *sql.DB) UsersStore {
	return &usersStore{db: db}
}

const userColumns = `id, org_id, email, name, roles, password_hash, created_at, updated_at`

func (s *usersStore) CreateUser(ctx context.Context, u *User) (*User, error) {
	existing, err := s.FindUserByOrgEmail(ctx, u.OrgID, u.Email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrDuplicateEmail
	}

	now := utils.NowUTC()
	created := *u
	created.ID = uuid.Must(uuid.NewV4()).String()
	created.Email = strings.ToLower(strings.TrimSpace(u.Email))
	created.CreatedAt = now
	created.UpdatedAt = now
	if len(created.Roles) == 0 {
		created.Roles = []string{"member"}
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO users (id, org_id, email, name, roles, password_hash, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		created.ID, created.OrgID, created.Email, created.Name,
		stringsToJSON(created.Roles), created.PasswordHash, now, now,
	)
	if err != nil {
		return nil, err
	}
	return &created, nil
}

func (s *usersStore) GetUser(ctx context.Context, orgID, id string) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE org_id = ? AND id = ?`, orgID, id)
	return scanUser(row)
}

func (s *usersStore) FindUserByEmail(ctx context.Context, email string) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ? ORDER BY created_at LIMIT 1`,
		strings.ToLower(strings.TrimSpace(email)))
	return scanUser(row)
}

func (s *usersStore) FindUserByOrgEmail(ctx context.Context, orgID, email string) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE org_id = ? AND email = ?`,
		orgID, strings.ToLower(strings.TrimSpace(email)))
	return scanUser(row)
}

func (s *usersStore) ListUsers(ctx context.Context, orgID string, limit, offset int) ([]*User, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE org_id = ? ORDER BY created_at LIMIT ? OFFSET ?`,
		orgID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*User
	for rows.Next() {
		u, err := scanUserRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *usersStore) CountUsers(ctx context.Context, orgID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users WHERE org_id = ?`, orgID).Scan(&n)
	return n, err
}

func (s *usersStore) UpdateUser(ctx context.Context, orgID, id string, name *string, roles []string) (*User, error) {
	current, err := s.GetUser(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, ErrNotFound
	}
	newName := current.Name
	if name != nil {
		newName = *name
	}
	newRoles := current.Roles
	if roles != nil {
		newRoles = roles
	}
	now := utils.NowUTC()
	_, err = s.db.ExecContext(ctx,
		`UPDATE users SET name = ?, roles = ?, updated_at = ? WHERE org_id = ? AND id = ?`,
		newName, stringsToJSON(newRoles), now, orgID, id,
	)
	if err != nil {
		return nil, err
	}
	current.Name = newName
	current.Roles = newRoles
	current.UpdatedAt = now
	return current, nil
}

func scanUser(row *sql.Row) (*User, error) {
	var u User
	var roles string
	err := row.Scan(&u.ID, &u.OrgID, &u.Email, &u.Name, &roles, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	u.Roles = stringsFromJSON(roles)
	return &u, nil
}

func scanUserRows(rows *sql.Rows) (*User, error) {
	var u User
	var roles string
	if err := rows.Scan(&u.ID, &u.OrgID, &u.Email, &u.Name, &roles, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	u.Roles = stringsFromJSON(roles)
	return &u, nil
}
