package tenant

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"simplicity-itsm/config"
	"simplicity-itsm/core/auth"
	"simplicity-itsm/core/rbac"
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

func newTestResolver(t *testing.T) (*Resolver, *store.Organization, *store.User) {
	t.Helper()
	db := newTestDB(t)
	ctx := context.Background()

	orgs := store.NewOrgsStore(db)
	users := store.NewUsersStore(db)
	org, err := orgs.CreateOrganization(ctx, "Acme", "free")
	if err != nil {
		t.Fatalf("create org: %v", err)
	}
	user, err := users.CreateUser(ctx, &store.User{
		OrgID: org.ID,
		Email: "alice@acme.test",
		Roles: []string{rbac.RoleMember},
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	policy, err := rbac.NewPolicy()
	if err != nil {
		t.Fatalf("policy: %v", err)
	}
	return NewResolver(orgs, users, policy), org, user
}

func TestResolveLoadsFreshState(t *testing.T) {
	resolver, org, user := newTestResolver(t)
	tc, err := resolver.Resolve(context.Background(), auth.Identity{UserID: user.ID, OrgID: org.ID})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if tc.Org.ID != org.ID || tc.User.ID != user.ID {
		t.Fatal("resolved wrong tenant")
	}
	if !tc.CanAccess(rbac.ActionIncidentsRead) {
		t.Fatal("member should read incidents")
	}
	if tc.CanAccess(rbac.ActionUsersManage) {
		t.Fatal("member must not manage users")
	}
}

func TestResolveUnknownIdentity(t *testing.T) {
	resolver, org, user := newTestResolver(t)
	ctx := context.Background()

	if _, err := resolver.Resolve(ctx, auth.Identity{UserID: "ghost", OrgID: org.ID}); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("unknown user err = %v", err)
	}
	if _, err := resolver.Resolve(ctx, auth.Identity{UserID: user.ID, OrgID: "ghost"}); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("unknown org err = %v", err)
	}
	if _, err := resolver.Resolve(ctx, auth.Identity{}); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("empty identity err = %v", err)
	}
}

func TestValidateTenantRejectsCrossOrg(t *testing.T) {
	resolver, org, user := newTestResolver(t)
	tc, err := resolver.Resolve(context.Background(), auth.Identity{UserID: user.ID, OrgID: org.ID})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if err := ValidateTenant(tc, org.ID); err != nil {
		t.Fatalf("own org rejected: %v", err)
	}
	if err := ValidateTenant(tc, "someone-else"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("cross-org err = %v, want ErrForbidden", err)
	}
	if err := ValidateTenant(tc, ""); !errors.Is(err, ErrForbidden) {
		t.Fatalf("empty org err = %v, want ErrForbidden", err)
	}
	if err := ValidateTenant(nil, org.ID); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("nil context err = %v, want ErrUnauthorized", err)
	}
}
