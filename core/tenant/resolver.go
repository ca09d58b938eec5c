// Package tenant resolves a verified identity into the full tenant context
// for one request, and enforces the org boundary on every scoped route.
package tenant

import (
	"context"
	"errors"

	"simplicity-itsm/core/auth"
	"simplicity-itsm/core/rbac"
	"simplicity-itsm/core/store"
)

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
)

// Context is the per-request tenant view: the organization, the acting user,
// and the policy to check their roles against. It is built once per request
// from fresh database state, so role or plan changes apply immediately.
type Context struct {
	Org    *store.Organization
	User   *store.User
	policy *rbac.Policy
}

// CanAccess reports whether the user's roles grant the action.
func (c *Context) CanAccess(action string) bool {
	if c == nil || c.User == nil || c.policy == nil {
		return false
	}
	return c.policy.Allowed(c.User.Roles, action)
}

type Resolver struct {
	orgs   store.OrgsStore
	users  store.UsersStore
	policy *rbac.Policy
}

func NewResolver(orgs store.OrgsStore, users store.UsersStore, policy *rbac.Policy) *Resolver {
	return &Resolver{orgs: orgs, users: users, policy: policy}
}

// Resolve loads the organization and user named by the identity. A token
// whose user or org no longer exists, or whose user was moved out of the
// org, resolves to ErrUnauthorized.
func (r *Resolver) Resolve(ctx context.Context, id auth.Identity) (*Context, error) {
	if id.UserID == "" || id.OrgID == "" {
		return nil, ErrUnauthorized
	}
	org, err := r.orgs.GetOrganization(ctx, id.OrgID)
	if err != nil {
		return nil, err
	}
	if org == nil {
		return nil, ErrUnauthorized
	}
	user, err := r.users.GetUser(ctx, id.OrgID, id.UserID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUnauthorized
	}
	return &Context{Org: org, User: user, policy: r.policy}, nil
}

// ValidateTenant rejects any request whose URL org does not match the
// resolved tenant. Cross-tenant access is forbidden, never redirected.
func ValidateTenant(tc *Context, requestedOrgID string) error {
	if tc == nil || tc.Org == nil {
		return ErrUnauthorized
	}
	if requestedOrgID == "" || requestedOrgID != tc.Org.ID {
		return ErrForbidden
	}
	return nil
}

type contextKey struct{}

func WithContext(ctx context.Context, tc *Context) context.Context {
	return context.WithValue(ctx, contextKey{}, tc)
}

func FromContext(ctx context.Context) *Context {
	tc, _ := ctx.Value(contextKey{}).(*Context)
	return tc
}
