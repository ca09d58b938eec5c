// Package rbac answers "may this set of roles perform this action" through a
// casbin enforcer built from an embedded model and policy.
package rbac

import (
	"fmt"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
)

const (
	ActionIncidentsRead  = "incidents:read"
	ActionIncidentsWrite = "incidents:write"
	ActionOrgManage      = "org:manage"
	ActionUsersManage    = "users:manage"
	ActionAuditRead      = "audit:read"
	ActionBillingManage  = "billing:manage"
)

const (
	RoleAdmin  = "admin"
	RoleMember = "member"
	RoleOnCall = "oncall"
)

const modelText = `
[request_definition]
r = sub, act

[policy_definition]
p = sub, act

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = r.sub == p.sub && (p.act == "*" || r.act == p.act)
`

var policies = [][]string{
	{RoleAdmin, "*"},
	{RoleMember, ActionIncidentsRead},
	{RoleMember, ActionIncidentsWrite},
	{RoleOnCall, ActionIncidentsRead},
	{RoleOnCall, ActionIncidentsWrite},
}

type Policy struct {
	enforcer *casbin.Enforcer
}

func NewPolicy() (*Policy, error) {
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, fmt.Errorf("rbac model: %w", err)
	}
	e, err := casbin.NewEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("rbac enforcer: %w", err)
	}
	for _, p := range policies {
		if _, err := e.AddPolicy(p[0], p[1]); err != nil {
			return nil, fmt.Errorf("rbac policy %v: %w", p, err)
		}
	}
	return &Policy{enforcer: e}, nil
}

// Allowed reports whether any of the roles grants the action. Unknown roles
// and unknown actions deny.
func (p *Policy) Allowed(roles []string, action string) bool {
	for _, role := range roles {
		ok, err := p.enforcer.Enforce(role, action)
		if err == nil && ok {
			return true
		}
	}
	return false
}
