package rbac

import "testing"

func TestPolicyMatrix(t *testing.T) {
	policy, err := NewPolicy()
	if err != nil {
		t.Fatalf("NewPolicy: %v", err)
	}

	cases := []struct {
		roles  []string
		action string
		want   bool
	}{
		{[]string{RoleAdmin}, ActionIncidentsRead, true},
		{[]string{RoleAdmin}, ActionOrgManage, true},
		{[]string{RoleAdmin}, ActionUsersManage, true},
		{[]string{RoleAdmin}, ActionAuditRead, true},
		{[]string{RoleAdmin}, ActionBillingManage, true},
		{[]string{RoleMember}, ActionIncidentsRead, true},
		{[]string{RoleMember}, ActionIncidentsWrite, true},
		{[]string{RoleMember}, ActionOrgManage, false},
		{[]string{RoleMember}, ActionUsersManage, false},
		{[]string{RoleMember}, ActionAuditRead, false},
		{[]string{RoleOnCall}, ActionIncidentsWrite, true},
		{[]string{RoleOnCall}, ActionBillingManage, false},
		{[]string{RoleMember, RoleAdmin}, ActionOrgManage, true},
		{[]string{RoleAdmin}, "totally:unknown", true},
		{[]string{RoleMember}, "totally:unknown", false},
		{[]string{"viewer"}, ActionIncidentsRead, false},
		{nil, ActionIncidentsRead, false},
	}
	for _, tc := range cases {
		if got := policy.Allowed(tc.roles, tc.action); got != tc.want {
			t.Errorf("Allowed(%v, %s) = %v, want %v", tc.roles, tc.action, got, tc.want)
		}
	}
}
