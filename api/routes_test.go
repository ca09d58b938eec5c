package api_test

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"simplicity-itsm/api"
	"simplicity-itsm/config"
	"simplicity-itsm/core/appbootstrap"
	"simplicity-itsm/core/store"
	"simplicity-itsm/core/utils"
)

type testEnv struct {
	server *httptest.Server
	app    *appbootstrap.App
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	cfg := &config.AppConfig{
		DBDriver: "sqlite",
		DBURL:    filepath.Join(t.TempDir(), "test.db"),
		Auth:     config.AuthConfig{JWTSecret: "test-secret", TokenTTL: time.Hour},
		Billing:  config.BillingConfig{WebhookSecret: "whsec_test", ToleranceSec: 300, PricePlans: map[string]string{"price_pro": "pro"}},
		Audit:    config.AuditConfig{RetentionDays: 730, SweepSchedule: "0 3 * * *"},
	}
	app, err := appbootstrap.Compose(context.Background(), cfg, utils.NewNopLogger())
	if err != nil {
		t.Fatalf("compose: %v", err)
	}
	t.Cleanup(app.Close)

	server := httptest.NewServer(api.NewServer(app.Deps).Routes())
	t.Cleanup(server.Close)
	return &testEnv{server: server, app: app}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) (*http.Response, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, e.server.URL+path, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	var env envelope
	_ = json.NewDecoder(resp.Body).Decode(&env)
	return resp, env
}

type sessionData struct {
	Token string     `json:"token"`
	User  store.User `json:"user"`
}

func (e *testEnv) signup(t *testing.T, email string) sessionData {
	t.Helper()
	resp, env := e.do(t, http.MethodPost, "/api/auth/signup", "", map[string]string{
		"email":    email,
		"name":     "Tester",
		"password": "long enough password",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("signup status = %d (%s)", resp.StatusCode, env.Error)
	}
	var s sessionData
	if err := json.Unmarshal(env.Data, &s); err != nil {
		t.Fatalf("decode session: %v", err)
	}
	return s
}

func TestIncidentLifecycleOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	s := env.signup(t, "admin@acme.test")
	orgPath := "/api/orgs/" + s.User.OrgID

	resp, body := env.do(t, http.MethodPost, orgPath+"/incidents", s.Token, map[string]any{
		"title":    "Checkout is down",
		"severity": "P1",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d (%s)", resp.StatusCode, body.Error)
	}
	var inc store.Incident
	if err := json.Unmarshal(body.Data, &inc); err != nil {
		t.Fatalf("decode incident: %v", err)
	}
	if inc.Status != "open" || inc.Severity != "P1" {
		t.Fatalf("incident %+v", inc)
	}

	resp, body = env.do(t, http.MethodPatch, orgPath+"/incidents/"+inc.ID, s.Token, map[string]any{
		"status": "resolved",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("update status = %d (%s)", resp.StatusCode, body.Error)
	}
	var updated store.Incident
	if err := json.Unmarshal(body.Data, &updated); err != nil {
		t.Fatalf("decode updated: %v", err)
	}
	if updated.Status != "resolved" || updated.ResolvedAt == nil {
		t.Fatalf("updated %+v", updated)
	}

	resp, body = env.do(t, http.MethodGet, orgPath+"/incidents/"+inc.ID+"/timeline", s.Token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("timeline status = %d", resp.StatusCode)
	}
	var entries []store.TimelineEntry
	if err := json.Unmarshal(body.Data, &entries); err != nil {
		t.Fatalf("decode timeline: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("timeline length = %d, want 2", len(entries))
	}

	resp, body = env.do(t, http.MethodGet, orgPath+"/dashboard", s.Token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("dashboard status = %d", resp.StatusCode)
	}
}

func TestDashboardCounts(t *testing.T) {
	env := newTestEnv(t)
	s := env.signup(t, "admin@acme.test")
	orgPath := "/api/orgs/" + s.User.OrgID

	ids := make([]string, 0, 3)
	for _, title := range []string{"first", "second", "third"} {
		resp, body := env.do(t, http.MethodPost, orgPath+"/incidents", s.Token, map[string]any{"title": title})
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("create status = %d (%s)", resp.StatusCode, body.Error)
		}
		var inc store.Incident
		if err := json.Unmarshal(body.Data, &inc); err != nil {
			t.Fatalf("decode incident: %v", err)
		}
		ids = append(ids, inc.ID)
	}
	for id, status := range map[string]string{ids[0]: "resolved", ids[1]: "closed"} {
		resp, body := env.do(t, http.MethodPatch, orgPath+"/incidents/"+id, s.Token, map[string]any{"status": status})
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("patch status = %d (%s)", resp.StatusCode, body.Error)
		}
	}

	resp, body := env.do(t, http.MethodGet, orgPath+"/dashboard", s.Token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("dashboard status = %d (%s)", resp.StatusCode, body.Error)
	}
	var data struct {
		Open                 int              `json:"open"`
		ByStatus             map[string]int   `json:"by_status"`
		AvgResolutionSeconds float64          `json:"avg_resolution_seconds"`
		Recent               []store.Incident `json:"recent"`
	}
	if err := json.Unmarshal(body.Data, &data); err != nil {
		t.Fatalf("decode dashboard: %v", err)
	}
	// Only status "open" counts as open; closed and resolved do not.
	if data.Open != 1 {
		t.Fatalf("open = %d, want 1", data.Open)
	}
	if data.ByStatus["resolved"] != 1 || data.ByStatus["closed"] != 1 {
		t.Fatalf("by_status = %v", data.ByStatus)
	}
	if data.AvgResolutionSeconds < 0 {
		t.Fatalf("avg_resolution_seconds = %f", data.AvgResolutionSeconds)
	}
	if len(data.Recent) != 3 {
		t.Fatalf("recent = %d incidents, want 3", len(data.Recent))
	}
}

func TestFeatureGateBlocksUnlicensedPlan(t *testing.T) {
	env := newTestEnv(t)
	s := env.signup(t, "admin@acme.test")
	orgPath := "/api/orgs/" + s.User.OrgID

	// Strip the org down to a plan with no features at all.
	if _, err := env.app.DB.Exec(`UPDATE organizations SET plan = 'suspended', feature_overrides = '{}' WHERE id = ?`, s.User.OrgID); err != nil {
		t.Fatalf("downgrade org: %v", err)
	}

	for _, path := range []string{orgPath + "/incidents", orgPath + "/dashboard"} {
		resp, _ := env.do(t, http.MethodGet, path, s.Token, nil)
		if resp.StatusCode != http.StatusPaymentRequired {
			t.Fatalf("GET %s status = %d, want 402", path, resp.StatusCode)
		}
	}
}

func TestAuthGuards(t *testing.T) {
	env := newTestEnv(t)
	s := env.signup(t, "admin@acme.test")
	orgPath := "/api/orgs/" + s.User.OrgID

	resp, _ := env.do(t, http.MethodGet, orgPath+"/incidents", "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("no token status = %d, want 401", resp.StatusCode)
	}
	resp, _ = env.do(t, http.MethodGet, orgPath+"/incidents", "bogus-token", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad token status = %d, want 401", resp.StatusCode)
	}

	// A valid token from another org must not cross the tenant boundary.
	other := env.signup(t, "admin@other.test")
	resp, _ = env.do(t, http.MethodGet, orgPath+"/incidents", other.Token, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("cross-org status = %d, want 403", resp.StatusCode)
	}
}

func TestRoleGuards(t *testing.T) {
	env := newTestEnv(t)
	admin := env.signup(t, "admin@acme.test")
	orgPath := "/api/orgs/" + admin.User.OrgID

	resp, body := env.do(t, http.MethodPost, orgPath+"/users", admin.Token, map[string]any{
		"email":    "bob@acme.test",
		"name":     "Bob",
		"roles":    []string{"member"},
		"password": "long enough password",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("invite status = %d (%s)", resp.StatusCode, body.Error)
	}

	// Duplicate invite conflicts.
	resp, _ = env.do(t, http.MethodPost, orgPath+"/users", admin.Token, map[string]any{
		"email": "bob@acme.test",
	})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate invite status = %d, want 409", resp.StatusCode)
	}

	// Bob logs in as a member: incidents yes, user management no.
	resp, body = env.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email":    "bob@acme.test",
		"password": "long enough password",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status = %d (%s)", resp.StatusCode, body.Error)
	}
	var member sessionData
	if err := json.Unmarshal(body.Data, &member); err != nil {
		t.Fatalf("decode session: %v", err)
	}

	resp, _ = env.do(t, http.MethodGet, orgPath+"/incidents", member.Token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("member incidents status = %d, want 200", resp.StatusCode)
	}
	resp, _ = env.do(t, http.MethodGet, orgPath+"/users", member.Token, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("member users status = %d, want 403", resp.StatusCode)
	}
	resp, _ = env.do(t, http.MethodGet, orgPath+"/audit", member.Token, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("member audit status = %d, want 403", resp.StatusCode)
	}
	resp, _ = env.do(t, http.MethodGet, orgPath+"/audit", admin.Token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("admin audit status = %d, want 200", resp.StatusCode)
	}
}

func TestFeatureListing(t *testing.T) {
	env := newTestEnv(t)
	s := env.signup(t, "admin@acme.test")

	resp, body := env.do(t, http.MethodGet, "/api/orgs/"+s.User.OrgID+"/features", s.Token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("features status = %d", resp.StatusCode)
	}
	var data struct {
		Plan     string `json:"plan"`
		Features []struct {
			Feature    string `json:"feature"`
			Enabled    bool   `json:"enabled"`
			Upgradable bool   `json:"upgradable"`
		} `json:"features"`
	}
	if err := json.Unmarshal(body.Data, &data); err != nil {
		t.Fatalf("decode features: %v", err)
	}
	if data.Plan != "free" {
		t.Fatalf("plan = %s, want free", data.Plan)
	}
	seen := map[string]bool{}
	for _, f := range data.Features {
		seen[f.Feature] = f.Enabled
	}
	if !seen["incidentManagement"] {
		t.Fatal("incidentManagement should be enabled on free")
	}
	if seen["assetManagement"] {
		t.Fatal("assetManagement should be disabled on free")
	}
}

func TestBillingWebhookOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	s := env.signup(t, "admin@acme.test")

	// Attach the provider customer id to the org directly.
	customer := "cus_http"
	if _, err := env.app.Deps.Orgs.UpdateOrganizationBilling(context.Background(), s.User.OrgID, store.BillingUpdate{CustomerID: &customer}); err != nil {
		t.Fatalf("set customer: %v", err)
	}

	payload := []byte(`{
		"id": "evt_http",
		"type": "customer.subscription.created",
		"data": {"object": {
			"id": "sub_http", "customer": "cus_http", "status": "active",
			"items": {"data": [{"price": {"id": "price_pro"}}]}
		}}
	}`)
	ts := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte("whsec_test"))
	fmt.Fprintf(mac, "%d.%s", ts, payload)
	sig := fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))

	req, _ := http.NewRequest(http.MethodPost, env.server.URL+"/api/webhooks/billing", bytes.NewReader(payload))
	req.Header.Set("Billing-Signature", sig)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("webhook: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("webhook status = %d, want 200", resp.StatusCode)
	}

	// Unsigned requests bounce.
	req2, _ := http.NewRequest(http.MethodPost, env.server.URL+"/api/webhooks/billing", bytes.NewReader(payload))
	resp2, err := http.DefaultClient.Do(req2)
	if err != nil {
		t.Fatalf("unsigned webhook: %v", err)
	}
	resp2.Body.Close()
	if resp2.StatusCode != http.StatusUnauthorized {
		t.Fatalf("unsigned status = %d, want 401", resp2.StatusCode)
	}

	org, err := env.app.Deps.Orgs.GetOrganization(context.Background(), s.User.OrgID)
	if err != nil {
		t.Fatalf("reload org: %v", err)
	}
	if org.Plan != "pro" {
		t.Fatalf("plan = %s, want pro", org.Plan)
	}
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)
	resp, err := http.Get(env.server.URL + "/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz status = %d", resp.StatusCode)
	}
}
