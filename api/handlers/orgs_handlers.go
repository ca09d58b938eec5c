package handlers

import (
	"errors"
	"net/http"

	"simplicity-itsm/core/audit"
	"simplicity-itsm/core/features"
	"simplicity-itsm/core/store"
	"simplicity-itsm/core/tenant"
	"simplicity-itsm/core/utils"
)

type OrgsHandler struct {
	orgs     store.OrgsStore
	recorder *audit.Recorder
	logger   *utils.Logger
}

func NewOrgsHandler(orgs store.OrgsStore, recorder *audit.Recorder, logger *utils.Logger) *OrgsHandler {
	return &OrgsHandler{orgs: orgs, recorder: recorder, logger: logger}
}

func (h *OrgsHandler) Get(w http.ResponseWriter, r *http.Request) {
	tc := tenant.FromContext(r.Context())
	writeJSON(w, http.StatusOK, tc.Org)
}

type updateOrgRequest struct {
	Name             *string         `json:"name"`
	FeatureOverrides map[string]bool `json:"feature_overrides"`
}

func (h *OrgsHandler) Update(w http.ResponseWriter, r *http.Request) {
	tc := tenant.FromContext(r.Context())
	var req updateOrgRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	name := tc.Org.Name
	if req.Name != nil {
		name = *req.Name
	}
	if name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	overrides := tc.Org.FeatureOverrides
	if req.FeatureOverrides != nil {
		overrides = req.FeatureOverrides
	}
	org, err := h.orgs.UpdateOrganization(r.Context(), tc.Org.ID, name, overrides)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "organization not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	h.recorder.Record(r.Context(), store.AuditEntry{
		OrgID:      tc.Org.ID,
		UserID:     tc.User.ID,
		Action:     audit.ActionOrgUpdated,
		Resource:   "organization",
		ResourceID: org.ID,
		Details:    map[string]any{"name": org.Name},
		IP:         clientIP(r),
		UserAgent:  r.UserAgent(),
	})
	writeJSON(w, http.StatusOK, org)
}

// Features reports every feature with its availability and whether a higher
// plan would unlock it.
func (h *OrgsHandler) Features(w http.ResponseWriter, r *http.Request) {
	tc := tenant.FromContext(r.Context())
	type featureStatus struct {
		Feature    string `json:"feature"`
		Enabled    bool   `json:"enabled"`
		Upgradable bool   `json:"upgradable"`
	}
	out := make([]featureStatus, 0, len(features.AllFeatures))
	for _, f := range features.AllFeatures {
		out = append(out, featureStatus{
			Feature:    string(f),
			Enabled:    features.HasFeature(tc.Org, f),
			Upgradable: features.CanUpgradeFeature(tc.Org, f),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"plan":     tc.Org.Plan,
		"features": out,
	})
}

func (h *OrgsHandler) Billing(w http.ResponseWriter, r *http.Request) {
	tc := tenant.FromContext(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"plan":    tc.Org.Plan,
		"billing": tc.Org.Billing,
	})
}
