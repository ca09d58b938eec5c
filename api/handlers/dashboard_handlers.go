package handlers

import (
	"net/http"

	"simplicity-itsm/core/store"
	"simplicity-itsm/core/tenant"
)

type DashboardHandler struct {
	incidents store.IncidentsStore
}

func NewDashboardHandler(incidents store.IncidentsStore) *DashboardHandler {
	return &DashboardHandler{incidents: incidents}
}

// Overview aggregates incident counts, the mean time to resolution and the
// most recent incidents for the org overview page.
func (h *DashboardHandler) Overview(w http.ResponseWriter, r *http.Request) {
	tc := tenant.FromContext(r.Context())
	byStatus, err := h.incidents.CountIncidentsByStatus(r.Context(), tc.Org.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	bySeverity, err := h.incidents.CountIncidentsBySeverity(r.Context(), tc.Org.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	avg, err := h.incidents.AvgResolutionTime(r.Context(), tc.Org.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	recent, err := h.incidents.ListIncidents(r.Context(), store.IncidentFilter{OrgID: tc.Org.ID, Limit: 5})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"open":                   byStatus["open"],
		"by_status":              byStatus,
		"by_severity":            bySeverity,
		"avg_resolution_seconds": avg.Seconds(),
		"recent":                 recent,
	})
}
