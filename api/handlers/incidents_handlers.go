package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"simplicity-itsm/core/incidents"
	"simplicity-itsm/core/store"
	"simplicity-itsm/core/tenant"
	"simplicity-itsm/core/utils"
)

type IncidentsHandler struct {
	svc    *incidents.Service
	logger *utils.Logger
}

func NewIncidentsHandler(svc *incidents.Service, logger *utils.Logger) *IncidentsHandler {
	return &IncidentsHandler{svc: svc, logger: logger}
}

type createIncidentRequest struct {
	Title            string   `json:"title"`
	Description      string   `json:"description"`
	Severity         string   `json:"severity"`
	Assignees        []string `json:"assignees"`
	Tags             []string `json:"tags"`
	AffectedServices []string `json:"affected_services"`
}

func (h *IncidentsHandler) Create(w http.ResponseWriter, r *http.Request) {
	tc := tenant.FromContext(r.Context())
	var req createIncidentRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	inc, err := h.svc.Create(r.Context(), tc.Org, tc.User, incidents.CreateParams{
		Title:            req.Title,
		Description:      req.Description,
		Severity:         req.Severity,
		Assignees:        req.Assignees,
		Tags:             req.Tags,
		AffectedServices: req.AffectedServices,
	}, requestMeta(r))
	if err != nil {
		if errors.Is(err, incidents.ErrValidation) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if h.logger != nil {
			h.logger.Errorf("create incident failed: %v", err)
		}
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusCreated, inc)
}

func (h *IncidentsHandler) List(w http.ResponseWriter, r *http.Request) {
	tc := tenant.FromContext(r.Context())
	q := r.URL.Query()
	limit, offset := pagination(q.Get("limit"), q.Get("offset"))
	items, total, err := h.svc.List(r.Context(), store.IncidentFilter{
		OrgID:    tc.Org.ID,
		Status:   q.Get("status"),
		Severity: q.Get("severity"),
		Assignee: q.Get("assignee"),
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items":  items,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

func (h *IncidentsHandler) Get(w http.ResponseWriter, r *http.Request) {
	tc := tenant.FromContext(r.Context())
	inc, err := h.svc.Get(r.Context(), tc.Org.ID, chi.URLParam(r, "incidentID"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if inc == nil {
		writeError(w, http.StatusNotFound, "incident not found")
		return
	}
	writeJSON(w, http.StatusOK, inc)
}

type updateIncidentRequest struct {
	Title       *string  `json:"title"`
	Description *string  `json:"description"`
	Status      *string  `json:"status"`
	Severity    *string  `json:"severity"`
	Assignees   []string `json:"assignees"`
}

func (h *IncidentsHandler) Update(w http.ResponseWriter, r *http.Request) {
	tc := tenant.FromContext(r.Context())
	var req updateIncidentRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	inc, err := h.svc.ApplyUpdate(r.Context(), tc.Org, tc.User, chi.URLParam(r, "incidentID"),
		incidents.UpdateParams{
			Title:       req.Title,
			Description: req.Description,
			Status:      req.Status,
			Severity:    req.Severity,
			Assignees:   req.Assignees,
		}, requestMeta(r))
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, "incident not found")
		case errors.Is(err, incidents.ErrValidation):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			if h.logger != nil {
				h.logger.Errorf("update incident failed: %v", err)
			}
			writeError(w, http.StatusInternalServerError, "internal server error")
		}
		return
	}
	writeJSON(w, http.StatusOK, inc)
}

type addNoteRequest struct {
	Text string `json:"text"`
}

func (h *IncidentsHandler) AddNote(w http.ResponseWriter, r *http.Request) {
	tc := tenant.FromContext(r.Context())
	var req addNoteRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	inc, err := h.svc.AddNote(r.Context(), tc.Org, tc.User, chi.URLParam(r, "incidentID"), req.Text)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, "incident not found")
		case errors.Is(err, incidents.ErrValidation):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, "internal server error")
		}
		return
	}
	writeJSON(w, http.StatusCreated, inc)
}

func (h *IncidentsHandler) Timeline(w http.ResponseWriter, r *http.Request) {
	tc := tenant.FromContext(r.Context())
	entries, err := h.svc.Timeline(r.Context(), tc.Org.ID, chi.URLParam(r, "incidentID"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "incident not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, entries)
}
