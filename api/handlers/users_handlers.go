package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"simplicity-itsm/core/audit"
	"simplicity-itsm/core/auth"
	"simplicity-itsm/core/rbac"
	"simplicity-itsm/core/store"
	"simplicity-itsm/core/tenant"
	"simplicity-itsm/core/utils"
)

type UsersHandler struct {
	users    store.UsersStore
	recorder *audit.Recorder
	logger   *utils.Logger
}

func NewUsersHandler(users store.UsersStore, recorder *audit.Recorder, logger *utils.Logger) *UsersHandler {
	return &UsersHandler{users: users, recorder: recorder, logger: logger}
}

func (h *UsersHandler) List(w http.ResponseWriter, r *http.Request) {
	tc := tenant.FromContext(r.Context())
	q := r.URL.Query()
	limit, offset := pagination(q.Get("limit"), q.Get("offset"))
	users, err := h.users.ListUsers(r.Context(), tc.Org.ID, limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	total, err := h.users.CountUsers(r.Context(), tc.Org.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items":  users,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

type inviteUserRequest struct {
	Email    string   `json:"email"`
	Name     string   `json:"name"`
	Roles    []string `json:"roles"`
	Password string   `json:"password"`
}

func (h *UsersHandler) Invite(w http.ResponseWriter, r *http.Request) {
	tc := tenant.FromContext(r.Context())
	var req inviteUserRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Email == "" {
		writeError(w, http.StatusBadRequest, "email is required")
		return
	}
	if !validRoles(req.Roles) {
		writeError(w, http.StatusBadRequest, "unknown role")
		return
	}
	hash := ""
	if req.Password != "" {
		var err error
		hash, err = auth.HashPassword(req.Password)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	user, err := h.users.CreateUser(r.Context(), &store.User{
		OrgID:        tc.Org.ID,
		Email:        req.Email,
		Name:         req.Name,
		Roles:        req.Roles,
		PasswordHash: hash,
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicateEmail) {
			writeError(w, http.StatusConflict, "email already registered in organization")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	h.recorder.Record(r.Context(), store.AuditEntry{
		OrgID:      tc.Org.ID,
		UserID:     tc.User.ID,
		Action:     audit.ActionUserInvited,
		Resource:   "user",
		ResourceID: user.ID,
		Details:    map[string]any{"email": user.Email, "roles": user.Roles},
		IP:         clientIP(r),
		UserAgent:  r.UserAgent(),
	})
	writeJSON(w, http.StatusCreated, user)
}

type updateUserRequest struct {
	Name  *string  `json:"name"`
	Roles []string `json:"roles"`
}

func (h *UsersHandler) Update(w http.ResponseWriter, r *http.Request) {
	tc := tenant.FromContext(r.Context())
	var req updateUserRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Roles != nil && !validRoles(req.Roles) {
		writeError(w, http.StatusBadRequest, "unknown role")
		return
	}
	user, err := h.users.UpdateUser(r.Context(), tc.Org.ID, chi.URLParam(r, "userID"), req.Name, req.Roles)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	h.recorder.Record(r.Context(), store.AuditEntry{
		OrgID:      tc.Org.ID,
		UserID:     tc.User.ID,
		Action:     audit.ActionUserUpdated,
		Resource:   "user",
		ResourceID: user.ID,
		Details:    map[string]any{"roles": user.Roles},
		IP:         clientIP(r),
		UserAgent:  r.UserAgent(),
	})
	writeJSON(w, http.StatusOK, user)
}

func validRoles(roles []string) bool {
	for _, role := range roles {
		switch role {
		case rbac.RoleAdmin, rbac.RoleMember, rbac.RoleOnCall:
		default:
			return false
		}
	}
	return true
}
