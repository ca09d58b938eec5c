package handlers

import (
	"errors"
	"net/http"

	"simplicity-itsm/core/audit"
	"simplicity-itsm/core/auth"
	"simplicity-itsm/core/store"
	"simplicity-itsm/core/utils"
)

type AuthHandler struct {
	svc      *auth.Service
	recorder *audit.Recorder
	logger   *utils.Logger
}

func NewAuthHandler(svc *auth.Service, recorder *audit.Recorder, logger *utils.Logger) *AuthHandler {
	return &AuthHandler{svc: svc, recorder: recorder, logger: logger}
}

type signupRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
	OrgName  string `json:"org_name"`
}

func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	session, err := h.svc.Signup(r.Context(), auth.SignupParams{
		Email:    req.Email,
		Name:     req.Name,
		Password: req.Password,
		OrgName:  req.OrgName,
	})
	if err != nil {
		if errors.Is(err, auth.ErrEmailTaken) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.recorder.Record(r.Context(), store.AuditEntry{
		OrgID:      session.User.OrgID,
		UserID:     session.User.ID,
		Action:     audit.ActionUserSignup,
		Resource:   "user",
		ResourceID: session.User.ID,
		IP:         clientIP(r),
		UserAgent:  r.UserAgent(),
	})
	writeJSON(w, http.StatusCreated, session)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	session, err := h.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrBadCredentials) {
			writeError(w, http.StatusUnauthorized, "invalid email or password")
			return
		}
		if h.logger != nil {
			h.logger.Errorf("login failed: %v", err)
		}
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	h.recorder.Record(r.Context(), store.AuditEntry{
		OrgID:      session.User.OrgID,
		UserID:     session.User.ID,
		Action:     audit.ActionUserLogin,
		Resource:   "user",
		ResourceID: session.User.ID,
		IP:         clientIP(r),
		UserAgent:  r.UserAgent(),
	})
	writeJSON(w, http.StatusOK, session)
}
