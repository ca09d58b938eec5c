package api

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"simplicity-itsm/core/features"
	"simplicity-itsm/core/tenant"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if s.logger != nil {
					s.logger.Errorf("PANIC %s %s: %v\n%s", r.Method, r.URL.Path, rec, string(debug.Stack()))
				}
				http.Error(w, "internal server error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// realIPMiddleware rewrites RemoteAddr from X-Forwarded-For, but only when
// the direct peer is a configured trusted proxy. From anyone else the header
// is client-controlled and would let callers forge the audit-log IP.
func (s *Server) realIPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.trustedProxy(remoteHost(r.RemoteAddr)) {
			if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
				first, _, _ := strings.Cut(fwd, ",")
				r.RemoteAddr = strings.TrimSpace(first)
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) trustedProxy(host string) bool {
	for _, p := range s.cfg.Security.TrustedProxies {
		if p == host {
			return true
		}
	}
	return false
}

func remoteHost(addr string) string {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}

func (s *Server) securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")
		next.ServeHTTP(w, r)
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		elapsed := time.Since(start)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = r.URL.Path
		}
		observeRequest(r.Method, route, rec.status, elapsed)
		if s.logger != nil {
			s.logger.Printf("%s %s status=%d elapsed=%s", r.Method, r.URL.Path, rec.status, elapsed)
		}
	})
}

// withTenant verifies the bearer token, resolves the tenant context from
// fresh database state and pins it to the request. The org in the URL must
// match the token's org.
func (s *Server) withTenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := bearerToken(r)
		if raw == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		id, err := s.tokens.Parse(raw)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		tc, err := s.resolver.Resolve(r.Context(), id)
		if err != nil {
			if errors.Is(err, tenant.ErrUnauthorized) {
				writeError(w, http.StatusUnauthorized, "unknown identity")
				return
			}
			writeError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		if err := tenant.ValidateTenant(tc, chi.URLParam(r, "orgID")); err != nil {
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}
		next.ServeHTTP(w, r.WithContext(tenant.WithContext(r.Context(), tc)))
	})
}

// requirePermission guards one handler with an rbac action check against the
// resolved tenant context.
func (s *Server) requirePermission(action string) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			tc := tenant.FromContext(r.Context())
			if tc == nil {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			if !tc.CanAccess(action) {
				writeError(w, http.StatusForbidden, "forbidden")
				return
			}
			next(w, r)
		}
	}
}

// requireFeature rejects requests for a module the org's plan does not
// include. 402 tells the client an upgrade would unlock it.
func (s *Server) requireFeature(f features.Feature) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tc := tenant.FromContext(r.Context())
			if tc == nil {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			if !features.HasFeature(tc.Org, f) {
				writeError(w, http.StatusPaymentRequired, "feature not available on current plan")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"success": status < 400, "data": v})
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "error": message})
}
