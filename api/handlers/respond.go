package handlers

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"

	"simplicity-itsm/core/incidents"
)

const maxPageSize = 50

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

func decodeBody(r *http.Request, into any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(into)
}

func pagination(limitRaw, offsetRaw string) (int, int) {
	limit := 20
	if v, err := strconv.Atoi(limitRaw); err == nil && v > 0 {
		limit = v
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	offset := 0
	if v, err := strconv.Atoi(offsetRaw); err == nil && v > 0 {
		offset = v
	}
	return limit, offset
}

// clientIP trusts RemoteAddr alone; the server's real-IP middleware has
// already folded X-Forwarded-For in when the peer is a trusted proxy.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func requestMeta(r *http.Request) incidents.RequestMeta {
	return incidents.RequestMeta{IP: clientIP(r), UserAgent: r.UserAgent()}
}
