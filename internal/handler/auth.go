package handler

import (
	"net/http"

	"strata/internal/auth"
)

// deniedResponse is the envelope returned when a request is rejected by
// the authorizer. Data carries the caller's groups and the missing
// permission, but only in debug configurations.
type deniedResponse struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// RequireAuth authenticates requests against the configured API keys
// and checks the permission derived from the request shape. With auth
// disabled every request passes through.
func RequireAuth(authorizer *auth.Authorizer, appLabel string, debug bool) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !authorizer.Enabled() {
				next.ServeHTTP(w, r)
				return
			}

			key, ok := authorizer.Identify(auth.KeyFromRequest(r))
			if !ok {
				writeDenied(w, "Invalid or missing API key", nil, http.StatusUnauthorized)
				return
			}

			permission := auth.PermissionForRequest(appLabel, r.Method, r.URL.Path)
			if !authorizer.Allowed(key, permission) {
				var data any
				if debug {
					data = map[string]any{
						"groups":   key.Groups,
						"required": permission,
					}
				}
				writeDenied(w, "Permission denied", data, http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func writeDenied(w http.ResponseWriter, message string, data any, statusCode int) {
	writeJSON(w, deniedResponse{OK: false, Message: message, Data: data}, statusCode)
}
