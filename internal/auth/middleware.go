package auth

import (
	"log/slog"
	"net/http"
	"strings"
)

// RequireBearer wraps an http.Handler so every request must carry a
// valid "Authorization: Bearer <token>" header. If jwtService is nil
// or disabled, the wrapped handler runs unauthenticated — the control
// plane only enforces auth when an operator configured a secret.
func RequireBearer(jwtService *JWTService, logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !jwtService.Enabled() {
			next.ServeHTTP(w, r)
			return
		}

		token := extractBearer(r.Header.Get("Authorization"))
		if token == "" {
			http.Error(w, "missing bearer token", http.StatusUnauthorized)
			return
		}

		id, err := jwtService.Validate(token)
		if err != nil {
			if logger != nil {
				logger.Warn("control plane auth failed", "error", err)
			}
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
	})
}

func extractBearer(header string) string {
	const prefix = "bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
