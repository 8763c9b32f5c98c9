package handlers

import (
	"log/slog"
	"net/http"
)

func (h *Handler) MiddlewareRequireSecret(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !h.hasValidSecret(r) {
			h.logger.WarnContext(r.Context(), "Rejected webhook call", slog.String("remote", r.RemoteAddr))
			writeJSON(w, http.StatusUnauthorized, errorBody("unauthorized"))
			return
		}
		next.ServeHTTP(w, r)
	})
}
