package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/handsomefox/kinochat/internal/logger"
)

type HandlerWithErr func(w http.ResponseWriter, r *http.Request) error

type Error struct {
	Status  int
	Message string
}

func (e Error) Error() string {
	return e.Message + " code=" + strconv.FormatInt(int64(e.Status), 10)
}

// Adapt turns a HandlerWithErr into an http.Handler. *Error values keep their
// status, anything else becomes a 500 and is logged.
func Adapt(h HandlerWithErr) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		err := h(w, r)
		if err == nil {
			return
		}
		var statusErr *Error
		if errors.As(err, &statusErr) {
			writeJSON(w, statusErr.Status, errorBody(statusErr.Message))
			return
		}
		slog.ErrorContext(r.Context(), "Request failed", slog.String("path", r.URL.Path), logger.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorBody(http.StatusText(http.StatusInternalServerError)))
	})
}
