package handlers

import (
	"crypto/subtle"
	"net/http"
)

// SecretHeader carries the secret_token registered with setWebhook.
const SecretHeader = "X-Telegram-Bot-Api-Secret-Token"

func (h *Handler) hasValidSecret(r *http.Request) bool {
	if h.secret == "" {
		return true
	}
	got := r.Header.Get(SecretHeader)
	if got == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(h.secret)) == 1
}
