package authhttp

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/open-rails/emailchange/core"
)

type errResp struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func sendErr(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, errResp{Error: code})
}

func badRequest(w http.ResponseWriter, code string)   { sendErr(w, http.StatusBadRequest, code) }
func unauthorized(w http.ResponseWriter, code string) { sendErr(w, http.StatusUnauthorized, code) }
func tooMany(w http.ResponseWriter)                   { sendErr(w, http.StatusTooManyRequests, "rate_limited") }
func serverErr(w http.ResponseWriter, code string)    { sendErr(w, http.StatusInternalServerError, code) }

// StatusForReason maps an email change reason to an HTTP status.
func StatusForReason(reason core.Reason) int {
	switch reason {
	case core.ReasonInvalidEmail, core.ReasonEmailUnchanged, core.ReasonInvalidChallenge:
		return http.StatusBadRequest
	case core.ReasonInvalidCredential:
		return http.StatusUnauthorized
	case core.ReasonReauthenticationRequired:
		return http.StatusForbidden
	case core.ReasonNoPendingChange:
		return http.StatusNotFound
	case core.ReasonEmailInUse, core.ReasonInvalidState:
		return http.StatusConflict
	case core.ReasonChallengeExpired:
		return http.StatusGone
	case core.ReasonAttemptsExhausted:
		return http.StatusTooManyRequests
	case core.ReasonPartialCommit:
		return http.StatusAccepted
	case core.ReasonDeliveryFailed:
		return http.StatusBadGateway
	case core.ReasonUnreachable:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// sendServiceErr writes the reason code for err. Collaborator messages are
// logged, never returned.
func sendServiceErr(w http.ResponseWriter, r *http.Request, err error) {
	reason := core.ReasonOf(err)
	status := StatusForReason(reason)
	if status >= http.StatusInternalServerError || reason == core.ReasonPartialCommit {
		slog.ErrorContext(r.Context(), "email change request failed",
			"path", r.URL.Path, "method", r.Method, "reason", string(reason), "error", err)
	}
	if reason == core.ReasonPartialCommit {
		writeJSON(w, status, map[string]any{"ok": false, "error": string(reason)})
		return
	}
	sendErr(w, status, string(reason))
}
