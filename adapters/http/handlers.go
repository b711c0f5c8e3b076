package authhttp

import (
	"net/http"
	"strings"

	"github.com/open-rails/emailchange/core"
)

// APIHandler returns a handler serving the email change routes under /account/*.
// It is intended to be mounted under the host's mux/router at any prefix.
func (s *Service) APIHandler() http.Handler {
	if s == nil || s.svc == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { serverErr(w, "emailchange_not_initialized") })
	}
	if s.svc.Production() && !s.svc.EphemeralMode().Durable() {
		panic("emailchange: a durable ephemeral store (redis or sqlite) is required in production")
	}

	mux := http.NewServeMux()
	required := Required(s.verifier)

	mux.Handle("GET /account/email/change", required(http.HandlerFunc(s.handleEmailChangeGET)))
	mux.Handle("DELETE /account/email/change", required(http.HandlerFunc(s.handleEmailChangeDELETE)))
	mux.Handle("POST /account/email/change/request", required(http.HandlerFunc(s.handleEmailChangeRequestPOST)))
	mux.Handle("POST /account/email/change/resend", required(http.HandlerFunc(s.handleEmailChangeResendPOST)))
	mux.Handle("POST /account/email/change/confirm", required(http.HandlerFunc(s.handleEmailChangeConfirmPOST)))
	mux.Handle("POST /account/email/change/confirm-link", required(http.HandlerFunc(s.handleEmailChangeConfirmLinkPOST)))
	mux.Handle("POST /account/email/change/commit", required(http.HandlerFunc(s.handleEmailChangeCommitPOST)))
	mux.Handle("POST /account/email/change/repair", required(http.HandlerFunc(s.handleEmailChangeRepairPOST)))
	mux.Handle("POST /account/reauthenticate", required(http.HandlerFunc(s.handleReauthenticatePOST)))
	return mux
}

func principal(w http.ResponseWriter, r *http.Request) (string, bool) {
	cl, ok := ClaimsFromContext(r.Context())
	if !ok || cl.UserID == "" {
		unauthorized(w, "not_authenticated")
		return "", false
	}
	return cl.UserID, true
}

func (s *Service) handleEmailChangeRequestPOST(w http.ResponseWriter, r *http.Request) {
	if !s.allow(r, RLEmailChangeRequest) {
		tooMany(w)
		return
	}
	userID, ok := principal(w, r)
	if !ok {
		return
	}
	var body struct {
		NewEmail string `json:"new_email"`
	}
	if err := decodeJSON(w, r, &body); err != nil || strings.TrimSpace(body.NewEmail) == "" {
		badRequest(w, "invalid_request")
		return
	}
	h, err := s.svc.RequestChange(r.Context(), userID, body.NewEmail)
	if err != nil {
		sendServiceErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"ok":      true,
		"request": h,
		"message": challengeMessage(h.Method),
	})
}

func (s *Service) handleEmailChangeResendPOST(w http.ResponseWriter, r *http.Request) {
	if !s.allow(r, RLEmailChangeResend) {
		tooMany(w)
		return
	}
	userID, ok := principal(w, r)
	if !ok {
		return
	}
	h, err := s.svc.ResendChallenge(r.Context(), userID)
	if err != nil {
		sendServiceErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"ok":      true,
		"request": h,
		"message": challengeMessage(h.Method),
	})
}

// handleEmailChangeConfirmPOST verifies the code and commits in one call.
func (s *Service) handleEmailChangeConfirmPOST(w http.ResponseWriter, r *http.Request) {
	if !s.allow(r, RLEmailChangeConfirm) {
		tooMany(w)
		return
	}
	userID, ok := principal(w, r)
	if !ok {
		return
	}
	var body struct {
		Code string `json:"code"`
	}
	if err := decodeJSON(w, r, &body); err != nil || strings.TrimSpace(body.Code) == "" {
		badRequest(w, "invalid_request")
		return
	}
	if _, err := s.svc.VerifyChallenge(r.Context(), userID, body.Code); err != nil {
		sendServiceErr(w, r, err)
		return
	}
	s.commit(w, r, userID)
}

func (s *Service) handleEmailChangeConfirmLinkPOST(w http.ResponseWriter, r *http.Request) {
	if !s.allow(r, RLEmailChangeConfirm) {
		tooMany(w)
		return
	}
	userID, ok := principal(w, r)
	if !ok {
		return
	}
	var body struct {
		Token string `json:"token"`
	}
	if err := decodeJSON(w, r, &body); err != nil || strings.TrimSpace(body.Token) == "" {
		badRequest(w, "invalid_request")
		return
	}
	if _, err := s.svc.ConsumeVerificationToken(r.Context(), userID, body.Token); err != nil {
		sendServiceErr(w, r, err)
		return
	}
	s.commit(w, r, userID)
}

// handleEmailChangeCommitPOST retries the commit of a verified change, e.g.
// after reauthentication.
func (s *Service) handleEmailChangeCommitPOST(w http.ResponseWriter, r *http.Request) {
	if !s.allow(r, RLEmailChangeCommit) {
		tooMany(w)
		return
	}
	userID, ok := principal(w, r)
	if !ok {
		return
	}
	s.commit(w, r, userID)
}

func (s *Service) commit(w http.ResponseWriter, r *http.Request, userID string) {
	h, err := s.svc.Commit(r.Context(), userID)
	if err != nil {
		sendServiceErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":      true,
		"request": h,
		"message": "Email changed successfully",
	})
}

func (s *Service) handleEmailChangeGET(w http.ResponseWriter, r *http.Request) {
	if !s.allow(r, RLEmailChangeStatus) {
		tooMany(w)
		return
	}
	userID, ok := principal(w, r)
	if !ok {
		return
	}
	st, err := s.svc.GetStatus(r.Context(), userID)
	if err != nil {
		sendServiceErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"pending": st})
}

func (s *Service) handleEmailChangeDELETE(w http.ResponseWriter, r *http.Request) {
	if !s.allow(r, RLEmailChangeCancel) {
		tooMany(w)
		return
	}
	userID, ok := principal(w, r)
	if !ok {
		return
	}
	if err := s.svc.Cancel(r.Context(), userID); err != nil {
		sendServiceErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Service) handleEmailChangeRepairPOST(w http.ResponseWriter, r *http.Request) {
	if !s.allow(r, RLEmailChangeRepair) {
		tooMany(w)
		return
	}
	userID, ok := principal(w, r)
	if !ok {
		return
	}
	if err := s.svc.RepairProfileEmail(r.Context(), userID); err != nil {
		sendServiceErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Service) handleReauthenticatePOST(w http.ResponseWriter, r *http.Request) {
	if !s.allow(r, RLReauthenticate) {
		tooMany(w)
		return
	}
	userID, ok := principal(w, r)
	if !ok {
		return
	}
	var body struct {
		Password string `json:"password"`
	}
	if err := decodeJSON(w, r, &body); err != nil || body.Password == "" {
		badRequest(w, "invalid_request")
		return
	}
	if err := s.svc.Reauthenticate(r.Context(), userID, body.Password); err != nil {
		sendServiceErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func challengeMessage(m core.Method) string {
	if m == core.MethodLink {
		return "Verification link sent to new email address"
	}
	return "Verification code sent to new email address"
}
