package ginutil

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	authhttp "github.com/open-rails/emailchange/adapters/http"
	"github.com/open-rails/emailchange/core"
)

// RateLimiter is a minimal interface used by adapters.
type RateLimiter interface {
	AllowNamed(bucket string, key string) (bool, error)
}

// Bucket names shared with the net/http adapter so both mounts draw from the
// same limits.
const (
	RLUserEmailChangeRequest = authhttp.RLEmailChangeRequest
	RLUserEmailChangeResend  = authhttp.RLEmailChangeResend
	RLUserEmailChangeConfirm = authhttp.RLEmailChangeConfirm
	RLUserEmailChangeCommit  = authhttp.RLEmailChangeCommit
	RLUserEmailChangeStatus  = authhttp.RLEmailChangeStatus
	RLUserEmailChangeCancel  = authhttp.RLEmailChangeCancel
	RLUserEmailChangeRepair  = authhttp.RLEmailChangeRepair
	RLUserReauthenticate     = authhttp.RLReauthenticate
)

// AllowNamed applies a per-principal limit when the request is authenticated
// and a per-IP limit otherwise. It fails open on limiter error.
func AllowNamed(c *gin.Context, rl RateLimiter, bucket string) bool {
	if rl == nil {
		return true
	}
	key := "emailchange:" + bucket + ":ip:" + c.ClientIP()
	if uid := c.GetString("auth.user_id"); uid != "" {
		key = "emailchange:" + bucket + ":user:" + uid
	}
	ok, err := rl.AllowNamed(bucket, key)
	if err != nil {
		return true
	}
	return ok
}

// Error helpers
func SendErr(c *gin.Context, status int, code string) {
	c.AbortWithStatusJSON(status, gin.H{"error": code})
}
func BadRequest(c *gin.Context, code string)   { SendErr(c, http.StatusBadRequest, code) }
func Unauthorized(c *gin.Context, code string) { SendErr(c, http.StatusUnauthorized, code) }
func TooMany(c *gin.Context)                   { SendErr(c, http.StatusTooManyRequests, "rate_limited") }
func ServerErr(c *gin.Context, code string)    { SendErr(c, http.StatusInternalServerError, code) }

// ServerErrWithLog logs the underlying error/context before responding with a generic server error.
func ServerErrWithLog(c *gin.Context, code string, err error, message string) {
	entry := log.WithContext(c.Request.Context()).WithFields(log.Fields{
		"code":   code,
		"path":   c.FullPath(),
		"method": c.Request.Method,
	})
	if err != nil {
		entry = entry.WithError(err)
	}
	if strings.TrimSpace(message) == "" {
		message = "emailchange server error"
	}
	entry.Error(message)
	ServerErr(c, code)
}

// SendServiceErr maps a coordinator error to its reason code and status.
// A partial commit is reported as accepted with ok=false.
func SendServiceErr(c *gin.Context, err error) {
	reason := core.ReasonOf(err)
	status := authhttp.StatusForReason(reason)
	if status >= http.StatusInternalServerError || reason == core.ReasonPartialCommit {
		log.WithContext(c.Request.Context()).WithFields(log.Fields{
			"reason": string(reason),
			"path":   c.FullPath(),
			"method": c.Request.Method,
		}).WithError(err).Error("email change request failed")
	}
	if reason == core.ReasonPartialCommit {
		c.AbortWithStatusJSON(status, gin.H{"ok": false, "error": string(reason)})
		return
	}
	SendErr(c, status, string(reason))
}

// UserID returns the principal set by the auth middleware.
func UserID(c *gin.Context) (string, bool) {
	uid := c.GetString("auth.user_id")
	return uid, uid != ""
}

// BearerToken extracts a Bearer token from an Authorization header value.
func BearerToken(authorization string) string {
	if authorization == "" {
		return ""
	}
	parts := strings.SplitN(authorization, " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}
