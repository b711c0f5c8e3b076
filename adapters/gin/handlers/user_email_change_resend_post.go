package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/open-rails/emailchange/adapters/ginutil"
	"github.com/open-rails/emailchange/core"
)

// HandleUserEmailChangeResendPOST issues a fresh challenge for the pending
// request. The previous code or link stops working.
func HandleUserEmailChangeResendPOST(svc core.Provider, rl ginutil.RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !ginutil.AllowNamed(c, rl, ginutil.RLUserEmailChangeResend) {
			ginutil.TooMany(c)
			return
		}

		userID, ok := ginutil.UserID(c)
		if !ok {
			ginutil.Unauthorized(c, "not_authenticated")
			return
		}

		h, err := svc.ResendChallenge(c.Request.Context(), userID)
		if err != nil {
			ginutil.SendServiceErr(c, err)
			return
		}

		c.JSON(http.StatusAccepted, gin.H{
			"ok":      true,
			"request": h,
			"message": challengeMessage(h.Method),
		})
	}
}
