package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/open-rails/emailchange/adapters/ginutil"
	"github.com/open-rails/emailchange/core"
)

// HandleUserReauthenticatePOST refreshes the user's sign-in with the identity
// provider so a commit that returned reauthentication_required can be retried.
func HandleUserReauthenticatePOST(svc core.Provider, rl ginutil.RateLimiter) gin.HandlerFunc {
	type reqBody struct {
		Password string `json:"password"`
	}
	return func(c *gin.Context) {
		if !ginutil.AllowNamed(c, rl, ginutil.RLUserReauthenticate) {
			ginutil.TooMany(c)
			return
		}
		userID, ok := ginutil.UserID(c)
		if !ok {
			ginutil.Unauthorized(c, "not_authenticated")
			return
		}
		var body reqBody
		if err := c.ShouldBindJSON(&body); err != nil || body.Password == "" {
			ginutil.BadRequest(c, "invalid_request")
			return
		}
		if err := svc.Reauthenticate(c.Request.Context(), userID, body.Password); err != nil {
			ginutil.SendServiceErr(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"ok": true})
	}
}
