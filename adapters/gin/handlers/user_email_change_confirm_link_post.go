package handlers

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/open-rails/emailchange/adapters/ginutil"
	"github.com/open-rails/emailchange/core"
)

// HandleUserEmailChangeConfirmLinkPOST consumes the token from a verification
// link and commits the change. The token must belong to the signed-in user.
func HandleUserEmailChangeConfirmLinkPOST(svc core.Provider, rl ginutil.RateLimiter) gin.HandlerFunc {
	type reqBody struct {
		Token string `json:"token"`
	}
	return func(c *gin.Context) {
		if !ginutil.AllowNamed(c, rl, ginutil.RLUserEmailChangeConfirm) {
			ginutil.TooMany(c)
			return
		}

		userID, ok := ginutil.UserID(c)
		if !ok {
			ginutil.Unauthorized(c, "not_authenticated")
			return
		}

		var body reqBody
		if err := c.ShouldBindJSON(&body); err != nil || strings.TrimSpace(body.Token) == "" {
			ginutil.BadRequest(c, "invalid_request")
			return
		}

		if _, err := svc.ConsumeVerificationToken(c.Request.Context(), userID, strings.TrimSpace(body.Token)); err != nil {
			ginutil.SendServiceErr(c, err)
			return
		}
		commit(c, svc, userID)
	}
}
