package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/open-rails/emailchange/adapters/ginutil"
	"github.com/open-rails/emailchange/core"
)

// HandleUserEmailChangeConfirmPOST verifies the code and commits the change.
func HandleUserEmailChangeConfirmPOST(svc core.Provider, rl ginutil.RateLimiter) gin.HandlerFunc {
	type reqBody struct {
		Code string `json:"code"`
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
		if err := c.ShouldBindJSON(&body); err != nil || strings.TrimSpace(body.Code) == "" {
			ginutil.BadRequest(c, "invalid_request")
			return
		}

		if _, err := svc.VerifyChallenge(c.Request.Context(), userID, strings.TrimSpace(body.Code)); err != nil {
			ginutil.SendServiceErr(c, err)
			return
		}
		commit(c, svc, userID)
	}
}

// commit writes the committed handle, or the reason the commit stopped.
func commit(c *gin.Context, svc core.Provider, userID string) {
	h, err := svc.Commit(c.Request.Context(), userID)
	if err != nil {
		ginutil.SendServiceErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"ok":      true,
		"request": h,
		"message": "Email changed successfully",
	})
}
