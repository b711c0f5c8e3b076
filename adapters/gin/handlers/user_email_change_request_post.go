package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/open-rails/emailchange/adapters/ginutil"
	"github.com/open-rails/emailchange/core"
)

// HandleUserEmailChangeRequestPOST starts an email change and sends the
// challenge to the new address. Any previous request is superseded.
func HandleUserEmailChangeRequestPOST(svc core.Provider, rl ginutil.RateLimiter) gin.HandlerFunc {
	type reqBody struct {
		NewEmail string `json:"new_email"`
	}
	return func(c *gin.Context) {
		if !ginutil.AllowNamed(c, rl, ginutil.RLUserEmailChangeRequest) {
			ginutil.TooMany(c)
			return
		}

		userID, ok := ginutil.UserID(c)
		if !ok {
			ginutil.Unauthorized(c, "not_authenticated")
			return
		}

		var body reqBody
		if err := c.ShouldBindJSON(&body); err != nil || strings.TrimSpace(body.NewEmail) == "" {
			ginutil.BadRequest(c, "invalid_request")
			return
		}

		h, err := svc.RequestChange(c.Request.Context(), userID, body.NewEmail)
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

func challengeMessage(m core.Method) string {
	if m == core.MethodLink {
		return "Verification link sent to new email address"
	}
	return "Verification code sent to new email address"
}
