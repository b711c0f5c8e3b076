package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/open-rails/emailchange/adapters/ginutil"
	"github.com/open-rails/emailchange/core"
)

func HandleUserEmailChangeGET(svc core.Provider, rl ginutil.RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !ginutil.AllowNamed(c, rl, ginutil.RLUserEmailChangeStatus) {
			ginutil.TooMany(c)
			return
		}
		userID, ok := ginutil.UserID(c)
		if !ok {
			ginutil.Unauthorized(c, "not_authenticated")
			return
		}
		st, err := svc.GetStatus(c.Request.Context(), userID)
		if err != nil {
			ginutil.SendServiceErr(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"pending": st, "method": svc.Method()})
	}
}
