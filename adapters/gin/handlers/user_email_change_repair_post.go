package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/open-rails/emailchange/adapters/ginutil"
	"github.com/open-rails/emailchange/core"
)

// HandleUserEmailChangeRepairPOST copies the identity provider email into the
// profile. Safe to call repeatedly.
func HandleUserEmailChangeRepairPOST(svc core.Provider, rl ginutil.RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !ginutil.AllowNamed(c, rl, ginutil.RLUserEmailChangeRepair) {
			ginutil.TooMany(c)
			return
		}
		userID, ok := ginutil.UserID(c)
		if !ok {
			ginutil.Unauthorized(c, "not_authenticated")
			return
		}
		if err := svc.RepairProfileEmail(c.Request.Context(), userID); err != nil {
			ginutil.SendServiceErr(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"ok": true})
	}
}
