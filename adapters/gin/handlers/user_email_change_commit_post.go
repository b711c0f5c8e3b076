package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/open-rails/emailchange/adapters/ginutil"
	"github.com/open-rails/emailchange/core"
)

// HandleUserEmailChangeCommitPOST retries the commit of an already verified
// change, typically after POST /auth/user/reauthenticate.
func HandleUserEmailChangeCommitPOST(svc core.Provider, rl ginutil.RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !ginutil.AllowNamed(c, rl, ginutil.RLUserEmailChangeCommit) {
			ginutil.TooMany(c)
			return
		}
		userID, ok := ginutil.UserID(c)
		if !ok {
			ginutil.Unauthorized(c, "not_authenticated")
			return
		}
		commit(c, svc, userID)
	}
}
