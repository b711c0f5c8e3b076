package authgin

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/open-rails/emailchange/adapters/ginutil"
	authhttp "github.com/open-rails/emailchange/adapters/http"
)

// AuthRequired validates the Bearer session token and stores the principal in
// both the Gin context and the request context.
func AuthRequired(v authhttp.SessionVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		cl, err := v.Verify(ginutil.BearerToken(c.GetHeader("Authorization")))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": authhttp.ErrorCode(err)})
			return
		}
		c.Set("auth.user_id", cl.UserID)
		if cl.Email != "" {
			c.Set("auth.email", cl.Email)
		}
		if cl.SessionID != "" {
			c.Set("auth.sid", cl.SessionID)
		}
		c.Set("emailchange.claims", cl)
		c.Request = c.Request.WithContext(authhttp.WithClaims(c.Request.Context(), cl))
		c.Next()
	}
}

// AuthOptional passes through when no token is present; validates if present.
func AuthOptional(v authhttp.SessionVerifier) gin.HandlerFunc {
	required := AuthRequired(v)
	return func(c *gin.Context) {
		if ginutil.BearerToken(c.GetHeader("Authorization")) == "" {
			c.Next()
			return
		}
		required(c)
	}
}
