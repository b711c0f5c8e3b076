package authgin

import (
	"github.com/gin-gonic/gin"

	authhttp "github.com/open-rails/emailchange/adapters/http"
)

// Claims is the authenticated principal attached by AuthRequired.
type Claims = authhttp.Claims

// ClaimsFromGin returns claims from the Gin context if present.
func ClaimsFromGin(c *gin.Context) (Claims, bool) {
	if v, ok := c.Get("emailchange.claims"); ok {
		if cl, ok := v.(Claims); ok {
			return cl, true
		}
	}
	return authhttp.ClaimsFromContext(c.Request.Context())
}

// UserID is a typed accessor for the authenticated user's id.
func UserID(c *gin.Context) (string, bool) {
	if cl, ok := ClaimsFromGin(c); ok && cl.UserID != "" {
		return cl.UserID, true
	}
	return "", false
}
