package principal

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const ctxClaims = "inaltera_claims"

// RequireOwner returns a Gin middleware that enforces a valid Bearer session
// token.
//
// On success it injects the *Claims into the context under the
// "inaltera_claims" key.
func RequireOwner(tokens *TokenIssuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Bearer token required",
			})
			return
		}

		tokenStr := strings.TrimPrefix(authHeader, "Bearer ")
		claims, err := tokens.Verify(tokenStr)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "invalid token: " + err.Error(),
			})
			return
		}
		if _, err := claims.Owner(); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": err.Error(),
			})
			return
		}

		c.Set(ctxClaims, claims)
		c.Next()
	}
}

// ClaimsFromCtx retrieves the claims injected by RequireOwner. Returns nil if
// no session token is present in the context.
func ClaimsFromCtx(c *gin.Context) *Claims {
	v, _ := c.Get(ctxClaims)
	claims, _ := v.(*Claims)
	return claims
}

// OwnerFromCtx returns the authenticated owner id, or uuid.Nil when the
// request carries no valid session.
func OwnerFromCtx(c *gin.Context) uuid.UUID {
	claims := ClaimsFromCtx(c)
	if claims == nil {
		return uuid.Nil
	}
	id, err := claims.Owner()
	if err != nil {
		return uuid.Nil
	}
	return id
}
