package middlewares

import (
	"net/http"
	"strings"

	"fulfillment-service/utils"

	"github.com/gin-gonic/gin"
)

// AuthMiddleware resolves the customer from a Bearer token. Checkout works
// for guests too, so a missing header passes through without a userID; an
// invalid token does not.
func AuthMiddleware(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.Next()
			return
		}

		tokenString := strings.TrimPrefix(header, "Bearer ")
		userID, err := utils.ParseToken(tokenString, jwtSecret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			return
		}

		c.Set("userID", userID)
		c.Next()
	}
}
