package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/member-signups/internal/middleware"
	"github.com/noah-isme/member-signups/internal/models"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	value, exists := c.Get(middleware.ContextClaimsKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*models.JWTClaims)
	if !ok {
		return nil
	}
	return claims
}

// clientFromContext names the API client for logs, or "anonymous".
func clientFromContext(c *gin.Context) string {
	if claims := claimsFromContext(c); claims != nil && claims.Client != "" {
		return claims.Client
	}
	return "anonymous"
}
