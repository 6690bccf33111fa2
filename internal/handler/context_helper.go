package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/care-roster-api/internal/middleware"
	"github.com/noah-isme/care-roster-api/internal/models"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	return middleware.Claims(c)
}

func parseQueryInt(c *gin.Context, key string, def int) int {
	raw := c.Query(key)
	if raw == "" {
		return def
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return val
}
