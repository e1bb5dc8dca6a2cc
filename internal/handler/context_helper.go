package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sortify-api/internal/middleware"
	"github.com/noah-isme/sortify-api/internal/models"
	appErrors "github.com/noah-isme/sortify-api/pkg/errors"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*models.JWTClaims)
	if !ok {
		return nil
	}
	return claims
}

func binFromContext(c *gin.Context) *models.SmartBin {
	value, exists := c.Get(middleware.ContextBinKey)
	if !exists {
		return nil
	}
	bin, _ := value.(*models.SmartBin)
	return bin
}

func idParam(c *gin.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, appErrors.Clone(appErrors.ErrValidation, "id must be a positive integer")
	}
	return id, nil
}

// pageParams reads offset/limit; services clamp out-of-range values.
func pageParams(c *gin.Context) (offset, limit int) {
	offset, _ = strconv.Atoi(c.Query("offset"))
	limit, _ = strconv.Atoi(c.Query("limit"))
	return offset, limit
}
