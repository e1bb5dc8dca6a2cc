package middleware

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sortify-api/internal/models"
	"github.com/noah-isme/sortify-api/pkg/response"
)

const (
	// ContextBinKey stores the authenticated smart bin.
	ContextBinKey = "currentBin"
	// BinKeyHeader carries a bin's API key.
	BinKeyHeader = "X-Bin-Key"
)

// BinAuthenticator checks smart bin credentials.
type BinAuthenticator interface {
	Authenticate(ctx context.Context, binID, apiKey string) (*models.SmartBin, error)
}

// BinKey authenticates the bin named by the :id route param.
func BinKey(auth BinAuthenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		bin, err := auth.Authenticate(c.Request.Context(), c.Param("id"), c.GetHeader(BinKeyHeader))
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}
		c.Set(ContextBinKey, bin)
		c.Next()
	}
}
