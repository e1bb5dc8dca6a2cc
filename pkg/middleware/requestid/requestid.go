package requestid

import (
	"github.com/gin-gonic/gin"
	"github.com/oklog/ulid/v2"
)

// Header carries the correlation id in both directions.
const Header = "X-Request-ID"

const (
	contextKey = "request_id"
	maxLength  = 64
)

// Middleware tags each request with a ULID so log lines and ledger audit rows
// sort by arrival. A caller supplied id is kept when it is printable and short.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(Header)
		if !acceptable(id) {
			id = ulid.Make().String()
		}
		c.Set(contextKey, id)
		c.Writer.Header().Set(Header, id)
		c.Next()
	}
}

// Value returns the id assigned to the request, or "" outside the middleware.
func Value(c *gin.Context) string {
	return c.GetString(contextKey)
}

func acceptable(id string) bool {
	if id == "" || len(id) > maxLength {
		return false
	}
	for _, r := range id {
		if r < 0x21 || r > 0x7e {
			return false
		}
	}
	return true
}
