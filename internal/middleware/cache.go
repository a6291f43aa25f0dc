package middleware

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
)

// ImmutableAsset marks responses as cacheable for maxAge. Archived answer
// photos are written once under a random name and never change.
func ImmutableAsset(maxAge time.Duration) gin.HandlerFunc {
	header := fmt.Sprintf("public, max-age=%d, immutable", int(maxAge.Seconds()))
	return func(c *gin.Context) {
		c.Header("Cache-Control", header)
		c.Next()
	}
}
