package mw

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// MaxBodyBytes wraps the request body in an http.MaxBytesReader so a
// handler's c.ShouldBindJSON fails with a clean error instead of a device
// or dashboard being able to exhaust memory with an oversized frame.
func MaxBodyBytes(n int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, n)
		c.Next()
	}
}
