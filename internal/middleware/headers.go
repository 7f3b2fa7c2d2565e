package middleware

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/cors"
)

// CacheFor sets s-maxage so the CDN caches the response.
func CacheFor(seconds int) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Cache-Control", fmt.Sprintf("s-maxage=%d", seconds))
		c.Next()
	}
}

// NoCache marks a response as private and not to be indexed. Used for
// drafts and staff pages.
func NoCache(c *gin.Context) {
	c.Header("Cache-Control", "private, no-cache, no-store, must-revalidate, max-age=0")
	c.Header("X-Robots-Tag", "noindex")
}

// Staging adds noindex to every response when enabled.
func Staging(enabled bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if enabled {
			c.Header("X-Robots-Tag", "noindex")
		}
		c.Next()
	}
}

// FeedCORS opens feeds to any origin for GET and OPTIONS.
func FeedCORS() gin.HandlerFunc {
	h := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		MaxAge:         1000,
	})
	return func(c *gin.Context) {
		h.HandlerFunc(c.Writer, c.Request)
		if c.Request.Method == http.MethodOptions && c.GetHeader("Access-Control-Request-Method") != "" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
