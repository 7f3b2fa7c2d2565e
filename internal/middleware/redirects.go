package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"weblog/internal/db"
	"weblog/internal/models"
)

// MatchRedirect picks the target for path among candidates for the host.
// An exact path match wins over a "*" record, which keeps the path and query.
func MatchRedirect(candidates []models.Redirect, path, rawQuery string) (string, bool) {
	for _, r := range candidates {
		if r.Path != "*" && r.Path == path {
			return r.Target, true
		}
	}
	for _, r := range candidates {
		if r.Path == "*" {
			target := r.Target + path
			if rawQuery != "" {
				target += "?" + rawQuery
			}
			return target, true
		}
	}
	return "", false
}

// Redirects answers with a 301 when a Redirect row matches the request host.
// Paths are stored without the leading slash.
func Redirects() gin.HandlerFunc {
	return func(c *gin.Context) {
		path := strings.TrimLeft(c.Request.URL.Path, "/")
		var candidates []models.Redirect
		err := db.DB.Where("domain = ? AND path IN ?", c.Request.Host, []string{path, "*"}).
			Find(&candidates).Error
		if err != nil {
			log.Error().Err(err).Msg("redirect lookup failed")
			c.Next()
			return
		}
		if target, ok := MatchRedirect(candidates, path, c.Request.URL.RawQuery); ok {
			c.Redirect(http.StatusMovedPermanently, target)
			c.Abort()
			return
		}
		c.Next()
	}
}

// FixAmpersands rewrites a query string that was HTML-escaped twice.
func FixAmpersands(rawQuery string) (string, bool) {
	if !strings.Contains(rawQuery, "&amp;") && !strings.Contains(rawQuery, "&amp%3B") {
		return "", false
	}
	fixed := strings.NewReplacer("&amp;", "&", "&amp%3B", "&").Replace(rawQuery)
	return fixed, true
}

// AmpersandRedirect sends ?a=1&amp;b=2 to ?a=1&b=2.
func AmpersandRedirect() gin.HandlerFunc {
	return func(c *gin.Context) {
		if fixed, ok := FixAmpersands(c.Request.URL.RawQuery); ok {
			target := c.Request.URL.Path
			if fixed != "" {
				target += "?" + fixed
			}
			c.Redirect(http.StatusMovedPermanently, target)
			c.Abort()
			return
		}
		c.Next()
	}
}
