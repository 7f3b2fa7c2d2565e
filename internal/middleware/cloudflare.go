package middleware

import (
	"net"
	"strings"

	"github.com/gin-gonic/gin"
)

const CFConnectingIP = "CF-Connecting-IP"

// IPMatcher reports whether an address belongs to a trusted proxy.
type IPMatcher interface {
	Contains(ip string) bool
}

// CloudflareIP replaces the remote address with CF-Connecting-IP when the
// connection comes from a Cloudflare edge.
func CloudflareIP(ranges IPMatcher) gin.HandlerFunc {
	return func(c *gin.Context) {
		clientIP := strings.TrimSpace(c.GetHeader(CFConnectingIP))
		if clientIP != "" && net.ParseIP(clientIP) != nil {
			host, _, err := net.SplitHostPort(c.Request.RemoteAddr)
			if err != nil {
				host = c.Request.RemoteAddr
			}
			if ranges.Contains(host) {
				c.Request.RemoteAddr = net.JoinHostPort(clientIP, "0")
			}
		}
		c.Next()
	}
}
