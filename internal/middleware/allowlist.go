package middleware

import (
	"net"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/pkrlabs/pkr-issuer/utils"
)

// IPAllowlist restricts a route group to clients inside the configured CIDR
// ranges. An empty configuration means no restriction.
func IPAllowlist(cidrs string, logger *utils.Logger) gin.HandlerFunc {
	var nets []*net.IPNet
	for _, raw := range strings.Split(cidrs, ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		_, ipNet, err := net.ParseCIDR(raw)
		if err != nil {
			logger.Warnf("ignoring invalid allowlist CIDR %q: %v", raw, err)
			continue
		}
		nets = append(nets, ipNet)
	}

	return func(c *gin.Context) {
		if len(nets) == 0 {
			c.Next()
			return
		}

		ip := net.ParseIP(c.ClientIP())
		if ip == nil {
			c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			c.Abort()
			return
		}

		for _, n := range nets {
			if n.Contains(ip) {
				c.Next()
				return
			}
		}

		logger.Warnf("rejected webhook delivery from %s", c.ClientIP())
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		c.Abort()
	}
}
