package middleware

import (
	"net"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/nckslvrmn/drop/internal/config"
)

// IPExtractor picks how the caller address is resolved. X-Forwarded-For
// and X-Real-IP use echo's extractors, which only trust private proxies.
// Any other header (such as CF-Connecting-IP) is trusted as sent and falls
// back to the socket address when absent.
func IPExtractor(header string) echo.IPExtractor {
	switch {
	case header == "" || strings.EqualFold(header, config.DirectClientIP):
		return echo.ExtractIPDirect()
	case strings.EqualFold(header, echo.HeaderXForwardedFor):
		return echo.ExtractIPFromXFFHeader()
	case strings.EqualFold(header, echo.HeaderXRealIP):
		return echo.ExtractIPFromRealIPHeader()
	}

	direct := echo.ExtractIPDirect()
	return func(req *http.Request) string {
		if v := strings.TrimSpace(req.Header.Get(header)); v != "" && net.ParseIP(v) != nil {
			return v
		}
		return direct(req)
	}
}
