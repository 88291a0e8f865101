package http_server

import (
	"net"
	"net/http"
	"strings"
)

// getRealAddr is the limiter key. Behind a proxy the last X-Forwarded-For hop
// or X-Real-Ip wins.
func (c *HttpServer) getRealAddr(r *http.Request) string {
	remoteIP := r.RemoteAddr
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		remoteIP = host
	}
	if c.config.Http.UsingProxy {
		if xff := strings.Trim(r.Header.Get("X-Forwarded-For"), ","); len(xff) > 0 {
			addresses := strings.Split(xff, ",")
			lastFwd := strings.TrimSpace(addresses[len(addresses)-1])
			if ip := net.ParseIP(lastFwd); ip != nil {
				remoteIP = ip.String()
			}
		} else if xri := r.Header.Get("X-Real-Ip"); len(xri) > 0 {
			if ip := net.ParseIP(xri); ip != nil {
				remoteIP = ip.String()
			}
		}
	}
	return remoteIP
}
