package http_server

import (
	"time"

	"github.com/ipoluianov/gomisc/logger"
)

func (c *HttpServer) purgeRoutine(stopCh chan struct{}) {
	ticker := time.NewTicker(c.config.PurgeInterval())
	defer ticker.Stop()
	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
		}

		if removed := c.guard.Purge(time.Now()); removed > 0 {
			logger.Println("[i]", "HttpServer::purgeRoutine", "expired", removed, "replay entries")
		}
	}
}
