package middleware

import (
	"time"

	"ipgeo-ws/pkg/logger"

	"github.com/gin-gonic/gin"
)

// LoggingMiddleware logs each request once it completes. For an upgraded
// request that is when its session ends.
func LoggingMiddleware(l *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		log := l
		if log == nil {
			log = logger.GetGlobalLogger()
		}
		if log != nil {
			log.Infof("%s %s %d %s", method, path, status, latency.String())
		}
	}
}
