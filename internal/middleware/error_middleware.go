package middleware

import (
	"net/http"

	"ipgeo-ws/internal/transport/httpdto"
	"ipgeo-ws/pkg/logger"

	"github.com/gin-gonic/gin"
)

// ErrorHandler logs errors attached with c.Error. A JSON body is written only
// when nothing has been written yet; failed upgrades already carry a response.
func ErrorHandler(l *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		err := c.Errors.Last().Err
		if l != nil {
			l.WithContext(c.Request.Context()).Sugar().Errorf("request error: %s", err.Error())
		}
		if c.Writer.Written() {
			return
		}
		status := c.Writer.Status()
		if status < http.StatusBadRequest {
			status = http.StatusInternalServerError
		}
		c.JSON(status, httpdto.NewErrorResponse(err.Error(), "INTERNAL_ERROR"))
	}
}
