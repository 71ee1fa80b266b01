// internal/middleware/logging_middleware.go
package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"siggen-service/internal/utils"
)

// LoggingMiddleware logs every request once it has been served
func LoggingMiddleware(logger *utils.ServiceLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		requestID := c.GetString(RequestIDKey)
		if len(c.Errors) > 0 {
			utils.LoggerWithRequestID(logger.Logger, requestID).Warn("Request finished with errors",
				zap.Strings("errors", c.Errors.Errors()),
			)
		}

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		logger.LogAPIRequest(requestID, c.Request.Method, path, c.ClientIP(), c.Writer.Status(), time.Since(start))
	}
}
