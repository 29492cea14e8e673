package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gin-gonic/gin"
)

// ErrorLogger logs failed requests and recovers from panics.
func ErrorLogger(logger *slog.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "http"))

	return func(c *gin.Context) {
		start := time.Now()
		defer func() {
			if recovered := recover(); recovered != nil {
				err := fmt.Errorf("%v", recovered)
				logRequestError(logger, c, start, "panic", err.Error(), slog.String("stack", string(debug.Stack())))

				// Headers may already be out when a download stream panics.
				if !c.Writer.Written() {
					c.JSON(http.StatusInternalServerError, gin.H{
						"success": false,
						"error": gin.H{
							"code":    "INTERNAL_SERVER_ERROR",
							"message": "Internal Server Error",
						},
					})
				}
				c.Abort()
				return
			}

			if len(c.Errors) == 0 {
				if c.Writer.Status() >= http.StatusInternalServerError {
					logRequestError(logger, c, start, "http_error", fmt.Sprintf("status=%d", c.Writer.Status()))
				}
				return
			}

			for _, err := range c.Errors {
				attrs := []any{}
				if err.Meta != nil {
					attrs = append(attrs, slog.Any("meta", err.Meta))
				}
				logRequestError(logger, c, start, fmt.Sprintf("%v", err.Type), err.Error(), attrs...)
			}
		}()

		c.Next()
	}
}

func logRequestError(logger *slog.Logger, c *gin.Context, start time.Time, errType string, message string, extra ...any) {
	attrs := []any{
		slog.String("type", errType),
		slog.Int("status", c.Writer.Status()),
		slog.String("method", c.Request.Method),
		slog.String("path", c.Request.URL.Path),
		slog.String("query", c.Request.URL.RawQuery),
		slog.String("client_ip", c.ClientIP()),
		slog.String("user_id", UserID(c)),
		slog.String("request_id", requestID(c)),
		slog.Duration("latency", time.Since(start)),
		slog.String("error", message),
	}
	logger.Error("request_error", append(attrs, extra...)...)
}

func requestID(c *gin.Context) string {
	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = c.GetHeader("X-Request-Id")
	}
	return requestID
}
