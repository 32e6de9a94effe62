// Package httpmw holds the gin middleware ambient to every route:
// request logging, panic recovery, error-to-JSON mapping, CORS, rate
// limiting, and the bearer-token auth gate.
package httpmw

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "github.com/loominal/weft/internal/common/errors"
	"github.com/loominal/weft/internal/common/logger"
)

// RequestLogger times each request and logs method/path/status/duration.
func RequestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		fields := []any{
			"method", c.Request.Method,
			"path", path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		}
		if c.Writer.Status() >= 500 {
			log.Sugar().Errorw("request failed", fields...)
		} else {
			log.Sugar().Debugw("request completed", fields...)
		}
	}
}

// Recovery turns a panic into a 500 JSON response instead of crashing
// the process.
func Recovery(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Sugar().Errorw("panic recovered", "panic", r, "path", c.Request.URL.Path)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error":      "internal server error",
					"statusCode": http.StatusInternalServerError,
				})
			}
		}()
		c.Next()
	}
}

// ErrorHandler maps any *errors.AppError left on the gin error stack
// into the standard JSON error body; anything else falls back to 500.
func ErrorHandler(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}
		err := c.Errors.Last().Err

		status := apperrors.GetHTTPStatus(err)
		code := apperrors.GetCode(err)
		if status >= 500 {
			log.WithError(err).Error("unhandled error")
		}
		c.JSON(status, gin.H{"error": err.Error(), "code": code, "statusCode": status})
	}
}

// CORS allows cross-origin WebSocket/HTTP clients, matching the
// teacher's permissive development-mode CORS posture.
func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, If-None-Match")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// RateLimit is a simple per-process token-bucket limiter.
func RateLimit(requestsPerSecond float64) gin.HandlerFunc {
	var mu sync.Mutex
	tokens := requestsPerSecond
	last := time.Now()

	return func(c *gin.Context) {
		mu.Lock()
		now := time.Now()
		tokens += now.Sub(last).Seconds() * requestsPerSecond
		if tokens > requestsPerSecond {
			tokens = requestsPerSecond
		}
		last = now

		if tokens < 1 {
			mu.Unlock()
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded", "statusCode": http.StatusTooManyRequests})
			return
		}
		tokens--
		mu.Unlock()
		c.Next()
	}
}

// Auth implements the binary admit/deny bearer-token gate. An empty
// expectedToken disables the check (development mode).
func Auth(expectedToken string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if expectedToken == "" {
			c.Next()
			return
		}
		got := c.GetHeader("Authorization")
		if got != "Bearer "+expectedToken {
			err := apperrors.Unauthorized("missing or invalid bearer token")
			c.AbortWithStatusJSON(err.HTTPStatus, gin.H{"error": err.Message, "statusCode": err.HTTPStatus})
			return
		}
		c.Next()
	}
}
