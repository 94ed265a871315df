package server

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"
	"github.com/oklog/ulid/v2"
)

const (
	HeaderXRequestID = "X-Request-ID"
	requestIDKey     = "request_id"
)

// RequestID propagates the caller's X-Request-ID or assigns a new ULID.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderXRequestID)
		if id == "" {
			id = ulid.Make().String()
		}
		c.Set(requestIDKey, id)
		c.Header(HeaderXRequestID, id)
		c.Next()
	}
}

// AccessLog writes one structured line per request.
func AccessLog(skipPaths ...string) gin.HandlerFunc {
	skip := make(map[string]struct{}, len(skipPaths))
	for _, p := range skipPaths {
		skip[p] = struct{}{}
	}
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if _, ok := skip[path]; ok {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()
		latency := time.Since(start)

		fields := []interface{}{
			"method", c.Request.Method,
			"path", path,
			"status", c.Writer.Status(),
			"remote_addr", c.ClientIP(),
			"latency", latency.String(),
			"latency_ms", latency.Milliseconds(),
		}
		if id := c.GetString(requestIDKey); id != "" {
			fields = append(fields, "request_id", id)
		}
		if len(c.Errors) > 0 {
			fields = append(fields, "error", c.Errors.String())
		}
		if c.Writer.Status() >= 500 {
			logger.Errorw("HTTP Request", fields...)
			return
		}
		logger.Infow("HTTP Request", fields...)
	}
}
