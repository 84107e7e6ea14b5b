package log

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// GinMiddleware attaches a request-scoped logger to the request context and
// writes one line per request. Paths in skip are not logged.
func GinMiddleware(l *Logger, skip ...string) gin.HandlerFunc {
	skipped := make(map[string]struct{}, len(skip))
	for _, p := range skip {
		skipped[p] = struct{}{}
	}
	httpLog := l.WithComponent(ComponentHTTP)
	return func(c *gin.Context) {
		start := time.Now()
		reqID := c.GetHeader("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		c.Header("X-Request-ID", reqID)

		reqLog := httpLog.With(FieldRequestID, reqID)
		c.Request = c.Request.WithContext(IntoContext(c.Request.Context(), reqLog))
		c.Next()

		if _, ok := skipped[c.Request.URL.Path]; ok {
			return
		}
		args := []any{
			FieldMethod, c.Request.Method,
			FieldPath, c.Request.URL.Path,
			FieldStatusCode, c.Writer.Status(),
			FieldDuration, time.Since(start).Milliseconds(),
			FieldClientIP, c.ClientIP(),
		}
		if len(c.Errors) > 0 {
			args = append(args, FieldError, c.Errors.String())
		}
		switch {
		case c.Writer.Status() >= 500:
			reqLog.Error("request failed", args...)
		case c.Writer.Status() >= 400:
			reqLog.Warn("request rejected", args...)
		default:
			reqLog.Info("request", args...)
		}
	}
}
