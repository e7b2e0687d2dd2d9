package middleware

import (
	"time"

	"github.com/AntonyGarand/bs-map-tools/internal/logging"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

// RequestIDHeader заголовок с идентификатором запроса
const RequestIDHeader = "X-Request-ID"

// RequestLogger снабжает каждый HTTP-запрос trace-ID и пишет краткие логи.
type RequestLogger struct {
	logger *logging.Logger
}

// NewRequestLogger создаёт middleware; nil logger - пакетный logging по умолчанию
func NewRequestLogger(logger *logging.Logger) *RequestLogger {
	return &RequestLogger{logger: logger}
}

func (rl *RequestLogger) logf(level logging.LogLevel, format string, args ...interface{}) {
	if rl.logger == nil {
		if level >= logging.WARN {
			logging.Warn(format, args...)
		} else {
			logging.Debug(format, args...)
		}
		return
	}
	if level >= logging.WARN {
		rl.logger.Warn(format, args...)
	} else {
		rl.logger.Debug(format, args...)
	}
}

func (rl *RequestLogger) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		// trace-id берётся из OpenTelemetry, затем из заголовка клиента, иначе генерируется.
		span := trace.SpanFromContext(c.Request.Context())
		var traceID string
		switch {
		case span.SpanContext().IsValid():
			traceID = span.SpanContext().TraceID().String()
		case c.GetHeader(RequestIDHeader) != "":
			traceID = c.GetHeader(RequestIDHeader)
		default:
			traceID = uuid.NewString()
		}
		c.Set("trace_id", traceID)
		c.Header(RequestIDHeader, traceID)

		start := time.Now()
		method := c.Request.Method
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		rl.logf(logging.DEBUG, "[HTTP] ▶ %s %s ip=%s trace=%s", method, path, c.ClientIP(), traceID)

		c.Next()

		status := c.Writer.Status()
		level := logging.DEBUG
		if status >= 500 {
			level = logging.WARN
		}
		rl.logf(level, "[HTTP] ◀ %s %s %d %s trace=%s", method, path, status, time.Since(start), traceID)
	}
}

// TraceID возвращает trace-id текущего запроса
func TraceID(c *gin.Context) string {
	return c.GetString("trace_id")
}
