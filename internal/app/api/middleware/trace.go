package middleware

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/fablecast/entitlement/pkg/logctx"
	"github.com/fablecast/entitlement/pkg/tool"
)

const (
	requestIDHeader = "X-Request-ID"
	maxTraceIDLen   = 128
)

// validTraceID accepts client ids made of URL-safe characters only, so they
// can be logged and echoed back verbatim.
func validTraceID(id string) bool {
	if id == "" || len(id) > maxTraceIDLen {
		return false
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-', r == '_', r == '.', r == ':':
		default:
			return false
		}
	}
	return true
}

// TraceMiddleware stores a trace id in gin.Context and the request context.
// A well-formed X-Request-ID is reused; otherwise a uuid v7 is generated.
func TraceMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := c.GetHeader(requestIDHeader)
		if !validTraceID(traceID) {
			traceID = tool.GenerateUUIDV7()
		}

		c.Set(logctx.KeyTraceID, traceID)
		ctx := context.WithValue(c.Request.Context(), logctx.KeyTraceID, traceID)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
