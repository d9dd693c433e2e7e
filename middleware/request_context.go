package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/yashrajoria/graphql-gateway/logger"
	"github.com/yashrajoria/graphql-gateway/requestctx"
)

// RequestContext builds the per-request context from the inbound headers and
// stores it on the request. The correlation token is echoed back.
func RequestContext(shared *requestctx.Shared) gin.HandlerFunc {
	return func(c *gin.Context) {
		rc := requestctx.New(c.Request.Header, shared)
		c.Set(logger.CorrelationKey, rc.CorrelationToken())
		c.Header(requestctx.HeaderCorrelationToken, rc.CorrelationToken())
		ctx := logger.WithCorrelation(c.Request.Context(), rc.CorrelationToken())
		c.Request = c.Request.WithContext(requestctx.WithContext(ctx, rc))
		c.Next()
	}
}
