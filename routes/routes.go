package routes

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	apperrors "github.com/yashrajoria/graphql-gateway/errors"
	"github.com/yashrajoria/graphql-gateway/middleware"
)

// Handler serves one matched route.
type Handler func(c *gin.Context, route Route)

// Handlers maps each route kind to the handler serving it. Kinds without a
// handler answer 404.
type Handlers map[Kind]Handler

// Methods lists the methods a route kind accepts.
func Methods(kind Kind) []string {
	if kind == GraphQL {
		return []string{http.MethodGet, http.MethodPost}
	}
	return []string{http.MethodGet}
}

func allowed(kind Kind, method string) bool {
	for _, m := range Methods(kind) {
		if m == method {
			return true
		}
	}
	return false
}

// Dispatch resolves the escaped request path with router and runs the
// matching handler. Tokens are unescaped once, by the extractor.
func Dispatch(router *Router, handlers Handlers) gin.HandlerFunc {
	return func(c *gin.Context) {
		route, ok := router.Match(c.Request.URL.EscapedPath())
		handler := handlers[route.Kind]
		if !ok || handler == nil {
			apperrors.Abort(c, apperrors.NotFound("no route for "+c.Request.URL.Path))
			return
		}

		c.Set(middleware.RouteKey, route.Kind.String())
		if !allowed(route.Kind, c.Request.Method) {
			c.Header("Allow", strings.Join(Methods(route.Kind), ", "))
			c.AbortWithStatus(http.StatusMethodNotAllowed)
			return
		}
		handler(c, route)
	}
}

// RegisterRoutes wires /metrics as a plain route and sends every other path
// through the router.
func RegisterRoutes(r *gin.Engine, router *Router, handlers Handlers, metrics http.Handler) {
	if metrics != nil {
		r.GET("/metrics", gin.WrapH(metrics))
	}
	r.NoRoute(Dispatch(router, handlers))
}
