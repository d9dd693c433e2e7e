package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/semaphore"

	"github.com/yashrajoria/graphql-gateway/metrics"
)

// WorkerPool admits at most size requests at a time. Further requests wait
// for a slot; a client that goes away while waiting gets 503.
func WorkerPool(size int, m *metrics.GatewayMetrics) gin.HandlerFunc {
	sem := semaphore.NewWeighted(int64(size))

	return func(c *gin.Context) {
		if m != nil {
			m.PoolWaiting.Inc()
		}
		err := sem.Acquire(c.Request.Context(), 1)
		if m != nil {
			m.PoolWaiting.Dec()
		}
		if err != nil {
			if m != nil {
				m.PoolRejected.Inc()
			}
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}

		if m != nil {
			m.PoolInUse.Inc()
		}
		defer func() {
			if m != nil {
				m.PoolInUse.Dec()
			}
			sem.Release(1)
		}()

		c.Next()
	}
}
