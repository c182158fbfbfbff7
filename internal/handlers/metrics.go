package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lobbysim/eventpipe/internal/store"
)

// RegisterMetricRoutes registers the serving-path endpoint.
//
// GET /metrics?event_type=...&from=...&to=...
// - Returns archived event count for the window [from,to)
// - Requires the Postgres archive; deployments without one get 503
func RegisterMetricRoutes(r gin.IRoutes, st *store.PostgresStore) {
	r.GET("/metrics", func(c *gin.Context) {
		if st == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "event archive not configured"})
			return
		}

		eventType := c.Query("event_type")
		fromStr := c.Query("from")
		toStr := c.Query("to")

		// Required query params per contract.
		if eventType == "" || fromStr == "" || toStr == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "event_type, from, to are required"})
			return
		}

		from, err := time.Parse(time.RFC3339, fromStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "from must be RFC3339"})
			return
		}
		to, err := time.Parse(time.RFC3339, toStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "to must be RFC3339"})
			return
		}

		from = from.UTC()
		to = to.UTC()

		// Validate window to avoid confusing results.
		if !from.Before(to) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "from must be < to"})
			return
		}

		count, err := st.CountEvents(c.Request.Context(), eventType, from, to)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "db query failed"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"event_type": eventType,
			"count":      count,
		})
	})
}
