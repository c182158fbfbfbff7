package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lobbysim/eventpipe/internal/broker"
	"github.com/lobbysim/eventpipe/internal/events"
	"github.com/lobbysim/eventpipe/internal/models"
	"github.com/lobbysim/eventpipe/internal/store"
)

// RegisterEventRoutes registers the ingestion-path endpoint.
//
// POST /events
// - Accepts one client-publisher batch: {"events": [...]}
// - Re-validates every envelope against the allow-list; the client is
//   never trusted to have filtered correctly
// - A fully-filtered batch is success with published=0, not an error
// - A missing or unreachable broker degrades to accept-and-acknowledge
//
// Both st and pub may be nil in deployments without an archive or
// broker; the endpoint still acknowledges batches so the producer side
// never concludes delivery is broken.
func RegisterEventRoutes(r gin.IRoutes, pub broker.Publisher, st *store.PostgresStore, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}

	r.POST("/events", func(c *gin.Context) {
		var req models.EventBatchRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, models.EventBatchResponse{Error: "invalid JSON payload"})
			return
		}
		if len(req.Events) == 0 {
			c.JSON(http.StatusBadRequest, models.EventBatchResponse{Error: "events array required"})
			return
		}

		// Defense in depth: a client bug must not be able to push
		// non-allow-listed types onto the topic.
		accepted := make([]events.Envelope, 0, len(req.Events))
		dropped := 0
		for _, envelope := range req.Events {
			if !events.Allowed(envelope.Type) {
				dropped++
				logger.Debug("envelope rejected at ingress",
					"event", "ingress_type_rejected",
					"module", "handlers",
					"event_type", envelope.Type,
					"event_id", envelope.EventID,
				)
				continue
			}
			accepted = append(accepted, envelope)
		}

		if len(accepted) == 0 {
			c.JSON(http.StatusOK, models.EventBatchResponse{Success: true, Dropped: dropped})
			return
		}

		published := 0
		if pub != nil {
			n, err := pub.PublishBatch(c.Request.Context(), accepted)
			published = n
			if err != nil {
				// The broker is optional here; retry responsibility
				// lives with the client publisher, not this endpoint.
				logger.Error("broker publish failed",
					"event", "ingress_publish_failed",
					"module", "handlers",
					"published", n,
					"batch_size", len(accepted),
					"error", err.Error(),
				)
			}
		}

		archiveEvents(c, st, accepted, logger)

		c.JSON(http.StatusOK, models.EventBatchResponse{
			Success:   true,
			Published: published,
			Dropped:   dropped,
		})
	})
}

// archiveEvents writes accepted envelopes to the archive, best-effort.
// Archive failure never fails the request.
func archiveEvents(c *gin.Context, st *store.PostgresStore, accepted []events.Envelope, logger *slog.Logger) {
	if st == nil {
		return
	}
	for _, envelope := range accepted {
		if _, err := st.ArchiveEvent(c.Request.Context(), envelope); err != nil {
			logger.Error("event archive failed",
				"event", "ingress_archive_failed",
				"module", "handlers",
				"event_id", envelope.EventID,
				"error", err.Error(),
			)
			return
		}
	}
}
