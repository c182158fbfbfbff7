package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lobbysim/eventpipe/internal/upstream"
)

// RegisterProxyRoutes registers the thin pass-through endpoints for
// the generative collaborators. Either service may be nil when a
// deployment runs without it.
//
// POST /dialogue takes scene/trigger/atmosphere and returns one line
// of text. POST /speech takes text+voice and returns audio bytes.
func RegisterProxyRoutes(r gin.IRoutes, dialogue upstream.Dialogue, speech upstream.Speech, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}

	r.POST("/dialogue", func(c *gin.Context) {
		if dialogue == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "dialogue service not configured"})
			return
		}

		var req upstream.DialogueRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON payload"})
			return
		}
		if req.Scene == "" || req.Trigger == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "scene and trigger required"})
			return
		}

		resp, err := dialogue.Generate(c.Request.Context(), req)
		if err != nil {
			logger.Error("dialogue generation failed",
				"event", "proxy_dialogue_failed",
				"module", "handlers",
				"scene", req.Scene,
				"error", err.Error(),
			)
			c.JSON(http.StatusBadGateway, gin.H{"error": "dialogue service failed"})
			return
		}
		c.JSON(http.StatusOK, resp)
	})

	r.POST("/speech", func(c *gin.Context) {
		if speech == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "speech service not configured"})
			return
		}

		var req upstream.SpeechRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON payload"})
			return
		}
		if req.Text == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "text required"})
			return
		}

		audio, contentType, err := speech.Synthesize(c.Request.Context(), req)
		if err != nil {
			logger.Error("speech synthesis failed",
				"event", "proxy_speech_failed",
				"module", "handlers",
				"voice", req.Voice,
				"error", err.Error(),
			)
			c.JSON(http.StatusBadGateway, gin.H{"error": "speech service failed"})
			return
		}
		c.Data(http.StatusOK, contentType, audio)
	})
}
