package handler

import (
	"io"
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/ngthanhbui/imageflow-be/internal/api/auth"
)

// Events handles GET /api/v1/events
// Streams the principal's job status events over server-sent events. The
// connection lives in the registry only while this handler runs; there is
// no replay for events that arrived while the client was away.
func (h *JobHandler) Events(c *gin.Context) {
	principalID := auth.Principal(c)

	conn := h.registry.Register(principalID)
	defer h.registry.Unregister(conn.ID)

	h.logger.Info("Event stream opened",
		slog.String("connection_id", conn.ID),
		slog.String("principal_id", principalID),
	)

	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")

	clientGone := c.Request.Context().Done()

	c.Stream(func(w io.Writer) bool {
		select {
		case event := <-conn.Events:
			c.SSEvent("status", event)
			return true
		case <-clientGone:
			return false
		}
	})

	h.logger.Info("Event stream closed",
		slog.String("connection_id", conn.ID),
	)
}
