package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/vidcourse/vidcourse-backend/internal/sse"
)

type SSEHandler struct {
	hub *sse.SSEHub
}

func NewSSEHandler(hub *sse.SSEHub) *SSEHandler {
	return &SSEHandler{hub: hub}
}

// GET /api/courses/:id/stream
// Holds the connection open and streams progress events for one course.
func (h *SSEHandler) Stream(c *gin.Context) {
	courseID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_id", errors.New("invalid course id"))
		return
	}

	client := h.hub.NewSSEClient()
	h.hub.AddChannel(client, sse.CourseChannel(courseID))
	defer h.hub.RemoveClient(client)

	h.hub.ServeHTTP(c.Writer, c.Request, client)
}
