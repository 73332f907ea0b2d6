package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/vidcourse/vidcourse-backend/internal/services"
)

type ProgressHandler struct {
	svc services.ProgressService
}

func NewProgressHandler(svc services.ProgressService) *ProgressHandler {
	return &ProgressHandler{svc: svc}
}

// GET /api/courses/:id/progress
// Optional ?session_id= narrows to one processing session; otherwise the
// latest row for the course is returned.
func (h *ProgressHandler) Get(c *gin.Context) {
	courseID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_id", errors.New("invalid course id"))
		return
	}

	if raw := c.Query("session_id"); raw != "" {
		sessionID, err := uuid.Parse(raw)
		if err != nil {
			RespondError(c, http.StatusBadRequest, "invalid_id", errors.New("invalid session id"))
			return
		}
		row, err := h.svc.GetSession(c.Request.Context(), courseID, sessionID)
		if err != nil {
			RespondError(c, http.StatusNotFound, "not_found", err)
			return
		}
		RespondOK(c, gin.H{"progress": row})
		return
	}

	row, err := h.svc.GetStatus(c.Request.Context(), courseID)
	if err != nil {
		RespondError(c, http.StatusNotFound, "not_found", err)
		return
	}
	RespondOK(c, gin.H{"progress": row})
}
