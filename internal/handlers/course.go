package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/vidcourse/vidcourse-backend/internal/services"
)

type CourseHandler struct {
	svc services.ProcessingService
}

func NewCourseHandler(svc services.ProcessingService) *CourseHandler {
	return &CourseHandler{svc: svc}
}

type createCourseRequest struct {
	Title     string `json:"title"`
	SourceRef string `json:"source_ref"`
}

// POST /api/courses
func (h *CourseHandler) Create(c *gin.Context) {
	var req createCourseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}

	course, sessionID, err := h.svc.StartProcessing(c.Request.Context(), req.Title, req.SourceRef)
	if err != nil {
		RespondError(c, http.StatusBadRequest, "create_failed", err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"course":     course,
		"session_id": sessionID,
	})
}

// GET /api/courses/:id
func (h *CourseHandler) Get(c *gin.Context) {
	courseID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_id", errors.New("invalid course id"))
		return
	}

	detail, err := h.svc.GetCourse(c.Request.Context(), courseID)
	if err != nil {
		RespondError(c, http.StatusNotFound, "not_found", err)
		return
	}
	RespondOK(c, detail)
}

// POST /api/courses/:id/retry
func (h *CourseHandler) Retry(c *gin.Context) {
	courseID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_id", errors.New("invalid course id"))
		return
	}

	sessionID, err := h.svc.RetryCourse(c.Request.Context(), courseID)
	if err != nil {
		RespondError(c, http.StatusConflict, "retry_failed", err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"session_id": sessionID})
}
