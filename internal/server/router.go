package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/vidcourse/vidcourse-backend/internal/handlers"
)

type RouterConfig struct {
	CourseHandler   *handlers.CourseHandler
	ProgressHandler *handlers.ProgressHandler
	SSEHandler      *handlers.SSEHandler
	AllowOrigins    []string
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()

	origins := cfg.AllowOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000", "http://localhost:5173"}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}))

	router.GET("/healthcheck", handlers.HealthCheck)

	api := router.Group("/api")
	{
		api.POST("/courses", cfg.CourseHandler.Create)
		api.GET("/courses/:id", cfg.CourseHandler.Get)
		api.POST("/courses/:id/retry", cfg.CourseHandler.Retry)
		api.GET("/courses/:id/progress", cfg.ProgressHandler.Get)
		api.GET("/courses/:id/stream", cfg.SSEHandler.Stream)
	}

	return router
}
