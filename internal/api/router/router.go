package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/ngthanhbui/imageflow-be/internal/api/auth"
	"github.com/ngthanhbui/imageflow-be/internal/api/handler"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "imageflow-api-service",
		})
	})

	authHandler := handler.NewAuthHandler(deps)
	jobHandler := handler.NewJobHandler(deps)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/register", authHandler.Register)
			authGroup.POST("/login", authHandler.Login)
		}

		authed := v1.Group("")
		authed.Use(auth.Middleware(deps.Tokens))
		{
			jobs := authed.Group("/jobs")
			{
				// POST /api/v1/jobs - Submit an image edit job
				jobs.POST("", jobHandler.SubmitJob)

				// GET /api/v1/jobs - List the principal's jobs
				jobs.GET("", jobHandler.ListJobs)

				// GET /api/v1/jobs/:job_id - Get job details
				jobs.GET("/:job_id", jobHandler.GetJob)
			}

			// GET /api/v1/events - SSE stream of job status events
			authed.GET("/events", jobHandler.Events)
		}
	}

	return r
}
