package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"tradecompass-core/internal/pkg/logger"
)

// HealthChecker is implemented by every backing service the health endpoint
// probes.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// SetupRouter wires the workflow API. The transport stays thin: handlers
// bind JSON, call the machine and translate typed errors to status codes.
func SetupRouter(handler *WorkflowHandler, log *logger.Logger, checkers map[string]HealthChecker) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(log))

	api := router.Group("/api/v1")
	{
		workflow := api.Group("/workflow")
		{
			workflow.GET("/status", handler.GetStatus)
			workflow.GET("/data", handler.GetWorkflowData)
			workflow.POST("/import", handler.ImportFile)
			workflow.POST("/steps/:step/data", handler.UpdateStepData)
			workflow.GET("/steps/:step/validation", handler.ValidateStep)
			workflow.POST("/next", handler.NextStep)
			workflow.POST("/previous", handler.PreviousStep)
			workflow.POST("/goto", handler.GoToStep)
			workflow.GET("/completeness", handler.GetCompleteness)
			workflow.GET("/sources", handler.GetSourceSummary)
			workflow.POST("/reset", handler.ResetWorkflow)
		}

		api.POST("/analyses/:kind", handler.RunAnalysis)
		api.GET("/suppliers/:name/profile", handler.LookupSupplier)
		api.GET("/stats", handler.GetStats)
	}

	router.GET("/health", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		status := http.StatusOK
		report := gin.H{}
		for name, checker := range checkers {
			if err := checker.HealthCheck(ctx); err != nil {
				report[name] = err.Error()
				status = http.StatusServiceUnavailable
			} else {
				report[name] = "ok"
			}
		}

		c.JSON(status, report)
	})

	return router
}

func requestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()
		c.Next()

		log.Debug("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(startTime).Milliseconds())
	}
}
