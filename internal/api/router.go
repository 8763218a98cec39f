package api

import (
	"net/http"

	"wind-hindcast/internal/api/handlers"
	"wind-hindcast/internal/api/middleware"
	"wind-hindcast/internal/metrics"

	"github.com/gin-gonic/gin"
)

// NewRouter wires middleware and routes for the hindcast API.
func NewRouter(runs *handlers.RunHandler, turbines *handlers.TurbineHandler, allowedOrigins []string) *gin.Engine {
	router := gin.New()

	router.Use(middleware.Logger())
	router.Use(middleware.ErrorHandler())
	router.Use(metrics.GinMiddleware())
	router.Use(middleware.CORS(allowedOrigins))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := router.Group("/api/v1")
	{
		api.GET("/turbines", turbines.ListTurbines)
		api.GET("/turbines/power", turbines.PowerAt)

		api.POST("/runs", runs.CreateRun)
		api.GET("/runs", runs.ListRuns)
		api.GET("/runs/:id", runs.GetRun)
		api.GET("/runs/:id/table", runs.GetTable)
	}

	router.NoRoute(middleware.NotFound())
	return router
}
