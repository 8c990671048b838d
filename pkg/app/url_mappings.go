package app

import (
	"net/http"

	"github.com/QualityUnit/flowbatch/internal/controllers"
	"github.com/QualityUnit/flowbatch/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func SetupMappings(app *Application) {
	app.Engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	app.Engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := app.Engine.Group("/v1/flowbatch", middleware.AuthMiddleware(app.Validator, app.Config))
	{
		batches := v1.Group("/batches")
		batches.POST("", middleware.RateLimitAPI(app.RateLimiter, app.Config, "create_batch"), controllers.NewCreateBatchController(app.Batches).Handle)
		batches.POST("/import", middleware.RateLimitAPI(app.RateLimiter, app.Config, "import_batch"), controllers.NewImportBatchController(app.Batches).Handle)
		batches.GET("", controllers.NewListBatchesController(app.Batches).Handle)
		batches.GET("/:id", controllers.NewGetBatchController(app.Batches).Handle)
		batches.DELETE("/:id", controllers.NewDeleteBatchController(app.Batches).Handle)

		batches.POST("/:id/start", middleware.RateLimitAPI(app.RateLimiter, app.Config, "start_batch"), controllers.NewStartBatchController(app.Batches).Handle)
		batches.POST("/:id/stop", controllers.NewStopBatchController(app.Batches).Handle)
		batches.POST("/:id/outputs", controllers.NewWriteOutputsController(app.Batches).Handle)

		batches.POST("/:id/tasks/:taskId/retry", middleware.RateLimitAPI(app.RateLimiter, app.Config, "retry_task"), controllers.NewRetryTaskController(app.Batches).Handle)
		batches.POST("/:id/tasks/:taskId/cancel", controllers.NewCancelTaskController(app.Batches).Handle)

		admin := v1.Group("/admin", middleware.RequireAdmin())
		admin.POST("/batches/purge", middleware.RateLimitAdmin(app.RateLimiter, app.Config, "purge_batches"), controllers.NewPurgeBatchesController(app.Batches).Handle)
	}
}
