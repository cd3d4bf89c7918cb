package router

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mamadbah2/piecework/internal/server/handlers"
)

// Handlers groups the HTTP adapters mounted on the engine.
type Handlers struct {
	Ledger  *handlers.LedgerHandler
	Work    *handlers.WorkHandler
	Catalog *handlers.CatalogHandler
}

// New wires the Gin engine with required routes and middlewares.
func New(h Handlers, logger *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(zapLoggerMiddleware(logger))

	jobs := r.Group("/jobs")
	{
		jobs.POST("/ledger", h.Ledger.CreateOrExtend)
		jobs.GET("/ledger/numbers", h.Ledger.ListJobNumbers)
		jobs.GET("/search-numbers/:part", h.Catalog.SearchNumbers)
		jobs.GET("/details/:jobNumber", h.Catalog.Details)
		jobs.GET("/:jobId/pending", h.Ledger.Pending)
		jobs.GET("/:jobId/summary", h.Ledger.Summary)
		jobs.GET("/:jobId/drift", h.Ledger.Drift)
		jobs.POST("/:jobId/reconcile", h.Ledger.Reconcile)
	}

	r.POST("/work/completions", h.Work.RecordCompletions)
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	if logger != nil {
		logger.Info("router initialized")
	}

	return r
}

func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.Info("request completed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("client_ip", c.ClientIP()))
	}
}
