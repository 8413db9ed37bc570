package server

import (
	"context"

	"github.com/gin-gonic/gin"

	"protocol-backend/internal/analysis"
	"protocol-backend/internal/construe"
	"protocol-backend/internal/documents"
	"protocol-backend/internal/jobs"
	"protocol-backend/internal/shared/config"
	"protocol-backend/internal/shared/metrics"
	"protocol-backend/internal/shared/server/middleware"
	"protocol-backend/internal/shared/server/respond"
	"protocol-backend/internal/shared/storage/db"
	"protocol-backend/internal/shared/telemetry"
	"protocol-backend/internal/storage/b2"
)

const serviceVersion = "0.1.0"

// NewRouter constructs the Gin engine with middleware and routes registered.
func NewRouter(cfg config.Config) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	r.Use(
		middleware.RequestID(),
		middleware.Logging(),
		middleware.Recovery(),
		middleware.CORS(cfg.CORSAllowOrigin),
	)

	// Dependencies
	storage := b2.NewClient(cfg.B2KeyID, cfg.B2ApplicationKey, cfg.B2BucketName)
	analyzer := analysis.NewClient(analysis.Config{
		Endpoint:     cfg.AnalysisEndpoint,
		Key:          cfg.AnalysisKey,
		APIVersion:   cfg.AnalysisAPIVersion,
		AnalyzerName: cfg.AnalysisAnalyzerName,
		PollInterval: cfg.AnalysisPollInterval,
		MaxPolls:     cfg.AnalysisMaxPolls,
		HTTPTimeout:  cfg.AnalysisHTTPTimeout,
	})
	downstream := construe.NewClient(cfg.ConstrueEndpoint, cfg.ConstrueKey)

	var jobRepo jobs.Repo
	if cfg.DatabaseURL != "" {
		dbConn, err := db.Connect(context.Background(), cfg.DatabaseURL, db.DefaultServerOptions())
		if err != nil {
			telemetry.Error("db.connect_failed", map[string]any{"err": err.Error()})
		} else if err := db.RunMigrations(context.Background(), dbConn); err != nil {
			telemetry.Error("db.migrate_failed", map[string]any{"err": err.Error()})
		} else {
			jobRepo = &jobs.PGRepo{DB: dbConn}
		}
	}
	if jobRepo == nil {
		jobRepo = jobs.NewMemoryRepo()
	}

	svc := &documents.Service{
		Storage:    storage,
		Analyzer:   analyzer,
		Downstream: downstream,
		Jobs:       jobRepo,
	}
	svc.Runner = &jobs.Runner{Repo: jobRepo, Process: svc.Process}
	handler := documents.NewHandler(svc, cfg.MaxUploadBytes)

	r.GET("/healthz", func(c *gin.Context) {
		respond.OK(c, gin.H{"status": "ok"})
	})
	r.GET("/", func(c *gin.Context) {
		respond.OK(c, gin.H{
			"message": "Protocol Document Analysis API",
			"version": serviceVersion,
			"docs":    "/docs",
		})
	})
	r.GET("/metrics", metrics.Handler())

	api := r.Group("/api/v1")
	handler.RegisterRoutes(api)

	return r
}

// Addr normalizes the listen address.
func Addr(port string) string {
	if port == "" {
		return ":8080"
	}
	if port[0] == ':' {
		return port
	}
	return ":" + port
}
