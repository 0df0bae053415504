package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/medicore-backend/internal/http/handlers"
	httpMW "github.com/yungbote/medicore-backend/internal/http/middleware"
	"github.com/yungbote/medicore-backend/internal/observability"
	"github.com/yungbote/medicore-backend/internal/platform/logger"
	"github.com/yungbote/medicore-backend/internal/platform/ratelimit"
	"github.com/yungbote/medicore-backend/internal/services"
)

type RouterConfig struct {
	Log            *logger.Logger
	ServiceName    string
	CORSOrigins    []string
	Metrics        *observability.Metrics
	RateLimiter    ratelimit.Limiter
	AuthMiddleware *httpMW.AuthMiddleware

	StudyHandler  *httpH.StudyHandler
	HealthHandler *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.ServiceName != "" {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.AttachRequestContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.CORS(cfg.CORSOrigins))
	r.Use(httpMW.Metrics(cfg.Metrics))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
		r.GET("/readyz", cfg.HealthHandler.Ready)
	}
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapF(cfg.Metrics.WriteHTTP))
	}

	v1 := r.Group("/api/v1")
	v1.Use(httpMW.RateLimit(cfg.Log, cfg.RateLimiter))
	studies := v1.Group("/studies")
	if cfg.AuthMiddleware != nil {
		studies.Use(cfg.AuthMiddleware.RequireAuth())
	}
	if h := cfg.StudyHandler; h != nil {
		studies.POST("/upload", permission(cfg.AuthMiddleware, services.PermCreateDiagnostics), h.Upload)
		studies.GET("/:id/status", h.Status)
		studies.GET("/:id", permission(cfg.AuthMiddleware, services.PermReadDiagnostics), h.Get)
		studies.GET("/:id/url", permission(cfg.AuthMiddleware, services.PermReadDiagnostics), h.DownloadURL)
		studies.POST("/:id/reprocess", permission(cfg.AuthMiddleware, services.PermUpdateDiagnostics), h.Reprocess)
	}

	return r
}

func permission(am *httpMW.AuthMiddleware, p services.Permission) gin.HandlerFunc {
	if am == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return am.RequirePermission(p)
}
