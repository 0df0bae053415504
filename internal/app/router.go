package app

import (
	"context"

	"gorm.io/gorm"

	httpapi "github.com/yungbote/medicore-backend/internal/http"
	httpH "github.com/yungbote/medicore-backend/internal/http/handlers"
	httpMW "github.com/yungbote/medicore-backend/internal/http/middleware"
	"github.com/yungbote/medicore-backend/internal/observability"
	"github.com/yungbote/medicore-backend/internal/platform/logger"
)

func wireRouterConfig(log *logger.Logger, db *gorm.DB, cfg Config, clients Clients, svc Services, metrics *observability.Metrics) httpapi.RouterConfig {
	serviceName := ""
	if cfg.Tracing.Enabled {
		serviceName = cfg.Tracing.ServiceName
	}
	health := httpH.NewHealthHandler().WithCheck("database", dbReadiness(db))
	if bus := clients.JobBus; bus != nil {
		health.WithCheck("job_bus", bus.Ping)
	}
	return httpapi.RouterConfig{
		Log:            log,
		ServiceName:    serviceName,
		CORSOrigins:    cfg.CORSOrigins,
		RateLimiter:    clients.RateLimiter,
		Metrics:        metrics,
		AuthMiddleware: httpMW.NewAuthMiddleware(log, svc.Auth),
		StudyHandler: httpH.NewStudyHandler(httpH.StudyHandlerDeps{
			Log:           log,
			Uploads:       svc.Uploads,
			Studies:       svc.Studies,
			Jobs:          svc.Jobs,
			Metrics:       metrics,
			MaxUploadSize: cfg.MaxUploadSize,
		}),
		HealthHandler: health,
	}
}

func dbReadiness(db *gorm.DB) httpH.ReadinessCheck {
	return func(ctx context.Context) error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	}
}
