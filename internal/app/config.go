package app

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/docker/go-units"

	"github.com/yungbote/medicore-backend/internal/data/db"
	"github.com/yungbote/medicore-backend/internal/jobs/worker"
	"github.com/yungbote/medicore-backend/internal/observability"
	"github.com/yungbote/medicore-backend/internal/platform/envutil"
	"github.com/yungbote/medicore-backend/internal/platform/objectstore"
	"github.com/yungbote/medicore-backend/internal/platform/ratelimit"
	"github.com/yungbote/medicore-backend/internal/realtime/bus"
	"github.com/yungbote/medicore-backend/internal/temporalx"
)

const (
	RunModeAPI    = "api"
	RunModeWorker = "worker"
	RunModeAll    = "all"

	QueueBackendDB       = "db"
	QueueBackendTemporal = "temporal"
)

type Config struct {
	RunMode         string
	Port            string
	LogMode         string
	ShutdownTimeout time.Duration

	DB db.Config

	TempDir             string
	PolicyFile          string
	SupportedModalities []string
	MaxUploadSize       int64

	Storage    objectstore.Config
	PresignTTL time.Duration

	QueueBackend string
	RedisAddr    string
	RedisChannel string
	Temporal     temporalx.Config
	Worker       worker.Config

	QualityAssessor string
	PreviewEnabled  bool
	PreviewMaxDim   int
	PreviewFont     string
	PreviewFontSize float64

	JWTSecretKey string
	CORSOrigins  []string

	RateLimitEnabled bool
	RateLimit        ratelimit.Config

	MetricsEnabled        bool
	MetricsScrapeInterval time.Duration
	Tracing               observability.TracingConfig
}

func (c Config) RunsAPI() bool    { return c.RunMode == RunModeAPI || c.RunMode == RunModeAll }
func (c Config) RunsWorker() bool { return c.RunMode == RunModeWorker || c.RunMode == RunModeAll }

func LoadConfig() (Config, error) {
	cfg := Config{
		RunMode:         strings.ToLower(envutil.String("RUN_MODE", RunModeAll)),
		Port:            envutil.String("PORT", "8080"),
		LogMode:         envutil.String("LOG_MODE", "development"),
		ShutdownTimeout: envutil.Duration("SHUTDOWN_TIMEOUT", 15*time.Second),

		DB: db.Config{
			Driver:           strings.ToLower(envutil.String("DATABASE_DRIVER", db.DriverPostgres)),
			PostgresHost:     envutil.String("POSTGRES_HOST", "localhost"),
			PostgresPort:     envutil.String("POSTGRES_PORT", "5432"),
			PostgresUser:     envutil.String("POSTGRES_USER", "postgres"),
			PostgresPassword: envutil.String("POSTGRES_PASSWORD", ""),
			PostgresName:     envutil.String("POSTGRES_NAME", "medicore"),
			SQLitePath:       envutil.String("SQLITE_PATH", "medicore.db"),
		},

		TempDir:             envutil.String("DICOM_TEMP_DIR", filepath.Join(os.TempDir(), "medicore", "uploads")),
		PolicyFile:          envutil.String("DICOM_POLICY_FILE", ""),
		SupportedModalities: envutil.List("DICOM_SUPPORTED_MODALITIES", nil),

		PresignTTL: envutil.Duration("PRESIGN_TTL", time.Hour),

		QueueBackend: strings.ToLower(envutil.String("QUEUE_BACKEND", QueueBackendDB)),
		RedisAddr:    envutil.String("REDIS_ADDR", ""),
		RedisChannel: envutil.String("REDIS_CHANNEL", bus.DefaultChannel),
		Temporal:     temporalx.LoadConfig(),
		Worker: worker.Config{
			Concurrency:       envutil.Int("WORKER_CONCURRENCY", 4),
			PollInterval:      envutil.Duration("WORKER_POLL_INTERVAL", time.Second),
			MaxAttempts:       envutil.Int("WORKER_MAX_ATTEMPTS", 3),
			RetryDelay:        envutil.Duration("WORKER_RETRY_DELAY", 30*time.Second),
			StaleAfter:        envutil.Duration("WORKER_STALE_AFTER", 15*time.Minute),
			JobTimeout:        envutil.Duration("WORKER_JOB_TIMEOUT", 5*time.Minute),
			HeartbeatInterval: envutil.Duration("WORKER_HEARTBEAT_INTERVAL", 30*time.Second),
		},

		QualityAssessor: envutil.String("QUALITY_ASSESSOR", "fixed"),
		PreviewEnabled:  envutil.Bool("PREVIEW_ENABLED", true),
		PreviewMaxDim:   envutil.Int("PREVIEW_MAX_DIMENSION", 512),
		PreviewFont:     envutil.String("PREVIEW_FONT", ""),
		PreviewFontSize: float64(envutil.Int("PREVIEW_FONT_SIZE", 12)),

		JWTSecretKey: envutil.String("JWT_SECRET_KEY", "defaultsecret"),
		CORSOrigins:  envutil.List("CORS_ORIGINS", nil),

		RateLimitEnabled: envutil.Bool("RATE_LIMIT_ENABLED", true),
		RateLimit: ratelimit.Config{
			Limit:  envutil.Int("RATE_LIMIT_REQUESTS", 100),
			Window: envutil.Duration("RATE_LIMIT_WINDOW", time.Minute),
		},

		MetricsEnabled:        envutil.Bool("METRICS_ENABLED", false),
		MetricsScrapeInterval: envutil.Duration("METRICS_SCRAPE_INTERVAL", 10*time.Second),
		Tracing:               observability.LoadTracingConfig(),
	}

	switch cfg.RunMode {
	case RunModeAPI, RunModeWorker, RunModeAll:
	default:
		return cfg, fmt.Errorf("invalid RUN_MODE %q (want api, worker or all)", cfg.RunMode)
	}
	switch cfg.QueueBackend {
	case QueueBackendDB:
	case QueueBackendTemporal:
		if !cfg.Temporal.Enabled() {
			return cfg, fmt.Errorf("QUEUE_BACKEND=temporal requires TEMPORAL_ADDRESS")
		}
	default:
		return cfg, fmt.Errorf("invalid QUEUE_BACKEND %q (want db or temporal)", cfg.QueueBackend)
	}

	rawSize := envutil.String("MAX_UPLOAD_SIZE", "512MB")
	size, err := units.RAMInBytes(rawSize)
	if err != nil || size <= 0 {
		return cfg, fmt.Errorf("invalid MAX_UPLOAD_SIZE %q: %v", rawSize, err)
	}
	cfg.MaxUploadSize = size

	storage, err := objectstore.ResolveConfigFromEnv()
	if err != nil {
		return cfg, err
	}
	cfg.Storage = storage
	return cfg, nil
}
