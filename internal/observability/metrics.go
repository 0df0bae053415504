package observability

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	types "github.com/yungbote/medicore-backend/internal/domain"
	"github.com/yungbote/medicore-backend/internal/platform/logger"
)

// Metrics is a small Prometheus text-format registry. A nil *Metrics is valid
// and records nothing, so callers never need to branch on METRICS_ENABLED.
type Metrics struct {
	apiRequests *CounterVec
	apiLatency  *HistogramVec
	apiInflight *Gauge
	apiErrors   *Counter

	jobsFinished *CounterVec
	jobDuration  *HistogramVec
	uploads      *CounterVec

	queueDepth  *GaugeVec
	studyStatus *GaugeVec
	dbPool      *GaugeVec
	redisUp     *Gauge
	redisPing   *Gauge

	scrapeInterval time.Duration
}

func NewMetrics(scrapeInterval time.Duration) *Metrics {
	if scrapeInterval <= 0 {
		scrapeInterval = 10 * time.Second
	}
	return &Metrics{
		apiRequests: NewCounterVec("medicore_api_requests_total", "API requests by method/route/status.", []string{"method", "route", "status"}),
		apiLatency: NewHistogramVec("medicore_api_request_duration_seconds", "API request latency in seconds.",
			[]string{"method", "route"},
			[]float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		),
		apiInflight: NewGauge("medicore_api_inflight_requests", "In-flight API requests."),
		apiErrors:   NewCounter("medicore_api_server_errors_total", "API responses with a 5xx status."),

		jobsFinished: NewCounterVec("medicore_jobs_finished_total", "Finished job runs by type and final status.", []string{"job_type", "status"}),
		jobDuration: NewHistogramVec("medicore_job_duration_seconds", "Job run wall time in seconds.",
			[]string{"job_type"},
			[]float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		),
		uploads: NewCounterVec("medicore_uploads_total", "Upload attempts by outcome.", []string{"outcome"}),

		queueDepth:  NewGaugeVec("medicore_job_queue_depth", "job_run rows by status.", []string{"status"}),
		studyStatus: NewGaugeVec("medicore_studies", "Studies by processing status.", []string{"status"}),
		dbPool:      NewGaugeVec("medicore_db_pool", "database/sql pool statistics.", []string{"stat"}),
		redisUp:     NewGauge("medicore_redis_up", "1 when the last Redis ping succeeded."),
		redisPing:   NewGauge("medicore_redis_ping_seconds", "Latency of the last Redis ping."),

		scrapeInterval: scrapeInterval,
	}
}

func (m *Metrics) WriteHTTP(w http.ResponseWriter, _ *http.Request) {
	if m == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	_ = m.WritePrometheus(w)
}

func (m *Metrics) WritePrometheus(w io.Writer) error {
	if m == nil {
		return nil
	}
	writers := []interface{ WritePrometheus(io.Writer) error }{
		m.apiRequests, m.apiLatency, m.apiInflight, m.apiErrors,
		m.jobsFinished, m.jobDuration, m.uploads,
		m.queueDepth, m.studyStatus, m.dbPool, m.redisUp, m.redisPing,
	}
	for _, mw := range writers {
		if err := mw.WritePrometheus(w); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) ObserveAPI(method, route string, status int, dur time.Duration) {
	if m == nil {
		return
	}
	if method == "" {
		method = "UNKNOWN"
	}
	if route == "" {
		route = "unknown"
	}
	m.apiRequests.Inc(method, route, strconv.Itoa(status))
	m.apiLatency.Observe(dur.Seconds(), method, route)
	if status >= 500 {
		m.apiErrors.Inc()
	}
}

func (m *Metrics) APIInflightInc() {
	if m != nil {
		m.apiInflight.Inc()
	}
}

func (m *Metrics) APIInflightDec() {
	if m != nil {
		m.apiInflight.Dec()
	}
}

// JobFinished satisfies worker.Observer.
func (m *Metrics) JobFinished(jobType string, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.jobsFinished.Inc(jobType, status)
	m.jobDuration.Observe(d.Seconds(), jobType)
}

// UploadOutcome counts upload requests by the error code they ended with
// ("accepted" on success).
func (m *Metrics) UploadOutcome(outcome string) {
	if m == nil {
		return
	}
	m.uploads.Inc(outcome)
}

// StartDBCollector samples pool stats, job queue depth and study status counts
// until ctx is done.
func (m *Metrics) StartDBCollector(ctx context.Context, log *logger.Logger, db *gorm.DB) {
	if m == nil || db == nil {
		return
	}
	go m.every(ctx, func() { m.collectDB(ctx, log, db) })
}

func (m *Metrics) collectDB(ctx context.Context, log *logger.Logger, db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		stats := sqlDB.Stats()
		m.dbPool.Set(float64(stats.OpenConnections), "open_connections")
		m.dbPool.Set(float64(stats.InUse), "in_use")
		m.dbPool.Set(float64(stats.Idle), "idle")
		m.dbPool.Set(float64(stats.WaitCount), "wait_count")
		m.dbPool.Set(stats.WaitDuration.Seconds(), "wait_duration_seconds")
	}

	jobStatuses := []string{types.JobStatusQueued, types.JobStatusRunning, types.JobStatusSucceeded, types.JobStatusFailed, types.JobStatusCanceled}
	if err := m.groupCount(ctx, db, &types.JobRun{}, m.queueDepth, jobStatuses, "status"); err != nil {
		log.Warn("metrics: job queue depth query failed", "error", err)
	}
	studyStatuses := []string{
		string(types.StudyStatusPending), string(types.StudyStatusProcessing),
		string(types.StudyStatusCompleted), string(types.StudyStatusFailed),
	}
	if err := m.groupCount(ctx, db, &types.Study{}, m.studyStatus, studyStatuses, "processing_status"); err != nil {
		log.Warn("metrics: study status query failed", "error", err)
	}
}

func (m *Metrics) groupCount(ctx context.Context, db *gorm.DB, model any, g *GaugeVec, known []string, column string) error {
	var rows []struct {
		Status string
		Count  int64
	}
	err := db.WithContext(ctx).
		Model(model).
		Select(column + " as status, count(*) as count").
		Group(column).
		Scan(&rows).Error
	if err != nil {
		return err
	}
	for _, s := range known {
		g.Set(0, s)
	}
	for _, row := range rows {
		status := strings.TrimSpace(row.Status)
		if status == "" {
			status = "unknown"
		}
		g.Set(float64(row.Count), status)
	}
	return nil
}

// StartRedisCollector pings the event bus Redis so its health shows up next to
// the queue gauges.
func (m *Metrics) StartRedisCollector(ctx context.Context, log *logger.Logger, addr string) {
	addr = strings.TrimSpace(addr)
	if m == nil || addr == "" {
		return
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	go func() {
		defer rdb.Close()
		m.every(ctx, func() {
			start := time.Now()
			if err := rdb.Ping(ctx).Err(); err != nil {
				m.redisUp.Set(0)
				log.Warn("metrics: redis ping failed", "error", err)
				return
			}
			m.redisUp.Set(1)
			m.redisPing.Set(time.Since(start).Seconds())
		})
	}()
}

func (m *Metrics) every(ctx context.Context, fn func()) {
	ticker := time.NewTicker(m.scrapeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn()
		}
	}
}
