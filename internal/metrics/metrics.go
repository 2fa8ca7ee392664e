package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"chartengine/internal/coordinator"
)

// Metrics holds all Prometheus metrics for the chart engine.
type Metrics struct {
	Registry *prometheus.Registry

	// Coordinator
	RecomputeDur    prometheus.Histogram
	RecomputesTotal *prometheus.CounterVec // labels: outcome
	SnapshotSeq     prometheus.Gauge

	// Uploads
	UploadsTotal *prometheus.CounterVec // labels: result=ok|rejected
	UploadRows   *prometheus.CounterVec // labels: status=kept|dropped

	// Parameter changes
	ParamUpdatesTotal *prometheus.CounterVec // labels: source=http|redis

	// WebSocket fan-out
	WSClients      prometheus.Gauge
	WSMessagesSent prometheus.Counter
	WSDrops        prometheus.Counter

	// Dataset store
	SQLiteCommitDur prometheus.Histogram
	DatasetsPruned  prometheus.Counter
}

// NewMetrics registers all metrics on a fresh registry, so several
// instances can coexist in one process.
func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),

		RecomputeDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "chartengine_recompute_duration_seconds",
			Help:    "Full catalogue compute and align latency",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}),
		RecomputesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chartengine_recomputes_total",
			Help: "Recompute requests by outcome (committed, failed, superseded, skipped)",
		}, []string{"outcome"}),
		SnapshotSeq: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chartengine_snapshot_seq",
			Help: "Sequence number of the committed snapshot",
		}),

		UploadsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chartengine_uploads_total",
			Help: "File uploads by result",
		}, []string{"result"}),
		UploadRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chartengine_upload_rows_total",
			Help: "Uploaded rows kept or dropped by validation",
		}, []string{"status"}),

		ParamUpdatesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chartengine_param_updates_total",
			Help: "Indicator parameter updates by source",
		}, []string{"source"}),

		WSClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chartengine_ws_clients",
			Help: "Connected WebSocket clients",
		}),
		WSMessagesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chartengine_ws_messages_sent_total",
			Help: "Snapshot messages queued to WebSocket clients",
		}),
		WSDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chartengine_ws_drops_total",
			Help: "Messages dropped for slow WebSocket clients",
		}),

		SQLiteCommitDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "chartengine_sqlite_commit_duration_seconds",
			Help:    "Dataset save latency",
			Buckets: prometheus.DefBuckets,
		}),
		DatasetsPruned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chartengine_datasets_pruned_total",
			Help: "Datasets removed by the retention job",
		}),
	}

	m.Registry.MustRegister(
		m.RecomputeDur,
		m.RecomputesTotal,
		m.SnapshotSeq,
		m.UploadsTotal,
		m.UploadRows,
		m.ParamUpdatesTotal,
		m.WSClients,
		m.WSMessagesSent,
		m.WSDrops,
		m.SQLiteCommitDur,
		m.DatasetsPruned,
	)

	return m
}

// ObserveRecompute records one coordinator request. Only committed and
// failed requests feed the latency histogram.
func (m *Metrics) ObserveRecompute(outcome string, seq uint64, d time.Duration) {
	m.RecomputesTotal.WithLabelValues(outcome).Inc()
	switch outcome {
	case coordinator.OutcomeCommitted:
		m.SnapshotSeq.Set(float64(seq))
		m.RecomputeDur.Observe(d.Seconds())
	case coordinator.OutcomeFailed:
		m.RecomputeDur.Observe(d.Seconds())
	}
}

// ObserveUpload records the validation report of one upload.
func (m *Metrics) ObserveUpload(ok bool, kept, dropped int) {
	result := "ok"
	if !ok {
		result = "rejected"
	}
	m.UploadsTotal.WithLabelValues(result).Inc()
	m.UploadRows.WithLabelValues("kept").Add(float64(kept))
	m.UploadRows.WithLabelValues("dropped").Add(float64(dropped))
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

// HealthStatus represents the system health.
type HealthStatus struct {
	mu sync.RWMutex

	RedisEnabled   bool `json:"redis_enabled"`
	RedisConnected bool `json:"redis_connected"`
	SQLiteEnabled  bool `json:"sqlite_enabled"`
	SQLiteOK       bool `json:"sqlite_ok"`

	SnapshotSeq  uint64    `json:"snapshot_seq"`
	LastCommitAt time.Time `json:"last_commit_at"`
	LastError    string    `json:"last_error"`

	// Liveness probe results
	RedisLatencyMs  float64   `json:"redis_latency_ms"`
	SQLiteLatencyMs float64   `json:"sqlite_latency_ms"`
	LastCheckAt     time.Time `json:"last_check_at"`
	StartedAt       time.Time `json:"started_at"`
}

// NewHealthStatus returns a default health status. Disabled dependencies
// never degrade the reported status.
func NewHealthStatus(redisEnabled, sqliteEnabled bool) *HealthStatus {
	return &HealthStatus{
		RedisEnabled:  redisEnabled,
		SQLiteEnabled: sqliteEnabled,
		StartedAt:     time.Now(),
	}
}

func (h *HealthStatus) SetRedisConnected(v bool) {
	h.mu.Lock()
	h.RedisConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetSQLiteOK(v bool) {
	h.mu.Lock()
	h.SQLiteOK = v
	h.mu.Unlock()
}

// SetCommitted records a committed snapshot and clears the last error.
func (h *HealthStatus) SetCommitted(seq uint64, at time.Time) {
	h.mu.Lock()
	h.SnapshotSeq = seq
	h.LastCommitAt = at
	h.LastError = ""
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastError(err error) {
	h.mu.Lock()
	if err == nil {
		h.LastError = ""
	} else {
		h.LastError = err.Error()
	}
	h.mu.Unlock()
}

// CheckRedis pings Redis and records the round trip.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	ok, ms := ping(func() error { return rdb.Ping(ctx).Err() })
	h.mu.Lock()
	h.RedisConnected, h.RedisLatencyMs = ok, ms
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckSQLite pings the dataset database and records the round trip.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	ok, ms := ping(func() error { return db.PingContext(ctx) })
	h.mu.Lock()
	h.SQLiteOK, h.SQLiteLatencyMs = ok, ms
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// ping runs probe and returns its success and duration in milliseconds.
func ping(probe func() error) (bool, float64) {
	start := time.Now()
	err := probe()
	return err == nil, float64(time.Since(start).Microseconds()) / 1000.0
}

// StartLivenessChecker runs periodic dependency checks. Nil clients are
// skipped.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, sqlDB *sql.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if rdb != nil {
					h.CheckRedis(probeCtx, rdb)
				}
				if sqlDB != nil {
					h.CheckSQLite(probeCtx, sqlDB)
				}
				cancel()
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	redisDown := h.RedisEnabled && !h.RedisConnected
	sqliteDown := h.SQLiteEnabled && !h.SQLiteOK

	overallStatus := "healthy"
	httpCode := http.StatusOK
	if redisDown || sqliteDown {
		overallStatus = "degraded"
		httpCode = http.StatusServiceUnavailable
	}
	if redisDown && sqliteDown {
		overallStatus = "unhealthy"
	}

	lastCommit := ""
	if !h.LastCommitAt.IsZero() {
		lastCommit = h.LastCommitAt.Format(time.RFC3339)
	}

	status := struct {
		Status          string  `json:"status"`
		Uptime          string  `json:"uptime"`
		RedisEnabled    bool    `json:"redis_enabled"`
		RedisConnected  bool    `json:"redis_connected"`
		RedisLatencyMs  float64 `json:"redis_latency_ms"`
		SQLiteEnabled   bool    `json:"sqlite_enabled"`
		SQLiteOK        bool    `json:"sqlite_ok"`
		SQLiteLatencyMs float64 `json:"sqlite_latency_ms"`
		SnapshotSeq     uint64  `json:"snapshot_seq"`
		LastCommitAt    string  `json:"last_commit_at"`
		LastError       string  `json:"last_error,omitempty"`
		LastCheckAt     string  `json:"last_check_at"`
	}{
		Status:          overallStatus,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		RedisEnabled:    h.RedisEnabled,
		RedisConnected:  h.RedisConnected,
		RedisLatencyMs:  h.RedisLatencyMs,
		SQLiteEnabled:   h.SQLiteEnabled,
		SQLiteOK:        h.SQLiteOK,
		SQLiteLatencyMs: h.SQLiteLatencyMs,
		SnapshotSeq:     h.SnapshotSeq,
		LastCommitAt:    lastCommit,
		LastError:       h.LastError,
		LastCheckAt:     h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	health *HealthStatus
	addr   string
	srv    *http.Server
}

// NewServer creates a metrics and health server.
func NewServer(addr string, m *Metrics, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/healthz", health.ServeHTTP)

	return &Server{
		health: health,
		addr:   addr,
		srv: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

// Handler exposes the server's mux, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[metrics] server listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
