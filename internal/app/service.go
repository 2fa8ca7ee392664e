package app

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"chartengine/config"
	"chartengine/internal/coordinator"
	"chartengine/internal/gateway"
	"chartengine/internal/metrics"
	"chartengine/internal/model"
	"chartengine/internal/scheduler"
	redisstore "chartengine/internal/store/redis"
	sqlitestore "chartengine/internal/store/sqlite"
)

// Service is the top-level orchestrator for the chart server.
// It wires all dependencies, manages lifecycle, and coordinates goroutines.
type Service struct {
	cfg *config.Config
	log *slog.Logger

	prom   *metrics.Metrics
	health *metrics.HealthStatus
	coord  *coordinator.Coordinator
	store  *sqlitestore.DatasetStore // nil when SQLitePath is empty
	rdb    *goredis.Client           // nil when Redis is disabled or down
	hub    *gateway.Hub
	api    *gateway.Server
	sched  *scheduler.Scheduler

	httpSrv    *http.Server
	metricsSrv *metrics.Server
}

// New creates a Service from cfg. SQLite and Redis are optional: an
// empty path or address disables them, and an unreachable Redis only
// degrades health.
func New(cfg *config.Config, logger *slog.Logger) (*Service, error) {
	if logger == nil {
		logger = slog.Default()
	}
	svc := &Service{
		cfg:  cfg,
		log:  logger,
		prom: metrics.NewMetrics(),
	}

	// ---- Open SQLite ----
	if cfg.SQLitePath != "" {
		if cfg.SQLitePath != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755); err != nil {
				return nil, err
			}
		}
		store, err := sqlitestore.Open(sqlitestore.Config{DBPath: cfg.SQLitePath})
		if err != nil {
			return nil, err
		}
		svc.store = store
	}

	// ---- Connect to Redis ----
	if cfg.RedisAddr != "" {
		rdb, err := redisstore.Connect(redisstore.Config{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		if err != nil {
			log.Printf("[chartserver] WARNING: %v (continuing without parameter broadcast)", err)
		} else {
			svc.rdb = rdb
		}
	}

	svc.health = metrics.NewHealthStatus(cfg.RedisAddr != "", svc.store != nil)
	svc.health.SetRedisConnected(svc.rdb != nil)
	svc.health.SetSQLiteOK(svc.store != nil)

	// ---- Coordinator ----
	params := model.DefaultParamSet()
	params.EMA.Period = cfg.EMAPeriod
	params.RSI.Period = cfg.RSIPeriod
	obs := &healthObserver{prom: svc.prom, health: svc.health}
	svc.coord = coordinator.New(coordinator.Options{
		Params:   params,
		Logger:   logger,
		Observer: obs,
	})
	obs.lastError = svc.coord.LastError

	// ---- Gateway ----
	svc.hub = gateway.NewHub(svc.prom, logger)
	apiCfg := gateway.ServerConfig{
		Coordinator:    svc.coord,
		Hub:            svc.hub,
		Metrics:        svc.prom,
		MaxUploadBytes: cfg.MaxUploadBytes(),
		Logger:         logger,
	}
	if svc.store != nil {
		apiCfg.Store = &timedStore{DatasetStore: svc.store, prom: svc.prom}
	}
	svc.api = gateway.NewServer(apiCfg)
	svc.hub.OnParams = func(u model.ParamUpdate) { svc.api.ApplyParams(u, "ws") }

	svc.httpSrv = &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           svc.api.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	svc.metricsSrv = metrics.NewServer(cfg.MetricsAddr, svc.prom, svc.health)

	return svc, nil
}

// Coordinator exposes the recompute coordinator.
func (svc *Service) Coordinator() *coordinator.Coordinator { return svc.coord }

// Handler returns the REST and WebSocket handler.
func (svc *Service) Handler() http.Handler { return svc.httpSrv.Handler }

// Run starts all subsystems and blocks until ctx is cancelled.
func (svc *Service) Run(ctx context.Context) error {
	svc.log.Info("starting chart server", "http", svc.cfg.HTTPAddr, "metrics", svc.cfg.MetricsAddr)

	go svc.coord.Run(ctx)

	snaps, unsubscribe := svc.coord.Subscribe()
	defer unsubscribe()
	go svc.hub.Run(ctx, snaps)

	commits, stopCommits := svc.coord.Subscribe()
	defer stopCommits()
	go svc.commitLoop(ctx, commits)

	svc.restore(ctx)
	svc.startParamSubscriber(ctx)
	if err := svc.startScheduler(ctx); err != nil {
		svc.shutdown()
		return err
	}

	var sqlDB *sql.DB
	if svc.store != nil {
		sqlDB = svc.store.DB()
	}
	svc.health.StartLivenessChecker(ctx, svc.rdb, sqlDB, 15*time.Second)

	if svc.cfg.MetricsAddr != "" {
		svc.metricsSrv.Start()
	}
	errCh := make(chan error, 1)
	go func() {
		log.Printf("[chartserver] HTTP server on %s", svc.cfg.HTTPAddr)
		if err := svc.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
	}

	svc.shutdown()
	return runErr
}

// shutdown stops servers and closes connections.
func (svc *Service) shutdown() {
	log.Println("[chartserver] shutdown signal received")

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutCancel()

	svc.httpSrv.Shutdown(shutCtx)
	svc.metricsSrv.Stop(shutCtx)
	if svc.sched != nil {
		svc.sched.Stop()
	}
	if svc.store != nil {
		svc.store.Close()
	}
	if svc.rdb != nil {
		svc.rdb.Close()
	}

	log.Println("[chartserver] shutdown complete.")
}

// restore reloads the newest stored dataset with its parameters so the
// chart survives a restart. Indicator values are recomputed.
func (svc *Service) restore(ctx context.Context) {
	if svc.store == nil {
		return
	}
	stored, err := svc.store.LoadLatest(ctx)
	if errors.Is(err, sqlitestore.ErrNotFound) {
		log.Println("[chartserver] no stored dataset to restore")
		return
	}
	if err != nil {
		log.Printf("[chartserver] restore failed: %v", err)
		return
	}
	seq := svc.coord.Update(stored.Series, stored.Params, stored.Dataset.ID)
	log.Printf("[chartserver] restored dataset %s (%q, %d bars) as seq %d",
		stored.Dataset.ID, stored.Dataset.Name, stored.Series.Len(), seq)
}

// commitLoop mirrors every committed snapshot into health and persists
// the parameters it was computed with.
func (svc *Service) commitLoop(ctx context.Context, commits <-chan *coordinator.Snapshot) {
	for {
		select {
		case <-ctx.Done():
			return
		case snap := <-commits:
			svc.health.SetCommitted(snap.Seq, snap.ComputedAt)
			svc.api.PersistParams(ctx, snap)
		}
	}
}

// startParamSubscriber listens on Redis Pub/Sub for parameter changes
// published by other instances or the indcalc CLI.
func (svc *Service) startParamSubscriber(ctx context.Context) {
	if svc.rdb == nil {
		return
	}
	sub := redisstore.NewParamSubscriber(svc.rdb, svc.cfg.ParamsChannel, func(u model.ParamUpdate) {
		svc.api.ApplyParams(u, "redis")
	})
	sub.OnConnect = svc.health.SetRedisConnected
	go sub.Run(ctx)
}

// startScheduler registers dataset retention.
func (svc *Service) startScheduler(ctx context.Context) error {
	if svc.store == nil || svc.cfg.RetentionCron == "" {
		return nil
	}
	svc.sched = scheduler.NewScheduler(ctx, svc.store, svc.cfg.RetentionKeep)
	svc.sched.OnPruned = func(n int) {
		svc.prom.DatasetsPruned.Add(float64(n))
		if n > 0 {
			log.Printf("[chartserver] retention removed %d datasets", n)
		}
	}
	if err := svc.sched.Register(svc.cfg.RetentionCron); err != nil {
		return err
	}
	svc.sched.Start()
	return nil
}
