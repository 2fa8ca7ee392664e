package app

import (
	"context"
	"time"

	"chartengine/internal/coordinator"
	"chartengine/internal/metrics"
	"chartengine/internal/model"
	sqlitestore "chartengine/internal/store/sqlite"
)

// healthObserver feeds recompute outcomes into Prometheus and the health
// endpoint.
type healthObserver struct {
	prom      *metrics.Metrics
	health    *metrics.HealthStatus
	lastError func() error
}

func (o *healthObserver) ObserveRecompute(outcome string, seq uint64, d time.Duration) {
	o.prom.ObserveRecompute(outcome, seq, d)
	if outcome == coordinator.OutcomeFailed && o.lastError != nil {
		o.health.SetLastError(o.lastError())
	}
}

// timedStore records SQLite write latency.
type timedStore struct {
	*sqlitestore.DatasetStore
	prom *metrics.Metrics
}

func (s *timedStore) Save(ctx context.Context, name string, series *model.PriceSeries, ps model.ParamSet) (sqlitestore.Dataset, error) {
	start := time.Now()
	defer func() { s.prom.SQLiteCommitDur.Observe(time.Since(start).Seconds()) }()
	return s.DatasetStore.Save(ctx, name, series, ps)
}

func (s *timedStore) SaveParams(ctx context.Context, id string, ps model.ParamSet) error {
	start := time.Now()
	defer func() { s.prom.SQLiteCommitDur.Observe(time.Since(start).Seconds()) }()
	return s.DatasetStore.SaveParams(ctx, id, ps)
}
