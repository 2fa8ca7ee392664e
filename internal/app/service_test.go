package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"chartengine/config"
	"chartengine/internal/model"
	sqlitestore "chartengine/internal/store/sqlite"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Defaults()
	cfg.HTTPAddr = "127.0.0.1:0"
	cfg.MetricsAddr = ""
	cfg.SQLitePath = filepath.Join(t.TempDir(), "db", "datasets.db")
	return cfg
}

func seedDataset(t *testing.T, path string, ps model.ParamSet) string {
	t.Helper()
	store, err := sqlitestore.Open(sqlitestore.Config{DBPath: path})
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	bars := make([]model.PriceBar, 80)
	for i := range bars {
		c := 100 + 5*math.Sin(float64(i)/4)
		b, err := model.NewPriceBar(fmt.Sprintf("2024-01-02 %02d:%02d", 9+i/60, i%60), nil, c+1, c-1, c)
		if err != nil {
			t.Fatal(err)
		}
		bars[i] = b
	}
	series, err := model.NewPriceSeries(bars)
	if err != nil {
		t.Fatal(err)
	}
	ds, err := store.Save(context.Background(), "seed.csv", series, ps)
	if err != nil {
		t.Fatal(err)
	}
	return ds.ID
}

func startService(t *testing.T, svc *Service) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("Run: %v", err)
			}
		case <-time.After(10 * time.Second):
			t.Error("Run did not return after cancel")
		}
	})
}

func TestService_RestoresLatestDataset(t *testing.T) {
	cfg := testConfig(t)
	// New creates the directory; seed after it exists.
	svc, err := New(cfg, slog.New(slog.NewJSONHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ps := model.DefaultParamSet()
	ps.EMA.Period = 10
	id := seedDataset(t, cfg.SQLitePath, ps)

	startService(t, svc)

	deadline := time.Now().Add(5 * time.Second)
	for svc.Coordinator().Snapshot() == nil {
		if time.Now().After(deadline) {
			t.Fatal("restored dataset was never computed")
		}
		time.Sleep(10 * time.Millisecond)
	}
	snap := svc.Coordinator().Snapshot()
	if snap.Series.Len() != 80 || snap.Params.EMA.Period != 10 {
		t.Fatalf("snapshot: %d bars, params %+v", snap.Series.Len(), snap.Params)
	}

	ts := httptest.NewServer(svc.Handler())
	defer ts.Close()
	resp, err := http.Get(ts.URL + "/api/chart")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var body struct {
		Dataset string         `json:"dataset"`
		Labels  []string       `json:"labels"`
		Params  model.ParamSet `json:"params"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Dataset != id || len(body.Labels) != 80 || body.Params.EMA.Period != 10 {
		t.Errorf("chart = dataset %q, %d labels, ema %d", body.Dataset, len(body.Labels), body.Params.EMA.Period)
	}
	if got := testutil.ToFloat64(svc.prom.RecomputesTotal.WithLabelValues("committed")); got < 1 {
		t.Errorf("committed recomputes = %v", got)
	}
}

func TestService_EmptyStoreStartsIdle(t *testing.T) {
	cfg := testConfig(t)
	cfg.EMAPeriod = 30
	svc, err := New(cfg, slog.New(slog.NewJSONHandler(io.Discard, nil)))
	if err != nil {
		t.Fatal(err)
	}
	startService(t, svc)

	if got := svc.Coordinator().Params(); got.EMA.Period != 30 || got.RSI.Period != 14 {
		t.Errorf("params = %+v", got)
	}
	ts := httptest.NewServer(svc.Handler())
	defer ts.Close()
	resp, err := http.Get(ts.URL + "/api/chart")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestService_BadRetentionSpec(t *testing.T) {
	cfg := testConfig(t)
	cfg.RetentionCron = "every tuesday"
	svc, err := New(cfg, slog.New(slog.NewJSONHandler(io.Discard, nil)))
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := svc.Run(ctx); err == nil {
		t.Fatal("expected an error for an invalid retention spec")
	}
}
