package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"chartengine/internal/coordinator"
)

var _ coordinator.Observer = (*Metrics)(nil)

func TestNewMetrics_Independent(t *testing.T) {
	a := NewMetrics()
	b := NewMetrics()
	a.WSClients.Inc()
	if got := testutil.ToFloat64(b.WSClients); got != 0 {
		t.Errorf("second instance shares state: ws clients = %v", got)
	}
}

func TestObserveRecompute(t *testing.T) {
	m := NewMetrics()
	m.ObserveRecompute(coordinator.OutcomeCommitted, 7, 2*time.Millisecond)
	m.ObserveRecompute(coordinator.OutcomeSuperseded, 8, time.Millisecond)
	m.ObserveRecompute(coordinator.OutcomeFailed, 9, time.Millisecond)

	if got := testutil.ToFloat64(m.RecomputesTotal.WithLabelValues(coordinator.OutcomeCommitted)); got != 1 {
		t.Errorf("committed = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.RecomputesTotal.WithLabelValues(coordinator.OutcomeSuperseded)); got != 1 {
		t.Errorf("superseded = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.SnapshotSeq); got != 7 {
		t.Errorf("snapshot seq = %v, want 7", got)
	}
	if n := testutil.CollectAndCount(m.RecomputeDur); n != 1 {
		t.Errorf("histogram series = %d, want 1", n)
	}
}

func TestObserveUpload(t *testing.T) {
	m := NewMetrics()
	m.ObserveUpload(true, 98, 2)
	m.ObserveUpload(false, 0, 5)

	if got := testutil.ToFloat64(m.UploadRows.WithLabelValues("kept")); got != 98 {
		t.Errorf("kept = %v", got)
	}
	if got := testutil.ToFloat64(m.UploadRows.WithLabelValues("dropped")); got != 7 {
		t.Errorf("dropped = %v", got)
	}
	if got := testutil.ToFloat64(m.UploadsTotal.WithLabelValues("rejected")); got != 1 {
		t.Errorf("rejected = %v", got)
	}
}

func TestServer_MetricsEndpoint(t *testing.T) {
	m := NewMetrics()
	m.ObserveRecompute(coordinator.OutcomeCommitted, 1, time.Millisecond)
	srv := NewServer(":0", m, NewHealthStatus(false, false))

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `chartengine_recomputes_total{outcome="committed"} 1`) {
		t.Errorf("metrics body missing recompute counter:\n%s", rec.Body.String())
	}
}

func TestHealth_Status(t *testing.T) {
	tests := []struct {
		name       string
		setup      func(h *HealthStatus)
		redis      bool
		sqlite     bool
		wantCode   int
		wantStatus string
	}{
		{"nothing enabled", func(h *HealthStatus) {}, false, false, http.StatusOK, "healthy"},
		{"all up", func(h *HealthStatus) { h.SetRedisConnected(true); h.SetSQLiteOK(true) }, true, true, http.StatusOK, "healthy"},
		{"redis down", func(h *HealthStatus) { h.SetSQLiteOK(true) }, true, true, http.StatusServiceUnavailable, "degraded"},
		{"both down", func(h *HealthStatus) {}, true, true, http.StatusServiceUnavailable, "unhealthy"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthStatus(tt.redis, tt.sqlite)
			tt.setup(h)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
			if rec.Code != tt.wantCode {
				t.Errorf("code = %d, want %d", rec.Code, tt.wantCode)
			}
			var body struct {
				Status string `json:"status"`
			}
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatal(err)
			}
			if body.Status != tt.wantStatus {
				t.Errorf("status = %q, want %q", body.Status, tt.wantStatus)
			}
		})
	}
}

func TestHealth_CommitClearsError(t *testing.T) {
	h := NewHealthStatus(false, false)
	h.SetLastError(errors.New("MACD: insufficient data"))
	h.SetCommitted(3, time.Now())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if _, ok := body["last_error"]; ok {
		t.Errorf("last_error should be cleared, got %v", body["last_error"])
	}
	if body["snapshot_seq"] != float64(3) {
		t.Errorf("snapshot_seq = %v", body["snapshot_seq"])
	}
}

func TestHealth_CheckSQLite(t *testing.T) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	h := NewHealthStatus(false, true)
	h.CheckSQLite(context.Background(), db)
	if !h.SQLiteOK || h.LastCheckAt.IsZero() {
		t.Fatalf("open db: ok=%v checked=%v", h.SQLiteOK, h.LastCheckAt)
	}

	db.Close()
	h.CheckSQLite(context.Background(), db)
	if h.SQLiteOK {
		t.Error("closed db reported healthy")
	}
}
