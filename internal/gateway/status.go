package gateway

import (
	"runtime"
	"time"

	"chartengine/internal/coordinator"
)

// StatusReport is the /api/status payload: process resource usage plus
// the coordinator's view of the chart.
type StatusReport struct {
	HeapAllocMB float64 `json:"heap_alloc_mb"`
	SysMB       float64 `json:"sys_mb"`
	GCRuns      uint32  `json:"gc_runs"`
	Goroutines  int     `json:"goroutines"`
	UptimeSec   int64   `json:"uptime_sec"`

	State       string `json:"state"`
	SnapshotSeq uint64 `json:"snapshot_seq"`
	Bars        int    `json:"bars"`
	LastError   string `json:"last_error,omitempty"`
	WSClients   int    `json:"ws_clients"`
	TS          string `json:"ts"`
}

// CollectStatus gathers the status report.
func CollectStatus(start time.Time, coord *coordinator.Coordinator, hub *Hub) StatusReport {
	m := StatusReport{
		Goroutines: runtime.NumGoroutine(),
		UptimeSec:  int64(time.Since(start).Seconds()),
		State:      coord.State().String(),
		TS:         time.Now().UTC().Format(time.RFC3339Nano),
	}

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	m.HeapAllocMB = float64(ms.HeapAlloc) / 1024 / 1024
	m.SysMB = float64(ms.Sys) / 1024 / 1024
	m.GCRuns = ms.NumGC

	if snap := coord.Snapshot(); snap != nil {
		m.SnapshotSeq = snap.Seq
		m.Bars = snap.Series.Len()
	}
	if err := coord.LastError(); err != nil {
		m.LastError = err.Error()
	}
	if hub != nil {
		m.WSClients = hub.ClientCount()
	}
	return m
}
