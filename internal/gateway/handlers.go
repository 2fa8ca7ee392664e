package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"chartengine/internal/coordinator"
	"chartengine/internal/logger"
	"chartengine/internal/metrics"
	"chartengine/internal/model"
	"chartengine/internal/series"
	"chartengine/internal/store/sqlite"
)

var upgrader = websocket.Upgrader{
	CheckOrigin:       func(r *http.Request) bool { return true },
	EnableCompression: true,
}

// awaitTimeout bounds how long a request waits for its recompute.
const awaitTimeout = 30 * time.Second

// Datasets persists uploads. *sqlite.DatasetStore satisfies it.
type Datasets interface {
	Save(ctx context.Context, name string, s *model.PriceSeries, ps model.ParamSet) (sqlite.Dataset, error)
	SaveParams(ctx context.Context, id string, ps model.ParamSet) error
	List(ctx context.Context, limit int) ([]sqlite.Dataset, error)
}

// ServerConfig wires a Server. Store, Hub and Metrics are optional.
type ServerConfig struct {
	Coordinator    *coordinator.Coordinator
	Store          Datasets
	Hub            *Hub
	Metrics        *metrics.Metrics
	MaxUploadBytes int64
	Logger         *slog.Logger
}

// Server serves the chart REST API and the WebSocket endpoint.
type Server struct {
	coord     *coordinator.Coordinator
	store     Datasets
	hub       *Hub
	prom      *metrics.Metrics
	maxUpload int64
	log       *slog.Logger
	start     time.Time
}

// NewServer creates a Server.
func NewServer(cfg ServerConfig) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 20 << 20
	}
	return &Server{
		coord:     cfg.Coordinator,
		store:     cfg.Store,
		hub:       cfg.Hub,
		prom:      cfg.Metrics,
		maxUpload: cfg.MaxUploadBytes,
		log:       cfg.Logger.With(slog.String("component", "gateway")),
		start:     time.Now(),
	}
}

// SetCORS sets CORS headers for REST endpoints.
func SetCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")
}

// Routes returns the HTTP handler with every route registered.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return s.withRequestID(mux)
}

// RegisterRoutes registers all HTTP routes on the provided mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/api/upload", s.handleUpload)
	mux.HandleFunc("/api/chart", s.handleChart)
	mux.HandleFunc("/api/chart/error", s.handleChartError)
	mux.HandleFunc("/api/params", s.handleParams)
	mux.HandleFunc("/api/datasets", s.handleDatasets)
	mux.HandleFunc("/api/status", s.handleStatus)
}

func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := logger.WithRequestID(r.Context(), r.Header.Get("X-Request-ID"))
		w.Header().Set("X-Request-ID", logger.RequestID(ctx))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		writeError(w, http.StatusServiceUnavailable, "websocket disabled")
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("ws upgrade error", append(logger.LogAttrs(r.Context()), "error", err)...)
		return
	}
	s.hub.HandleWSRequest(conn)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	SetCORS(w)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	attrs := logger.LogAttrs(r.Context())

	name, body, err := readUpload(w, r, s.maxUpload)
	switch {
	case errors.Is(err, errNoFile):
		s.uploadFailed()
		writeError(w, http.StatusBadRequest, "No file uploaded.")
		return
	case err != nil:
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			s.uploadFailed()
			writeError(w, http.StatusRequestEntityTooLarge, "File is too large.")
			return
		}
		s.uploadFailed()
		s.log.Warn("read upload", append(attrs, "error", err)...)
		writeError(w, http.StatusBadRequest, "No file uploaded.")
		return
	case len(body) == 0:
		s.uploadFailed()
		writeError(w, http.StatusBadRequest, "File is empty.")
		return
	}

	rows, err := series.LoadFile(name, bytesReader(body))
	if err != nil {
		s.uploadFailed()
		s.log.Warn("decode upload", append(attrs, "file", name, "error", err)...)
		switch {
		case errors.Is(err, series.ErrUnsupportedFormat):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, model.ErrEmptyInput):
			writeError(w, http.StatusBadRequest, "File is empty.")
		default:
			writeError(w, http.StatusInternalServerError, "Failed to process the file.")
		}
		return
	}
	if len(rows) == 0 {
		s.uploadFailed()
		writeError(w, http.StatusBadRequest, "File is empty.")
		return
	}
	ser, rep, err := series.ValidateWithReport(rows)
	if s.prom != nil {
		s.prom.ObserveUpload(err == nil, rep.Kept, rep.Dropped)
	}
	if err != nil {
		s.log.Warn("validate upload", append(attrs, "file", name, "rows", rep.Rows, "error", err)...)
		writeCoordError(w, err)
		return
	}
	s.log.Info("upload accepted", append(attrs, "file", name, "rows", rep.Rows, "kept", rep.Kept, "dropped", rep.Dropped)...)

	id := ""
	if s.store != nil {
		ds, err := s.store.Save(r.Context(), name, ser, s.coord.Params())
		if err != nil {
			s.log.Error("persist upload", append(attrs, "error", err)...)
		} else {
			id = ds.ID
		}
	}
	seq := s.coord.SetSeries(ser, id)
	ctx, cancel := context.WithTimeout(r.Context(), awaitTimeout)
	defer cancel()
	snap, err := s.coord.Await(ctx, seq)
	if err != nil {
		s.log.Warn("recompute after upload", append(attrs, "seq", seq, "error", err)...)
		writeCoordError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, NewChartResponse(snap))
}

func (s *Server) uploadFailed() {
	if s.prom != nil {
		s.prom.ObserveUpload(false, 0, 0)
	}
}

func (s *Server) handleChart(w http.ResponseWriter, r *http.Request) {
	SetCORS(w)
	snap := s.coord.Snapshot()
	if snap == nil {
		writeError(w, http.StatusNotFound, "no chart computed yet")
		return
	}
	writeJSON(w, http.StatusOK, NewChartResponse(snap))
}

func (s *Server) handleChartError(w http.ResponseWriter, r *http.Request) {
	SetCORS(w)
	err := s.coord.LastError()
	if err == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, ErrorResponse{Error: err.Error()})
}

func (s *Server) handleParams(w http.ResponseWriter, r *http.Request) {
	SetCORS(w)
	switch r.Method {
	case http.MethodOptions:
		w.WriteHeader(http.StatusOK)
		return
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.coord.Params())
		return
	case http.MethodPost:
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var u model.ParamUpdate
	if err := json.NewDecoder(io.LimitReader(r.Body, 4096)).Decode(&u); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if u == (model.ParamUpdate{}) {
		writeError(w, http.StatusBadRequest, "no parameter given")
		return
	}
	seq := s.ApplyParams(u.Clamp(), "http")

	ctx, cancel := context.WithTimeout(r.Context(), awaitTimeout)
	defer cancel()
	snap, err := s.coord.Await(ctx, seq)
	if errors.Is(err, coordinator.ErrNoSeries) {
		writeJSON(w, http.StatusAccepted, s.coord.Params())
		return
	}
	if err != nil {
		writeCoordError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, NewChartResponse(snap))
}

// ApplyParams merges a parameter edit into the coordinator and counts it
// under source ("http", "ws" or "redis").
func (s *Server) ApplyParams(u model.ParamUpdate, source string) uint64 {
	if s.prom != nil {
		s.prom.ParamUpdatesTotal.WithLabelValues(source).Inc()
	}
	seq := s.coord.ApplyUpdate(u)
	s.log.Info("params update", "source", source, "ema", u.EMAPeriod, "rsi", u.RSIPeriod, "seq", seq)
	return seq
}

// PersistParams stores the parameters of a committed snapshot against its
// dataset, if it has one.
func (s *Server) PersistParams(ctx context.Context, snap *coordinator.Snapshot) {
	id := snap.Dataset
	if s.store == nil || id == "" {
		return
	}
	if err := s.store.SaveParams(ctx, id, snap.Params); err != nil {
		s.log.Error("persist params", append(logger.LogAttrs(ctx), "dataset", id, "error", err)...)
	}
}

func (s *Server) handleDatasets(w http.ResponseWriter, r *http.Request) {
	SetCORS(w)
	if s.store == nil {
		writeJSON(w, http.StatusOK, []sqlite.Dataset{})
		return
	}
	limit := 50
	if l, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && l > 0 && l <= 1000 {
		limit = l
	}
	list, err := s.store.List(r.Context(), limit)
	if err != nil {
		s.log.Error("list datasets", append(logger.LogAttrs(r.Context()), "error", err)...)
		writeError(w, http.StatusInternalServerError, "failed to list datasets")
		return
	}
	if list == nil {
		list = []sqlite.Dataset{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	SetCORS(w)
	writeJSON(w, http.StatusOK, CollectStatus(s.start, s.coord, s.hub))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// writeCoordError maps engine and coordinator errors onto HTTP statuses.
func writeCoordError(w http.ResponseWriter, err error) {
	var ve *model.ValidationError
	switch {
	case errors.As(err, &ve):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, model.ErrInvalidParam), errors.Is(err, model.ErrInsufficientData):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, coordinator.ErrSuperseded):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "recompute timed out")
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
