package gateway

import (
	"time"

	"chartengine/internal/coordinator"
	"chartengine/internal/model"
)

// ChartIndicators keeps the key names the chart UI reads. Each slice
// starts at the indicator's offset on the label axis.
type ChartIndicators struct {
	EMA20      []model.OutputPoint `json:"ema20" yaml:"ema20"`
	MACD       []model.OutputPoint `json:"macd" yaml:"macd"`
	RSI14      []model.OutputPoint `json:"rsi14" yaml:"rsi14"`
	BB         []model.OutputPoint `json:"bb" yaml:"bb"`
	Stochastic []model.OutputPoint `json:"stochastic" yaml:"stochastic"`
}

// ChartResponse is the body of /api/upload, /api/chart and of every
// WebSocket snapshot message.
type ChartResponse struct {
	Labels     []string           `json:"labels" yaml:"labels"`
	Prices     []float64          `json:"prices" yaml:"prices"`
	Indicators ChartIndicators    `json:"indicators" yaml:"indicators"`
	Offsets    map[model.Kind]int `json:"offsets" yaml:"offsets"`
	Params     model.ParamSet     `json:"params" yaml:"params"`
	Seq        uint64             `json:"seq" yaml:"seq"`
	Dataset    string             `json:"dataset,omitempty" yaml:"dataset,omitempty"`
	ComputedAt time.Time          `json:"computedAt" yaml:"computedAt"`
}

// NewChartResponse flattens a snapshot for the UI.
func NewChartResponse(snap *coordinator.Snapshot) ChartResponse {
	values := func(k model.Kind) []model.OutputPoint {
		r, ok := snap.Result(k)
		if !ok || r.Values == nil {
			return []model.OutputPoint{}
		}
		return r.Values
	}
	offsets := make(map[model.Kind]int, len(snap.Results))
	for k, r := range snap.Results {
		offsets[k] = r.FirstValidIndex
	}
	return ChartResponse{
		Labels: snap.Labels,
		Prices: snap.Closes,
		Indicators: ChartIndicators{
			EMA20:      values(model.KindEMA),
			MACD:       values(model.KindMACD),
			RSI14:      values(model.KindRSI),
			BB:         values(model.KindBB),
			Stochastic: values(model.KindStoch),
		},
		Offsets:    offsets,
		Params:     snap.Params,
		Seq:        snap.Seq,
		Dataset:    snap.Dataset,
		ComputedAt: snap.ComputedAt,
	}
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

// WSEnvelope wraps server-to-client WebSocket messages.
type WSEnvelope struct {
	Type string         `json:"type"`
	Seq  uint64         `json:"seq,omitempty"`
	Data *ChartResponse `json:"data,omitempty"`
	Ping int64          `json:"ping,omitempty"`
	TS   int64          `json:"server_ts,omitempty"`
}

// WSRequest is a client-to-server WebSocket message: {"type":"params",
// "emaPeriod":..,"rsiPeriod":..} or {"type":"ping","ping":..}.
type WSRequest struct {
	Type      string `json:"type"`
	Ping      int64  `json:"ping"`
	EMAPeriod int    `json:"emaPeriod"`
	RSIPeriod int    `json:"rsiPeriod"`
}
