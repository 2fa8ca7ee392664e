// Package coordinator serializes indicator recomputation.
//
// Every change to the series or the parameters becomes a request with a
// sequence number. A single worker goroutine processes requests in
// arrival order; only the latest request may commit a snapshot, so
// readers never see results mixed from two different inputs.
package coordinator

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"chartengine/internal/align"
	"chartengine/internal/indicator"
	"chartengine/internal/model"
)

// State is the worker state.
type State int32

const (
	Idle State = iota
	Computing
)

func (s State) String() string {
	if s == Computing {
		return "computing"
	}
	return "idle"
}

// Outcomes reported to an Observer.
const (
	OutcomeCommitted  = "committed"
	OutcomeFailed     = "failed"
	OutcomeSuperseded = "superseded"
	OutcomeSkipped    = "skipped"
)

// ComputeFunc produces the aligned catalogue for one input pair.
type ComputeFunc func(series *model.PriceSeries, ps model.ParamSet) (map[model.Kind]model.AlignedResult, error)

// Observer is notified once per processed request.
type Observer interface {
	ObserveRecompute(outcome string, seq uint64, d time.Duration)
}

var (
	// ErrAlreadyRunning is returned when Run is called twice.
	ErrAlreadyRunning = errors.New("coordinator: already running")
	// ErrSuperseded is returned by Await when a newer request replaced
	// the awaited one.
	ErrSuperseded = errors.New("coordinator: superseded by a newer request")
	// ErrNoSeries is returned by Await when there is nothing to compute.
	ErrNoSeries = errors.New("coordinator: no series loaded")
)

// Options configures a Coordinator. Zero values select defaults.
type Options struct {
	Params     model.ParamSet // initial parameters; DefaultParamSet when zero
	Compute    ComputeFunc    // defaults to ComputeAligned
	Logger     *slog.Logger
	Observer   Observer
	SubBufSize int // per-subscriber channel capacity, default 16
}

// Snapshot is one committed, internally consistent set of results.
// Snapshots are shared by pointer and must be treated as read-only.
type Snapshot struct {
	Seq        uint64
	Dataset    string // stored dataset ID behind Series, "" when unsaved
	Series     *model.PriceSeries
	Params     model.ParamSet
	Results    map[model.Kind]model.AlignedResult
	Labels     []string
	Closes     []float64
	ComputedAt time.Time
}

// Result returns the aligned result for k.
func (s *Snapshot) Result(k model.Kind) (model.AlignedResult, bool) {
	if s == nil {
		return model.AlignedResult{}, false
	}
	r, ok := s.Results[k]
	return r, ok
}

type request struct {
	seq     uint64
	dataset string
	series  *model.PriceSeries
	params  model.ParamSet
	queued  time.Time
}

// maxOutcomes bounds how many finished requests Await can still report on.
const maxOutcomes = 256

type outcome struct {
	snap *Snapshot
	err  error
}

// Coordinator owns the current inputs and the committed snapshot.
type Coordinator struct {
	compute ComputeFunc
	log     *slog.Logger
	obs     Observer
	subBuf  int

	mu      sync.Mutex
	seq     uint64 // latest issued sequence
	dataset string
	series  *model.PriceSeries
	params  model.ParamSet
	queue   []request
	idle    chan struct{} // closed while nothing is queued or computing
	lastErr error
	subs    map[int]chan *Snapshot
	nextSub int

	processed   uint64        // highest finished sequence
	processedCh chan struct{} // closed and replaced whenever processed advances
	outcomes    map[uint64]outcome

	wake    chan struct{}
	snap    atomic.Pointer[Snapshot]
	state   atomic.Int32
	running atomic.Bool
}

// New creates a Coordinator. Call Run to start the worker.
func New(opts Options) *Coordinator {
	if opts.Compute == nil {
		opts.Compute = ComputeAligned
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.SubBufSize <= 0 {
		opts.SubBufSize = 16
	}
	if opts.Params == (model.ParamSet{}) {
		opts.Params = model.DefaultParamSet()
	}
	idle := make(chan struct{})
	close(idle)
	return &Coordinator{
		compute: opts.Compute,
		log:     opts.Logger.With(slog.String("component", "coordinator")),
		obs:     opts.Observer,
		subBuf:  opts.SubBufSize,
		params:  opts.Params,
		idle:    idle,
		subs:    make(map[int]chan *Snapshot),
		wake:    make(chan struct{}, 1),

		processedCh: make(chan struct{}),
		outcomes:    make(map[uint64]outcome),
	}
}

// ComputeAligned runs the full catalogue and aligns it onto the series.
func ComputeAligned(series *model.PriceSeries, ps model.ParamSet) (map[model.Kind]model.AlignedResult, error) {
	results, err := indicator.Compute(series, ps)
	if err != nil {
		return nil, err
	}
	return align.AlignAll(series, results)
}

// SetSeries replaces the series wholesale and requests a recompute with
// the current parameters. dataset is the stored ID of s and travels with
// it into the snapshot. It returns the request's sequence number.
func (c *Coordinator) SetSeries(s *model.PriceSeries, dataset string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.series = s
	c.dataset = dataset
	return c.enqueueLocked()
}

// SetParams replaces the parameter set and requests a recompute. The
// parameters are validated by the engine, not here.
func (c *Coordinator) SetParams(ps model.ParamSet) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.params = ps
	return c.enqueueLocked()
}

// ApplyUpdate merges a UI parameter change into the current set.
func (c *Coordinator) ApplyUpdate(u model.ParamUpdate) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.params = u.Apply(c.params)
	return c.enqueueLocked()
}

// Update replaces both inputs in one request.
func (c *Coordinator) Update(s *model.PriceSeries, ps model.ParamSet, dataset string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.series = s
	c.dataset = dataset
	c.params = ps
	return c.enqueueLocked()
}

// Recompute re-runs the current inputs.
func (c *Coordinator) Recompute() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enqueueLocked()
}

// Params returns the current (possibly not yet computed) parameters.
func (c *Coordinator) Params() model.ParamSet {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.params
}

func (c *Coordinator) enqueueLocked() uint64 {
	c.seq++
	c.queue = append(c.queue, request{
		seq:     c.seq,
		dataset: c.dataset,
		series:  c.series,
		params:  c.params,
		queued:  time.Now(),
	})
	select {
	case <-c.idle:
		c.idle = make(chan struct{})
	default:
	}
	select {
	case c.wake <- struct{}{}:
	default:
	}
	return c.seq
}

// Run processes requests until ctx is cancelled.
func (c *Coordinator) Run(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer c.running.Store(false)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.wake:
		}
		for {
			req, ok := c.next()
			if !ok {
				break
			}
			snap, err := c.process(req)
			c.finish(req.seq, snap, err)
			if ctx.Err() != nil {
				return ctx.Err()
			}
		}
	}
}

// next pops the oldest request, or marks the coordinator idle.
func (c *Coordinator) next() (request, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.queue) == 0 {
		select {
		case <-c.idle:
		default:
			close(c.idle)
		}
		return request{}, false
	}
	req := c.queue[0]
	c.queue[0] = request{}
	c.queue = c.queue[1:]
	return req, true
}

func (c *Coordinator) latest(seq uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return seq == c.seq
}

// process runs one request and returns the snapshot it committed, or why
// it did not commit.
func (c *Coordinator) process(req request) (*Snapshot, error) {
	if req.series == nil {
		// Parameters changed before any series arrived.
		c.observe(OutcomeSkipped, req.seq, 0)
		return nil, ErrNoSeries
	}
	if !c.latest(req.seq) {
		c.observe(OutcomeSkipped, req.seq, 0)
		return nil, ErrSuperseded
	}

	c.state.Store(int32(Computing))
	start := time.Now()
	results, err := c.compute(req.series, req.params)
	elapsed := time.Since(start)
	c.state.Store(int32(Idle))

	c.mu.Lock()
	if req.seq != c.seq {
		c.mu.Unlock()
		c.log.Debug("result discarded", "seq", req.seq, "latest", c.latestSeq())
		c.observe(OutcomeSuperseded, req.seq, elapsed)
		return nil, ErrSuperseded
	}
	if err != nil {
		c.lastErr = err
		c.mu.Unlock()
		c.log.Warn("recompute failed", "seq", req.seq, "bars", req.series.Len(), "error", err)
		c.observe(OutcomeFailed, req.seq, elapsed)
		return nil, err
	}

	snap := &Snapshot{
		Seq:        req.seq,
		Dataset:    req.dataset,
		Series:     req.series,
		Params:     req.params,
		Results:    results,
		Labels:     req.series.Labels(),
		Closes:     req.series.Closes(),
		ComputedAt: time.Now(),
	}
	c.snap.Store(snap)
	c.lastErr = nil
	subs := make([]chan *Snapshot, 0, len(c.subs))
	for _, ch := range c.subs {
		subs = append(subs, ch)
	}
	c.mu.Unlock()

	c.log.Info("snapshot committed",
		"seq", snap.Seq,
		"bars", req.series.Len(),
		"compute_ms", float64(elapsed.Microseconds())/1000.0,
		"queued_ms", float64(start.Sub(req.queued).Microseconds())/1000.0,
	)
	c.observe(OutcomeCommitted, req.seq, elapsed)
	c.publish(subs, snap)
	return snap, nil
}

// finish records the outcome of seq for Await and wakes waiters. Only the
// last maxOutcomes requests are kept.
func (c *Coordinator) finish(seq uint64, snap *Snapshot, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.outcomes[seq] = outcome{snap: snap, err: err}
	if seq > maxOutcomes {
		delete(c.outcomes, seq-maxOutcomes)
	}
	if seq > c.processed {
		c.processed = seq
	}
	close(c.processedCh)
	c.processedCh = make(chan struct{})
}

// Await blocks until request seq has been processed and returns the
// snapshot it committed, even when newer requests have committed since.
// A failed request returns its error; a request replaced by a newer one
// before committing returns ErrSuperseded. Each outcome is reported once.
func (c *Coordinator) Await(ctx context.Context, seq uint64) (*Snapshot, error) {
	for {
		c.mu.Lock()
		if c.processed >= seq {
			defer c.mu.Unlock()
			if o, ok := c.outcomes[seq]; ok {
				delete(c.outcomes, seq)
				return o.snap, o.err
			}
			// Outcome already consumed or aged out.
			if snap := c.snap.Load(); snap != nil && snap.Seq == seq {
				return snap, nil
			}
			if c.series == nil {
				return nil, ErrNoSeries
			}
			return nil, ErrSuperseded
		}
		ch := c.processedCh
		c.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (c *Coordinator) latestSeq() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seq
}

// publish delivers snap to every subscriber. A full subscriber loses its
// oldest pending snapshot rather than stalling the worker.
func (c *Coordinator) publish(subs []chan *Snapshot, snap *Snapshot) {
	for _, ch := range subs {
		select {
		case ch <- snap:
			continue
		default:
		}
		select {
		case <-ch:
			c.log.Warn("slow subscriber, dropped oldest snapshot", "seq", snap.Seq)
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
}

func (c *Coordinator) observe(outcome string, seq uint64, d time.Duration) {
	if c.obs != nil {
		c.obs.ObserveRecompute(outcome, seq, d)
	}
}

// Snapshot returns the latest committed snapshot, or nil before the
// first commit.
func (c *Coordinator) Snapshot() *Snapshot {
	return c.snap.Load()
}

// LastError returns the error of the latest failed request. It is
// cleared by the next commit.
func (c *Coordinator) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// State reports whether the worker is computing.
func (c *Coordinator) State() State {
	return State(c.state.Load())
}

// Subscribe returns a channel receiving every committed snapshot, and a
// func that stops delivery. The channel is never closed.
func (c *Coordinator) Subscribe() (<-chan *Snapshot, func()) {
	ch := make(chan *Snapshot, c.subBuf)
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	c.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, id)
			c.mu.Unlock()
		})
	}
}

// WaitIdle blocks until every queued request has been processed.
func (c *Coordinator) WaitIdle(ctx context.Context) error {
	for {
		c.mu.Lock()
		idle := c.idle
		c.mu.Unlock()
		select {
		case <-idle:
			c.mu.Lock()
			done := len(c.queue) == 0 && c.idle == idle
			c.mu.Unlock()
			if done {
				return nil
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
