// Package monitoring exposes a simulation session over HTTP so that a front
// end can step, run, pause, and inspect it.
package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"runtime/pprof"
	"strconv"
	"sync"
	"time"

	"github.com/google/pprof/profile"
	"github.com/gorilla/mux"
	"github.com/hashicorp/go-hclog"
	"github.com/sarchlab/akita/v4/sim"
	"github.com/shirou/gopsutil/process"
	"github.com/syifan/goseth"

	"github.com/sarchlab/pipeviz/timing/core"
	"github.com/sarchlab/pipeviz/timing/driver"
	"github.com/sarchlab/pipeviz/timing/pipeline"
)

// Option is a functional option for configuring the Server.
type Option func(*Server)

// WithInterval sets the time between two cycles while running.
func WithInterval(interval time.Duration) Option {
	return func(s *Server) {
		s.interval = interval
	}
}

// WithLogger sets the logger.
func WithLogger(logger hclog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithHook attaches an extra hook to the driver, e.g. a trace recorder.
func WithHook(hook sim.Hook) Option {
	return func(s *Server) {
		s.hooks = append(s.hooks, hook)
	}
}

// WithHistory sets how many recent narratives are kept.
func WithHistory(n int) Option {
	return func(s *Server) {
		s.historySize = n
	}
}

// Server serves the monitoring API of one session.
type Server struct {
	core        *core.Core
	driver      *driver.Driver
	interval    time.Duration
	logger      hclog.Logger
	hooks       []sim.Hook
	historySize int

	mu        sync.Mutex
	cancel    context.CancelFunc
	done      chan struct{}
	lastErr   error
	history   []string
	profileMu sync.Mutex
}

// NewServer creates a monitoring server for the session.
func NewServer(c *core.Core, opts ...Option) *Server {
	s := &Server{
		core:        c,
		interval:    time.Second,
		logger:      hclog.NewNullLogger(),
		historySize: 32,
	}

	for _, opt := range opts {
		opt(s)
	}

	s.driver = driver.New("Monitor.Driver", c,
		driver.WithInterval(s.interval),
		driver.WithLogger(s.logger.Named("driver")))
	s.driver.AcceptHook(driver.NewFuncHook(s.remember))
	for _, h := range s.hooks {
		s.driver.AcceptHook(h)
	}

	return s
}

// Handler returns the HTTP handler of the API.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/api/state", s.state).Methods(http.MethodGet)
	r.HandleFunc("/api/inspect", s.inspect).Methods(http.MethodGet)
	r.HandleFunc("/api/diagram", s.diagram).Methods(http.MethodGet)
	r.HandleFunc("/api/stats", s.stats).Methods(http.MethodGet)
	r.HandleFunc("/api/narratives", s.narratives).Methods(http.MethodGet)
	r.HandleFunc("/api/instructions/{id}", s.describe).Methods(http.MethodGet)
	r.HandleFunc("/api/step", s.step).Methods(http.MethodPost)
	r.HandleFunc("/api/reset", s.reset).Methods(http.MethodPost)
	r.HandleFunc("/api/run", s.run).Methods(http.MethodPost)
	r.HandleFunc("/api/pause", s.pause).Methods(http.MethodPost)
	r.HandleFunc("/api/status", s.status).Methods(http.MethodGet)
	r.HandleFunc("/api/resource", s.resource).Methods(http.MethodGet)
	r.HandleFunc("/api/profile", s.collectProfile).Methods(http.MethodGet)

	return r
}

// ListenAndServe serves the API on addr until ctx is cancelled. The
// callback, if not nil, receives the URL once the listener is ready.
func (s *Server) ListenAndServe(
	ctx context.Context,
	addr string,
	ready func(url string),
) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	url := fmt.Sprintf("http://localhost:%d",
		listener.Addr().(*net.TCPAddr).Port)
	s.logger.Info("monitoring simulation", "url", url)
	if ready != nil {
		ready(url)
	}

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(listener)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		s.Stop()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("failed to serve: %w", err)
	}

	s.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down: %w", err)
	}

	return nil
}

// Start runs the session automatically in the background. It is a no-op
// when already running.
func (s *Server) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done
	s.lastErr = nil

	go func() {
		defer close(done)

		err := s.driver.Run(ctx)

		s.mu.Lock()
		defer s.mu.Unlock()

		if err != nil {
			s.logger.Error("automatic run stopped", "error", err)
			s.lastErr = err
		}
		if s.done == done {
			s.cancel = nil
			s.done = nil
		}
	}()
}

// Stop halts the automatic run and waits until the current cycle, if any,
// has finished.
func (s *Server) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel = nil
	s.done = nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}

	cancel()
	<-done
}

// Running tells whether the session is being run automatically.
func (s *Server) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.cancel != nil
}

func (s *Server) remember(report core.Report) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history = append(s.history, report.Narrative)
	if over := len(s.history) - s.historySize; over > 0 {
		s.history = append([]string(nil), s.history[over:]...)
	}
}

type stateRsp struct {
	Complete bool `json:"complete"`
	pipeline.State
}

func (s *Server) state(w http.ResponseWriter, _ *http.Request) {
	state := s.core.Snapshot()
	writeJSON(w, http.StatusOK, stateRsp{
		Complete: state.IsComplete(),
		State:    state,
	})
}

// inspectView mirrors pipeline.State with slices in place of arrays, which
// goseth cannot walk.
type inspectView struct {
	Cycle        uint64
	Complete     bool
	Instructions []*inspectInstruction
	Stats        inspectStats
}

type inspectInstruction struct {
	ID            uint64
	Name          string
	Op            string
	Dependency    uint64
	HasDependency bool
	Phase         string
	Stage         string
	Stages        []pipeline.StageRecord
}

type inspectStats struct {
	Cycles       uint64
	Instructions uint64
	Stalls       uint64
	Hazards      []uint64
}

func newInspectView(state pipeline.State) *inspectView {
	view := &inspectView{
		Cycle:    state.Cycle,
		Complete: state.IsComplete(),
		Stats: inspectStats{
			Cycles:       state.Stats.Cycles,
			Instructions: state.Stats.Instructions,
			Stalls:       state.Stats.Stalls,
			Hazards:      append([]uint64(nil), state.Stats.Hazards[:]...),
		},
	}

	for _, inst := range state.Instructions {
		view.Instructions = append(view.Instructions, &inspectInstruction{
			ID:            inst.ID,
			Name:          inst.Name,
			Op:            inst.Op.String(),
			Dependency:    inst.Dependency,
			HasDependency: inst.HasDependency,
			Phase:         inst.Phase().String(),
			Stage:         inst.CurrentStage().String(),
			Stages:        append([]pipeline.StageRecord(nil), inst.Stages[:]...),
		})
	}

	return view
}

func (s *Server) inspect(w http.ResponseWriter, r *http.Request) {
	depth := 3
	if d := r.URL.Query().Get("depth"); d != "" {
		n, err := strconv.Atoi(d)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid depth %q", d))
			return
		}
		depth = n
	}

	view := newInspectView(s.core.Snapshot())

	serializer := goseth.NewSerializer()
	serializer.SetRoot(view)
	serializer.SetMaxDepth(depth)

	w.Header().Set("Content-Type", "application/json")
	if err := serializer.Serialize(w); err != nil {
		s.logger.Error("failed to serialize state", "error", err)
	}
}

func (s *Server) diagram(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprint(w, s.core.Diagram())
}

type statsRsp struct {
	pipeline.Statistics
	CPI     float64           `json:"cpi"`
	ByKind  map[string]uint64 `json:"by_kind"`
	Current uint64            `json:"current_cycle"`
}

func (s *Server) stats(w http.ResponseWriter, _ *http.Request) {
	state := s.core.Snapshot()

	byKind := make(map[string]uint64)
	for k := pipeline.HazardRAW; int(k) < pipeline.NumHazardKinds; k++ {
		byKind[k.String()] = state.Stats.HazardCount(k)
	}

	writeJSON(w, http.StatusOK, statsRsp{
		Statistics: state.Stats,
		CPI:        state.Stats.CPI(),
		ByKind:     byKind,
		Current:    state.Cycle,
	})
}

func (s *Server) narratives(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	history := append([]string{}, s.history...)
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, history)
}

func (s *Server) describe(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest,
			fmt.Errorf("invalid instruction id %q", mux.Vars(r)["id"]))
		return
	}

	text, err := s.core.Describe(id)
	if errors.Is(err, pipeline.ErrNotFound) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprint(w, text)
}

func (s *Server) step(w http.ResponseWriter, _ *http.Request) {
	if s.Running() {
		writeError(w, http.StatusConflict,
			errors.New("cannot step while running"))
		return
	}

	report, err := s.core.Step()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	s.remember(report)
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) reset(w http.ResponseWriter, _ *http.Request) {
	wasRunning := s.Running()
	s.Stop()

	state := s.core.Reset()

	s.mu.Lock()
	s.history = nil
	s.mu.Unlock()

	if wasRunning {
		s.Start()
	}

	writeJSON(w, http.StatusOK, stateRsp{
		Complete: state.IsComplete(),
		State:    state,
	})
}

func (s *Server) run(w http.ResponseWriter, _ *http.Request) {
	s.Start()
	s.status(w, nil)
}

func (s *Server) pause(w http.ResponseWriter, _ *http.Request) {
	s.Stop()
	s.status(w, nil)
}

type statusRsp struct {
	Running  bool   `json:"running"`
	Cycle    uint64 `json:"cycle"`
	Driven   uint64 `json:"driven_cycles"`
	Interval string `json:"interval"`
	Error    string `json:"error,omitempty"`
}

func (s *Server) status(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	rsp := statusRsp{
		Running:  s.cancel != nil,
		Driven:   s.driver.Cycles(),
		Interval: s.interval.String(),
	}
	if s.lastErr != nil {
		rsp.Error = s.lastErr.Error()
	}
	s.mu.Unlock()

	rsp.Cycle = s.core.Cycle()

	writeJSON(w, http.StatusOK, rsp)
}

type resourceRsp struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemorySize uint64  `json:"memory_size"`
}

func (s *Server) resource(w http.ResponseWriter, _ *http.Request) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	cpuPercent, err := proc.CPUPercent()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	memory, err := proc.MemoryInfo()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, http.StatusOK, resourceRsp{
		CPUPercent: cpuPercent,
		MemorySize: memory.RSS,
	})
}

func (s *Server) collectProfile(w http.ResponseWriter, r *http.Request) {
	duration := time.Second
	if d := r.URL.Query().Get("duration"); d != "" {
		parsed, err := time.ParseDuration(d)
		if err != nil || parsed <= 0 || parsed > 30*time.Second {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid duration %q", d))
			return
		}
		duration = parsed
	}

	s.profileMu.Lock()
	defer s.profileMu.Unlock()

	buf := bytes.NewBuffer(nil)
	if err := pprof.StartCPUProfile(buf); err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}

	time.Sleep(duration)
	pprof.StopCPUProfile()

	prof, err := profile.ParseData(buf.Bytes())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, http.StatusOK, prof)
}

type errorRsp struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, errorRsp{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		hclog.Default().Error("failed to encode response", "error", err)
	}
}
