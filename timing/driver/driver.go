// Package driver advances a simulation session automatically. It runs the
// session's cycles as ticks of an akita ticking component, so one engine
// tick is one pipeline cycle.
package driver

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/sarchlab/akita/v4/sim"

	"github.com/sarchlab/pipeviz/timing/core"
)

// HookPosCycleEnd marks the completion of a cycle. The hook item is the
// core.Report of that cycle.
var HookPosCycleEnd = &sim.HookPos{Name: "CycleEnd"}

// ErrRunning is returned when Run is called while a run is in progress.
var ErrRunning = errors.New("driver is already running")

// Stepper simulates one cycle per call.
type Stepper interface {
	Step() (core.Report, error)
}

// Option is a functional option for configuring the Driver.
type Option func(*Driver)

// WithInterval sets the wall-clock time between two cycles.
func WithInterval(interval time.Duration) Option {
	return func(d *Driver) {
		d.interval = interval
	}
}

// WithMaxCycles stops each run after n cycles. Zero means no limit.
func WithMaxCycles(n uint64) Option {
	return func(d *Driver) {
		d.maxCycles = n
	}
}

// WithLogger sets the logger.
func WithLogger(logger hclog.Logger) Option {
	return func(d *Driver) {
		d.logger = logger
	}
}

// Driver repeatedly steps a session until it is cancelled, hits its cycle
// limit, or a cycle fails.
type Driver struct {
	*sim.TickingComponent

	engine    sim.Engine
	stepper   Stepper
	interval  time.Duration
	maxCycles uint64
	logger    hclog.Logger

	runMu   sync.Mutex
	ctx     context.Context
	inRun   uint64
	err     error
	total   atomic.Uint64
	running atomic.Bool
}

// New creates a driver for the given session.
func New(name string, stepper Stepper, opts ...Option) *Driver {
	d := &Driver{
		engine:   sim.NewSerialEngine(),
		stepper:  stepper,
		interval: time.Second,
		logger:   hclog.NewNullLogger(),
	}

	for _, opt := range opts {
		opt(d)
	}

	d.TickingComponent = sim.NewTickingComponent(name, d.engine, 1*sim.Hz, d)

	return d
}

// Run steps the session until ctx is cancelled, the cycle limit is reached,
// or a step fails. Cancellation is not an error. The session is left
// between two cycles, so calling Run again resumes where it stopped.
func (d *Driver) Run(ctx context.Context) error {
	if !d.runMu.TryLock() {
		return ErrRunning
	}
	defer d.runMu.Unlock()

	d.ctx = ctx
	d.inRun = 0
	d.err = nil

	if ctx.Err() != nil {
		return nil
	}

	d.running.Store(true)
	defer d.running.Store(false)

	d.logger.Info("driver started",
		"interval", d.interval,
		"max_cycles", d.maxCycles)

	d.TickLater()

	if err := d.engine.Run(); err != nil {
		return fmt.Errorf("failed to run engine: %w", err)
	}

	d.logger.Info("driver stopped", "cycles", d.inRun)

	return d.err
}

// Tick simulates one cycle. It returns false when the run should end.
func (d *Driver) Tick() bool {
	if d.maxCycles > 0 && d.inRun >= d.maxCycles {
		return false
	}

	if !d.wait() {
		return false
	}

	report, err := d.stepper.Step()
	if err != nil {
		d.err = fmt.Errorf("failed to step: %w", err)
		d.logger.Error("cycle failed", "error", err)
		return false
	}

	d.inRun++
	d.total.Add(1)

	d.InvokeHook(sim.HookCtx{
		Domain: d,
		Pos:    HookPosCycleEnd,
		Item:   report,
	})

	return true
}

// wait blocks for one interval and reports whether the run may continue.
func (d *Driver) wait() bool {
	if d.ctx.Err() != nil {
		return false
	}

	if d.interval <= 0 {
		return true
	}

	timer := time.NewTimer(d.interval)
	defer timer.Stop()

	select {
	case <-d.ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// Cycles returns the number of cycles stepped over all runs.
func (d *Driver) Cycles() uint64 {
	return d.total.Load()
}

// Running tells whether a run is in progress.
func (d *Driver) Running() bool {
	return d.running.Load()
}

// Interval returns the time between two cycles.
func (d *Driver) Interval() time.Duration {
	return d.interval
}

// FuncHook adapts a function to a sim.Hook that receives the report of
// every completed cycle. Hooks are compared by identity, so use a pointer.
type FuncHook struct {
	f func(report core.Report)
}

// NewFuncHook creates a FuncHook that calls f.
func NewFuncHook(f func(report core.Report)) *FuncHook {
	return &FuncHook{f: f}
}

// Func implements sim.Hook.
func (h *FuncHook) Func(ctx sim.HookCtx) {
	if ctx.Pos != HookPosCycleEnd {
		return
	}

	report, ok := ctx.Item.(core.Report)
	if !ok {
		return
	}

	h.f(report)
}
