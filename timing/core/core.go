// Package core provides the simulation session that display layers talk to.
// It wraps the pipeline clock, generates instructions when the pipeline has
// drained, and serializes access to the simulation state.
package core

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"

	"github.com/hashicorp/go-hclog"

	"github.com/sarchlab/pipeviz/insts"
	"github.com/sarchlab/pipeviz/timing/config"
	"github.com/sarchlab/pipeviz/timing/pipeline"
)

// ErrCustomDetector is returned when hazard probabilities are changed on a
// core that does not use the built-in hazard unit.
var ErrCustomDetector = errors.New("core uses a custom hazard detector")

// Report describes one simulated cycle.
type Report struct {
	// Cycle is the number of the cycle that was simulated.
	Cycle uint64 `json:"cycle"`

	// Narrative explains what every instruction did in the cycle.
	Narrative string `json:"narrative"`

	// Replenished is set when a new batch was appended after the cycle.
	Replenished bool `json:"replenished"`

	// State is a snapshot taken after the cycle.
	State pipeline.State `json:"state"`
}

// Option is a functional option for configuring the Core.
type Option func(*Core)

// WithConfig sets the simulation configuration.
func WithConfig(cfg *config.Config) Option {
	return func(c *Core) {
		c.config = cfg.Clone()
	}
}

// WithRandomSource sets the random source shared by the instruction factory
// and the hazard unit. It overrides the configured seed.
func WithRandomSource(rng pipeline.RandomSource) Option {
	return func(c *Core) {
		c.rng = rng
	}
}

// WithHazardDetector replaces the built-in hazard unit.
func WithHazardDetector(detector pipeline.HazardDetector) Option {
	return func(c *Core) {
		c.detector = detector
	}
}

// WithLogger sets the logger.
func WithLogger(logger hclog.Logger) Option {
	return func(c *Core) {
		c.logger = logger
	}
}

// Core is a simulation session. All methods are safe for concurrent use;
// each call observes and produces a complete cycle, never a partial one.
type Core struct {
	mu sync.Mutex

	config     *config.Config
	rng        pipeline.RandomSource
	detector   pipeline.HazardDetector
	hazardUnit *pipeline.HazardUnit
	factory    *insts.Factory
	pipeline   *pipeline.Pipeline
	logger     hclog.Logger

	state pipeline.State
}

// NewCore creates a session holding one fresh batch of instructions.
func NewCore(opts ...Option) *Core {
	c := &Core{
		config: config.DefaultConfig(),
		logger: hclog.NewNullLogger(),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.rng == nil {
		seed := c.config.EffectiveSeed()
		c.rng = rand.New(rand.NewSource(seed))
		c.logger.Debug("random source seeded", "seed", seed)
	}

	c.factory = insts.NewFactory(c.rng,
		insts.WithDependencyProbability(c.config.DependencyProbability))

	if c.detector == nil {
		c.hazardUnit = pipeline.NewHazardUnit(c.rng, &c.config.Hazard)
		c.detector = c.hazardUnit
	}
	c.pipeline = pipeline.NewPipeline(c.detector)

	c.state = c.initialState()

	return c
}

func (c *Core) initialState() pipeline.State {
	return c.pipeline.Reset(c.factory.CreateBatch(c.config.BatchSize, 0))
}

// Initialize discards the current run and returns a ready-to-step state
// holding one fresh batch.
func (c *Core) Initialize() pipeline.State {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.state = c.initialState()
	return c.state.Clone()
}

// Reset returns the session to cycle 1 with a fresh batch whose ids start
// at 1 again. Ids are therefore unique within a run only; an id seen
// before a reset may name a different instruction after it. Callers that
// keep ids across resets, such as trace readers, must qualify them by run.
func (c *Core) Reset() pipeline.State {
	state := c.Initialize()
	c.logger.Info("simulation reset", "instructions", len(state.Instructions))
	return state
}

// Tick simulates one cycle without generating new instructions.
func (c *Core) Tick() (Report, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.tick()
}

// Step simulates one cycle and, if every instruction has then completed,
// appends a new batch. This is what a "step" button or a timer does.
func (c *Core) Step() (Report, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	report, err := c.tick()
	if err != nil {
		return report, err
	}

	if c.replenish() {
		report.Replenished = true
		report.State = c.state.Clone()
	}

	return report, nil
}

func (c *Core) tick() (Report, error) {
	cycle := c.state.Cycle

	next, narrative, err := c.pipeline.Tick(c.state)
	if err != nil {
		c.logger.Error("cycle aborted", "cycle", cycle, "error", err)
		return Report{}, fmt.Errorf("failed to simulate cycle %d: %w", cycle, err)
	}

	c.state = next
	c.logger.Debug("cycle simulated",
		"cycle", cycle,
		"instructions", len(next.Instructions),
		"stalls", next.Stats.Stalls)

	return Report{
		Cycle:     cycle,
		Narrative: narrative,
		State:     next.Clone(),
	}, nil
}

// Replenish appends a new batch if every instruction has completed. It
// returns whether a batch was appended.
func (c *Core) Replenish() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.replenish()
}

func (c *Core) replenish() bool {
	if !c.state.IsComplete() {
		return false
	}

	firstID := c.state.LastID() + 1
	batch := c.factory.CreateBatch(c.config.BatchSize, c.state.LastID())
	c.state = c.state.WithBatch(batch)

	c.logger.Info("instruction batch generated",
		"first_id", firstID,
		"count", len(batch),
		"cycle", c.state.Cycle)

	return true
}

// IsComplete returns true when every instruction has reached Writeback.
func (c *Core) IsComplete() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.state.IsComplete()
}

// Snapshot returns a copy of the current state.
func (c *Core) Snapshot() pipeline.State {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.state.Clone()
}

// Cycle returns the number of the next cycle to simulate.
func (c *Core) Cycle() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.state.Cycle
}

// Stats returns the statistics of the current run.
func (c *Core) Stats() pipeline.Statistics {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.state.Stats
}

// Describe explains the progress of one instruction. It fails with an error
// wrapping pipeline.ErrNotFound for an unknown id.
func (c *Core) Describe(id uint64) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return pipeline.DescribeByID(c.state, id)
}

// Diagram renders the pipeline chart of the current run.
func (c *Core) Diagram() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return pipeline.Diagram(c.state)
}

// Config returns a copy of the configuration in use.
func (c *Core) Config() *config.Config {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.config.Clone()
}

// SetHazardConfig replaces the hazard probabilities. It takes effect from
// the next cycle on.
func (c *Core) SetHazardConfig(cfg *config.HazardConfig) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid hazard config: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.hazardUnit == nil {
		return ErrCustomDetector
	}

	c.hazardUnit.SetConfig(cfg)
	c.config.Hazard = *cfg.Clone()

	c.logger.Info("hazard probabilities updated",
		"raw", cfg.RAWProbability,
		"structural", cfg.StructuralProbability,
		"control", cfg.ControlProbability,
		"background", cfg.BackgroundProbability)

	return nil
}
