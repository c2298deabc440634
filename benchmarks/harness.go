// Package benchmarks measures how the hazard probabilities of a
// configuration translate into stalls and CPI over many seeded runs.
package benchmarks

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sarchlab/pipeviz/timing/config"
	"github.com/sarchlab/pipeviz/timing/core"
	"github.com/sarchlab/pipeviz/timing/pipeline"
)

// BenchmarkResult holds the aggregated results of one benchmark.
type BenchmarkResult struct {
	// Name identifies the benchmark
	Name string `json:"name"`

	// Description explains what the benchmark measures
	Description string `json:"description"`

	// Runs is the number of seeded runs aggregated
	Runs int `json:"runs"`

	// SimulatedCycles is the total cycle count over all runs
	SimulatedCycles uint64 `json:"simulated_cycles"`

	// InstructionsRetired is the number of instructions that reached Writeback
	InstructionsRetired uint64 `json:"instructions_retired"`

	// CPI is cycles per retired instruction
	CPI float64 `json:"cpi"`

	// StallCycles is the number of instruction-cycles spent stalled
	StallCycles uint64 `json:"stall_cycles"`

	RAWStalls        uint64 `json:"raw_stalls"`
	WARStalls        uint64 `json:"war_stalls"`
	WAWStalls        uint64 `json:"waw_stalls"`
	ControlStalls    uint64 `json:"control_stalls"`
	StructuralStalls uint64 `json:"structural_stalls"`

	// WallTime is the actual time taken to run all seeds
	WallTime time.Duration `json:"wall_time_ns"`
}

// Benchmark defines one configuration to characterize.
type Benchmark struct {
	// Name identifies the benchmark
	Name string

	// Description explains what the benchmark measures
	Description string

	// Setup adjusts a copy of the default configuration
	Setup func(cfg *config.Config)
}

// HarnessConfig configures the benchmark harness.
type HarnessConfig struct {
	// Cycles is the number of cycles simulated per seed
	Cycles uint64

	// Seeds are the random seeds, one run per seed
	Seeds []int64

	// Output is where to write results (default: os.Stdout)
	Output io.Writer
}

// DefaultConfig returns a default harness configuration.
func DefaultConfig() HarnessConfig {
	return HarnessConfig{
		Cycles: 1000,
		Seeds:  []int64{1, 2, 3, 4, 5, 6, 7, 8},
		Output: os.Stdout,
	}
}

// Harness runs benchmarks and reports results.
type Harness struct {
	config     HarnessConfig
	benchmarks []Benchmark
}

// NewHarness creates a new benchmark harness.
func NewHarness(config HarnessConfig) *Harness {
	if config.Output == nil {
		config.Output = os.Stdout
	}
	return &Harness{
		config:     config,
		benchmarks: []Benchmark{},
	}
}

// AddBenchmark adds a benchmark to the harness.
func (h *Harness) AddBenchmark(b Benchmark) {
	h.benchmarks = append(h.benchmarks, b)
}

// AddBenchmarks adds multiple benchmarks to the harness.
func (h *Harness) AddBenchmarks(benchmarks []Benchmark) {
	h.benchmarks = append(h.benchmarks, benchmarks...)
}

// RunAll executes all benchmarks and returns results.
func (h *Harness) RunAll() ([]BenchmarkResult, error) {
	results := make([]BenchmarkResult, 0, len(h.benchmarks))

	for _, bench := range h.benchmarks {
		result, err := h.runBenchmark(bench)
		if err != nil {
			return results, fmt.Errorf("benchmark %s: %w", bench.Name, err)
		}
		results = append(results, result)
	}

	return results, nil
}

func (h *Harness) runBenchmark(bench Benchmark) (BenchmarkResult, error) {
	cfg := config.DefaultConfig()
	if bench.Setup != nil {
		bench.Setup(cfg)
	}
	if err := cfg.Validate(); err != nil {
		return BenchmarkResult{}, err
	}

	var total pipeline.Statistics
	start := time.Now()

	for _, seed := range h.config.Seeds {
		runCfg := cfg.Clone()
		runCfg.Seed = seed

		c := core.NewCore(core.WithConfig(runCfg))
		for i := uint64(0); i < h.config.Cycles; i++ {
			if _, err := c.Step(); err != nil {
				return BenchmarkResult{}, err
			}
		}

		stats := c.Stats()
		total.Cycles += stats.Cycles
		total.Instructions += stats.Instructions
		total.Stalls += stats.Stalls
		for k := range total.Hazards {
			total.Hazards[k] += stats.Hazards[k]
		}
	}

	return BenchmarkResult{
		Name:                bench.Name,
		Description:         bench.Description,
		Runs:                len(h.config.Seeds),
		SimulatedCycles:     total.Cycles,
		InstructionsRetired: total.Instructions,
		CPI:                 total.CPI(),
		StallCycles:         total.Stalls,
		RAWStalls:           total.HazardCount(pipeline.HazardRAW),
		WARStalls:           total.HazardCount(pipeline.HazardWAR),
		WAWStalls:           total.HazardCount(pipeline.HazardWAW),
		ControlStalls:       total.HazardCount(pipeline.HazardControl),
		StructuralStalls:    total.HazardCount(pipeline.HazardStructural),
		WallTime:            time.Since(start),
	}, nil
}

// PrintResults outputs benchmark results in a human-readable format.
func (h *Harness) PrintResults(results []BenchmarkResult) {
	_, _ = fmt.Fprintln(h.config.Output, "=== pipeviz Hazard Benchmark Results ===")
	_, _ = fmt.Fprintln(h.config.Output, "")

	for _, r := range results {
		_, _ = fmt.Fprintf(h.config.Output, "Benchmark: %s\n", r.Name)
		_, _ = fmt.Fprintf(h.config.Output, "  Description: %s\n", r.Description)
		_, _ = fmt.Fprintf(h.config.Output, "  Runs:                 %d\n", r.Runs)
		_, _ = fmt.Fprintf(h.config.Output, "  Simulated Cycles:     %d\n", r.SimulatedCycles)
		_, _ = fmt.Fprintf(h.config.Output, "  Instructions Retired: %d\n", r.InstructionsRetired)
		_, _ = fmt.Fprintf(h.config.Output, "  CPI:                  %.3f\n", r.CPI)
		_, _ = fmt.Fprintf(h.config.Output, "  Stall Cycles:         %d\n", r.StallCycles)
		_, _ = fmt.Fprintln(h.config.Output, "  --- Stalls by hazard ---")
		_, _ = fmt.Fprintf(h.config.Output, "  RAW:        %d\n", r.RAWStalls)
		_, _ = fmt.Fprintf(h.config.Output, "  WAR:        %d\n", r.WARStalls)
		_, _ = fmt.Fprintf(h.config.Output, "  WAW:        %d\n", r.WAWStalls)
		_, _ = fmt.Fprintf(h.config.Output, "  Control:    %d\n", r.ControlStalls)
		_, _ = fmt.Fprintf(h.config.Output, "  Structural: %d\n", r.StructuralStalls)
		_, _ = fmt.Fprintf(h.config.Output, "  Wall Time: %v\n", r.WallTime)
		_, _ = fmt.Fprintln(h.config.Output, "")
	}
}

// PrintCSV outputs benchmark results in CSV format for easy comparison.
func (h *Harness) PrintCSV(results []BenchmarkResult) {
	_, _ = fmt.Fprintln(h.config.Output,
		"name,runs,cycles,instructions,cpi,stalls,raw,war,waw,control,structural")

	for _, r := range results {
		_, _ = fmt.Fprintf(h.config.Output, "%s,%d,%d,%d,%.3f,%d,%d,%d,%d,%d,%d\n",
			r.Name,
			r.Runs,
			r.SimulatedCycles,
			r.InstructionsRetired,
			r.CPI,
			r.StallCycles,
			r.RAWStalls,
			r.WARStalls,
			r.WAWStalls,
			r.ControlStalls,
			r.StructuralStalls,
		)
	}
}
