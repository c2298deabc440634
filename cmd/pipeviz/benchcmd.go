package main

import (
	"encoding/json"
	"fmt"
	"os"
	"runtime"
	"runtime/pprof"

	"github.com/spf13/cobra"

	"github.com/sarchlab/pipeviz/benchmarks"
)

func newBenchCmd(_ *app) *cobra.Command {
	var (
		cycles     uint64
		seeds      int
		format     string
		cpuProfile string
		memProfile string
	)

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Measure CPI and stalls of the standard hazard scenarios",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if seeds < 1 {
				return fmt.Errorf("--seeds must be at least 1")
			}

			hc := benchmarks.DefaultConfig()
			hc.Cycles = cycles
			hc.Output = cmd.OutOrStdout()
			hc.Seeds = make([]int64, seeds)
			for i := range hc.Seeds {
				hc.Seeds[i] = int64(i + 1)
			}

			if cpuProfile != "" {
				f, err := os.Create(cpuProfile)
				if err != nil {
					return fmt.Errorf("failed to create CPU profile: %w", err)
				}
				defer func() { _ = f.Close() }()

				if err := pprof.StartCPUProfile(f); err != nil {
					return fmt.Errorf("failed to start CPU profile: %w", err)
				}
				defer pprof.StopCPUProfile()
			}

			harness := benchmarks.NewHarness(hc)
			harness.AddBenchmarks(benchmarks.GetScenarios())

			results, err := harness.RunAll()
			if err != nil {
				return err
			}

			if memProfile != "" {
				if err := writeHeapProfile(memProfile); err != nil {
					return err
				}
			}

			switch format {
			case "text":
				harness.PrintResults(results)
			case "csv":
				harness.PrintCSV(results)
			case "json":
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(results)
			default:
				return fmt.Errorf("unknown format %q", format)
			}

			return nil
		},
	}

	cmd.Flags().Uint64Var(&cycles, "cycles", 1000, "cycles simulated per seed")
	cmd.Flags().IntVar(&seeds, "seeds", 8, "number of seeds per scenario")
	cmd.Flags().StringVar(&format, "format", "text", "output format (text, csv, json)")
	cmd.Flags().StringVar(&cpuProfile, "cpuprofile", "", "write a CPU profile to file")
	cmd.Flags().StringVar(&memProfile, "memprofile", "", "write a heap profile to file")

	return cmd
}

func writeHeapProfile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create memory profile: %w", err)
	}
	defer func() { _ = f.Close() }()

	runtime.GC()
	if err := pprof.WriteHeapProfile(f); err != nil {
		return fmt.Errorf("failed to write memory profile: %w", err)
	}

	return nil
}
