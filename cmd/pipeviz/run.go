package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sarchlab/pipeviz/timing/core"
	"github.com/sarchlab/pipeviz/timing/driver"
	"github.com/sarchlab/pipeviz/timing/pipeline"
	"github.com/sarchlab/pipeviz/trace"
)

type runOptions struct {
	cycles        uint64
	untilComplete bool
	tracePath     string
	diagram       bool
	quiet         bool
}

func newRunCmd(a *app) *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the simulation automatically and print every cycle",
		Example: `  pipeviz run --cycles 20 --interval 0
  pipeviz run --until-complete --diagram --seed 42`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.run(cmd, opts)
		},
	}

	cmd.Flags().Uint64Var(&opts.cycles, "cycles", 20,
		"number of cycles to run, 0 runs until interrupted")
	cmd.Flags().BoolVar(&opts.untilComplete, "until-complete", false,
		"stop once the first batch has completed instead of generating more")
	cmd.Flags().StringVar(&opts.tracePath, "trace", "",
		"record the run into a SQLite database with this name")
	cmd.Flags().BoolVar(&opts.diagram, "diagram", false,
		"print the pipeline diagram at the end")
	cmd.Flags().BoolVarP(&opts.quiet, "quiet", "q", false,
		"only print the summary")

	return cmd
}

// tickOnly steps a session without generating new batches.
type tickOnly struct {
	*core.Core
}

func (t tickOnly) Step() (core.Report, error) {
	return t.Tick()
}

func (a *app) run(cmd *cobra.Command, opts *runOptions) error {
	session, cfg, err := a.newCore()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var stepper driver.Stepper = session
	if opts.untilComplete {
		stepper = tickOnly{session}
	}

	d := driver.New("Driver", stepper,
		driver.WithInterval(cfg.TickInterval),
		driver.WithMaxCycles(opts.cycles),
		driver.WithLogger(a.logger.Named("driver")))

	out := cmd.OutOrStdout()
	d.AcceptHook(driver.NewFuncHook(func(report core.Report) {
		if !opts.quiet {
			fmt.Fprint(out, report.Narrative)
		}
		if opts.untilComplete && report.State.IsComplete() {
			cancel()
		}
	}))

	if opts.tracePath != "" {
		recorder, err := trace.New(opts.tracePath,
			trace.WithLogger(a.logger.Named("trace")))
		if err != nil {
			return err
		}
		defer recorder.Close()

		d.AcceptHook(recorder)
		fmt.Fprintf(out, "Recording run %s into %s\n",
			recorder.RunID(), recorder.Filename())
	}

	if err := d.Run(ctx); err != nil {
		return err
	}

	printSummary(out, session.Stats())
	if opts.diagram {
		fmt.Fprintln(out)
		fmt.Fprint(out, session.Diagram())
	}

	return nil
}

func printSummary(w io.Writer, stats pipeline.Statistics) {
	fmt.Fprintf(w, "Cycles: %d, completed instructions: %d, CPI: %.2f\n",
		stats.Cycles, stats.Instructions, stats.CPI())

	if stats.Stalls == 0 {
		fmt.Fprintln(w, "No stalls.")
		return
	}

	fmt.Fprintf(w, "Stall cycles: %d\n", stats.Stalls)
	for k := pipeline.HazardRAW; int(k) < pipeline.NumHazardKinds; k++ {
		if n := stats.HazardCount(k); n > 0 {
			fmt.Fprintf(w, "  %-10s %d\n", k.String(), n)
		}
	}
}
