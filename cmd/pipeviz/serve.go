package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/browser"
	"github.com/spf13/cobra"

	"github.com/sarchlab/pipeviz/monitoring"
	"github.com/sarchlab/pipeviz/timing/core"
	"github.com/sarchlab/pipeviz/trace"
)

type serveOptions struct {
	addr      string
	open      bool
	autorun   bool
	tracePath string
}

func newServeCmd(a *app) *cobra.Command {
	opts := &serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the simulation over an HTTP API",
		Long: `serve exposes the simulation session over HTTP. Front ends can step,
run, pause, and reset it, and query the state, the diagram, and the
explanation of any instruction. When started with --config, changes to the
hazard probabilities in that file are applied while serving.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.serve(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.addr, "addr", "localhost:8080", "listen address")
	cmd.Flags().BoolVar(&opts.open, "open", false, "open the API in a browser")
	cmd.Flags().BoolVar(&opts.autorun, "autorun", false, "start running immediately")
	cmd.Flags().StringVar(&opts.tracePath, "trace", "",
		"record automatic runs into a SQLite database with this name")

	return cmd
}

func (a *app) serve(cmd *cobra.Command, opts *serveOptions) error {
	session, cfg, err := a.newCore()
	if err != nil {
		return err
	}

	serverOpts := []monitoring.Option{
		monitoring.WithInterval(cfg.TickInterval),
		monitoring.WithLogger(a.logger.Named("monitor")),
	}

	if opts.tracePath != "" {
		recorder, err := trace.New(opts.tracePath,
			trace.WithLogger(a.logger.Named("trace")))
		if err != nil {
			return err
		}
		defer recorder.Close()

		serverOpts = append(serverOpts, monitoring.WithHook(recorder))
	}

	server := monitoring.NewServer(session, serverOpts...)

	if a.v.ConfigFileUsed() != "" {
		a.watchHazards(session)
	}

	if opts.autorun {
		server.Start()
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()

	return server.ListenAndServe(ctx, opts.addr, func(url string) {
		fmt.Fprintf(out, "Serving simulation on %s\n", url)
		if opts.open {
			if err := browser.OpenURL(url + "/api/status"); err != nil {
				a.logger.Warn("failed to open browser", "error", err)
			}
		}
	})
}

// watchHazards applies hazard probability changes in the config file to a
// running session.
func (a *app) watchHazards(session *core.Core) {
	a.v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}

		cfg, err := a.config()
		if err != nil {
			a.logger.Error("ignoring config change", "file", e.Name, "error", err)
			return
		}

		if err := session.SetHazardConfig(&cfg.Hazard); err != nil {
			a.logger.Error("ignoring config change", "file", e.Name, "error", err)
			return
		}

		a.logger.Info("hazard probabilities reloaded", "file", e.Name)
	})
	a.v.WatchConfig()
}
