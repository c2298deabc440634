package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/sarchlab/pipeviz/timing/config"
	"github.com/sarchlab/pipeviz/timing/core"
)

// app carries what every subcommand needs once the root command has parsed
// its flags.
type app struct {
	v      *viper.Viper
	logger hclog.Logger
	closer io.Closer
}

func newRootCmd() *cobra.Command {
	a := &app{
		v:      viper.New(),
		logger: hclog.NewNullLogger(),
	}

	rootCmd := &cobra.Command{
		Use:   "pipeviz",
		Short: "Simulate and explain a five-stage instruction pipeline",
		Long: `pipeviz steps randomly generated instructions through the
Fetch, Decode, Execute, Memory, and Writeback stages one cycle at a time.
Hazards stall instructions with configurable probabilities, and every
cycle is explained in plain text.`,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			a.close()
		},
	}

	d := config.DefaultConfig()
	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "configuration file (yaml, json, or toml)")
	flags.String("env-file", ".env", "file with PIPEVIZ_* environment variables")
	flags.Int64("seed", 0, "random seed, 0 picks one from the clock")
	flags.Int("batch-size", d.BatchSize, "instructions generated per batch")
	flags.Duration("interval", d.TickInterval, "wall-clock time between automatic cycles")
	flags.String("log-level", "warn", "log level (trace, debug, info, warn, error)")
	flags.Bool("log-json", false, "log in JSON format")
	flags.String("log-file", "", "write logs to a rotated file instead of stderr")

	bindings := map[string]string{
		"seed":          "seed",
		"batch_size":    "batch-size",
		"tick_interval": "interval",
		"log.level":     "log-level",
		"log.json":      "log-json",
		"log.file":      "log-file",
	}
	for key, flag := range bindings {
		_ = a.v.BindPFlag(key, flags.Lookup(flag))
	}

	setDefaults(a.v)

	rootCmd.AddCommand(
		newRunCmd(a),
		newShellCmd(a),
		newServeCmd(a),
		newConfigCmd(a),
		newTraceCmd(a),
		newBenchCmd(a),
	)

	return rootCmd
}

func setDefaults(v *viper.Viper) {
	d := config.DefaultConfig()

	v.SetDefault("hazard.raw_probability", d.Hazard.RAWProbability)
	v.SetDefault("hazard.structural_probability", d.Hazard.StructuralProbability)
	v.SetDefault("hazard.control_probability", d.Hazard.ControlProbability)
	v.SetDefault("hazard.background_probability", d.Hazard.BackgroundProbability)
	v.SetDefault("batch_size", d.BatchSize)
	v.SetDefault("dependency_probability", d.DependencyProbability)
	v.SetDefault("seed", d.Seed)
	v.SetDefault("tick_interval", d.TickInterval)
	v.SetDefault("log.level", "warn")
	v.SetDefault("log.json", false)
	v.SetDefault("log.file", "")

	v.SetEnvPrefix("PIPEVIZ")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// setup loads the environment file and the configuration file, then builds
// the logger.
func (a *app) setup(cmd *cobra.Command) error {
	envFile, _ := cmd.Flags().GetString("env-file")
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load %s: %w", envFile, err)
	}

	if path, _ := cmd.Flags().GetString("config"); path != "" {
		a.v.SetConfigFile(path)
		if err := a.v.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}
	}

	logger, closer, err := newLogger(
		a.v.GetString("log.level"),
		a.v.GetBool("log.json"),
		a.v.GetString("log.file"),
		cmd.ErrOrStderr(),
	)
	if err != nil {
		return err
	}

	a.logger = logger
	a.closer = closer

	if used := a.v.ConfigFileUsed(); used != "" {
		a.logger.Debug("config loaded", "file", used)
	}

	return nil
}

func (a *app) close() {
	if a.closer != nil {
		_ = a.closer.Close()
		a.closer = nil
	}
}

// config returns the effective simulation configuration: defaults, then
// the config file, then PIPEVIZ_* variables, then flags.
func (a *app) config() (*config.Config, error) {
	cfg := &config.Config{}
	if err := a.v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// newCore creates a session from the effective configuration.
func (a *app) newCore() (*core.Core, *config.Config, error) {
	cfg, err := a.config()
	if err != nil {
		return nil, nil, err
	}

	seed := cfg.EffectiveSeed()
	cfg.Seed = seed
	a.logger.Info("session created",
		"seed", seed,
		"batch_size", cfg.BatchSize,
		"interval", cfg.TickInterval)

	c := core.NewCore(
		core.WithConfig(cfg),
		core.WithLogger(a.logger.Named("core")),
	)

	return c, cfg, nil
}

func newLogger(
	level string,
	jsonFormat bool,
	file string,
	stderr io.Writer,
) (hclog.Logger, io.Closer, error) {
	lvl := hclog.LevelFromString(level)
	if lvl == hclog.NoLevel {
		return nil, nil, fmt.Errorf("unknown log level %q", level)
	}

	var (
		out    io.Writer = stderr
		closer io.Closer
	)

	if file != "" {
		rotator := &lumberjack.Logger{
			Filename:   file,
			MaxSize:    10,
			MaxBackups: 3,
			MaxAge:     28,
		}
		out = rotator
		closer = rotator
	}

	logger := hclog.New(&hclog.LoggerOptions{
		Name:       "pipeviz",
		Output:     out,
		Level:      lvl,
		JSONFormat: jsonFormat,
		TimeFormat: time.RFC3339,
	})

	return logger, closer, nil
}
