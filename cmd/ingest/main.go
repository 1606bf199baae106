package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mdbundle/internal/bundle"
	"mdbundle/internal/config"
	apperrors "mdbundle/internal/errors"
	"mdbundle/internal/infrastructure"
	"mdbundle/internal/operations"
	"mdbundle/pkg/contracts"
)

// Exit codes
const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

type options struct {
	configFile string
	feedsFile  string
	inputDir   string
	bundleDir  string
	driver     string
	zeroVolume bool
	carryTo    string
	runID      string
	version    bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	opts := &options{}
	fs := flag.NewFlagSet("ingest", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.configFile, "config", "", "config file (defaults to mdbundle.yaml or configs/mdbundle.yaml)")
	fs.StringVar(&opts.feedsFile, "feeds", "", "feed schema mapping file (overrides paths.feed_schemas)")
	fs.StringVar(&opts.inputDir, "input", "", "directory of vendor feed files (overrides paths.input_dir)")
	fs.StringVar(&opts.bundleDir, "bundle", "", "bundle output directory (overrides paths.bundle_dir)")
	fs.StringVar(&opts.driver, "store", "", "bundle store: csv, duckdb or postgres (overrides store.driver)")
	fs.BoolVar(&opts.zeroVolume, "zero-volume", false, "report volume 0 on filled sessions")
	fs.StringVar(&opts.carryTo, "carry-to", "", "carry active series onto this session (YYYY-MM-DD)")
	fs.StringVar(&opts.runID, "run-id", "", "run id used as trace_id (defaults to a new UUID)")
	fs.BoolVar(&opts.version, "version", false, "print version information and exit")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	return opts, nil
}

// loadConfig applies command-line overrides on top of the file and
// environment configuration, then validates the result again.
func loadConfig(opts *options) (*config.Config, error) {
	cfg, err := config.Load(opts.configFile)
	if err != nil {
		return nil, err
	}

	if opts.feedsFile != "" {
		cfg.Paths.FeedSchemas = opts.feedsFile
	}
	if opts.inputDir != "" {
		cfg.Paths.InputDir = opts.inputDir
	}
	if opts.bundleDir != "" {
		cfg.Paths.BundleDir = opts.bundleDir
	}
	if opts.driver != "" {
		cfg.Store.Driver = opts.driver
	}
	if opts.zeroVolume {
		cfg.Bundle.ZeroFillVolume = true
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		fmt.Fprintln(stderr, err)
		return exitUsage
	}
	if opts.version {
		fmt.Fprintln(stdout, contracts.GetFullVersionString())
		return exitOK
	}

	var carryTo time.Time
	if opts.carryTo != "" {
		carryTo, err = time.Parse("2006-01-02", opts.carryTo)
		if err != nil {
			fmt.Fprintf(stderr, "invalid -carry-to %q: %v\n", opts.carryTo, err)
			return exitUsage
		}
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		fmt.Fprintln(stderr, apperrors.NewConfigError("failed to load configuration", err))
		return exitError
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(stderr, "failed to initialize logger: %v\n", err)
		return exitError
	}
	defer infrastructure.CloseLogFile()

	schemas, err := config.LoadFeedSchemas(cfg.Paths.FeedSchemas)
	if err != nil {
		logger.ErrorContext(ctx, "feed_schemas_invalid",
			slog.String("path", cfg.Paths.FeedSchemas),
			slog.String("error", err.Error()))
		return exitError
	}

	providers, err := infrastructure.InitializeOTel(cfg.Telemetry, logger)
	if err != nil {
		logger.ErrorContext(ctx, "telemetry_init_failed", slog.String("error", err.Error()))
		return exitError
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := providers.Shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry_shutdown_failed", slog.String("error", err.Error()))
		}
	}()

	// disabled signals are no-ops inside the providers
	tracer, err := operations.NewOperationTracer(providers)
	if err != nil {
		logger.ErrorContext(ctx, "tracer_init_failed", slog.String("error", err.Error()))
		return exitError
	}
	runtime, err := infrastructure.NewRuntimeMetrics(providers.Meter)
	if err != nil {
		logger.ErrorContext(ctx, "runtime_metrics_init_failed", slog.String("error", err.Error()))
		return exitError
	}
	bundleOpts := []bundle.Option{
		bundle.WithLogger(logger),
		bundle.WithTracer(tracer),
		bundle.WithRuntimeMetrics(runtime),
	}

	st, err := bundle.OpenStore(ctx, cfg)
	if err != nil {
		logger.ErrorContext(ctx, "store_open_failed",
			slog.String("driver", cfg.Store.Driver),
			slog.String("error", err.Error()))
		return exitError
	}
	defer st.Close()

	result, runErr := bundle.New(cfg, schemas, st, bundleOpts...).Run(ctx, bundle.Request{
		RunID:       opts.runID,
		CarryOverTo: carryTo,
	})

	if cfg.Paths.MetricsFile != "" {
		if err := providers.WriteMetricsFile(cfg.Paths.MetricsFile); err != nil {
			logger.WarnContext(ctx, "metrics_file_write_failed",
				slog.String("path", cfg.Paths.MetricsFile),
				slog.String("error", err.Error()))
		}
	}

	if runErr != nil {
		kind := "failed"
		if apperrors.IsHard(runErr) {
			kind = "aborted"
		}
		fmt.Fprintf(stderr, "bundle %s %s: %v\n", cfg.Bundle.Name, kind, runErr)
		return exitError
	}

	d := result.Diagnostics
	fmt.Fprintf(stdout, "bundle %s committed: run %s, %d symbols active, %d skipped, %d bars, %d sessions (%d new), %s\n",
		cfg.Bundle.Name, result.RunID, d.SymbolsActive, d.SymbolsSkipped, d.BarsWritten,
		d.Sessions, d.NewSessions, result.Duration.Round(time.Millisecond))
	return exitOK
}
