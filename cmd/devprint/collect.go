package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/nao1215/devprint/internal/aggregator"
	"github.com/nao1215/devprint/internal/config"
	"github.com/nao1215/devprint/internal/database"
	"github.com/nao1215/devprint/internal/digest"
	devlog "github.com/nao1215/devprint/internal/log"
	"github.com/nao1215/devprint/internal/metrics"
	"github.com/nao1215/devprint/internal/model"
	"github.com/nao1215/devprint/internal/probe"
	"github.com/nao1215/devprint/internal/probe/browser"
	"github.com/nao1215/devprint/internal/probe/host"
	"github.com/nao1215/devprint/internal/report"
	"github.com/nao1215/devprint/internal/sink"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

// localItemName names the batch item holding the host and browser probes.
const localItemName = "local"

// NewCollectCmd creates the collect command.
func NewCollectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "collect",
		Short: "Collect signals and compute a device fingerprint",
		Long: `Collect runs every probe of the selected sources, merges their signals and
prints the resulting fingerprint record.

Sources:
- host:    operating system, CPU, memory, locale and time zone
- browser: navigator, screen, WebGL, canvas, audio, fonts and more,
           collected from a headless Chrome or Chromium
- capture: probe output recorded in YAML or JSON files

A probe that fails or times out is reported in the record; the run itself
always completes.

Examples:
  # Fingerprint the local machine
  devprint collect

  # Fingerprint the local machine and a headless browser, and remember it
  devprint collect --source host,browser --save

  # Fingerprint recorded visits
  devprint collect --capture visit1.yaml --capture visit2.yaml

  # Write a JSON report using SHA3-256
  devprint collect --json --hash sha3-256 -o report.json

  # Cache records in Redis and export Prometheus metrics
  devprint collect --redis 127.0.0.1:6379 --metrics-file devprint.prom`,
		Args: cobra.NoArgs,
		RunE: runCollectCmd,
	}

	// Probe flags
	cmd.Flags().StringSliceP("source", "s", []string{config.SourceHost},
		"Probe sources to run: host, browser, capture")
	cmd.Flags().StringSlice("capture", nil,
		"Capture file to replay (repeatable; implies --source capture)")
	cmd.Flags().String("hash", digest.Default,
		"Digest algorithm: "+strings.Join(digest.Algorithms(), ", "))
	cmd.Flags().DurationP("timeout", "t", config.DefaultProbeTimeout,
		"Timeout for each probe")
	cmd.Flags().Int("concurrency", config.DefaultConcurrency,
		"Maximum number of probes running at once (0 = unlimited)")
	cmd.Flags().IntP("batch", "b", config.DefaultBatchSize,
		"Number of capture files fingerprinted at once")
	cmd.Flags().String("chrome", "",
		"Chrome or Chromium binary for the browser source")

	// Configuration flags
	cmd.Flags().StringP("config", "c", "",
		"Configuration file path (default: .devprint in current or home directory)")
	cmd.Flags().String("env-file", ".env",
		"Load environment variables from this file if it exists")

	// Report flags
	cmd.Flags().BoolP("json", "j", false,
		"Output JSON report (mutually exclusive with --markdown)")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output Markdown report (mutually exclusive with --json)")
	cmd.Flags().StringP("output", "o", "",
		"Write report to specified file path (creates directories if needed)")

	// Storage flags
	cmd.Flags().Bool("save", false,
		"Save records to the record store to recognize returning devices")
	cmd.Flags().String("db-dsn", "",
		"PostgreSQL connection string (default: SQLite in the XDG data directory)")
	cmd.Flags().String("db-dir", config.XDGDataDir(),
		"Directory of the SQLite record store")
	cmd.Flags().String("redis", "",
		"Cache records in Redis at this address (host:port)")
	cmd.Flags().Duration("redis-ttl", config.DefaultRedisTTL,
		"Expiry of records cached in Redis")
	cmd.Flags().String("metrics-file", "",
		"Write Prometheus metrics in text format to this file")

	return cmd
}

// runCollectCmd executes the collect command.
func runCollectCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := buildCollectConfig(cmd)
	if err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger := setupLogger(cmd)
	slog.SetDefault(logger)

	// Set up context with signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			logger.Info("received shutdown signal, cancelling...")
			cancel()
		case <-ctx.Done():
		}
	}()

	return runCollect(ctx, cmd, cfg, logger)
}

// buildCollectConfig creates a Config from the .env file, the config file, the
// environment and the command flags, in increasing order of precedence.
func buildCollectConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.NewConfig()
	flags := cmd.Flags()

	var err error

	if cfg.Sources, err = flags.GetStringSlice("source"); err != nil {
		return nil, err
	}
	if cfg.CaptureFiles, err = flags.GetStringSlice("capture"); err != nil {
		return nil, err
	}
	if cfg.Algorithm, err = flags.GetString("hash"); err != nil {
		return nil, err
	}
	if cfg.ProbeTimeout, err = flags.GetDuration("timeout"); err != nil {
		return nil, err
	}
	if cfg.Concurrency, err = flags.GetInt("concurrency"); err != nil {
		return nil, err
	}
	if cfg.BatchSize, err = flags.GetInt("batch"); err != nil {
		return nil, err
	}
	if cfg.ChromePath, err = flags.GetString("chrome"); err != nil {
		return nil, err
	}
	if cfg.ConfigFilePath, err = flags.GetString("config"); err != nil {
		return nil, err
	}
	if cfg.JSONReport, err = flags.GetBool("json"); err != nil {
		return nil, err
	}
	if cfg.MarkdownReport, err = flags.GetBool("markdown"); err != nil {
		return nil, err
	}
	if cfg.ReportFile, err = flags.GetString("output"); err != nil {
		return nil, err
	}
	if cfg.SaveToDB, err = flags.GetBool("save"); err != nil {
		return nil, err
	}
	if cfg.DBDSN, err = flags.GetString("db-dsn"); err != nil {
		return nil, err
	}
	if cfg.DBDir, err = flags.GetString("db-dir"); err != nil {
		return nil, err
	}
	if cfg.RedisAddr, err = flags.GetString("redis"); err != nil {
		return nil, err
	}
	if cfg.RedisTTL, err = flags.GetDuration("redis-ttl"); err != nil {
		return nil, err
	}
	if cfg.MetricsFile, err = flags.GetString("metrics-file"); err != nil {
		return nil, err
	}
	cfg.Verbose = getVerboseFlag(cmd)

	envFile, err := flags.GetString("env-file")
	if err != nil {
		return nil, err
	}
	if envFile != "" {
		if err := config.LoadDotEnv(envFile); err != nil {
			return nil, err
		}
	}

	// If user explicitly specified a config file path, error if not found.
	// If no path specified, silently continue without one.
	configPath := config.FindConfigFile(cfg.ConfigFilePath)
	if configPath != "" {
		f, err := config.LoadConfigFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
		cfg.ApplyFile(f, flags.Changed)
	} else if cfg.ConfigFilePath != "" {
		return nil, fmt.Errorf("configuration file not found: %s", cfg.ConfigFilePath)
	}

	cfg.ApplyEnv(os.Getenv, flags.Changed)

	if len(cfg.CaptureFiles) > 0 && !flags.Changed("source") {
		cfg.Sources = []string{config.SourceCapture}
	}

	return cfg, nil
}

// getVerboseFlag retrieves the verbose flag from the command or its parent.
func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		verbose, err = cmd.Root().PersistentFlags().GetBool("verbose")
		if err != nil {
			return false
		}
	}
	return verbose
}

// setupLogger creates a structured logger that masks visitor-identifying
// values, based on the verbose and log-json flags.
func setupLogger(cmd *cobra.Command) *slog.Logger {
	verbose := getVerboseFlag(cmd)
	asJSON, err := cmd.Root().PersistentFlags().GetBool("log-json")
	if err == nil && asJSON {
		return devlog.NewSecureJSONLogger(cmd.ErrOrStderr(), verbose)
	}
	return devlog.NewSecureLogger(cmd.ErrOrStderr(), verbose)
}

// runCollect executes the collection.
func runCollect(ctx context.Context, cmd *cobra.Command, cfg *config.Config, logger *slog.Logger) error {
	logger.Info("starting collection",
		"sources", cfg.Sources,
		"captures", len(cfg.CaptureFiles),
		"algorithm", cfg.Algorithm,
		"saveToDB", cfg.SaveToDB,
	)

	var recorder *metrics.Recorder
	if cfg.MetricsFile != "" {
		recorder = metrics.New()
	}

	items, closeProbes, err := buildItems(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeProbes()

	delivery, closeSinks, err := buildSinks(ctx, cmd, cfg, recorder, logger)
	if err != nil {
		return err
	}
	defer closeSinks()

	hasher, err := digest.ByName(cfg.Algorithm)
	if err != nil {
		return err
	}

	bp := aggregator.NewBatchProcessor(
		func() *aggregator.Aggregator {
			opts := []aggregator.Option{
				aggregator.WithLogger(devlog.New("aggregator")),
				aggregator.WithHasher(hasher),
				aggregator.WithProbeTimeout(cfg.ProbeTimeout),
				aggregator.WithConcurrency(cfg.Concurrency),
			}
			if recorder != nil {
				opts = append(opts, aggregator.WithObserver(recorder))
			}
			return aggregator.New(opts...)
		},
		aggregator.WithBatchConcurrency(cfg.BatchSize),
		aggregator.WithBatchLogger(logger),
	)

	stderr := cmd.ErrOrStderr()
	startTime := time.Now()

	// Process with callback for streaming output
	var (
		mu               sync.Mutex
		failedItems      int
		failedDeliveries int
	)
	err = bp.ProcessBatchWithCallback(ctx, items, func(res aggregator.BatchResult, index int) {
		mu.Lock()
		defer mu.Unlock()

		if res.Err != nil {
			failedItems++
			fmt.Fprintf(stderr, "[%d/%d] %s: %v\n", index+1, len(items), res.Name, res.Err)
			return
		}
		if len(items) > 1 {
			fmt.Fprintf(stderr, "[%d/%d] %s: %s\n", index+1, len(items), res.Name, res.Record.ShortFingerprint())
		}

		if err := delivery.Deliver(ctx, res.Record); err != nil {
			failedDeliveries++
			logger.Error("failed to deliver record", "item", res.Name, "run_id", res.Record.RunID, "error", err)
		}
	})

	logger.Info("collection complete",
		"items", len(items),
		"elapsed", time.Since(startTime).Round(time.Millisecond),
	)

	if recorder != nil {
		if werr := recorder.WriteTextfile(cfg.MetricsFile); werr != nil {
			logger.Error("failed to write metrics", "file", cfg.MetricsFile, "error", werr)
		}
	}

	if err != nil {
		return err
	}
	if failedItems > 0 {
		return fmt.Errorf("%d of %d item(s) could not be fingerprinted", failedItems, len(items))
	}
	if failedDeliveries > 0 {
		return fmt.Errorf("%d record(s) could not be delivered", failedDeliveries)
	}
	return nil
}

// buildItems resolves the selected sources into batch items. The returned
// function releases resources held by the probes, such as the browser.
func buildItems(ctx context.Context, cfg *config.Config, logger *slog.Logger) ([]aggregator.BatchItem, func(), error) {
	var (
		items   []aggregator.BatchItem
		local   []probe.Probe
		session *browser.Session
	)
	cleanup := func() {
		if session == nil {
			return
		}
		if err := session.Close(); err != nil {
			logger.Error("failed to close browser session", "error", err)
		}
	}

	if cfg.HasSource(config.SourceHost) {
		local = append(local, host.All(host.DefaultEnv())...)
	}

	if cfg.HasSource(config.SourceBrowser) {
		var err error
		session, err = browser.NewSession(ctx,
			browser.WithExecPath(cfg.ChromePath),
			browser.WithSessionLogger(devlog.New("browser")),
		)
		if err != nil {
			return nil, cleanup, err
		}
		local = append(local, browser.All(session)...)
	}

	if len(local) > 0 {
		items = append(items, aggregator.BatchItem{
			Name:   localItemName,
			Probes: applyProbeConfig(cfg.Probes, local, logger),
		})
	}

	if cfg.HasSource(config.SourceCapture) {
		for _, path := range cfg.CaptureFiles {
			capture, err := probe.LoadCapture(path)
			if err != nil {
				return nil, cleanup, err
			}
			items = append(items, aggregator.BatchItem{
				Name:   path,
				Probes: applyProbeConfig(cfg.Probes, capture.ProbeList(), logger),
			})
		}
	}

	return items, cleanup, nil
}

// applyProbeConfig drops disabled probes and applies per-probe timeouts.
// A timeout recorded in a capture entry wins over the file.
func applyProbeConfig(f *config.File, probes []probe.Probe, logger *slog.Logger) []probe.Probe {
	if f == nil {
		return probes
	}

	disabled := f.DisabledProbes(probe.Names(probes))
	if len(disabled) > 0 {
		logger.Debug("probes disabled by config", "probes", disabled)
	}

	out := make([]probe.Probe, 0, len(probes))
	for _, p := range probes {
		if slices.Contains(disabled, p.Name()) {
			continue
		}
		pc := f.GetProbeConfig(p.Name())
		if _, ok := p.(probe.TimeoutProbe); !ok && pc.Timeout > 0 {
			p = probe.WithTimeout(p, pc.Timeout)
		}
		out = append(out, p)
	}
	return out
}

// buildSinks assembles the destinations every record is delivered to. The
// returned function closes them.
func buildSinks(ctx context.Context, cmd *cobra.Command, cfg *config.Config, recorder *metrics.Recorder, logger *slog.Logger) (*sink.Multi, func(), error) {
	var closers []func() error
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				logger.Error("failed to close sink", "error", err)
			}
		}
	}

	output, closeOutput, err := openOutput(cmd, cfg.ReportFile)
	if err != nil {
		return nil, cleanup, err
	}
	closers = append(closers, closeOutput)

	sinks := []sink.Sink{
		sink.NewWriterSink("report", newReportWriter(cfg, output)),
	}

	if cfg.SaveToDB {
		db, err := openStore(ctx, cfg)
		if err != nil {
			return nil, cleanup, err
		}
		closers = append(closers, db.Close)
		logger.Info("record store opened", "dialect", db.Dialect(), "path", db.Path())

		stderr := cmd.ErrOrStderr()
		sinks = append(sinks, sink.NewStoreSink(db,
			sink.WithStoreLogger(devlog.New("store")),
			sink.WithVisitHandler(func(record *model.FingerprintRecord, visit *database.Visit) {
				if visit.Returning {
					fmt.Fprintf(stderr, "Returning device #%d (visit %d): %s\n",
						visit.DeviceID, visit.Log+1, record.ShortFingerprint())
					return
				}
				fmt.Fprintf(stderr, "New device #%d: %s\n", visit.DeviceID, record.ShortFingerprint())
			}),
		))
	}

	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		closers = append(closers, client.Close)
		sinks = append(sinks, sink.NewRedisSink(client,
			sink.WithRecordTTL(cfg.RedisTTL),
			sink.WithRedisLogger(devlog.New("redis")),
		))
	}

	opts := []sink.MultiOption{sink.WithMultiLogger(logger)}
	if recorder != nil {
		opts = append(opts, sink.WithErrorObserver(recorder))
	}
	return sink.NewMulti(sinks, opts...), cleanup, nil
}

// openStore opens PostgreSQL when a DSN is configured and SQLite otherwise.
func openStore(ctx context.Context, cfg *config.Config) (*database.RecordDB, error) {
	if cfg.DBDSN != "" {
		db, err := database.OpenPostgres(ctx, cfg.DBDSN)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		return db, nil
	}
	db, err := database.OpenSQLite(cfg.DBDir, database.DefaultOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

// openOutput returns the report destination: the named file, or the
// command's standard output when path is empty.
func openOutput(cmd *cobra.Command, path string) (io.Writer, func() error, error) {
	if path == "" {
		return cmd.OutOrStdout(), func() error { return nil }, nil
	}

	// Create directories if they don't exist
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	// Records describe a device precisely enough to track it, so the
	// report is readable by the owner only.
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600) //nolint:gosec // User-provided output path is intentional
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return f, f.Close, nil
}

// newReportWriter selects the report format.
func newReportWriter(cfg *config.Config, output io.Writer) report.Writer {
	switch {
	case cfg.JSONReport:
		return report.NewFullJSONWriter(output, getVersion(), report.WithPrettyPrint())
	case cfg.MarkdownReport:
		return report.NewMarkdownWriter(output)
	default:
		return report.NewSimpleWriter(output, report.WithVerbose(cfg.Verbose))
	}
}
