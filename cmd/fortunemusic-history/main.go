package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aluiziolira/fortunemusic-history/config"
	"github.com/aluiziolira/fortunemusic-history/models"
	"github.com/aluiziolira/fortunemusic-history/pipeline"
	"github.com/aluiziolira/fortunemusic-history/scraper"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

const appName = "fortunemusic-history"

const (
	exitOK      = 0
	exitUsage   = 1
	exitFailure = 2
)

// usageError marks failures caused by how the command was invoked.
type usageError struct {
	err error
}

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

type options struct {
	configPath    string
	baseURL       string
	maxPageIndex  int
	maxEntryIndex int
	timeout       time.Duration
	delay         time.Duration
	output        string
	format        string
	dumpDetails   string
	metricsAddr   string
	verbose       bool
}

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd := newRootCommand(&options{}, stdout, stderr)
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return exitOK
	}
	fmt.Fprintf(stderr, "error: %s: %v\n", appName, err)

	var usage usageError
	if errors.As(err, &usage) {
		fmt.Fprintf(stderr, "usage: %s\n", cmd.UseLine())
		return exitUsage
	}
	return exitFailure
}

func newRootCommand(opts *options, stdout, stderr io.Writer) *cobra.Command {
	defaults := config.DefaultConfig()

	cmd := &cobra.Command{
		Use:   appName + " <login-id> <login-pw>",
		Short: "Summarize the fortunemusic application history as a report",
		Args: func(_ *cobra.Command, args []string) error {
			if len(args) != 2 {
				return usageError{fmt.Errorf("expected login id and password, got %d argument(s)", len(args))}
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := buildConfig(cmd, opts)
			if err != nil {
				return usageError{err}
			}
			creds := models.Credentials{LoginID: args[0], Password: args[1]}
			return execute(cmd.Context(), cfg, creds, stdout, stderr)
		},
	}
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError{err}
	})

	flags := cmd.Flags()
	flags.StringVar(&opts.configPath, "config", "", "YAML configuration file")
	flags.StringVar(&opts.baseURL, "base-url", defaults.BaseURL, "Portal base URL")
	flags.IntVar(&opts.maxPageIndex, "max-page-index", defaults.MaxPageIndex, "Stop the list walk after this page index")
	flags.IntVar(&opts.maxEntryIndex, "max-entry-index", defaults.MaxEntryIndex, "Stop the detail walk after this entry index")
	flags.DurationVar(&opts.timeout, "timeout", defaults.Timeout, "Per-request timeout")
	flags.DurationVar(&opts.delay, "delay", defaults.Delay, "Delay between requests")
	flags.StringVarP(&opts.output, "output", "o", defaults.OutputFile, `Report path, "-" for stdout`)
	flags.StringVar(&opts.format, "format", defaults.Format, "Report format: tsv or xlsx")
	flags.StringVar(&opts.dumpDetails, "dump-details", "", "Also write raw detail records as JSONL to this path")
	flags.StringVar(&opts.metricsAddr, "metrics-addr", "", "Prometheus metrics listen address (e.g. :9090)")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "Enable verbose logging")
	return cmd
}

// buildConfig layers defaults, the config file, FMH_* variables and
// explicitly set flags, in that order.
func buildConfig(cmd *cobra.Command, opts *options) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if opts.configPath != "" {
		loaded, err := config.Load(opts.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}

	changed := cmd.Flags().Changed
	if changed("base-url") {
		cfg.BaseURL = opts.baseURL
	}
	if changed("max-page-index") {
		cfg.MaxPageIndex = opts.maxPageIndex
	}
	if changed("max-entry-index") {
		cfg.MaxEntryIndex = opts.maxEntryIndex
	}
	if changed("timeout") {
		cfg.Timeout = opts.timeout
	}
	if changed("delay") {
		cfg.Delay = opts.delay
	}
	if changed("output") {
		cfg.OutputFile = opts.output
	}
	if changed("format") {
		cfg.Format = opts.format
	}
	if changed("dump-details") {
		cfg.DetailsFile = opts.dumpDetails
	}
	if changed("metrics-addr") {
		cfg.MetricsAddr = opts.metricsAddr
	}
	if changed("verbose") {
		cfg.Verbose = opts.verbose
	}
	cfg.Format = strings.ToLower(cfg.Format)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func execute(ctx context.Context, cfg *config.Config, creds models.Credentials, stdout, stderr io.Writer) (err error) {
	logger, level := newLogger(stderr, cfg.Verbose)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := scraper.NewScraper(cfg)
	if err != nil {
		return fmt.Errorf("initialising scraper: %w", err)
	}

	writer, err := createWriter(cfg, stdout)
	if err != nil {
		return fmt.Errorf("creating writer: %w", err)
	}
	defer func() {
		if closeErr := writer.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("close writer: %w", closeErr)
		}
	}()

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		metricsServer = &http.Server{
			Addr:    cfg.MetricsAddr,
			Handler: promhttp.HandlerFor(s.Metrics.Registry, promhttp.HandlerOpts{}),
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server failed", slog.Any("error", err))
			}
		}()
		slog.Info("metrics server enabled", slog.String("addr", cfg.MetricsAddr))
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				slog.Error("metrics server shutdown failed", slog.Any("error", err))
			}
		}()
	}

	p := pipeline.NewPipeline(s, writer)
	slog.Info("starting history export",
		slog.String("run_id", p.RunID()),
		slog.String("base_url", cfg.BaseURL),
		slog.Int("max_page_index", cfg.MaxPageIndex),
		slog.Int("max_entry_index", cfg.MaxEntryIndex),
	)

	result, err := p.Run(ctx, creds)
	if err != nil {
		return err
	}
	logSummary(result, cfg)
	return nil
}

func createWriter(cfg *config.Config, stdout io.Writer) (pipeline.OutputWriter, error) {
	var report pipeline.OutputWriter
	switch cfg.Format {
	case "tsv":
		if cfg.OutputFile == pipeline.StdoutName {
			report = pipeline.NewTSVStream(stdout)
			break
		}
		w, err := pipeline.NewTSVWriter(cfg.OutputFile)
		if err != nil {
			return nil, err
		}
		report = w
	case "xlsx":
		w, err := pipeline.NewXLSXWriter(cfg.OutputFile)
		if err != nil {
			return nil, err
		}
		report = w
	default:
		return nil, fmt.Errorf("unsupported format: %s", cfg.Format)
	}

	if cfg.DetailsFile == "" {
		return report, nil
	}
	dump, err := pipeline.NewJSONWriter(cfg.DetailsFile)
	if err != nil {
		report.Close()
		return nil, err
	}
	return pipeline.NewDualWriter(report, dump), nil
}

func logSummary(result *models.Result, cfg *config.Config) {
	slog.Info("export complete",
		slog.String("run_id", result.RunID),
		slog.Int("pages", result.PageCount),
		slog.Int("requests", result.RequestCount),
		slog.Int("entries", result.EntryCount),
		slog.Int("details", result.DetailCount),
		slog.Int("products", result.ProductCount),
		slog.Int("rows", result.RowCount),
		slog.Int("unparsed", result.UnparsedCount),
		slog.Int("skipped_duplicates", result.SkippedDuplicates),
		slog.Duration("duration", result.EndTime.Sub(result.StartTime)),
		slog.String("output", cfg.OutputFile),
	)
}

func newLogger(w io.Writer, verbose bool) (*slog.Logger, *slog.LevelVar) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isTerminal(w) {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	return slog.New(handler), level
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
