// edaproc prepares the result of an upstream analytics query for analysis:
// it locates the result object for a request, stores it as CSV and Parquet
// under a request directory, profiles it, and prints the report path.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/visilake/edaproc/pkg/config"
	edaerrors "github.com/visilake/edaproc/pkg/errors"
	"github.com/visilake/edaproc/pkg/pipeline"
	"github.com/visilake/edaproc/pkg/source"
	"github.com/visilake/edaproc/pkg/tabular"
	"github.com/visilake/edaproc/pkg/telemetry"
	"github.com/visilake/edaproc/pkg/tui"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

const shutdownTimeout = 5 * time.Second

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run executes the command and returns the process exit code. Only the
// report path is ever written to stdout.
func run(args []string, stdout, stderr io.Writer) int {
	cmd := newRootCmd(stdout, stderr)
	cmd.SetArgs(args)

	if err := cmd.Execute(); err != nil {
		if edaerrors.IsCode(err, edaerrors.CodeUsage) {
			fmt.Fprint(stderr, cmd.UsageString())
		}
		fmt.Fprintln(stderr, "edaproc:", err)
		return 1
	}
	return 0
}

type options struct {
	configPath string
	source     string
	outputDir  string
	format     string
	verbose    bool
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:   "edaproc <remote_prefix|directory> <request_id>",
		Short: "Materialize and profile the result of an analytics request",
		Long: `edaproc locates the newest result object under the remote prefix, writes it as
CSV and Parquet under <output-dir>/<request_id>, generates a profile report and
prints the report's absolute path on stdout.`,
		Version:       fmt.Sprintf("%s (%s)", version, commit),
		Args:          validateArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProfile(cmd.Context(), opts, args[0], args[1], stdout, stderr)
		},
	}
	cmd.SetOut(stderr)
	cmd.SetErr(stderr)
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return edaerrors.Wrap(err, edaerrors.CodeUsage, "invalid flags")
	})

	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "", "YAML config file (default $EDAPROC_CONFIG)")
	cmd.Flags().StringVar(&opts.source, "source", "", "Source kind: http, s3 or local")
	cmd.Flags().StringVarP(&opts.outputDir, "output-dir", "o", "", "Root directory for request outputs")
	cmd.Flags().StringVar(&opts.format, "format", "", "Report format: html or xlsx")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "Debug logging, download progress and a run summary on stderr")
	return cmd
}

func validateArgs(_ *cobra.Command, args []string) error {
	if len(args) != 2 {
		return edaerrors.Newf(edaerrors.CodeUsage, "expected 2 arguments, got %d", len(args))
	}
	if args[0] == "" {
		return edaerrors.New(edaerrors.CodeUsage, "remote prefix must not be empty")
	}
	if args[1] == "" {
		return edaerrors.New(edaerrors.CodeUsage, "request id must not be empty")
	}
	return nil
}

func runProfile(ctx context.Context, opts options, rawPrefix, requestID string, stdout, stderr io.Writer) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	if opts.source != "" {
		cfg.Source.Kind = opts.source
	}
	if opts.outputDir != "" {
		cfg.Output.Root = opts.outputDir
	}
	if opts.format != "" {
		cfg.Profile.Format = opts.format
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	level := slog.LevelInfo
	if opts.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))
	logger.Debug("configuration", "config", cfg.String())

	prefix, err := source.ParsePrefix(rawPrefix, cfg.Source.Kind, cfg.Source.Bucket)
	if err != nil {
		return err
	}

	// Setup context with signal handling
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	set, err := source.New(ctx, cfg.Source)
	if err != nil {
		return err
	}

	otlp := telemetry.DefaultOTLPConfig(cfg.Telemetry.ServiceName)
	otlp.Endpoint = cfg.Telemetry.Endpoint
	otlp.InsecureTLS = cfg.Telemetry.Insecure
	otlp.ServiceVersion = version
	tel, err := telemetry.Setup(ctx, otlp)
	if err != nil {
		return edaerrors.Wrap(err, edaerrors.CodeConfig, "failed to set up tracing")
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := tel.Shutdown(sctx); err != nil {
			logger.Warn("trace export failed", "error", err)
		}
	}()

	compression, err := tabular.ParseCompression(cfg.Output.Compression)
	if err != nil {
		return edaerrors.Wrap(err, edaerrors.CodeConfig, "invalid output.compression")
	}

	runner := pipeline.NewRunner(pipeline.Config{
		OutputRoot:    cfg.Output.Root,
		Compression:   compression,
		TimeColumn:    cfg.Profile.TimeColumn,
		SampleSize:    cfg.Profile.SampleSize,
		ProfileConfig: cfg.Profile.ConfigFile,
		ReportFormat:  cfg.Profile.Format,
	}, set.Lister, set.Fetcher).
		WithLogger(logger).
		WithTelemetry(tel)
	if opts.verbose {
		runner.WithProgress(stderr)
	}

	res, err := runner.Run(ctx, pipeline.Request{Prefix: prefix, RequestID: requestID})
	if opts.verbose {
		tui.PrintSummary(stderr, res.Summary(err))
	}
	if err != nil {
		return err
	}

	fmt.Fprintln(stdout, res.ReportPath)
	return nil
}
