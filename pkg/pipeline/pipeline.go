// Package pipeline runs the stages of one profiling request in order:
// locate the result object, fetch and decode it, write the CSV snapshot,
// convert it to Parquet and generate the profile report.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/visilake/edaproc/pkg/dataset"
	edaerrors "github.com/visilake/edaproc/pkg/errors"
	"github.com/visilake/edaproc/pkg/ingest"
	"github.com/visilake/edaproc/pkg/locate"
	"github.com/visilake/edaproc/pkg/materialize"
	"github.com/visilake/edaproc/pkg/profile"
	"github.com/visilake/edaproc/pkg/source"
	"github.com/visilake/edaproc/pkg/tabular"
	"github.com/visilake/edaproc/pkg/telemetry"
	"github.com/visilake/edaproc/pkg/tui"
)

// Stage names a step of a run.
type Stage string

const (
	StageLocate          Stage = "locate"
	StageFetchDecode     Stage = "fetch_decode"
	StageMaterializeCSV  Stage = "materialize_csv"
	StageConvertColumnar Stage = "convert_to_columnar"
	StageGenerateProfile Stage = "generate_profile"
)

// StageError is the failure of one stage. Err carries the coded cause.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Config holds the per-run settings the stages need.
type Config struct {
	OutputRoot  string
	Compression tabular.Compression

	TimeColumn    string
	SampleSize    int
	ProfileConfig string
	ReportFormat  string
}

// Request identifies the data to process.
type Request struct {
	Prefix    source.Prefix
	RequestID string
}

// Result describes a run. On failure it holds whatever the completed stages
// produced.
type Result struct {
	RunID       string
	RequestID   string
	Object      source.Ref
	Rows        int
	Columns     int
	CSVPath     string
	ParquetPath string
	ReportPath  string
	TimeColumn  string // empty when the dataset had none
	Stages      []tui.StageTiming
	Elapsed     time.Duration
}

// Summary converts the result into the terminal summary. err is the run
// error, if any.
func (r *Result) Summary(err error) *tui.Summary {
	s := &tui.Summary{
		RequestID: r.RequestID,
		RunID:     r.RunID,
		Object:    r.Object.Location(),
		Bytes:     r.Object.Size,
		Rows:      r.Rows,
		Columns:   r.Columns,
		Stages:    r.Stages,
		Elapsed:   r.Elapsed,
		Err:       err,
	}
	if r.Object.Key == "" {
		s.Object = ""
	}
	for _, p := range []string{r.CSVPath, r.ParquetPath, r.ReportPath} {
		if p != "" {
			s.Files = append(s.Files, p)
		}
	}
	var se *StageError
	if errors.As(err, &se) {
		s.FailedStage = string(se.Stage)
	} else if err != nil {
		s.FailedStage = "start"
	}
	return s
}

// Runner executes requests against one source.
type Runner struct {
	cfg       Config
	lister    source.Lister
	fetcher   source.Fetcher
	logger    *slog.Logger
	telemetry *telemetry.Telemetry
	progress  io.Writer
	profiler  *profile.Generator
	newRunID  func() string
}

// NewRunner creates a Runner that lists with lister and downloads with
// fetcher.
func NewRunner(cfg Config, lister source.Lister, fetcher source.Fetcher) *Runner {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return &Runner{
		cfg:       cfg,
		lister:    lister,
		fetcher:   fetcher,
		logger:    logger,
		telemetry: telemetry.Noop(),
		profiler:  profile.NewGenerator(logger),
		newRunID:  uuid.NewString,
	}
}

// WithLogger sets the logger used by the runner and its stages.
func (r *Runner) WithLogger(logger *slog.Logger) *Runner {
	r.logger = logger
	r.profiler = profile.NewGenerator(logger)
	return r
}

// WithTelemetry records a span per stage.
func (r *Runner) WithTelemetry(t *telemetry.Telemetry) *Runner {
	r.telemetry = t
	return r
}

// WithProgress shows a download progress bar on w.
func (r *Runner) WithProgress(w io.Writer) *Runner {
	r.progress = w
	return r
}

// Run processes req. The returned Result is never nil. Errors from a stage
// are *StageError; an invalid request fails before any stage runs.
func (r *Runner) Run(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	res := &Result{RunID: r.newRunID(), RequestID: req.RequestID}
	defer func() { res.Elapsed = time.Since(start) }()

	if req.RequestID == "" {
		return res, edaerrors.New(edaerrors.CodeUsage, "request id must not be empty")
	}
	m, err := materialize.New(r.cfg.OutputRoot, req.RequestID)
	if err != nil {
		return res, err
	}

	ctx, span := r.telemetry.StartRun(ctx, res.RunID, req.RequestID)
	var runErr error
	defer func() { telemetry.End(span, runErr) }()

	logger := r.logger.With("run_id", res.RunID, "request_id", req.RequestID)
	logger.Info("run started", "prefix", req.Prefix.String(), "output", m.Dir())

	var ds *dataset.Dataset

	runErr = r.stage(ctx, logger, res, StageLocate, func(ctx context.Context) error {
		ref, err := locate.New(r.lister, logger).Locate(ctx, req.Prefix, req.RequestID)
		res.Object = ref
		return err
	})
	if runErr != nil {
		return res, runErr
	}

	runErr = r.stage(ctx, logger, res, StageFetchDecode, func(ctx context.Context) error {
		var err error
		ds, err = ingest.Load(ctx, r.fetcher, res.Object, ingest.Options{
			Progress: r.progress,
			Logger:   logger,
		})
		if err != nil {
			return err
		}
		res.Rows, res.Columns = ds.Len(), len(ds.Columns)
		return nil
	})
	if runErr != nil {
		return res, runErr
	}

	runErr = r.stage(ctx, logger, res, StageMaterializeCSV, func(ctx context.Context) error {
		path, err := m.WriteFile(m.CSVName(), func(w io.Writer) error {
			return tabular.WriteCSV(w, ds)
		})
		res.CSVPath = path
		return err
	})
	if runErr != nil {
		return res, runErr
	}

	runErr = r.stage(ctx, logger, res, StageConvertColumnar, func(ctx context.Context) error {
		var err error
		ds, err = r.convert(m, res, ds.Kinds())
		return err
	})
	if runErr != nil {
		return res, runErr
	}

	runErr = r.stage(ctx, logger, res, StageGenerateProfile, func(ctx context.Context) error {
		report, err := r.profiler.Generate(ctx, ds, profile.Options{
			Title:      "Profile for " + req.RequestID,
			TimeColumn: r.cfg.TimeColumn,
			SampleSize: r.cfg.SampleSize,
			ConfigFile: r.cfg.ProfileConfig,
			Format:     r.cfg.ReportFormat,
		})
		if err != nil {
			return err
		}
		path, err := r.profiler.WriteTo(m, report)
		res.ReportPath = path
		return err
	})
	if runErr != nil {
		return res, runErr
	}

	logger.Info("run complete", "report", res.ReportPath, "elapsed", time.Since(start))
	return res, nil
}

// convert reads the CSV snapshot back with the decoded dataset's column
// kinds, coerces the time column and writes the Parquet snapshot. The
// coerced dataset is returned for profiling.
func (r *Runner) convert(m *materialize.Materializer, res *Result, kinds []dataset.Kind) (*dataset.Dataset, error) {
	f, err := os.Open(res.CSVPath)
	if err != nil {
		return nil, edaerrors.Write(err, res.CSVPath)
	}
	defer f.Close()

	ds, err := tabular.ReadCSVWithKinds(f, kinds)
	if err != nil {
		return nil, edaerrors.Wrap(err, edaerrors.CodeParse, "cannot read csv snapshot").
			WithContext("path", res.CSVPath)
	}

	col, err := tabular.CoerceTime(ds, r.cfg.TimeColumn)
	if err != nil {
		return nil, err
	}
	res.TimeColumn = col

	meta := map[string]string{
		"edaproc.request_id": res.RequestID,
		"edaproc.run_id":     res.RunID,
		"edaproc.source":     res.Object.Location(),
	}
	if col != "" {
		meta["edaproc.time_column"] = col
	}

	path, err := m.WriteFile(m.ParquetName(), func(w io.Writer) error {
		return tabular.WriteParquet(w, ds, tabular.ParquetOptions{
			Compression: r.cfg.Compression,
			Metadata:    meta,
		})
	})
	if err != nil {
		return nil, err
	}
	res.ParquetPath = path
	return ds, nil
}

// stage runs fn inside a span and records its duration.
func (r *Runner) stage(ctx context.Context, logger *slog.Logger, res *Result, st Stage, fn func(context.Context) error) error {
	start := time.Now()
	ctx, end := r.telemetry.StartStage(ctx, string(st), attribute.String("request.id", res.RequestID))

	err := fn(ctx)
	end(err)

	d := time.Since(start)
	res.Stages = append(res.Stages, tui.StageTiming{Stage: string(st), Duration: d})
	if err != nil {
		logger.Error("stage failed", "stage", st, "code", edaerrors.GetCode(err), "error", err)
		return &StageError{Stage: st, Err: err}
	}
	logger.Debug("stage complete", "stage", st, "duration", d)
	return nil
}
