// Package profile computes an exploratory profile of a dataset sample and
// renders it as a standalone report.
package profile

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/visilake/edaproc/pkg/dataset"
	edaerrors "github.com/visilake/edaproc/pkg/errors"
	"github.com/visilake/edaproc/pkg/materialize"
	"github.com/visilake/edaproc/pkg/tabular"
)

// DefaultSampleSize is the number of leading rows analyzed.
const DefaultSampleSize = 1000

const highMissingPct = 50.0

// Options configures one report.
type Options struct {
	Title      string
	TimeColumn string // matched case-insensitively; empty disables time-series mode
	SampleSize int    // <= 0 means DefaultSampleSize
	ConfigFile string // report-section configuration; empty uses the defaults
	Format     string // html (default) or xlsx
}

// Generator builds reports.
type Generator struct {
	logger *slog.Logger
	now    func() time.Time
}

// NewGenerator creates a Generator. A nil logger discards.
func NewGenerator(logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Generator{logger: logger, now: time.Now}
}

// Generate profiles the head of ds. When the time column is present and
// temporal, the sample is ordered by it and the time-series section is
// computed; otherwise the report is produced without it.
func (g *Generator) Generate(ctx context.Context, ds *dataset.Dataset, opts Options) (*Report, error) {
	cfg, err := LoadReportConfig(opts.ConfigFile)
	if err != nil {
		return nil, edaerrors.ProfileGeneration(err, "cannot load report config").
			WithContext("path", opts.ConfigFile)
	}
	if _, err := NewRenderer(opts.Format); err != nil {
		return nil, edaerrors.ProfileGeneration(err, "unsupported report format")
	}

	title := opts.Title
	if title == "" {
		title = "Profile report"
	}
	report := &Report{
		Title:       title,
		GeneratedAt: g.now().UTC(),
		Format:      opts.Format,
		Config:      cfg,
	}

	size := opts.SampleSize
	if size <= 0 {
		size = DefaultSampleSize
	}
	sample, timeCol, warning := Sample(ds, size, opts.TimeColumn)
	if warning != "" {
		report.Warnings = append(report.Warnings, warning)
		g.logger.Warn("time-series mode disabled", "reason", warning)
	}

	if err := g.analyze(ctx, report, sample, timeCol); err != nil {
		return nil, edaerrors.ProfileGeneration(err, "statistics failed")
	}
	report.Overview.TotalRows = ds.Len()
	report.Sample = sampleTable(sample, cfg.SampleRows)
	report.Warnings = append(report.Warnings, alerts(report)...)

	g.logger.Debug("profile computed",
		"rows", report.Overview.Rows,
		"columns", report.Overview.Columns,
		"time_column", timeCol,
		"warnings", len(report.Warnings))
	return report, nil
}

func (g *Generator) analyze(ctx context.Context, report *Report, sample *dataset.Dataset, timeCol string) error {
	engine, err := NewEngine()
	if err != nil {
		return err
	}
	defer engine.Close()

	if err := engine.Load(ctx, sample); err != nil {
		return err
	}

	cfg := report.Config
	report.Variables, err = engine.Variables(ctx, cfg.TopValues)
	if err != nil {
		return err
	}
	report.Overview, err = engine.Overview(ctx, report.Variables)
	if err != nil {
		return err
	}

	if cfg.Sections.Correlations {
		report.Correlations, err = engine.Correlations(ctx)
		if err != nil {
			return err
		}
	}
	if cfg.Sections.TimeSeries && timeCol != "" {
		report.TimeSeries, err = engine.TimeSeries(ctx, timeCol, cfg.TimeBucket)
		if err != nil {
			return err
		}
	}
	return nil
}

// WriteTo renders the report and stores it under a unique name in the
// request directory. It returns the absolute path of the new file. Nothing
// is written when rendering fails.
func (g *Generator) WriteTo(m *materialize.Materializer, report *Report) (string, error) {
	renderer, err := NewRenderer(report.Format)
	if err != nil {
		return "", edaerrors.ProfileGeneration(err, "unsupported report format")
	}

	var buf bytes.Buffer
	if err := renderer.Render(&buf, report); err != nil {
		return "", edaerrors.ProfileGeneration(err, "render failed")
	}

	path, err := m.WriteUnique(m.ReportPrefix(), renderer.Ext(), func(w io.Writer) error {
		_, err := buf.WriteTo(w)
		return err
	})
	if err != nil {
		return "", err
	}

	g.logger.Debug("report written", "path", path, "bytes", buf.Len())
	return path, nil
}

// Sample returns a copy of the first n rows of ds. When timeCol names a
// column whose values are (or parse as) times, the copy is stably ordered by
// it with missing times last, and the column's actual name is returned.
// Otherwise the returned name is empty and warning says why.
func Sample(ds *dataset.Dataset, n int, timeCol string) (sample *dataset.Dataset, column, warning string) {
	sample = ds.Head(n)
	if timeCol == "" {
		return sample, "", ""
	}

	column, err := tabular.CoerceTime(sample, timeCol)
	switch {
	case err != nil:
		return sample, "", fmt.Sprintf("time column %q is not temporal; time series omitted", timeCol)
	case column == "":
		return sample, "", fmt.Sprintf("time column %q is not present; time series omitted", timeCol)
	}

	idx := sample.Index(column)
	if sample.ColumnKind(idx) != dataset.KindTime {
		return sample, "", fmt.Sprintf("time column %q has no values; time series omitted", column)
	}

	sort.SliceStable(sample.Rows, func(i, j int) bool {
		a, aok := sample.Rows[i][idx].(time.Time)
		b, bok := sample.Rows[j][idx].(time.Time)
		if !aok || !bok {
			return aok && !bok
		}
		return a.Before(b)
	})
	return sample, column, ""
}

func sampleTable(ds *dataset.Dataset, n int) Table {
	if n > ds.Len() {
		n = ds.Len()
	}
	t := Table{Columns: ds.Columns, Rows: make([][]string, n)}
	for i := 0; i < n; i++ {
		cells := make([]string, len(ds.Columns))
		for c, v := range ds.Rows[i] {
			cells[c] = dataset.Format(v)
		}
		t.Rows[i] = cells
	}
	return t
}

// alerts flags columns that usually need attention before modelling.
func alerts(r *Report) []string {
	var out []string
	if d := r.Overview.DuplicateRows; d > 0 {
		out = append(out, fmt.Sprintf("dataset has %d duplicate rows", d))
	}
	for _, v := range r.Variables {
		switch {
		case v.Count > 0 && v.Nulls == v.Count:
			out = append(out, fmt.Sprintf("%q is entirely missing", v.Name))
		case v.Distinct == 1:
			out = append(out, fmt.Sprintf("%q is constant", v.Name))
		case v.NullPct >= highMissingPct:
			out = append(out, fmt.Sprintf("%q has %.1f%% missing values", v.Name, v.NullPct))
		case v.Kind == dataset.KindString.String() && v.Count > 1 && v.Distinct == v.Count:
			out = append(out, fmt.Sprintf("%q has unique values", v.Name))
		}
	}
	return out
}
