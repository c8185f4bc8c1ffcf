package profile

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Report formats.
const (
	FormatHTML = "html"
	FormatXLSX = "xlsx"
)

//go:embed templates/report.html.tmpl
var templateFS embed.FS

var reportTemplate = template.Must(template.New("report.html.tmpl").Funcs(template.FuncMap{
	"pct": func(v float64) string { return fmt.Sprintf("%.1f%%", v) },
	"num": formatFloat,
	"barWidth": func(pct float64) int {
		return int(pct * 1.5)
	},
}).ParseFS(templateFS, "templates/report.html.tmpl"))

// Renderer writes a report in one output format.
type Renderer interface {
	Render(w io.Writer, r *Report) error
	Ext() string
}

// NewRenderer returns the renderer for format.
func NewRenderer(format string) (Renderer, error) {
	switch strings.ToLower(format) {
	case "", FormatHTML:
		return HTMLRenderer{}, nil
	case FormatXLSX:
		return XLSXRenderer{}, nil
	default:
		return nil, fmt.Errorf("unknown report format %q", format)
	}
}

// HTMLRenderer renders a self-contained HTML page.
type HTMLRenderer struct{}

// Ext returns ".html".
func (HTMLRenderer) Ext() string { return ".html" }

// Render executes the report template.
func (HTMLRenderer) Render(w io.Writer, r *Report) error {
	return reportTemplate.Execute(w, r)
}

// XLSXRenderer renders a workbook with one sheet per section.
type XLSXRenderer struct{}

// Ext returns ".xlsx".
func (XLSXRenderer) Ext() string { return ".xlsx" }

// Render builds the workbook and writes it to w.
func (XLSXRenderer) Render(w io.Writer, r *Report) error {
	f := excelize.NewFile()
	defer f.Close()

	header, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"F0F0F0"}, Pattern: 1},
	})
	if err != nil {
		return err
	}

	sheets := []struct {
		name string
		on   bool
		rows [][]interface{}
	}{
		{"Overview", true, overviewRows(r)},
		{"Variables", r.Config.Sections.Variables, variableRows(r)},
		{"Missing", r.Config.Sections.Missing, missingRows(r)},
		{"Correlations", r.Config.Sections.Correlations && r.Correlations != nil, correlationRows(r)},
		{"Time Series", r.Config.Sections.TimeSeries && r.TimeSeries != nil, timeSeriesRows(r)},
		{"Sample", r.Config.Sections.Sample, sampleRows(r)},
	}

	first := true
	for _, s := range sheets {
		if !s.on {
			continue
		}
		if first {
			if err := f.SetSheetName("Sheet1", s.name); err != nil {
				return err
			}
			first = false
		} else if _, err := f.NewSheet(s.name); err != nil {
			return err
		}

		for i, row := range s.rows {
			cell, err := excelize.CoordinatesToCellName(1, i+1)
			if err != nil {
				return err
			}
			if err := f.SetSheetRow(s.name, cell, &row); err != nil {
				return err
			}
		}
		if len(s.rows) > 0 && len(s.rows[0]) > 0 {
			last, _ := excelize.CoordinatesToCellName(len(s.rows[0]), 1)
			if err := f.SetCellStyle(s.name, "A1", last, header); err != nil {
				return err
			}
		}
	}

	_, err = f.WriteTo(w)
	return err
}

func overviewRows(r *Report) [][]interface{} {
	ov := r.Overview
	rows := [][]interface{}{
		{"Title", r.Title},
		{"Generated", r.GeneratedAt.Format("2006-01-02 15:04:05 MST")},
		{"Rows analyzed", ov.Rows},
		{"Rows in dataset", ov.TotalRows},
		{"Columns", ov.Columns},
		{"Missing cells", ov.MissingCells},
		{"Missing %", ov.MissingPct},
		{"Duplicate rows", ov.DuplicateRows},
	}
	for _, k := range ov.Kinds {
		rows = append(rows, []interface{}{k.Kind + " columns", k.Count})
	}
	for _, w := range r.Warnings {
		rows = append(rows, []interface{}{"Alert", w})
	}
	return rows
}

func variableRows(r *Report) [][]interface{} {
	rows := [][]interface{}{{
		"Column", "Kind", "Count", "Missing", "Missing %", "Distinct", "Distinct %", "Entropy",
		"Min", "Max", "Mean", "Std dev", "Q1", "Median", "Q3", "Zeros", "Top value",
	}}
	for _, v := range r.Variables {
		row := []interface{}{v.Name, v.Kind, v.Count, v.Nulls, v.NullPct, v.Distinct, v.DistinctPct, v.Entropy, v.Min, v.Max}
		if n := v.Numeric; n != nil {
			row = append(row, n.Mean, cellFloat(n.StdDev), n.Q1, n.Median, n.Q3, n.Zeros)
		} else {
			row = append(row, nil, nil, nil, nil, nil, nil)
		}
		if len(v.Top) > 0 {
			row = append(row, fmt.Sprintf("%s (%d)", v.Top[0].Value, v.Top[0].Count))
		}
		rows = append(rows, row)
	}
	return rows
}

func missingRows(r *Report) [][]interface{} {
	rows := [][]interface{}{{"Column", "Missing", "Missing %"}}
	for _, v := range r.Variables {
		rows = append(rows, []interface{}{v.Name, v.Nulls, v.NullPct})
	}
	return rows
}

func correlationRows(r *Report) [][]interface{} {
	c := r.Correlations
	if c == nil {
		return nil
	}
	head := []interface{}{""}
	for _, name := range c.Columns {
		head = append(head, name)
	}
	rows := [][]interface{}{head}
	for i, m := range c.Matrix {
		row := []interface{}{c.Columns[i]}
		for _, f := range m {
			row = append(row, cellFloat(f))
		}
		rows = append(rows, row)
	}
	return rows
}

func timeSeriesRows(r *Report) [][]interface{} {
	ts := r.TimeSeries
	if ts == nil {
		return nil
	}
	head := []interface{}{ts.Bucket, "Rows"}
	for _, s := range ts.Series {
		head = append(head, "mean "+s)
	}
	rows := [][]interface{}{head}
	for _, p := range ts.Points {
		row := []interface{}{p.Bucket, p.Count}
		for _, m := range p.Means {
			row = append(row, cellFloat(m))
		}
		rows = append(rows, row)
	}
	return rows
}

func sampleRows(r *Report) [][]interface{} {
	head := make([]interface{}, len(r.Sample.Columns))
	for i, c := range r.Sample.Columns {
		head[i] = c
	}
	rows := [][]interface{}{head}
	for _, sr := range r.Sample.Rows {
		row := make([]interface{}, len(sr))
		for i, c := range sr {
			row[i] = c
		}
		rows = append(rows, row)
	}
	return rows
}

// cellFloat leaves undefined values as empty cells.
func cellFloat(f Float) interface{} {
	if !f.Valid {
		return nil
	}
	return f.Value
}
