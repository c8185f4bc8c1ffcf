package profile

import (
	"strconv"
	"time"
)

// Report is the computed profile of a dataset sample.
type Report struct {
	Title       string
	GeneratedAt time.Time
	Format      string // html or xlsx
	Config      ReportConfig

	Overview     Overview
	Variables    []Variable
	Correlations *Correlations
	TimeSeries   *TimeSeries // nil when the time column is absent
	Sample       Table
	Warnings     []string
}

// Overview summarizes the whole sample.
type Overview struct {
	TotalRows     int // rows in the dataset before sampling
	Rows          int // rows analyzed
	Columns       int
	MissingCells  int64
	MissingPct    float64
	DuplicateRows int64
	Kinds         []KindCount
}

// KindCount is the number of columns of one kind.
type KindCount struct {
	Kind  string
	Count int
}

// Variable holds the statistics of one column.
type Variable struct {
	Name        string
	Kind        string
	Count       int64
	Nulls       int64
	NullPct     float64
	Distinct    int64
	DistinctPct float64
	Entropy     float64
	Min         string
	Max         string
	Numeric     *NumericStats
	Top         []ValueCount
}

// NumericStats holds the moments and quantiles of a numeric column.
type NumericStats struct {
	Mean   float64
	StdDev Float
	Min    float64
	Q1     float64
	Median float64
	Q3     float64
	Max    float64
	Zeros  int64
}

// ValueCount is one entry of a frequency table.
type ValueCount struct {
	Value string
	Count int64
	Pct   float64
}

// Correlations is the Pearson matrix of the numeric columns.
type Correlations struct {
	Columns []string
	Matrix  [][]Float
}

// TimeSeries describes the sample along the time column.
type TimeSeries struct {
	Column string
	First  string
	Last   string
	Bucket string
	Series []string // numeric columns averaged per bucket
	Points []SeriesPoint
}

// SeriesPoint is one time bucket.
type SeriesPoint struct {
	Bucket string
	Count  int64
	Means  []Float
}

// Table is a rendered grid of cells.
type Table struct {
	Columns []string
	Rows    [][]string
}

// Float is a value that may be undefined, such as the standard deviation of
// a single row.
type Float struct {
	Value float64
	Valid bool
}

func (f Float) String() string {
	if !f.Valid {
		return "–"
	}
	return formatFloat(f.Value)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', 6, 64)
}
