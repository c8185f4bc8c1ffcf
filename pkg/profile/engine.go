package profile

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	_ "github.com/marcboeker/go-duckdb"

	"github.com/visilake/edaproc/pkg/dataset"
)

// maxCorrelationColumns bounds the pairwise correlation matrix.
const maxCorrelationColumns = 20

// Engine computes statistics with an in-process DuckDB database holding the
// sample in a single table. Table columns are named by position (c0, c1, ...)
// since dataset column names may differ only in case, which DuckDB
// identifiers cannot.
type Engine struct {
	db      *sql.DB
	columns []string
	kinds   []dataset.Kind
}

// NewEngine opens an in-memory database.
func NewEngine() (*Engine, error) {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("failed to open duckdb: %w", err)
	}
	return &Engine{db: db}, nil
}

// Close releases resources.
func (e *Engine) Close() error {
	return e.db.Close()
}

// ident is the table column holding dataset column i.
func ident(i int) string {
	return "c" + strconv.Itoa(i)
}

func sqlType(k dataset.Kind) string {
	switch k {
	case dataset.KindBool:
		return "BOOLEAN"
	case dataset.KindInt:
		return "BIGINT"
	case dataset.KindFloat:
		return "DOUBLE"
	case dataset.KindTime:
		return "TIMESTAMP"
	default:
		return "VARCHAR"
	}
}

// Load creates the sample table and inserts ds into it.
func (e *Engine) Load(ctx context.Context, ds *dataset.Dataset) error {
	if len(ds.Columns) == 0 {
		return fmt.Errorf("dataset has no columns")
	}
	e.columns = ds.Columns
	e.kinds = ds.Kinds()

	defs := make([]string, len(ds.Columns))
	marks := make([]string, len(ds.Columns))
	for i := range ds.Columns {
		defs[i] = ident(i) + " " + sqlType(e.kinds[i])
		marks[i] = "?"
	}

	if _, err := e.db.ExecContext(ctx, "CREATE TABLE sample ("+strings.Join(defs, ", ")+")"); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	// Start transaction for batch insert
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, "INSERT INTO sample VALUES ("+strings.Join(marks, ", ")+")")
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	args := make([]interface{}, len(ds.Columns))
	for r, row := range ds.Rows {
		for c, v := range row {
			args[c] = bindValue(e.kinds[c], v)
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to insert row %d: %w", r, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

// bindValue converts a cell to the Go type the column's SQL type accepts.
func bindValue(k dataset.Kind, v dataset.Value) interface{} {
	if v == nil {
		return nil
	}
	switch k {
	case dataset.KindFloat:
		if n, ok := v.(int64); ok {
			return float64(n)
		}
		return v
	case dataset.KindTime:
		return v.(time.Time).UTC()
	case dataset.KindBool, dataset.KindInt:
		return v
	default:
		return dataset.Format(v)
	}
}

// Overview computes table-level counts. Missing cells are summed from vars.
func (e *Engine) Overview(ctx context.Context, vars []Variable) (Overview, error) {
	var ov Overview
	var rows int64

	err := e.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*) as total,
			COUNT(*) - (SELECT COUNT(*) FROM (SELECT DISTINCT * FROM sample)) as duplicates
		FROM sample
	`).Scan(&rows, &ov.DuplicateRows)
	if err != nil {
		return ov, fmt.Errorf("overview query failed: %w", err)
	}

	ov.Rows = int(rows)
	ov.Columns = len(e.columns)
	for _, v := range vars {
		ov.MissingCells += v.Nulls
	}
	if cells := rows * int64(len(e.columns)); cells > 0 {
		ov.MissingPct = float64(ov.MissingCells) / float64(cells) * 100
	}

	counts := map[string]int{}
	for _, k := range e.kinds {
		counts[k.String()]++
	}
	for kind, n := range counts {
		ov.Kinds = append(ov.Kinds, KindCount{Kind: kind, Count: n})
	}
	sort.Slice(ov.Kinds, func(i, j int) bool { return ov.Kinds[i].Kind < ov.Kinds[j].Kind })
	return ov, nil
}

// Variables computes per-column statistics.
func (e *Engine) Variables(ctx context.Context, topN int) ([]Variable, error) {
	vars := make([]Variable, len(e.columns))
	for i := range e.columns {
		v, err := e.analyzeColumn(ctx, i, topN)
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", e.columns[i], err)
		}
		vars[i] = *v
	}
	return vars, nil
}

func (e *Engine) analyzeColumn(ctx context.Context, i, topN int) (*Variable, error) {
	col := ident(i)
	v := &Variable{
		Name: e.columns[i],
		Kind: e.kinds[i].String(),
	}

	// Single query for the common metrics
	var min, max sql.NullString
	query := fmt.Sprintf(`
		SELECT
			COUNT(*) as total,
			COUNT(*) - COUNT(%[1]s) as nulls,
			COUNT(DISTINCT %[1]s) as distinct_count,
			COALESCE(entropy(%[1]s::VARCHAR), 0) as entropy,
			MIN(%[1]s)::VARCHAR as min_value,
			MAX(%[1]s)::VARCHAR as max_value
		FROM sample
	`, col)
	err := e.db.QueryRowContext(ctx, query).Scan(
		&v.Count, &v.Nulls, &v.Distinct, &v.Entropy, &min, &max)
	if err != nil {
		return nil, err
	}
	v.Min, v.Max = min.String, max.String

	if v.Count > 0 {
		v.NullPct = float64(v.Nulls) / float64(v.Count) * 100
		v.DistinctPct = float64(v.Distinct) / float64(v.Count) * 100
	}

	if v.Count == v.Nulls {
		return v, nil
	}

	if e.kinds[i].Numeric() {
		v.Numeric, err = e.numericStats(ctx, col)
		if err != nil {
			return nil, err
		}
	} else if topN > 0 && e.kinds[i] != dataset.KindTime {
		v.Top, err = e.topValues(ctx, col, topN, v.Count)
		if err != nil {
			return nil, err
		}
	}
	return v, nil
}

func (e *Engine) numericStats(ctx context.Context, col string) (*NumericStats, error) {
	var (
		ns     NumericStats
		stddev sql.NullFloat64
	)
	query := fmt.Sprintf(`
		SELECT
			AVG(x), STDDEV_SAMP(x), MIN(x),
			quantile_cont(x, 0.25), quantile_cont(x, 0.5), quantile_cont(x, 0.75),
			MAX(x),
			COUNT(*) FILTER (WHERE x = 0)
		FROM (SELECT %s::DOUBLE AS x FROM sample) t
		WHERE x IS NOT NULL
	`, col)
	err := e.db.QueryRowContext(ctx, query).Scan(
		&ns.Mean, &stddev, &ns.Min, &ns.Q1, &ns.Median, &ns.Q3, &ns.Max, &ns.Zeros)
	if err != nil {
		return nil, fmt.Errorf("numeric stats failed: %w", err)
	}
	ns.StdDev = Float{Value: stddev.Float64, Valid: stddev.Valid}
	return &ns, nil
}

func (e *Engine) topValues(ctx context.Context, col string, n int, total int64) ([]ValueCount, error) {
	query := fmt.Sprintf(`
		SELECT %[1]s::VARCHAR AS value, COUNT(*) AS n
		FROM sample
		WHERE %[1]s IS NOT NULL
		GROUP BY value
		ORDER BY n DESC, value
		LIMIT %[2]d
	`, col, n)
	rows, err := e.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("frequency query failed: %w", err)
	}
	defer rows.Close()

	var out []ValueCount
	for rows.Next() {
		var vc ValueCount
		if err := rows.Scan(&vc.Value, &vc.Count); err != nil {
			return nil, err
		}
		if total > 0 {
			vc.Pct = float64(vc.Count) / float64(total) * 100
		}
		out = append(out, vc)
	}
	return out, rows.Err()
}

// Correlations computes the Pearson matrix of the numeric columns.
func (e *Engine) Correlations(ctx context.Context) (*Correlations, error) {
	var (
		cols []string
		idx  []int
	)
	for i, k := range e.kinds {
		if k.Numeric() && len(cols) < maxCorrelationColumns {
			cols = append(cols, e.columns[i])
			idx = append(idx, i)
		}
	}
	if len(cols) < 2 {
		return nil, nil
	}

	c := &Correlations{Columns: cols, Matrix: make([][]Float, len(cols))}
	for i := range cols {
		c.Matrix[i] = make([]Float, len(cols))
		c.Matrix[i][i] = Float{Value: 1, Valid: true}
	}

	for i := 0; i < len(cols); i++ {
		for j := i + 1; j < len(cols); j++ {
			var r sql.NullFloat64
			query := fmt.Sprintf(`SELECT corr(%s::DOUBLE, %s::DOUBLE) FROM sample`,
				ident(idx[i]), ident(idx[j]))
			if err := e.db.QueryRowContext(ctx, query).Scan(&r); err != nil {
				return nil, fmt.Errorf("correlation query failed: %w", err)
			}
			f := Float{Value: r.Float64, Valid: r.Valid}
			c.Matrix[i][j], c.Matrix[j][i] = f, f
		}
	}
	return c, nil
}

var bucketFormats = map[string]string{
	"hour":  "%Y-%m-%d %H:00",
	"day":   "%Y-%m-%d",
	"week":  "%Y-%m-%d",
	"month": "%Y-%m",
	"year":  "%Y",
}

// TimeSeries buckets the sample along the time column named timeCol and
// averages every numeric column per bucket.
func (e *Engine) TimeSeries(ctx context.Context, timeCol, bucket string) (*TimeSeries, error) {
	format, ok := bucketFormats[bucket]
	if !ok {
		return nil, fmt.Errorf("unknown time bucket %q", bucket)
	}
	ti := -1
	for i, name := range e.columns {
		if name == timeCol {
			ti = i
			break
		}
	}
	if ti < 0 {
		return nil, fmt.Errorf("no time column %q in sample", timeCol)
	}
	tcol := ident(ti)
	ts := &TimeSeries{Column: timeCol, Bucket: bucket}

	var first, last sql.NullString
	err := e.db.QueryRowContext(ctx, fmt.Sprintf(
		`SELECT MIN(%[1]s)::VARCHAR, MAX(%[1]s)::VARCHAR FROM sample`, tcol)).Scan(&first, &last)
	if err != nil {
		return nil, fmt.Errorf("time range query failed: %w", err)
	}
	ts.First, ts.Last = first.String, last.String

	means := []string{}
	for i, k := range e.kinds {
		if k.Numeric() {
			ts.Series = append(ts.Series, e.columns[i])
			means = append(means, fmt.Sprintf("AVG(%s::DOUBLE) AS m%d", ident(i), len(means)))
		}
	}

	selectMeans := ""
	outerMeans := ""
	for i, m := range means {
		selectMeans += ", " + m
		outerMeans += fmt.Sprintf(", m%d", i)
	}

	query := fmt.Sprintf(`
		SELECT strftime(b, '%[1]s') AS bucket, n%[2]s
		FROM (
			SELECT date_trunc('%[3]s', %[4]s) AS b, COUNT(*) AS n%[5]s
			FROM sample
			WHERE %[4]s IS NOT NULL
			GROUP BY b
		) t
		ORDER BY b
	`, format, outerMeans, bucket, tcol, selectMeans)

	rows, err := e.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("time series query failed: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		p := SeriesPoint{Means: make([]Float, len(means))}
		raw := make([]sql.NullFloat64, len(means))
		dest := []interface{}{&p.Bucket, &p.Count}
		for i := range raw {
			dest = append(dest, &raw[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		for i, r := range raw {
			p.Means[i] = Float{Value: r.Float64, Valid: r.Valid}
		}
		ts.Points = append(ts.Points, p)
	}
	return ts, rows.Err()
}
