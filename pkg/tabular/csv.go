// Package tabular converts the canonical dataset to and from its on-disk
// encodings: CSV for the row-oriented snapshot and Parquet (via Apache Arrow)
// for the columnar one.
//
// Neither encoding persists a row index. ReadCSV, used for CSV produced by
// other tools, takes an empty first header cell to be a pandas-style row label
// and drops it. ReadCSVWithKinds reads our own snapshots back and keeps every
// column.
package tabular

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/visilake/edaproc/pkg/dataset"
)

// WriteCSV writes ds as CSV: a header row followed by one line per record.
func WriteCSV(w io.Writer, ds *dataset.Dataset) error {
	cw := csv.NewWriter(w)

	if err := writeRecord(w, cw, ds.Columns); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	record := make([]string, len(ds.Columns))
	for i, row := range ds.Rows {
		for c, v := range row {
			record[c] = formatCell(v)
		}
		if err := writeRecord(w, cw, record); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// writeRecord writes a lone empty field as "" so the line is not blank;
// readers skip blank lines.
func writeRecord(w io.Writer, cw *csv.Writer, record []string) error {
	if len(record) != 1 || record[0] != "" {
		return cw.Write(record)
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\"\"\n")
	return err
}

// formatCell renders floats with a decimal point or exponent so they read
// back as floats rather than ints.
func formatCell(v dataset.Value) string {
	switch x := v.(type) {
	case float64:
		s := strconv.FormatFloat(x, 'g', -1, 64)
		if math.IsInf(x, 0) || math.IsNaN(x) || strings.ContainsAny(s, ".e") {
			return s
		}
		return s + ".0"
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano)
	default:
		return dataset.Format(v)
	}
}

// readRecords reads the header and every data record.
func readRecords(r io.Reader) ([]string, [][]string, error) {
	cr := csv.NewReader(r)

	header, err := cr.Read()
	if err == io.EOF {
		return nil, nil, fmt.Errorf("csv has no header")
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read header: %w", err)
	}

	var raw [][]string
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read csv: %w", err)
		}
		raw = append(raw, rec)
	}
	return header, raw, nil
}

func newRows(ds *dataset.Dataset, n int) {
	ds.Rows = make([]dataset.Row, n)
	for i := range ds.Rows {
		ds.Rows[i] = make(dataset.Row, len(ds.Columns))
	}
}

// ReadCSV reads a CSV file with a header row. Column kinds are inferred from
// the values: int, then float, then bool, otherwise string. Empty cells are
// null.
func ReadCSV(r io.Reader) (*dataset.Dataset, error) {
	header, raw, err := readRecords(r)
	if err != nil {
		return nil, err
	}

	skip := 0
	if len(header) > 0 && header[0] == "" {
		skip = 1
	}

	ds := dataset.New(header[skip:])
	newRows(ds, len(raw))
	for c := range ds.Columns {
		parse := inferParser(raw, c+skip)
		for i, rec := range raw {
			ds.Rows[i][c] = parse(rec[c+skip])
		}
	}
	return ds, nil
}

// ReadCSVWithKinds reads a file written by WriteCSV, decoding column i as
// kinds[i]. Every header cell is a column, so the result has the columns ds
// had when it was written and, with kinds from ds.Kinds(), the same value
// types. String columns stay text even when they look numeric.
func ReadCSVWithKinds(r io.Reader, kinds []dataset.Kind) (*dataset.Dataset, error) {
	header, raw, err := readRecords(r)
	if err != nil {
		return nil, err
	}
	if len(header) != len(kinds) {
		return nil, fmt.Errorf("csv has %d columns, expected %d", len(header), len(kinds))
	}

	ds := dataset.New(header)
	newRows(ds, len(raw))
	for c, k := range kinds {
		for i, rec := range raw {
			v, err := parseKind(k, rec[c])
			if err != nil {
				return nil, fmt.Errorf("row %d column %q: %w", i, header[c], err)
			}
			ds.Rows[i][c] = v
		}
	}
	return ds, nil
}

// parseKind decodes one cell written by formatCell. Empty cells are null.
func parseKind(k dataset.Kind, s string) (dataset.Value, error) {
	if s == "" {
		return nil, nil
	}
	switch k {
	case dataset.KindNull:
		return nil, fmt.Errorf("unexpected value %q in null column", s)
	case dataset.KindInt:
		return strconv.ParseInt(s, 10, 64)
	case dataset.KindFloat:
		return strconv.ParseFloat(s, 64)
	case dataset.KindBool:
		b, ok := parseBool(s)
		if !ok {
			return nil, fmt.Errorf("invalid bool %q", s)
		}
		return b, nil
	case dataset.KindTime:
		t, ok := ParseTime(s)
		if !ok {
			return nil, fmt.Errorf("invalid time %q", s)
		}
		return t, nil
	default:
		return s, nil
	}
}

type cellParser func(string) dataset.Value

// inferParser picks the narrowest parser that accepts every non-empty cell of
// column c.
func inferParser(raw [][]string, c int) cellParser {
	isInt, isFloat, isBool := true, true, true
	seen := false

	for _, rec := range raw {
		s := rec[c]
		if s == "" {
			continue
		}
		seen = true
		if isInt {
			if _, err := strconv.ParseInt(s, 10, 64); err != nil {
				isInt = false
			}
		}
		if isFloat {
			if _, err := strconv.ParseFloat(s, 64); err != nil {
				isFloat = false
			}
		}
		if isBool {
			if _, ok := parseBool(s); !ok {
				isBool = false
			}
		}
	}

	switch {
	case !seen:
		return func(string) dataset.Value { return nil }
	case isInt:
		return func(s string) dataset.Value {
			if s == "" {
				return nil
			}
			n, _ := strconv.ParseInt(s, 10, 64)
			return n
		}
	case isFloat:
		return func(s string) dataset.Value {
			if s == "" {
				return nil
			}
			f, _ := strconv.ParseFloat(s, 64)
			return f
		}
	case isBool:
		return func(s string) dataset.Value {
			if s == "" {
				return nil
			}
			b, _ := parseBool(s)
			return b
		}
	default:
		return func(s string) dataset.Value {
			if s == "" {
				return nil
			}
			return s
		}
	}
}

// parseBool accepts true/false in any case; pandas writes True/False.
func parseBool(s string) (bool, bool) {
	switch strings.ToLower(s) {
	case "true":
		return true, true
	case "false":
		return false, true
	}
	return false, false
}
