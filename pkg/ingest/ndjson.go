package ingest

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/visilake/edaproc/pkg/dataset"
	edaerrors "github.com/visilake/edaproc/pkg/errors"
)

// maxLineBytes bounds a single NDJSON record.
const maxLineBytes = 64 * 1024 * 1024

var errNotObject = errors.New("record is not a JSON object")

// DecodeNDJSON decodes newline-delimited JSON objects into a dataset.
//
// Columns are the keys of the first record, in document order. Every later
// record must carry the same key set, in any order. Blank lines are skipped
// but still count toward the line index reported in errors. A read failure
// of r is returned unclassified so the caller can attribute it.
func DecodeNDJSON(r io.Reader) (*dataset.Dataset, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	var (
		ds       *dataset.Dataset
		colIndex map[string]int
		line     = -1
	)

	for scanner.Scan() {
		line++
		raw := bytes.TrimSuffix(scanner.Bytes(), []byte{'\r'})

		if len(bytes.TrimSpace(raw)) == 0 {
			continue
		}
		if !utf8.Valid(raw) {
			return nil, edaerrors.Parse(line, errors.New("invalid UTF-8"))
		}

		keys, values, err := decodeRecord(raw)
		if err != nil {
			return nil, edaerrors.Parse(line, err)
		}

		if ds == nil {
			ds = dataset.New(keys)
			colIndex = make(map[string]int, len(keys))
			for i, k := range keys {
				colIndex[k] = i
			}
		} else if err := checkKeys(colIndex, keys); err != "" {
			return nil, edaerrors.Schema(line, err)
		}

		row := make(dataset.Row, len(ds.Columns))
		for i, k := range keys {
			row[colIndex[k]] = values[i]
		}
		if err := ds.Append(row); err != nil {
			return nil, edaerrors.Schema(line, err.Error())
		}
	}

	if err := scanner.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			return nil, edaerrors.Parse(line+1, err)
		}
		return nil, err
	}

	if ds == nil || ds.Len() == 0 {
		return nil, edaerrors.New(edaerrors.CodeSchema, "no records")
	}
	return ds, nil
}

// decodeRecord decodes one JSON object, keeping its keys in document order.
// A repeated key keeps its first position and its last value.
func decodeRecord(line []byte) ([]string, []dataset.Value, error) {
	dec := json.NewDecoder(bytes.NewReader(line))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, nil, errNotObject
	}

	var (
		keys   []string
		values []dataset.Value
		seen   = map[string]int{}
	)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, nil, fmt.Errorf("unexpected token %v", tok)
		}

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, nil, err
		}
		v, err := scalar(raw)
		if err != nil {
			return nil, nil, fmt.Errorf("key %q: %w", key, err)
		}

		if i, dup := seen[key]; dup {
			values[i] = v
			continue
		}
		seen[key] = len(keys)
		keys = append(keys, key)
		values = append(values, v)
	}

	if _, err := dec.Token(); err != nil {
		return nil, nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, nil, errors.New("trailing data after object")
	}
	return keys, values, nil
}

// scalar maps a JSON value to a canonical value. Nested objects and arrays
// are kept as compact JSON text.
func scalar(raw json.RawMessage) (dataset.Value, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, errors.New("empty value")
	}

	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, err
		}
		return s, nil
	case 't':
		return true, nil
	case 'f':
		return false, nil
	case 'n':
		return nil, nil
	case '{', '[':
		var buf bytes.Buffer
		if err := json.Compact(&buf, raw); err != nil {
			return nil, err
		}
		return buf.String(), nil
	default:
		return number(string(raw))
	}
}

// number returns int64 for integral literals that fit, float64 otherwise.
func number(s string) (dataset.Value, error) {
	if !strings.ContainsAny(s, ".eE") {
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n, nil
		}
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid number %q", s)
	}
	return f, nil
}

// checkKeys compares a record's key set against the first record's. It
// returns a description of the difference, or "" when they match.
func checkKeys(colIndex map[string]int, keys []string) string {
	present := make(map[string]bool, len(keys))
	var extra []string
	for _, k := range keys {
		present[k] = true
		if _, ok := colIndex[k]; !ok {
			extra = append(extra, k)
		}
	}

	var missing []string
	for k := range colIndex {
		if !present[k] {
			missing = append(missing, k)
		}
	}
	if len(missing) == 0 && len(extra) == 0 {
		return ""
	}

	sort.Strings(missing)
	sort.Strings(extra)
	var parts []string
	if len(missing) > 0 {
		parts = append(parts, "missing keys "+quoteAll(missing))
	}
	if len(extra) > 0 {
		parts = append(parts, "unexpected keys "+quoteAll(extra))
	}
	return "record keys differ from the first record: " + strings.Join(parts, "; ")
}

func quoteAll(ss []string) string {
	q := make([]string, len(ss))
	for i, s := range ss {
		q[i] = strconv.Quote(s)
	}
	return strings.Join(q, ", ")
}
