package tabular

import (
	"strings"
	"time"

	"github.com/visilake/edaproc/pkg/dataset"
	edaerrors "github.com/visilake/edaproc/pkg/errors"
)

// DefaultTimeColumn is the column the upstream query labels with the local
// measurement date.
const DefaultTimeColumn = "date local"

// timeLayouts are tried in order. Layouts without a zone parse as UTC.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
	"20060102",
}

// ParseTime parses s with the supported layouts.
func ParseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// CoerceTime converts the column matching name (case-insensitive) to
// time.Time in place and returns the dataset's actual column name. When no
// column matches it returns "" and leaves the dataset untouched. Nulls stay
// null; any other value that cannot be parsed is a TemporalParseError and the
// dataset is left unmodified.
func CoerceTime(ds *dataset.Dataset, name string) (string, error) {
	idx := ds.IndexFold(name)
	if idx < 0 {
		return "", nil
	}
	column := ds.Columns[idx]

	parsed := make([]dataset.Value, len(ds.Rows))
	for i, row := range ds.Rows {
		switch v := row[idx].(type) {
		case nil:
			parsed[i] = nil
		case time.Time:
			parsed[i] = v
		case string:
			t, ok := ParseTime(v)
			if !ok {
				return "", edaerrors.TemporalParse(column, i, v)
			}
			parsed[i] = t
		default:
			return "", edaerrors.TemporalParse(column, i, v)
		}
	}

	for i, row := range ds.Rows {
		row[idx] = parsed[i]
	}
	return column, nil
}
