package ingest

import (
	"bytes"
	"path"
	"strings"
)

// Format is the encoding of a fetched object.
type Format int

const (
	// FormatGzipNDJSON is gzip-compressed newline-delimited JSON, the shape
	// query engines write their results in. It is the default.
	FormatGzipNDJSON Format = iota
	FormatNDJSON
	FormatCSV
	FormatParquet
)

func (f Format) String() string {
	switch f {
	case FormatGzipNDJSON:
		return "ndjson+gzip"
	case FormatNDJSON:
		return "ndjson"
	case FormatCSV:
		return "csv"
	case FormatParquet:
		return "parquet"
	default:
		return "unknown"
	}
}

var (
	parquetMagic = []byte("PAR1")
	gzipMagic    = []byte{0x1f, 0x8b}
)

// DetectFormat identifies the format from the leading bytes, then from the
// object name. Anything unrecognized is treated as gzip NDJSON.
func DetectFormat(name string, head []byte) Format {
	// Check magic bytes first
	if bytes.HasPrefix(head, parquetMagic) {
		return FormatParquet
	}
	if bytes.HasPrefix(head, gzipMagic) {
		return FormatGzipNDJSON
	}

	switch strings.ToLower(path.Ext(name)) {
	case ".csv":
		return FormatCSV
	case ".parquet":
		return FormatParquet
	case ".json", ".jsonl", ".ndjson":
		return FormatNDJSON
	default:
		return FormatGzipNDJSON
	}
}
