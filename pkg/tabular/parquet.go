package tabular

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/memory"
	"github.com/apache/arrow/go/v14/parquet"
	"github.com/apache/arrow/go/v14/parquet/compress"
	"github.com/apache/arrow/go/v14/parquet/pqarrow"

	"github.com/visilake/edaproc/pkg/dataset"
)

// Compression names a Parquet codec.
type Compression string

const (
	CompressionNone   Compression = "none"
	CompressionSnappy Compression = "snappy"
	CompressionGzip   Compression = "gzip"
	CompressionZstd   Compression = "zstd"
	CompressionLZ4    Compression = "lz4"
)

// ParseCompression maps a config string to a Compression. Empty means
// snappy; an unknown codec name is an error.
func ParseCompression(s string) (Compression, error) {
	if s == "" {
		return CompressionSnappy, nil
	}
	switch c := Compression(strings.ToLower(s)); c {
	case CompressionNone, CompressionSnappy, CompressionGzip, CompressionZstd, CompressionLZ4:
		return c, nil
	default:
		return "", fmt.Errorf("unknown parquet compression %q", s)
	}
}

func (c Compression) codec() compress.Compression {
	switch c {
	case CompressionSnappy:
		return compress.Codecs.Snappy
	case CompressionGzip:
		return compress.Codecs.Gzip
	case CompressionZstd:
		return compress.Codecs.Zstd
	case CompressionLZ4:
		return compress.Codecs.Lz4
	default:
		return compress.Codecs.Uncompressed
	}
}

// ParquetOptions configures the columnar writer.
type ParquetOptions struct {
	Compression Compression
	// Metadata is stored in the Arrow schema of the file footer.
	Metadata map[string]string
}

// timestampType is used for time columns. Values are stored in UTC.
var timestampType = &arrow.TimestampType{Unit: arrow.Microsecond, TimeZone: "UTC"}

// arrowType maps a column kind to its Arrow type. Null-only columns are
// stored as nullable strings.
func arrowType(k dataset.Kind) arrow.DataType {
	switch k {
	case dataset.KindBool:
		return arrow.FixedWidthTypes.Boolean
	case dataset.KindInt:
		return arrow.PrimitiveTypes.Int64
	case dataset.KindFloat:
		return arrow.PrimitiveTypes.Float64
	case dataset.KindTime:
		return timestampType
	default:
		return arrow.BinaryTypes.String
	}
}

// Schema returns the Arrow schema ds is written with.
func Schema(ds *dataset.Dataset, meta map[string]string) *arrow.Schema {
	kinds := ds.Kinds()
	fields := make([]arrow.Field, len(ds.Columns))
	for i, name := range ds.Columns {
		fields[i] = arrow.Field{Name: name, Type: arrowType(kinds[i]), Nullable: true}
	}

	if len(meta) == 0 {
		return arrow.NewSchema(fields, nil)
	}
	keys := make([]string, 0, len(meta))
	values := make([]string, 0, len(meta))
	for k, v := range meta {
		keys = append(keys, k)
		values = append(values, v)
	}
	md := arrow.NewMetadata(keys, values)
	return arrow.NewSchema(fields, &md)
}

// WriteParquet writes ds as a single-row-group Parquet file.
func WriteParquet(w io.Writer, ds *dataset.Dataset, opts ParquetOptions) error {
	alloc := memory.NewGoAllocator()
	schema := Schema(ds, opts.Metadata)

	writerProps := parquet.NewWriterProperties(
		parquet.WithCompression(opts.Compression.codec()),
		parquet.WithDictionaryDefault(true),
		parquet.WithCreatedBy("edaproc"),
	)
	arrowProps := pqarrow.NewArrowWriterProperties(pqarrow.WithStoreSchema())

	fw, err := pqarrow.NewFileWriter(schema, w, writerProps, arrowProps)
	if err != nil {
		return fmt.Errorf("failed to create parquet writer: %w", err)
	}

	b := array.NewRecordBuilder(alloc, schema)
	defer b.Release()

	for r, row := range ds.Rows {
		for c, v := range row {
			if err := appendValue(b.Field(c), v); err != nil {
				fw.Close()
				return fmt.Errorf("row %d column %q: %w", r, ds.Columns[c], err)
			}
		}
	}

	rec := b.NewRecord()
	defer rec.Release()

	if err := fw.Write(rec); err != nil {
		fw.Close()
		return fmt.Errorf("failed to write record batch: %w", err)
	}
	if err := fw.Close(); err != nil {
		return fmt.Errorf("failed to close parquet writer: %w", err)
	}
	return nil
}

func appendValue(b array.Builder, v dataset.Value) error {
	if v == nil {
		b.AppendNull()
		return nil
	}

	switch fb := b.(type) {
	case *array.BooleanBuilder:
		x, ok := v.(bool)
		if !ok {
			return fmt.Errorf("expected bool, got %T", v)
		}
		fb.Append(x)
	case *array.Int64Builder:
		x, ok := v.(int64)
		if !ok {
			return fmt.Errorf("expected int64, got %T", v)
		}
		fb.Append(x)
	case *array.Float64Builder:
		switch x := v.(type) {
		case float64:
			fb.Append(x)
		case int64:
			fb.Append(float64(x))
		default:
			return fmt.Errorf("expected number, got %T", v)
		}
	case *array.TimestampBuilder:
		x, ok := v.(time.Time)
		if !ok {
			return fmt.Errorf("expected time, got %T", v)
		}
		fb.Append(arrow.Timestamp(x.UnixMicro()))
	case *array.StringBuilder:
		fb.Append(dataset.Format(v))
	default:
		return fmt.Errorf("unsupported builder %T", b)
	}
	return nil
}

// ReadParquet reads a Parquet file into a dataset. Time columns come back in
// UTC.
func ReadParquet(ctx context.Context, r parquet.ReaderAtSeeker) (*dataset.Dataset, error) {
	tbl, err := pqarrow.ReadTable(ctx, r, parquet.NewReaderProperties(memory.DefaultAllocator),
		pqarrow.ArrowReadProperties{}, memory.DefaultAllocator)
	if err != nil {
		return nil, fmt.Errorf("failed to read parquet: %w", err)
	}
	defer tbl.Release()

	schema := tbl.Schema()
	columns := make([]string, schema.NumFields())
	for i, f := range schema.Fields() {
		columns[i] = f.Name
	}

	ds := dataset.New(columns)
	n := int(tbl.NumRows())
	ds.Rows = make([]dataset.Row, n)
	for i := range ds.Rows {
		ds.Rows[i] = make(dataset.Row, len(columns))
	}

	for c := 0; c < int(tbl.NumCols()); c++ {
		row := 0
		for _, chunk := range tbl.Column(c).Data().Chunks() {
			for i := 0; i < chunk.Len(); i++ {
				v, err := cellValue(chunk, i)
				if err != nil {
					return nil, fmt.Errorf("column %q: %w", columns[c], err)
				}
				ds.Rows[row][c] = v
				row++
			}
		}
	}

	return ds, nil
}

func cellValue(arr arrow.Array, i int) (dataset.Value, error) {
	if arr.IsNull(i) {
		return nil, nil
	}

	switch a := arr.(type) {
	case *array.Boolean:
		return a.Value(i), nil
	case *array.Int64:
		return a.Value(i), nil
	case *array.Int32:
		return int64(a.Value(i)), nil
	case *array.Float64:
		return a.Value(i), nil
	case *array.Float32:
		return float64(a.Value(i)), nil
	case *array.String:
		return a.Value(i), nil
	case *array.Timestamp:
		unit := a.DataType().(*arrow.TimestampType).Unit
		return a.Value(i).ToTime(unit).UTC(), nil
	default:
		return nil, fmt.Errorf("unsupported arrow type %s", arr.DataType())
	}
}
