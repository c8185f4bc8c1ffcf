// Package ingest fetches a located object and decodes it into the canonical
// dataset. The usual payload is gzip-compressed NDJSON; plain NDJSON, CSV and
// Parquet objects are recognized as well.
package ingest

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/klauspost/compress/gzip"

	"github.com/visilake/edaproc/pkg/dataset"
	edaerrors "github.com/visilake/edaproc/pkg/errors"
	"github.com/visilake/edaproc/pkg/source"
	"github.com/visilake/edaproc/pkg/tabular"
	"github.com/visilake/edaproc/pkg/tui"
)

// Options configures Load.
type Options struct {
	// Progress receives a download progress bar. Nil disables it.
	Progress io.Writer
	Logger   *slog.Logger
}

// Load fetches ref and decodes it. Transport failures, including ones that
// happen part way through the body, are FetchErrors; everything after the
// bytes arrive is classified by Decode.
func Load(ctx context.Context, fetcher source.Fetcher, ref source.Ref, opts Options) (*dataset.Dataset, error) {
	body, size, err := fetcher.Fetch(ctx, ref)
	if err != nil {
		return nil, edaerrors.Fetch(err, ref.Location())
	}
	defer body.Close()

	transport := &recordingReader{r: body}
	var r io.Reader = transport

	if opts.Progress != nil {
		bar := tui.ShowProgress(opts.Progress, size, "fetch "+ref.Name())
		defer bar.Finish()
		r = io.TeeReader(r, bar)
	}

	ds, err := Decode(ctx, r, ref.Name())
	if transport.err != nil {
		return nil, edaerrors.Fetch(transport.err, ref.Location())
	}
	if err != nil {
		return nil, err
	}

	if opts.Logger != nil {
		opts.Logger.Debug("decoded object",
			"object", ref.Location(),
			"rows", ds.Len(),
			"columns", len(ds.Columns))
	}
	return ds, nil
}

// Decode decodes a payload whose format is detected from its leading bytes
// and name.
func Decode(ctx context.Context, r io.Reader, name string) (*dataset.Dataset, error) {
	br := bufio.NewReader(r)
	head, _ := br.Peek(4)

	switch DetectFormat(name, head) {
	case FormatNDJSON:
		ds, err := DecodeNDJSON(br)
		if err != nil && edaerrors.GetCode(err) == edaerrors.CodeUnknown {
			return nil, edaerrors.Wrap(err, edaerrors.CodeParse, "failed to read payload")
		}
		return ds, err

	case FormatCSV:
		ds, err := tabular.ReadCSV(br)
		if err != nil {
			return nil, edaerrors.Wrap(err, edaerrors.CodeParse, "malformed csv object")
		}
		return nonEmpty(ds)

	case FormatParquet:
		data, err := io.ReadAll(br)
		if err != nil {
			return nil, edaerrors.Wrap(err, edaerrors.CodeParse, "failed to read payload")
		}
		ds, err := tabular.ReadParquet(ctx, bytes.NewReader(data))
		if err != nil {
			return nil, edaerrors.Wrap(err, edaerrors.CodeParse, "malformed parquet object")
		}
		return nonEmpty(ds)

	default:
		return DecodeGzipNDJSON(br)
	}
}

// DecodeGzipNDJSON decompresses and decodes gzip NDJSON. A payload that is
// not valid gzip, including a truncated one, is a DecompressError.
func DecodeGzipNDJSON(r io.Reader) (*dataset.Dataset, error) {
	zr, err := gzip.NewReader(r)
	if err != nil {
		return nil, edaerrors.Decompress(err)
	}
	defer zr.Close()

	inflate := &recordingReader{r: zr}
	ds, err := DecodeNDJSON(inflate)
	if inflate.err != nil {
		return nil, edaerrors.Decompress(inflate.err)
	}
	if err != nil && edaerrors.GetCode(err) == edaerrors.CodeUnknown {
		return nil, edaerrors.Decompress(err)
	}
	return ds, err
}

func nonEmpty(ds *dataset.Dataset) (*dataset.Dataset, error) {
	if ds.Len() == 0 {
		return nil, edaerrors.New(edaerrors.CodeSchema, "no records")
	}
	return ds, nil
}

// recordingReader remembers the first non-EOF error of the reader it wraps,
// so a failure can be attributed to the layer that produced it.
type recordingReader struct {
	r   io.Reader
	err error
}

func (rr *recordingReader) Read(p []byte) (int, error) {
	n, err := rr.r.Read(p)
	if err != nil && !errors.Is(err, io.EOF) && rr.err == nil {
		rr.err = err
	}
	return n, err
}
