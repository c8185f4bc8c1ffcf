// Package locate finds the result object a finished query left under a
// request prefix.
package locate

import (
	"context"
	"io"
	"log/slog"
	"path"
	"strings"

	edaerrors "github.com/visilake/edaproc/pkg/errors"
	"github.com/visilake/edaproc/pkg/source"
	"github.com/visilake/edaproc/pkg/storage/object"
)

// Locator selects one object from a prefix listing.
type Locator struct {
	lister source.Lister
	logger *slog.Logger
}

// New creates a Locator. A nil logger discards.
func New(lister source.Lister, logger *slog.Logger) *Locator {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Locator{lister: lister, logger: logger}
}

// Locate lists the prefix and returns the newest data object. Directory
// placeholders and zero-byte markers are ignored. Ties on modification time
// go to the lexically greatest key, so the result does not depend on the
// order the store lists in.
//
// An empty candidate set is NotFound. A listing failure is a FetchError.
func (l *Locator) Locate(ctx context.Context, prefix source.Prefix, requestID string) (source.Ref, error) {
	if requestID == "" {
		return source.Ref{}, edaerrors.New(edaerrors.CodeUsage, "request id must not be empty")
	}

	objs, err := l.lister.List(ctx, prefix)
	if err != nil {
		return source.Ref{}, edaerrors.Fetch(err, prefix.String())
	}

	best, ok := Select(objs)
	if !ok {
		return source.Ref{}, edaerrors.NotFound(prefix.String()).
			WithContext("listed", len(objs))
	}

	l.logger.Debug("located object",
		"prefix", prefix.String(),
		"key", best.Key,
		"size", best.Size,
		"last_modified", best.LastModified,
		"candidates", len(objs))

	return source.Ref{
		Prefix:       prefix,
		Key:          best.Key,
		Size:         best.Size,
		LastModified: best.LastModified,
		RequestID:    requestID,
	}, nil
}

// Select applies the selection rule to a listing.
func Select(objs []object.ObjectInfo) (object.ObjectInfo, bool) {
	var best object.ObjectInfo
	found := false

	for _, o := range objs {
		if strings.HasSuffix(o.Key, "/") || o.Size == 0 {
			continue
		}
		if !found || newer(o, best) {
			best = o
			found = true
		}
	}
	return best, found
}

// newer orders candidates by modification time. Equal times prefer a CSV
// snapshot over a Parquet one over anything else, then the greater key.
func newer(a, b object.ObjectInfo) bool {
	if !a.LastModified.Equal(b.LastModified) {
		return a.LastModified.After(b.LastModified)
	}
	if ra, rb := rank(a.Key), rank(b.Key); ra != rb {
		return ra < rb
	}
	return a.Key > b.Key
}

func rank(key string) int {
	switch strings.ToLower(path.Ext(key)) {
	case ".csv":
		return 0
	case ".parquet":
		return 1
	default:
		return 2
	}
}
