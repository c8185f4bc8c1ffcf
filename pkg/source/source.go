// Package source provides the strategies for listing and fetching the
// upstream result objects: an S3-compatible store (listing and GetObject), an
// HTTP endpoint fronting the same bucket, and a local directory.
package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/visilake/edaproc/pkg/config"
	edaerrors "github.com/visilake/edaproc/pkg/errors"
	"github.com/visilake/edaproc/pkg/storage/object"
	"github.com/visilake/edaproc/pkg/storage/s3"
)

// Prefix identifies where result objects for a request live.
type Prefix struct {
	Bucket string // empty for local directories
	Path   string
}

// String renders the prefix the way it was given on the command line.
func (p Prefix) String() string {
	if p.Bucket == "" {
		return p.Path
	}
	return "s3://" + p.Bucket + "/" + p.Path
}

// Ref is a located object.
type Ref struct {
	Prefix       Prefix
	Key          string
	Size         int64
	LastModified time.Time
	RequestID    string
}

// Name returns the final path segment of the key.
func (r Ref) Name() string {
	return path.Base(r.Key)
}

// Location renders the object for diagnostics.
func (r Ref) Location() string {
	if r.Prefix.Bucket == "" {
		return r.Key
	}
	return "s3://" + r.Prefix.Bucket + "/" + r.Key
}

// Lister enumerates the objects under a prefix.
type Lister interface {
	List(ctx context.Context, p Prefix) ([]object.ObjectInfo, error)
}

// Fetcher opens a located object. The returned size is -1 when unknown.
type Fetcher interface {
	Fetch(ctx context.Context, ref Ref) (io.ReadCloser, int64, error)
}

// ParsePrefix interprets a remote prefix argument. Object-store prefixes may
// be written as s3://bucket/path/ or bucket/path/; a path without a trailing
// slash is treated as a directory. Local prefixes are directory paths taken
// as-is. defaultBucket fills in a prefix that names no bucket.
func ParsePrefix(raw, kind, defaultBucket string) (Prefix, error) {
	if raw == "" {
		return Prefix{}, edaerrors.New(edaerrors.CodeUsage, "remote prefix must not be empty")
	}
	if kind == config.SourceLocal {
		return Prefix{Path: strings.TrimPrefix(raw, "file://")}, nil
	}

	rest := strings.TrimPrefix(raw, "s3://")
	bucket, p, _ := strings.Cut(rest, "/")
	if bucket == "" {
		bucket = defaultBucket
	}
	if bucket == "" {
		return Prefix{}, edaerrors.Newf(edaerrors.CodeUsage, "remote prefix %q names no bucket", raw)
	}
	if p != "" && !strings.HasSuffix(p, "/") {
		p += "/"
	}
	return Prefix{Bucket: bucket, Path: p}, nil
}

// Set is the lister/fetcher pair chosen for a run.
type Set struct {
	Kind    string
	Lister  Lister
	Fetcher Fetcher
}

// New builds the strategies for the configured source kind.
func New(ctx context.Context, cfg config.SourceConfig) (*Set, error) {
	switch cfg.Kind {
	case config.SourceHTTP, config.SourceS3:
		client, err := s3.NewClient(ctx, s3.Config{
			Region:          cfg.Region,
			Endpoint:        cfg.Endpoint,
			UsePathStyle:    cfg.UsePathStyle,
			AccessKeyID:     cfg.AccessKeyID,
			SecretAccessKey: cfg.SecretAccessKey,
		})
		if err != nil {
			return nil, edaerrors.Wrap(err, edaerrors.CodeConfig, "failed to create s3 client")
		}
		store := NewS3(client)
		if cfg.Kind == config.SourceS3 {
			return &Set{Kind: cfg.Kind, Lister: store, Fetcher: store}, nil
		}
		return &Set{
			Kind:    cfg.Kind,
			Lister:  store,
			Fetcher: NewHTTP(cfg.BaseURL, &http.Client{Timeout: cfg.HTTPTimeout}),
		}, nil

	case config.SourceLocal:
		ls, err := object.NewLocalStorage(cfg.LocalRoot)
		if err != nil {
			return nil, edaerrors.Wrap(err, edaerrors.CodeConfig, "failed to open local source")
		}
		store := FromStore(ls)
		return &Set{Kind: cfg.Kind, Lister: store, Fetcher: store}, nil

	default:
		return nil, edaerrors.Newf(edaerrors.CodeConfig, "unknown source kind %q", cfg.Kind)
	}
}

// S3 lists and fetches through the S3 API.
type S3 struct {
	client *s3.Client
}

// NewS3 wraps an S3 client.
func NewS3(client *s3.Client) *S3 {
	return &S3{client: client}
}

// List lists every object under the prefix.
func (s *S3) List(ctx context.Context, p Prefix) ([]object.ObjectInfo, error) {
	return s.client.List(ctx, p.Bucket, p.Path)
}

// Fetch opens the object with GetObject.
func (s *S3) Fetch(ctx context.Context, ref Ref) (io.ReadCloser, int64, error) {
	return s.client.Open(ctx, ref.Prefix.Bucket, ref.Key)
}

// ObjectStore is the listing and read surface of the object package stores.
type ObjectStore interface {
	List(ctx context.Context, prefix string) ([]object.ObjectInfo, error)
	Get(ctx context.Context, key string) (io.ReadCloser, int64, error)
}

// Store adapts an ObjectStore to Lister and Fetcher.
type Store struct {
	store ObjectStore
}

// FromStore wraps store.
func FromStore(store ObjectStore) *Store {
	return &Store{store: store}
}

// List lists the prefix path in the store.
func (s *Store) List(ctx context.Context, p Prefix) ([]object.ObjectInfo, error) {
	return s.store.List(ctx, p.Path)
}

// Fetch opens the object by key.
func (s *Store) Fetch(ctx context.Context, ref Ref) (io.ReadCloser, int64, error) {
	rc, size, err := s.store.Get(ctx, ref.Key)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open %s: %w", ref.Key, err)
	}
	return rc, size, nil
}
