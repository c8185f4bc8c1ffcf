package locate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	edaerrors "github.com/visilake/edaproc/pkg/errors"
	"github.com/visilake/edaproc/pkg/source"
	"github.com/visilake/edaproc/pkg/storage/object"
)

type fakeLister struct {
	objs []object.ObjectInfo
	err  error
	seen source.Prefix
}

func (f *fakeLister) List(ctx context.Context, p source.Prefix) ([]object.ObjectInfo, error) {
	f.seen = p
	return f.objs, f.err
}

var (
	t0     = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	prefix = source.Prefix{Bucket: "metadata", Path: "test-jobID-781/"}
)

func TestLocate_NewestWins(t *testing.T) {
	l := &fakeLister{objs: []object.ObjectInfo{
		{Key: "test-jobID-781/new.gz", Size: 10, LastModified: t0.Add(time.Hour)},
		{Key: "test-jobID-781/old.gz", Size: 10, LastModified: t0},
	}}

	ref, err := New(l, nil).Locate(context.Background(), prefix, "test-jobID-781")
	require.NoError(t, err)

	assert.Equal(t, "test-jobID-781/new.gz", ref.Key)
	assert.Equal(t, "test-jobID-781", ref.RequestID)
	assert.Equal(t, prefix, ref.Prefix)
	assert.Equal(t, prefix, l.seen)
}

func TestLocate_OrderIndependent(t *testing.T) {
	objs := []object.ObjectInfo{
		{Key: "p/a.gz", Size: 1, LastModified: t0},
		{Key: "p/c.gz", Size: 1, LastModified: t0},
		{Key: "p/b.gz", Size: 1, LastModified: t0},
	}
	reversed := []object.ObjectInfo{objs[2], objs[1], objs[0]}

	a, ok := Select(objs)
	require.True(t, ok)
	b, ok := Select(reversed)
	require.True(t, ok)

	assert.Equal(t, "p/c.gz", a.Key)
	assert.Equal(t, a, b)
}

func TestSelect_EqualTimesPreferCSVThenParquet(t *testing.T) {
	objs := []object.ObjectInfo{
		{Key: "out/req-1-data.parquet", Size: 5, LastModified: t0},
		{Key: "out/zzz.gz", Size: 5, LastModified: t0},
		{Key: "out/req-1.CSV", Size: 5, LastModified: t0},
	}
	best, ok := Select(objs)
	require.True(t, ok)
	assert.Equal(t, "out/req-1.CSV", best.Key)

	best, ok = Select(objs[:2])
	require.True(t, ok)
	assert.Equal(t, "out/req-1-data.parquet", best.Key)

	// a newer object still wins regardless of its extension
	objs = append(objs, object.ObjectInfo{Key: "out/late.gz", Size: 5, LastModified: t0.Add(time.Second)})
	best, ok = Select(objs)
	require.True(t, ok)
	assert.Equal(t, "out/late.gz", best.Key)
}

func TestLocate_SkipsMarkers(t *testing.T) {
	l := &fakeLister{objs: []object.ObjectInfo{
		{Key: "p/", Size: 0, LastModified: t0.Add(2 * time.Hour)},
		{Key: "p/_SUCCESS", Size: 0, LastModified: t0.Add(time.Hour)},
		{Key: "p/data.gz", Size: 42, LastModified: t0},
	}}

	ref, err := New(l, nil).Locate(context.Background(), prefix, "p")
	require.NoError(t, err)
	assert.Equal(t, "p/data.gz", ref.Key)
	assert.Equal(t, int64(42), ref.Size)
}

func TestLocate_Empty(t *testing.T) {
	_, err := New(&fakeLister{}, nil).Locate(context.Background(), prefix, "req")
	require.Error(t, err)
	assert.True(t, edaerrors.IsCode(err, edaerrors.CodeNotFound))
	assert.Contains(t, err.Error(), "s3://metadata/test-jobID-781/")
}

func TestLocate_OnlyMarkers(t *testing.T) {
	l := &fakeLister{objs: []object.ObjectInfo{{Key: "p/", LastModified: t0}}}
	_, err := New(l, nil).Locate(context.Background(), prefix, "req")
	assert.True(t, edaerrors.IsCode(err, edaerrors.CodeNotFound))
}

func TestLocate_ListingFailure(t *testing.T) {
	boom := errors.New("connection refused")
	_, err := New(&fakeLister{err: boom}, nil).Locate(context.Background(), prefix, "req")
	require.Error(t, err)
	assert.True(t, edaerrors.IsCode(err, edaerrors.CodeFetch))
	assert.ErrorIs(t, err, boom)
}

func TestLocate_EmptyRequestID(t *testing.T) {
	_, err := New(&fakeLister{}, nil).Locate(context.Background(), prefix, "")
	assert.True(t, edaerrors.IsCode(err, edaerrors.CodeUsage))
}
