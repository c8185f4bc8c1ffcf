package source

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/visilake/edaproc/pkg/config"
	edaerrors "github.com/visilake/edaproc/pkg/errors"
	"github.com/visilake/edaproc/pkg/storage/object"
)

func TestParsePrefix(t *testing.T) {
	tests := []struct {
		raw    string
		kind   string
		bucket string
		want   Prefix
	}{
		{"s3://metadata/test-jobID-781/", config.SourceHTTP, "", Prefix{Bucket: "metadata", Path: "test-jobID-781/"}},
		{"s3://metadata/test-jobID-781", config.SourceS3, "", Prefix{Bucket: "metadata", Path: "test-jobID-781/"}},
		{"metadata/a/b/", config.SourceS3, "", Prefix{Bucket: "metadata", Path: "a/b/"}},
		{"metadata", config.SourceS3, "", Prefix{Bucket: "metadata"}},
		{"/req-1/", config.SourceS3, "fallback", Prefix{Bucket: "fallback", Path: "req-1/"}},
		{"./data/req-1", config.SourceLocal, "", Prefix{Path: "./data/req-1"}},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParsePrefix(tt.raw, tt.kind, tt.bucket)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParsePrefix_Invalid(t *testing.T) {
	_, err := ParsePrefix("", config.SourceS3, "")
	assert.True(t, edaerrors.IsCode(err, edaerrors.CodeUsage))

	_, err = ParsePrefix("s3:///req/", config.SourceS3, "")
	assert.True(t, edaerrors.IsCode(err, edaerrors.CodeUsage))
}

func TestPrefixAndRefRendering(t *testing.T) {
	p := Prefix{Bucket: "metadata", Path: "req-1/"}
	ref := Ref{Prefix: p, Key: "req-1/abc.gz", RequestID: "req-1"}

	assert.Equal(t, "s3://metadata/req-1/", p.String())
	assert.Equal(t, "abc.gz", ref.Name())
	assert.Equal(t, "s3://metadata/req-1/abc.gz", ref.Location())
}

func TestHTTP_Fetch(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		if r.URL.Path == "/metadata/req-1/abc.gz" {
			io.WriteString(w, "payload")
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	h := NewHTTP(srv.URL+"/metadata/", nil)
	ref := Ref{Key: "req-1/abc.gz", RequestID: "req-1"}

	rc, size, err := h.Fetch(context.Background(), ref)
	require.NoError(t, err)
	defer rc.Close()
	data, _ := io.ReadAll(rc)

	assert.Equal(t, "/metadata/req-1/abc.gz", gotPath)
	assert.Equal(t, "payload", string(data))
	assert.Equal(t, int64(7), size)
}

func TestHTTP_FetchNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	h := NewHTTP(srv.URL, srv.Client())
	_, _, err := h.Fetch(context.Background(), Ref{Key: "k/x.gz", RequestID: "k"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}

func TestHTTP_URLEscapes(t *testing.T) {
	h := NewHTTP("http://host/metadata", nil)
	ref := Ref{Key: "req 1/a b.gz", RequestID: "req 1"}
	assert.Equal(t, "http://host/metadata/req%201/a%20b.gz", h.URL(ref))
}

func TestStore_MemoryListAndFetch(t *testing.T) {
	mem := object.NewMemoryStorage()
	mem.PutAt("req-1/a.gz", []byte("abc"), time.Now())
	mem.PutAt("req-2/b.gz", []byte("zzz"), time.Now())

	s := FromStore(mem)
	objs, err := s.List(context.Background(), Prefix{Path: "req-1/"})
	require.NoError(t, err)
	require.Len(t, objs, 1)

	rc, size, err := s.Fetch(context.Background(), Ref{Key: objs[0].Key})
	require.NoError(t, err)
	defer rc.Close()
	assert.Equal(t, int64(3), size)

	_, _, err = s.Fetch(context.Background(), Ref{Key: "req-1/missing.gz"})
	require.Error(t, err)
}

func TestNew_Local(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "out.csv"), []byte("a\n1\n"), 0644))

	set, err := New(context.Background(), config.SourceConfig{Kind: config.SourceLocal, LocalRoot: "."})
	require.NoError(t, err)
	assert.Equal(t, config.SourceLocal, set.Kind)

	objs, err := set.Lister.List(context.Background(), Prefix{Path: dir})
	require.NoError(t, err)
	require.Len(t, objs, 1)
	assert.Equal(t, "out.csv", filepath.Base(objs[0].Key))
}

const listing = `<?xml version="1.0" encoding="UTF-8"?>
<ListBucketResult xmlns="http://s3.amazonaws.com/doc/2006-03-01/">
  <Name>metadata</Name>
  <Prefix>req-1/</Prefix>
  <KeyCount>1</KeyCount>
  <MaxKeys>1000</MaxKeys>
  <IsTruncated>false</IsTruncated>
  <Contents>
    <Key>req-1/abc.gz</Key>
    <LastModified>2024-01-01T00:00:00.000Z</LastModified>
    <ETag>"etag"</ETag>
    <Size>7</Size>
    <StorageClass>STANDARD</StorageClass>
  </Contents>
</ListBucketResult>`

func TestNew_HTTPKindListsWithS3AndFetchesOverHTTP(t *testing.T) {
	t.Setenv("AWS_PROFILE", "")
	t.Setenv("AWS_CONFIG_FILE", "/nonexistent")
	t.Setenv("AWS_SHARED_CREDENTIALS_FILE", "/nonexistent")

	var fetched []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Query().Get("list-type") == "2":
			w.Header().Set("Content-Type", "application/xml")
			io.WriteString(w, listing)
		case r.URL.Path == "/files/req-1/abc.gz":
			fetched = append(fetched, r.URL.Path)
			io.WriteString(w, "payload")
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	set, err := New(context.Background(), config.SourceConfig{
		Kind:            config.SourceHTTP,
		BaseURL:         srv.URL + "/files",
		Endpoint:        srv.URL,
		Region:          "us-east-1",
		UsePathStyle:    true,
		AccessKeyID:     "test",
		SecretAccessKey: "test",
	})
	require.NoError(t, err)
	assert.IsType(t, &S3{}, set.Lister)
	require.IsType(t, &HTTP{}, set.Fetcher)

	prefix := Prefix{Bucket: "metadata", Path: "req-1/"}
	objs, err := set.Lister.List(context.Background(), prefix)
	require.NoError(t, err)
	require.Len(t, objs, 1)

	ref := Ref{Prefix: prefix, Key: objs[0].Key, RequestID: "req-1"}
	assert.Equal(t, srv.URL+"/files/req-1/abc.gz", set.Fetcher.(*HTTP).URL(ref))

	rc, _, err := set.Fetcher.Fetch(context.Background(), ref)
	require.NoError(t, err)
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	assert.Equal(t, "payload", string(data))
	assert.Equal(t, []string{"/files/req-1/abc.gz"}, fetched)
}

func TestNew_UnknownKind(t *testing.T) {
	_, err := New(context.Background(), config.SourceConfig{Kind: "ftp"})
	assert.True(t, edaerrors.IsCode(err, edaerrors.CodeConfig))
}
