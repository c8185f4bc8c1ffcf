package s3

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const listPage = `<?xml version="1.0" encoding="UTF-8"?>
<ListBucketResult xmlns="http://s3.amazonaws.com/doc/2006-03-01/">
  <Name>metadata</Name>
  <Prefix>req-1/</Prefix>
  <KeyCount>1</KeyCount>
  <MaxKeys>1000</MaxKeys>
  <IsTruncated>%t</IsTruncated>
  %s
  <Contents>
    <Key>%s</Key>
    <LastModified>%s</LastModified>
    <ETag>"etag"</ETag>
    <Size>%d</Size>
    <StorageClass>STANDARD</StorageClass>
  </Contents>
</ListBucketResult>`

// fakeS3 serves a two-page listing and object bodies in path style.
func fakeS3(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		w.Header().Set("Content-Type", "application/xml")

		switch {
		case q.Get("list-type") == "2" && q.Get("continuation-token") == "":
			fmt.Fprintf(w, listPage, true, "<NextContinuationToken>page-2</NextContinuationToken>",
				"req-1/a.gz", "2024-01-01T00:00:00.000Z", 3)
		case q.Get("list-type") == "2":
			fmt.Fprintf(w, listPage, false, "", "req-1/b.gz", "2024-01-02T00:00:00.000Z", 5)
		case r.URL.Path == "/metadata/req-1/b.gz":
			w.Header().Set("Content-Type", "application/octet-stream")
			w.Header().Set("Content-Length", "5")
			io.WriteString(w, "hello")
		default:
			w.WriteHeader(http.StatusNotFound)
			io.WriteString(w, `<?xml version="1.0"?><Error><Code>NoSuchKey</Code><Message>missing</Message></Error>`)
		}
	}))
}

func newTestClient(t *testing.T, endpoint string) *Client {
	t.Helper()
	t.Setenv("AWS_PROFILE", "")
	t.Setenv("AWS_CONFIG_FILE", "/nonexistent")
	t.Setenv("AWS_SHARED_CREDENTIALS_FILE", "/nonexistent")

	c, err := NewClient(context.Background(), Config{
		Region:          "us-east-1",
		Endpoint:        endpoint,
		UsePathStyle:    true,
		AccessKeyID:     "test",
		SecretAccessKey: "test",
	})
	require.NoError(t, err)
	return c
}

func TestClient_ListFollowsPages(t *testing.T) {
	srv := fakeS3(t)
	defer srv.Close()
	c := newTestClient(t, srv.URL)

	objs, err := c.List(context.Background(), "metadata", "req-1/")
	require.NoError(t, err)
	require.Len(t, objs, 2)

	assert.Equal(t, "req-1/a.gz", objs[0].Key)
	assert.Equal(t, "req-1/b.gz", objs[1].Key)
	assert.Equal(t, int64(5), objs[1].Size)
	assert.True(t, objs[1].LastModified.Equal(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)))
}

func TestClient_Open(t *testing.T) {
	srv := fakeS3(t)
	defer srv.Close()
	c := newTestClient(t, srv.URL)

	rc, size, err := c.Open(context.Background(), "metadata", "req-1/b.gz")
	require.NoError(t, err)
	defer rc.Close()

	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
	assert.Equal(t, int64(5), size)
}

func TestClient_OpenMissing(t *testing.T) {
	srv := fakeS3(t)
	defer srv.Close()
	c := newTestClient(t, srv.URL)

	_, _, err := c.Open(context.Background(), "metadata", "req-1/nope.gz")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "metadata/req-1/nope.gz"))
}
