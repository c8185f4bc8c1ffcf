package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"EDAPROC_CONFIG", "EDAPROC_SOURCE", "EDAPROC_BASE_URL", "EDAPROC_S3_ENDPOINT", "EDAPROC_REGION",
		"EDAPROC_OUTPUT_DIR", "EDAPROC_PROFILE_CONFIG", "EDAPROC_SAMPLE_SIZE", "EDAPROC_OTLP_ENDPOINT",
	} {
		t.Setenv(k, "")
	}
}

func writeGzip(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := gzip.NewWriter(f)
	_, err = zw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
}

func TestRun_LocalSourcePrintsReportPath(t *testing.T) {
	clearEnv(t)
	in := t.TempDir()
	out := t.TempDir()
	writeGzip(t, filepath.Join(in, "req-1", "result.gz"),
		`{"date local":"2023-01-01","value":1}`+"\n"+`{"date local":"2023-01-02","value":2}`+"\n")

	var stdout, stderr bytes.Buffer
	code := run([]string{"--source", "local", "--output-dir", out, filepath.Join(in, "req-1"), "req-1"}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())

	lines := strings.Split(strings.TrimSuffix(stdout.String(), "\n"), "\n")
	require.Len(t, lines, 1)
	report := lines[0]
	assert.True(t, filepath.IsAbs(report))
	assert.True(t, strings.HasPrefix(filepath.Base(report), "req-1-eda-"))

	outDir, err := filepath.Abs(filepath.Join(out, "req-1"))
	require.NoError(t, err)
	assert.Equal(t, outDir, filepath.Dir(report))
	for _, name := range []string{"req-1.csv", "req-1-data.parquet"} {
		_, err := os.Stat(filepath.Join(outDir, name))
		assert.NoError(t, err, name)
	}
}

func TestRun_VerboseKeepsStdoutClean(t *testing.T) {
	clearEnv(t)
	in := t.TempDir()
	writeGzip(t, filepath.Join(in, "req-2", "result.gz"), `{"v":1}`+"\n")

	var stdout, stderr bytes.Buffer
	code := run([]string{"-v", "--source", "local", "-o", t.TempDir(), filepath.Join(in, "req-2"), "req-2"}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())

	assert.Equal(t, 1, strings.Count(stdout.String(), "\n"))
	assert.Contains(t, stderr.String(), "PROFILE COMPLETE")
}

func TestRun_UsageErrors(t *testing.T) {
	clearEnv(t)
	tests := [][]string{
		{},
		{"s3://bucket/prefix/"},
		{"a", "b", "c"},
		{"s3://bucket/prefix/", ""},
		{"--no-such-flag", "a", "b"},
	}
	for _, args := range tests {
		var stdout, stderr bytes.Buffer
		code := run(args, &stdout, &stderr)
		assert.Equal(t, 1, code, "args %q", args)
		assert.Empty(t, stdout.String(), "args %q", args)
		assert.Contains(t, stderr.String(), "Usage:", "args %q", args)
	}
}

func TestRun_NotFoundFails(t *testing.T) {
	clearEnv(t)
	in := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(in, "req-3"), 0755))

	var stdout, stderr bytes.Buffer
	code := run([]string{"--source", "local", "-o", t.TempDir(), filepath.Join(in, "req-3"), "req-3"}, &stdout, &stderr)
	assert.Equal(t, 1, code)
	assert.Empty(t, stdout.String())
	assert.Contains(t, stderr.String(), "NotFound")
}

func TestRun_BadConfig(t *testing.T) {
	clearEnv(t)

	var stdout, stderr bytes.Buffer
	code := run([]string{"--config", filepath.Join(t.TempDir(), "missing.yaml"), "a/b/", "req"}, &stdout, &stderr)
	assert.Equal(t, 1, code)
	assert.Empty(t, stdout.String())
	assert.Contains(t, stderr.String(), "ConfigError")

	code = run([]string{"--source", "ftp", "a/b/", "req"}, &stdout, &stderr)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), `unknown source kind "ftp"`)
}
