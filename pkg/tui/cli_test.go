package tui

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrintSummary_Success(t *testing.T) {
	var buf bytes.Buffer
	PrintSummary(&buf, &Summary{
		RequestID: "req-1",
		RunID:     "run-1",
		Object:    "metadata/req-1/out.gz",
		Bytes:     2048,
		Rows:      1500,
		Columns:   4,
		Files:     []string{"/tmp/req-1.csv"},
		Stages:    []StageTiming{{Stage: "locate", Duration: 12 * time.Millisecond}},
		Elapsed:   1500 * time.Millisecond,
	})

	out := buf.String()
	assert.Contains(t, out, "PROFILE COMPLETE")
	assert.Contains(t, out, "req-1")
	assert.Contains(t, out, "2.0 KB")
	assert.Contains(t, out, "1.5K")
	assert.Contains(t, out, "/tmp/req-1.csv")
	assert.Contains(t, out, "12ms")
	assert.Contains(t, out, "1.5s")
}

func TestPrintSummary_Failure(t *testing.T) {
	var buf bytes.Buffer
	PrintSummary(&buf, &Summary{
		RequestID:   "req-1",
		FailedStage: "decode",
		Err:         errors.New("boom"),
	})

	out := buf.String()
	assert.Contains(t, out, "FAILED IN decode")
	assert.Contains(t, out, "boom")
	assert.False(t, strings.Contains(out, "PROFILE COMPLETE"))
}

func TestShowProgress_WritesToGivenWriter(t *testing.T) {
	var buf bytes.Buffer
	bar := ShowProgress(&buf, 10, "fetch")
	_, err := io.Copy(bar, strings.NewReader("0123456789"))
	require.NoError(t, err)
	require.NoError(t, bar.Finish())
}

func TestFormatHelpers(t *testing.T) {
	assert.Equal(t, "512 B", formatBytes(512))
	assert.Equal(t, "1.0 MB", formatBytes(1<<20))
	assert.Equal(t, "999", formatNumber(999))
	assert.Equal(t, "2.5M", formatNumber(2500000))
	assert.Equal(t, "2m5s", formatDuration(125*time.Second))
}
