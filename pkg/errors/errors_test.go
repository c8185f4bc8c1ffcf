package errors

import (
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_Message(t *testing.T) {
	err := Parse(1, io.ErrUnexpectedEOF)

	assert.Equal(t, "ParseError [E202]: malformed record (line=1): unexpected EOF", err.Error())
}

func TestError_ContextSorted(t *testing.T) {
	err := TemporalParse("date local", 3, "yesterday")

	assert.Contains(t, err.Error(), "(column=date local, row=3, value=yesterday)")
}

func TestError_IsAndUnwrap(t *testing.T) {
	wrapped := fmt.Errorf("stage locate: %w", NotFound("s3://metadata/req-1/"))

	assert.True(t, IsCode(wrapped, CodeNotFound))
	assert.False(t, IsCode(wrapped, CodeFetch))
	assert.Equal(t, CodeNotFound, GetCode(wrapped))
	assert.ErrorIs(t, wrapped, New(CodeNotFound, ""))

	cause := io.ErrClosedPipe
	assert.ErrorIs(t, Fetch(cause, "http://x"), cause)
}

func TestWrap_Nil(t *testing.T) {
	require.Nil(t, Wrap(nil, CodeWrite, "ignored"))
	assert.Nil(t, Wrap(nil, CodeConfig, "ignored").WithContext("path", "x"))

	assert.NotPanics(t, func() {
		assert.Nil(t, Fetch(nil, "http://x"))
		assert.Nil(t, Write(nil, "/tmp/x"))
	})
}

func TestGetCode_Foreign(t *testing.T) {
	assert.Equal(t, CodeUnknown, GetCode(io.EOF))
	assert.Equal(t, "UnknownError", Code("nope").Kind())
}
