package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestSetup_NoEndpointIsNoop(t *testing.T) {
	tel, err := Setup(context.Background(), DefaultOTLPConfig("edaproc"))
	require.NoError(t, err)

	ctx, span := tel.StartRun(context.Background(), "run", "req")
	assert.False(t, span.SpanContext().IsValid())
	_, end := tel.StartStage(ctx, "locate")
	end(nil)
	span.End()
	assert.NoError(t, tel.Shutdown(context.Background()))
}

func TestStages_Recorded(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	tel := NewWithProvider(tp, "edaproc")

	ctx, run := tel.StartRun(context.Background(), "run-1", "req-1")
	_, end := tel.StartStage(ctx, "locate", attribute.String("prefix", "s3://b/p/"))
	end(nil)
	_, end = tel.StartStage(ctx, "decode")
	end(errors.New("bad line"))
	End(run, nil)
	require.NoError(t, tel.Shutdown(context.Background()))

	spans := rec.Ended()
	require.Len(t, spans, 3)

	assert.Equal(t, "edaproc.locate", spans[0].Name())
	assert.Equal(t, codes.Ok, spans[0].Status().Code)
	assert.Equal(t, run.SpanContext().TraceID(), spans[0].SpanContext().TraceID())

	assert.Equal(t, "edaproc.decode", spans[1].Name())
	assert.Equal(t, codes.Error, spans[1].Status().Code)
	assert.Equal(t, "bad line", spans[1].Status().Description)

	assert.Equal(t, "edaproc.run", spans[2].Name())
	assert.Contains(t, spans[2].Attributes(), attribute.String("request.id", "req-1"))
}
