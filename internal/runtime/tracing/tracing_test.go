package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func TestStartWithNilContext(t *testing.T) {
	//nolint:staticcheck // nil context is accepted on purpose
	ctx, span := Start(nil, "job", AttrClass.String("Report"))
	require.NotNil(t, ctx)
	require.NotNil(t, span)
	assert.False(t, span.IsRecording())
	assert.False(t, trace.SpanFromContext(ctx).IsRecording())
	End(span, nil)
}

func TestEndRecordsError(t *testing.T) {
	_, span := Start(context.Background(), "job")
	assert.NotPanics(t, func() { End(span, errors.New("boom")) })
}
