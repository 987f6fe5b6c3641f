package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitEmptyEndpointReturnsNoOpProvider(t *testing.T) {
	shutdown, err := Init(context.Background(), "", true, "run-1")
	require.NoError(t, err)
	require.NotNil(t, shutdown)

	err = shutdown(context.Background())
	assert.NoError(t, err)
}

func TestTracerReturnsNonNil(t *testing.T) {
	shutdown, err := Init(context.Background(), "", true, "run-1")
	require.NoError(t, err)
	defer shutdown(context.Background())

	tracer := Tracer("probe")
	assert.NotNil(t, tracer)
}

func TestInitShutdownIdempotent(t *testing.T) {
	shutdown, err := Init(context.Background(), "", true, "run-1")
	require.NoError(t, err)

	assert.NoError(t, shutdown(context.Background()))
	assert.NoError(t, shutdown(context.Background()))
}
