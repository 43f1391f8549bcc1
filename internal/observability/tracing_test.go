package observability

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTracing(t *testing.T) {
	ctx := context.Background()
	var out bytes.Buffer

	tracing, err := NewTracing(ctx, "", &out)
	require.NoError(t, err)

	_, span := tracing.Tracer().Start(ctx, "controller.UserController.UserList()")
	span.End()

	require.NoError(t, tracing.Shutdown(ctx))
	assert.Contains(t, out.String(), `"Name":"controller.UserController.UserList()"`)
	assert.Contains(t, out.String(), DefaultServiceName)
}
