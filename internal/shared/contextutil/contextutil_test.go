package contextutil

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestRequestScopedValues(t *testing.T) {
	ctx := WithRole(WithRequestID(context.Background(), "rid-1"), "admin")
	assert.Equal(t, "rid-1", GetRequestID(ctx))
	assert.Equal(t, "admin", GetRole(ctx))

	assert.Empty(t, GetRequestID(context.Background()))
	assert.Empty(t, GetRole(context.Background()))
}

func TestGetLogger_Fallbacks(t *testing.T) {
	assert.NotNil(t, GetLogger(context.Background(), nil))

	def := zap.NewNop()
	assert.Same(t, def, GetLogger(context.Background(), def))

	scoped := zap.NewNop()
	assert.Same(t, scoped, GetLogger(WithLogger(context.Background(), scoped), def))
}
