package shared

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestSetAndGetTraceID(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, GetTraceID(ctx))

	withTrace := SetTraceID(ctx)
	traceID := GetTraceID(withTrace)
	assert.Len(t, traceID, TraceIDLength)
	assert.NotContains(t, traceID, "-")

	assert.Empty(t, GetTraceID(ctx), "parent context must be unchanged")
}

func TestTraceIDsAreUnique(t *testing.T) {
	seen := make(map[string]struct{}, 100)
	for i := 0; i < 100; i++ {
		id := generateTraceID()
		_, dup := seen[id]
		assert.False(t, dup, "duplicate trace ID %s", id)
		seen[id] = struct{}{}
	}
}

func TestGetTraceIDWrongType(t *testing.T) {
	ctx := context.WithValue(context.Background(), TraceIDKey, 123)
	assert.Empty(t, GetTraceID(ctx))
}

func TestUserIDFromContext(t *testing.T) {
	t.Run("present", func(t *testing.T) {
		id := uuid.New()
		got, ok := UserIDFromContext(WithUserID(context.Background(), id))
		assert.True(t, ok)
		assert.Equal(t, id, got)
	})

	t.Run("missing", func(t *testing.T) {
		_, ok := UserIDFromContext(context.Background())
		assert.False(t, ok)
	})

	t.Run("nil uuid", func(t *testing.T) {
		_, ok := UserIDFromContext(WithUserID(context.Background(), uuid.Nil))
		assert.False(t, ok)
	})

	t.Run("wrong type", func(t *testing.T) {
		ctx := context.WithValue(context.Background(), UserIDContextKey, "not-a-uuid")
		_, ok := UserIDFromContext(ctx)
		assert.False(t, ok)
	})
}
