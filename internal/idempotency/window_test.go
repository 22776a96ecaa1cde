package idempotency

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRemember(t *testing.T) {
	ctx := context.Background()
	w := NewMemory(4)

	seen, err := w.Seen(ctx, "op-1")
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, w.Remember(ctx, "op-1"))
	require.NoError(t, w.Remember(ctx, "op-1"))
	seen, err = w.Seen(ctx, "op-1")
	require.NoError(t, err)
	assert.True(t, seen)
	assert.Equal(t, 1, w.Len())
}

func TestMemoryEvictsOldest(t *testing.T) {
	ctx := context.Background()
	w := NewMemory(3)
	for i := 0; i < 5; i++ {
		require.NoError(t, w.Remember(ctx, fmt.Sprintf("op-%d", i)))
	}

	assert.Equal(t, 3, w.Len())
	for i, want := range []bool{false, false, true, true, true} {
		seen, err := w.Seen(ctx, fmt.Sprintf("op-%d", i))
		require.NoError(t, err)
		assert.Equal(t, want, seen, "op-%d", i)
	}
}

func TestMemoryIDsOldestFirst(t *testing.T) {
	ctx := context.Background()
	w := NewMemory(3)
	assert.Empty(t, w.IDs())
	for i := 0; i < 4; i++ {
		require.NoError(t, w.Remember(ctx, fmt.Sprintf("op-%d", i)))
	}
	assert.Equal(t, []string{"op-1", "op-2", "op-3"}, w.IDs())
}
