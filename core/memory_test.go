package core

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryStoreImplementsMemory(t *testing.T) {
	var m Memory = NewInMemoryStore()
	ctx := context.Background()

	exists, err := m.Exists(ctx, "session:abc")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, m.Set(ctx, "session:abc", "active", 0))

	exists, err = m.Exists(ctx, "session:abc")
	require.NoError(t, err)
	assert.True(t, exists)

	value, err := m.Get(ctx, "session:abc")
	require.NoError(t, err)
	assert.Equal(t, "active", value)

	require.NoError(t, m.Delete(ctx, "session:abc"))

	value, err = m.Get(ctx, "session:abc")
	require.NoError(t, err)
	assert.Equal(t, "", value)
}
