package metadata

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryBackend_SetAndGet(t *testing.T) {
	mb := NewMemoryBackend()
	defer mb.Close()
	ctx := context.Background()

	err := mb.Set(ctx, "entity_type:municipality", []byte(`{"slug":"municipality"}`), time.Minute)
	require.NoError(t, err)

	value, err := mb.Get(ctx, "entity_type:municipality")
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"slug":"municipality"}`), value)
}

func TestMemoryBackend_Miss(t *testing.T) {
	mb := NewMemoryBackend()
	defer mb.Close()

	_, err := mb.Get(context.Background(), "entity_type:unknown")
	require.Error(t, err)
	assert.True(t, IsCacheMiss(err))
}

func TestMemoryBackend_Expiry(t *testing.T) {
	mb := NewMemoryBackend()
	defer mb.Close()
	ctx := context.Background()

	err := mb.Set(ctx, "facet_type:pain_point", []byte("v"), 10*time.Millisecond)
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)

	_, err = mb.Get(ctx, "facet_type:pain_point")
	assert.True(t, IsCacheMiss(err))
}

func TestMemoryBackend_Delete(t *testing.T) {
	mb := NewMemoryBackend()
	defer mb.Close()
	ctx := context.Background()

	require.NoError(t, mb.Set(ctx, "k", []byte("v"), time.Minute))
	require.NoError(t, mb.Delete(ctx, "k"))

	_, err := mb.Get(ctx, "k")
	assert.True(t, IsCacheMiss(err))
}

func TestMemoryBackend_Clear(t *testing.T) {
	mb := NewMemoryBackend()
	defer mb.Close()
	ctx := context.Background()

	require.NoError(t, mb.Set(ctx, "a", []byte("1"), time.Minute))
	require.NoError(t, mb.Set(ctx, "b", []byte("2"), time.Minute))
	require.NoError(t, mb.Clear(ctx))

	_, err := mb.Get(ctx, "a")
	assert.True(t, IsCacheMiss(err))
	_, err = mb.Get(ctx, "b")
	assert.True(t, IsCacheMiss(err))
}

func TestMemoryBackend_LastWriteWins(t *testing.T) {
	mb := NewMemoryBackend()
	defer mb.Close()
	ctx := context.Background()

	require.NoError(t, mb.Set(ctx, "k", []byte("stale"), time.Minute))
	require.NoError(t, mb.Set(ctx, "k", []byte("fresh"), time.Minute))

	value, err := mb.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("fresh"), value)
}

func TestMemoryBackend_CancelledContext(t *testing.T) {
	mb := NewMemoryBackend()
	defer mb.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := mb.Get(ctx, "k")
	assert.ErrorIs(t, err, context.Canceled)

	err = mb.Set(ctx, "k", []byte("v"), time.Minute)
	assert.ErrorIs(t, err, context.Canceled)
}
