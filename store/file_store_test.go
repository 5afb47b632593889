package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStoreSetGetRoundTrip(t *testing.T) {
	fs, err := NewFileStore(t.TempDir(), nil)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, fs.Set(ctx, ProgressKey("abc"), []byte(`{"status":"running"}`), ProgressTTL))

	got, err := fs.Get(ctx, ProgressKey("abc"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"running"}`, string(got))
}

func TestFileStoreGetMissingReturnsNotFound(t *testing.T) {
	fs, err := NewFileStore(t.TempDir(), nil)
	require.NoError(t, err)

	_, err = fs.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFileStoreExpiredKeyReturnsNotFound(t *testing.T) {
	fs, err := NewFileStore(t.TempDir(), nil)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, fs.Set(ctx, "k", []byte("v"), 1*time.Millisecond))
	time.Sleep(5 * time.Millisecond)

	_, err = fs.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFileStoreAppendAndRange(t *testing.T) {
	fs, err := NewFileStore(t.TempDir(), nil)
	require.NoError(t, err)

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, fs.Append(ctx, UsageLogStream, []byte(string(rune('a'+i)))))
	}

	all, err := fs.Range(ctx, UsageLogStream, 0)
	require.NoError(t, err)
	assert.Len(t, all, 5)

	last2, err := fs.Range(ctx, UsageLogStream, 2)
	require.NoError(t, err)
	assert.Len(t, last2, 2)
	assert.Equal(t, all[3:], last2)
}

func TestFileStoreKeysPrefixScan(t *testing.T) {
	fs, err := NewFileStore(t.TempDir(), nil)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, fs.Set(ctx, ProgressKey("a1"), []byte("{}"), ProgressTTL))
	require.NoError(t, fs.Set(ctx, ProgressKey("a2"), []byte("{}"), ProgressTTL))
	require.NoError(t, fs.Set(ctx, AnalysisKey("a1"), []byte("{}"), AnalysisTTL))

	keys, err := fs.Keys(ctx, ProgressKeyPrefix)
	require.NoError(t, err)
	assert.Len(t, keys, 2)
}

func TestFallbackStoreFallsBackOnPrimaryFailure(t *testing.T) {
	fs, err := NewFileStore(t.TempDir(), nil)
	require.NoError(t, err)
	fallback := NewFallbackStore(&alwaysFailStore{}, fs, nil)

	ctx := context.Background()
	require.NoError(t, fallback.Set(ctx, "k", []byte("v"), 0))

	got, err := fallback.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", string(got))
}

type alwaysFailStore struct{}

func (alwaysFailStore) Get(ctx context.Context, key string) ([]byte, error) { return nil, ErrNotFound }
func (alwaysFailStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return assertErr
}
func (alwaysFailStore) Del(ctx context.Context, key string) error { return assertErr }
func (alwaysFailStore) Append(ctx context.Context, streamKey string, record []byte) error {
	return assertErr
}
func (alwaysFailStore) Range(ctx context.Context, streamKey string, limit int64) ([][]byte, error) {
	return nil, assertErr
}
func (alwaysFailStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	return nil, assertErr
}

var assertErr = assertError("primary unavailable")

type assertError string

func (e assertError) Error() string { return string(e) }
