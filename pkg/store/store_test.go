package store_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/htrace/htraced/pkg/index"
	"github.com/htrace/htraced/pkg/store"
)

func openTestStore(t *testing.T) *store.ShardStore {
	t.Helper()
	s, err := store.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestGetMissingKeyReturnsNil(t *testing.T) {
	s := openTestStore(t)
	v, err := s.Get([]byte("missing"))
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestPutBatchThenGet(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.PutBatch([]index.Entry{
		{Key: []byte("a"), Value: []byte("1")},
		{Key: []byte("b"), Value: []byte("2")},
	}))

	v, err := s.Get([]byte("a"))
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), v)
}

func TestPutBatchDeleteMarkerRemovesKey(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.PutBatch([]index.Entry{{Key: []byte("a"), Value: []byte("1")}}))
	require.NoError(t, s.PutBatch([]index.Entry{{Key: []byte("a"), Delete: true}}))

	v, err := s.Get([]byte("a"))
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestRangeScanForwardAndReverse(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.PutBatch([]index.Entry{
		{Key: []byte("k1"), Value: []byte("1")},
		{Key: []byte("k2"), Value: []byte("2")},
		{Key: []byte("k3"), Value: []byte("3")},
	}))

	it, err := s.RangeScan([]byte("k1"), []byte("k3"), false)
	require.NoError(t, err)
	var forward []string
	for it.Next() {
		forward = append(forward, string(it.Key()))
	}
	require.NoError(t, it.Close())
	assert.Equal(t, []string{"k1", "k2"}, forward)

	it, err = s.RangeScan(nil, nil, true)
	require.NoError(t, err)
	var reverse []string
	for it.Next() {
		reverse = append(reverse, string(it.Key()))
	}
	require.NoError(t, it.Close())
	assert.Equal(t, []string{"k3", "k2", "k1"}, reverse)
}

func TestOpenSameDirTwiceFailsWithLockError(t *testing.T) {
	dir := t.TempDir()
	first, err := store.Open(dir)
	require.NoError(t, err)
	defer first.Close()

	_, err = store.Open(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already held by process")
}
