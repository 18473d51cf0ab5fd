package cache

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stocklens/stocklens-backend/logger"
)

func init() {
	logger.IsTest = true
}

func TestEmbeddingCachePutGetRoundTrip(t *testing.T) {
	client, mock := redismock.NewClientMock()
	c := NewEmbeddingCache(client, time.Hour)

	vec := []float32{0.1, 0.2, 0.3}
	raw, err := json.Marshal(vec)
	require.NoError(t, err)

	key := Key("โค้ก 325 มล.")
	mock.ExpectSetEx(key, string(raw), time.Hour).SetVal("OK")
	mock.ExpectGet(key).SetVal(string(raw))

	require.NoError(t, c.Put(context.Background(), "โค้ก 325 มล.", vec))

	got, ok := c.Get(context.Background(), "โค้ก 325 มล.")
	assert.True(t, ok)
	assert.Equal(t, vec, got)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEmbeddingCacheMiss(t *testing.T) {
	client, mock := redismock.NewClientMock()
	c := NewEmbeddingCache(client, time.Hour)

	mock.ExpectGet(Key("unknown")).RedisNil()

	got, ok := c.Get(context.Background(), "unknown")
	assert.False(t, ok)
	assert.Nil(t, got)
}

func TestEmbeddingCacheCorruptEntryIsAMiss(t *testing.T) {
	client, mock := redismock.NewClientMock()
	c := NewEmbeddingCache(client, time.Hour)

	mock.ExpectGet(Key("bad")).SetVal("{not json")

	_, ok := c.Get(context.Background(), "bad")
	assert.False(t, ok)
}

func TestEmbeddingCacheKeyNormalization(t *testing.T) {
	// Spelling variants of the same text share one cache entry.
	assert.Equal(t, Key("โค้ก  325  มล."), Key("โค๊ก 325 มล"))
}

func TestEmbeddingCacheDefaultTTL(t *testing.T) {
	client, _ := redismock.NewClientMock()
	c := NewEmbeddingCache(client, 0)
	assert.Equal(t, DefaultTTL, c.ttl)
}
