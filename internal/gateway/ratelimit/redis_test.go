package ratelimit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRedisBucketStoreParsesValidURL(t *testing.T) {
	store, err := NewRedisBucketStore("redis://localhost:6379/0")
	require.NoError(t, err)
	require.NotNil(t, store)
	assert.NoError(t, store.Close())
}

func TestNewRedisBucketStoreRejectsInvalidURL(t *testing.T) {
	_, err := NewRedisBucketStore("not-a-redis-url")
	assert.Error(t, err)
}
