package ai

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/david/opportunity-importer/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryBackend struct {
	data   map[string][]byte
	getErr error
	ttls   []time.Duration
}

func newMemoryBackend() *memoryBackend { return &memoryBackend{data: map[string][]byte{}} }

func (m *memoryBackend) Get(_ context.Context, key string) ([]byte, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	v, ok := m.data[key]
	if !ok {
		return nil, redis.Nil
	}
	return v, nil
}

func (m *memoryBackend) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.data[key] = value
	m.ttls = append(m.ttls, ttl)
	return nil
}

type countingSource struct {
	calls    int
	err      error
	warnings []string
}

func (c *countingSource) EnhanceOpportunity(context.Context, string, map[string]any) (*models.Enhancement, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	warnings := c.warnings
	if warnings == nil {
		warnings = []string{"estimated"}
	}
	return &models.Enhancement{
		EnhancedData: models.EnhancedData{"win_probability": models.Number(70)},
		Warnings:     warnings,
	}, nil
}

func TestCachedEnhancer_HitAfterMiss(t *testing.T) {
	src := &countingSource{}
	backend := newMemoryBackend()
	c := newCachedEnhancer(src, backend, 0, nil)
	fields := map[string]any{"title": "Bridge", "budget": "$1M"}

	first, err := c.EnhanceOpportunity(context.Background(), "https://x.example/1", fields)
	require.NoError(t, err)
	second, err := c.EnhanceOpportunity(context.Background(), "https://x.example/1", fields)
	require.NoError(t, err)

	assert.Equal(t, 1, src.calls)
	assert.Equal(t, first.EnhancedData, second.EnhancedData)
	assert.Equal(t, []string{"estimated"}, second.Warnings)
	assert.Equal(t, []time.Duration{defaultCacheTTL}, backend.ttls)

	_, err = c.EnhanceOpportunity(context.Background(), "https://x.example/2", fields)
	require.NoError(t, err)
	assert.Equal(t, 2, src.calls)
}

func TestCachedEnhancer_BackendDownStillEnhances(t *testing.T) {
	src := &countingSource{}
	backend := newMemoryBackend()
	backend.getErr = errors.New("dial tcp: refused")
	c := newCachedEnhancer(src, backend, time.Hour, nil)

	enh, err := c.EnhanceOpportunity(context.Background(), "https://x.example/1", nil)
	require.NoError(t, err)
	assert.NotNil(t, enh)
	assert.Equal(t, 1, src.calls)
}

func TestCachedEnhancer_ErrorsAreNotCached(t *testing.T) {
	src := &countingSource{err: errors.New("model down")}
	backend := newMemoryBackend()
	c := newCachedEnhancer(src, backend, time.Hour, nil)

	_, err := c.EnhanceOpportunity(context.Background(), "https://x.example/1", nil)
	assert.Error(t, err)
	assert.Empty(t, backend.data)
}

func TestCachedEnhancer_ListingOnlyResultIsNotCached(t *testing.T) {
	src := &countingSource{warnings: []string{WarningPageUnreadable}}
	backend := newMemoryBackend()
	c := newCachedEnhancer(src, backend, time.Hour, nil)

	for i := 0; i < 2; i++ {
		enh, err := c.EnhanceOpportunity(context.Background(), "https://x.example/1", nil)
		require.NoError(t, err)
		assert.Equal(t, []string{WarningPageUnreadable}, enh.Warnings)
	}
	assert.Equal(t, 2, src.calls)
	assert.Empty(t, backend.data)
}

func TestConnect_ParsesURL(t *testing.T) {
	client, err := Connect(context.Background(), "redis://:secret@cache.internal:6380/2")
	require.NoError(t, err)
	assert.Equal(t, "cache.internal:6380", client.Options().Addr)
	assert.Equal(t, 2, client.Options().DB)

	client, err = Connect(context.Background(), "localhost:6379")
	require.NoError(t, err)
	assert.Equal(t, "localhost:6379", client.Options().Addr)
}
