package ai

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/david/opportunity-importer/internal/models"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	cacheKeyPrefix  = "importer:enhance:"
	defaultCacheTTL = 24 * time.Hour
)

// Connect opens a redis client from either a redis:// URL or a host:port.
func Connect(_ context.Context, redisURL string) (*redis.Client, error) {
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		opt, parseErr := redis.ParseURL(redisURL)
		if parseErr != nil {
			return nil, fmt.Errorf("parse redis url: %w", parseErr)
		}
		return redis.NewClient(opt), nil
	}
	return redis.NewClient(&redis.Options{Addr: redisURL}), nil
}

// cacheBackend is the subset of redis used by CachedEnhancer.
type cacheBackend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

type redisBackend struct {
	client *redis.Client
}

func (b redisBackend) Get(ctx context.Context, key string) ([]byte, error) {
	return b.client.Get(ctx, key).Bytes()
}

func (b redisBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return b.client.Set(ctx, key, value, ttl).Err()
}

// EnhancementSource is anything that can produce an Enhancement.
type EnhancementSource interface {
	EnhanceOpportunity(ctx context.Context, detailURL string, fields map[string]any) (*models.Enhancement, error)
}

// CachedEnhancer memoizes enhancements in redis keyed by the detail URL and
// the scraped fields. Cache failures are logged and never fail the call.
// Errors and enhancements made without the detail page are not stored.
type CachedEnhancer struct {
	next    EnhancementSource
	backend cacheBackend
	ttl     time.Duration
	logger  *zap.Logger
}

func NewCachedEnhancer(next EnhancementSource, client *redis.Client, ttl time.Duration, logger *zap.Logger) *CachedEnhancer {
	return newCachedEnhancer(next, redisBackend{client: client}, ttl, logger)
}

func newCachedEnhancer(next EnhancementSource, backend cacheBackend, ttl time.Duration, logger *zap.Logger) *CachedEnhancer {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedEnhancer{next: next, backend: backend, ttl: ttl, logger: logger}
}

func (c *CachedEnhancer) EnhanceOpportunity(ctx context.Context, detailURL string, fields map[string]any) (*models.Enhancement, error) {
	key, err := enhancementKey(detailURL, fields)
	if err != nil {
		return c.next.EnhanceOpportunity(ctx, detailURL, fields)
	}

	raw, err := c.backend.Get(ctx, key)
	switch {
	case err == nil:
		var enh models.Enhancement
		if jsonErr := json.Unmarshal(raw, &enh); jsonErr == nil {
			c.logger.Debug("enhancement cache hit", zap.String("url", detailURL))
			return &enh, nil
		}
	case !errors.Is(err, redis.Nil):
		c.logger.Warn("enhancement cache read failed", zap.Error(err))
	}

	enh, err := c.next.EnhanceOpportunity(ctx, detailURL, fields)
	if err != nil {
		return nil, err
	}

	// Listing-only results are retried on the next import.
	if enh == nil || slices.Contains(enh.Warnings, WarningPageUnreadable) {
		return enh, nil
	}
	if data, jsonErr := json.Marshal(enh); jsonErr == nil {
		if setErr := c.backend.Set(ctx, key, data, c.ttl); setErr != nil {
			c.logger.Warn("enhancement cache write failed", zap.Error(setErr))
		}
	}
	return enh, nil
}

// enhancementKey hashes the URL and the fields; json.Marshal sorts map keys
// so equal inputs give equal keys.
func enhancementKey(detailURL string, fields map[string]any) (string, error) {
	data, err := json.Marshal(fields)
	if err != nil {
		return "", err
	}
	h := sha256.New()
	h.Write([]byte(detailURL))
	h.Write([]byte{0})
	h.Write(data)
	return cacheKeyPrefix + hex.EncodeToString(h.Sum(nil)), nil
}
