package fetcher

import (
	"context"
	"crypto/sha1"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Store is the subset of a state cache backend the fetch cache needs.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

// Cache serves repeated identical reads from store for ttl. Store failures
// fall through to the wrapped fetcher.
type Cache struct {
	next  Fetcher
	store Store
	ttl   time.Duration
	log   *zap.Logger
	group singleflight.Group
}

func NewCache(next Fetcher, store Store, ttl time.Duration, log *zap.Logger) *Cache {
	return &Cache{next: next, store: store, ttl: ttl, log: log}
}

func (c *Cache) Fetch(ctx context.Context, req Request) (json.RawMessage, error) {
	key := CacheKey(req)

	cached, ok, err := c.store.Get(ctx, key)
	switch {
	case err != nil:
		c.log.Sugar().Warnw("Fetch cache read failed, calling through", "operation", req.Operation, "err", err)
	case ok:
		return json.RawMessage(cached), nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		body, err := c.next.Fetch(ctx, req)
		if err != nil {
			return nil, err
		}
		if err := c.store.Set(ctx, key, string(body), c.ttl); err != nil {
			c.log.Sugar().Warnw("Fetch cache write failed", "operation", req.Operation, "err", err)
		}
		return body, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(json.RawMessage), nil
}

// CacheKey includes a credential fingerprint so that responses fetched with
// one token are never served to another.
func CacheKey(req Request) string {
	fp := "anon"
	if req.Credential != "" {
		fp = fmt.Sprintf("%x", sha1.Sum([]byte(req.Credential)))[:12]
	}
	return strings.Join([]string{"fetch", req.Operation, req.Target, req.Checkpoint, fp}, ":")
}
