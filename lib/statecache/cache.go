// Package statecache stores per-subscriber cursors and per-item revision
// stamps for every tracked resource.
package statecache

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/fiffu/repowatch/lib/locator"
)

const keyPrefix = "repowatch:state"

// Key addresses one collection (comments, events, commits...) of one
// resource, as seen by one subscriber.
type Key struct {
	SubscriberID uint
	Locator      locator.Locator
	Collection   string
}

func (k Key) String() string {
	return Prefix(k.SubscriberID, k.Locator) + k.Collection
}

func (k Key) cursor() string {
	return k.String() + ":cursor"
}

func (k Key) item(id string) string {
	return k.String() + ":item:" + id
}

// Prefix is shared by every key belonging to the subscriber and resource.
func Prefix(subscriberID uint, loc locator.Locator) string {
	return fmt.Sprintf("%s:%d:%s:", keyPrefix, subscriberID, loc.Path())
}

type Cache struct {
	backend Backend
	ttl     time.Duration
	locks   *keyedMutex
}

func New(backend Backend, ttl time.Duration) *Cache {
	return &Cache{backend: backend, ttl: ttl, locks: newKeyedMutex()}
}

// Lock serialises read-classify-write cycles on key. The returned func
// releases it.
func (c *Cache) Lock(k Key) func() {
	return c.locks.lock(k.String())
}

func (c *Cache) MaxSeenID(ctx context.Context, k Key) (int64, bool, error) {
	raw, ok, err := c.backend.Get(ctx, k.cursor())
	if err != nil || !ok {
		return 0, false, err
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("corrupt cursor at %s: %w", k, err)
	}
	return id, true, nil
}

func (c *Cache) SetMaxSeenID(ctx context.Context, k Key, id int64) error {
	return c.backend.Set(ctx, k.cursor(), strconv.FormatInt(id, 10), c.ttl)
}

func (c *Cache) LastSeenRef(ctx context.Context, k Key) (string, bool, error) {
	return c.backend.Get(ctx, k.cursor())
}

func (c *Cache) SetLastSeenRef(ctx context.Context, k Key, ref string) error {
	return c.backend.Set(ctx, k.cursor(), ref, c.ttl)
}

func (c *Cache) ItemRevision(ctx context.Context, k Key, itemID string) (string, bool, error) {
	return c.backend.Get(ctx, k.item(itemID))
}

func (c *Cache) SetItemRevision(ctx context.Context, k Key, itemID, revision string) error {
	return c.backend.Set(ctx, k.item(itemID), revision, c.ttl)
}

// Clear drops every cursor and revision the subscriber holds for loc.
func (c *Cache) Clear(ctx context.Context, subscriberID uint, loc locator.Locator) (int64, error) {
	return c.backend.DeleteByPrefix(ctx, Prefix(subscriberID, loc))
}

func (c *Cache) Purge(ctx context.Context, now time.Time) (int64, error) {
	return c.backend.Purge(ctx, now)
}

type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*refMutex)}
}

func (km *keyedMutex) lock(key string) func() {
	km.mu.Lock()
	m, ok := km.locks[key]
	if !ok {
		m = &refMutex{}
		km.locks[key] = m
	}
	m.refs++
	km.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()

		km.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(km.locks, key)
		}
		km.mu.Unlock()
	}
}
