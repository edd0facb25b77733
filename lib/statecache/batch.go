package statecache

import (
	"context"
	"slices"
	"sync"
	"time"
)

// Batch holds the locks on a set of keys and keeps every write made through
// its Cache in memory until Commit. A batch that is released without a
// commit leaves the backend as it was.
type Batch struct {
	cache   *Cache
	pending *pendingBackend
	unlock  []func()
}

// Batch locks keys in a fixed order and returns a batch over them. Release
// must be called when done.
func (c *Cache) Batch(keys ...Key) *Batch {
	names := make([]string, 0, len(keys))
	for _, k := range keys {
		names = append(names, k.String())
	}
	slices.Sort(names)
	names = slices.Compact(names)

	b := &Batch{pending: &pendingBackend{Backend: c.backend, writes: make(map[string]pendingWrite)}}
	for _, name := range names {
		b.unlock = append(b.unlock, c.locks.lock(name))
	}
	// The locks above are held for the whole batch, so the inner cache gets
	// its own uncontended set.
	b.cache = &Cache{backend: b.pending, ttl: c.ttl, locks: newKeyedMutex()}
	return b
}

func (b *Batch) Cache() *Cache {
	return b.cache
}

// Commit writes everything buffered so far to the backend, in the order it
// was set.
func (b *Batch) Commit(ctx context.Context) error {
	return b.pending.flush(ctx)
}

func (b *Batch) Release() {
	for i := len(b.unlock) - 1; i >= 0; i-- {
		b.unlock[i]()
	}
	b.unlock = nil
}

type pendingWrite struct {
	value string
	ttl   time.Duration
}

type pendingBackend struct {
	Backend

	mu     sync.Mutex
	writes map[string]pendingWrite
	order  []string
}

func (p *pendingBackend) Get(ctx context.Context, key string) (string, bool, error) {
	p.mu.Lock()
	w, ok := p.writes[key]
	p.mu.Unlock()
	if ok {
		return w.value, true, nil
	}
	return p.Backend.Get(ctx, key)
}

func (p *pendingBackend) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.writes[key]; !ok {
		p.order = append(p.order, key)
	}
	p.writes[key] = pendingWrite{value, ttl}
	return nil
}

func (p *pendingBackend) flush(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, key := range p.order {
		w := p.writes[key]
		if err := p.Backend.Set(ctx, key, w.value, w.ttl); err != nil {
			p.order = p.order[i:]
			return err
		}
		delete(p.writes, key)
	}
	p.order = nil
	return nil
}
