// Package delta decides which fetched items are new or changed relative to
// what a subscriber has already been told about.
package delta

import (
	"context"
	"strconv"

	"github.com/fiffu/repowatch/lib/statecache"
)

// Tracked items carry an ID that grows with creation time and a revision
// stamp that changes on edit.
type Tracked interface {
	TrackingID() int64
	Revision() string
}

// Positioned items are identified only by where they sit in a newest-first
// listing.
type Positioned interface {
	Ref() string
}

type Delta[T any] struct {
	New     []T
	Updated []T
}

func (d Delta[T]) Empty() bool {
	return len(d.New) == 0 && len(d.Updated) == 0
}

// ClassifyMonotonic splits items into new (ID above the cursor) and updated
// (known revision differs). On the first call for key nothing is reported
// and the cursor is seeded instead.
func ClassifyMonotonic[T Tracked](ctx context.Context, cache *statecache.Cache, key statecache.Key, items []T) (Delta[T], error) {
	unlock := cache.Lock(key)
	defer unlock()

	var d Delta[T]

	maxSeen, seen, err := cache.MaxSeenID(ctx, key)
	if err != nil {
		return d, err
	}

	highest := maxSeen
	for _, item := range items {
		id := item.TrackingID()
		if id > highest {
			highest = id
		}
		if !seen {
			continue
		}

		if id > maxSeen {
			d.New = append(d.New, item)
			continue
		}

		prev, ok, err := cache.ItemRevision(ctx, key, strconv.FormatInt(id, 10))
		if err != nil {
			return Delta[T]{}, err
		}
		if ok && prev != item.Revision() {
			d.Updated = append(d.Updated, item)
		}
	}

	for _, item := range items {
		itemID := strconv.FormatInt(item.TrackingID(), 10)
		if err := cache.SetItemRevision(ctx, key, itemID, item.Revision()); err != nil {
			return Delta[T]{}, err
		}
	}

	// Rewritten on every fetch so a quiet resource keeps its ttl.
	if err := cache.SetMaxSeenID(ctx, key, highest); err != nil {
		return Delta[T]{}, err
	}

	return d, nil
}

// ClassifyPositional reports the items listed before the last seen ref.
// items must be ordered newest first. When the last seen ref has fallen off
// the page the whole page is reported.
func ClassifyPositional[T Positioned](ctx context.Context, cache *statecache.Cache, key statecache.Key, items []T) (Delta[T], error) {
	unlock := cache.Lock(key)
	defer unlock()

	var d Delta[T]

	lastSeen, seen, err := cache.LastSeenRef(ctx, key)
	if err != nil {
		return d, err
	}

	if !seen {
		ref := ""
		if len(items) > 0 {
			ref = items[0].Ref()
		}
		return d, cache.SetLastSeenRef(ctx, key, ref)
	}

	if len(items) == 0 {
		return d, cache.SetLastSeenRef(ctx, key, lastSeen)
	}

	boundary := len(items)
	if lastSeen != "" {
		for i, item := range items {
			if item.Ref() == lastSeen {
				boundary = i
				break
			}
		}
	}
	if boundary > 0 {
		d.New = append([]T(nil), items[:boundary]...)
	}

	return d, cache.SetLastSeenRef(ctx, key, items[0].Ref())
}
