// Package followcache holds the locally known follow and preference state and
// broadcasts every change to subscribers.
//
// Writes never block on subscribers and no event is ever dropped: each
// subscription owns an unbounded queue drained by its own goroutine. Every
// write increments a cache-wide version, so a subscriber that sees events out
// of its own interest order can still tell which value is newest.
//
// Entries are not refreshed by reads. Expire drops entries whose last write is
// older than a cutoff, so a value changed elsewhere without reaching this
// process is reloaded from the store on the next read.
package followcache

import (
	"sync"
	"time"
)

// Event describes one change to the cache.
type Event[K comparable] struct {
	Key     K
	Value   bool
	Present bool // false when the key was deleted
	Version uint64
}

// Cache is a concurrency-safe map of boolean state keyed by K.
type Cache[K comparable] struct {
	mu      sync.RWMutex
	entries map[K]entry
	version uint64
	subs    map[*Subscription[K]]struct{}
}

type entry struct {
	value   bool
	written time.Time
}

// New returns an empty cache.
func New[K comparable]() *Cache[K] {
	return &Cache[K]{
		entries: make(map[K]entry),
		subs:    make(map[*Subscription[K]]struct{}),
	}
}

// Get returns the cached value and whether the key is known.
func (c *Cache[K]) Get(key K) (value, ok bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	return e.value, ok
}

// Set stores value for key and notifies subscribers.
func (c *Cache[K]) Set(key K, value bool) Event[K] {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry{value: value, written: time.Now()}
	c.version++
	ev := Event[K]{Key: key, Value: value, Present: true, Version: c.version}
	c.publishLocked(ev)
	return ev
}

// Delete forgets key and notifies subscribers. Deleting an unknown key still
// produces an event so reverts of a first-time write are observable.
func (c *Cache[K]) Delete(key K) Event[K] {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	c.version++
	ev := Event[K]{Key: key, Version: c.version}
	c.publishLocked(ev)
	return ev
}

// Expire forgets every entry last written before cutoff and reports how many
// were removed. No events are published: the value each subscriber last saw is
// still the newest one this process knows of.
func (c *Cache[K]) Expire(cutoff time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for k, e := range c.entries {
		if e.written.Before(cutoff) {
			delete(c.entries, k)
			n++
		}
	}
	return n
}

// Keys returns the cached keys for which match reports true.
func (c *Cache[K]) Keys(match func(K) bool) []K {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []K
	for k := range c.entries {
		if match(k) {
			out = append(out, k)
		}
	}
	return out
}

// Version returns the number of writes applied so far.
func (c *Cache[K]) Version() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version
}

// Len returns the number of cached keys.
func (c *Cache[K]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Subscribe registers a new subscriber. Events written after Subscribe
// returns are delivered on C in version order. Close must be called to
// release the subscription.
func (c *Cache[K]) Subscribe() *Subscription[K] {
	s := &Subscription[K]{
		cache: c,
		out:   make(chan Event[K]),
		wake:  make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
	s.C = s.out

	c.mu.Lock()
	c.subs[s] = struct{}{}
	c.mu.Unlock()

	go s.pump()
	return s
}

// publishLocked queues ev for every subscriber. Caller holds c.mu.
func (c *Cache[K]) publishLocked(ev Event[K]) {
	for s := range c.subs {
		s.enqueue(ev)
	}
}

// Subscription receives cache events on C until Close is called.
type Subscription[K comparable] struct {
	C <-chan Event[K]

	cache *Cache[K]
	out   chan Event[K]
	wake  chan struct{}
	done  chan struct{}

	mu      sync.Mutex
	pending []Event[K]
	once    sync.Once
}

func (s *Subscription[K]) enqueue(ev Event[K]) {
	s.mu.Lock()
	s.pending = append(s.pending, ev)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Subscription[K]) pump() {
	defer close(s.out)
	for {
		s.mu.Lock()
		batch := s.pending
		s.pending = nil
		s.mu.Unlock()

		for _, ev := range batch {
			select {
			case s.out <- ev:
			case <-s.done:
				return
			}
		}
		if len(batch) > 0 {
			continue
		}

		select {
		case <-s.wake:
		case <-s.done:
			return
		}
	}
}

// Close unregisters the subscription and closes C. Undelivered events are
// discarded. Close is idempotent.
func (s *Subscription[K]) Close() {
	s.once.Do(func() {
		s.cache.mu.Lock()
		delete(s.cache.subs, s)
		s.cache.mu.Unlock()
		close(s.done)
	})
}
