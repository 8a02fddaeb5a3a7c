// Package kv provides a generic in-memory key/value store with optional
// per-key time-to-live expiry.
//
// Expiry is lazy: an entry whose deadline has passed is logically absent and
// is purged when an operation touches it, not by a background timer. Missing
// keys are expected outcomes, reported through return values rather than
// errors.
package kv

import (
	"path"
	"sort"
	"sync"
	"time"
)

// entry is a stored value with an optional absolute expiry deadline.
// A zero expireAt means the entry never expires.
type entry[V any] struct {
	value    V
	expireAt time.Time
}

func (e entry[V]) expired(now time.Time) bool {
	return !e.expireAt.IsZero() && !now.Before(e.expireAt)
}

// Store is an in-memory key/value map with per-key TTL.
// Safe for concurrent use. The zero value is not usable; call New.
type Store[V any] struct {
	mu      sync.Mutex
	entries map[string]entry[V]
}

// New returns a new empty Store.
func New[V any]() *Store[V] {
	return &Store[V]{entries: make(map[string]entry[V])}
}

// Get returns the value for key. The second return is false if the key was
// never set, was deleted, or its TTL has elapsed.
func (s *Store[V]) Get(key string) (V, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	if e.expired(time.Now()) {
		delete(s.entries, key)
		var zero V
		return zero, false
	}
	return e.value, true
}

// Set stores or overwrites the value for key. A positive ttl expires the key
// after that duration; ttl <= 0 stores it without expiry. A Set is a fresh
// write: any previous TTL on the key is discarded either way.
func (s *Store[V]) Set(key string, value V, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := entry[V]{value: value}
	if ttl > 0 {
		e.expireAt = time.Now().Add(ttl)
	}
	s.entries[key] = e
}

// Del removes the key and its expiry record. Returns 1 if the key existed
// (and had not already expired), 0 otherwise.
func (s *Store[V]) Del(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return 0
	}
	delete(s.entries, key)
	if e.expired(time.Now()) {
		return 0
	}
	return 1
}

// Exists reports whether the key is present and unexpired.
func (s *Store[V]) Exists(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return false
	}
	if e.expired(time.Now()) {
		delete(s.entries, key)
		return false
	}
	return true
}

// Expire sets or overwrites the TTL on an existing key. Returns false
// without effect if the key is absent or already expired.
func (s *Store[V]) Expire(key string, ttl time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	e, ok := s.entries[key]
	if !ok {
		return false
	}
	if e.expired(now) {
		delete(s.entries, key)
		return false
	}

	if ttl > 0 {
		e.expireAt = now.Add(ttl)
	} else {
		e.expireAt = time.Time{}
	}
	s.entries[key] = e
	return true
}

// Keys returns the unexpired keys matching pattern, sorted for deterministic
// output. Patterns use glob semantics (path.Match): `*` matches any sequence
// of characters. A malformed pattern fails closed with an error rather than
// returning a partial match set. Expired entries encountered during the scan
// are purged.
func (s *Store[V]) Keys(pattern string) ([]string, error) {
	// Validate the pattern up front so a malformed glob never yields a
	// partial result.
	if _, err := path.Match(pattern, ""); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	var keys []string
	for k, e := range s.entries {
		if e.expired(now) {
			delete(s.entries, k)
			continue
		}
		if ok, _ := path.Match(pattern, k); ok {
			keys = append(keys, k)
		}
	}

	sort.Strings(keys)
	return keys, nil
}

// Flush removes all keys and all expiries. Concurrent readers observe either
// the full pre-flush state or an empty store, never a partial flush.
func (s *Store[V]) Flush() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = make(map[string]entry[V])
}

// Len returns the number of unexpired keys, purging expired entries
// encountered during the count.
func (s *Store[V]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for k, e := range s.entries {
		if e.expired(now) {
			delete(s.entries, k)
		}
	}
	return len(s.entries)
}
