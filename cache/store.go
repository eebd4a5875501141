package cache

import (
	"sort"
	"sync"
	"time"
)

// DefaultMaxEntries is the capacity used when StoreConfig.MaxEntries is unset.
const DefaultMaxEntries = 100

// StoreConfig configures a Store.
type StoreConfig struct {
	// MaxEntries bounds the number of stored entries.
	// Default: 100
	MaxEntries int

	// Clock returns the current time.
	// Default: time.Now
	Clock func() time.Time

	// Metrics receives hit/miss/eviction/expiration events.
	// Default: NoopMetrics
	Metrics Metrics
}

// Store is an in-memory response cache with lazy TTL expiry and
// oldest-first eviction once MaxEntries is exceeded.
//
// Expiry is measured from StoredAt. Eviction order is measured from the
// entry's last touch: the Set that stored it or the latest Lookup hit. An
// entry that is never read is therefore evicted in StoredAt order. With
// capacity 2, storing A and B, reading A, then storing C evicts B: a read
// keeps a hot entry resident even though it was stored first.
//
// There is no background sweep: expired entries are removed by the Lookup
// that discovers them, or by eviction.
type Store struct {
	config StoreConfig

	mu         sync.Mutex
	entries    map[string]*storeEntry
	seq        uint64
	generation uint64
}

type storeEntry struct {
	Entry
	touchedAt time.Time
	seq       uint64
}

// NewStore creates a new store.
func NewStore(config StoreConfig) *Store {
	// Apply defaults
	if config.MaxEntries <= 0 {
		config.MaxEntries = DefaultMaxEntries
	}
	if config.Clock == nil {
		config.Clock = time.Now
	}
	if config.Metrics == nil {
		config.Metrics = NoopMetrics{}
	}

	return &Store{
		config:  config,
		entries: make(map[string]*storeEntry),
	}
}

// Lookup returns the entry for key if it exists and has not outlived its TTL.
// An expired entry is deleted before Lookup reports the miss.
func (s *Store) Lookup(key string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ent, ok := s.entries[key]
	if !ok {
		s.config.Metrics.Miss(key)
		return Entry{}, false
	}

	now := s.config.Clock()
	if ent.Expired(now) {
		delete(s.entries, key)
		s.config.Metrics.Expiration(key)
		s.config.Metrics.Miss(key)
		return Entry{}, false
	}

	s.seq++
	ent.touchedAt = now
	ent.seq = s.seq

	s.config.Metrics.Hit(key)
	return ent.Entry, true
}

// Set stores payload under key with StoredAt set to now.
// A non-positive TTL means the payload is not cached.
func (s *Store) Set(key string, payload []byte, ttl time.Duration) {
	if ttl <= 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.setLocked(key, payload, ttl)
}

// SetIfGeneration stores payload only if no invalidation happened since gen
// was obtained from Generation. It reports whether the payload was stored.
func (s *Store) SetIfGeneration(key string, payload []byte, ttl time.Duration, gen uint64) bool {
	if ttl <= 0 {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.generation {
		return false
	}
	s.setLocked(key, payload, ttl)
	return true
}

func (s *Store) setLocked(key string, payload []byte, ttl time.Duration) {
	now := s.config.Clock()
	s.seq++
	s.entries[key] = &storeEntry{
		Entry: Entry{
			Key:      key,
			Payload:  payload,
			StoredAt: now,
			TTL:      ttl,
		},
		touchedAt: now,
		seq:       s.seq,
	}

	if len(s.entries) > s.config.MaxEntries {
		s.evictOldestLocked()
	}
}

// evictOldestLocked removes the single entry with the oldest touch.
// Ties go to the entry touched first.
func (s *Store) evictOldestLocked() {
	var oldest *storeEntry
	for _, ent := range s.entries {
		if oldest == nil ||
			ent.touchedAt.Before(oldest.touchedAt) ||
			(ent.touchedAt.Equal(oldest.touchedAt) && ent.seq < oldest.seq) {
			oldest = ent
		}
	}
	if oldest != nil {
		delete(s.entries, oldest.Key)
		s.config.Metrics.Eviction(oldest.Key)
	}
}

// Invalidate removes every entry whose key satisfies pred and returns the
// removed keys in sorted order. It always advances the store generation.
func (s *Store) Invalidate(pred func(key string) bool) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.generation++

	var removed []string
	for key := range s.entries {
		if pred(key) {
			delete(s.entries, key)
			removed = append(removed, key)
		}
	}
	sort.Strings(removed)
	return removed
}

// Clear removes all entries.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.generation++
	s.entries = make(map[string]*storeEntry)
}

// Generation returns a counter that changes on every Invalidate and Clear.
func (s *Store) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// Len returns the number of stored entries, including expired entries that
// have not been discovered yet.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Capacity returns the configured entry bound.
func (s *Store) Capacity() int {
	return s.config.MaxEntries
}

// Stats returns the current size and sorted keys.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]string, 0, len(s.entries))
	for key := range s.entries {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	return Stats{
		Size:     len(keys),
		Capacity: s.config.MaxEntries,
		Keys:     keys,
	}
}
