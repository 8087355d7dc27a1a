// Package logstore keeps the ordered sequence of interception entries.
// When a capacity is set, the oldest entries are evicted first and the
// surviving entries keep their order.
package logstore

import (
	"sync"
	"time"
)

// Sink receives a copy of every appended entry, e.g. a persistent log file.
type Sink interface {
	Record(e Entry) error
}

// Store is an append-only entry log. Safe for concurrent use.
type Store struct {
	mu sync.RWMutex

	entries  []Entry
	capacity int
	head     int // index of the oldest entry once the ring is full
	seq      int64

	sink    Sink
	onError func(error)
	now     func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithSink forwards appended entries to s. Sink failures go to onError and
// never to the caller of Append.
func WithSink(s Sink, onError func(error)) Option {
	return func(st *Store) {
		st.sink = s
		st.onError = onError
	}
}

// WithClock overrides the entry timestamp source.
func WithClock(now func() time.Time) Option {
	return func(st *Store) { st.now = now }
}

// New creates a store retaining at most capacity entries.
// capacity <= 0 means unbounded.
func New(capacity int, opts ...Option) *Store {
	s := &Store{
		capacity: capacity,
		now:      time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Append adds an entry at the end of the sequence and returns it.
func (s *Store) Append(tag, text string) Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	e := Entry{Seq: s.seq, Time: s.now().UTC(), Tag: tag, Text: text}
	s.appendLocked(e)

	// Recorded under the lock so the sink sees entries in sequence order.
	if s.sink != nil {
		if err := s.sink.Record(e); err != nil && s.onError != nil {
			s.onError(err)
		}
	}
	return e
}

func (s *Store) appendLocked(e Entry) {
	if s.capacity <= 0 || len(s.entries) < s.capacity {
		s.entries = append(s.entries, e)
		return
	}
	s.entries[s.head] = e
	s.head = (s.head + 1) % s.capacity
}

// Snapshot returns the current entries, oldest first. The returned slice is
// a copy the caller owns.
func (s *Store) Snapshot() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Entry, 0, len(s.entries))
	out = append(out, s.entries[s.head:]...)
	out = append(out, s.entries[:s.head]...)
	return out
}

// Clear empties the store. Sequence numbers keep increasing.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = nil
	s.head = 0
}

// Len returns the number of retained entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// SetCapacity changes the retention limit, evicting the oldest entries if
// the store is now over capacity.
func (s *Store) SetCapacity(capacity int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ordered := make([]Entry, 0, len(s.entries))
	ordered = append(ordered, s.entries[s.head:]...)
	ordered = append(ordered, s.entries[:s.head]...)
	if capacity > 0 && len(ordered) > capacity {
		ordered = ordered[len(ordered)-capacity:]
	}
	s.entries = ordered
	s.head = 0
	s.capacity = capacity
}
