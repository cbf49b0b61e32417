package memstore

import (
	"fmt"
	"sync"
	"time"

	"github.com/anthanhphan/go-kademlia-dht/internal/node/domain"
	"github.com/anthanhphan/go-kademlia-dht/internal/node/port"
	"github.com/anthanhphan/go-kademlia-dht/pkg/clock"
	"github.com/anthanhphan/go-kademlia-dht/pkg/routing"
	"github.com/anthanhphan/gosdk/logger"
	"github.com/hashicorp/golang-lru/simplelru"
)

const (
	// DefaultTTL is how long an entry lives without being re-set.
	DefaultTTL = 7 * 24 * time.Hour
	// DefaultMaxEntries bounds each namespace; the oldest entry is dropped beyond it.
	DefaultMaxEntries = 1 << 20
)

type Config struct {
	TTL        time.Duration
	MaxEntries int
	Clock      clock.Clock
}

func (c Config) withDefaults() Config {
	if c.TTL <= 0 {
		c.TTL = DefaultTTL
	}
	if c.MaxEntries <= 0 {
		c.MaxEntries = DefaultMaxEntries
	}
	c.Clock = clock.OrSystem(c.Clock)
	return c
}

type entry struct {
	insertedAt time.Time
	record     domain.Record
}

// ForgetfulStorage is a plain key/value store whose entries expire after a TTL.
// The backing list is ordered by insertion; re-setting a key moves it to the
// newest end, so the front is always the oldest entry.
type ForgetfulStorage struct {
	mu    sync.Mutex
	data  *simplelru.LRU
	ttl   time.Duration
	clock clock.Clock
}

// Ensure ForgetfulStorage implements port.Storage.
var _ port.Storage = (*ForgetfulStorage)(nil)

func NewForgetfulStorage(cfg Config) (*ForgetfulStorage, error) {
	cfg = cfg.withDefaults()
	data, err := simplelru.NewLRU(cfg.MaxEntries, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage: %w", err)
	}
	return &ForgetfulStorage{
		data:  data,
		ttl:   cfg.TTL,
		clock: cfg.Clock,
	}, nil
}

func (s *ForgetfulStorage) Put(rec domain.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if evicted := s.data.Add(rec.Key, &entry{insertedAt: s.clock.Now(), record: rec}); evicted {
		logger.Warnw("Storage full, dropped oldest entry", "capacity", s.data.Len())
	}
	s.cullLocked()
	return nil
}

func (s *ForgetfulStorage) Get(key routing.NodeID) (domain.Value, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cullLocked()
	v, ok := s.data.Peek(key)
	if !ok {
		return domain.Value{}, false
	}
	return v.(*entry).record.Value, true
}

func (s *ForgetfulStorage) Delete(key routing.NodeID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cullLocked()
	return s.data.Remove(key)
}

// DeleteTag removes a member from a set value in place, keeping its age.
func (s *ForgetfulStorage) DeleteTag(tagKey, contentID routing.NodeID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cullLocked()
	v, ok := s.data.Peek(tagKey)
	if !ok {
		return false
	}
	e := v.(*entry)
	if e.record.Value.Kind != domain.KindSet || !e.record.Value.Has(contentID.String()) {
		return false
	}

	member := contentID.String()
	kept := make([]string, 0, len(e.record.Value.Members))
	for _, m := range e.record.Value.Members {
		if m != member {
			kept = append(kept, m)
		}
	}
	e.record.Value = domain.SetValue(kept...)
	return true
}

func (s *ForgetfulStorage) IterOlderThan(age time.Duration) []domain.Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cullLocked()
	return s.olderThanLocked(age)
}

func (s *ForgetfulStorage) Iterate() []domain.Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cullLocked()
	out := make([]domain.Record, 0, s.data.Len())
	for _, k := range s.data.Keys() {
		if v, ok := s.data.Peek(k); ok {
			out = append(out, v.(*entry).record)
		}
	}
	return out
}

// olderThanLocked scans from the oldest entry and stops at the first young one.
func (s *ForgetfulStorage) olderThanLocked(age time.Duration) []domain.Record {
	cutoff := s.clock.Now().Add(-age)
	var out []domain.Record
	for _, k := range s.data.Keys() {
		v, ok := s.data.Peek(k)
		if !ok {
			continue
		}
		e := v.(*entry)
		if e.insertedAt.After(cutoff) {
			break
		}
		out = append(out, e.record)
	}
	return out
}

func (s *ForgetfulStorage) cullLocked() {
	cutoff := s.clock.Now().Add(-s.ttl)
	for {
		_, v, ok := s.data.GetOldest()
		if !ok || v.(*entry).insertedAt.After(cutoff) {
			return
		}
		s.data.RemoveOldest()
	}
}
