package memstore

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/anthanhphan/go-kademlia-dht/internal/node/domain"
	"github.com/anthanhphan/go-kademlia-dht/internal/node/port"
	"github.com/anthanhphan/go-kademlia-dht/pkg/clock"
	"github.com/anthanhphan/go-kademlia-dht/pkg/routing"
	"github.com/anthanhphan/gosdk/logger"
	"github.com/hashicorp/golang-lru/simplelru"
)

type tagEntry struct {
	insertedAt time.Time
	tag        []byte
	members    map[string]struct{}
}

type contentEntry struct {
	insertedAt time.Time
	content    domain.Content
}

// TagStorage keeps two namespaces: tag key -> set of content ids, and
// content id -> content. Both expire independently after the TTL. Removing
// content also removes it from every local tag; removing a tag membership
// never removes content. Values that are neither go to a plain namespace.
type TagStorage struct {
	mu       sync.Mutex
	tags     *simplelru.LRU
	contents *simplelru.LRU
	values   *simplelru.LRU
	ttl      time.Duration
	clock    clock.Clock
}

// Ensure TagStorage implements port.Storage.
var _ port.Storage = (*TagStorage)(nil)

func NewTagStorage(cfg Config) (*TagStorage, error) {
	cfg = cfg.withDefaults()
	tags, err := simplelru.NewLRU(cfg.MaxEntries, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create tag namespace: %w", err)
	}
	contents, err := simplelru.NewLRU(cfg.MaxEntries, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create content namespace: %w", err)
	}
	values, err := simplelru.NewLRU(cfg.MaxEntries, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create value namespace: %w", err)
	}
	return &TagStorage{
		tags:     tags,
		contents: contents,
		values:   values,
		ttl:      cfg.TTL,
		clock:    cfg.Clock,
	}, nil
}

// SetTag stores data as content under its digest, unless already present, and
// adds it to tagKey.
func (s *TagStorage) SetTag(tagKey routing.NodeID, tag []byte, name string, data domain.Value) routing.NodeID {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cullLocked()
	contentID := data.ContentID()
	if !s.contents.Contains(contentID) {
		s.putContentLocked(contentID, domain.Content{Name: name, Data: data})
	}
	s.addMembersLocked(tagKey, tag, contentID.String())
	return contentID
}

// AddTagMember adds an existing content id to tagKey.
func (s *TagStorage) AddTagMember(tagKey routing.NodeID, tag []byte, contentID routing.NodeID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.addMembersLocked(tagKey, tag, contentID.String())
	s.cullLocked()
}

// TagMembers returns the content ids under tagKey.
func (s *TagStorage) TagMembers(tagKey routing.NodeID) ([]string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cullLocked()
	v, ok := s.tags.Peek(tagKey)
	if !ok {
		return nil, false
	}
	return sortedMembers(v.(*tagEntry).members), true
}

// Content returns the content stored under contentID.
func (s *TagStorage) Content(contentID routing.NodeID) (domain.Content, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cullLocked()
	v, ok := s.contents.Peek(contentID)
	if !ok {
		return domain.Content{}, false
	}
	return v.(*contentEntry).content, true
}

// DeleteContent removes content and its membership in every local tag.
func (s *TagStorage) DeleteContent(contentID routing.NodeID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cullLocked()
	if !s.contents.Remove(contentID) {
		return false
	}
	s.scrubMemberLocked(contentID.String())
	return true
}

// DeleteTagMember removes one membership. An emptied tag is dropped.
func (s *TagStorage) DeleteTagMember(tagKey, contentID routing.NodeID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cullLocked()
	v, ok := s.tags.Peek(tagKey)
	if !ok {
		return false
	}
	e := v.(*tagEntry)
	member := contentID.String()
	if _, ok := e.members[member]; !ok {
		return false
	}
	delete(e.members, member)
	if len(e.members) == 0 {
		s.tags.Remove(tagKey)
	}
	return true
}

// Put interprets a record by its value: content and set values are stored as
// is, hashed values become new content, and text or bytes values that parse
// as a content id add that id to the tag. Anything else is kept as a plain value.
func (s *TagStorage) Put(rec domain.Record) error {
	switch {
	case rec.Value.Kind == domain.KindContent:
		s.mu.Lock()
		s.putContentLocked(rec.Key, *rec.Value.Content)
		s.cullLocked()
		s.mu.Unlock()
	case rec.Value.Kind == domain.KindSet:
		if len(rec.Value.Members) == 0 {
			return nil
		}
		s.mu.Lock()
		s.addMembersLocked(rec.Key, rec.AppKey, rec.Value.Members...)
		s.cullLocked()
		s.mu.Unlock()
	case rec.Hashed:
		s.SetTag(rec.Key, rec.AppKey, rec.Name, rec.Value)
	default:
		if contentID, err := rec.Value.AsContentID(); err == nil {
			s.AddTagMember(rec.Key, rec.AppKey, contentID)
			return nil
		}
		s.mu.Lock()
		if evicted := s.values.Add(rec.Key, &entry{insertedAt: s.clock.Now(), record: rec}); evicted {
			logger.Warnw("Value namespace full, dropped oldest entry", "capacity", s.values.Len())
		}
		s.cullLocked()
		s.mu.Unlock()
	}
	return nil
}

// Get returns a tag as a set value, falling back to content, then plain values.
func (s *TagStorage) Get(key routing.NodeID) (domain.Value, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cullLocked()
	if v, ok := s.tags.Peek(key); ok {
		return domain.SetValue(sortedMembers(v.(*tagEntry).members)...), true
	}
	if v, ok := s.contents.Peek(key); ok {
		c := v.(*contentEntry).content
		return domain.ContentValue(c.Name, c.Data), true
	}
	if v, ok := s.values.Peek(key); ok {
		return v.(*entry).record.Value, true
	}
	return domain.Value{}, false
}

// Delete removes whatever key names in any namespace.
func (s *TagStorage) Delete(key routing.NodeID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cullLocked()
	removedTag := s.tags.Remove(key)
	removedContent := s.contents.Remove(key)
	if removedContent {
		s.scrubMemberLocked(key.String())
	}
	removedValue := s.values.Remove(key)
	return removedTag || removedContent || removedValue
}

func (s *TagStorage) DeleteTag(tagKey, contentID routing.NodeID) bool {
	return s.DeleteTagMember(tagKey, contentID)
}

func (s *TagStorage) IterOlderThan(age time.Duration) []domain.Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cullLocked()
	return s.olderThanLocked(age)
}

func (s *TagStorage) Iterate() []domain.Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cullLocked()
	return s.olderThanLocked(0)
}

type datedRecord struct {
	insertedAt time.Time
	record     domain.Record
}

// olderThanLocked walks every namespace from the front and merges them by age.
func (s *TagStorage) olderThanLocked(age time.Duration) []domain.Record {
	cutoff := s.clock.Now().Add(-age)

	var dated []datedRecord
	for _, k := range s.tags.Keys() {
		v, _ := s.tags.Peek(k)
		e := v.(*tagEntry)
		if e.insertedAt.After(cutoff) {
			break
		}
		dated = append(dated, datedRecord{
			insertedAt: e.insertedAt,
			record: domain.Record{
				Key:    k.(routing.NodeID),
				AppKey: e.tag,
				Value:  domain.SetValue(sortedMembers(e.members)...),
			},
		})
	}
	for _, k := range s.contents.Keys() {
		v, _ := s.contents.Peek(k)
		e := v.(*contentEntry)
		if e.insertedAt.After(cutoff) {
			break
		}
		dated = append(dated, datedRecord{
			insertedAt: e.insertedAt,
			record: domain.Record{
				Key:   k.(routing.NodeID),
				Name:  e.content.Name,
				Value: domain.ContentValue(e.content.Name, e.content.Data),
			},
		})
	}

	for _, k := range s.values.Keys() {
		v, _ := s.values.Peek(k)
		e := v.(*entry)
		if e.insertedAt.After(cutoff) {
			break
		}
		dated = append(dated, datedRecord{insertedAt: e.insertedAt, record: e.record})
	}

	sort.SliceStable(dated, func(i, j int) bool {
		return dated[i].insertedAt.Before(dated[j].insertedAt)
	})
	out := make([]domain.Record, len(dated))
	for i, d := range dated {
		out[i] = d.record
	}
	return out
}

func (s *TagStorage) putContentLocked(contentID routing.NodeID, c domain.Content) {
	if evicted := s.contents.Add(contentID, &contentEntry{insertedAt: s.clock.Now(), content: c}); evicted {
		logger.Warnw("Content namespace full, dropped oldest entry", "capacity", s.contents.Len())
	}
}

// addMembersLocked unions members into the tag and renews it.
func (s *TagStorage) addMembersLocked(tagKey routing.NodeID, tag []byte, members ...string) {
	e := &tagEntry{tag: tag, members: make(map[string]struct{}, len(members))}
	if v, ok := s.tags.Peek(tagKey); ok {
		prev := v.(*tagEntry)
		e.members = prev.members
		if len(tag) == 0 {
			e.tag = prev.tag
		}
	}
	for _, m := range members {
		e.members[m] = struct{}{}
	}
	e.insertedAt = s.clock.Now()
	if evicted := s.tags.Add(tagKey, e); evicted {
		logger.Warnw("Tag namespace full, dropped oldest entry", "capacity", s.tags.Len())
	}
}

func (s *TagStorage) scrubMemberLocked(member string) {
	for _, k := range s.tags.Keys() {
		v, ok := s.tags.Peek(k)
		if !ok {
			continue
		}
		e := v.(*tagEntry)
		if _, ok := e.members[member]; !ok {
			continue
		}
		delete(e.members, member)
		if len(e.members) == 0 {
			s.tags.Remove(k)
		}
	}
}

func (s *TagStorage) cullLocked() {
	cutoff := s.clock.Now().Add(-s.ttl)
	for {
		_, v, ok := s.tags.GetOldest()
		if !ok || v.(*tagEntry).insertedAt.After(cutoff) {
			break
		}
		s.tags.RemoveOldest()
	}
	for {
		k, v, ok := s.contents.GetOldest()
		if !ok || v.(*contentEntry).insertedAt.After(cutoff) {
			break
		}
		s.contents.RemoveOldest()
		s.scrubMemberLocked(k.(routing.NodeID).String())
	}
	for {
		_, v, ok := s.values.GetOldest()
		if !ok || v.(*entry).insertedAt.After(cutoff) {
			break
		}
		s.values.RemoveOldest()
	}
}

func sortedMembers(members map[string]struct{}) []string {
	out := make([]string, 0, len(members))
	for m := range members {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}
