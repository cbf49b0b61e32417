package memstore

import (
	"testing"
	"time"

	"github.com/anthanhphan/go-kademlia-dht/internal/node/domain"
	"github.com/anthanhphan/go-kademlia-dht/pkg/routing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockClock for deterministic testing
type MockClock struct {
	CurrentTime time.Time
}

func (m *MockClock) Now() time.Time {
	return m.CurrentTime
}

func (m *MockClock) Advance(d time.Duration) {
	m.CurrentTime = m.CurrentTime.Add(d)
}

func newClock() *MockClock {
	return &MockClock{CurrentTime: time.Unix(1_700_000_000, 0)}
}

func record(key string, v domain.Value) domain.Record {
	return domain.Record{Key: routing.NewNodeID(key), AppKey: []byte(key), Value: v}
}

func TestForgetfulStorage_PutGet(t *testing.T) {
	s, err := NewForgetfulStorage(Config{Clock: newClock()})
	require.NoError(t, err)

	require.NoError(t, s.Put(record("a", domain.IntValue(1))))
	v, ok := s.Get(routing.NewNodeID("a"))
	require.True(t, ok)
	assert.Equal(t, domain.IntValue(1), v)

	_, ok = s.Get(routing.NewNodeID("missing"))
	assert.False(t, ok)

	assert.True(t, s.Delete(routing.NewNodeID("a")))
	assert.False(t, s.Delete(routing.NewNodeID("a")))
}

func TestForgetfulStorage_IterOlderThanRespectsInsertionOrder(t *testing.T) {
	clk := newClock()
	s, err := NewForgetfulStorage(Config{Clock: clk})
	require.NoError(t, err)

	require.NoError(t, s.Put(record("a", domain.IntValue(1))))
	clk.Advance(time.Minute)
	require.NoError(t, s.Put(record("b", domain.IntValue(2))))
	clk.Advance(time.Minute)
	require.NoError(t, s.Put(record("c", domain.IntValue(3))))

	// Re-setting a moves it to the young end.
	clk.Advance(time.Minute)
	require.NoError(t, s.Put(record("a", domain.IntValue(10))))

	old := s.IterOlderThan(time.Minute)
	require.Len(t, old, 2)
	assert.Equal(t, routing.NewNodeID("b"), old[0].Key)
	assert.Equal(t, routing.NewNodeID("c"), old[1].Key)

	all := s.Iterate()
	require.Len(t, all, 3)
	assert.Equal(t, routing.NewNodeID("a"), all[2].Key)
	assert.Equal(t, domain.IntValue(10), all[2].Value)
}

func TestForgetfulStorage_CullOnAccess(t *testing.T) {
	clk := newClock()
	s, err := NewForgetfulStorage(Config{Clock: clk, TTL: time.Hour})
	require.NoError(t, err)

	require.NoError(t, s.Put(record("old", domain.TextValue("x"))))
	clk.Advance(30 * time.Minute)
	require.NoError(t, s.Put(record("young", domain.TextValue("y"))))

	clk.Advance(31 * time.Minute)
	_, ok := s.Get(routing.NewNodeID("old"))
	assert.False(t, ok)
	_, ok = s.Get(routing.NewNodeID("young"))
	assert.True(t, ok)

	// A value set just before TTL is still readable right before expiry.
	clk.Advance(28 * time.Minute)
	_, ok = s.Get(routing.NewNodeID("young"))
	assert.True(t, ok)

	clk.Advance(2 * time.Minute)
	assert.Empty(t, s.Iterate())
}

func TestForgetfulStorage_DeleteTagKeepsAge(t *testing.T) {
	clk := newClock()
	s, err := NewForgetfulStorage(Config{Clock: clk})
	require.NoError(t, err)

	c1 := routing.NewNodeID("c1")
	c2 := routing.NewNodeID("c2")
	require.NoError(t, s.Put(record("tag", domain.SetValue(c1.String(), c2.String()))))
	clk.Advance(time.Hour)

	assert.True(t, s.DeleteTag(routing.NewNodeID("tag"), c1))
	assert.False(t, s.DeleteTag(routing.NewNodeID("tag"), c1))

	v, ok := s.Get(routing.NewNodeID("tag"))
	require.True(t, ok)
	assert.Equal(t, []string{c2.String()}, v.Members)
	assert.Len(t, s.IterOlderThan(time.Hour), 1)
}

func TestTagStorage_SetTagAndLookup(t *testing.T) {
	s, err := NewTagStorage(Config{Clock: newClock()})
	require.NoError(t, err)

	tagKey := routing.NewNodeID("music")
	data := domain.BytesValue([]byte("song bytes"))
	contentID := s.SetTag(tagKey, []byte("music"), "song.mp3", data)
	assert.Equal(t, routing.Digest([]byte("song bytes")), contentID)

	members, ok := s.TagMembers(tagKey)
	require.True(t, ok)
	assert.Equal(t, []string{contentID.String()}, members)

	content, ok := s.Content(contentID)
	require.True(t, ok)
	assert.Equal(t, "song.mp3", content.Name)
	assert.Equal(t, data, content.Data)

	v, ok := s.Get(tagKey)
	require.True(t, ok)
	assert.Equal(t, domain.KindSet, v.Kind)

	v, ok = s.Get(contentID)
	require.True(t, ok)
	assert.Equal(t, domain.KindContent, v.Kind)
	assert.Equal(t, "song.mp3", v.Content.Name)
}

func TestTagStorage_PutInterpretsRecords(t *testing.T) {
	s, err := NewTagStorage(Config{Clock: newClock()})
	require.NoError(t, err)

	tagKey := routing.NewNodeID("docs")
	other := routing.NewNodeID("existing content")

	// Hashed: the value is new content.
	require.NoError(t, s.Put(domain.Record{Key: tagKey, AppKey: []byte("docs"), Name: "a.txt", Value: domain.TextValue("A"), Hashed: true}))
	// Not hashed: the value names existing content.
	require.NoError(t, s.Put(domain.Record{Key: tagKey, AppKey: []byte("docs"), Value: domain.TextValue(other.String())}))
	// Set values are unioned.
	third := routing.NewNodeID("third")
	require.NoError(t, s.Put(domain.Record{Key: tagKey, Value: domain.SetValue(third.String())}))

	members, ok := s.TagMembers(tagKey)
	require.True(t, ok)
	assert.ElementsMatch(t, []string{domain.TextValue("A").ContentID().String(), other.String(), third.String()}, members)

	// A value that names no content is kept as a plain value.
	plain := routing.NewNodeID("plain")
	require.NoError(t, s.Put(domain.Record{Key: plain, Value: domain.IntValue(5)}))
	v, ok := s.Get(plain)
	require.True(t, ok)
	assert.Equal(t, domain.IntValue(5), v)

	// Content records land in the content namespace.
	cid := routing.NewNodeID("cid")
	require.NoError(t, s.Put(domain.Record{Key: cid, Value: domain.ContentValue("b.txt", domain.TextValue("B"))}))
	content, ok := s.Content(cid)
	require.True(t, ok)
	assert.Equal(t, "b.txt", content.Name)
}

func TestTagStorage_DeleteContentRemovesMemberships(t *testing.T) {
	s, err := NewTagStorage(Config{Clock: newClock()})
	require.NoError(t, err)

	rock := routing.NewNodeID("rock")
	jazz := routing.NewNodeID("jazz")
	data := domain.BytesValue([]byte("track"))
	contentID := s.SetTag(rock, []byte("rock"), "track.mp3", data)
	s.SetTag(jazz, []byte("jazz"), "track.mp3", data)
	keep := s.SetTag(jazz, []byte("jazz"), "other.mp3", domain.BytesValue([]byte("other")))

	assert.True(t, s.DeleteContent(contentID))

	_, ok := s.TagMembers(rock)
	assert.False(t, ok, "emptied tag should be dropped")
	members, ok := s.TagMembers(jazz)
	require.True(t, ok)
	assert.Equal(t, []string{keep.String()}, members)
}

func TestTagStorage_DeleteTagMemberKeepsContent(t *testing.T) {
	s, err := NewTagStorage(Config{Clock: newClock()})
	require.NoError(t, err)

	tagKey := routing.NewNodeID("photos")
	contentID := s.SetTag(tagKey, []byte("photos"), "cat.png", domain.BytesValue([]byte("cat")))

	assert.True(t, s.DeleteTag(tagKey, contentID))
	assert.False(t, s.DeleteTag(tagKey, contentID))

	_, ok := s.Content(contentID)
	assert.True(t, ok)
}

func TestTagStorage_IndependentExpiry(t *testing.T) {
	clk := newClock()
	s, err := NewTagStorage(Config{Clock: clk, TTL: time.Hour})
	require.NoError(t, err)

	tagKey := routing.NewNodeID("tag")
	contentID := s.SetTag(tagKey, []byte("tag"), "f", domain.TextValue("data"))

	// Renew only the tag membership by adding another member.
	clk.Advance(40 * time.Minute)
	other := routing.NewNodeID("other")
	s.AddTagMember(tagKey, []byte("tag"), other)

	clk.Advance(30 * time.Minute)
	_, ok := s.Content(contentID)
	assert.False(t, ok, "content should have expired")

	members, ok := s.TagMembers(tagKey)
	require.True(t, ok)
	assert.Equal(t, []string{other.String()}, members, "expired content is scrubbed from tags")
}

func TestTagStorage_IterOlderThanMergesNamespaces(t *testing.T) {
	clk := newClock()
	s, err := NewTagStorage(Config{Clock: clk})
	require.NoError(t, err)

	tagKey := routing.NewNodeID("tag")
	contentID := s.SetTag(tagKey, []byte("tag"), "f", domain.TextValue("data"))
	clk.Advance(2 * time.Hour)

	old := s.IterOlderThan(time.Hour)
	require.Len(t, old, 2)

	byKey := map[routing.NodeID]domain.Record{}
	for _, r := range old {
		byKey[r.Key] = r
	}
	assert.Equal(t, domain.KindSet, byKey[tagKey].Value.Kind)
	assert.Equal(t, []byte("tag"), byKey[tagKey].AppKey)
	assert.Equal(t, domain.KindContent, byKey[contentID].Value.Kind)

	assert.Empty(t, s.IterOlderThan(3*time.Hour))
}

func TestTagStorage_PlainValues(t *testing.T) {
	clk := newClock()
	s, err := NewTagStorage(Config{Clock: clk, TTL: time.Hour})
	require.NoError(t, err)

	text := record("greeting", domain.TextValue("hello"))
	num := record("answer", domain.IntValue(42))
	require.NoError(t, s.Put(text))
	clk.Advance(time.Minute)
	require.NoError(t, s.Put(num))

	v, ok := s.Get(text.Key)
	require.True(t, ok)
	assert.Equal(t, domain.TextValue("hello"), v)
	_, ok = s.TagMembers(text.Key)
	assert.False(t, ok, "plain values are not tags")

	assert.Equal(t, []domain.Record{text, num}, s.Iterate())

	assert.True(t, s.Delete(text.Key))
	_, ok = s.Get(text.Key)
	assert.False(t, ok)

	clk.Advance(time.Hour)
	_, ok = s.Get(num.Key)
	assert.False(t, ok, "plain values expire with the TTL")
}

func TestTagStorage_SetTagKeepsExistingContent(t *testing.T) {
	clk := newClock()
	s, err := NewTagStorage(Config{Clock: clk, TTL: time.Hour})
	require.NoError(t, err)

	data := domain.TextValue("data")
	contentID := s.SetTag(routing.NewNodeID("first"), []byte("first"), "first.txt", data)

	clk.Advance(40 * time.Minute)
	assert.Equal(t, contentID, s.SetTag(routing.NewNodeID("second"), []byte("second"), "second.txt", data))

	content, ok := s.Content(contentID)
	require.True(t, ok)
	assert.Equal(t, "first.txt", content.Name)

	// Tagging again did not renew the content.
	clk.Advance(30 * time.Minute)
	_, ok = s.Content(contentID)
	assert.False(t, ok)
}
