package routing

import (
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
	"sync"
	"time"

	"github.com/anthanhphan/go-kademlia-dht/pkg/clock"
)

const (
	// DefaultKSize is the bucket capacity and replication factor.
	DefaultKSize = 20
	// splitDepthModulus allows non-local buckets to split unless their depth is a multiple of it.
	splitDepthModulus = 5
)

// Table is the k-bucket routing table of a single node.
type Table struct {
	mu      sync.RWMutex
	self    NodeID
	ksize   int
	buckets []*Bucket
	clock   clock.Clock
}

// NewTable creates a table covering the whole id space with a single bucket.
func NewTable(self NodeID, ksize int, clk clock.Clock) *Table {
	if ksize <= 0 {
		ksize = DefaultKSize
	}
	clk = clock.OrSystem(clk)
	return &Table{
		self:    self,
		ksize:   ksize,
		buckets: []*Bucket{newBucket(big.NewInt(0), new(big.Int).Set(maxID), ksize, clk.Now())},
		clock:   clk,
	}
}

// Self returns the local node id.
func (t *Table) Self() NodeID {
	return t.self
}

// BucketFor returns the index of the bucket whose range contains id.
func (t *Table) BucketFor(id NodeID) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.bucketForLocked(id)
}

func (t *Table) bucketForLocked(id NodeID) int {
	v := id.Int()
	for i, b := range t.buckets {
		if v.Cmp(b.high) < 0 {
			return i
		}
	}
	return len(t.buckets) - 1
}

// BucketCount returns the number of buckets.
func (t *Table) BucketCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.buckets)
}

// AddContact records that c was seen. When c's bucket is full and cannot split,
// c is cached as a replacement and the least-recently-seen member is returned
// with needsProbe set: the caller should ping it and remove it if it fails.
func (t *Table) AddContact(c Contact) (stale Contact, needsProbe bool) {
	if c.ID == t.self {
		return Contact{}, false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	for i := 0; i <= IDBits; i++ {
		index := t.bucketForLocked(c.ID)
		bucket := t.buckets[index]
		bucket.lastUpdated = t.clock.Now()

		if bucket.addNode(c) {
			return Contact{}, false
		}

		if bucket.canSplit() && (bucket.hasInRange(t.self) || bucket.depth()%splitDepthModulus != 0) {
			t.splitLocked(index)
			continue
		}

		return bucket.head(), true
	}

	// Unreachable in practice: each split halves the range.
	index := t.bucketForLocked(c.ID)
	return t.buckets[index].head(), true
}

func (t *Table) splitLocked(index int) {
	left, right := t.buckets[index].split()
	buckets := make([]*Bucket, 0, len(t.buckets)+1)
	buckets = append(buckets, t.buckets[:index]...)
	buckets = append(buckets, left, right)
	buckets = append(buckets, t.buckets[index+1:]...)
	t.buckets = buckets
}

// RemoveContact drops id from its bucket, promoting a replacement if one is cached.
func (t *Table) RemoveContact(id NodeID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.buckets[t.bucketForLocked(id)].removeNode(id)
}

// IsNewNode reports whether id is not a member of its bucket.
func (t *Table) IsNewNode(id NodeID) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return indexOf(t.buckets[t.bucketForLocked(id)].members, id) < 0
}

// LonelyBuckets returns indices of buckets not updated within maxAge.
func (t *Table) LonelyBuckets(maxAge time.Duration) []int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	cutoff := t.clock.Now().Add(-maxAge)
	var lonely []int
	for i, b := range t.buckets {
		if !b.lastUpdated.After(cutoff) {
			lonely = append(lonely, i)
		}
	}
	return lonely
}

// RandomIDInBucket returns an id drawn uniformly from the range of bucket index.
func (t *Table) RandomIDInBucket(index int, r io.Reader) (NodeID, error) {
	t.mu.RLock()
	if index < 0 || index >= len(t.buckets) {
		t.mu.RUnlock()
		return NodeID{}, fmt.Errorf("bucket index %d out of range", index)
	}
	low, high := t.buckets[index].Range()
	t.mu.RUnlock()

	width := new(big.Int).Sub(high, low)
	offset, err := rand.Int(r, width)
	if err != nil {
		return NodeID{}, fmt.Errorf("failed to draw random id: %w", err)
	}
	return nodeIDFromInt(offset.Add(offset, low)), nil
}

// Contacts returns every member of every bucket.
func (t *Table) Contacts() []Contact {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var out []Contact
	for _, b := range t.buckets {
		out = append(out, b.members...)
	}
	return out
}

// Size returns the number of contacts in the table.
func (t *Table) Size() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	n := 0
	for _, b := range t.buckets {
		n += len(b.members)
	}
	return n
}

// FindNeighbors returns up to count contacts nearest to target, excluding target
// itself and any contact at excludeAddr. Buckets are visited outward from the
// target's bucket, left before right, and collected whole. Once count candidates
// are known, a bucket is only collected if its range can hold a nearer one.
func (t *Table) FindNeighbors(target NodeID, count int, excludeAddr string) []Contact {
	if count <= 0 {
		count = t.ksize
	}

	t.mu.RLock()
	order := t.traversalLocked(t.bucketForLocked(target))
	var candidates []Contact
	for _, index := range order {
		bucket := t.buckets[index]
		if len(candidates) >= count {
			SortByDistance(target, candidates)
			candidates = candidates[:count]
			if bucket.minDistance(target).Cmp(target.Distance(candidates[count-1].ID)) >= 0 {
				continue
			}
		}
		for _, c := range bucket.members {
			if c.ID == target {
				continue
			}
			if excludeAddr != "" && c.Addr == excludeAddr {
				continue
			}
			candidates = append(candidates, c)
		}
	}
	t.mu.RUnlock()

	SortByDistance(target, candidates)
	if len(candidates) > count {
		candidates = candidates[:count]
	}
	return candidates
}

func (t *Table) traversalLocked(start int) []int {
	order := make([]int, 0, len(t.buckets))
	order = append(order, start)
	left, right := start-1, start+1
	goLeft := true
	for left >= 0 || right < len(t.buckets) {
		switch {
		case goLeft && left >= 0:
			order = append(order, left)
			left--
		case right < len(t.buckets):
			order = append(order, right)
			right++
		default:
			order = append(order, left)
			left--
		}
		goLeft = !goLeft
	}
	return order
}
