package routing

import (
	"math/big"
	"time"
)

// Bucket holds up to ksize contacts whose ids fall in [low, high).
// Members are ordered least-recently-seen first.
type Bucket struct {
	low          *big.Int
	high         *big.Int
	ksize        int
	members      []Contact
	replacements []Contact
	lastUpdated  time.Time
}

func newBucket(low, high *big.Int, ksize int, now time.Time) *Bucket {
	return &Bucket{
		low:         low,
		high:        high,
		ksize:       ksize,
		lastUpdated: now,
	}
}

// Range returns copies of the bucket bounds.
func (b *Bucket) Range() (low, high *big.Int) {
	return new(big.Int).Set(b.low), new(big.Int).Set(b.high)
}

// Members returns a snapshot of the members, least-recently-seen first.
func (b *Bucket) Members() []Contact {
	out := make([]Contact, len(b.members))
	copy(out, b.members)
	return out
}

// Replacements returns a snapshot of the replacement cache, oldest first.
func (b *Bucket) Replacements() []Contact {
	out := make([]Contact, len(b.replacements))
	copy(out, b.replacements)
	return out
}

func (b *Bucket) Len() int {
	return len(b.members)
}

func (b *Bucket) isFull() bool {
	return len(b.members) >= b.ksize
}

func (b *Bucket) hasInRange(id NodeID) bool {
	v := id.Int()
	return v.Cmp(b.low) >= 0 && v.Cmp(b.high) < 0
}

// minDistance is the smallest XOR distance from target to any id in range.
// Ranges come from halving, so they are aligned powers of two in width.
func (b *Bucket) minDistance(target NodeID) *big.Int {
	shift := uint(new(big.Int).Sub(b.high, b.low).BitLen() - 1)
	d := new(big.Int).Xor(b.low, target.Int())
	return d.Rsh(d, shift).Lsh(d, shift)
}

func (b *Bucket) head() Contact {
	return b.members[0]
}

func (b *Bucket) depth() int {
	ids := make([]NodeID, len(b.members))
	for i, c := range b.members {
		ids[i] = c.ID
	}
	return SharedPrefixLen(ids)
}

func (b *Bucket) canSplit() bool {
	width := new(big.Int).Sub(b.high, b.low)
	return width.Cmp(big.NewInt(2)) >= 0
}

// addNode moves a known contact to the most-recently-seen end or appends a new one.
// A full bucket caches the newcomer as a replacement and reports false.
func (b *Bucket) addNode(c Contact) bool {
	if i := indexOf(b.members, c.ID); i >= 0 {
		b.members = append(b.members[:i], b.members[i+1:]...)
		b.members = append(b.members, c)
		return true
	}
	if len(b.members) < b.ksize {
		if i := indexOf(b.replacements, c.ID); i >= 0 {
			b.replacements = append(b.replacements[:i], b.replacements[i+1:]...)
		}
		b.members = append(b.members, c)
		return true
	}
	b.addReplacement(c)
	return false
}

func (b *Bucket) addReplacement(c Contact) {
	if i := indexOf(b.replacements, c.ID); i >= 0 {
		b.replacements = append(b.replacements[:i], b.replacements[i+1:]...)
	}
	b.replacements = append(b.replacements, c)
	if len(b.replacements) > b.ksize {
		b.replacements = b.replacements[1:]
	}
}

// removeNode drops id from the members or the replacement cache.
// A removed member is replaced by the most recently seen replacement.
func (b *Bucket) removeNode(id NodeID) bool {
	if i := indexOf(b.replacements, id); i >= 0 {
		b.replacements = append(b.replacements[:i], b.replacements[i+1:]...)
	}
	i := indexOf(b.members, id)
	if i < 0 {
		return false
	}
	b.members = append(b.members[:i], b.members[i+1:]...)
	if n := len(b.replacements); n > 0 {
		promoted := b.replacements[n-1]
		b.replacements = b.replacements[:n-1]
		b.members = append(b.members, promoted)
	}
	return true
}

// split halves the range at its midpoint and redistributes members and replacements.
func (b *Bucket) split() (*Bucket, *Bucket) {
	mid := new(big.Int).Add(b.low, b.high)
	mid.Rsh(mid, 1)

	left := newBucket(b.low, mid, b.ksize, b.lastUpdated)
	right := newBucket(new(big.Int).Set(mid), b.high, b.ksize, b.lastUpdated)

	for _, c := range b.members {
		target := right
		if left.hasInRange(c.ID) {
			target = left
		}
		target.members = append(target.members, c)
	}
	for _, c := range b.replacements {
		target := right
		if left.hasInRange(c.ID) {
			target = left
		}
		target.replacements = append(target.replacements, c)
	}
	return left, right
}

func indexOf(list []Contact, id NodeID) int {
	for i, c := range list {
		if c.ID == id {
			return i
		}
	}
	return -1
}
