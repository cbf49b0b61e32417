package routing

import (
	"bytes"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"math/big"
	"math/bits"
	"sort"
)

const (
	// IDLength is the size of a node id or key in bytes.
	IDLength = sha1.Size
	// IDBits is the size of the id space in bits.
	IDBits = IDLength * 8
)

var ErrInvalidID = errors.New("invalid node id")

// maxID is 2^160, the exclusive upper bound of the id space.
var maxID = new(big.Int).Lsh(big.NewInt(1), IDBits)

// NodeID identifies a node and doubles as a storage key.
type NodeID [IDLength]byte

// Digest returns the SHA-1 of data as a NodeID.
func Digest(data []byte) NodeID {
	return NodeID(sha1.Sum(data))
}

// NewNodeID derives an id from a seed string.
func NewNodeID(seed string) NodeID {
	return Digest([]byte(seed))
}

// RandomNodeID reads a uniformly random id from r.
func RandomNodeID(r io.Reader) (NodeID, error) {
	var id NodeID
	if _, err := io.ReadFull(r, id[:]); err != nil {
		return NodeID{}, fmt.Errorf("failed to read random id: %w", err)
	}
	return id, nil
}

// NodeIDFromBytes copies a 20-byte slice into a NodeID.
func NodeIDFromBytes(b []byte) (NodeID, error) {
	var id NodeID
	if len(b) != IDLength {
		return id, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidID, IDLength, len(b))
	}
	copy(id[:], b)
	return id, nil
}

// ParseNodeID decodes a hex encoded id.
func ParseNodeID(s string) (NodeID, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return NodeID{}, fmt.Errorf("%w: %v", ErrInvalidID, err)
	}
	return NodeIDFromBytes(b)
}

func nodeIDFromInt(v *big.Int) NodeID {
	var id NodeID
	v.FillBytes(id[:])
	return id
}

func (id NodeID) String() string {
	return hex.EncodeToString(id[:])
}

func (id NodeID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

func (id *NodeID) UnmarshalText(text []byte) error {
	parsed, err := ParseNodeID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// Bytes returns a copy of the id bytes.
func (id NodeID) Bytes() []byte {
	b := make([]byte, IDLength)
	copy(b, id[:])
	return b
}

// Int returns the id as an unsigned big-endian integer.
func (id NodeID) Int() *big.Int {
	return new(big.Int).SetBytes(id[:])
}

// Xor returns id XOR other.
func (id NodeID) Xor(other NodeID) NodeID {
	var out NodeID
	for i := range id {
		out[i] = id[i] ^ other[i]
	}
	return out
}

// Distance is the Kademlia metric between two ids.
func (id NodeID) Distance(other NodeID) *big.Int {
	return id.Xor(other).Int()
}

// CompareDistance reports whether a is closer to target than b (-1), farther (1) or equally far (0).
func CompareDistance(target, a, b NodeID) int {
	da := target.Xor(a)
	db := target.Xor(b)
	return bytes.Compare(da[:], db[:])
}

// SharedPrefixLen returns the number of leading bits every id in ids has in common.
func SharedPrefixLen(ids []NodeID) int {
	if len(ids) == 0 {
		return 0
	}
	prefix := IDBits
	first := ids[0]
	for _, id := range ids[1:] {
		diff := first.Xor(id)
		n := 0
		for _, b := range diff {
			if b == 0 {
				n += 8
				continue
			}
			n += bits.LeadingZeros8(b)
			break
		}
		if n < prefix {
			prefix = n
		}
	}
	return prefix
}

// Contact is a reachable peer. Two contacts are the same peer when their ids match.
type Contact struct {
	ID   NodeID
	Addr string
}

func (c Contact) String() string {
	return fmt.Sprintf("%s@%s", c.ID.String()[:8], c.Addr)
}

// SortByDistance orders contacts nearest first to target, breaking ties by id.
func SortByDistance(target NodeID, contacts []Contact) {
	sort.SliceStable(contacts, func(i, j int) bool {
		cmp := CompareDistance(target, contacts[i].ID, contacts[j].ID)
		if cmp != 0 {
			return cmp < 0
		}
		return bytes.Compare(contacts[i].ID[:], contacts[j].ID[:]) < 0
	})
}
