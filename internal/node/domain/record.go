package domain

import (
	"errors"

	"github.com/anthanhphan/go-kademlia-dht/pkg/routing"
)

// MaxRecordSize bounds the application bytes of a record so that its store
// RPC fits in a single datagram.
const MaxRecordSize = 60 << 10

var ErrRecordTooLarge = errors.New("record does not fit in a single datagram")

// Record is one stored entry as carried by a store RPC and kept by the storage engine.
//
// Key is the DHT key the record lives under. AppKey is the application key it
// was derived from (the tag for tag records) and is kept for republishing.
// Hashed marks Value as raw content; otherwise a non-set Value names an
// existing content id.
type Record struct {
	Key    routing.NodeID
	AppKey []byte
	Name   string
	Value  Value
	Hashed bool
}

// Size approximates the number of bytes the record takes on the wire.
func (r Record) Size() int {
	return len(r.AppKey) + len(r.Name) + r.Value.Size()
}

// ResolveKey maps an application key to a DHT key. With hash set the key is
// digested, otherwise it must already be a 20 byte id.
func ResolveKey(key []byte, hash bool) (routing.NodeID, error) {
	if hash {
		return routing.Digest(key), nil
	}
	id, err := routing.NodeIDFromBytes(key)
	if err != nil {
		return routing.NodeID{}, ErrInvalidKey
	}
	return id, nil
}
