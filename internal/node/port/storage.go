package port

import (
	"errors"
	"time"

	"github.com/anthanhphan/go-kademlia-dht/internal/node/domain"
	"github.com/anthanhphan/go-kademlia-dht/pkg/routing"
)

var (
	ErrNotFound = errors.New("value not found")
)

//go:generate mockgen -destination=../service/mocks/storage_mock.go -package=mocks -source=storage.go

// Storage is the local key/value engine of a node.
// Entries older than the engine's TTL are culled on every access.
type Storage interface {
	// Put stores a record, renewing its insertion time.
	Put(rec domain.Record) error

	// Get returns the value stored under key.
	Get(key routing.NodeID) (domain.Value, bool)

	// Delete removes key. It reports whether anything was removed.
	Delete(key routing.NodeID) bool

	// DeleteTag removes contentID from the set stored under tagKey.
	DeleteTag(tagKey, contentID routing.NodeID) bool

	// IterOlderThan returns records inserted at least age ago, oldest first.
	IterOlderThan(age time.Duration) []domain.Record

	// Iterate returns every live record, oldest first.
	Iterate() []domain.Record
}
