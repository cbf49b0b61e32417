package port

import (
	"context"
	"errors"

	"github.com/anthanhphan/go-kademlia-dht/internal/node/domain"
	"github.com/anthanhphan/go-kademlia-dht/pkg/routing"
)

var (
	ErrNoNeighbors = errors.New("no known neighbors")
	ErrNoAck       = errors.New("no peer acknowledged the request")
)

//go:generate mockgen -destination=../service/mocks/service_mock.go -package=mocks -source=service.go

// NodeService defines the DHT operations a node offers to applications.
type NodeService interface {
	// Get looks key up locally, then on the network.
	Get(ctx context.Context, key []byte, hash bool) (domain.Value, error)

	// Set stores value under digest(key) on the k nodes nearest to it.
	Set(ctx context.Context, key []byte, name string, value any, hash bool) error

	// Delete removes key from the nodes nearest to it and from local storage.
	Delete(ctx context.Context, key []byte, hash bool) error

	// DeleteTag removes one content id from the set stored under digest(tag).
	DeleteTag(ctx context.Context, tag []byte, contentID routing.NodeID) error

	// Bootstrap pings seed addresses and populates the routing table from them.
	Bootstrap(ctx context.Context, addrs []string) ([]routing.Contact, error)

	// BootstrappableNeighbors returns addresses worth passing to Bootstrap on restart.
	BootstrappableNeighbors() []string
}
