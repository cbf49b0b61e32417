package service

import (
	"context"
	"crypto/rand"
	"io"
	"time"

	"github.com/anthanhphan/go-kademlia-dht/internal/node/domain"
	"github.com/anthanhphan/go-kademlia-dht/internal/node/port"
	"github.com/anthanhphan/go-kademlia-dht/pkg/clock"
	"github.com/anthanhphan/go-kademlia-dht/pkg/routing"
)

const (
	DefaultAlpha           = 3
	DefaultRefreshInterval = time.Hour
	DefaultRepublishAge    = time.Hour
)

// Options tunes a node. Zero values take the defaults.
type Options struct {
	KSize int
	Alpha int
	// RefreshInterval is both the refresh period and the age after which a bucket is lonely.
	RefreshInterval time.Duration
	// RepublishAge is how old a local record must be before refresh stores it again.
	RepublishAge time.Duration
	Rand         io.Reader
	Clock        clock.Clock
}

func (o Options) withDefaults() Options {
	if o.KSize <= 0 {
		o.KSize = routing.DefaultKSize
	}
	if o.Alpha <= 0 {
		o.Alpha = DefaultAlpha
	}
	if o.RefreshInterval <= 0 {
		o.RefreshInterval = DefaultRefreshInterval
	}
	if o.RepublishAge <= 0 {
		o.RepublishAge = DefaultRepublishAge
	}
	if o.Rand == nil {
		o.Rand = rand.Reader
	}
	o.Clock = clock.OrSystem(o.Clock)
	return o
}

// NodeServiceImpl is a facade that composes the DHT use-case services.
type NodeServiceImpl struct {
	self      routing.NodeID
	table     *routing.Table
	storage   port.Storage
	transport port.Transport
	opts      Options

	protocol  *protocolService
	crawler   *crawlService
	publisher *publishService
	refresher *refreshService
	snapshots *snapshotService
}

// Ensure NodeServiceImpl implements port.NodeService and port.RequestHandler.
var (
	_ port.NodeService    = (*NodeServiceImpl)(nil)
	_ port.RequestHandler = (*NodeServiceImpl)(nil)
)

// NewNodeService builds the node facade and all use-case services.
func NewNodeService(self routing.NodeID, storage port.Storage, transport port.Transport, opts Options) *NodeServiceImpl {
	opts = opts.withDefaults()
	svc := &NodeServiceImpl{
		self:      self,
		table:     routing.NewTable(self, opts.KSize, opts.Clock),
		storage:   storage,
		transport: transport,
		opts:      opts,
	}

	svc.protocol = newProtocolService(svc)
	svc.crawler = newCrawlService(svc)
	svc.publisher = newPublishService(svc)
	svc.refresher = newRefreshService(svc)
	svc.snapshots = newSnapshotService(svc)

	return svc
}

// Self returns the local node id.
func (s *NodeServiceImpl) Self() routing.NodeID {
	return s.self
}

// Table exposes the routing table for inspection.
func (s *NodeServiceImpl) Table() *routing.Table {
	return s.table
}

// HandleRequest answers an inbound RPC after welcoming its sender.
func (s *NodeServiceImpl) HandleRequest(ctx context.Context, from routing.Contact, req domain.Request) domain.Response {
	return s.protocol.handleRequest(ctx, from, req)
}

// Get returns the value stored under key, locally or on the network.
func (s *NodeServiceImpl) Get(ctx context.Context, key []byte, hash bool) (domain.Value, error) {
	return s.publisher.get(ctx, key, hash)
}

// Set stores value under digest(key) on the nodes nearest to it.
func (s *NodeServiceImpl) Set(ctx context.Context, key []byte, name string, value any, hash bool) error {
	return s.publisher.set(ctx, key, name, value, hash)
}

// Delete removes key locally and from the nodes nearest to it.
func (s *NodeServiceImpl) Delete(ctx context.Context, key []byte, hash bool) error {
	return s.publisher.delete(ctx, key, hash)
}

// DeleteTag removes contentID from the tag set stored under digest(tag).
func (s *NodeServiceImpl) DeleteTag(ctx context.Context, tag []byte, contentID routing.NodeID) error {
	return s.publisher.deleteTag(ctx, tag, contentID)
}

// Bootstrap pings the seed addresses, then looks up the local id to fill the table.
func (s *NodeServiceImpl) Bootstrap(ctx context.Context, addrs []string) ([]routing.Contact, error) {
	return s.protocol.bootstrap(ctx, addrs)
}

// BootstrappableNeighbors returns the addresses of the contacts nearest to this node.
func (s *NodeServiceImpl) BootstrappableNeighbors() []string {
	neighbors := s.table.FindNeighbors(s.self, s.opts.KSize, "")
	addrs := make([]string, 0, len(neighbors))
	for _, c := range neighbors {
		addrs = append(addrs, c.Addr)
	}
	return addrs
}

// FindNode runs a node lookup and returns the k nearest responders to target.
func (s *NodeServiceImpl) FindNode(ctx context.Context, target routing.NodeID) []routing.Contact {
	return s.crawler.findNode(ctx, target)
}

// Refresh looks up lonely buckets and republishes old records once.
func (s *NodeServiceImpl) Refresh(ctx context.Context) {
	s.refresher.refresh(ctx)
}

// StartRefreshWorker runs Refresh every interval until ctx is cancelled.
func (s *NodeServiceImpl) StartRefreshWorker(ctx context.Context, interval time.Duration) {
	s.refresher.startWorker(ctx, interval)
}

// SaveState writes a snapshot of this node to store.
func (s *NodeServiceImpl) SaveState(ctx context.Context, store port.StateStore) error {
	return s.snapshots.save(ctx, store)
}

// StartSnapshotWorker saves a snapshot every interval until ctx is cancelled.
func (s *NodeServiceImpl) StartSnapshotWorker(ctx context.Context, store port.StateStore, interval time.Duration) {
	s.snapshots.startWorker(ctx, store, interval)
}
