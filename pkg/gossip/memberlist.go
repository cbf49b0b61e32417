package gossip

import (
	"encoding/json"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/anthanhphan/gosdk/logger"
	"github.com/hashicorp/memberlist"
)

// GossipAdapter discovers DHT peers on a LAN through memberlist. Each member
// advertises the port its DHT endpoint listens on; the gossip layer carries no
// DHT traffic itself.
type GossipAdapter struct {
	list *memberlist.Memberlist
	conf *memberlist.Config

	nodeID  string
	addr    string
	port    int
	dhtPort int

	mu     sync.RWMutex
	onJoin func(dhtAddr string)
}

// Ensure GossipAdapter implements Memberlist Delegate
var (
	_ memberlist.Delegate      = (*GossipAdapter)(nil)
	_ memberlist.EventDelegate = (*GossipAdapter)(nil)
)

// NewGossipAdapter starts a memberlist agent on bindAddr:bindPort advertising dhtPort.
func NewGossipAdapter(nodeID string, bindAddr string, bindPort int, dhtPort int) (*GossipAdapter, error) {
	config := memberlist.DefaultLANConfig()
	config.Name = nodeID
	config.BindAddr = bindAddr
	config.BindPort = bindPort
	config.AdvertisePort = bindPort

	// Disable logging for now
	config.LogOutput = io.Discard

	adapter := &GossipAdapter{
		conf:    config,
		nodeID:  nodeID,
		addr:    bindAddr,
		port:    bindPort,
		dhtPort: dhtPort,
	}

	config.Events = adapter   // Handle join/leave events
	config.Delegate = adapter // Handle metadata exchange

	list, err := memberlist.Create(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create memberlist: %w", err)
	}
	adapter.list = list

	return adapter, nil
}

// OnJoin registers fn to be called with the DHT address of every member that joins.
func (g *GossipAdapter) OnJoin(fn func(dhtAddr string)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.onJoin = fn
}

// Join joins the cluster using seed nodes.
func (g *GossipAdapter) Join(seeds []string) error {
	if len(seeds) > 0 {
		_, err := g.list.Join(seeds)
		if err != nil {
			return fmt.Errorf("failed to join cluster: %w", err)
		}
	}
	return nil
}

// Leave leaves the cluster.
func (g *GossipAdapter) Leave() error {
	// gracefully leave
	if err := g.list.Leave(time.Second * 5); err != nil {
		return err
	}
	return g.list.Shutdown()
}

// PeerAddrs returns the DHT addresses of every other live member.
func (g *GossipAdapter) PeerAddrs() []string {
	members := g.list.Members()
	addrs := make([]string, 0, len(members))
	for _, m := range members {
		if m.Name == g.nodeID {
			continue
		}
		addrs = append(addrs, dhtAddr(m))
	}
	return addrs
}

type nodeMeta struct {
	DHTPort int `json:"dht_port"`
}

// NodeMeta returns the local node metadata.
func (g *GossipAdapter) NodeMeta(limit int) []byte {
	data, err := json.Marshal(nodeMeta{DHTPort: g.dhtPort})
	if err != nil {
		logger.Warnw("failed to marshal gossip node meta", "error", err.Error())
		return nil
	}
	if limit > 0 && len(data) > limit {
		logger.Warnw("gossip node meta exceeds limit", "size", len(data), "limit", limit)
		return nil
	}
	return data
}

// NotifyMsg, GetBroadcasts, LocalState, MergeRemoteState are not used here but required by Delegate
func (g *GossipAdapter) NotifyMsg([]byte)                           {}
func (g *GossipAdapter) GetBroadcasts(overhead, limit int) [][]byte { return nil }
func (g *GossipAdapter) LocalState(join bool) []byte                { return nil }
func (g *GossipAdapter) MergeRemoteState(buf []byte, join bool)     {}

// NotifyJoin is invoked when a node joins.
func (g *GossipAdapter) NotifyJoin(node *memberlist.Node) {
	if node.Name == g.nodeID {
		return
	}
	addr := dhtAddr(node)
	logger.Infow("Node joined", "id", node.Name, "dht_addr", addr)

	g.mu.RLock()
	fn := g.onJoin
	g.mu.RUnlock()
	if fn != nil {
		// memberlist holds its state lock while notifying.
		go fn(addr)
	}
}

// NotifyLeave is invoked when a node leaves.
func (g *GossipAdapter) NotifyLeave(node *memberlist.Node) {
	logger.Infow("Node left", "id", node.Name)
}

// NotifyUpdate is invoked when a node is updated.
func (g *GossipAdapter) NotifyUpdate(node *memberlist.Node) {
	g.NotifyJoin(node)
}

// dhtAddr joins the member's address with its advertised DHT port, falling back
// to the gossip port when no metadata was received.
func dhtAddr(node *memberlist.Node) string {
	port := decodeMeta(node.Meta)
	if port <= 0 {
		port = int(node.Port)
	}
	return net.JoinHostPort(node.Addr.String(), strconv.Itoa(port))
}

func decodeMeta(meta []byte) int {
	if len(meta) == 0 {
		return 0
	}
	var m nodeMeta
	if err := json.Unmarshal(meta, &m); err != nil {
		logger.Warnw("failed to decode node metadata", "error", err.Error())
		return 0
	}
	return m.DHTPort
}
