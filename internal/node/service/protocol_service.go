package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/anthanhphan/go-kademlia-dht/internal/node/domain"
	"github.com/anthanhphan/go-kademlia-dht/internal/node/port"
	"github.com/anthanhphan/go-kademlia-dht/pkg/routing"
	"github.com/anthanhphan/gosdk/logger"
	"golang.org/x/sync/errgroup"
)

var errUnexpectedResponse = errors.New("unexpected response type")

// protocolService answers inbound RPCs and wraps outbound ones so every exchange
// keeps the routing table current.
type protocolService struct {
	core *NodeServiceImpl
}

// newProtocolService creates protocol use-case service.
func newProtocolService(core *NodeServiceImpl) *protocolService {
	return &protocolService{core: core}
}

func (s *protocolService) handleRequest(ctx context.Context, from routing.Contact, req domain.Request) domain.Response {
	s.welcomeIfNew(ctx, from)

	switch r := req.(type) {
	case domain.PingRequest:
		return domain.PingResponse{ID: s.core.self}
	case domain.StoreRequest:
		if err := s.core.storage.Put(r.Record); err != nil {
			logger.Debugw("Rejected store", "from", from.String(), "key", r.Record.Key.String(), "error", err.Error())
			return domain.AckResponse{OK: false}
		}
		return domain.AckResponse{OK: true}
	case domain.DeleteRequest:
		s.core.storage.Delete(r.Key)
		return domain.AckResponse{OK: true}
	case domain.DeleteTagRequest:
		s.core.storage.DeleteTag(r.TagKey, r.ContentID)
		return domain.AckResponse{OK: true}
	case domain.FindNodeRequest:
		return domain.NodesResponse{Contacts: s.core.table.FindNeighbors(r.Target, s.core.opts.KSize, from.Addr)}
	case domain.FindValueRequest:
		if v, ok := s.core.storage.Get(r.Target); ok {
			return domain.ValueResponse{Value: v}
		}
		return domain.NodesResponse{Contacts: s.core.table.FindNeighbors(r.Target, s.core.opts.KSize, from.Addr)}
	default:
		logger.Warnw("Unknown request", "from", from.String())
		return nil
	}
}

// welcomeIfNew adds c to the routing table. A node not seen before first gets a
// copy of every local record it is now among the nearest holders of, as long as
// this node is the nearest known holder.
func (s *protocolService) welcomeIfNew(ctx context.Context, c routing.Contact) {
	if c.ID == s.core.self {
		return
	}
	if !s.core.table.IsNewNode(c.ID) {
		s.addContact(c)
		return
	}

	logger.Debugw("Welcoming new node", "contact", c.String())
	for _, rec := range s.core.storage.Iterate() {
		if s.shouldMigrate(c, rec.Key) {
			go s.migrate(c, rec)
		}
	}
	s.addContact(c)
}

func (s *protocolService) shouldMigrate(c routing.Contact, key routing.NodeID) bool {
	neighbors := s.core.table.FindNeighbors(key, s.core.opts.KSize, "")
	if len(neighbors) == 0 {
		return true
	}
	farthest := neighbors[len(neighbors)-1]
	nearest := neighbors[0]
	newNodeClose := routing.CompareDistance(key, c.ID, farthest.ID) < 0
	thisClosest := routing.CompareDistance(key, s.core.self, nearest.ID) < 0
	return newNodeClose && thisClosest
}

// migrate bypasses the response hooks: a newcomer still parked in a replacement
// cache would otherwise be welcomed again on every acknowledgement.
func (s *protocolService) migrate(c routing.Contact, rec domain.Record) {
	ctx := context.Background()
	if _, err := s.core.transport.Call(ctx, c.Addr, domain.StoreRequest{Record: rec}); err != nil {
		logger.Debugw("Failed to migrate record", "to", c.String(), "key", rec.Key.String(), "error", err.Error())
	}
}

// addContact records c. When its bucket is full the least-recently-seen member is
// probed in the background and evicted if it does not answer.
func (s *protocolService) addContact(c routing.Contact) {
	stale, needsProbe := s.core.table.AddContact(c)
	if !needsProbe {
		return
	}
	go func() {
		if _, err := s.ping(context.Background(), stale); err != nil {
			logger.Debugw("Evicted unresponsive contact", "stale", stale.String(), "replacement", c.String())
		}
	}()
}

// call sends req to c. A peer that does not answer is removed from the table,
// one that does is welcomed.
func (s *protocolService) call(ctx context.Context, c routing.Contact, req domain.Request) (domain.Response, error) {
	resp, err := s.core.transport.Call(ctx, c.Addr, req)
	if err != nil {
		// Local failures and a cancelled caller say nothing about the peer.
		if errors.Is(err, port.ErrPeerUnreachable) && ctx.Err() == nil {
			logger.Debugw("No response, removing contact", "contact", c.String(), "method", req.Method().String(), "error", err.Error())
			s.core.table.RemoveContact(c.ID)
		}
		return nil, err
	}
	s.welcomeIfNew(ctx, c)
	return resp, nil
}

func (s *protocolService) ping(ctx context.Context, c routing.Contact) (routing.NodeID, error) {
	resp, err := s.call(ctx, c, domain.PingRequest{})
	if err != nil {
		return routing.NodeID{}, err
	}
	pong, ok := resp.(domain.PingResponse)
	if !ok {
		return routing.NodeID{}, fmt.Errorf("%w: %T", errUnexpectedResponse, resp)
	}
	return pong.ID, nil
}

func (s *protocolService) store(ctx context.Context, c routing.Contact, rec domain.Record) bool {
	return s.ack(s.call(ctx, c, domain.StoreRequest{Record: rec}))
}

func (s *protocolService) deleteKey(ctx context.Context, c routing.Contact, key routing.NodeID) bool {
	return s.ack(s.call(ctx, c, domain.DeleteRequest{Key: key}))
}

func (s *protocolService) deleteTag(ctx context.Context, c routing.Contact, tagKey, contentID routing.NodeID) bool {
	return s.ack(s.call(ctx, c, domain.DeleteTagRequest{TagKey: tagKey, ContentID: contentID}))
}

func (s *protocolService) ack(resp domain.Response, err error) bool {
	if err != nil {
		return false
	}
	a, ok := resp.(domain.AckResponse)
	return ok && a.OK
}

// bootstrap pings every seed concurrently. Seeds that answer become contacts and
// a lookup of the local id spreads the word.
func (s *protocolService) bootstrap(ctx context.Context, addrs []string) ([]routing.Contact, error) {
	logger.Infow("Bootstrapping", "seeds", len(addrs))

	var (
		mu    sync.Mutex
		seeds []routing.Contact
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, addr := range addrs {
		if addr == "" || addr == s.core.transport.LocalAddr() {
			continue
		}
		g.Go(func() error {
			resp, err := s.core.transport.Call(gctx, addr, domain.PingRequest{})
			if err != nil {
				logger.Warnw("Bootstrap seed unreachable", "addr", addr, "error", err.Error())
				return nil
			}
			pong, ok := resp.(domain.PingResponse)
			if !ok || pong.ID == s.core.self {
				return nil
			}
			c := routing.Contact{ID: pong.ID, Addr: addr}
			s.welcomeIfNew(gctx, c)
			mu.Lock()
			seeds = append(seeds, c)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if len(seeds) == 0 {
		logger.Warnw("No bootstrap seed answered", "seeds", len(addrs))
		return nil, nil
	}

	found := s.core.crawler.findNode(ctx, s.core.self)
	logger.Infow("Bootstrap finished", "seeds", len(seeds), "found", len(found), "table_size", s.core.table.Size())
	return found, nil
}
