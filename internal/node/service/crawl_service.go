package service

import (
	"context"
	"slices"

	"github.com/anthanhphan/go-kademlia-dht/internal/node/domain"
	"github.com/anthanhphan/go-kademlia-dht/internal/node/port"
	"github.com/anthanhphan/go-kademlia-dht/pkg/routing"
	"github.com/anthanhphan/gosdk/logger"
	"golang.org/x/sync/errgroup"
)

// crawlService runs iterative lookups: rounds of at most alpha parallel calls
// to the nearest contacts not yet asked, until the k nearest have all answered.
type crawlService struct {
	core *NodeServiceImpl
}

// newCrawlService creates crawl use-case service.
func newCrawlService(core *NodeServiceImpl) *crawlService {
	return &crawlService{core: core}
}

// findNode returns the k nearest responders to target, nearest first.
func (s *crawlService) findNode(ctx context.Context, target routing.NodeID) []routing.Contact {
	_, nearest := s.crawl(ctx, domain.FindNodeRequest{Target: target}, target)
	return nearest
}

// findValue returns the first value any node reports for target.
func (s *crawlService) findValue(ctx context.Context, target routing.NodeID) (domain.Value, error) {
	v, _ := s.crawl(ctx, domain.FindValueRequest{Target: target}, target)
	if v == nil {
		return domain.Value{}, port.ErrNotFound
	}
	return *v, nil
}

type crawlResult struct {
	contact routing.Contact
	resp    domain.Response
	err     error
}

func (s *crawlService) crawl(ctx context.Context, req domain.Request, target routing.NodeID) (*domain.Value, []routing.Contact) {
	ksize, alpha := s.core.opts.KSize, s.core.opts.Alpha
	st := newCrawlState(target, s.core.self, ksize, s.core.table.FindNeighbors(target, alpha, ""))
	_, wantValue := req.(domain.FindValueRequest)

	var lastIDs []routing.NodeID
	for round := 1; ctx.Err() == nil; round++ {
		// Once a round brings nothing nearer, every remaining candidate is asked.
		count := alpha
		ids := st.nearestIDs()
		if slices.Equal(ids, lastIDs) {
			count = ksize
		}
		lastIDs = ids

		batch := st.uncontacted(count)
		if len(batch) == 0 {
			break
		}
		for _, c := range batch {
			st.markContacted(c.ID)
		}

		for r := range s.dispatch(ctx, req, batch) {
			if r.err != nil {
				st.remove(r.contact.ID)
				continue
			}
			switch resp := r.resp.(type) {
			case domain.ValueResponse:
				if !wantValue {
					st.remove(r.contact.ID)
					continue
				}
				logger.Debugw("Value found", "target", target.String(), "holder", r.contact.String(), "round", round)
				return &resp.Value, nil
			case domain.NodesResponse:
				st.markResponded(r.contact.ID)
				st.merge(resp.Contacts)
			default:
				st.remove(r.contact.ID)
			}
		}
	}

	return nil, st.responders()
}

// dispatch calls every contact in batch, at most alpha at a time. The channel is
// buffered so calls left behind by a short-circuited crawl still complete.
func (s *crawlService) dispatch(ctx context.Context, req domain.Request, batch []routing.Contact) <-chan crawlResult {
	results := make(chan crawlResult, len(batch))

	g := new(errgroup.Group)
	g.SetLimit(s.core.opts.Alpha)
	go func() {
		for _, c := range batch {
			g.Go(func() error {
				resp, err := s.core.protocol.call(ctx, c, req)
				results <- crawlResult{contact: c, resp: resp, err: err}
				return nil
			})
		}
		_ = g.Wait()
		close(results)
	}()

	return results
}

// crawlState is owned by a single crawl.
type crawlState struct {
	target    routing.NodeID
	self      routing.NodeID
	ksize     int
	shortlist []routing.Contact
	known     map[routing.NodeID]struct{}
	contacted map[routing.NodeID]struct{}
	responded map[routing.NodeID]struct{}
}

func newCrawlState(target, self routing.NodeID, ksize int, seeds []routing.Contact) *crawlState {
	st := &crawlState{
		target:    target,
		self:      self,
		ksize:     ksize,
		known:     make(map[routing.NodeID]struct{}),
		contacted: make(map[routing.NodeID]struct{}),
		responded: make(map[routing.NodeID]struct{}),
	}
	st.merge(seeds)
	return st
}

// merge adds contacts not seen before, keeping the shortlist sorted.
func (st *crawlState) merge(contacts []routing.Contact) {
	for _, c := range contacts {
		if c.ID == st.self {
			continue
		}
		if _, ok := st.known[c.ID]; ok {
			continue
		}
		st.known[c.ID] = struct{}{}
		st.shortlist = append(st.shortlist, c)
	}
	routing.SortByDistance(st.target, st.shortlist)
}

// remove drops a failed contact. It stays known so it is never re-added.
func (st *crawlState) remove(id routing.NodeID) {
	st.shortlist = slices.DeleteFunc(st.shortlist, func(c routing.Contact) bool {
		return c.ID == id
	})
}

func (st *crawlState) markContacted(id routing.NodeID) {
	st.contacted[id] = struct{}{}
}

func (st *crawlState) markResponded(id routing.NodeID) {
	st.responded[id] = struct{}{}
}

func (st *crawlState) nearest() []routing.Contact {
	if len(st.shortlist) > st.ksize {
		return st.shortlist[:st.ksize]
	}
	return st.shortlist
}

func (st *crawlState) nearestIDs() []routing.NodeID {
	nearest := st.nearest()
	ids := make([]routing.NodeID, len(nearest))
	for i, c := range nearest {
		ids[i] = c.ID
	}
	return ids
}

// uncontacted returns up to count of the k nearest that were not asked yet.
func (st *crawlState) uncontacted(count int) []routing.Contact {
	var out []routing.Contact
	for _, c := range st.nearest() {
		if len(out) == count {
			break
		}
		if _, ok := st.contacted[c.ID]; !ok {
			out = append(out, c)
		}
	}
	return out
}

func (st *crawlState) responders() []routing.Contact {
	var out []routing.Contact
	for _, c := range st.nearest() {
		if _, ok := st.responded[c.ID]; ok {
			out = append(out, c)
		}
	}
	return out
}
