package service

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/anthanhphan/go-kademlia-dht/internal/node/domain"
	"github.com/anthanhphan/go-kademlia-dht/internal/node/port"
	"github.com/anthanhphan/go-kademlia-dht/pkg/routing"
	"github.com/anthanhphan/gosdk/logger"
	"golang.org/x/sync/errgroup"
)

// publishService implements get, set and the two deletes on top of node lookups.
type publishService struct {
	core *NodeServiceImpl
}

// newPublishService creates publish use-case service.
func newPublishService(core *NodeServiceImpl) *publishService {
	return &publishService{core: core}
}

// get answers from local storage when it can, otherwise crawls for the value.
func (s *publishService) get(ctx context.Context, key []byte, hash bool) (domain.Value, error) {
	dkey, err := domain.ResolveKey(key, hash)
	if err != nil {
		return domain.Value{}, err
	}
	if v, ok := s.core.storage.Get(dkey); ok {
		return v, nil
	}
	if s.core.table.Size() == 0 {
		logger.Warnw("There are no known neighbors to get key", "key", dkey.String())
		return domain.Value{}, port.ErrNoNeighbors
	}
	return s.core.crawler.findValue(ctx, dkey)
}

// set validates value before touching the network, then stores it on the k
// nodes nearest to digest(key). Hashed values are also stored as content on the
// nodes nearest to their content id, so they can be read without the tag.
func (s *publishService) set(ctx context.Context, key []byte, name string, value any, hash bool) error {
	v, err := domain.NewValue(value)
	if err != nil {
		return err
	}
	rec := domain.Record{
		Key:    routing.Digest(key),
		AppKey: key,
		Name:   name,
		Value:  v,
		Hashed: hash,
	}
	if size := rec.Size(); size > domain.MaxRecordSize {
		return fmt.Errorf("%w: %d bytes", domain.ErrRecordTooLarge, size)
	}

	if err := s.setDigest(ctx, rec); err != nil {
		return err
	}
	if !hash {
		return nil
	}
	content := v
	if v.Kind != domain.KindContent {
		content = domain.ContentValue(name, v)
	}
	return s.setDigest(ctx, domain.Record{
		Key:   v.ContentID(),
		Name:  name,
		Value: content,
	})
}

// setDigest stores rec on the nearest holders of rec.Key, and locally when this
// node is nearer than the farthest of them.
func (s *publishService) setDigest(ctx context.Context, rec domain.Record) error {
	if s.core.table.Size() == 0 {
		logger.Warnw("There are no known neighbors to set key", "key", rec.Key.String())
		return port.ErrNoNeighbors
	}

	holders := s.core.crawler.findNode(ctx, rec.Key)
	if len(holders) == 0 || routing.CompareDistance(rec.Key, s.core.self, holders[len(holders)-1].ID) < 0 {
		if err := s.core.storage.Put(rec); err != nil {
			return err
		}
	}

	logger.Debugw("Storing record", "key", rec.Key.String(), "holders", len(holders))
	if !s.fanOut(ctx, holders, func(ctx context.Context, c routing.Contact) bool {
		return s.core.protocol.store(ctx, c, rec)
	}) {
		return port.ErrNoAck
	}
	return nil
}

// delete removes the key locally, then from every current holder.
func (s *publishService) delete(ctx context.Context, key []byte, hash bool) error {
	dkey, err := domain.ResolveKey(key, hash)
	if err != nil {
		return err
	}
	s.core.storage.Delete(dkey)

	return s.onHolders(ctx, dkey, func(ctx context.Context, c routing.Contact) bool {
		return s.core.protocol.deleteKey(ctx, c, dkey)
	})
}

// deleteTag removes one membership from the tag set, locally and on every holder.
func (s *publishService) deleteTag(ctx context.Context, tag []byte, contentID routing.NodeID) error {
	tagKey := routing.Digest(tag)
	s.core.storage.DeleteTag(tagKey, contentID)

	return s.onHolders(ctx, tagKey, func(ctx context.Context, c routing.Contact) bool {
		return s.core.protocol.deleteTag(ctx, c, tagKey, contentID)
	})
}

func (s *publishService) onHolders(ctx context.Context, key routing.NodeID, fn func(context.Context, routing.Contact) bool) error {
	if s.core.table.Size() == 0 {
		logger.Warnw("There are no known neighbors for key", "key", key.String())
		return port.ErrNoNeighbors
	}
	holders := s.core.crawler.findNode(ctx, key)
	if !s.fanOut(ctx, holders, fn) {
		return port.ErrNoAck
	}
	return nil
}

// fanOut calls fn on every contact in parallel and reports whether any succeeded.
func (s *publishService) fanOut(ctx context.Context, contacts []routing.Contact, fn func(context.Context, routing.Contact) bool) bool {
	var acked atomic.Int32
	g := new(errgroup.Group)
	for _, c := range contacts {
		g.Go(func() error {
			if fn(ctx, c) {
				acked.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()
	return acked.Load() > 0
}
