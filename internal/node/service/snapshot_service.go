package service

import (
	"context"
	"time"

	"github.com/anthanhphan/go-kademlia-dht/internal/node/port"
	"github.com/anthanhphan/gosdk/logger"
)

// snapshotService persists what a node needs to rejoin after a restart.
type snapshotService struct {
	core *NodeServiceImpl
}

// newSnapshotService creates snapshot use-case service.
func newSnapshotService(core *NodeServiceImpl) *snapshotService {
	return &snapshotService{core: core}
}

// save writes the node state. Nothing is written while no neighbor is known.
func (s *snapshotService) save(ctx context.Context, store port.StateStore) error {
	neighbors := s.core.BootstrappableNeighbors()
	if len(neighbors) == 0 {
		logger.Warnw("No known neighbors, so not writing to cache")
		return nil
	}

	state := port.State{
		KSize:     s.core.opts.KSize,
		Alpha:     s.core.opts.Alpha,
		ID:        s.core.self,
		Neighbors: neighbors,
	}
	if err := store.Save(ctx, state); err != nil {
		return err
	}
	logger.Debugw("Saved node state", "neighbors", len(neighbors))
	return nil
}

// startWorker saves state periodically until context cancellation.
func (s *snapshotService) startWorker(ctx context.Context, store port.StateStore, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.save(ctx, store); err != nil {
				logger.Warnw("Failed to save node state", "error", err.Error())
			}
		}
	}
}
