package service

import (
	"context"
	"time"

	"github.com/anthanhphan/gosdk/logger"
	"golang.org/x/sync/errgroup"
)

// refreshService keeps buckets and stored records alive.
type refreshService struct {
	core *NodeServiceImpl
}

// newRefreshService creates refresh use-case service.
func newRefreshService(core *NodeServiceImpl) *refreshService {
	return &refreshService{core: core}
}

// startWorker runs periodic refresh until context cancellation.
func (s *refreshService) startWorker(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.refresh(ctx)
		}
	}
}

// refresh looks up a random id in every lonely bucket, then stores again every
// record older than the republish age.
func (s *refreshService) refresh(ctx context.Context) {
	lonely := s.core.table.LonelyBuckets(s.core.opts.RefreshInterval)

	g := new(errgroup.Group)
	for _, index := range lonely {
		target, err := s.core.table.RandomIDInBucket(index, s.core.opts.Rand)
		if err != nil {
			logger.Warnw("Skipping bucket refresh", "bucket", index, "error", err.Error())
			continue
		}
		g.Go(func() error {
			s.core.crawler.findNode(ctx, target)
			return nil
		})
	}
	_ = g.Wait()

	records := s.core.storage.IterOlderThan(s.core.opts.RepublishAge)
	republished := 0
	for _, rec := range records {
		if err := s.core.publisher.setDigest(ctx, rec); err != nil {
			logger.Debugw("Republish failed", "key", rec.Key.String(), "error", err.Error())
			continue
		}
		republished++
	}

	logger.Infow("Refresh finished", "lonely_buckets", len(lonely), "records", len(records), "republished", republished)
}
