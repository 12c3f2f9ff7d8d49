package store

import (
	"context"
	"time"

	"github.com/rcliao/tiered-memory/internal/events"
	"github.com/rcliao/tiered-memory/internal/model"
)

// SweepResult summarizes one maintenance pass.
type SweepResult struct {
	Scanned int `json:"scanned"`
	Expired int `json:"expired"`
	Failed  int `json:"failed"`
}

func (s *TieredStore) retention(tier model.Tier) time.Duration {
	switch tier {
	case model.TierMedium:
		return s.opts.mediumRetention
	case model.TierLong:
		return s.opts.longRetention
	}
	return 0
}

// Sweep deletes medium and long tier records older than their tier's
// retention period. The short tier is left alone; it is cleared at session
// boundaries with ClearSession. Failures are logged and counted, and only a
// cancelled context stops the sweep early.
func (s *TieredStore) Sweep(ctx context.Context) (SweepResult, error) {
	var res SweepResult
	if err := s.waitReady(ctx); err != nil {
		return res, err
	}
	log := s.opts.logger
	now := s.now()

	for _, tier := range []model.Tier{model.TierMedium, model.TierLong} {
		recs, err := s.backend.GetAll(ctx, tier)
		if err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			log.Warn("maintenance: list tier", "tier", tier, "error", err)
			res.Failed++
			continue
		}
		maxAge := s.retention(tier)
		for _, rec := range recs {
			res.Scanned++
			if now.Sub(rec.CreatedAt) <= maxAge {
				continue
			}
			if err := s.backend.Delete(ctx, tier, rec.ID); err != nil {
				if ctx.Err() != nil {
					return res, ctx.Err()
				}
				log.Warn("maintenance: delete expired memory", "tier", tier, "id", rec.ID, "error", err)
				res.Failed++
				continue
			}
			res.Expired++
		}
	}

	log.Info("maintenance sweep complete", "scanned", res.Scanned, "expired", res.Expired, "failed", res.Failed)
	s.opts.bus.Publish(events.MemorySwept, events.Swept{Expired: res.Expired, Failed: res.Failed})
	return res, nil
}

func (s *TieredStore) maintenanceLoop(ctx context.Context, interval time.Duration) {
	defer close(s.loopDone)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil && ctx.Err() == nil {
				s.opts.logger.Warn("maintenance sweep failed", "error", err)
			}
		}
	}
}
