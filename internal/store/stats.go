package store

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/rcliao/tiered-memory/internal/model"
)

// Stats holds store statistics.
type Stats struct {
	Backend  string      `json:"backend"`
	Degraded bool        `json:"degraded"`
	Total    int         `json:"total"`
	Tiers    []TierStats `json:"tiers"`
}

// TierStats holds per-tier counts.
type TierStats struct {
	Tier       model.Tier             `json:"tier"`
	Count      int                    `json:"count"`
	Categories map[model.Category]int `json:"categories"`
}

// Stats returns per-tier and per-category counts. It does not count as access.
func (s *TieredStore) Stats(ctx context.Context) (*Stats, error) {
	if err := s.waitReady(ctx); err != nil {
		return nil, err
	}

	tiers := make([]TierStats, len(model.Tiers))
	g, gctx := errgroup.WithContext(ctx)
	for i, tier := range model.Tiers {
		g.Go(func() error {
			recs, err := s.backend.GetAll(gctx, tier)
			if err != nil {
				return err
			}
			ts := TierStats{Tier: tier, Count: len(recs), Categories: map[model.Category]int{}}
			for _, rec := range recs {
				ts.Categories[rec.Category]++
			}
			tiers[i] = ts
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	st := &Stats{Backend: s.backend.Name(), Degraded: s.degraded, Tiers: tiers}
	for _, ts := range tiers {
		st.Total += ts.Count
	}
	return st, nil
}
