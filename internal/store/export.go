package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"golang.org/x/sync/errgroup"

	"github.com/rcliao/tiered-memory/internal/events"
	"github.com/rcliao/tiered-memory/internal/model"
)

// Clear empties one tier, or every tier when tier is empty.
func (s *TieredStore) Clear(ctx context.Context, tier model.Tier) error {
	if err := s.waitReady(ctx); err != nil {
		return err
	}
	tiers, err := tiersOrAll(tier)
	if err != nil {
		return err
	}
	for _, t := range tiers {
		if err := s.backend.Clear(ctx, t); err != nil {
			return fmt.Errorf("clear %s: %w", t, err)
		}
	}

	name := string(tier)
	if tier == "" {
		name = "all"
	}
	s.opts.bus.Publish(events.MemoryCleared, events.Cleared{Tier: name})
	return nil
}

// ClearSession empties the session-scoped short tier.
func (s *TieredStore) ClearSession(ctx context.Context) error {
	return s.Clear(ctx, model.TierShort)
}

// Export returns the contents of every tier. Reading does not count as access.
func (s *TieredStore) Export(ctx context.Context) (*model.Snapshot, error) {
	if err := s.waitReady(ctx); err != nil {
		return nil, err
	}

	parts := make([][]model.Record, len(model.Tiers))
	g, gctx := errgroup.WithContext(ctx)
	for i, tier := range model.Tiers {
		g.Go(func() error {
			recs, err := s.backend.GetAll(gctx, tier)
			if err != nil {
				return fmt.Errorf("export %s: %w", tier, err)
			}
			for j := range recs {
				recs[j].Tier = ""
			}
			if recs == nil {
				recs = []model.Record{}
			}
			parts[i] = recs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	snap := &model.Snapshot{
		Version:   model.SnapshotVersion,
		Timestamp: s.now(),
		Memories:  make(map[model.Tier][]model.Record, len(model.Tiers)),
	}
	for i, tier := range model.Tiers {
		snap.Memories[tier] = parts[i]
	}
	return snap, nil
}

// Import replaces everything in the store with the snapshot's contents. The
// snapshot is validated first, so a bad snapshot leaves existing data alone.
func (s *TieredStore) Import(ctx context.Context, snap *model.Snapshot) error {
	if err := s.waitReady(ctx); err != nil {
		return err
	}
	if err := validateSnapshot(snap); err != nil {
		return err
	}

	for _, tier := range model.Tiers {
		if err := s.backend.Clear(ctx, tier); err != nil {
			return fmt.Errorf("import: clear %s: %w", tier, err)
		}
	}

	count := 0
	for _, tier := range model.Tiers {
		for _, rec := range snap.Memories[tier] {
			rec.Tier = ""
			if err := s.backend.Put(ctx, tier, rec); err != nil {
				return fmt.Errorf("import %s: %w", rec.ID, err)
			}
			count++
		}
	}

	s.opts.bus.Publish(events.MemoryImported, events.Imported{Timestamp: s.now(), Count: count})
	return nil
}

func validateSnapshot(snap *model.Snapshot) error {
	if snap == nil {
		return fmt.Errorf("%w: empty", ErrInvalidSnapshot)
	}
	if snap.Version == 0 {
		return fmt.Errorf("%w: missing version", ErrInvalidSnapshot)
	}
	if snap.Version != model.SnapshotVersion {
		return fmt.Errorf("%w: unsupported version %d", ErrInvalidSnapshot, snap.Version)
	}
	if snap.Memories == nil {
		return fmt.Errorf("%w: missing memories", ErrInvalidSnapshot)
	}

	seen := make(map[string]model.Tier)
	for tier, recs := range snap.Memories {
		if !tier.Valid() {
			return fmt.Errorf("%w: unknown tier %q", ErrInvalidSnapshot, tier)
		}
		for _, rec := range recs {
			if rec.ID == "" {
				return fmt.Errorf("%w: record without id in %s", ErrInvalidSnapshot, tier)
			}
			if err := validateRecord(rec); err != nil {
				return fmt.Errorf("%w: %s in %s: %v", ErrInvalidSnapshot, rec.ID, tier, err)
			}
			if prev, dup := seen[rec.ID]; dup {
				return fmt.Errorf("%w: %s appears in both %s and %s", ErrInvalidSnapshot, rec.ID, prev, tier)
			}
			seen[rec.ID] = tier
		}
	}
	return nil
}

// validateRecord applies the rules Store enforces on new records, so an
// imported record can be searched, swept and exported like any other.
func validateRecord(rec model.Record) error {
	if !json.Valid(rec.Payload) {
		return errors.New("payload is not valid JSON")
	}
	if !rec.Category.Valid() {
		return fmt.Errorf("%w %q", ErrInvalidCategory, rec.Category)
	}
	if rec.CreatedAt.IsZero() {
		return errors.New("missing created_at")
	}
	if math.IsNaN(rec.Importance) || rec.Importance < 0 || rec.Importance > 1 {
		return fmt.Errorf("importance %v outside [0,1]", rec.Importance)
	}
	if rec.AccessCount < 0 {
		return fmt.Errorf("negative access_count %d", rec.AccessCount)
	}
	return nil
}
