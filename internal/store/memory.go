package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rcliao/tiered-memory/internal/backend"
	"github.com/rcliao/tiered-memory/internal/model"
)

// recencyWindow is how long the recency bonus takes to decay to zero.
const recencyWindow = 30 * 24 * time.Hour

// StoreParams holds parameters for storing a memory.
type StoreParams struct {
	// Payload is JSON-encoded unless it already is a json.RawMessage.
	Payload  any
	Category model.Category
	// Importance in [0,1]; out-of-range values are clamped. Nil means
	// model.DefaultImportance.
	Importance *float64
}

// Importance is a helper for StoreParams.Importance.
func Importance(v float64) *float64 { return &v }

// CategoryParams holds parameters for RetrieveByCategory.
type CategoryParams struct {
	Category model.Category
	Limit    int        // 0 means 10
	Tier     model.Tier // empty means all tiers
}

// Store places a new record in the tier its importance selects and returns
// its id.
func (s *TieredStore) Store(ctx context.Context, p StoreParams) (string, error) {
	if err := s.waitReady(ctx); err != nil {
		return "", err
	}
	if !p.Category.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidCategory, p.Category)
	}

	importance := model.DefaultImportance
	if p.Importance != nil {
		importance = *p.Importance
	}
	if math.IsNaN(importance) {
		return "", ErrInvalidImportance
	}
	importance = clamp(importance)

	payload, err := encodePayload(p.Payload)
	if err != nil {
		return "", err
	}

	now := s.now()
	rec := model.Record{
		ID:         s.newID(now),
		Payload:    payload,
		Category:   p.Category,
		CreatedAt:  now,
		Importance: importance,
	}
	tier := model.TierFor(importance)
	if err := s.backend.Put(ctx, tier, rec); err != nil {
		return "", fmt.Errorf("store memory: %w", err)
	}
	return rec.ID, nil
}

func encodePayload(v any) (json.RawMessage, error) {
	if raw, ok := v.(json.RawMessage); ok {
		if !json.Valid(raw) {
			return nil, fmt.Errorf("payload is not valid JSON")
		}
		return raw, nil
	}
	// Searches match against these bytes, so keep &, < and > literal.
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Retrieve looks a record up by id, in tier or (if tier is empty) in short,
// medium and long order. A hit counts as an access and may promote the
// record. A miss returns nil and no error.
func (s *TieredStore) Retrieve(ctx context.Context, id string, tier model.Tier) (*model.Record, error) {
	if err := s.waitReady(ctx); err != nil {
		return nil, err
	}
	tiers, err := tiersOrAll(tier)
	if err != nil {
		return nil, err
	}

	for _, t := range tiers {
		rec, err := s.backend.Get(ctx, t, id)
		if errors.Is(err, backend.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("retrieve %s: %w", id, err)
		}
		updated, err := s.access(ctx, *rec)
		if err != nil {
			return nil, err
		}
		return &updated, nil
	}
	return nil, nil
}

// RetrieveByCategory returns up to Limit records of one category, most
// important first and newest first among equals. Each returned record counts
// as accessed.
func (s *TieredStore) RetrieveByCategory(ctx context.Context, p CategoryParams) ([]model.Record, error) {
	if err := s.waitReady(ctx); err != nil {
		return nil, err
	}
	tiers, err := tiersOrAll(p.Tier)
	if err != nil {
		return nil, err
	}
	limit := p.Limit
	if limit <= 0 {
		limit = 10
	}

	var candidates []model.Record
	for _, t := range tiers {
		recs, err := s.backend.GetAllByCategory(ctx, t, p.Category)
		if err != nil {
			return nil, fmt.Errorf("retrieve category %s: %w", p.Category, err)
		}
		candidates = append(candidates, recs...)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Importance != candidates[j].Importance {
			return candidates[i].Importance > candidates[j].Importance
		}
		return candidates[i].CreatedAt.After(candidates[j].CreatedAt)
	})
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	return s.accessAll(ctx, candidates)
}

func (s *TieredStore) accessAll(ctx context.Context, recs []model.Record) ([]model.Record, error) {
	out := make([]model.Record, 0, len(recs))
	for _, rec := range recs {
		updated, err := s.access(ctx, rec)
		if err != nil {
			return nil, err
		}
		out = append(out, updated)
	}
	return out, nil
}

// access records a successful read of rec: bumps its access statistics,
// recalculates importance, writes it back and promotes it when warranted.
// rec.Tier must name the partition it was read from.
func (s *TieredStore) access(ctx context.Context, rec model.Record) (model.Record, error) {
	now := s.now()
	rec.AccessCount++
	rec.LastAccessedAt = &now
	rec.Importance = recalculateImportance(rec, now)

	from := rec.Tier
	if err := s.backend.Put(ctx, from, rec); err != nil {
		return rec, fmt.Errorf("update access %s: %w", rec.ID, err)
	}

	to := promotionTarget(from, rec.Importance)
	if to == from {
		return rec, nil
	}
	if err := s.backend.Put(ctx, to, rec); err != nil {
		return rec, fmt.Errorf("promote %s to %s: %w", rec.ID, to, err)
	}
	if err := s.backend.Delete(ctx, from, rec.ID); err != nil {
		return rec, fmt.Errorf("promote %s: remove from %s: %w", rec.ID, from, err)
	}
	rec.Tier = to
	return rec, nil
}

// recalculateImportance blends the previous importance equally with an
// access-frequency bonus and a recency bonus that decays to zero over
// recencyWindow. Both bonuses are capped at 0.5.
func recalculateImportance(rec model.Record, now time.Time) float64 {
	accessFactor := math.Min(float64(rec.AccessCount)/10, 0.5)
	age := now.Sub(rec.CreatedAt)
	recencyFactor := math.Max(0, 0.5-float64(age)/float64(recencyWindow)*0.5)
	return clamp(0.5*rec.Importance + 0.5*(accessFactor+recencyFactor))
}

// promotionTarget returns the tier a record should move to. Records only
// move up, one tier at a time.
func promotionTarget(from model.Tier, importance float64) model.Tier {
	switch {
	case from == model.TierShort && importance >= model.MediumThreshold:
		return model.TierMedium
	case from == model.TierMedium && importance >= model.LongThreshold:
		return model.TierLong
	}
	return from
}

func clamp(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
