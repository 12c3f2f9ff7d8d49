package store

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/rcliao/tiered-memory/internal/model"
)

// DefaultSearchThreshold is the minimum similarity a search hit needs.
const DefaultSearchThreshold = 0.6

// SearchParams holds parameters for searching memories.
type SearchParams struct {
	Query      string
	Categories []model.Category // empty means all
	Tiers      []model.Tier     // empty means all
	Limit      int              // 0 means 10
	// Threshold in [0,1]; nil means DefaultSearchThreshold. Zero keeps
	// every candidate.
	Threshold    *float64
	IncludeScore bool
}

// Threshold is a helper for SearchParams.Threshold.
func Threshold(v float64) *float64 { return &v }

// SearchResult is one search hit. Score is set only when requested.
type SearchResult struct {
	Memory model.Record `json:"memory"`
	Score  *float64     `json:"score,omitempty"`
}

// Search scores every record in the selected tiers and categories against
// the query and returns those at or above the threshold, best first. Each
// returned record counts as accessed.
func (s *TieredStore) Search(ctx context.Context, p SearchParams) ([]SearchResult, error) {
	if err := s.waitReady(ctx); err != nil {
		return nil, err
	}

	tiers := p.Tiers
	if len(tiers) == 0 {
		tiers = model.Tiers
	}
	for _, t := range tiers {
		if !t.Valid() {
			return nil, fmt.Errorf("unknown tier %q", t)
		}
	}
	categories := p.Categories
	if len(categories) == 0 {
		categories = model.Categories
	}
	wanted := make(map[model.Category]bool, len(categories))
	for _, c := range categories {
		wanted[c] = true
	}
	limit := p.Limit
	if limit <= 0 {
		limit = 10
	}
	threshold := DefaultSearchThreshold
	if p.Threshold != nil {
		threshold = *p.Threshold
		if math.IsNaN(threshold) || threshold < 0 || threshold > 1 {
			return nil, fmt.Errorf("threshold %v outside [0,1]", threshold)
		}
	}

	type scored struct {
		rec   model.Record
		score float64
	}
	var hits []scored
	for _, t := range tiers {
		recs, err := s.backend.GetAll(ctx, t)
		if err != nil {
			return nil, fmt.Errorf("search %s: %w", t, err)
		}
		for _, rec := range recs {
			if !wanted[rec.Category] {
				continue
			}
			if score := similarity(p.Query, string(rec.Payload)); score >= threshold {
				hits = append(hits, scored{rec: rec, score: score})
			}
		}
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })
	if len(hits) > limit {
		hits = hits[:limit]
	}

	results := make([]SearchResult, 0, len(hits))
	for _, h := range hits {
		updated, err := s.access(ctx, h.rec)
		if err != nil {
			return nil, err
		}
		r := SearchResult{Memory: updated}
		if p.IncludeScore {
			score := h.score
			r.Score = &score
		}
		results = append(results, r)
	}
	return results, nil
}

// similarity is 1 when content contains query, ignoring case. Otherwise it
// is the length of the longest run of at least two query characters that
// appears in content, divided by the query length.
func similarity(query, content string) float64 {
	q := strings.ToLower(query)
	c := strings.ToLower(content)
	if strings.Contains(c, q) {
		return 1
	}

	qr := []rune(q)
	best := 0
	for i := range qr {
		for j := i + max(best+1, 2); j <= len(qr); j++ {
			if !strings.Contains(c, string(qr[i:j])) {
				break
			}
			best = j - i
		}
	}
	return float64(best) / float64(len(qr))
}
