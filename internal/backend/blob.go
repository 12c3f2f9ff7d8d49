package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/rcliao/tiered-memory/internal/model"
)

// BlobBackend keeps every partition in memory and mirrors each one to a
// single JSON file after every write. An empty dir disables persistence.
type BlobBackend struct {
	mu    sync.RWMutex
	dir   string
	parts map[model.Tier]map[string]model.Record
}

// NewBlobBackend loads any existing blobs from dir. Unreadable or corrupt
// blobs are logged and start empty rather than failing the open.
func NewBlobBackend(dir string, logger *slog.Logger) (*BlobBackend, error) {
	if logger == nil {
		logger = slog.Default()
	}
	b := &BlobBackend{
		dir:   dir,
		parts: make(map[model.Tier]map[string]model.Record, len(model.Tiers)),
	}
	for _, tier := range model.Tiers {
		b.parts[tier] = make(map[string]model.Record)
	}
	if dir == "" {
		return b, nil
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create blob dir: %w", err)
	}
	for _, tier := range model.Tiers {
		data, err := os.ReadFile(b.blobPath(tier))
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			logger.Warn("read memory blob", "tier", tier, "error", err)
			continue
		}
		var records []model.Record
		if err := json.Unmarshal(data, &records); err != nil {
			logger.Warn("decode memory blob", "tier", tier, "error", err)
			continue
		}
		for _, rec := range records {
			b.parts[tier][rec.ID] = rec
		}
	}
	return b, nil
}

func (b *BlobBackend) Name() string { return "blob" }

func (b *BlobBackend) blobPath(tier model.Tier) string {
	return filepath.Join(b.dir, "memories_"+string(tier)+".json")
}

func (b *BlobBackend) partition(tier model.Tier) (map[string]model.Record, error) {
	p, ok := b.parts[tier]
	if !ok {
		return nil, fmt.Errorf("unknown tier %q", tier)
	}
	return p, nil
}

// flush writes one partition to disk. Callers hold the write lock.
func (b *BlobBackend) flush(tier model.Tier) error {
	if b.dir == "" {
		return nil
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(sortedRecords(b.parts[tier], tier)); err != nil {
		return err
	}
	tmp := b.blobPath(tier) + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write blob: %w", err)
	}
	if err := os.Rename(tmp, b.blobPath(tier)); err != nil {
		return fmt.Errorf("replace blob: %w", err)
	}
	return nil
}

func (b *BlobBackend) Put(ctx context.Context, tier model.Tier, rec model.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	p, err := b.partition(tier)
	if err != nil {
		return err
	}
	rec.Tier = ""
	prev, existed := p[rec.ID]
	p[rec.ID] = rec
	if err := b.flush(tier); err != nil {
		if existed {
			p[rec.ID] = prev
		} else {
			delete(p, rec.ID)
		}
		return fmt.Errorf("put %s: %w", rec.ID, err)
	}
	return nil
}

func (b *BlobBackend) Get(ctx context.Context, tier model.Tier, id string) (*model.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	p, err := b.partition(tier)
	if err != nil {
		return nil, err
	}
	rec, ok := p[id]
	if !ok {
		return nil, ErrNotFound
	}
	rec.Tier = tier
	return &rec, nil
}

func (b *BlobBackend) GetAll(ctx context.Context, tier model.Tier) ([]model.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	p, err := b.partition(tier)
	if err != nil {
		return nil, err
	}
	return sortedRecords(p, tier), nil
}

func (b *BlobBackend) GetAllByCategory(ctx context.Context, tier model.Tier, category model.Category) ([]model.Record, error) {
	all, err := b.GetAll(ctx, tier)
	if err != nil {
		return nil, err
	}
	var out []model.Record
	for _, rec := range all {
		if rec.Category == category {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (b *BlobBackend) Delete(ctx context.Context, tier model.Tier, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	p, err := b.partition(tier)
	if err != nil {
		return err
	}
	rec, ok := p[id]
	if !ok {
		return nil
	}
	delete(p, id)
	if err := b.flush(tier); err != nil {
		p[id] = rec
		return fmt.Errorf("delete %s: %w", id, err)
	}
	return nil
}

func (b *BlobBackend) Clear(ctx context.Context, tier model.Tier) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, err := b.partition(tier); err != nil {
		return err
	}
	b.parts[tier] = make(map[string]model.Record)
	return b.flush(tier)
}

func (b *BlobBackend) Close() error { return nil }

// sortedRecords returns the partition ordered by creation time so reads and
// blob files are deterministic.
func sortedRecords(p map[string]model.Record, tier model.Tier) []model.Record {
	out := make([]model.Record, 0, len(p))
	for _, rec := range p {
		rec.Tier = tier
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}
