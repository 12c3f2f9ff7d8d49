package store

import (
	"context"
	"encoding/json"
	"math"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcliao/tiered-memory/internal/events"
	"github.com/rcliao/tiered-memory/internal/model"
)

type recordKey struct {
	ID       string
	Payload  string
	Category model.Category
	Tier     model.Tier
}

func snapshotKeys(snap *model.Snapshot) []recordKey {
	var keys []recordKey
	for tier, recs := range snap.Memories {
		for _, rec := range recs {
			keys = append(keys, recordKey{rec.ID, string(rec.Payload), rec.Category, tier})
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].ID < keys[j].ID })
	return keys
}

func TestExportImportRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	mustStore(t, s, map[string]string{"text": "short"}, model.CategoryEmotion, 0.2)
	mustStore(t, s, map[string]string{"text": "medium"}, model.CategoryPreference, 0.5)
	mustStore(t, s, map[string]string{"text": "long"}, model.CategoryFact, 0.9)
	promoted := mustStore(t, s, map[string]string{"text": "accessed"}, model.CategoryBehavior, 0.35)
	_, err := s.Retrieve(ctx, promoted, "")
	require.NoError(t, err)

	snap, err := s.Export(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.SnapshotVersion, snap.Version)
	assert.Len(t, snap.Memories[model.TierShort], 1)
	assert.Len(t, snap.Memories[model.TierMedium], 2)
	assert.Len(t, snap.Memories[model.TierLong], 1)

	require.NoError(t, s.Clear(ctx, ""))
	empty, err := s.Export(ctx)
	require.NoError(t, err)
	assert.Empty(t, snapshotKeys(empty))

	require.NoError(t, s.Import(ctx, snap))
	again, err := s.Export(ctx)
	require.NoError(t, err)
	assert.Equal(t, snapshotKeys(snap), snapshotKeys(again))

	rec, err := s.Retrieve(ctx, promoted, model.TierMedium)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, 2, rec.AccessCount, "access statistics survive the round trip")
}

func TestImportReplacesExisting(t *testing.T) {
	ctx := context.Background()
	src, _ := newTestStore(t)
	dst, _ := newTestStore(t)

	keep := mustStore(t, src, "from source", model.CategoryFact, 0.9)
	gone := mustStore(t, dst, "already here", model.CategoryFact, 0.9)

	snap, err := src.Export(ctx)
	require.NoError(t, err)
	require.NoError(t, dst.Import(ctx, snap))

	rec, err := dst.Retrieve(ctx, gone, "")
	require.NoError(t, err)
	assert.Nil(t, rec)
	rec, err = dst.Retrieve(ctx, keep, "")
	require.NoError(t, err)
	assert.NotNil(t, rec)
}

func TestImportInvalidSnapshotKeepsData(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	id := mustStore(t, s, "precious", model.CategoryFact, 0.9)

	valid := agedRecord("ok", time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), 0.5)
	with := func(edit func(*model.Record)) *model.Snapshot {
		rec := valid
		edit(&rec)
		return &model.Snapshot{Version: model.SnapshotVersion, Memories: map[model.Tier][]model.Record{model.TierMedium: {rec}}}
	}

	bad := []*model.Snapshot{
		nil,
		{Memories: map[model.Tier][]model.Record{}},
		{Version: 99, Memories: map[model.Tier][]model.Record{}},
		{Version: model.SnapshotVersion},
		{Version: model.SnapshotVersion, Memories: map[model.Tier][]model.Record{"forever": {}}},
		{Version: model.SnapshotVersion, Memories: map[model.Tier][]model.Record{model.TierShort: {{}}}},
		{Version: model.SnapshotVersion, Memories: map[model.Tier][]model.Record{
			model.TierShort: {agedRecord("dup", valid.CreatedAt, 0.2)},
			model.TierLong:  {agedRecord("dup", valid.CreatedAt, 0.9)},
		}},
		with(func(r *model.Record) { r.Payload = nil }),
		with(func(r *model.Record) { r.Payload = json.RawMessage(`{broken`) }),
		with(func(r *model.Record) { r.Category = "gossip" }),
		with(func(r *model.Record) { r.CreatedAt = time.Time{} }),
		with(func(r *model.Record) { r.Importance = 1.5 }),
		with(func(r *model.Record) { r.Importance = -0.1 }),
		with(func(r *model.Record) { r.Importance = math.NaN() }),
		with(func(r *model.Record) { r.AccessCount = -1 }),
	}
	for i, snap := range bad {
		err := s.Import(ctx, snap)
		assert.ErrorIs(t, err, ErrInvalidSnapshot, "case %d", i)
	}

	assert.Equal(t, []model.Tier{model.TierLong}, tierOf(t, s, id))

	require.NoError(t, s.Import(ctx, with(func(*model.Record) {})), "the unedited record is importable")
}

func TestClearPublishesTier(t *testing.T) {
	ctx := context.Background()
	bus := events.NewBus()
	got := make(chan string, 2)
	bus.Subscribe(events.MemoryCleared, func(ev events.Event) { got <- ev.Payload.(events.Cleared).Tier })

	s, _ := newTestStore(t, WithPublisher(bus))
	shortID := mustStore(t, s, "session chatter", model.CategoryConversation, 0.2)
	longID := mustStore(t, s, "keeper", model.CategoryFact, 0.9)

	require.NoError(t, s.ClearSession(ctx))
	assert.Empty(t, tierOf(t, s, shortID))
	assert.NotEmpty(t, tierOf(t, s, longID))
	assert.Equal(t, "short", receive(t, got))

	require.NoError(t, s.Clear(ctx, ""))
	assert.Empty(t, tierOf(t, s, longID))
	assert.Equal(t, "all", receive(t, got))

	assert.Error(t, s.Clear(ctx, "forever"))
}

func TestImportPublishesEvent(t *testing.T) {
	ctx := context.Background()
	bus := events.NewBus()
	got := make(chan events.Imported, 1)
	bus.Subscribe(events.MemoryImported, func(ev events.Event) { got <- ev.Payload.(events.Imported) })

	s, clock := newTestStore(t, WithPublisher(bus))
	require.NoError(t, s.Import(ctx, &model.Snapshot{
		Version: model.SnapshotVersion,
		Memories: map[model.Tier][]model.Record{
			model.TierLong: {agedRecord("one", clock.Now(), 0.9)},
		},
	}))

	imported := receive(t, got)
	assert.Equal(t, 1, imported.Count)
	assert.True(t, imported.Timestamp.Equal(clock.Now()))
}

func receive[T any](t *testing.T, ch chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(time.Second):
		t.Fatal("event not published")
	}
	var zero T
	return zero
}
