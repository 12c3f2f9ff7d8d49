package store

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcliao/tiered-memory/internal/model"
)

func TestSimilarity(t *testing.T) {
	tests := []struct {
		query   string
		content string
		want    float64
	}{
		{"hello", `{"text":"Hello World"}`, 1},
		{"WORLD", `{"text":"hello world"}`, 1},
		{"hello there", `{"text":"hello world"}`, 6.0 / 11.0},
		{"xyz", `{"text":"hello"}`, 0},
		{"ab", "a b", 0},
		{"abcd", "zzbczz", 0.5},
		{"", "anything", 1},
		{"héllo wörld", "hÉllo", 5.0 / 11.0},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, similarity(tt.query, tt.content), 1e-9, "%q in %q", tt.query, tt.content)
	}
}

func TestSearch_Basic(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	mustStore(t, s, map[string]string{"text": "Go is a compiled language with goroutines"}, model.CategoryFact, 0.5)
	mustStore(t, s, map[string]string{"text": "Python is an interpreted language"}, model.CategoryFact, 0.8)
	mustStore(t, s, map[string]string{"text": "Rust has a borrow checker"}, model.CategoryFact, 0.2)

	results, err := s.Search(ctx, SearchParams{Query: "language"})
	require.NoError(t, err)
	assert.Len(t, results, 2)
	for _, r := range results {
		assert.Nil(t, r.Score)
		assert.Equal(t, 1, r.Memory.AccessCount)
	}

	results, err = s.Search(ctx, SearchParams{Query: "javascript"})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearch_ExactThreshold(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	mustStore(t, s, map[string]string{"text": "Hello World"}, model.CategoryConversation, 0.5)
	mustStore(t, s, map[string]string{"text": "hello there"}, model.CategoryConversation, 0.5)
	mustStore(t, s, map[string]string{"text": "hell world"}, model.CategoryConversation, 0.5)

	results, err := s.Search(ctx, SearchParams{Query: "HELLO", Threshold: Threshold(1.0), IncludeScore: true})
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.Contains(t, strings.ToLower(string(r.Memory.Payload)), "hello")
		require.NotNil(t, r.Score)
		assert.Equal(t, 1.0, *r.Score)
	}
}

func TestSearch_PartialMatchOrdering(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	partial := mustStore(t, s, map[string]string{"text": "hello world"}, model.CategoryFact, 0.5)
	exact := mustStore(t, s, map[string]string{"text": "say hello there"}, model.CategoryFact, 0.5)

	results, err := s.Search(ctx, SearchParams{Query: "hello there"})
	require.NoError(t, err)
	require.Len(t, results, 1, "partial score 6/11 is under the default threshold")
	assert.Equal(t, exact, results[0].Memory.ID)

	results, err = s.Search(ctx, SearchParams{Query: "hello there", Threshold: Threshold(0.5), IncludeScore: true})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, exact, results[0].Memory.ID)
	assert.Equal(t, partial, results[1].Memory.ID)
	assert.InDelta(t, 6.0/11.0, *results[1].Score, 1e-9)
}

func TestSearch_Filters(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	fact := mustStore(t, s, "coffee facts", model.CategoryFact, 0.9)
	pref := mustStore(t, s, "likes coffee", model.CategoryPreference, 0.2)

	results, err := s.Search(ctx, SearchParams{Query: "coffee", Categories: []model.Category{model.CategoryPreference}})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, pref, results[0].Memory.ID)

	results, err = s.Search(ctx, SearchParams{Query: "coffee", Tiers: []model.Tier{model.TierLong}})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, fact, results[0].Memory.ID)

	_, err = s.Search(ctx, SearchParams{Query: "coffee", Tiers: []model.Tier{"forever"}})
	assert.Error(t, err)
}

func TestSearch_Limit(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	for i := 0; i < 15; i++ {
		mustStore(t, s, "repeat me", model.CategoryBehavior, 0.9)
	}

	results, err := s.Search(ctx, SearchParams{Query: "repeat"})
	require.NoError(t, err)
	assert.Len(t, results, 10)

	results, err = s.Search(ctx, SearchParams{Query: "repeat", Limit: 3})
	require.NoError(t, err)
	assert.Len(t, results, 3)
}

func TestSearch_ZeroThresholdKeepsEverything(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	id := mustStore(t, s, "apples", model.CategoryFact, 0.5)

	results, err := s.Search(ctx, SearchParams{Query: "zzzzqq"})
	require.NoError(t, err)
	assert.Empty(t, results)

	results, err = s.Search(ctx, SearchParams{Query: "zzzzqq", Threshold: Threshold(0), IncludeScore: true})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, id, results[0].Memory.ID)
	assert.Equal(t, 0.0, *results[0].Score)

	_, err = s.Search(ctx, SearchParams{Query: "apples", Threshold: Threshold(1.5)})
	assert.Error(t, err)
}

func TestSearch_MatchesMarkupCharacters(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	id := mustStore(t, s, map[string]string{"text": "tom & jerry <3"}, model.CategoryConversation, 0.5)

	rec, err := s.Retrieve(ctx, id, "")
	require.NoError(t, err)
	assert.Equal(t, `{"text":"tom & jerry <3"}`, string(rec.Payload))

	results, err := s.Search(ctx, SearchParams{Query: "tom & jerry <3", Threshold: Threshold(1.0)})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, id, results[0].Memory.ID)
}
