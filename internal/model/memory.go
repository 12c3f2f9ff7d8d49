// Package model defines the core memory data types.
package model

import (
	"encoding/json"
	"time"
)

// Category classifies what a memory is about.
type Category string

const (
	CategoryConversation Category = "conversation"
	CategoryFact         Category = "fact"
	CategoryPreference   Category = "preference"
	CategoryBehavior     Category = "behavior"
	CategoryEmotion      Category = "emotion"
)

// Categories lists every valid category in a stable order.
var Categories = []Category{
	CategoryConversation,
	CategoryFact,
	CategoryPreference,
	CategoryBehavior,
	CategoryEmotion,
}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	for _, v := range Categories {
		if c == v {
			return true
		}
	}
	return false
}

// Tier is a retention bucket. Records live in exactly one tier's partition.
type Tier string

const (
	TierShort  Tier = "short"
	TierMedium Tier = "medium"
	TierLong   Tier = "long"
)

// Tiers lists the tiers from shortest to longest retention. Lookups without
// an explicit tier walk them in this order.
var Tiers = []Tier{TierShort, TierMedium, TierLong}

// Valid reports whether t is one of the known tiers.
func (t Tier) Valid() bool {
	return t == TierShort || t == TierMedium || t == TierLong
}

// Rank orders tiers so promotions can be checked for monotonicity.
func (t Tier) Rank() int {
	switch t {
	case TierShort:
		return 0
	case TierMedium:
		return 1
	case TierLong:
		return 2
	}
	return -1
}

// Importance thresholds for each tier.
const (
	ShortThreshold  = 0.1
	MediumThreshold = 0.4
	LongThreshold   = 0.7
)

// DefaultImportance is used when the caller does not supply one.
const DefaultImportance = 0.5

// Default retention periods. The short tier is session scoped and has none.
const (
	MediumRetention = 7 * 24 * time.Hour
	LongRetention   = 365 * 24 * time.Hour
)

// TierFor returns the tier a record with the given importance is placed in.
// Anything below the medium threshold lands in short, including scores under
// ShortThreshold.
func TierFor(importance float64) Tier {
	switch {
	case importance >= LongThreshold:
		return TierLong
	case importance >= MediumThreshold:
		return TierMedium
	default:
		return TierShort
	}
}

// Record is a stored memory.
type Record struct {
	ID             string          `json:"id"`
	Payload        json.RawMessage `json:"payload"`
	Category       Category        `json:"category"`
	CreatedAt      time.Time       `json:"created_at"`
	Importance     float64         `json:"importance"`
	AccessCount    int             `json:"access_count"`
	LastAccessedAt *time.Time      `json:"last_accessed_at,omitempty"`

	// Tier is the partition the record was read from. It is not persisted
	// on the record itself; the partition is the source of truth.
	Tier Tier `json:"tier,omitempty"`
}

// SnapshotVersion is the current export format version.
const SnapshotVersion = 1

// Snapshot is the full contents of all tiers, as produced by export.
type Snapshot struct {
	Version   int               `json:"version"`
	Timestamp time.Time         `json:"timestamp"`
	Memories  map[Tier][]Record `json:"memories"`
}
