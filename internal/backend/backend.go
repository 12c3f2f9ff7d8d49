// Package backend provides the keyed partition storage the tiered memory
// store is built on, with a SQLite implementation and an in-memory blob
// fallback.
package backend

import (
	"context"
	"errors"

	"github.com/rcliao/tiered-memory/internal/model"
)

// ErrNotFound is returned by Get when a partition has no record with the id.
var ErrNotFound = errors.New("record not found")

// Backend stores records in one partition per tier.
//
// Put overwrites any record with the same id in that partition. Nothing
// here moves records between partitions; that is the store's job.
type Backend interface {
	// Name identifies the implementation in logs and stats.
	Name() string

	Put(ctx context.Context, tier model.Tier, rec model.Record) error
	Get(ctx context.Context, tier model.Tier, id string) (*model.Record, error)
	GetAll(ctx context.Context, tier model.Tier) ([]model.Record, error)
	GetAllByCategory(ctx context.Context, tier model.Tier, category model.Category) ([]model.Record, error)
	Delete(ctx context.Context, tier model.Tier, id string) error
	Clear(ctx context.Context, tier model.Tier) error

	Close() error
}
