// Package store provides the tiered memory store: records are placed in a
// short, medium or long retention tier by importance, promoted as they are
// accessed, and expired by a periodic maintenance sweep.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/rcliao/tiered-memory/internal/backend"
	"github.com/rcliao/tiered-memory/internal/events"
	"github.com/rcliao/tiered-memory/internal/model"
)

var (
	// ErrInvalidCategory is returned by Store for categories outside model.Categories.
	ErrInvalidCategory = errors.New("invalid category")
	// ErrInvalidImportance is returned by Store for a NaN importance.
	ErrInvalidImportance = errors.New("invalid importance")
	// ErrInvalidSnapshot is returned by Import before any data is touched.
	ErrInvalidSnapshot = errors.New("invalid snapshot")
	// ErrClosed is returned by operations on a closed store.
	ErrClosed = errors.New("memory store closed")
)

// DefaultMaintenanceInterval is how often the expiry sweep runs.
const DefaultMaintenanceInterval = 24 * time.Hour

// Opener constructs a backend. Open calls it once, off the caller's goroutine.
type Opener func() (backend.Backend, error)

type options struct {
	logger              *slog.Logger
	bus                 events.Publisher
	clock               func() time.Time
	maintenanceInterval time.Duration
	mediumRetention     time.Duration
	longRetention       time.Duration
}

// Option configures a TieredStore.
type Option func(*options)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithPublisher sets where lifecycle events go. Defaults to events.Discard.
func WithPublisher(p events.Publisher) Option {
	return func(o *options) { o.bus = p }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.clock = now }
}

// WithMaintenanceInterval sets the sweep interval. Zero or less disables the
// scheduler; Sweep can still be called directly.
func WithMaintenanceInterval(d time.Duration) Option {
	return func(o *options) { o.maintenanceInterval = d }
}

// WithRetention overrides the medium and long tier retention periods.
func WithRetention(medium, long time.Duration) Option {
	return func(o *options) {
		o.mediumRetention = medium
		o.longRetention = long
	}
}

// TieredStore is the tiered memory store.
//
// Operations are not serialized against each other. Two concurrent accesses
// to the same record both read, update and write it back; the last write
// wins. Promotion writes the record to the target tier and then deletes it
// from the source tier, so an interruption between the two leaves it in
// both (or, if the insert failed, unchanged in the source).
type TieredStore struct {
	opts options

	ready    chan struct{}
	backend  backend.Backend
	degraded bool

	closed    atomic.Bool
	closeOnce sync.Once
	stop      context.CancelFunc
	loopDone  chan struct{}

	idMu    sync.Mutex
	entropy *rand.Rand
}

// Open starts initializing a store and returns immediately. primary is
// tried first; if it is nil or fails, fallback is used and the store runs in
// degraded mode. If fallback fails too, a memory-only blob backend is used.
// Every operation waits for initialization to finish.
func Open(primary, fallback Opener, opts ...Option) *TieredStore {
	o := options{
		logger:              slog.Default(),
		bus:                 events.Discard,
		clock:               time.Now,
		maintenanceInterval: DefaultMaintenanceInterval,
		mediumRetention:     model.MediumRetention,
		longRetention:       model.LongRetention,
	}
	for _, opt := range opts {
		opt(&o)
	}

	s := &TieredStore{
		opts:     o,
		ready:    make(chan struct{}),
		loopDone: make(chan struct{}),
		entropy:  rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	go s.init(primary, fallback)
	return s
}

func (s *TieredStore) init(primary, fallback Opener) {
	log := s.opts.logger

	var b backend.Backend
	var err error
	if primary != nil {
		b, err = primary()
		if err != nil {
			log.Warn("persistent memory backend unavailable, falling back", "error", err)
		}
	}
	if b == nil {
		s.degraded = true
		if fallback != nil {
			b, err = fallback()
			if err != nil {
				log.Warn("fallback memory backend unavailable, using memory only", "error", err)
			}
		}
	}
	if b == nil {
		b, _ = backend.NewBlobBackend("", log)
	}
	s.backend = b

	ctx, cancel := context.WithCancel(context.Background())
	s.stop = cancel
	if s.opts.maintenanceInterval > 0 {
		go s.maintenanceLoop(ctx, s.opts.maintenanceInterval)
	} else {
		close(s.loopDone)
	}

	log.Info("memory store initialized", "backend", b.Name(), "degraded", s.degraded)
	// Publish before ready closes: once Close returns, Bus.Wait covers this event.
	s.opts.bus.Publish(events.MemorySystemInitialized, events.Initialized{
		Success:  true,
		Degraded: s.degraded,
		Backend:  b.Name(),
	})
	close(s.ready)
}

// Ready waits for initialization and reports whether the store is running
// on its fallback backend.
func (s *TieredStore) Ready(ctx context.Context) (degraded bool, err error) {
	if err := s.waitReady(ctx); err != nil {
		return false, err
	}
	return s.degraded, nil
}

func (s *TieredStore) waitReady(ctx context.Context) error {
	select {
	case <-s.ready:
	case <-ctx.Done():
		return ctx.Err()
	}
	if s.closed.Load() {
		return ErrClosed
	}
	return nil
}

// Close stops the maintenance scheduler and closes the backend.
func (s *TieredStore) Close() error {
	var err error
	s.closeOnce.Do(func() {
		<-s.ready
		s.stop()
		<-s.loopDone
		s.closed.Store(true)
		err = s.backend.Close()
	})
	return err
}

func (s *TieredStore) now() time.Time {
	return s.opts.clock().UTC()
}

func (s *TieredStore) newID(now time.Time) string {
	s.idMu.Lock()
	defer s.idMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(now), s.entropy).String()
}

// tiersOrAll returns the single tier requested, or all tiers when tier is empty.
func tiersOrAll(tier model.Tier) ([]model.Tier, error) {
	if tier == "" {
		return model.Tiers, nil
	}
	if !tier.Valid() {
		return nil, fmt.Errorf("unknown tier %q", tier)
	}
	return []model.Tier{tier}, nil
}
