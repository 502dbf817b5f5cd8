// Package persist saves the board's raster and undo history into a storage
// scope and restores them on startup or when another instance writes.
package persist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"LocalWhiteboard/internal/logging"
	"LocalWhiteboard/internal/raster"
	"LocalWhiteboard/internal/storage"
)

// DefaultKey is the storage key boards are saved under.
const DefaultKey = "whiteboard-state"

// Target is the surface the bridge reads from and repaints.
type Target interface {
	Size() (int, int)
	State() (raster.Snapshot, []raster.Snapshot)
	Restore(current raster.Snapshot, history []raster.Snapshot) error
}

type Option func(*Bridge)

// Dispatch runs reloads triggered by Watch through fn, e.g. on the UI
// event loop. By default they run on the watching goroutine.
func Dispatch(fn func(func())) Option {
	return func(b *Bridge) { b.dispatch = fn }
}

// OnWarning is called with the first error of each run of failed saves.
func OnWarning(fn func(error)) Option {
	return func(b *Bridge) { b.onWarning = fn }
}

// WithClock replaces the wall clock used for record timestamps.
func WithClock(now func() time.Time) Option {
	return func(b *Bridge) { b.clock.now = now }
}

// Bridge connects a Target to one key of a storage scope.
type Bridge struct {
	store  storage.Store
	key    string
	target Target
	clock  Clock

	dispatch  func(func())
	onWarning func(error)
	log       *slog.Logger

	mu      sync.Mutex
	cache   map[uint64]string
	failing bool
	encodes int
}

// New creates a bridge. An empty key selects DefaultKey.
func New(store storage.Store, key string, target Target, opts ...Option) *Bridge {
	if key == "" {
		key = DefaultKey
	}
	b := &Bridge{
		store:    store,
		key:      key,
		target:   target,
		dispatch: func(fn func()) { fn() },
		cache:    make(map[uint64]string),
		log:      logging.For("persist").With("key", key),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Key returns the storage key.
func (b *Bridge) Key() string { return b.key }

// Save writes the current raster and the history as one record. Snapshots
// already encoded by an earlier save or load are not encoded again.
func (b *Bridge) Save(ctx context.Context) error {
	b.mu.Lock()
	data, err := b.encode()
	if err == nil {
		err = b.store.Set(ctx, b.key, data)
	}
	warn := false
	if err != nil {
		warn = !b.failing
		b.failing = true
	} else {
		b.failing = false
	}
	b.mu.Unlock()

	if err != nil {
		b.log.Warn("save failed", "err", err)
		if warn && b.onWarning != nil {
			b.onWarning(err)
		}
		return fmt.Errorf("persist: save: %w", err)
	}
	b.log.Debug("saved", "bytes", len(data))
	return nil
}

// encode builds the record for the target's current state. b.mu is held.
func (b *Bridge) encode() ([]byte, error) {
	current, history := b.target.State()
	next := make(map[uint64]string, len(history)+1)
	enc := func(s raster.Snapshot) (string, error) {
		if v, ok := b.cache[s.ID()]; ok {
			next[s.ID()] = v
			return v, nil
		}
		v, err := raster.Encode(s)
		if err != nil {
			return "", err
		}
		b.encodes++
		next[s.ID()] = v
		return v, nil
	}

	rec := Record{History: make([]string, 0, len(history))}
	var err error
	if rec.ImageData, err = enc(current); err != nil {
		return nil, err
	}
	for _, s := range history {
		v, err := enc(s)
		if err != nil {
			return nil, err
		}
		rec.History = append(rec.History, v)
	}
	rec.Timestamp = b.clock.Next()
	b.cache = next

	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("persist: marshal: %w", err)
	}
	return data, nil
}

// Load reads the record and restores it into the target. It reports false,
// with a nil error, when there is no record or it cannot be used; the target
// is left untouched then. History entries that fail to decode are dropped.
func (b *Bridge) Load(ctx context.Context) (bool, error) {
	data, err := b.store.Get(ctx, b.key)
	if errors.Is(err, storage.ErrNotFound) {
		b.log.Debug("no saved state")
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("persist: load: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		b.log.Debug("ignoring malformed record", "err", err)
		return false, nil
	}
	w, h := b.target.Size()

	b.mu.Lock()
	next := make(map[uint64]string, len(rec.History)+1)
	current, fit, err := raster.DecodeFit(rec.ImageData, w, h)
	if err != nil {
		b.mu.Unlock()
		b.log.Debug("ignoring record with bad image", "err", err)
		return false, nil
	}
	if fit {
		next[current.ID()] = rec.ImageData
	}
	history := make([]raster.Snapshot, 0, len(rec.History))
	for i, v := range rec.History {
		s, fit, err := raster.DecodeFit(v, w, h)
		if err != nil {
			b.log.Warn("dropping history entry", "index", i, "err", err)
			continue
		}
		if fit {
			next[s.ID()] = v
		}
		history = append(history, s)
	}
	b.cache = next
	b.clock.Observe(rec.Timestamp)
	b.mu.Unlock()

	if err := b.target.Restore(current, history); err != nil {
		return false, fmt.Errorf("persist: restore: %w", err)
	}
	b.log.Debug("loaded", "timestamp", rec.Timestamp, "history", len(history))
	return true, nil
}

// Watch reloads the record whenever another handle writes the key. It
// blocks until ctx is done or the store stops the subscription.
func (b *Bridge) Watch(ctx context.Context) error {
	events, err := b.store.Watch(ctx, b.key)
	if err != nil {
		return fmt.Errorf("persist: watch: %w", err)
	}
	for ev := range events {
		b.log.Debug("external write", "origin", ev.Origin)
		b.dispatch(func() {
			if _, err := b.Load(ctx); err != nil {
				b.log.Warn("reload failed", "err", err)
			}
		})
	}
	return ctx.Err()
}
