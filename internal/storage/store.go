// Package storage is the keyed persistent store the board saves into. A
// storage scope is a set of handles that see each other's writes; Watch on
// one handle reports writes made through the others.
package storage

import (
	"context"
	"errors"
	"sync"
)

var (
	ErrNotFound      = errors.New("storage: key not found")
	ErrQuotaExceeded = errors.New("storage: quota exceeded")
	ErrClosed        = errors.New("storage: store closed")
)

// Event reports a write to Key made through the handle identified by Origin.
type Event struct {
	Key    string
	Origin string
}

// Store is one handle onto a storage scope.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	// Watch delivers writes to key made through other handles until ctx is
	// done or the store is closed, then closes the channel.
	Watch(ctx context.Context, key string) (<-chan Event, error)
	Close() error
}

type watcher struct {
	key  string
	ch   chan Event
	done chan struct{}
}

// Watchers fans events out to Watch subscribers. Delivery never blocks: a
// subscriber that has not drained its last event only sees that one, which is
// enough for callers that re-read the key on every event.
type Watchers struct {
	mu     sync.Mutex
	subs   map[*watcher]struct{}
	closed bool
}

// Add registers a subscriber for key that lives until ctx is done.
func (ws *Watchers) Add(ctx context.Context, key string) (<-chan Event, error) {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	if ws.closed {
		return nil, ErrClosed
	}
	if ws.subs == nil {
		ws.subs = make(map[*watcher]struct{})
	}
	w := &watcher{key: key, ch: make(chan Event, 1), done: make(chan struct{})}
	ws.subs[w] = struct{}{}

	go func() {
		select {
		case <-ctx.Done():
			ws.remove(w)
		case <-w.done:
		}
	}()
	return w.ch, nil
}

func (ws *Watchers) remove(w *watcher) {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	if _, ok := ws.subs[w]; ok {
		delete(ws.subs, w)
		close(w.ch)
		close(w.done)
	}
}

// Notify hands ev to every subscriber of ev.Key.
func (ws *Watchers) Notify(ev Event) {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	for w := range ws.subs {
		if w.key != ev.Key {
			continue
		}
		select {
		case w.ch <- ev:
		default:
		}
	}
}

// Close ends every subscription. Later Add calls fail with ErrClosed.
func (ws *Watchers) Close() {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	ws.closed = true
	for w := range ws.subs {
		delete(ws.subs, w)
		close(w.ch)
		close(w.done)
	}
}
