package storage

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"

	"LocalWhiteboard/internal/logging"
)

const fileExt = ".json"

// FileStore keeps one file per key in a directory. Handles on the same
// directory, in this process or another, form one storage scope.
type FileStore struct {
	dir    string
	quota  int64
	origin string
	log    *slog.Logger

	mu       sync.Mutex
	written  map[string][sha256.Size]byte
	watchers []*fsnotify.Watcher
	closed   bool
}

var _ Store = (*FileStore)(nil)

// OpenFile opens (creating if needed) the directory dir. A positive quota caps
// the total size of the files in it.
func OpenFile(dir string, quota int64) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create %s: %w", dir, err)
	}
	return &FileStore{
		dir:     dir,
		quota:   quota,
		origin:  uuid.NewString(),
		log:     logging.For("storage").With("dir", dir),
		written: make(map[string][sha256.Size]byte),
	}, nil
}

// Origin identifies writes made through this handle.
func (f *FileStore) Origin() string { return f.origin }

func (f *FileStore) path(key string) string {
	return filepath.Join(f.dir, url.PathEscape(key)+fileExt)
}

func (f *FileStore) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *FileStore) Get(_ context.Context, key string) ([]byte, error) {
	if f.isClosed() {
		return nil, ErrClosed
	}
	b, err := os.ReadFile(f.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("storage: read %s: %w", key, err)
	}
	return b, nil
}

func (f *FileStore) Set(_ context.Context, key string, value []byte) error {
	if f.isClosed() {
		return ErrClosed
	}
	if f.quota > 0 {
		used, err := f.usage(key)
		if err != nil {
			return err
		}
		if used+int64(len(value)) > f.quota {
			return fmt.Errorf("%w: %d bytes for %s", ErrQuotaExceeded, len(value), key)
		}
	}

	tmp, err := os.CreateTemp(f.dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("storage: write %s: %w", key, err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(value); err != nil {
		tmp.Close()
		return fmt.Errorf("storage: write %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("storage: write %s: %w", key, err)
	}

	f.mu.Lock()
	f.written[key] = sha256.Sum256(value)
	f.mu.Unlock()

	if err := os.Rename(tmp.Name(), f.path(key)); err != nil {
		return fmt.Errorf("storage: write %s: %w", key, err)
	}
	return nil
}

// usage sums the stored files except the one for key.
func (f *FileStore) usage(key string) (int64, error) {
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return 0, fmt.Errorf("storage: list %s: %w", f.dir, err)
	}
	skip := filepath.Base(f.path(key))
	var n int64
	for _, e := range entries {
		if e.IsDir() || e.Name() == skip || !strings.HasSuffix(e.Name(), fileExt) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		n += info.Size()
	}
	return n, nil
}

// Watch reports changes to the key's file whose content differs from what
// this handle last wrote. Events from other handles carry no origin.
func (f *FileStore) Watch(ctx context.Context, key string) (<-chan Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil, ErrClosed
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("storage: watch: %w", err)
	}
	if err := w.Add(f.dir); err != nil {
		w.Close()
		return nil, fmt.Errorf("storage: watch %s: %w", f.dir, err)
	}
	f.watchers = append(f.watchers, w)

	out := make(chan Event, 1)
	go f.watchLoop(ctx, w, key, out)
	return out, nil
}

func (f *FileStore) watchLoop(ctx context.Context, w *fsnotify.Watcher, key string, out chan<- Event) {
	defer close(out)
	defer w.Close()

	target := filepath.Clean(f.path(key))
	var seen [sha256.Size]byte
	if b, err := os.ReadFile(target); err == nil {
		seen = sha256.Sum256(b)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			f.log.Warn("watch error", "err", err)
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != target || !(ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create)) {
				continue
			}
			b, err := os.ReadFile(target)
			if err != nil {
				continue
			}
			sum := sha256.Sum256(b)
			if sum == seen {
				continue
			}
			seen = sum

			f.mu.Lock()
			own, ok := f.written[key]
			f.mu.Unlock()
			if ok && own == sum {
				continue
			}
			f.log.Debug("external write", "key", key)
			select {
			case out <- Event{Key: key}:
			default:
			}
		}
	}
}

func (f *FileStore) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	f.closed = true
	var errs []error
	for _, w := range f.watchers {
		errs = append(errs, w.Close())
	}
	f.watchers = nil
	return errors.Join(errs...)
}
