// Package file stores each record collection as a JSON document in a directory
// and reports edits made to those documents by other processes.
package file

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
	"github.com/manovate/crm/internal/app"
)

var (
	_ app.KVStore       = (*Store)(nil)
	_ app.ChangeWatcher = (*Store)(nil)
)

const (
	fileExt         = ".json"
	tempPrefix      = ".tmp-"
	defaultDebounce = 100 * time.Millisecond
	// maxWaitFactor caps how many debounce periods a busy key can stay pending.
	maxWaitFactor = 5
)

// Option configures a Store.
type Option func(*Store)

// WithDebounce sets how long a key must stay quiet before its change is reported.
// A key that never goes quiet is still reported after five debounce periods.
func WithDebounce(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.debounce = d
		}
	}
}

// WithLogger sets the logger used for watcher diagnostics.
func WithLogger(logger *log.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Store maps key K to <dir>/<escaped K>.json.
type Store struct {
	dir      string
	debounce time.Duration
	logger   *log.Logger

	mu      sync.Mutex
	written map[string][]byte
}

// New opens dir as a store, creating it when missing.
func New(dir string, opts ...Option) (*Store, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, errors.New("file store dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	s := &Store{
		dir:      dir,
		debounce: defaultDebounce,
		logger:   log.New(io.Discard),
		written:  map[string][]byte{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Dir returns the backing directory.
func (s *Store) Dir() string { return s.dir }

// Path returns the document path for key.
func (s *Store) Path(key string) string {
	return filepath.Join(s.dir, url.PathEscape(key)+fileExt)
}

// Get reads the document for key.
func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	payload, err := os.ReadFile(s.Path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, app.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return payload, nil
}

// Set atomically replaces the document for key.
func (s *Store) Set(ctx context.Context, key string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(s.dir, tempPrefix+"*")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", key, err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName)
	}()
	if _, err := tmp.Write(payload); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Rename(tmpName, s.Path(key)); err != nil {
		return fmt.Errorf("replace %s: %w", key, err)
	}
	s.written[key] = slices.Clone(payload)
	return nil
}

// Watch reports documents changed by anyone other than this Store until ctx is canceled.
func (s *Store) Watch(ctx context.Context, publish func(app.ChangeEvent)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() {
		_ = watcher.Close()
	}()
	if err := watcher.Add(s.dir); err != nil {
		return fmt.Errorf("watch %s: %w", s.dir, err)
	}
	s.logger.Debug("watching store dir", "dir", s.dir)

	pending := map[string]pendingChange{}
	maxWait := maxWaitFactor * s.debounce
	ticker := time.NewTicker(s.debounce)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			key, ok := keyFromPath(event.Name)
			if !ok {
				continue
			}
			now := time.Now()
			change, seen := pending[key]
			if !seen {
				change.first = now
			}
			change.last = now
			pending[key] = change
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("store watcher error", "err", err)
		case now := <-ticker.C:
			for key, change := range pending {
				if !change.due(now, s.debounce, maxWait) {
					continue
				}
				delete(pending, key)
				if s.selfWritten(key) {
					continue
				}
				s.logger.Debug("external change", "key", key)
				if publish != nil {
					publish(app.ChangeEvent{Key: key, At: now.UTC(), External: true})
				}
			}
		}
	}
}

// pendingChange tracks one key between its first unreported event and its flush.
type pendingChange struct {
	first time.Time
	last  time.Time
}

// due reports whether the key has been quiet for debounce or pending for maxWait.
func (c pendingChange) due(now time.Time, debounce, maxWait time.Duration) bool {
	return now.Sub(c.last) >= debounce || now.Sub(c.first) >= maxWait
}

// selfWritten reports whether the document for key still holds the bytes this Store wrote last.
func (s *Store) selfWritten(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	last, ok := s.written[key]
	if !ok {
		return false
	}
	current, err := os.ReadFile(s.Path(key))
	if err != nil {
		return false
	}
	return bytes.Equal(current, last)
}

func keyFromPath(path string) (string, bool) {
	base := filepath.Base(path)
	// Temp files from Set never carry the document extension.
	if !strings.HasSuffix(base, fileExt) {
		return "", false
	}
	key, err := url.PathUnescape(strings.TrimSuffix(base, fileExt))
	if err != nil || key == "" {
		return "", false
	}
	return key, true
}
