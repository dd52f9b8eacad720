package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/log"
)

// RecordStore persists named JSON collections and announces every save.
type RecordStore struct {
	kv     KVStore
	events *Broadcaster
	logger *log.Logger
	clock  Clock
}

// NewRecordStore wires a backend to a broadcaster. A nil broadcaster or logger gets a private default.
func NewRecordStore(kv KVStore, events *Broadcaster, logger *log.Logger) *RecordStore {
	if events == nil {
		events = NewBroadcaster()
	}
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &RecordStore{
		kv:     kv,
		events: events,
		logger: logger,
		clock:  time.Now,
	}
}

// Events returns the broadcaster that receives one event per save.
func (s *RecordStore) Events() *Broadcaster {
	return s.events
}

// Collection is one typed JSON array stored under a fixed key.
type Collection[T any] struct {
	store *RecordStore
	key   string
	seed  func() []T
}

// NewCollection binds a key and seed factory to a record store.
func NewCollection[T any](store *RecordStore, key string, seed func() []T) Collection[T] {
	return Collection[T]{store: store, key: key, seed: seed}
}

// Key returns the storage key.
func (c Collection[T]) Key() string {
	return c.key
}

// Load returns the stored records. An absent, null, or unparseable slot is
// replaced with the seed and the seed is returned; an empty array is kept.
// Records that fail to decode are skipped and the rest are returned.
func (c Collection[T]) Load(ctx context.Context) ([]T, error) {
	raw, err := c.store.kv.Get(ctx, c.key)
	switch {
	case errors.Is(err, ErrNotFound):
		return c.reseed(ctx, "absent")
	case err != nil:
		return nil, fmt.Errorf("load %s: %w", c.key, err)
	}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return c.reseed(ctx, "empty")
	}
	var items []json.RawMessage
	if err := json.Unmarshal(trimmed, &items); err != nil {
		c.store.logger.Warn("discarding corrupt collection", "key", c.key, "err", err)
		return c.reseed(ctx, "corrupt")
	}
	records := make([]T, 0, len(items))
	for i, item := range items {
		var record T
		if err := json.Unmarshal(item, &record); err != nil {
			c.store.logger.Warn("dropping unreadable record", "key", c.key, "index", i, "err", err)
			continue
		}
		records = append(records, record)
	}
	return records, nil
}

// Save overwrites the collection and publishes a change event.
func (c Collection[T]) Save(ctx context.Context, records []T) error {
	if err := c.write(ctx, records); err != nil {
		return err
	}
	c.store.events.Publish(ChangeEvent{Key: c.key, At: c.store.clock().UTC()})
	return nil
}

// reseed writes the seed without announcing it.
func (c Collection[T]) reseed(ctx context.Context, cause string) ([]T, error) {
	var records []T
	if c.seed != nil {
		records = c.seed()
	}
	if records == nil {
		records = []T{}
	}
	if err := c.write(ctx, records); err != nil {
		return nil, err
	}
	c.store.logger.Debug("seeded collection", "key", c.key, "cause", cause, "records", len(records))
	return records, nil
}

// write encodes records and hands them to the backend.
func (c Collection[T]) write(ctx context.Context, records []T) error {
	if records == nil {
		records = []T{}
	}
	payload, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("encode %s: %w", c.key, err)
	}
	if err := c.store.kv.Set(ctx, c.key, payload); err != nil {
		return fmt.Errorf("save %s: %w", c.key, err)
	}
	return nil
}
