package app

import "context"

// KVStore persists one opaque payload per key. Get returns ErrNotFound for an absent key.
type KVStore interface {
	Get(context.Context, string) ([]byte, error)
	Set(context.Context, string, []byte) error
}

// ChangeWatcher is implemented by backends that can observe writes made by other processes.
// Watch blocks until ctx is canceled, publishing one event per externally changed key.
type ChangeWatcher interface {
	Watch(ctx context.Context, publish func(ChangeEvent)) error
}
