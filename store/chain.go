package store

import (
	"context"
	"fmt"

	"github.com/viant/kvvs/storage"
)

// Item is one version of a key.
type Item struct {
	Digest  string
	Record  *storage.Record
	Pointer *storage.Pointer
}

// Decode unmarshals the item value into dest.
func (i *Item) Decode(dest interface{}) error {
	return i.Record.Decode(dest)
}

// Deleted reports whether the item is a delete marker.
func (i *Item) Deleted() bool {
	return i.Record.Deleted()
}

// readRecord loads and checks the record pointer refers to.
func readRecord(values storage.ValueLog, pointer *storage.Pointer) (*storage.Record, error) {
	if pointer.Start < 0 || pointer.Length <= 0 {
		return nil, fmt.Errorf("%w: [%d,+%d)", storage.ErrInvalidPtr, pointer.Start, pointer.Length)
	}
	data, err := values.Read(pointer.Start, pointer.Length)
	if err != nil {
		return nil, err
	}
	record, err := storage.DecodeRecord(data)
	if err != nil {
		return nil, err
	}
	if record.Sequence != pointer.Sequence {
		return nil, fmt.Errorf("%w: record at %d has sequence %d, pointer expects %d", storage.ErrCorrupt, pointer.Start, record.Sequence, pointer.Sequence)
	}
	if record.Previous != nil && record.Previous.Sequence >= record.Sequence {
		return nil, fmt.Errorf("%w: record at %d links forward to sequence %d", storage.ErrCorrupt, pointer.Start, record.Previous.Sequence)
	}
	return record, nil
}

// walkChain visits versions newest first until visit returns false or the chain ends.
func walkChain(ctx context.Context, values storage.ValueLog, digest string, head *storage.Pointer, visit func(item *Item) bool) error {
	for pointer := head; pointer != nil; {
		if err := ctx.Err(); err != nil {
			return err
		}
		record, err := readRecord(values, pointer)
		if err != nil {
			return err
		}
		if !visit(&Item{Digest: digest, Record: record, Pointer: pointer.Clone()}) {
			return nil
		}
		if record.Sequence == 0 {
			return nil
		}
		pointer = record.Previous
	}
	return nil
}

// head resolves the latest pointer for key and returns the log to read it from.
// Callers hold swap for reading; mu is taken only for the lookup.
func (s *Store) head(ctx context.Context, key string) (string, *storage.Pointer, error) {
	id, err := s.Digest(key)
	if err != nil {
		return "", nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", nil, storage.ErrClosed
	}
	pointer, err := s.index.Get(ctx, id)
	if err != nil {
		return "", nil, fmt.Errorf("store: resolve %v: %w", key, err)
	}
	return id, pointer, nil
}

// Get returns the first version of key, newest first, that selector matches.
// A nil item means no such version exists.
func (s *Store) Get(ctx context.Context, key string, selector storage.Selector) (*Item, error) {
	s.swap.RLock()
	defer s.swap.RUnlock()
	id, pointer, err := s.head(ctx, key)
	if err != nil || pointer == nil {
		return nil, err
	}
	if selector.Beyond(pointer.Sequence) {
		return nil, nil
	}
	var found *Item
	err = walkChain(ctx, s.values, id, pointer, func(item *Item) bool {
		if selector.Match(item.Record) {
			found = item
			return false
		}
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("store: get %v: %w", key, err)
	}
	return found, nil
}

// GetLatest returns the latest version of key, including delete markers.
func (s *Store) GetLatest(ctx context.Context, key string) (*Item, error) {
	return s.Get(ctx, key, storage.Latest())
}

// GetHistory returns the versions of key accepted by filter, newest first.
// A nil filter accepts every version.
func (s *Store) GetHistory(ctx context.Context, key string, filter func(record *storage.Record) bool) ([]*Item, error) {
	var items []*Item
	err := s.Walk(ctx, key, func(item *Item) bool {
		if filter == nil || filter(item.Record) {
			items = append(items, item)
		}
		return true
	})
	return items, err
}

// Walk visits the versions of key newest first until fn returns false.
func (s *Store) Walk(ctx context.Context, key string, fn func(item *Item) bool) error {
	s.swap.RLock()
	defer s.swap.RUnlock()
	id, pointer, err := s.head(ctx, key)
	if err != nil || pointer == nil {
		return err
	}
	if err = walkChain(ctx, s.values, id, pointer, fn); err != nil {
		return fmt.Errorf("store: walk %v: %w", key, err)
	}
	return nil
}
