// Package kvvs exposes a versioned, append-only key-value store.
//
// Every write appends a new version; earlier versions stay readable by
// sequence or predicate until the store is truncated.
package kvvs

import (
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog"
	"github.com/viant/kvvs/storage"
	"github.com/viant/kvvs/store"
)

// Service is a key-value service over a versioned store
type Service struct {
	store *store.Store
}

// SetItem stores value as the next version of key.
func (s *Service) SetItem(ctx context.Context, key string, value interface{}, meta storage.Metadata) (*storage.Pointer, error) {
	return s.store.Set(ctx, key, value, meta)
}

// GetItem decodes the selected version of key into dest. It reports false
// when the key is unknown, no version matches, or the match is a delete marker.
func (s *Service) GetItem(ctx context.Context, key string, dest interface{}, selector ...storage.Selector) (bool, error) {
	item, err := s.GetItemRecord(ctx, key, selector...)
	if err != nil || item == nil || item.Deleted() {
		return false, err
	}
	if err := item.Decode(dest); err != nil {
		return false, fmt.Errorf("decode %v: %w", key, err)
	}
	return true, nil
}

// GetItemRecord returns the selected version of key with its pointer, or nil.
func (s *Service) GetItemRecord(ctx context.Context, key string, selector ...storage.Selector) (*store.Item, error) {
	sel := storage.Latest()
	if len(selector) > 0 {
		sel = selector[0]
	}
	return s.store.Get(ctx, key, sel)
}

// RemoveItem marks key deleted while keeping its history.
func (s *Service) RemoveItem(ctx context.Context, key string, meta storage.Metadata) (*storage.Pointer, error) {
	return s.store.Remove(ctx, key, meta)
}

// GetHistory returns versions of key accepted by predicate, newest first.
func (s *Service) GetHistory(ctx context.Context, key string, predicate func(record *storage.Record) bool) ([]*store.Item, error) {
	return s.store.GetHistory(ctx, key, predicate)
}

// Count returns the number of distinct keys.
func (s *Service) Count(ctx context.Context) (int, error) {
	return s.store.Count(ctx)
}

// Clear removes all data.
func (s *Service) Clear(ctx context.Context) error {
	return s.store.Clear(ctx)
}

// Truncate drops old versions, see store.Truncate.
func (s *Service) Truncate(ctx context.Context, opts ...store.TruncateOption) (*store.TruncateStats, error) {
	return s.store.Truncate(ctx, opts...)
}

// Export writes a compressed snapshot of all retained versions.
func (s *Service) Export(ctx context.Context, w io.Writer) (int, error) {
	return s.store.Export(ctx, w)
}

// Import loads a snapshot into an empty store.
func (s *Service) Import(ctx context.Context, r io.Reader) (int, error) {
	return s.store.Import(ctx, r)
}

// Store returns the underlying engine.
func (s *Service) Store() *store.Store {
	return s.store
}

// Close releases the store.
func (s *Service) Close() error {
	return s.store.Close()
}

// NewService wraps an opened store.
func NewService(st *store.Store) *Service {
	return &Service{store: st}
}

// Open opens the store described by cfg.
func Open(ctx context.Context, cfg *Config, logger zerolog.Logger) (*Service, error) {
	if cfg == nil || cfg.Dir == "" {
		return nil, fmt.Errorf("kvvs: dir is required")
	}
	opts, err := cfg.Options(logger)
	if err != nil {
		return nil, err
	}
	st, err := store.Open(ctx, cfg.Dir, opts...)
	if err != nil {
		return nil, err
	}
	return NewService(st), nil
}
