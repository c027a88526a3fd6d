package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/viant/kvvs/index"
	"github.com/viant/kvvs/storage"
	"github.com/viant/kvvs/storage/valuelog"
)

const (
	valuesCompactFile = valuelog.FileName + ".compact"
	indexCompactFile  = "index.json.compact"
	compactionFile    = "compaction.json"
)

type truncateOptions struct {
	minSequence uint64
	bySequence  bool
	keys        []string
	filter      func(digest string, latest *storage.Pointer) bool
}

// TruncateOption narrows what Truncate drops.
type TruncateOption func(o *truncateOptions)

// WithMinSequence keeps versions with sequence >= n instead of only the latest.
func WithMinSequence(n uint64) TruncateOption {
	return func(o *truncateOptions) {
		o.minSequence = n
		o.bySequence = true
	}
}

// WithKey restricts truncation to the given key; may be repeated.
func WithKey(key string) TruncateOption {
	return func(o *truncateOptions) { o.keys = append(o.keys, key) }
}

// WithKeyFilter restricts truncation to digests accepted by fn.
func WithKeyFilter(fn func(digest string, latest *storage.Pointer) bool) TruncateOption {
	return func(o *truncateOptions) { o.filter = fn }
}

// TruncateStats reports the outcome of a Truncate.
type TruncateStats struct {
	Keys      int   `json:"keys"`
	Kept      int   `json:"kept"`
	Truncated int   `json:"truncated"`
	SizeFrom  int64 `json:"sizeFrom"`
	SizeTo    int64 `json:"sizeTo"`
}

// Truncate rewrites the value log keeping only the selected versions.
// Keys the options do not select keep their full history. Sequence numbers
// are preserved and the oldest kept version of each key loses its previous link.
func (s *Store) Truncate(ctx context.Context, opts ...TruncateOption) (*TruncateStats, error) {
	options := &truncateOptions{}
	for _, opt := range opts {
		opt(options)
	}
	selected := map[string]bool{}
	for _, key := range options.keys {
		id, err := s.Digest(key)
		if err != nil {
			return nil, err
		}
		selected[id] = true
	}
	matches := func(digest string, latest *storage.Pointer) bool {
		if len(selected) > 0 && !selected[digest] {
			return false
		}
		if options.filter != nil && !options.filter(digest, latest) {
			return false
		}
		return true
	}

	s.swap.Lock()
	defer s.swap.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, storage.ErrClosed
	}
	entries, err := s.index.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: truncate: %w", err)
	}
	stats := &TruncateStats{Keys: len(entries), SizeFrom: s.values.Size()}
	if err := s.writeCompaction(ctx, entries, matches, options, stats); err != nil {
		s.removeCompactionFiles()
		return nil, fmt.Errorf("store: truncate: %w", err)
	}
	if err := os.Rename(filepath.Join(s.dir, indexCompactFile), filepath.Join(s.dir, compactionFile)); err != nil {
		s.removeCompactionFiles()
		return nil, fmt.Errorf("store: truncate: commit: %w", err)
	}
	if err := s.closeLocked(); err != nil {
		s.logger.Warn().Err(err).Msg("closing before compaction swap")
	}
	if err := s.open(ctx); err != nil {
		return nil, fmt.Errorf("store: truncate: reopen: %w", err)
	}
	stats.SizeTo = s.values.Size()
	s.logger.Info().Int("keys", stats.Keys).Int("kept", stats.Kept).Int("truncated", stats.Truncated).
		Int64("sizeFrom", stats.SizeFrom).Int64("sizeTo", stats.SizeTo).Msg("store compacted")
	return stats, nil
}

// writeCompaction writes the temporary value log and index. Nothing live is touched.
func (s *Store) writeCompaction(ctx context.Context, entries map[string]*storage.Pointer, matches func(string, *storage.Pointer) bool, options *truncateOptions, stats *TruncateStats) error {
	s.removeCompactionFiles()
	target, err := valuelog.Open(valuelog.Options{Path: filepath.Join(s.dir, valuesCompactFile)})
	if err != nil {
		return err
	}
	defer target.Close()

	digests := make([]string, 0, len(entries))
	for digest := range entries {
		digests = append(digests, digest)
	}
	sort.Strings(digests)
	next := make(map[string]*storage.Pointer, len(entries))
	for _, digest := range digests {
		if err := ctx.Err(); err != nil {
			return err
		}
		latest := entries[digest]
		selected := matches(digest, latest)
		var chain []*Item
		err := walkChain(ctx, s.values, digest, latest, func(item *Item) bool {
			if selected && len(chain) > 0 {
				if !options.bySequence || item.Record.Sequence < options.minSequence {
					return false
				}
			}
			chain = append(chain, item)
			return true
		})
		if err != nil {
			return fmt.Errorf("read %v: %w", digest, err)
		}
		if chain[len(chain)-1].Record.Previous != nil {
			stats.Truncated++
		}
		var previous *storage.Pointer
		for i := len(chain) - 1; i >= 0; i-- {
			item := chain[i]
			record := *item.Record
			record.Previous = previous
			data, err := json.Marshal(&record)
			if err != nil {
				return err
			}
			start, length, err := target.Append(data)
			if err != nil {
				return err
			}
			previous = &storage.Pointer{Start: start, Length: length, Sequence: record.Sequence, Meta: item.Pointer.Meta}
		}
		stats.Kept += len(chain)
		next[digest] = previous
	}
	if err := target.Sync(); err != nil {
		return err
	}
	return index.WriteKeysFile(filepath.Join(s.dir, indexCompactFile), next)
}

func (s *Store) removeCompactionFiles() {
	for _, name := range []string{valuesCompactFile, indexCompactFile, indexCompactFile + ".tmp"} {
		if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !os.IsNotExist(err) {
			s.logger.Warn().Err(err).Str("file", name).Msg("removing compaction file")
		}
	}
}

// recoverCompaction finishes a committed compaction or discards an unfinished one.
func (s *Store) recoverCompaction() error {
	marker := filepath.Join(s.dir, compactionFile)
	if _, err := os.Stat(marker); err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("store: stat %v: %w", marker, err)
		}
		s.removeCompactionFiles()
		return nil
	}
	values := filepath.Join(s.dir, valuesCompactFile)
	if _, err := os.Stat(values); err == nil {
		if err := os.Rename(values, filepath.Join(s.dir, valuelog.FileName)); err != nil {
			return fmt.Errorf("store: install compacted values: %w", err)
		}
	}
	if err := os.Rename(marker, filepath.Join(s.dir, index.KeysFile)); err != nil {
		return fmt.Errorf("store: install compacted index: %w", err)
	}
	s.logger.Info().Msg("compaction installed")
	return nil
}
