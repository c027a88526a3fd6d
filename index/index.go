// Package index persists the digest -> latest pointer mapping of a store.
//
// Two layouts are supported and selected when a store is opened:
//   - Speed: the whole mapping lives in memory and is mirrored to keys.json,
//     an append-only file of `"digest":{pointer}` fragments.
//   - Compact: every key has its own <digest>.json pointer file and memory
//     holds a bounded, insertion-ordered cache.
//
// Opening a directory with the other layout converts it in place.
package index

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/rs/zerolog"
	"github.com/viant/kvvs/storage"
)

// Mode names an index persistence layout.
type Mode string

const (
	// ModeSpeed keeps the full index in memory.
	ModeSpeed Mode = "speed"
	// ModeCompact keeps one file per key and a bounded cache.
	ModeCompact Mode = "compact"
)

const (
	// KeysFile is the speed layout index file.
	KeysFile = "keys.json"
	// FileExt is appended to a digest to name its compact layout pointer file.
	FileExt = ".json"

	// DefaultCacheMax is the default compact cache capacity.
	DefaultCacheMax = 100000
	// DefaultCacheStep is the default eviction batch, as a fraction of the capacity.
	DefaultCacheStep = 0.1
)

// reserved top-level names that per-key files must not shadow
var reserved = map[string]bool{
	"values":     true,
	"keys":       true,
	"compaction": true,
	"index":      true,
}

// ParseMode maps a configuration value to a Mode; empty means speed.
func ParseMode(value string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "s", string(ModeSpeed):
		return ModeSpeed, nil
	case "c", "m", "memory", string(ModeCompact):
		return ModeCompact, nil
	}
	return "", fmt.Errorf("index: unsupported optimize mode %q", value)
}

// ValidateDigest checks that digest can name a pointer file under the store directory.
func ValidateDigest(digest string) error {
	if digest == "" {
		return storage.ErrEmptyKey
	}
	if strings.HasPrefix(digest, "/") || strings.Contains(digest, "\\") || path.Clean(digest) != digest {
		return fmt.Errorf("%w: %q", storage.ErrInvalidKey, digest)
	}
	for _, part := range strings.Split(digest, "/") {
		if part == "." || part == ".." {
			return fmt.Errorf("%w: %q", storage.ErrInvalidKey, digest)
		}
	}
	if reserved[strings.SplitN(digest, "/", 2)[0]] {
		return fmt.Errorf("%w: %q", storage.ErrReservedKey, digest)
	}
	return nil
}

// Strategy is the contract shared by both layouts.
type Strategy interface {
	// Mode reports the layout.
	Mode() Mode

	// Load returns every entry. It reads disk in the compact layout.
	Load(ctx context.Context) (map[string]*storage.Pointer, error)

	// Get returns the latest pointer for digest, or nil when the key is unknown.
	Get(ctx context.Context, digest string) (*storage.Pointer, error)

	// Put persists pointer as the latest entry for digest before returning.
	Put(ctx context.Context, digest string, pointer *storage.Pointer) error

	// Uncache drops digest from memory if the layout allows it; disk is untouched.
	Uncache(digest string)

	// Count returns the number of distinct keys.
	Count(ctx context.Context) (int, error)

	// Close releases file handles.
	Close() error
}

// Options configures Open.
type Options struct {
	// Dir is the store directory.
	Dir string
	// Mode is the requested layout.
	Mode Mode
	// CacheMax bounds the compact layout cache.
	CacheMax int
	// CacheStep is the eviction batch: a fraction of CacheMax below 1, else a count.
	CacheStep float64
	// Logger receives conversion and eviction events.
	Logger zerolog.Logger
}

func (o *Options) withDefaults() {
	if o.Mode == "" {
		o.Mode = ModeSpeed
	}
	if o.CacheMax <= 0 {
		o.CacheMax = DefaultCacheMax
	}
	if o.CacheStep <= 0 {
		o.CacheStep = DefaultCacheStep
	}
}

// Open returns the strategy for opts.Mode, converting the on-disk layout when
// it differs. keys.json present means the directory holds the speed layout.
func Open(ctx context.Context, opts Options) (Strategy, error) {
	opts.withDefaults()
	switch opts.Mode {
	case ModeSpeed:
		return openSpeed(ctx, opts)
	case ModeCompact:
		return openCompact(ctx, opts)
	}
	return nil, fmt.Errorf("index: unsupported mode %q", opts.Mode)
}
