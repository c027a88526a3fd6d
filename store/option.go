package store

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/viant/kvvs/digest"
	"github.com/viant/kvvs/index"
)

// Options configures a Store.
type Options struct {
	// Optimize selects the index layout.
	Optimize index.Mode
	// CacheMax bounds the compact layout cache.
	CacheMax int
	// CacheStep is the eviction batch: below 1 a fraction of CacheMax, else a count.
	CacheStep float64
	// Hash digests keys before use; when false keys name files directly.
	Hash bool
	// Digest overrides the default SHA3-256 digest when Hash is set.
	Digest digest.Func
	// Logger receives lifecycle events.
	Logger zerolog.Logger
	// Clock stamps records.
	Clock func() time.Time
}

// DefaultOptions returns the speed layout with hashed keys.
func DefaultOptions() Options {
	return Options{
		Optimize:  index.ModeSpeed,
		CacheMax:  index.DefaultCacheMax,
		CacheStep: index.DefaultCacheStep,
		Hash:      true,
		Logger:    zerolog.Nop(),
		Clock:     time.Now,
	}
}

func (o *Options) digest() digest.Func {
	if !o.Hash {
		return digest.Identity
	}
	if o.Digest != nil {
		return o.Digest
	}
	return digest.SHA3
}

// Option mutates Options.
type Option func(o *Options)

// WithOptions replaces all options at once.
func WithOptions(options Options) Option {
	return func(o *Options) { *o = options }
}

// WithOptimize selects the index layout.
func WithOptimize(mode index.Mode) Option {
	return func(o *Options) { o.Optimize = mode }
}

// WithCacheMax sets the compact layout cache capacity.
func WithCacheMax(n int) Option {
	return func(o *Options) { o.CacheMax = n }
}

// WithCacheStep sets the eviction batch.
func WithCacheStep(step float64) Option {
	return func(o *Options) { o.CacheStep = step }
}

// WithHash toggles key digesting.
func WithHash(enabled bool) Option {
	return func(o *Options) { o.Hash = enabled }
}

// WithDigest sets the digest used when hashing is enabled.
func WithDigest(fn digest.Func) Option {
	return func(o *Options) { o.Digest = fn }
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *Options) { o.Logger = logger }
}

// WithClock sets the record timestamp source.
func WithClock(clock func() time.Time) Option {
	return func(o *Options) { o.Clock = clock }
}
