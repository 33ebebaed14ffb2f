package content

import "github.com/goliatone/go-repository-cache/cache"

// RepositoryOption configures content repository construction.
type RepositoryOption func(*RepositoryOptions)

// RepositoryOptions captures optional behavior for content persistence.
type RepositoryOptions struct {
	CacheEnabled bool
	CacheConfig  *cache.Config
}

// WithCache toggles the repository cache decorator. Lookups by external id
// are the hot path during ingestion and resolution.
func WithCache(enabled bool) RepositoryOption {
	return func(opts *RepositoryOptions) {
		if opts == nil {
			return
		}
		opts.CacheEnabled = enabled
	}
}

// WithCacheConfig supplies the cache configuration to use when caching is
// enabled.
func WithCacheConfig(cfg cache.Config) RepositoryOption {
	return func(opts *RepositoryOptions) {
		if opts == nil {
			return
		}
		opts.CacheConfig = &cfg
	}
}

func applyRepositoryOptions(options []RepositoryOption) RepositoryOptions {
	var opts RepositoryOptions
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(&opts)
	}
	return opts
}
