package series

import (
	"context"

	"github.com/moznion/go-optional"
)

// Source abstracts one remote dataset endpoint.
type Source interface {
	Identity() Identity
	URL() string
	Fetch(ctx context.Context) (*Dataset, error)
}

// FingerprintChecker computes the content digest of a remote resource.
// None means the digest is unknown and must not trigger invalidation.
type FingerprintChecker interface {
	Check(ctx context.Context, url string) optional.Option[string]
}

// FetchFunc downloads and parses a dataset.
type FetchFunc func(ctx context.Context) (*Dataset, error)

// Cache is the contract of the process-wide dataset cache.
type Cache interface {
	// Load returns the live entry for id or fetches, stores and returns a new one.
	Load(ctx context.Context, id Identity, fetch FetchFunc) (*Dataset, error)
	// Peek returns the live entry for id without fetching.
	Peek(id Identity) (*Dataset, bool)
	Invalidate(id Identity)
	// InvalidateIfStale drops the live entry for id only when its fingerprint
	// differs from fingerprint, and reports whether it did.
	InvalidateIfStale(id Identity, fingerprint string) bool
	InvalidateAll()
}
