package series

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/i474232898/series-dashboard/internal/session"
)

// NoticeLevel distinguishes user-visible messages.
type NoticeLevel string

const (
	NoticeWarning NoticeLevel = "warning"
	NoticeInfo    NoticeLevel = "info"
)

// Notice is a message the renderer shows alongside a result.
type Notice struct {
	Level   NoticeLevel `json:"level"`
	Message string      `json:"message"`
}

const (
	msgNewContent   = "New content detected; data has been refreshed."
	msgReloaded     = "Data reloaded manually."
	msgNoDataset    = "No data available: the dataset could not be loaded."
	msgNoSources    = "No data available for the sources of this view."
	msgNoneSelected = "No data found for the selected filters."
)

// Service orchestrates fingerprint checks, the shared dataset cache and the
// per-session view pipeline.
type Service struct {
	cache   Cache
	checker FingerprintChecker
	sources map[Identity]Source

	views     map[string]View
	viewOrder []string
	order     SourceOrder

	log *zerolog.Logger
	now func() time.Time // injectable for deterministic tests
}

// NewService creates a new Service.
func NewService(cache Cache, checker FingerprintChecker, sources []Source, views []View, order SourceOrder, logger *zerolog.Logger) *Service {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	s := &Service{
		cache:   cache,
		checker: checker,
		sources: make(map[Identity]Source, len(sources)),
		views:   make(map[string]View, len(views)),
		order:   order,
		log:     logger,
		now:     time.Now,
	}
	for _, src := range sources {
		s.sources[src.Identity()] = src
	}
	for _, v := range views {
		s.views[v.Name] = v
		s.viewOrder = append(s.viewOrder, v.Name)
	}
	return s
}

// Identities returns the identities of all configured sources.
func (s *Service) Identities() []Identity {
	ids := make([]Identity, 0, len(s.sources))
	for _, name := range []Identity{IdentityReadings, IdentityBatches} {
		if _, ok := s.sources[name]; ok {
			ids = append(ids, name)
		}
	}
	for id := range s.sources {
		if id != IdentityReadings && id != IdentityBatches {
			ids = append(ids, id)
		}
	}
	return ids
}

// Load returns the dataset for id from the cache, fetching it on a miss.
func (s *Service) Load(ctx context.Context, id Identity) (*Dataset, error) {
	src, ok := s.sources[id]
	if !ok {
		return nil, fmt.Errorf("%w: no source configured for dataset %q", ErrFetchFailure, id)
	}
	return s.cache.Load(ctx, id, src.Fetch)
}

// Invalidate unconditionally drops the cached dataset for id.
func (s *Service) Invalidate(id Identity) {
	s.cache.Invalidate(id)
	s.log.Info().Str("dataset", string(id)).Msg("cache: invalidated")
}

// InvalidateAll drops every cached dataset.
func (s *Service) InvalidateAll() {
	s.cache.InvalidateAll()
	s.log.Info().Msg("cache: cleared")
}

func fingerprintKey(id Identity) string { return "fingerprint." + string(id) }

// Refresh compares the remote fingerprint of id with the live cached
// dataset and invalidates a stale entry once. Without a live entry there is
// nothing to compare and the remote is not contacted. An unknown remote
// digest keeps the cache untouched. It reports whether the entry was dropped.
func (s *Service) Refresh(ctx context.Context, id Identity) bool {
	src, ok := s.sources[id]
	if !ok {
		return false
	}
	if _, live := s.cache.Peek(id); !live {
		return false
	}

	digest := s.checker.Check(ctx, src.URL())
	if digest.IsNone() {
		s.log.Debug().Str("dataset", string(id)).Msg("fingerprint: unknown, skipping invalidation")
		return false
	}
	remote := digest.Unwrap()

	if !s.cache.InvalidateIfStale(id, remote) {
		return false
	}
	s.log.Info().Str("dataset", string(id)).Str("fingerprint", remote).Msg("fingerprint: remote content changed, cache invalidated")
	return true
}

// observe records the fingerprint a session is shown and reports whether it
// differs from the one the session saw before.
func (s *Service) observe(st *session.State, id Identity, fingerprint string) bool {
	key := fingerprintKey(id)
	seen, hadSeen := session.Lookup[string](st, key)
	st.Set(key, fingerprint)
	return hadSeen && seen != fingerprint
}

// CheckFreshness invalidates and rewarms the cache for id when the remote
// content no longer matches the cached dataset. It reports whether the
// dataset was replaced.
func (s *Service) CheckFreshness(ctx context.Context, id Identity) (bool, error) {
	src, ok := s.sources[id]
	if !ok {
		return false, fmt.Errorf("%w: no source configured for dataset %q", ErrFetchFailure, id)
	}
	if _, live := s.cache.Peek(id); !live {
		return false, nil
	}
	digest := s.checker.Check(ctx, src.URL())
	if digest.IsNone() || !s.cache.InvalidateIfStale(id, digest.Unwrap()) {
		return false, nil
	}
	if _, err := s.Load(ctx, id); err != nil {
		return true, err
	}
	return true, nil
}
