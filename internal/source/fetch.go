package source

import (
	"context"
	"log/slog"
	"time"

	"github.com/derickschaefer/atlas/internal/model"
)

// Entry is one cached snapshot payload.
type Entry struct {
	Ref       string    `json:"ref"`
	FetchedAt time.Time `json:"fetched_at"`
	Payload   []byte    `json:"payload"`
}

// Cache stores raw snapshot payloads by reference.
// Get returns (entry, true, nil) on a hit and (zero, false, nil) on a miss.
type Cache interface {
	Get(ctx context.Context, ref string) (Entry, bool, error)
	Put(ctx context.Context, e Entry) error
}

// Chain layers caches, fastest first. A hit in a later layer is copied
// into the earlier ones; Put writes every layer.
type Chain []Cache

// Get implements Cache.
func (c Chain) Get(ctx context.Context, ref string) (Entry, bool, error) {
	for i, layer := range c {
		e, ok, err := layer.Get(ctx, ref)
		if err != nil {
			slog.Debug("cache layer failed", "layer", i, "err", err)
			continue
		}
		if !ok {
			continue
		}
		for _, earlier := range c[:i] {
			if err := earlier.Put(ctx, e); err != nil {
				slog.Debug("cache backfill failed", "err", err)
			}
		}
		return e, true, nil
	}
	return Entry{}, false, nil
}

// Put implements Cache.
func (c Chain) Put(ctx context.Context, e Entry) error {
	var firstErr error
	for _, layer := range c {
		if err := layer.Put(ctx, e); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// ─── Fetcher ──────────────────────────────────────────────────────────────────

// Stats describes one fetch.
type Stats struct {
	CacheHit  bool
	Bytes     int
	FetchedAt time.Time
	Duration  time.Duration
}

// Fetched is a decoded snapshot plus fetch metadata.
type Fetched struct {
	Ref      string
	Dataset  *model.Dataset
	Payload  []byte
	Warnings []string
	Stats    Stats
}

// Fetcher loads and decodes snapshots through an optional cache.
type Fetcher struct {
	Loader Loader
	Cache  Cache // nil disables caching

	NoCache bool // bypass the cache entirely
	Refresh bool // skip cache reads, overwrite the entry after loading

	now func() time.Time
}

// NewFetcher builds a Fetcher. cache may be nil.
func NewFetcher(loader Loader, cache Cache) *Fetcher {
	return &Fetcher{Loader: loader, Cache: cache, now: time.Now}
}

// CacheKey returns the key a reference is cached under: the resolved
// reference when the loader can resolve names, otherwise ref itself.
func (f *Fetcher) CacheKey(ref string) string {
	if r, ok := f.Loader.(interface {
		Resolve(string) (string, Scheme, error)
	}); ok {
		if target, _, err := r.Resolve(ref); err == nil {
			return target
		}
	}
	return ref
}

// Fetch returns the decoded snapshot behind ref. Stdin is never cached.
func (f *Fetcher) Fetch(ctx context.Context, ref string) (*Fetched, error) {
	start := time.Now()
	now := f.now
	if now == nil {
		now = time.Now
	}
	key := f.CacheKey(ref)
	cacheable := f.Cache != nil && ref != "-" && !f.NoCache

	if cacheable && !f.Refresh {
		e, ok, err := f.Cache.Get(ctx, key)
		switch {
		case err != nil:
			slog.Debug("cache read failed", "ref", key, "err", err)
		case ok:
			ds, warns, err := Decode(e.Payload)
			if err == nil {
				slog.Debug("cache hit", "ref", key, "fetched_at", e.FetchedAt)
				return &Fetched{
					Ref: key, Dataset: ds, Payload: e.Payload, Warnings: warns,
					Stats: Stats{CacheHit: true, Bytes: len(e.Payload), FetchedAt: e.FetchedAt, Duration: time.Since(start)},
				}, nil
			}
			slog.Debug("cached payload unreadable, refetching", "ref", key, "err", err)
		default:
			slog.Debug("cache miss", "ref", key)
		}
	}

	payload, err := f.Loader.Load(ctx, ref)
	if err != nil {
		return nil, err
	}
	ds, warns, err := Decode(payload)
	if err != nil {
		return nil, err
	}
	fetchedAt := now().UTC()
	if cacheable {
		if err := f.Cache.Put(ctx, Entry{Ref: key, FetchedAt: fetchedAt, Payload: payload}); err != nil {
			warns = append(warns, "cache write failed: "+err.Error())
		}
	}
	return &Fetched{
		Ref: key, Dataset: ds, Payload: payload, Warnings: warns,
		Stats: Stats{Bytes: len(payload), FetchedAt: fetchedAt, Duration: time.Since(start)},
	}, nil
}
