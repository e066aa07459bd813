// Package app wires together configuration, the loaders, the cache layers
// and the catalog into a single Deps struct that commands receive at runtime.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"golang.org/x/text/language"

	"github.com/derickschaefer/atlas/internal/catalog"
	"github.com/derickschaefer/atlas/internal/config"
	"github.com/derickschaefer/atlas/internal/period"
	"github.com/derickschaefer/atlas/internal/source"
	"github.com/derickschaefer/atlas/internal/store"
)

// DefaultCatalogFile is read from the working directory when no catalog
// path is configured.
const DefaultCatalogFile = "catalog.yaml"

// Deps holds all runtime dependencies injected into command Run functions.
// Store and Redis are nil when they could not be opened; the fetcher then
// runs against whatever cache layers remain.
type Deps struct {
	Config  *config.Config
	Fetcher *source.Fetcher
	Store   *store.Store
	Redis   *store.RedisCache
	Catalog *catalog.Catalog

	storeErr error
}

// New builds a Deps from resolved config. Cache layers that fail to open
// are logged and skipped; a malformed catalog file is an error.
func New(ctx context.Context, cfg *config.Config) (*Deps, error) {
	d := &Deps{Config: cfg}

	router := &source.Router{
		BaseURL: cfg.BaseURL,
		HTTP:    source.NewHTTPLoader(cfg.Timeout, cfg.Rate, cfg.Token),
		S3:      &lazyS3{},
		File:    source.FileLoader{Stdin: os.Stdin},
	}

	var chain source.Chain
	if cfg.RedisURL != "" && !cfg.NoCache {
		rc, err := store.NewRedisCache(ctx, cfg.RedisURL, cfg.CacheTTL)
		if err != nil {
			slog.Warn("redis cache unavailable", "err", err)
		} else {
			d.Redis = rc
			chain = append(chain, rc)
		}
	}
	if cfg.DBPath != "" {
		s, err := store.Open(cfg.DBPath)
		if err != nil {
			slog.Debug("local store unavailable", "path", cfg.DBPath, "err", err)
			d.storeErr = err
		} else {
			d.Store = s
			chain = append(chain, s)
		}
	} else {
		d.storeErr = errors.New("no database path configured (set ATLAS_DB_PATH or --db)")
	}

	var cache source.Cache
	if len(chain) > 0 {
		cache = chain
	}
	d.Fetcher = source.NewFetcher(router, cache)
	d.Fetcher.NoCache = cfg.NoCache
	d.Fetcher.Refresh = cfg.Refresh

	cat, err := LoadCatalog(cfg.Catalog)
	if err != nil {
		d.Close()
		return nil, err
	}
	d.Catalog = cat
	return d, nil
}

// LoadCatalog reads the configured catalog. A missing default catalog is
// fine; a missing explicitly configured one is not.
func LoadCatalog(path string) (*catalog.Catalog, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultCatalogFile
	}
	if _, err := os.Stat(path); err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}
	return catalog.Load(path)
}

// RequireStore returns the local store or the error that kept it closed.
func (d *Deps) RequireStore() (*store.Store, error) {
	if d.Store != nil {
		return d.Store, nil
	}
	if d.storeErr != nil {
		return nil, fmt.Errorf("opening local store: %w", d.storeErr)
	}
	return nil, errors.New("local store is not open")
}

// Locale returns the configured display locale.
func (d *Deps) Locale() language.Tag {
	return period.ParseLocale(d.Config.Locale)
}

// Close releases the store and the redis client.
func (d *Deps) Close() {
	if d.Store != nil {
		if err := d.Store.Close(); err != nil {
			slog.Debug("closing store", "err", err)
		}
		d.Store = nil
	}
	if d.Redis != nil {
		if err := d.Redis.Close(); err != nil {
			slog.Debug("closing redis", "err", err)
		}
		d.Redis = nil
	}
}

// ─── S3 ───────────────────────────────────────────────────────────────────────

// lazyS3 resolves AWS credentials on the first s3:// reference.
type lazyS3 struct {
	once   sync.Once
	loader *source.S3Loader
	err    error
}

func (l *lazyS3) Load(ctx context.Context, ref string) ([]byte, error) {
	l.once.Do(func() {
		l.loader, l.err = source.NewS3LoaderFromEnv(ctx)
	})
	if l.err != nil {
		return nil, fmt.Errorf("configuring s3: %w", l.err)
	}
	return l.loader.Load(ctx, ref)
}
