// Package store provides a thin bbolt wrapper for atlas's local data store.
//
// The store keeps raw snapshot payloads so repeated views of the same
// dataset do not hit the network, and saved view presets. Derived views are
// never persisted; they are recomputed from the payload on every run.
//
// Buckets:
//
//	datasets  raw snapshot payloads keyed by resolved reference
//	presets   saved view argument lists
//	_meta     internal: schema version, created_at
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"github.com/derickschaefer/atlas/internal/model"
	"github.com/derickschaefer/atlas/internal/source"
	"github.com/derickschaefer/atlas/internal/util"
)

// Current schema version. Bump when bucket layout or key format changes.
const schemaVersion = 2

// Bucket name constants.
var (
	bucketDatasets = []byte("datasets")
	bucketPresets  = []byte("presets")
	bucketInternal = []byte("_meta")
)

// legacyBuckets are dropped by the v2 migration.
var legacyBuckets = [][]byte{[]byte("obs"), []byte("series_meta"), []byte("snapshots")}

// AllBuckets lists every user-facing bucket for stats and clear operations.
var AllBuckets = []string{"datasets", "presets"}

// ErrUnknownBucket is returned by ClearBucket for names not in AllBuckets.
var ErrUnknownBucket = errors.New("unknown bucket")

// Store wraps a bbolt database.
type Store struct {
	db *bolt.DB
}

var _ source.Cache = (*Store)(nil)

// Open opens (or creates) the bbolt database at path.
// Parent directories are created automatically.
// Runs schema migrations on every open.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("creating db directory: %w", err)
	}
	db, err := openDB(path)
	if err != nil {
		return nil, err
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migration: %w", err)
	}
	return s, nil
}

func openDB(path string) (*bolt.DB, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening db %s: %w", path, err)
	}
	return db, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the filesystem path of the open database.
func (s *Store) Path() string {
	return s.db.Path()
}

// ─── Migrations ───────────────────────────────────────────────────────────────

// migrate ensures all buckets exist and schema is current.
func (s *Store) migrate() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketDatasets, bucketPresets, bucketInternal} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("creating bucket %s: %w", name, err)
			}
		}

		meta := tx.Bucket(bucketInternal)
		if meta.Get([]byte("created_at")) == nil {
			if err := meta.Put([]byte("created_at"), []byte(time.Now().UTC().Format(time.RFC3339))); err != nil {
				return err
			}
		}
		current, _ := strconv.Atoi(string(meta.Get([]byte("schema_version"))))
		if current < 2 {
			for _, name := range legacyBuckets {
				if tx.Bucket(name) == nil {
					continue
				}
				if err := tx.DeleteBucket(name); err != nil {
					return fmt.Errorf("dropping legacy bucket %s: %w", name, err)
				}
			}
		}
		if current != schemaVersion {
			return meta.Put([]byte("schema_version"), []byte(strconv.Itoa(schemaVersion)))
		}
		return nil
	})
}

// SchemaVersion returns the schema version recorded in the database.
func (s *Store) SchemaVersion() (int, error) {
	var v int
	err := s.db.View(func(tx *bolt.Tx) error {
		v, _ = strconv.Atoi(string(tx.Bucket(bucketInternal).Get([]byte("schema_version"))))
		return nil
	})
	return v, err
}

// ─── Datasets ─────────────────────────────────────────────────────────────────

// storedDataset is the on-disk envelope for one cached payload.
type storedDataset struct {
	Ref       string    `json:"ref"`
	FetchedAt time.Time `json:"fetched_at"`
	Payload   []byte    `json:"payload"`
}

// Put stores a snapshot payload, replacing any previous entry for the ref.
func (s *Store) Put(_ context.Context, e source.Entry) error {
	if e.Ref == "" {
		return errors.New("storing dataset: empty ref")
	}
	b, err := json.Marshal(storedDataset(e))
	if err != nil {
		return fmt.Errorf("encoding dataset: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketDatasets).Put([]byte(e.Ref), b)
	})
}

// Get retrieves a snapshot payload by ref.
// Returns (entry, true, nil) if found, (zero, false, nil) if not found.
func (s *Store) Get(_ context.Context, ref string) (source.Entry, bool, error) {
	var env storedDataset
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketDatasets).Get([]byte(ref))
		if v == nil {
			return nil
		}
		found = true
		return json.Unmarshal(v, &env)
	})
	if err != nil {
		return source.Entry{}, false, fmt.Errorf("reading dataset %s: %w", ref, err)
	}
	return source.Entry(env), found, nil
}

// DatasetInfo summarises one cached payload without decoding its records.
type DatasetInfo struct {
	Ref       string    `json:"ref"`
	ID        string    `json:"id,omitempty"`
	Title     string    `json:"title,omitempty"`
	FetchedAt time.Time `json:"fetched_at"`
	Bytes     int       `json:"bytes"`
}

// ListDatasets returns every cached payload, sorted by ref.
func (s *Store) ListDatasets() ([]DatasetInfo, error) {
	var out []DatasetInfo
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketDatasets).ForEach(func(k, v []byte) error {
			var env storedDataset
			if err := json.Unmarshal(v, &env); err != nil {
				return fmt.Errorf("decoding %s: %w", k, err)
			}
			info := DatasetInfo{Ref: string(k), FetchedAt: env.FetchedAt, Bytes: len(env.Payload)}
			var head struct {
				Meta struct {
					ID    string `json:"id"`
					Title string `json:"title"`
				} `json:"meta"`
			}
			if json.Unmarshal(env.Payload, &head) == nil {
				info.ID, info.Title = head.Meta.ID, head.Meta.Title
			}
			out = append(out, info)
			return nil
		})
	})
	return out, err
}

// DeleteDataset removes one cached payload.
func (s *Store) DeleteDataset(ref string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketDatasets).Delete([]byte(ref))
	})
}

// ─── Presets ──────────────────────────────────────────────────────────────────

// Preset is a saved view: a command name plus its arguments and flags,
// replayed verbatim by `atlas preset run`.
type Preset struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Args      []string  `json:"args"`
	CreatedAt time.Time `json:"created_at"`
}

// CommandLine renders the preset as a shell-style command.
func (p Preset) CommandLine() string {
	return "atlas " + strings.Join(p.Args, " ")
}

// NewPreset builds a preset with a fresh ID.
func NewPreset(name string, args []string) Preset {
	return Preset{
		ID:        uuid.NewString(),
		Name:      name,
		Args:      append([]string(nil), args...),
		CreatedAt: time.Now().UTC(),
	}
}

// PutPreset saves a preset. The key is preset:<ID>.
func (s *Store) PutPreset(p Preset) error {
	if p.ID == "" {
		return errors.New("saving preset: empty ID")
	}
	b, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encoding preset: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketPresets).Put([]byte("preset:"+p.ID), b)
	})
}

// ListPresets returns all presets in creation order.
func (s *Store) ListPresets() ([]Preset, error) {
	var out []Preset
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketPresets).ForEach(func(k, v []byte) error {
			var p Preset
			if err := json.Unmarshal(v, &p); err != nil {
				return err
			}
			out = append(out, p)
			return nil
		})
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, err
}

// FindPreset looks a preset up by exact name, full ID, or a unique ID
// prefix. Returns (zero, false, nil) when nothing matches.
func (s *Store) FindPreset(ref string) (Preset, bool, error) {
	all, err := s.ListPresets()
	if err != nil {
		return Preset{}, false, err
	}
	var byPrefix []Preset
	for _, p := range all {
		if p.ID == ref || p.Name == ref {
			return p, true, nil
		}
		if ref != "" && strings.HasPrefix(p.ID, ref) {
			byPrefix = append(byPrefix, p)
		}
	}
	switch len(byPrefix) {
	case 0:
		return Preset{}, false, nil
	case 1:
		return byPrefix[0], true, nil
	}
	return Preset{}, false, fmt.Errorf("preset prefix %q is ambiguous (%d matches)", ref, len(byPrefix))
}

// DeletePreset removes a preset by ID.
func (s *Store) DeletePreset(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketPresets).Delete([]byte("preset:" + id))
	})
}

// ─── Stats & Maintenance ──────────────────────────────────────────────────────

// BucketStats holds row count and byte size for a single bucket.
type BucketStats struct {
	Name  string
	Count int
	Bytes int64
}

// Stats returns row counts and approximate sizes for all user-facing
// buckets, in AllBuckets order.
func (s *Store) Stats() ([]BucketStats, error) {
	var stats []BucketStats
	err := s.db.View(func(tx *bolt.Tx) error {
		for _, name := range AllBuckets {
			b := tx.Bucket([]byte(name))
			if b == nil {
				continue
			}
			st := BucketStats{Name: name}
			if err := b.ForEach(func(k, v []byte) error {
				st.Count++
				st.Bytes += int64(len(k) + len(v))
				return nil
			}); err != nil {
				return err
			}
			stats = append(stats, st)
		}
		return nil
	})
	return stats, err
}

// ClearBucket deletes all entries in the named bucket.
func (s *Store) ClearBucket(name string) error {
	known := false
	for _, b := range AllBuckets {
		known = known || b == name
	}
	if !known {
		return fmt.Errorf("%w %q (use %s)", ErrUnknownBucket, name, strings.Join(AllBuckets, ", "))
	}
	bname := []byte(name)
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(bname); err != nil {
			return fmt.Errorf("clearing bucket %s: %w", name, err)
		}
		_, err := tx.CreateBucket(bname)
		return err
	})
}

// ClearAll deletes all entries from every user-facing bucket.
func (s *Store) ClearAll() error {
	for _, name := range AllBuckets {
		if err := s.ClearBucket(name); err != nil {
			return err
		}
	}
	return nil
}

// Compact rewrites the database into a fresh file and swaps it in,
// returning the file size before and after. The Store stays usable.
func (s *Store) Compact() (before, after int64, err error) {
	path := s.db.Path()
	if fi, err := os.Stat(path); err == nil {
		before = fi.Size()
	}

	tmp := path + ".compact"
	_ = os.Remove(tmp)
	dst, err := openDB(tmp)
	if err != nil {
		return 0, 0, err
	}
	if err := bolt.Compact(dst, s.db, 1<<20); err != nil {
		dst.Close()
		os.Remove(tmp)
		return 0, 0, fmt.Errorf("compacting: %w", err)
	}
	if err := dst.Close(); err != nil {
		return 0, 0, err
	}
	if err := s.db.Close(); err != nil {
		return 0, 0, err
	}
	if err := os.Rename(tmp, path); err != nil {
		return 0, 0, fmt.Errorf("replacing database: %w", err)
	}
	db, err := openDB(path)
	if err != nil {
		return 0, 0, err
	}
	s.db = db

	if fi, err := os.Stat(path); err == nil {
		after = fi.Size()
	}
	return before, after, nil
}

// ─── Listings ─────────────────────────────────────────────────────────────────

// DatasetList is a listing of cached payloads.
type DatasetList []DatasetInfo

// Table lays the listing out for the renderer.
func (l DatasetList) Table() model.Table {
	t := model.Table{Columns: []string{"REF", "ID", "TITLE", "SIZE", "FETCHED"}, Right: []bool{false, false, false, true, false}}
	for _, d := range l {
		t.Rows = append(t.Rows, []string{d.Ref, d.ID, d.Title, util.HumanBytes(int64(d.Bytes)), d.FetchedAt.Format("2006-01-02 15:04")})
	}
	return t
}

// PresetList is a listing of saved presets.
type PresetList []Preset

// Table lays the listing out for the renderer.
func (l PresetList) Table() model.Table {
	t := model.Table{Columns: []string{"ID", "NAME", "COMMAND", "CREATED"}}
	for _, p := range l {
		line := p.CommandLine()
		if len(line) > 60 {
			line = line[:57] + "..."
		}
		t.Rows = append(t.Rows, []string{ShortID(p.ID), p.Name, line, p.CreatedAt.Format("2006-01-02 15:04")})
	}
	return t
}

// Table lays one preset out as field/value pairs.
func (p Preset) Table() model.Table {
	return model.Table{
		Columns: []string{"FIELD", "VALUE"},
		Rows: [][]string{
			{"id", p.ID},
			{"name", p.Name},
			{"command", p.CommandLine()},
			{"created", p.CreatedAt.Format(time.RFC3339)},
		},
	}
}

// ShortID is the 8-character prefix FindPreset accepts.
func ShortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
