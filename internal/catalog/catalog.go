// Package catalog reads the YAML list of known datasets. An entry gives a
// short id to a snapshot reference and carries the default view settings
// for it (dimension to stack by, metric, grouping, value mode).
package catalog

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/derickschaefer/atlas/internal/dataset"
	"github.com/derickschaefer/atlas/internal/model"
	"github.com/derickschaefer/atlas/internal/period"
	"github.com/derickschaefer/atlas/internal/source"
)

// ErrUnknownDataset is returned by Lookup for ids not in the catalog.
var ErrUnknownDataset = errors.New("unknown dataset")

// Entry is one catalog dataset.
type Entry struct {
	ID        string   `yaml:"id" json:"id"`
	Title     string   `yaml:"title,omitempty" json:"title,omitempty"`
	Ref       string   `yaml:"ref" json:"ref"`
	Tags      []string `yaml:"tags,omitempty" json:"tags,omitempty"`
	Dimension string   `yaml:"dimension,omitempty" json:"dimension,omitempty"`
	Metric    string   `yaml:"metric,omitempty" json:"metric,omitempty"`
	Grouping  string   `yaml:"grouping,omitempty" json:"grouping,omitempty"`
	Mode      string   `yaml:"mode,omitempty" json:"mode,omitempty"`
	Top       int      `yaml:"top,omitempty" json:"top,omitempty"`
}

// Catalog is the parsed catalog file.
type Catalog struct {
	Path     string  `yaml:"-" json:"path,omitempty"`
	Datasets []Entry `yaml:"datasets" json:"datasets"`
}

// Load reads and validates the catalog at path.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalog: %w", err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	c.Path = path
	return c, nil
}

// Parse decodes catalog YAML and validates it.
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parsing catalog: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate reports duplicate ids, missing refs and unusable defaults.
func (c *Catalog) Validate() error {
	seen := make(map[string]bool, len(c.Datasets))
	for i, e := range c.Datasets {
		switch {
		case e.ID == "":
			return fmt.Errorf("dataset %d: missing id", i)
		case seen[e.ID]:
			return fmt.Errorf("dataset %q: duplicate id", e.ID)
		case e.Ref == "":
			return fmt.Errorf("dataset %q: missing ref", e.ID)
		}
		seen[e.ID] = true
		if e.Grouping != "" {
			if _, err := period.ParseGranularity(e.Grouping); err != nil {
				return fmt.Errorf("dataset %q: %w", e.ID, err)
			}
		}
		if _, err := dataset.ParseMode(e.Mode); err != nil {
			return fmt.Errorf("dataset %q: %w", e.ID, err)
		}
		if e.Top < 0 {
			return fmt.Errorf("dataset %q: top must not be negative", e.ID)
		}
	}
	return nil
}

// Lookup returns the entry with the given id.
func (c *Catalog) Lookup(id string) (Entry, error) {
	if c != nil {
		for _, e := range c.Datasets {
			if e.ID == id {
				return e, nil
			}
		}
	}
	return Entry{}, fmt.Errorf("%w %q", ErrUnknownDataset, id)
}

// Resolve maps a catalog id to its entry. Anything else (a URL, an s3://
// object, a path, or a bare snapshot name) becomes an ad-hoc entry whose
// Ref is the argument itself. A nil catalog resolves everything ad hoc.
func (c *Catalog) Resolve(idOrRef string) Entry {
	if e, err := c.Lookup(idOrRef); err == nil {
		return e
	}
	id := idOrRef
	if source.Classify(idOrRef) != source.SchemeName {
		id = ""
	}
	return Entry{ID: id, Ref: idOrRef}
}

// Filter returns entries carrying tag (case-insensitive), sorted by id.
// An empty tag returns every entry.
func (c *Catalog) Filter(tag string) []Entry {
	var out []Entry
	if c == nil {
		return out
	}
	for _, e := range c.Datasets {
		if tag == "" || hasTag(e.Tags, tag) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func hasTag(tags []string, tag string) bool {
	for _, t := range tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

// Table lays one entry out as field/value pairs.
func (e Entry) Table() model.Table {
	t := model.Table{Columns: []string{"FIELD", "VALUE"}}
	add := func(k, v string) {
		if v != "" {
			t.Rows = append(t.Rows, []string{k, v})
		}
	}
	add("id", e.ID)
	add("title", e.Title)
	add("ref", e.Ref)
	add("tags", strings.Join(e.Tags, ", "))
	add("dimension", e.Dimension)
	add("metric", e.Metric)
	add("grouping", e.Grouping)
	add("mode", e.Mode)
	if e.Top > 0 {
		add("top", strconv.Itoa(e.Top))
	}
	return t
}

// Entries is a listing of catalog datasets.
type Entries []Entry

// Table lays the listing out for the renderer.
func (es Entries) Table() model.Table {
	t := model.Table{Columns: []string{"ID", "TITLE", "DIMENSION", "TAGS", "REF"}}
	for _, e := range es {
		t.Rows = append(t.Rows, []string{e.ID, e.Title, e.Dimension, strings.Join(e.Tags, ","), e.Ref})
	}
	return t
}
