// Package source fetches published dataset snapshots. A snapshot is a
// single JSON document {meta, records} addressed by a reference: an
// http(s) URL, an s3:// object, a local path, "-" for stdin, or a bare
// name resolved against the configured base URL.
//
// Loading is the only blocking boundary in atlas. Every loader takes a
// context and returns raw bytes; Decode turns them into a model.Dataset.
package source

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrNotFound is returned when a reference points at nothing.
var ErrNotFound = errors.New("dataset not found")

// Loader fetches the raw payload behind a reference.
type Loader interface {
	Load(ctx context.Context, ref string) ([]byte, error)
}

// Scheme classifies a reference.
type Scheme string

const (
	SchemeHTTP Scheme = "http"
	SchemeS3   Scheme = "s3"
	SchemeFile Scheme = "file"
	SchemeName Scheme = "name"
)

// Classify returns the scheme of ref. Bare names (no scheme, no path
// separator, no .json suffix) resolve against the base URL.
func Classify(ref string) Scheme {
	switch {
	case strings.HasPrefix(ref, "http://"), strings.HasPrefix(ref, "https://"):
		return SchemeHTTP
	case strings.HasPrefix(ref, "s3://"):
		return SchemeS3
	case strings.HasPrefix(ref, "file://"), ref == "-",
		strings.ContainsAny(ref, `/\`), strings.HasSuffix(ref, ".json"):
		return SchemeFile
	}
	return SchemeName
}

// ResolveName joins a bare dataset name onto base, appending ".json".
func ResolveName(base, name string) (string, error) {
	if base == "" {
		return "", fmt.Errorf("cannot resolve %q: no base URL configured", name)
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parsing base URL: %w", err)
	}
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	rel, err := url.Parse(url.PathEscape(name) + ".json")
	if err != nil {
		return "", err
	}
	return u.ResolveReference(rel).String(), nil
}

// ─── Router ───────────────────────────────────────────────────────────────────

// Router dispatches a reference to the loader for its scheme. A nil loader
// for a scheme makes references of that scheme fail with a clear error.
type Router struct {
	BaseURL string
	HTTP    Loader
	S3      Loader
	File    Loader
}

// Load implements Loader.
func (r *Router) Load(ctx context.Context, ref string) ([]byte, error) {
	target, scheme, err := r.Resolve(ref)
	if err != nil {
		return nil, err
	}
	var l Loader
	switch scheme {
	case SchemeHTTP:
		l = r.HTTP
	case SchemeS3:
		l = r.S3
	case SchemeFile:
		l = r.File
	}
	if l == nil {
		return nil, fmt.Errorf("no loader configured for %s references (%s)", scheme, ref)
	}
	return l.Load(ctx, target)
}

// Resolve expands bare names against BaseURL and reports the scheme of the
// final reference.
func (r *Router) Resolve(ref string) (string, Scheme, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", "", errors.New("empty dataset reference")
	}
	scheme := Classify(ref)
	if scheme == SchemeName {
		u, err := ResolveName(r.BaseURL, ref)
		if err != nil {
			return "", "", err
		}
		return u, SchemeHTTP, nil
	}
	return ref, scheme, nil
}
