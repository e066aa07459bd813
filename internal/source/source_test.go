package source_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/derickschaefer/atlas/internal/dataset"
	"github.com/derickschaefer/atlas/internal/model"
	"github.com/derickschaefer/atlas/internal/period"
	"github.com/derickschaefer/atlas/internal/source"
)

const samplePayload = `{
  "meta": {
    "id": "sales",
    "nativeGranularity": "monthly",
    "metricFields": ["sales"],
    "dimensions": {"region": [{"key": "A", "label": "Alpha"}]}
  },
  "records": [
    {"period": "2024-01", "region": "A", "sales": 10},
    {"period": "2024-02", "region": "A", "sales": null},
    {"period": "2024-02", "region": "B", "sales": "7.5"}
  ]
}`

// ─── Decode ───────────────────────────────────────────────────────────────────

func TestDecode(t *testing.T) {
	ds, warns, err := source.Decode([]byte(samplePayload))
	require.NoError(t, err)
	assert.Empty(t, warns)
	assert.Equal(t, "sales", ds.Meta.ID)
	assert.Equal(t, period.Monthly, ds.Meta.Granularity)
	assert.Equal(t, []model.DimensionValue{{Key: "A", Label: "Alpha"}}, ds.Meta.Dimensions["region"])
	require.Len(t, ds.Records, 3)
	assert.False(t, ds.Records[1].Number("sales").Valid)
	assert.Equal(t, 7.5, ds.Records[2].Number("sales").Value)

	v := dataset.New(ds)
	assert.Equal(t, 2, v.Meta().PeriodCount, "period count filled by the view")
}

func TestDecodeLeavesPeriodChecksToView(t *testing.T) {
	payload := `{"meta": {"nativeGranularity": "month"}, "records": [
		{"period": "2024-01", "v": 1},
		{"period": "2024-01-05", "v": 2},
		{"period": "Jan 2024", "v": 3},
		42,
		{"v": 4}
	]}`
	ds, warns, err := source.Decode([]byte(payload))
	require.NoError(t, err)
	assert.Equal(t, period.Monthly, ds.Meta.Granularity, "alias normalised")
	assert.Len(t, ds.Records, 4)
	require.Len(t, warns, 1)
	assert.Contains(t, warns[0], "record 3")

	v := dataset.New(ds)
	assert.Equal(t, 1, v.Len())
	assert.Equal(t, 3, v.Skipped())
}

func TestDecodeWithoutMeta(t *testing.T) {
	ds, warns, err := source.Decode([]byte(`{"records": [{"period": "2023-Q4"}, {"period": "2024-Q1"}]}`))
	require.NoError(t, err)
	require.Len(t, warns, 1, "missing meta is reported")
	assert.Len(t, ds.Records, 2)

	v := dataset.New(ds)
	assert.Equal(t, period.Quarterly, v.Granularity())
	assert.Equal(t, period.Quarterly, v.Meta().Granularity)
}

func TestDecodeToleratesMalformedMeta(t *testing.T) {
	cases := []struct {
		name  string
		meta  string
		check func(t *testing.T, m model.Meta)
	}{
		{
			name: "date-only generatedAt",
			meta: `{"id": "x", "generatedAt": "2024-05-01"}`,
			check: func(t *testing.T, m model.Meta) {
				assert.Equal(t, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), m.GeneratedAt)
			},
		},
		{
			name: "string periodCount",
			meta: `{"id": "x", "periodCount": "12"}`,
			check: func(t *testing.T, m model.Meta) {
				assert.Equal(t, 12, m.PeriodCount)
			},
		},
		{
			name: "key to label dimension table",
			meta: `{"id": "x", "dimensions": {"region": {"B": "Beta", "A": "Alpha"}}}`,
			check: func(t *testing.T, m model.Meta) {
				assert.Equal(t, []model.DimensionValue{{Key: "A", Label: "Alpha"}, {Key: "B", Label: "Beta"}}, m.Dimensions["region"])
			},
		},
		{
			name: "bare key list dimension table",
			meta: `{"id": "x", "dimensions": {"region": ["N", "S"]}}`,
			check: func(t *testing.T, m model.Meta) {
				assert.Equal(t, []model.DimensionValue{{Key: "N"}, {Key: "S"}}, m.Dimensions["region"])
			},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			payload := `{"meta": ` + tc.meta + `, "records": [{"period": "2024-01", "v": 1}]}`
			ds, warns, err := source.Decode([]byte(payload))
			require.NoError(t, err)
			assert.Empty(t, warns)
			assert.Equal(t, "x", ds.Meta.ID)
			tc.check(t, ds.Meta)
		})
	}
}

func TestDecodeDropsUnparseableMetaFields(t *testing.T) {
	payload := `{"meta": {
		"id": "x",
		"nativeGranularity": "weekly",
		"metricFields": ["sales"],
		"generatedAt": "last tuesday",
		"periodCount": "twelve",
		"dimensions": {"region": 7, "sector": [{"key": "h", "label": "Health"}]}
	}, "records": [{"period": "2024-01", "sales": 1}]}`
	ds, warns, err := source.Decode([]byte(payload))
	require.NoError(t, err)
	assert.Len(t, warns, 4)
	assert.Equal(t, "x", ds.Meta.ID)
	assert.Equal(t, []string{"sales"}, ds.Meta.Metrics)
	assert.Empty(t, ds.Meta.Granularity)
	assert.True(t, ds.Meta.GeneratedAt.IsZero())
	assert.Zero(t, ds.Meta.PeriodCount)
	assert.NotContains(t, ds.Meta.Dimensions, "region")
	assert.Len(t, ds.Meta.Dimensions["sector"], 1)

	v := dataset.New(ds)
	assert.Equal(t, period.Monthly, v.Granularity(), "unknown granularity falls back to inference")
	assert.Equal(t, 1, v.Len())
}

func TestDecodeNonObjectMetaIsIgnored(t *testing.T) {
	ds, warns, err := source.Decode([]byte(`{"meta": 3, "records": [{"period": "2024"}]}`))
	require.NoError(t, err)
	require.Len(t, warns, 1)
	assert.Equal(t, model.Meta{}, ds.Meta)
	assert.Len(t, ds.Records, 1)
}

func TestDecodeCapsWarnings(t *testing.T) {
	var b strings.Builder
	b.WriteString(`{"meta": {"nativeGranularity": "yearly"}, "records": [`)
	for i := 0; i < 30; i++ {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString(`"bad"`)
	}
	b.WriteString("]}")
	_, warns, err := source.Decode([]byte(b.String()))
	require.NoError(t, err)
	assert.Len(t, warns, 21)
	assert.Contains(t, warns[20], "10 more")
}

func TestDecodeAcceptsPipeFormat(t *testing.T) {
	payload := "{\"period\":\"2024-01\",\"region\":\"A\",\"sales\":3}\n" +
		"{\"period\":\"2024-02\",\"region\":\"A\",\"sales\":null}\n"
	ds, warns, err := source.Decode([]byte(payload))
	require.NoError(t, err)
	require.Len(t, ds.Records, 2)
	assert.Equal(t, 3.0, ds.Records[0].Number("sales").Value)
	require.Len(t, warns, 1, "pipe input carries no meta")

	v := dataset.New(ds)
	assert.Equal(t, period.Monthly, v.Granularity())
	assert.Equal(t, 2, v.Meta().PeriodCount)
}

func TestDecodeErrors(t *testing.T) {
	for _, payload := range []string{"", "not json", `{"meta": {}}`} {
		_, _, err := source.Decode([]byte(payload))
		assert.Error(t, err, payload)
	}
}

// ─── Classify / Router ────────────────────────────────────────────────────────

func TestClassify(t *testing.T) {
	cases := map[string]source.Scheme{
		"https://example.com/a.json": source.SchemeHTTP,
		"http://example.com/a":       source.SchemeHTTP,
		"s3://bucket/key.json":       source.SchemeS3,
		"./data/sales.json":          source.SchemeFile,
		"sales.json":                 source.SchemeFile,
		"file:///tmp/x":              source.SchemeFile,
		"-":                          source.SchemeFile,
		"unemployment":               source.SchemeName,
	}
	for ref, want := range cases {
		assert.Equal(t, want, source.Classify(ref), ref)
	}
}

func TestResolveName(t *testing.T) {
	got, err := source.ResolveName("https://cdn.example.org/snapshots", "sales")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.org/snapshots/sales.json", got)

	_, err = source.ResolveName("", "sales")
	assert.Error(t, err)
}

type recordingLoader struct {
	mu   sync.Mutex
	refs []string
	data []byte
	err  error
}

func (l *recordingLoader) Load(_ context.Context, ref string) ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.refs = append(l.refs, ref)
	return l.data, l.err
}

func (l *recordingLoader) calls() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.refs)
}

func TestRouterDispatch(t *testing.T) {
	httpL := &recordingLoader{data: []byte("h")}
	fileL := &recordingLoader{data: []byte("f")}
	r := &source.Router{BaseURL: "https://example.org/", HTTP: httpL, File: fileL}

	got, err := r.Load(context.Background(), "sales")
	require.NoError(t, err)
	assert.Equal(t, "h", string(got))
	assert.Equal(t, []string{"https://example.org/sales.json"}, httpL.refs)

	got, err = r.Load(context.Background(), "local.json")
	require.NoError(t, err)
	assert.Equal(t, "f", string(got))

	_, err = r.Load(context.Background(), "s3://b/k")
	assert.ErrorContains(t, err, "no loader configured")

	_, err = r.Load(context.Background(), "  ")
	assert.Error(t, err)
}

// ─── HTTP ─────────────────────────────────────────────────────────────────────

func TestHTTPLoaderRetriesTransientErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = io.WriteString(w, samplePayload)
	}))
	defer srv.Close()

	l := source.NewHTTPLoader(5*time.Second, 100, "secret").WithBackoff(time.Millisecond)
	body, err := l.Load(context.Background(), srv.URL+"/sales.json")
	require.NoError(t, err)
	assert.Equal(t, samplePayload, string(body))
	assert.Equal(t, int32(3), hits.Load())
}

func TestHTTPLoaderGivesUp(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	l := source.NewHTTPLoader(5*time.Second, 100, "").WithBackoff(time.Millisecond)
	_, err := l.Load(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 4 attempts")
	assert.Equal(t, int32(4), hits.Load())
}

func TestHTTPLoaderNotFound(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	l := source.NewHTTPLoader(5*time.Second, 100, "")
	_, err := l.Load(context.Background(), srv.URL+"/missing.json")
	assert.ErrorIs(t, err, source.ErrNotFound)
}

func TestHTTPLoaderClientErrorNotRetried(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer srv.Close()

	l := source.NewHTTPLoader(5*time.Second, 100, "")
	_, err := l.Load(context.Background(), srv.URL)
	assert.ErrorContains(t, err, "HTTP 403")
	assert.Equal(t, int32(1), hits.Load())
}

func TestHTTPLoaderHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	l := source.NewHTTPLoader(time.Second, 100, "")
	_, err := l.Load(ctx, "http://127.0.0.1:1/")
	assert.ErrorIs(t, err, context.Canceled)
}

// ─── File ─────────────────────────────────────────────────────────────────────

func TestFileLoader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sales.json")
	require.NoError(t, os.WriteFile(path, []byte(samplePayload), 0600))

	l := source.FileLoader{Stdin: strings.NewReader("from stdin")}
	got, err := l.Load(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, samplePayload, string(got))

	got, err = l.Load(context.Background(), "file://"+path)
	require.NoError(t, err)
	assert.Equal(t, samplePayload, string(got))

	got, err = l.Load(context.Background(), "-")
	require.NoError(t, err)
	assert.Equal(t, "from stdin", string(got))

	_, err = l.Load(context.Background(), filepath.Join(t.TempDir(), "nope.json"))
	assert.ErrorIs(t, err, source.ErrNotFound)
}

// ─── S3 ───────────────────────────────────────────────────────────────────────

type fakeS3 struct {
	objects map[string]string
}

func (f fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	body, ok := f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(body))}, nil
}

func TestS3Loader(t *testing.T) {
	l := source.NewS3Loader(fakeS3{objects: map[string]string{"snapshots/v1/sales.json": samplePayload}})

	got, err := l.Load(context.Background(), "s3://snapshots/v1/sales.json")
	require.NoError(t, err)
	assert.Equal(t, samplePayload, string(got))

	_, err = l.Load(context.Background(), "s3://snapshots/v1/missing.json")
	assert.ErrorIs(t, err, source.ErrNotFound)

	_, err = l.Load(context.Background(), "s3://only-bucket")
	assert.Error(t, err)
}

func TestParseS3Ref(t *testing.T) {
	b, k, err := source.ParseS3Ref("s3://bucket/a/b.json")
	require.NoError(t, err)
	assert.Equal(t, "bucket", b)
	assert.Equal(t, "a/b.json", k)
}

// ─── Fetcher ──────────────────────────────────────────────────────────────────

type memCache struct {
	mu      sync.Mutex
	entries map[string]source.Entry
	fail    bool
}

func newMemCache() *memCache { return &memCache{entries: map[string]source.Entry{}} }

func (m *memCache) Get(_ context.Context, ref string) (source.Entry, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return source.Entry{}, false, errors.New("cache down")
	}
	e, ok := m.entries[ref]
	return e, ok, nil
}

func (m *memCache) Put(_ context.Context, e source.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("cache down")
	}
	m.entries[e.Ref] = e
	return nil
}

func TestFetcherCachesPayload(t *testing.T) {
	loader := &recordingLoader{data: []byte(samplePayload)}
	cache := newMemCache()
	f := source.NewFetcher(loader, cache)

	first, err := f.Fetch(context.Background(), "sales.json")
	require.NoError(t, err)
	assert.False(t, first.Stats.CacheHit)
	assert.Len(t, first.Dataset.Records, 3)

	second, err := f.Fetch(context.Background(), "sales.json")
	require.NoError(t, err)
	assert.True(t, second.Stats.CacheHit)
	assert.Equal(t, 1, loader.calls())
	assert.Equal(t, first.Stats.FetchedAt, second.Stats.FetchedAt)
}

func TestFetcherRefreshAndNoCache(t *testing.T) {
	loader := &recordingLoader{data: []byte(samplePayload)}
	cache := newMemCache()
	f := source.NewFetcher(loader, cache)
	_, err := f.Fetch(context.Background(), "sales.json")
	require.NoError(t, err)

	f.Refresh = true
	res, err := f.Fetch(context.Background(), "sales.json")
	require.NoError(t, err)
	assert.False(t, res.Stats.CacheHit)
	assert.Equal(t, 2, loader.calls())

	f.Refresh, f.NoCache = false, true
	delete(cache.entries, "other.json")
	_, err = f.Fetch(context.Background(), "other.json")
	require.NoError(t, err)
	_, ok := cache.entries["other.json"]
	assert.False(t, ok, "NoCache must not write")
}

func TestFetcherSurvivesBrokenCache(t *testing.T) {
	loader := &recordingLoader{data: []byte(samplePayload)}
	cache := newMemCache()
	cache.fail = true
	res, err := source.NewFetcher(loader, cache).Fetch(context.Background(), "sales.json")
	require.NoError(t, err)
	assert.Len(t, res.Dataset.Records, 3)
	assert.Contains(t, strings.Join(res.Warnings, "\n"), "cache write failed")
}

func TestFetcherPropagatesLoadErrors(t *testing.T) {
	loader := &recordingLoader{err: source.ErrNotFound}
	_, err := source.NewFetcher(loader, nil).Fetch(context.Background(), "missing")
	assert.ErrorIs(t, err, source.ErrNotFound)
}

func TestFetcherNeverCachesStdin(t *testing.T) {
	loader := &recordingLoader{data: []byte(samplePayload)}
	cache := newMemCache()
	_, err := source.NewFetcher(loader, cache).Fetch(context.Background(), "-")
	require.NoError(t, err)
	assert.Empty(t, cache.entries)
}

func TestFetcherUsesResolvedKey(t *testing.T) {
	inner := &recordingLoader{data: []byte(samplePayload)}
	router := &source.Router{BaseURL: "https://example.org/data/", HTTP: inner}
	cache := newMemCache()
	f := source.NewFetcher(router, cache)

	_, err := f.Fetch(context.Background(), "sales")
	require.NoError(t, err)
	_, ok := cache.entries["https://example.org/data/sales.json"]
	assert.True(t, ok)
}

func TestChainBackfillsEarlierLayers(t *testing.T) {
	fast, slow := newMemCache(), newMemCache()
	e := source.Entry{Ref: "x", FetchedAt: time.Now(), Payload: []byte("p")}
	require.NoError(t, slow.Put(context.Background(), e))

	chain := source.Chain{fast, slow}
	got, ok, err := chain.Get(context.Background(), "x")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "p", string(got.Payload))
	_, ok = fast.entries["x"]
	assert.True(t, ok, "hit in slow layer copied to fast layer")

	fast.fail = true
	_, ok, err = chain.Get(context.Background(), "x")
	require.NoError(t, err)
	assert.True(t, ok, "failing layer is skipped")
}
