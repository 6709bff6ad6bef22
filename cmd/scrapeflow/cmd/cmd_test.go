package cmd

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"scrapeflow/lib/document"
	"scrapeflow/lib/engine"
	"scrapeflow/lib/har"
	"scrapeflow/lib/restyutil"
	"scrapeflow/lib/scraper"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestConfigOptions(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scrapeflow.json5")
	err := os.WriteFile(path, []byte(`{
		// shared by every request
		headers: {"x-api-key": "K-123"},
		header_sets: {json: {accept: "application/json"}},
		timeout: "5s",
		logs: {response: true},
	}`), 0600)
	require.NoError(t, err)
	err = os.WriteFile(filepath.Join(dir, "scrapeflow.local.json5"), []byte(`{cookie: "sid=1"}`), 0600)
	require.NoError(t, err)

	cfg, err := loadConfig(path)
	require.NoError(t, err)

	opts, err := cfg.Options("")
	require.NoError(t, err)
	require.Equal(t, 5*time.Second, opts.Timeout)
	require.Equal(t, "sid=1", opts.Cookie)
	require.True(t, opts.Logs.Response)
	require.Nil(t, opts.Record)
	if diff := cmp.Diff(map[string]string{"x-api-key": "K-123"}, opts.Headers); diff != "" {
		t.Fatal(diff)
	}
	if diff := cmp.Diff(map[string]map[string]string{"json": {"accept": "application/json"}}, opts.HeaderSets); diff != "" {
		t.Fatal(diff)
	}
}

func TestConfigMissing(t *testing.T) {
	cfg, err := loadConfig(filepath.Join(t.TempDir(), "scrapeflow.json5"))
	require.NoError(t, err)
	require.Empty(t, cfg.Headers)
}

func TestConfigInvalidTimeout(t *testing.T) {
	_, err := Config{Timeout: "soon"}.Options("")
	require.Error(t, err)
}

func TestConfigRecord(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{
		Record:    filepath.Join(dir, "config.har"),
		RecordDir: filepath.Join(dir, "messages"),
	}

	opts, err := cfg.Options(filepath.Join(dir, "flag.har"))
	require.NoError(t, err)
	record, ok := opts.Record.(outputs)
	require.True(t, ok)
	require.Len(t, record, 2)
	require.IsType(t, &har.Recorder{}, record[0])
	require.IsType(t, restyutil.FilesystemOutput{}, record[1])

	record.Write("1", har.Entry{Request: har.Request{Method: "GET", URL: "https://example.com/"}})
	require.NoError(t, record.Flush())

	archive, err := har.LoadFile(filepath.Join(dir, "flag.har"))
	require.NoError(t, err)
	require.Len(t, archive.Log.Entries, 1)
	_, err = os.Stat(filepath.Join(dir, "config.har"))
	require.ErrorIs(t, err, os.ErrNotExist)
	_, err = os.Stat(filepath.Join(dir, "messages", "1"))
	require.NoError(t, err)
}

func TestParseFields(t *testing.T) {
	fields, err := parseFields([]string{"title=h2.title", "price=//span[@class='price']"})
	require.NoError(t, err)
	require.Len(t, fields, 2)
	require.Equal(t, "price", fields[1].Name)
	require.Equal(t, "//span[@class='price']", fields[1].Query)

	_, err = parseFields([]string{"title"})
	require.Error(t, err)
}

const page = `<html><body>
<div class="product"><h2 class="title">Lamp</h2><span class="price">12</span></div>
<div class="product"><h2 class="title">Desk</h2><span class="price">80</span></div>
<a href="/products?page=2">Next</a>
</body></html>`

func TestSummarize(t *testing.T) {
	node, err := document.ParseSoup(strings.NewReader(page))
	require.NoError(t, err)

	extraction := Extraction{
		Select: "h2.title",
		Links:  "a",
		Item: document.Item{
			Root: "div.product",
			Fields: []document.Field{
				{Name: "title", Query: "h2", First: true},
				{Name: "price", Query: "span.price", First: true},
			},
		},
	}
	data, err := extraction.Summarize(context.Background(), "https://shop.example.com/products", node)
	require.NoError(t, err)

	expected := map[string]any{
		"url":   "https://shop.example.com/products",
		"texts": []string{"Lamp", "Desk"},
		"links": []map[string]any{
			{"name": "Next", "href": "https://shop.example.com/products?page=2"},
		},
		"items": []map[string]any{
			{"title": "Lamp", "price": "12"},
			{"title": "Desk", "price": "80"},
		},
	}
	if diff := cmp.Diff(expected, data); diff != "" {
		t.Fatal(diff)
	}
}

func TestSummarizeJSON(t *testing.T) {
	data, err := Extraction{}.Summarize(context.Background(), "https://api.example.com/", map[string]any{"a": 1.0})
	require.NoError(t, err)
	require.Equal(t, map[string]any{"a": 1.0}, data["data"])
}

func TestFlatten(t *testing.T) {
	require.Equal(t, []any{"one"}, flatten("one", 1))
	require.Equal(t, []any{1, 2, 3}, flatten([]any{1, 2, 3}, 3))

	// a single json array body stays one result
	decoded := []any{1.0, 2.0, 3.0}
	require.Equal(t, []any{decoded}, flatten(decoded, 1))
}

func TestFetchSingleJSONArray(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("content-type", "application/json")
		w.Write([]byte(`[1,2,3]`))
	}))
	defer srv.Close()

	e, err := engine.New(engine.Options{})
	require.NoError(t, err)
	defer e.Close()

	s := scraper.NewRoot(e).RegisterScraper(
		"fetch",
		scraper.Generated(urlRequests),
		scraper.WithPreParse(scraper.KindJSON),
	)
	_, err = s.Scrape(context.Background(), srv.URL)
	require.NoError(t, err)

	results := flatten(s.Get(), 1)
	require.Len(t, results, 1)

	data, err := Extraction{}.Summarize(context.Background(), srv.URL, results[0])
	require.NoError(t, err)
	require.Equal(t, []any{1.0, 2.0, 3.0}, data["data"])
}
