package alkoteka

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alkoscraper/internal/downloader"
	"alkoscraper/pkg/crawl"
	"alkoscraper/pkg/fetch"
	"alkoscraper/pkg/logger"
)

func writeInput(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "input_urls.txt")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func responseFor(t *testing.T, req *fetch.Request, status int, fixture string) *fetch.Response {
	t.Helper()
	body := []byte(fixture)
	if strings.HasPrefix(fixture, "testdata/") {
		var err error
		body, err = os.ReadFile(fixture)
		require.NoError(t, err)
	}
	return &fetch.Response{Status: status, Body: body, URL: req.URL, Request: req}
}

func TestResolveCity(t *testing.T) {
	log := logger.NewTestLogger()

	id, name := ResolveCity("Москва", log)
	assert.Equal(t, "396df2b5-7b2b-11eb-80cd-00155d039009", id.String())
	assert.Equal(t, "Москва", name)
	assert.Empty(t, log.GetMessages())

	id, name = ResolveCity("Владивосток", log)
	assert.Equal(t, "4a70f9e0-46ae-11e7-83ff-00155d026416", id.String())
	assert.Equal(t, DefaultCity, name)
	assert.True(t, log.HasMessageContaining("WARN", "unknown city"))

	assert.Equal(t, []string{"Краснодар", "Москва", "Ростов-на-Дону", "Сочи"}, Cities())
}

func TestStartRequests(t *testing.T) {
	input := writeInput(t, "\ufeffhttps://alkoteka.com/catalog/vino\n\n  https://alkoteka.com/catalog/krepkiy-alkogol/  \n")
	s := New(Options{InputFile: input, City: "Сочи"}, logger.NewNopLogger())

	reqs := s.StartRequests()
	require.Len(t, reqs, 2)

	first := reqs[0]
	assert.True(t, first.DontFilter)
	assert.Equal(t, "alkoteka.com", first.URL.Host)
	assert.Equal(t, "/web-api/v1/product", first.URL.Path)
	q := first.URL.Query()
	assert.Equal(t, "985b3eea-46b4-11e7-83ff-00155d026416", q.Get("city_uuid"))
	assert.Equal(t, "1", q.Get("page"))
	assert.Equal(t, "10000", q.Get("per_page"))
	assert.Equal(t, "vino", q.Get("root_category_slug"))
	assert.Equal(t, "vino", first.MetaString(MetaCategoryName))
	assert.Equal(t, "985b3eea-46b4-11e7-83ff-00155d026416", first.MetaString(MetaCityID))
	assert.Contains(t, first.Header.Get("User-Agent"), "Chrome/91")

	assert.Equal(t, "krepkiy-alkogol", reqs[1].URL.Query().Get("root_category_slug"))
}

func TestStartRequestsMissingFile(t *testing.T) {
	log := logger.NewTestLogger()
	s := New(Options{InputFile: filepath.Join(t.TempDir(), "nope.txt")}, log)

	assert.Empty(t, s.StartRequests())
	assert.True(t, log.HasMessage("input file not found"))
}

func TestStartRequestsEmptyFile(t *testing.T) {
	log := logger.NewTestLogger()
	s := New(Options{InputFile: writeInput(t, "\n  \n")}, log)

	assert.Empty(t, s.StartRequests())
	assert.True(t, log.HasMessageContaining("ERROR", "no categories"))
}

func TestParseCategory(t *testing.T) {
	s := New(Options{City: "Москва"}, logger.NewNopLogger())
	s.now = func() time.Time { return time.Unix(1700000000, 0) }

	listing, err := fetch.NewRequest(http.MethodGet, "https://alkoteka.com/web-api/v1/product?root_category_slug=vino", s.ParseCategory)
	require.NoError(t, err)
	listing.Meta[MetaCityID] = "396df2b5-7b2b-11eb-80cd-00155d039009"

	res, err := s.ParseCategory(context.Background(), responseFor(t, listing, 200, "testdata/category.json"))
	require.NoError(t, err)
	require.Len(t, res.Requests, 2)
	assert.Empty(t, res.Items)

	item := res.Requests[0]
	assert.Equal(t, "https://alkoteka.com/web-api/v1/product/vino-shato-taman-krasnoe-sukhoe_12345?city_uuid=396df2b5-7b2b-11eb-80cd-00155d039009", item.URL.String())
	assert.Equal(t, int64(1700000000), item.Meta[MetaTimestamp])
	assert.Equal(t, "vino-shato-taman-krasnoe-sukhoe_12345", item.MetaString(MetaItemSlug))
	assert.False(t, item.DontFilter)
	assert.NotNil(t, item.Callback)
}

func TestParseCategoryEdgeCases(t *testing.T) {
	log := logger.NewTestLogger()
	s := New(Options{}, log)
	req, err := fetch.NewRequest(http.MethodGet, "https://alkoteka.com/web-api/v1/product", nil)
	require.NoError(t, err)

	res, err := s.ParseCategory(context.Background(), responseFor(t, req, 200, `{"results": []}`))
	require.NoError(t, err)
	assert.Empty(t, res.Requests)
	assert.True(t, log.HasMessage("no products in category"))

	_, err = s.ParseCategory(context.Background(), responseFor(t, req, 403, `<html>blocked</html>`))
	assert.Error(t, err)
}

func TestParseItem(t *testing.T) {
	s := New(Options{}, logger.NewNopLogger())
	req, err := fetch.NewRequest(http.MethodGet, "https://alkoteka.com/web-api/v1/product/vino-shato-taman-krasnoe-sukhoe_12345", nil)
	require.NoError(t, err)
	req.Meta[MetaTimestamp] = int64(1700000000)
	req.Meta[MetaItemSlug] = "vino-shato-taman-krasnoe-sukhoe_12345"

	res, err := s.ParseItem(context.Background(), responseFor(t, req, 200, "testdata/product.json"))
	require.NoError(t, err)
	require.Len(t, res.Items, 1)

	p, ok := res.Items[0].(Product)
	require.True(t, ok)
	assert.Equal(t, int64(1700000000), p.Timestamp)
	assert.Equal(t, "12345", p.RPC)
	assert.Equal(t, "https://alkoteka.com/product/vino-krasnoe/vino-shato-taman-krasnoe-sukhoe_12345", p.URL)
}

func TestParseItemEdgeCases(t *testing.T) {
	log := logger.NewTestLogger()
	s := New(Options{}, log)
	req, err := fetch.NewRequest(http.MethodGet, "https://alkoteka.com/web-api/v1/product/x", nil)
	require.NoError(t, err)

	for _, body := range []string{`{"results": {}}`, `{"results": null}`, `{}`} {
		res, err := s.ParseItem(context.Background(), responseFor(t, req, 200, body))
		require.NoError(t, err, body)
		assert.Empty(t, res.Items, body)
	}
	assert.True(t, log.HasMessage("no product data"))

	_, err = s.ParseItem(context.Background(), responseFor(t, req, 429, "Too Many Requests"))
	assert.Error(t, err)

	_, err = s.ParseItem(context.Background(), responseFor(t, req, 200, `{"results": {"price": "free"}}`))
	assert.Error(t, err)
}

type memoryExporter struct {
	mu    sync.Mutex
	items []interface{}
}

func (m *memoryExporter) Export(item interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = append(m.items, item)
	return nil
}

func (m *memoryExporter) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

func (m *memoryExporter) Close() error { return nil }

func TestCrawlAgainstFakeSite(t *testing.T) {
	category, err := os.ReadFile("testdata/category.json")
	require.NoError(t, err)
	product, err := os.ReadFile("testdata/product.json")
	require.NoError(t, err)

	site := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/web-api/v1/product" && r.URL.Query().Get("root_category_slug") == "vino":
			w.Write(category)
		case r.URL.Path == "/web-api/v1/product/vino-shato-taman-krasnoe-sukhoe_12345":
			w.Write(product)
		case strings.HasPrefix(r.URL.Path, "/web-api/v1/product/"):
			w.Write([]byte(`{"success": true, "results": {}}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer site.Close()

	log := logger.NewTestLogger()
	s := New(Options{InputFile: writeInput(t, site.URL+"/catalog/vino\n"), BaseURL: site.URL}, log)
	exp := &memoryExporter{}
	engine := crawl.New(crawl.Options{Concurrency: 2, Exporter: exp}, downloader.New(downloader.Options{}, log), log)

	require.NoError(t, engine.Run(context.Background(), s.StartRequests()))

	require.Len(t, exp.items, 1)
	p := exp.items[0].(Product)
	assert.Equal(t, site.URL+"/product/vino-krasnoe/vino-shato-taman-krasnoe-sukhoe_12345", p.URL)

	out, err := json.Marshal(p)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"title":"Вино Шато Тамань красное сухое 0.75 Л"`)
	assert.Equal(t, int64(3), engine.Stats().Snapshot().RequestsSent)
}
