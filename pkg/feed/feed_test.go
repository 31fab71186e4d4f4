package feed

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alkoscraper/pkg/config"
)

type product struct {
	RPC   string `json:"RPC"`
	Title string `json:"title"`
}

func (p product) ItemKey() string { return p.RPC }

func readFeed(t *testing.T, path string) []product {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var items []product
	require.NoError(t, json.Unmarshal(data, &items))
	return items
}

func TestJSONFeed_WritesIndentedArray(t *testing.T) {
	path := filepath.Join(t.TempDir(), "result.json")

	f, err := NewJSONFeed(path, JSONOptions{Indent: 4, Overwrite: true})
	require.NoError(t, err)

	require.NoError(t, f.Export(product{RPC: "1", Title: "Вино <красное>"}))
	require.NoError(t, f.Export(product{RPC: "2", Title: "Коньяк"}))

	// nothing is visible before Close
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	require.NoError(t, f.Close())
	assert.Equal(t, 2, f.Count())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)
	assert.True(t, strings.HasPrefix(text, "[\n{\n    \"RPC\": \"1\""), text)
	assert.Contains(t, text, "Вино <красное>")
	assert.NotContains(t, text, `\u003c`)

	items := readFeed(t, path)
	require.Len(t, items, 2)
	assert.Equal(t, "Коньяк", items[1].Title)

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestJSONFeed_EmptyFeedIsValidArray(t *testing.T) {
	path := filepath.Join(t.TempDir(), "result.json")
	f, err := NewJSONFeed(path, JSONOptions{Indent: 4, Overwrite: true})
	require.NoError(t, err)
	require.NoError(t, f.Close())

	assert.Empty(t, readFeed(t, path))
}

func TestJSONFeed_Overwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "result.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"RPC":"old","title":"x"}]`), 0644))

	t.Run("replaces existing items", func(t *testing.T) {
		f, err := NewJSONFeed(path, JSONOptions{Overwrite: true})
		require.NoError(t, err)
		require.NoError(t, f.Export(product{RPC: "new"}))
		require.NoError(t, f.Close())

		items := readFeed(t, path)
		require.Len(t, items, 1)
		assert.Equal(t, "new", items[0].RPC)
	})

	t.Run("appends when overwrite is off", func(t *testing.T) {
		f, err := NewJSONFeed(path, JSONOptions{Indent: 2})
		require.NoError(t, err)
		require.NoError(t, f.Export(product{RPC: "next"}))
		require.NoError(t, f.Close())
		assert.Equal(t, 2, f.Count())

		items := readFeed(t, path)
		require.Len(t, items, 2)
		assert.Equal(t, "new", items[0].RPC)
		assert.Equal(t, "next", items[1].RPC)
	})
}

func TestJSONFeed_RejectsCorruptExistingFeed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "result.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"not":"an array"}`), 0644))

	_, err := NewJSONFeed(path, JSONOptions{})
	assert.Error(t, err)
}

func TestJSONFeed_ExportAfterClose(t *testing.T) {
	f, err := NewJSONFeed(filepath.Join(t.TempDir(), "out.json"), JSONOptions{Overwrite: true})
	require.NoError(t, err)
	require.NoError(t, f.Close())
	assert.NoError(t, f.Close())
	assert.Error(t, f.Export(product{RPC: "late"}))
}

func TestJSONFeed_ConcurrentExport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "result.json")
	f, err := NewJSONFeed(path, JSONOptions{Indent: 4, Overwrite: true})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			assert.NoError(t, f.Export(product{RPC: strings.Repeat("x", n+1)}))
		}(i)
	}
	wg.Wait()
	require.NoError(t, f.Close())

	assert.Len(t, readFeed(t, path), 50)
}

func TestSQLiteFeed_UpsertsByKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "items.db")

	s, err := OpenSQLite(path, true)
	require.NoError(t, err)

	require.NoError(t, s.Export(product{RPC: "42", Title: "first"}))
	require.NoError(t, s.Export(product{RPC: "42", Title: "second"}))
	require.NoError(t, s.Export(map[string]string{"free": "form"}))
	assert.Equal(t, 3, s.Count())

	rows, err := s.Rows(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 2)

	var p product
	require.NoError(t, json.Unmarshal(rows[0], &p))
	assert.Equal(t, "second", p.Title)
	require.NoError(t, s.Close())

	t.Run("reopen keeps rows", func(t *testing.T) {
		s, err := OpenSQLite(path, false)
		require.NoError(t, err)
		defer s.Close()
		rows, err := s.Rows(context.Background())
		require.NoError(t, err)
		assert.Len(t, rows, 2)
	})

	t.Run("overwrite clears rows", func(t *testing.T) {
		s, err := OpenSQLite(path, true)
		require.NoError(t, err)
		defer s.Close()
		rows, err := s.Rows(context.Background())
		require.NoError(t, err)
		assert.Empty(t, rows)
	})
}

func TestNew(t *testing.T) {
	dir := t.TempDir()

	e, err := New(config.FeedConfig{Path: filepath.Join(dir, "a.json"), Format: "json", Overwrite: true})
	require.NoError(t, err)
	assert.IsType(t, &JSONFeed{}, e)
	require.NoError(t, e.Close())

	e, err = New(config.FeedConfig{Path: filepath.Join(dir, "a.db"), Format: "SQLite"})
	require.NoError(t, err)
	assert.IsType(t, &SQLiteFeed{}, e)
	require.NoError(t, e.Close())

	_, err = New(config.FeedConfig{Path: filepath.Join(dir, "a.csv"), Format: "csv"})
	assert.Error(t, err)
}
