package proxy

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"alkoscraper/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeProxyFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), DefaultSourceFile)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadTrimsAndSkipsBlankLines(t *testing.T) {
	path := writeProxyFile(t, "\xEF\xBB\xBF 10.0.0.1:8080 \n\n# backup pool\n10.0.0.2:8080\r\n   \n10.0.0.3:3128:bob:hunter2\n")
	log := logger.NewTestLogger()

	pool := Load(path, log)

	assert.False(t, pool.Disabled())
	assert.Equal(t, []Entry{"10.0.0.1:8080", "10.0.0.2:8080", "10.0.0.3:3128:bob:hunter2"}, pool.Entries())
	assert.Equal(t, path, pool.Source())
	require.Len(t, log.GetMessagesByLevel("INFO"), 1)
	assert.Equal(t, 3, log.GetMessagesByLevel("INFO")[0].Fields["count"])
}

func TestLoadMissingFileDisablesPool(t *testing.T) {
	log := logger.NewTestLogger()
	pool := Load(filepath.Join(t.TempDir(), "absent.txt"), log)

	assert.True(t, pool.Disabled())
	assert.Equal(t, 0, pool.Len())
	assert.True(t, log.HasMessageContaining("ERROR", "not found"))

	_, ok := pool.Next()
	assert.False(t, ok)
}

func TestLoadEmptyFileDisablesPool(t *testing.T) {
	log := logger.NewTestLogger()
	pool := Load(writeProxyFile(t, "\n  \n\t\n"), log)

	assert.True(t, pool.Disabled())
	assert.True(t, log.HasMessageContaining("WARN", "empty"))
	assert.False(t, log.HasError())
}

func TestLoadUnreadableFileDisablesPool(t *testing.T) {
	log := logger.NewTestLogger()
	// a directory cannot be read as a file
	pool := Load(t.TempDir(), log)

	assert.True(t, pool.Disabled())
	assert.True(t, log.HasMessageContaining("ERROR", "failed to read"))
}

func TestLoadSkipsMalformedEntries(t *testing.T) {
	log := logger.NewTestLogger()
	pool := Load(writeProxyFile(t, "10.0.0.1:8080\nnot-a-proxy\n10.0.0.2\n"), log)

	assert.Equal(t, []Entry{"10.0.0.1:8080"}, pool.Entries())
	assert.Len(t, log.GetMessagesByLevel("WARN"), 2)
}

func TestNextRoundRobin(t *testing.T) {
	pool := NewPool([]Entry{"p1:1", "p2:2", "p3:3"})

	var got []Entry
	for i := 0; i < 7; i++ {
		e, ok := pool.Next()
		require.True(t, ok)
		got = append(got, e)
	}
	assert.Equal(t, []Entry{"p1:1", "p2:2", "p3:3", "p1:1", "p2:2", "p3:3", "p1:1"}, got)
}

func TestNextSingleEntry(t *testing.T) {
	pool := NewPool([]Entry{"only:1"})
	for i := 0; i < 3; i++ {
		e, ok := pool.Next()
		assert.True(t, ok)
		assert.Equal(t, Entry("only:1"), e)
	}
}

func TestNextConcurrentCallersSeeEachEntryOnce(t *testing.T) {
	entries := make([]Entry, 64)
	for i := range entries {
		entries[i] = Entry(fmt.Sprintf("10.0.0.%d:8080", i))
	}
	pool := NewPool(entries)

	const rounds = 4
	results := make(chan Entry, len(entries)*rounds)
	var wg sync.WaitGroup
	for i := 0; i < len(entries)*rounds; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e, ok := pool.Next()
			if ok {
				results <- e
			}
		}()
	}
	wg.Wait()
	close(results)

	counts := make(map[Entry]int)
	for e := range results {
		counts[e]++
	}
	require.Len(t, counts, len(entries))
	for _, e := range entries {
		assert.Equal(t, rounds, counts[e], "entry %s", e)
	}
}

func TestPoolDoesNotAliasInput(t *testing.T) {
	in := []Entry{"a:1", "b:2"}
	pool := NewPool(in)
	in[0] = "changed:1"

	out := pool.Entries()
	out[1] = "changed:2"

	assert.Equal(t, []Entry{"a:1", "b:2"}, pool.Entries())
}
