package proxy

import (
	"bufio"
	"bytes"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"alkoscraper/pkg/logger"
)

// DefaultSourceFile is looked up in the working directory.
const DefaultSourceFile = "proxy_http_ip.txt"

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Pool is an immutable list of proxy entries with a shared rotation cursor.
type Pool struct {
	entries []Entry
	cursor  atomic.Uint64
	source  string
}

// NewPool builds a pool from entries already in memory. An empty slice gives
// a disabled pool.
func NewPool(entries []Entry) *Pool {
	return &Pool{entries: append([]Entry(nil), entries...)}
}

// Load reads the proxy list at path. It never fails: a missing, unreadable
// or empty file produces a disabled pool and a log entry.
func Load(path string, log logger.Logger) *Pool {
	if path == "" {
		path = DefaultSourceFile
	}
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	log = log.WithField("component", "proxy_pool")

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			log.ErrorWithFields("proxy file not found, proxies disabled", map[string]interface{}{"path": path})
		} else {
			log.WithError(err).ErrorWithFields("failed to read proxy file, proxies disabled", map[string]interface{}{"path": path})
		}
		return &Pool{source: path}
	}

	entries := parseEntries(data, log)
	pool := &Pool{entries: entries, source: path}
	if len(entries) == 0 {
		log.WarnWithFields("proxy file is empty, proxies disabled", map[string]interface{}{"path": path})
		return pool
	}

	log.InfoWithFields("loaded proxies", map[string]interface{}{
		"count": len(entries),
		"path":  path,
	})
	return pool
}

func parseEntries(data []byte, log logger.Logger) []Entry {
	data = bytes.TrimPrefix(data, utf8BOM)

	var entries []Entry
	scanner := bufio.NewScanner(bytes.NewReader(data))
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		entry := Entry(line)
		if _, _, err := entry.Target(); err != nil {
			log.WithError(err).WarnWithFields("skipping malformed proxy entry", map[string]interface{}{"line": lineNo})
			continue
		}
		entries = append(entries, entry)
	}
	return entries
}

// Next returns the next entry in rotation, or false when the pool is disabled.
// Concurrent callers each get a distinct cursor position.
func (p *Pool) Next() (Entry, bool) {
	n := uint64(len(p.entries))
	if n == 0 {
		return "", false
	}
	i := p.cursor.Add(1) - 1
	return p.entries[i%n], true
}

// Len returns the number of entries.
func (p *Pool) Len() int { return len(p.entries) }

// Disabled reports whether the pool has no entries.
func (p *Pool) Disabled() bool { return len(p.entries) == 0 }

// Source returns the absolute path the pool was loaded from, if any.
func (p *Pool) Source() string { return p.source }

// Entries returns a copy of the pool contents in rotation order.
func (p *Pool) Entries() []Entry {
	return append([]Entry(nil), p.entries...)
}
