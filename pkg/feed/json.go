package feed

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// JSONOptions controls the JSON array layout
type JSONOptions struct {
	// Indent is the number of spaces per nesting level, 0 for one item per line
	Indent int
	// Overwrite discards an existing feed; otherwise its items are kept and new ones appended
	Overwrite bool
}

// JSONFeed streams items into a JSON array
type JSONFeed struct {
	path    string
	tmpPath string
	opts    JSONOptions

	mu     sync.Mutex
	file   *os.File
	count  int
	closed bool
}

// NewJSONFeed creates the temporary file and writes the array opening
func NewJSONFeed(path string, opts JSONOptions) (*JSONFeed, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create feed directory: %w", err)
		}
	}

	var existing []json.RawMessage
	if !opts.Overwrite {
		var err error
		if existing, err = readExisting(path); err != nil {
			return nil, err
		}
	}

	tmpPath := path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create temporary file: %w", err)
	}

	f := &JSONFeed{path: path, tmpPath: tmpPath, opts: opts, file: file}
	if _, err := file.WriteString("["); err != nil {
		f.abort()
		return nil, fmt.Errorf("failed to write feed header: %w", err)
	}
	for _, raw := range existing {
		if err := f.writeRaw(raw); err != nil {
			f.abort()
			return nil, err
		}
	}
	return f, nil
}

func readExisting(path string) ([]json.RawMessage, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read existing feed: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("existing feed %s is not a JSON array: %w", path, err)
	}
	return items, nil
}

// Export appends one item
func (f *JSONFeed) Export(item interface{}) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(item); err != nil {
		return fmt.Errorf("failed to encode item: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return errors.New("feed is closed")
	}
	return f.writeRaw(bytes.TrimRight(buf.Bytes(), "\n"))
}

// writeRaw must be called with mu held or before the feed is shared
func (f *JSONFeed) writeRaw(raw []byte) error {
	var out bytes.Buffer
	if f.count > 0 {
		out.WriteByte(',')
	}
	out.WriteByte('\n')
	if f.opts.Indent > 0 {
		if err := json.Indent(&out, raw, "", strings.Repeat(" ", f.opts.Indent)); err != nil {
			return fmt.Errorf("failed to indent item: %w", err)
		}
	} else {
		if err := json.Compact(&out, raw); err != nil {
			return fmt.Errorf("failed to compact item: %w", err)
		}
	}
	if _, err := f.file.Write(out.Bytes()); err != nil {
		return fmt.Errorf("failed to write item: %w", err)
	}
	f.count++
	return nil
}

// Count returns the number of items in the feed, including kept ones
func (f *JSONFeed) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.count
}

// Path returns the final feed location
func (f *JSONFeed) Path() string { return f.path }

// Close terminates the array and atomically moves the feed into place
func (f *JSONFeed) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	f.closed = true

	closing := "\n]\n"
	if f.count == 0 {
		closing = "]\n"
	}
	if _, err := f.file.WriteString(closing); err != nil {
		f.abort()
		return fmt.Errorf("failed to finish feed: %w", err)
	}
	if err := f.file.Close(); err != nil {
		os.Remove(f.tmpPath)
		return fmt.Errorf("failed to close file: %w", err)
	}
	if err := os.Rename(f.tmpPath, f.path); err != nil {
		os.Remove(f.tmpPath)
		return fmt.Errorf("failed to rename temporary file: %w", err)
	}
	return nil
}

func (f *JSONFeed) abort() {
	f.file.Close()
	os.Remove(f.tmpPath)
}
