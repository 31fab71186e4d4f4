// Package dupefilter remembers request fingerprints so the engine schedules
// each distinct request once per crawl.
package dupefilter

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"alkoscraper/pkg/config"
	"alkoscraper/pkg/logger"
)

// Filter records fingerprints. Seen marks fp as seen and reports whether it
// had been seen before.
type Filter interface {
	Seen(ctx context.Context, fp string) (bool, error)
	Close() error
}

// Memory is an in-process Filter
type Memory struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

// NewMemory creates an empty in-memory filter
func NewMemory() *Memory {
	return &Memory{seen: make(map[string]struct{})}
}

func (m *Memory) Seen(_ context.Context, fp string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.seen[fp]; ok {
		return true, nil
	}
	m.seen[fp] = struct{}{}
	return false, nil
}

// Len returns the number of distinct fingerprints
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.seen)
}

func (m *Memory) Close() error { return nil }

// Nop never reports duplicates
type Nop struct{}

func (Nop) Seen(context.Context, string) (bool, error) { return false, nil }
func (Nop) Close() error                               { return nil }

// New builds the filter selected in cfg
func New(ctx context.Context, cfg config.DedupConfig, log logger.Logger) (Filter, error) {
	switch strings.ToLower(cfg.Backend) {
	case "", "memory":
		return NewMemory(), nil
	case "none":
		return Nop{}, nil
	case "redis":
		return DialRedis(ctx, cfg.RedisURL, cfg.RedisKey, log)
	default:
		return nil, fmt.Errorf("unknown dedup backend %q", cfg.Backend)
	}
}
