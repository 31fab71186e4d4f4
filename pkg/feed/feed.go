package feed

import (
	"fmt"
	"strings"

	"alkoscraper/pkg/config"
)

// Exporter receives items as they are scraped
type Exporter interface {
	Export(item interface{}) error
	// Count returns the number of items exported so far
	Count() int
	Close() error
}

// Keyed items can be upserted by stores that support it
type Keyed interface {
	ItemKey() string
}

// New opens the exporter selected by cfg.Format
func New(cfg config.FeedConfig) (Exporter, error) {
	switch strings.ToLower(cfg.Format) {
	case "", "json":
		return NewJSONFeed(cfg.Path, JSONOptions{Indent: cfg.Indent, Overwrite: cfg.Overwrite})
	case "sqlite":
		return OpenSQLite(cfg.Path, cfg.Overwrite)
	default:
		return nil, fmt.Errorf("unknown feed format %q", cfg.Format)
	}
}
