// Package feed writes scraped items to their final destination.
//
// The JSON feed produces a single UTF-8 JSON array, written to a temporary
// file next to the target and renamed into place on Close, so readers never
// see a half-written feed. The SQLite feed stores one row per item and
// upserts items that expose a stable key.
package feed
