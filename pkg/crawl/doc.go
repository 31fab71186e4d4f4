// Package crawl runs requests through the download pipeline.
//
// Each scheduled request passes the duplicate filter (unless DontFilter is
// set), waits for the rate limiter and a concurrency slot, and is then
// dispatched:
//
//	request hooks (proxy assignment)
//	  -> downloader
//	  -> transport retry (network errors, 5xx)
//	  -> response hooks (blocked-response retry)
//	  -> request callback
//
// A response hook may replace the response with a retry; the replayed request
// is scheduled again and skips the duplicate filter. Callbacks return items,
// which go to the exporter, and follow-up requests, which are scheduled.
//
// Run returns when no request is pending or the context is cancelled.
package crawl
