// Package ratelimit paces dispatches for the crawl engine.
//
// DelayLimiter enforces a fixed gap between requests. AutoThrottle starts
// from a configured delay and tracks response latency so that, on average,
// TargetConcurrency requests are in flight; throttling statuses such as 429
// or 503 can raise the delay but never lower it.
//
// Both are built on golang.org/x/time/rate with a burst of one.
package ratelimit
