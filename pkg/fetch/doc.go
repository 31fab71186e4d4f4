// Package fetch defines the request and response values that flow between the
// crawl engine, the proxy assigner and the retry policy.
//
// A Request carries its own AttemptState, so retry bookkeeping travels with
// the request (and its replays) rather than living in any shared structure.
package fetch
