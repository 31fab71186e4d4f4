// Package proxy rotates outbound requests across a fixed list of proxy
// endpoints.
//
// A Pool is loaded once from a plain-text file (one entry per line) and hands
// out entries round-robin through an atomic cursor, so concurrent dispatches
// never need a lock. An empty or missing file yields a disabled pool and
// requests go out directly. The Assigner stamps the chosen proxy and the
// Proxy-Authorization header onto each request right before it is sent.
package proxy
