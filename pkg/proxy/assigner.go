package proxy

import (
	"net/http"

	"alkoscraper/pkg/fetch"
	"alkoscraper/pkg/logger"
)

// Assigner picks a proxy for every dispatch and attaches its credentials.
type Assigner struct {
	pool   *Pool
	creds  *Credentials
	logger logger.Logger
}

// NewAssigner creates an Assigner. creds may be nil; it is shared by every
// entry that does not carry its own credentials.
func NewAssigner(pool *Pool, creds *Credentials, log logger.Logger) *Assigner {
	return &Assigner{
		pool:   pool,
		creds:  creds,
		logger: log.WithField("component", "proxy_assigner"),
	}
}

// Assign sets the request's proxy to the next pool entry. A disabled pool
// leaves the request untouched. Re-assigning replaces the previous proxy and
// Proxy-Authorization header; it never adds a second one.
func (a *Assigner) Assign(req *fetch.Request) {
	entry, ok := a.pool.Next()
	if !ok {
		a.logger.DebugWithFields("no proxies configured, dispatching directly", map[string]interface{}{
			"url": req.URL.String(),
		})
		return
	}

	target, entryCreds, err := entry.Target()
	if err != nil {
		// NewPool does not validate, so a bad entry can still get here
		a.logger.WithError(err).WarnWithFields("unusable proxy entry, dispatching directly", map[string]interface{}{
			"url": req.URL.String(),
		})
		req.ClearProxy()
		return
	}

	creds := a.creds
	if entryCreds != nil {
		creds = entryCreds
	}

	if req.Header == nil {
		req.Header = make(http.Header)
	}
	req.Proxy = target
	req.Attempt.AssignedProxy = string(entry)
	if creds.Configured() {
		req.Header.Set(fetch.HeaderProxyAuthorization, creds.BasicAuth())
	} else {
		req.Header.Del(fetch.HeaderProxyAuthorization)
	}

	a.logger.DebugWithFields("using proxy", map[string]interface{}{
		"proxy": target.String(),
		"url":   req.URL.String(),
	})
}
