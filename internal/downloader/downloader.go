package downloader

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	errs "alkoscraper/pkg/errors"
	"alkoscraper/pkg/fetch"
	"alkoscraper/pkg/logger"
)

// Options configures the HTTP client used for every dispatch
type Options struct {
	Timeout        time.Duration
	UserAgent      string
	MaxBodySize    int64
	DefaultHeaders map[string]string
	// TLSConfig overrides the client TLS settings, mostly for tests
	TLSConfig *tls.Config
}

// Downloader executes fetch requests over HTTP, routing each one through
// the proxy recorded on the request itself.
type Downloader struct {
	client *http.Client
	opts   Options
	logger logger.Logger
}

type routeKey struct{}

// route is the per-request proxy decision carried through the context to
// the shared transport.
type route struct {
	proxy *url.URL
	auth  string
}

// New creates a Downloader with a single shared transport
func New(opts Options, log logger.Logger) *Downloader {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxBodySize <= 0 {
		opts.MaxBodySize = 32 << 20
	}

	transport := &http.Transport{
		Proxy:                 proxyFromContext,
		GetProxyConnectHeader: connectHeaderFromContext,
		DialContext: (&net.Dialer{
			Timeout:   15 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSClientConfig:       opts.TLSConfig,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &Downloader{
		// no cookie jar: every request goes out without session state
		client: &http.Client{
			Transport: transport,
			Timeout:   opts.Timeout,
		},
		opts:   opts,
		logger: log.WithField("component", "downloader"),
	}
}

func proxyFromContext(r *http.Request) (*url.URL, error) {
	if rt, ok := r.Context().Value(routeKey{}).(*route); ok {
		return rt.proxy, nil
	}
	return nil, nil
}

func connectHeaderFromContext(ctx context.Context, proxyURL *url.URL, target string) (http.Header, error) {
	rt, ok := ctx.Value(routeKey{}).(*route)
	if !ok || rt.auth == "" {
		return nil, nil
	}
	h := make(http.Header)
	h.Set(fetch.HeaderProxyAuthorization, rt.auth)
	return h, nil
}

// Fetch sends req and reads the whole body. Transport failures come back as
// network errors; any HTTP status is a successful fetch.
func (d *Downloader) Fetch(ctx context.Context, req *fetch.Request) (*fetch.Response, error) {
	rt := &route{proxy: req.Proxy, auth: req.Header.Get(fetch.HeaderProxyAuthorization)}

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(context.WithValue(ctx, routeKey{}, rt), req.Method, req.URL.String(), body)
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypeUnknown, "build request", err)
	}

	for k, v := range d.opts.DefaultHeaders {
		httpReq.Header.Set(k, v)
	}
	for k, vs := range req.Header {
		httpReq.Header[k] = append([]string(nil), vs...)
	}
	if d.opts.UserAgent != "" && httpReq.Header.Get("User-Agent") == "" {
		httpReq.Header.Set("User-Agent", d.opts.UserAgent)
	}
	// plain http proxies read the header from the request itself; for https
	// it goes on the CONNECT and must not reach the origin
	if req.Proxy == nil || req.URL.Scheme == "https" {
		httpReq.Header.Del(fetch.HeaderProxyAuthorization)
	}

	start := time.Now()
	resp, err := d.client.Do(httpReq)
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypeNetwork, d.describe(req), err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, d.opts.MaxBodySize+1))
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypeNetwork, "read body of "+d.describe(req), err)
	}
	if int64(len(data)) > d.opts.MaxBodySize {
		return nil, errs.New(errs.ErrorTypeParsing, fmt.Sprintf("response body exceeds %d bytes: %s", d.opts.MaxBodySize, req.URL))
	}
	latency := time.Since(start)

	logger.LogResponse(d.logger.WithField("proxy", req.Attempt.AssignedProxy), req.Method, req.URL.String(), resp.StatusCode, latency)

	return &fetch.Response{
		Status:  resp.StatusCode,
		Header:  resp.Header,
		Body:    data,
		URL:     resp.Request.URL,
		Request: req,
		Latency: latency,
	}, nil
}

func (d *Downloader) describe(req *fetch.Request) string {
	if req.Proxy != nil {
		return fmt.Sprintf("%s %s via %s", req.Method, req.URL, req.Proxy.Host)
	}
	return fmt.Sprintf("%s %s", req.Method, req.URL)
}

// CloseIdleConnections releases pooled connections
func (d *Downloader) CloseIdleConnections() {
	d.client.CloseIdleConnections()
}
