package downloader

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	errs "alkoscraper/pkg/errors"
	"alkoscraper/pkg/fetch"
	"alkoscraper/pkg/logger"
	"alkoscraper/pkg/proxy"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// forwardProxy is a minimal HTTP proxy: absolute-form requests are
// forwarded, CONNECT requests are tunnelled.
type forwardProxy struct {
	mu       sync.Mutex
	auths    []string
	connects int32
	server   *httptest.Server
}

func newForwardProxy(t *testing.T) *forwardProxy {
	p := &forwardProxy{}
	p.server = httptest.NewServer(http.HandlerFunc(p.serve))
	t.Cleanup(p.server.Close)
	return p
}

func (p *forwardProxy) serve(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	p.auths = append(p.auths, r.Header.Get("Proxy-Authorization"))
	p.mu.Unlock()

	if r.Method == http.MethodConnect {
		atomic.AddInt32(&p.connects, 1)
		dst, err := net.Dial("tcp", r.Host)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		conn, _, err := w.(http.Hijacker).Hijack()
		if err != nil {
			dst.Close()
			return
		}
		_, _ = conn.Write([]byte("HTTP/1.1 200 Connection Established\r\n\r\n"))
		go func() { _, _ = io.Copy(dst, conn); dst.Close() }()
		go func() { _, _ = io.Copy(conn, dst); conn.Close() }()
		return
	}

	out, err := http.NewRequest(r.Method, r.URL.String(), r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	for k, vs := range r.Header {
		if k == "Proxy-Authorization" {
			continue
		}
		out.Header[k] = vs
	}
	resp, err := http.DefaultTransport.RoundTrip(out)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()
	for k, vs := range resp.Header {
		w.Header()[k] = vs
	}
	w.WriteHeader(resp.StatusCode)
	_, _ = io.Copy(w, resp.Body)
}

func (p *forwardProxy) seenAuth() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.auths...)
}

func (p *forwardProxy) entry() proxy.Entry {
	u, _ := url.Parse(p.server.URL)
	return proxy.Entry(u.Host)
}

func newRequest(t *testing.T, raw string) *fetch.Request {
	t.Helper()
	req, err := fetch.NewRequest("GET", raw, nil)
	require.NoError(t, err)
	return req
}

func TestFetchDirect(t *testing.T) {
	var gotUA, gotAccept, gotProxyAuth string
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotAccept = r.Header.Get("Accept")
		gotProxyAuth = r.Header.Get("Proxy-Authorization")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true}`))
	}))
	defer origin.Close()

	d := New(Options{
		UserAgent:      "alkoscraper-test",
		DefaultHeaders: map[string]string{"Accept": "application/json"},
	}, logger.NewNopLogger())

	req := newRequest(t, origin.URL+"/web-api/v1/product")
	req.Header.Set("Proxy-Authorization", "Basic leak")
	resp, err := d.Fetch(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, `{"success":true}`, string(resp.Body))
	assert.Same(t, req, resp.Request)
	assert.Greater(t, resp.Latency, time.Duration(0))
	assert.Equal(t, "alkoscraper-test", gotUA)
	assert.Equal(t, "application/json", gotAccept)
	assert.Empty(t, gotProxyAuth)
}

func TestFetchRequestHeadersOverrideDefaults(t *testing.T) {
	var gotAccept string
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAccept = r.Header.Get("Accept")
	}))
	defer origin.Close()

	d := New(Options{DefaultHeaders: map[string]string{"Accept": "*/*"}}, logger.NewNopLogger())
	req := newRequest(t, origin.URL)
	req.Header.Set("Accept", "text/html")

	_, err := d.Fetch(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "text/html", gotAccept)
}

func TestFetchThroughHTTPProxy(t *testing.T) {
	var originSawAuth string
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		originSawAuth = r.Header.Get("Proxy-Authorization")
		_, _ = w.Write([]byte("via proxy"))
	}))
	defer origin.Close()
	fp := newForwardProxy(t)

	assigner := proxy.NewAssigner(proxy.NewPool([]proxy.Entry{fp.entry()}),
		&proxy.Credentials{Username: "user", Password: "pass"}, logger.NewNopLogger())
	req := newRequest(t, origin.URL+"/item")
	assigner.Assign(req)

	d := New(Options{}, logger.NewNopLogger())
	resp, err := d.Fetch(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, "via proxy", string(resp.Body))
	assert.Equal(t, []string{"Basic dXNlcjpwYXNz"}, fp.seenAuth())
	assert.Empty(t, originSawAuth)
}

func TestFetchThroughConnectTunnel(t *testing.T) {
	var originSawAuth atomic.Value
	origin := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		originSawAuth.Store(r.Header.Get("Proxy-Authorization"))
		_, _ = w.Write([]byte("tunnelled"))
	}))
	defer origin.Close()
	fp := newForwardProxy(t)

	assigner := proxy.NewAssigner(proxy.NewPool([]proxy.Entry{fp.entry()}),
		&proxy.Credentials{Username: "user", Password: "pass"}, logger.NewNopLogger())
	req := newRequest(t, origin.URL+"/secure")
	assigner.Assign(req)

	tlsCfg := origin.Client().Transport.(*http.Transport).TLSClientConfig
	d := New(Options{TLSConfig: tlsCfg}, logger.NewNopLogger())
	resp, err := d.Fetch(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, "tunnelled", string(resp.Body))
	assert.Equal(t, int32(1), atomic.LoadInt32(&fp.connects))
	assert.Equal(t, []string{"Basic dXNlcjpwYXNz"}, fp.seenAuth())
	assert.Equal(t, "", originSawAuth.Load())
}

func TestFetchNetworkError(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := listener.Addr().String()
	require.NoError(t, listener.Close())

	d := New(Options{Timeout: time.Second}, logger.NewNopLogger())
	_, err = d.Fetch(context.Background(), newRequest(t, "http://"+addr+"/"))

	require.Error(t, err)
	assert.Equal(t, errs.ErrorTypeNetwork, errs.TypeOf(err))
}

func TestFetchBodyLimit(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("x", 64)))
	}))
	defer origin.Close()

	d := New(Options{MaxBodySize: 16}, logger.NewNopLogger())
	_, err := d.Fetch(context.Background(), newRequest(t, origin.URL))

	require.Error(t, err)
	assert.Equal(t, errs.ErrorTypeParsing, errs.TypeOf(err))
}

func TestFetchReturnsErrorStatusesAsResponses(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer origin.Close()

	d := New(Options{}, logger.NewNopLogger())
	resp, err := d.Fetch(context.Background(), newRequest(t, origin.URL))

	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, resp.Status)
}

func TestFetchHonoursContext(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer origin.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	d := New(Options{}, logger.NewNopLogger())
	_, err := d.Fetch(ctx, newRequest(t, origin.URL))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
