package fetch

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// HeaderProxyAuthorization is the header carrying proxy credentials.
const HeaderProxyAuthorization = "Proxy-Authorization"

// AttemptState is the per-request retry bookkeeping.
type AttemptState struct {
	// RetryCount is how many proxy retries this logical request has consumed.
	RetryCount int
	// AssignedProxy is the pool entry chosen for the current dispatch, "" when direct.
	AssignedProxy string
}

// Result is what a callback produces from one response.
type Result struct {
	Requests []*Request
	Items    []interface{}
}

// Callback parses an accepted response.
type Callback func(ctx context.Context, resp *Response) (Result, error)

// Request is one outbound HTTP request plus crawl metadata.
type Request struct {
	ID     string
	Method string
	URL    *url.URL
	Header http.Header
	Body   []byte
	Meta   map[string]interface{}

	// Proxy is the proxy target for the current dispatch, nil for direct.
	Proxy   *url.URL
	Attempt AttemptState

	// DontFilter bypasses the duplicate filter.
	DontFilter bool
	Callback   Callback
}

// NewRequest parses rawURL and returns a request with empty headers and meta.
func NewRequest(method, rawURL string, callback Callback) (*Request, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse request url %q: %w", rawURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported url scheme %q in %q", u.Scheme, rawURL)
	}
	if method == "" {
		method = http.MethodGet
	}
	return &Request{
		ID:       uuid.NewString(),
		Method:   method,
		URL:      u,
		Header:   make(http.Header),
		Meta:     make(map[string]interface{}),
		Callback: callback,
	}, nil
}

// Clone returns a deep copy sharing only the callback.
func (r *Request) Clone() *Request {
	c := *r
	if r.URL != nil {
		u := *r.URL
		c.URL = &u
	}
	if r.Proxy != nil {
		p := *r.Proxy
		if r.Proxy.User != nil {
			u := *r.Proxy.User
			p.User = &u
		}
		c.Proxy = &p
	}
	c.Header = r.Header.Clone()
	if c.Header == nil {
		c.Header = make(http.Header)
	}
	if r.Body != nil {
		c.Body = append([]byte(nil), r.Body...)
	}
	c.Meta = make(map[string]interface{}, len(r.Meta))
	for k, v := range r.Meta {
		c.Meta[k] = v
	}
	return &c
}

// Replay returns a copy to be re-scheduled: same method, URL, body, headers,
// meta and attempt state, with the duplicate filter bypassed.
func (r *Request) Replay() *Request {
	c := r.Clone()
	c.DontFilter = true
	return c
}

// ClearProxy removes the proxy target and its credentials so the next
// dispatch gets a fresh assignment.
func (r *Request) ClearProxy() {
	r.Proxy = nil
	r.Attempt.AssignedProxy = ""
	r.Header.Del(HeaderProxyAuthorization)
}

// MetaString returns Meta[key] as a string, "" when absent or of another type.
func (r *Request) MetaString(key string) string {
	s, _ := r.Meta[key].(string)
	return s
}

// Fingerprint identifies a request for duplicate filtering. Query parameter
// order and fragments do not affect it.
func (r *Request) Fingerprint() string {
	h := sha1.New()
	h.Write([]byte(strings.ToUpper(r.Method)))
	h.Write([]byte{0})
	h.Write([]byte(canonicalURL(r.URL)))
	h.Write([]byte{0})
	h.Write(r.Body)
	return hex.EncodeToString(h.Sum(nil))
}

func canonicalURL(u *url.URL) string {
	if u == nil {
		return ""
	}
	c := *u
	c.Fragment = ""
	c.RawFragment = ""
	c.Scheme = strings.ToLower(c.Scheme)
	c.Host = strings.ToLower(c.Host)

	q := c.Query()
	keys := make([]string, 0, len(q))
	for k := range q {
		keys = append(keys, k)
		sort.Strings(q[k])
	}
	sort.Strings(keys)
	var b strings.Builder
	for i, k := range keys {
		for j, v := range q[k] {
			if i > 0 || j > 0 {
				b.WriteByte('&')
			}
			b.WriteString(url.QueryEscape(k))
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(v))
		}
	}
	c.RawQuery = b.String()
	return c.String()
}

func (r *Request) String() string {
	return fmt.Sprintf("<%s %s>", r.Method, r.URL)
}
