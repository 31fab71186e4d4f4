package fetch

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRequest(t *testing.T) {
	req, err := NewRequest("", "https://alkoteka.com/web-api/v1/product?page=1", nil)
	require.NoError(t, err)
	assert.Equal(t, "GET", req.Method)
	assert.NotEmpty(t, req.ID)
	assert.NotNil(t, req.Header)
	assert.NotNil(t, req.Meta)

	_, err = NewRequest("GET", "ftp://example.com/file", nil)
	assert.Error(t, err)
	_, err = NewRequest("GET", "://broken", nil)
	assert.Error(t, err)
}

func TestReplayIsDeepCopy(t *testing.T) {
	req, err := NewRequest("POST", "https://example.com/items?b=2&a=1", nil)
	require.NoError(t, err)
	req.Header.Set("X-Trace", "1")
	req.Body = []byte(`{"q":1}`)
	req.Meta["timestamp"] = int64(42)
	req.Attempt = AttemptState{RetryCount: 2, AssignedProxy: "1.2.3.4:8080"}
	req.Proxy, _ = url.Parse("http://u:p@1.2.3.4:8080")

	replay := req.Replay()

	assert.True(t, replay.DontFilter)
	assert.False(t, req.DontFilter)
	assert.Equal(t, req.Method, replay.Method)
	assert.Equal(t, req.URL.String(), replay.URL.String())
	assert.Equal(t, req.Body, replay.Body)
	assert.Equal(t, req.Attempt, replay.Attempt)
	assert.Equal(t, int64(42), replay.Meta["timestamp"])
	assert.Equal(t, req.Fingerprint(), replay.Fingerprint())

	replay.Header.Set("X-Trace", "2")
	replay.Meta["timestamp"] = int64(7)
	replay.Body[0] = '['
	replay.URL.Path = "/other"
	replay.Proxy.Host = "5.6.7.8:80"

	assert.Equal(t, "1", req.Header.Get("X-Trace"))
	assert.Equal(t, int64(42), req.Meta["timestamp"])
	assert.Equal(t, byte('{'), req.Body[0])
	assert.Equal(t, "/items", req.URL.Path)
	assert.Equal(t, "1.2.3.4:8080", req.Proxy.Host)
}

func TestClearProxy(t *testing.T) {
	req, err := NewRequest("GET", "http://example.com", nil)
	require.NoError(t, err)
	req.Proxy, _ = url.Parse("http://1.2.3.4:8080")
	req.Attempt.AssignedProxy = "1.2.3.4:8080"
	req.Header.Set(HeaderProxyAuthorization, "Basic abc")

	req.ClearProxy()

	assert.Nil(t, req.Proxy)
	assert.Empty(t, req.Attempt.AssignedProxy)
	assert.Empty(t, req.Header.Values(HeaderProxyAuthorization))
}

func TestFingerprint(t *testing.T) {
	mk := func(method, raw string, body string) string {
		req, err := NewRequest(method, raw, nil)
		require.NoError(t, err)
		if body != "" {
			req.Body = []byte(body)
		}
		return req.Fingerprint()
	}

	base := mk("GET", "https://Example.com/p?a=1&b=2", "")
	assert.Equal(t, base, mk("get", "https://example.com/p?b=2&a=1#frag", ""))
	assert.NotEqual(t, base, mk("GET", "https://example.com/p?a=1&b=3", ""))
	assert.NotEqual(t, base, mk("POST", "https://example.com/p?a=1&b=2", ""))
	assert.NotEqual(t, mk("POST", "https://example.com/p", "x"), mk("POST", "https://example.com/p", "y"))
}

func TestOutcomeConstructors(t *testing.T) {
	resp := &Response{Status: 200}
	req := &Request{}

	assert.Equal(t, KindAccept, Accept(resp).Kind)
	assert.False(t, Accept(resp).Exhausted)
	assert.True(t, Exhausted(resp).Exhausted)
	assert.Equal(t, KindAccept, Exhausted(resp).Kind)
	assert.Equal(t, KindRetry, Retry(req).Kind)
	assert.Same(t, req, Retry(req).Request)
	assert.Equal(t, "retry", KindRetry.String())
}

func TestResponseJSON(t *testing.T) {
	resp := &Response{Body: []byte(`{"success":true}`), Request: &Request{Meta: map[string]interface{}{"k": "v"}}}
	var out struct {
		Success bool `json:"success"`
	}
	require.NoError(t, resp.JSON(&out))
	assert.True(t, out.Success)
	assert.Equal(t, "v", resp.Meta()["k"])
}
