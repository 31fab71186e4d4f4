package fetch

import (
	"encoding/json"
	"net/http"
	"net/url"
	"time"
)

// Response is a fully read HTTP response bound to the request that produced it.
type Response struct {
	Status  int
	Header  http.Header
	Body    []byte
	URL     *url.URL
	Request *Request
	// Latency is the time from dispatch to the last body byte.
	Latency time.Duration
}

// JSON decodes the body into v.
func (r *Response) JSON(v interface{}) error {
	return json.Unmarshal(r.Body, v)
}

// Meta is a shortcut for the originating request's meta.
func (r *Response) Meta() map[string]interface{} {
	if r.Request == nil {
		return nil
	}
	return r.Request.Meta
}
