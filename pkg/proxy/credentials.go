package proxy

import "encoding/base64"

// Credentials is the username/password pair sent to proxies as Basic auth.
type Credentials struct {
	Username string
	Password string
}

// Configured reports whether both halves are present.
func (c *Credentials) Configured() bool {
	return c != nil && c.Username != "" && c.Password != ""
}

// BasicAuth returns the Proxy-Authorization header value.
func (c *Credentials) BasicAuth() string {
	token := base64.StdEncoding.EncodeToString([]byte(c.Username + ":" + c.Password))
	return "Basic " + token
}
