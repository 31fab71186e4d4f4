package proxy

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// Entry is one line of the proxy list: "host:port", "host:port:user:pass",
// or a URL with an explicit scheme such as "socks5://host:port".
type Entry string

// Target returns the proxy URL for the entry (without userinfo) and any
// credentials embedded in the entry itself.
func (e Entry) Target() (*url.URL, *Credentials, error) {
	raw := strings.TrimSpace(string(e))
	if raw == "" {
		return nil, nil, fmt.Errorf("empty proxy entry")
	}

	var creds *Credentials
	if !strings.Contains(raw, "://") {
		parts := strings.Split(raw, ":")
		switch len(parts) {
		case 2:
		case 4:
			creds = &Credentials{Username: parts[2], Password: parts[3]}
			raw = parts[0] + ":" + parts[1]
		default:
			return nil, nil, fmt.Errorf("proxy entry %q: want host:port or host:port:user:pass", string(e))
		}
		raw = "http://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, nil, fmt.Errorf("proxy entry %q: %w", string(e), err)
	}
	if u.Host == "" {
		return nil, nil, fmt.Errorf("proxy entry %q: missing host", string(e))
	}
	if _, port, err := net.SplitHostPort(u.Host); err != nil || port == "" {
		return nil, nil, fmt.Errorf("proxy entry %q: missing port", string(e))
	}
	if u.User != nil {
		pass, _ := u.User.Password()
		creds = &Credentials{Username: u.User.Username(), Password: pass}
		u.User = nil
	}
	return u, creds, nil
}
