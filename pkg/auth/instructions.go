package auth

import (
	"fmt"
	"io"
	"strings"
)

// ShowProxySetupGuide explains the proxy list format and where credentials come from
func ShowProxySetupGuide(w io.Writer) {
	rule := strings.Repeat("=", 72)
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w, "PROXY SETUP")
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "1. Proxy list file (default proxy_http_ip.txt in the working directory)")
	fmt.Fprintln(w, "   One proxy per line. Blank lines and lines starting with # are ignored.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "     203.0.113.10:8080")
	fmt.Fprintln(w, "     203.0.113.11:3128:alice:s3cret     per-proxy credentials")
	fmt.Fprintln(w, "     http://203.0.113.12:8000           explicit scheme")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "   A missing or empty file disables proxies; requests go out directly.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "2. Shared credentials, first match wins")
	fmt.Fprintln(w, "   - proxy.username / proxy.password in the config file or flags")
	fmt.Fprintf(w, "   - %s / %s\n", EnvProxyUsername, EnvProxyPassword)
	fmt.Fprintln(w, "   - a stored account named by proxy.credentials_account")
	fmt.Fprintln(w, "     (alkoscraper auth login <name>)")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "   Stored accounts live in the system keyring when one is available,")
	fmt.Fprintln(w, "   otherwise in an AES-GCM encrypted file in the config directory.")
	fmt.Fprintln(w, rule)
}
