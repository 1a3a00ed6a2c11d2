package render

import (
	"net"
	"net/netip"
	"net/url"
	"strconv"
	"strings"
)

// queryParam is one key/value pair of a share link query string.
type queryParam struct {
	key   string
	value string
}

// encodeQuery encodes params in the given order. url.Values sorts keys, and
// some clients are sensitive to the order they were published with.
func encodeQuery(params []queryParam) string {
	var b strings.Builder
	for i, p := range params {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(p.key))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(p.value))
	}
	return b.String()
}

// hostPort joins an address and port, bracketing IPv6 addresses.
func hostPort(addr netip.Addr, port int) string {
	return net.JoinHostPort(addr.String(), strconv.Itoa(port))
}
