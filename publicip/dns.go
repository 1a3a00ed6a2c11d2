package publicip

import (
	"context"
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/miekg/dns"
	"github.com/ruteri/proxy-provisioning/interfaces"
)

const (
	// OpenDNSServer answers myip.opendns.com with the querier's address.
	OpenDNSServer = "208.67.222.222:53"

	// OpenDNSName is the name OpenDNS resolves to the querier's address.
	OpenDNSName = "myip.opendns.com."
)

// DNSResolver discovers the public address with a DNS query against a
// resolver that reflects the source address (OpenDNS by default).
type DNSResolver struct {
	Server  string
	Query   string
	Timeout time.Duration

	// IPv6 asks for an AAAA record instead of an A record.
	IPv6 bool
}

// NewDNSResolver creates an OpenDNS backed resolver.
func NewDNSResolver() *DNSResolver {
	return &DNSResolver{
		Server:  OpenDNSServer,
		Query:   OpenDNSName,
		Timeout: DefaultTimeout,
	}
}

// Resolve implements interfaces.AddressResolver.
func (d *DNSResolver) Resolve(ctx context.Context) (netip.Addr, error) {
	qtype := dns.TypeA
	if d.IPv6 {
		qtype = dns.TypeAAAA
	}

	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(d.Query), qtype)
	m.RecursionDesired = false

	c := &dns.Client{Timeout: d.Timeout}
	in, _, err := c.ExchangeContext(ctx, m, d.Server)
	if err != nil {
		return netip.Addr{}, err
	}
	if in.Rcode != dns.RcodeSuccess {
		return netip.Addr{}, fmt.Errorf("dns query failed: %s", dns.RcodeToString[in.Rcode])
	}

	for _, answer := range in.Answer {
		switch rr := answer.(type) {
		case *dns.A:
			if addr, ok := netip.AddrFromSlice(rr.A.To4()); ok {
				return addr, nil
			}
		case *dns.AAAA:
			if addr, ok := netip.AddrFromSlice(rr.AAAA); ok {
				return addr.Unmap(), nil
			}
		}
	}
	return netip.Addr{}, interfaces.ErrNoAddress
}

// Name implements interfaces.AddressResolver.
func (d *DNSResolver) Name() string {
	return "dns:" + strings.TrimSuffix(d.Query, ".") + "@" + d.Server
}
