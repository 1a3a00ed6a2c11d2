package main

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ruteri/proxy-provisioning/identity"
	"github.com/ruteri/proxy-provisioning/interfaces"
	"github.com/ruteri/proxy-provisioning/pki"
	"github.com/ruteri/proxy-provisioning/publicip"
)

const (
	sourceNative  = "native"
	sourceCommand = "command"
	sourceOpenSSL = "openssl"

	resolverHTTP    = "http"
	resolverDNS     = "dns"
	resolverCommand = "command"
)

func identitySourceFor(name string) (interfaces.IdentitySource, error) {
	switch name {
	case sourceNative:
		return identity.NativeSource{}, nil
	case sourceCommand:
		return identity.CommandSource{}, nil
	default:
		return nil, fmt.Errorf("unknown identity source %q, expected %s or %s", name, sourceNative, sourceCommand)
	}
}

func issuerFor(name, opensslBinary string) (interfaces.CertificateIssuer, error) {
	switch name {
	case sourceNative:
		return pki.NativeIssuer{}, nil
	case sourceOpenSSL, sourceCommand:
		return pki.OpenSSLIssuer{Binary: opensslBinary}, nil
	default:
		return nil, fmt.Errorf("unknown certificate issuer %q, expected %s or %s", name, sourceNative, sourceOpenSSL)
	}
}

// resolverOptions configures the public address resolvers.
type resolverOptions struct {
	ServiceURL string
	DNSServer  string
	DNSIPv6    bool
	Timeout    time.Duration
}

func resolverFor(names []string, opts resolverOptions, logger *slog.Logger) (interfaces.AddressResolver, error) {
	if len(names) == 0 {
		return nil, errors.New("at least one ip resolver is required")
	}

	chain := &publicip.ChainResolver{Log: logger}
	for _, name := range names {
		switch name {
		case resolverHTTP:
			r := publicip.NewHTTPResolver(opts.ServiceURL)
			r.Client.Timeout = opts.Timeout
			chain.Resolvers = append(chain.Resolvers, r)
		case resolverDNS:
			r := publicip.NewDNSResolver()
			r.Server = opts.DNSServer
			r.Timeout = opts.Timeout
			r.IPv6 = opts.DNSIPv6
			chain.Resolvers = append(chain.Resolvers, r)
		case resolverCommand:
			chain.Resolvers = append(chain.Resolvers, &publicip.CommandResolver{URL: opts.ServiceURL})
		default:
			return nil, fmt.Errorf("unknown ip resolver %q, expected %s, %s or %s", name, resolverHTTP, resolverDNS, resolverCommand)
		}
	}

	if len(chain.Resolvers) == 1 {
		return chain.Resolvers[0], nil
	}
	return chain, nil
}
