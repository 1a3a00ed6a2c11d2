// Package publicip discovers the public address of the host, which is embedded
// in the generated share links.
package publicip

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"github.com/ruteri/proxy-provisioning/executil"
	"github.com/ruteri/proxy-provisioning/interfaces"
)

const (
	// DefaultServiceURL answers with the caller's address as plain text.
	DefaultServiceURL = "https://api64.ipify.org"

	// DefaultTimeout bounds a single lookup attempt.
	DefaultTimeout = 10 * time.Second
)

// Fallback is used when no resolver produced an address.
var Fallback = netip.AddrFrom4([4]byte{127, 0, 0, 1})

// Lookup resolves the public address, falling back to the loopback address.
func Lookup(ctx context.Context, r interfaces.AddressResolver, log *slog.Logger) interfaces.Resolved[netip.Addr] {
	addr, err := r.Resolve(ctx)
	if err != nil {
		log.Warn("Public address lookup failed, using fallback",
			slog.String("resolver", r.Name()),
			slog.String("fallback", Fallback.String()),
			"err", err)
	}
	return interfaces.Resolve(addr, err, Fallback)
}

// HTTPResolver queries a plain text "what is my IP" service.
type HTTPResolver struct {
	URL    string
	Client *http.Client
}

// NewHTTPResolver creates a resolver for serviceURL with DefaultTimeout.
func NewHTTPResolver(serviceURL string) *HTTPResolver {
	return &HTTPResolver{
		URL:    serviceURL,
		Client: &http.Client{Timeout: DefaultTimeout},
	}
}

// Resolve implements interfaces.AddressResolver.
func (h *HTTPResolver) Resolve(ctx context.Context) (netip.Addr, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.URL, nil)
	if err != nil {
		return netip.Addr{}, err
	}

	client := h.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return netip.Addr{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return netip.Addr{}, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, h.URL)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 256))
	if err != nil {
		return netip.Addr{}, err
	}
	return ParseAddr(string(body))
}

// Name implements interfaces.AddressResolver.
func (h *HTTPResolver) Name() string {
	return "http:" + h.URL
}

// CommandResolver asks curl for the service response.
type CommandResolver struct {
	URL    string
	Runner executil.Runner
}

// Resolve implements interfaces.AddressResolver.
func (c *CommandResolver) Resolve(ctx context.Context) (netip.Addr, error) {
	runner := c.Runner
	if runner == nil {
		runner = executil.OSRunner{}
	}

	out, err := runner.Output(ctx, "curl", "-s", "--max-time", fmt.Sprint(int(DefaultTimeout.Seconds())), c.URL)
	if err != nil {
		return netip.Addr{}, err
	}
	return ParseAddr(string(out))
}

// Name implements interfaces.AddressResolver.
func (c *CommandResolver) Name() string {
	return "curl:" + c.URL
}

// ChainResolver returns the first address any of its resolvers produces.
type ChainResolver struct {
	Resolvers []interfaces.AddressResolver
	Log       *slog.Logger
}

// Resolve implements interfaces.AddressResolver.
func (c *ChainResolver) Resolve(ctx context.Context) (netip.Addr, error) {
	var errs []error
	for _, r := range c.Resolvers {
		addr, err := r.Resolve(ctx)
		if err == nil {
			return addr, nil
		}
		if c.Log != nil {
			c.Log.Debug("Resolver failed", slog.String("resolver", r.Name()), "err", err)
		}
		errs = append(errs, fmt.Errorf("%s: %w", r.Name(), err))
	}
	if len(errs) == 0 {
		return netip.Addr{}, errors.New("no resolvers configured")
	}
	return netip.Addr{}, errors.Join(errs...)
}

// Name implements interfaces.AddressResolver.
func (c *ChainResolver) Name() string {
	names := make([]string, 0, len(c.Resolvers))
	for _, r := range c.Resolvers {
		names = append(names, r.Name())
	}
	return "chain(" + strings.Join(names, ",") + ")"
}

// ParseAddr parses a service response into an address.
func ParseAddr(s string) (netip.Addr, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return netip.Addr{}, interfaces.ErrNoAddress
	}
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("invalid address %q: %w", s, err)
	}
	return addr.Unmap(), nil
}
