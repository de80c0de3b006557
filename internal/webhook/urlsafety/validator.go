// Package urlsafety validates outbound webhook destinations against SSRF.
package urlsafety

import (
	"context"
	"fmt"
	"net"
	"net/url"

	"github.com/sanderm5/Sky-planner-sub006/internal/webhook/errs"
)

func invalid(reason string, args ...any) *errs.InvalidURL {
	return &errs.InvalidURL{Reason: fmt.Sprintf(reason, args...)}
}

var blockedRanges = mustParseCIDRs(
	// Required by the eventing plane's SSRF contract.
	"127.0.0.0/8",
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"169.254.0.0/16",
	"0.0.0.0/8",
	"::1/128",
	"fc00::/7",
	"fe80::/10",
	// Additional hardening: these only narrow what passes, never widen it.
	"100.64.0.0/10",
	"192.0.0.0/24",
	"192.0.2.0/24",
	"198.51.100.0/24",
	"203.0.113.0/24",
	"198.18.0.0/15",
	"224.0.0.0/4",
	"240.0.0.0/4",
)

func mustParseCIDRs(cidrs ...string) []*net.IPNet {
	nets := make([]*net.IPNet, 0, len(cidrs))
	for _, c := range cidrs {
		_, n, err := net.ParseCIDR(c)
		if err != nil {
			panic("urlsafety: bad cidr literal " + c)
		}
		nets = append(nets, n)
	}
	return nets
}

func isBlocked(ip net.IP) bool {
	if ip.Equal(net.IPv4bcast) {
		return true
	}
	for _, n := range blockedRanges {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// Resolver abstracts hostname resolution so tests can inject fixed results
// without touching the network.
type Resolver interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
}

type netResolver struct{}

func (netResolver) LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error) {
	return net.DefaultResolver.LookupIPAddr(ctx, host)
}

// DefaultResolver is the production resolver backed by the system DNS.
var DefaultResolver Resolver = netResolver{}

// Validate rejects rawURL unless it parses, uses https, and every address it
// could resolve to (literal or via DNS) lies outside the blocked ranges.
// Validation is re-run before every delivery attempt, not only at creation,
// because DNS answers can change between the two.
func Validate(ctx context.Context, rawURL string) error {
	return ValidateWithResolver(ctx, rawURL, DefaultResolver)
}

// ValidateWithResolver is Validate with an injectable resolver, used by tests.
func ValidateWithResolver(ctx context.Context, rawURL string, resolver Resolver) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return invalid("malformed url")
	}
	if u.Scheme != "https" {
		return invalid("scheme must be https")
	}
	host := u.Hostname()
	if host == "" {
		return invalid("missing host")
	}

	if literal := net.ParseIP(host); literal != nil {
		if isBlocked(literal) {
			return invalid("resolves to a blocked address range")
		}
		return nil
	}

	addrs, err := resolver.LookupIPAddr(ctx, host)
	if err != nil {
		return invalid("dns resolution failed: %v", err)
	}
	if len(addrs) == 0 {
		return invalid("dns resolution returned no addresses")
	}
	for _, a := range addrs {
		if isBlocked(a.IP) {
			return invalid("resolves to a blocked address range")
		}
	}
	return nil
}
