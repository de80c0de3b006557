package urlsafety

import (
	"context"
	"net"
	"testing"
)

type fakeResolver struct {
	addrs []net.IPAddr
	err   error
}

func (f fakeResolver) LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error) {
	return f.addrs, f.err
}

func addrs(ips ...string) []net.IPAddr {
	out := make([]net.IPAddr, 0, len(ips))
	for _, ip := range ips {
		out = append(out, net.IPAddr{IP: net.ParseIP(ip)})
	}
	return out
}

func TestValidate_RejectsNonHTTPS(t *testing.T) {
	err := ValidateWithResolver(context.Background(), "http://example.com/hook", fakeResolver{addrs: addrs("93.184.216.34")})
	if err == nil {
		t.Fatal("expected rejection of non-https scheme")
	}
}

func TestValidate_RejectsMalformed(t *testing.T) {
	err := ValidateWithResolver(context.Background(), "://not a url", fakeResolver{})
	if err == nil {
		t.Fatal("expected rejection of malformed url")
	}
}

func TestValidate_BlockedRanges(t *testing.T) {
	cases := []string{
		"127.0.0.1",
		"10.1.2.3",
		"172.16.0.1",
		"192.168.1.1",
		"169.254.169.254", // cloud metadata endpoint
		"0.0.0.1",
		"::1",
		"fc00::1",
		"fe80::1",
	}
	for _, ip := range cases {
		t.Run(ip, func(t *testing.T) {
			err := ValidateWithResolver(context.Background(), "https://hooks.internal/x", fakeResolver{addrs: addrs(ip)})
			if err == nil {
				t.Fatalf("expected %s to be rejected", ip)
			}
		})
	}
}

func TestValidate_AcceptsPublicAddress(t *testing.T) {
	err := ValidateWithResolver(context.Background(), "https://hooks.example.com/x", fakeResolver{addrs: addrs("93.184.216.34")})
	if err != nil {
		t.Fatalf("expected public address to be accepted, got %v", err)
	}
}

func TestValidate_AnyResolvedAddressBlocks(t *testing.T) {
	err := ValidateWithResolver(context.Background(), "https://hooks.example.com/x", fakeResolver{addrs: addrs("93.184.216.34", "10.0.0.5")})
	if err == nil {
		t.Fatal("expected rejection when any resolved address is blocked")
	}
}

func TestValidate_LiteralIPHost(t *testing.T) {
	err := ValidateWithResolver(context.Background(), "https://169.254.169.254/latest/meta-data", fakeResolver{})
	if err == nil {
		t.Fatal("expected literal blocked IP host to be rejected without a DNS lookup")
	}
}

func TestValidate_DNSFailure(t *testing.T) {
	err := ValidateWithResolver(context.Background(), "https://nonexistent.example/x", fakeResolver{err: &net.DNSError{Err: "not found", Name: "nonexistent.example"}})
	if err == nil {
		t.Fatal("expected dns failure to reject")
	}
}
