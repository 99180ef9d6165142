// Package scrape implements the research pipeline's outbound fetch path:
// SSRF-defended URL validation, a tiered HTML fetcher, a YouTube transcript
// extractor, and a circuit breaker guarding each external dependency.
package scrape

import (
	"context"
	"net"
	"net/url"
	"strings"

	"github.com/codeready-toolchain/research-mcp/pkg/corerr"
)

// blockedHostnames is the static blocklist of cloud metadata endpoints
// (spec §4.3.1 rule 2).
var blockedHostnames = map[string]bool{
	"metadata.google.internal": true,
	"metadata.google.com":      true,
	"metadata":                 true,
	"instance-data":            true,
}

// reservedRanges is the closed set of CIDRs a resolved or literal IP must
// not fall within unless allow_private_ips is set (spec §4.3.1 rule 4).
var reservedRanges = mustParseCIDRs(
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"127.0.0.0/8",
	"0.0.0.0/8",
	"169.254.0.0/16",
	"100.64.0.0/10",
	"::1/128",
	"::/128",
	"fe80::/10",
	"fc00::/7",
	"::ffff:0:0/96", // IPv4-mapped addresses; the embedded v4 is re-checked separately
)

func mustParseCIDRs(cidrs ...string) []*net.IPNet {
	out := make([]*net.IPNet, 0, len(cidrs))
	for _, c := range cidrs {
		_, n, err := net.ParseCIDR(c)
		if err != nil {
			panic("scrape: invalid reserved CIDR literal: " + c)
		}
		out = append(out, n)
	}
	return out
}

func isReservedIP(ip net.IP) bool {
	for _, n := range reservedRanges {
		if n.Contains(ip) {
			return true
		}
	}
	if v4 := ip.To4(); v4 != nil {
		for _, n := range reservedRanges {
			if n.Contains(v4) {
				return true
			}
		}
	}
	return false
}

// Resolver abstracts DNS resolution so tests can substitute fixed answers
// without touching the network (spec §5 suspension-point discipline: DNS
// resolution is a cooperative suspension point).
type Resolver interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
}

// Validator enforces the SSRF rules of spec §4.3.1, applied strictly in
// order.
type Validator struct {
	AllowedDomains  []string
	AllowPrivateIPs bool
	Resolver        Resolver
}

// NewValidator constructs a Validator with the system resolver.
func NewValidator(allowedDomains []string, allowPrivateIPs bool) *Validator {
	return &Validator{
		AllowedDomains:  allowedDomains,
		AllowPrivateIPs: allowPrivateIPs,
		Resolver:        net.DefaultResolver,
	}
}

// Validate applies the five ordered rules of spec §4.3.1 and returns a
// *corerr.CoreError carrying the rejected URL and hostname on failure.
func (v *Validator) Validate(ctx context.Context, rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return v.reject(corerr.KindInvalidURL, rawURL, "", "failed to parse URL")
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return v.reject(corerr.KindDisallowedScheme, rawURL, parsed.Hostname(), "scheme must be http or https")
	}

	hostname := strings.Trim(parsed.Hostname(), "[]")
	if blockedHostnames[strings.ToLower(hostname)] {
		return v.reject(corerr.KindSSRFBlocked, rawURL, hostname, "hostname is a cloud metadata endpoint")
	}

	if len(v.AllowedDomains) > 0 && !v.hostnameAllowed(hostname) {
		return v.reject(corerr.KindSSRFBlocked, rawURL, hostname, "hostname is not in the configured allowlist")
	}

	if ip := net.ParseIP(hostname); ip != nil {
		if !v.AllowPrivateIPs && isReservedIP(ip) {
			return v.reject(corerr.KindSSRFBlocked, rawURL, hostname, "literal IP falls in a reserved range")
		}
		return nil
	}

	if v.AllowPrivateIPs {
		return nil
	}
	addrs, err := v.Resolver.LookupIPAddr(ctx, hostname)
	if err != nil {
		// DNS failure is not a rejection (spec §4.3.1 rule 5): let the
		// subsequent fetch fail naturally.
		return nil
	}
	for _, addr := range addrs {
		if isReservedIP(addr.IP) {
			return v.reject(corerr.KindSSRFBlocked, rawURL, hostname, "resolved address falls in a reserved range")
		}
	}
	return nil
}

func (v *Validator) hostnameAllowed(hostname string) bool {
	lower := strings.ToLower(hostname)
	for _, allowed := range v.AllowedDomains {
		allowed = strings.ToLower(allowed)
		if lower == allowed || strings.HasSuffix(lower, "."+allowed) {
			return true
		}
	}
	return false
}

func (v *Validator) reject(kind corerr.Kind, rawURL, hostname, message string) error {
	return corerr.New(kind, message).
		WithExtra("url", rawURL).
		WithExtra("hostname", hostname)
}
