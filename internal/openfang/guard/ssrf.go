// Package guard provides pre-flight safety validators for URLs, shell
// commands, bind mounts, and executable/container names, consumed by the
// Docker sandbox, MCP SSE transport, and webhook proxy.
//
// Validators here never perform the action they validate for; they return an
// error and the caller is responsible for refusing to proceed. DNS
// resolution happens synchronously on the calling goroutine rather than
// through a cancellable context, since Go's net.LookupIP is itself a
// blocking call, not a cooperatively scheduled one.
package guard

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strings"
)

// SSRFOptions configures CheckSSRF. AllowHosts lets operators explicitly
// permit hosts that would otherwise be rejected (e.g. an internal MCP server
// the operator deliberately runs on a private address).
type SSRFOptions struct {
	AllowHosts []string
	// Resolver is used to resolve hostnames to IPs. Defaults to net.DefaultResolver.
	Resolver interface {
		LookupIPAddr(host string) ([]net.IPAddr, error)
	}
}

type defaultResolver struct{}

func (defaultResolver) LookupIPAddr(host string) ([]net.IPAddr, error) {
	return net.DefaultResolver.LookupIPAddr(context.Background(), host)
}

var metadataHostnames = map[string]bool{
	"metadata.google.internal": true,
	"metadata.goog":            true,
}

// CheckSSRF validates rawURL: only http(s)/ws(s) schemes are permitted, and
// every resolved address for the hostname must not be loopback, link-local,
// RFC1918/ULA private, 0.0.0.0, or a cloud metadata endpoint, unless
// explicitly allow-listed.
func CheckSSRF(rawURL string, opts SSRFOptions) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("ssrf: invalid url: %w", err)
	}

	switch strings.ToLower(u.Scheme) {
	case "http", "https", "ws", "wss":
	default:
		return fmt.Errorf("ssrf: scheme %q not allowed", u.Scheme)
	}

	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("ssrf: url has no host")
	}

	for _, allowed := range opts.AllowHosts {
		if strings.EqualFold(allowed, host) {
			return nil
		}
	}

	if metadataHostnames[strings.ToLower(host)] {
		return fmt.Errorf("ssrf: host %q is a cloud metadata endpoint", host)
	}

	resolver := opts.Resolver
	if resolver == nil {
		resolver = defaultResolver{}
	}

	// A literal IP address still goes through LookupIPAddr (net handles
	// literals without a DNS round trip) so the same check path covers both
	// "http://169.254.169.254/" and "http://instance-data/".
	addrs, err := resolver.LookupIPAddr(host)
	if err != nil {
		return fmt.Errorf("ssrf: resolve %q: %w", host, err)
	}
	if len(addrs) == 0 {
		return fmt.Errorf("ssrf: %q did not resolve to any address", host)
	}

	for _, a := range addrs {
		if err := checkAddr(a.IP); err != nil {
			return fmt.Errorf("ssrf: %q resolves to disallowed address %s: %w", host, a.IP, err)
		}
	}
	return nil
}

func checkAddr(ip net.IP) error {
	if ip.IsLoopback() {
		return fmt.Errorf("loopback address")
	}
	if ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
		return fmt.Errorf("link-local address")
	}
	if ip.IsUnspecified() {
		return fmt.Errorf("unspecified address")
	}
	if ip.Equal(net.IPv4(169, 254, 169, 254)) {
		return fmt.Errorf("cloud metadata address")
	}
	if ip.IsPrivate() {
		// covers RFC1918 (IPv4) and RFC4193 ULA fc00::/7 (IPv6)
		return fmt.Errorf("private address")
	}
	return nil
}
