package camera

import (
	"fmt"
	"net/netip"
	"net/url"
)

// Allowlist validates RTSP targets against configured CIDR ranges,
// preventing the ingestor from being pointed at arbitrary hosts.
type Allowlist struct {
	prefixes []netip.Prefix
}

// ParseAllowlist builds an Allowlist from CIDR strings. An empty list
// yields a permissive allowlist.
func ParseAllowlist(cidrs []string) (*Allowlist, error) {
	al := &Allowlist{}
	for _, c := range cidrs {
		p, err := netip.ParsePrefix(c)
		if err != nil {
			return nil, fmt.Errorf("camera: bad allowlist cidr %q: %w", c, err)
		}
		al.prefixes = append(al.prefixes, p)
	}
	return al, nil
}

// Validate checks that rawURL is an rtsp:// URL whose host is a
// literal IP inside one of the allowed ranges. Hostnames are rejected
// when an allowlist is configured: resolving them at validation time
// would leave a rebinding hole.
func (a *Allowlist) Validate(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("camera: bad rtsp url: %w", err)
	}
	if u.Scheme != "rtsp" && u.Scheme != "rtsps" {
		return fmt.Errorf("camera: unsupported scheme %q", u.Scheme)
	}
	if len(a.prefixes) == 0 {
		return nil
	}

	addr, err := netip.ParseAddr(u.Hostname())
	if err != nil {
		return fmt.Errorf("camera: host %q is not a literal IP", u.Hostname())
	}
	for _, p := range a.prefixes {
		if p.Contains(addr) {
			return nil
		}
	}
	return fmt.Errorf("camera: host %s not in allowed ranges", addr)
}
