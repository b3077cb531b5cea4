// Package ipfilter restricts HTTP listeners to configured client networks
package ipfilter

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// Filter holds the allowed client networks. An empty filter allows everyone.
type Filter struct {
	prefixes []netip.Prefix
	logger   *slog.Logger
}

// ParsePrefixes parses IPs and CIDRs. A bare IP becomes a single-host prefix.
func ParsePrefixes(entries []string) ([]netip.Prefix, error) {
	var out []netip.Prefix
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		if strings.Contains(e, "/") {
			p, err := netip.ParsePrefix(e)
			if err != nil {
				return nil, fmt.Errorf("invalid CIDR %q: %w", e, err)
			}
			out = append(out, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(e)
		if err != nil {
			return nil, fmt.Errorf("invalid IP %q: %w", e, err)
		}
		out = append(out, netip.PrefixFrom(addr.Unmap(), addr.Unmap().BitLen()))
	}
	return out, nil
}

// New creates a filter for the given entries
func New(entries []string, logger *slog.Logger) (*Filter, error) {
	prefixes, err := ParsePrefixes(entries)
	if err != nil {
		return nil, err
	}
	return &Filter{prefixes: prefixes, logger: logger}, nil
}

// Enabled reports whether any network is configured
func (f *Filter) Enabled() bool {
	return f != nil && len(f.prefixes) > 0
}

// Allows reports whether addr may connect
func (f *Filter) Allows(addr netip.Addr) bool {
	if !f.Enabled() {
		return true
	}
	addr = addr.Unmap()
	for _, p := range f.prefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// AllowsRemote checks a host:port or bare host string
func (f *Filter) AllowsRemote(remote string) bool {
	host := remote
	if h, _, err := net.SplitHostPort(remote); err == nil {
		host = h
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return !f.Enabled()
	}
	return f.Allows(addr)
}

// Middleware rejects requests from clients outside the filter with 403.
// It trusts r.RemoteAddr; put a real-IP middleware in front behind a proxy.
func (f *Filter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !f.Enabled() || f.AllowsRemote(r.RemoteAddr) {
			next.ServeHTTP(w, r)
			return
		}
		f.logger.Warn("access denied by IP filter", "remote_addr", r.RemoteAddr, "path", r.URL.Path)
		http.Error(w, "Forbidden", http.StatusForbidden)
	})
}
