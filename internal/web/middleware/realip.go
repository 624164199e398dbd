package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// TrustedRealIP rewrites RemoteAddr from X-Real-IP or the first
// X-Forwarded-For hop, but only when the connection comes from one of the
// trusted proxies. Entries may be CIDRs or single addresses; invalid ones
// are logged and ignored. With no trusted proxies the headers are never read.
func TrustedRealIP(trusted []string) func(http.Handler) http.Handler {
	prefixes := parseTrusted(trusted)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if remote, ok := addrOf(r.RemoteAddr); ok && contains(prefixes, remote) {
				if ip, ok := forwardedFor(r.Header); ok {
					r.RemoteAddr = ip.String()
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func parseTrusted(entries []string) []netip.Prefix {
	var out []netip.Prefix
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		if p, err := netip.ParsePrefix(e); err == nil {
			out = append(out, p.Masked())
			continue
		}
		if a, err := netip.ParseAddr(e); err == nil {
			out = append(out, netip.PrefixFrom(a, a.BitLen()))
			continue
		}
		slog.Warn("realip: invalid trusted proxy, skipping", "entry", e)
	}
	return out
}

// forwardedFor prefers X-Real-IP; a header holding garbage is ignored.
func forwardedFor(h http.Header) (netip.Addr, bool) {
	if rip := strings.TrimSpace(h.Get("X-Real-IP")); rip != "" {
		a, err := netip.ParseAddr(rip)
		return a, err == nil
	}
	if xff := h.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		a, err := netip.ParseAddr(strings.TrimSpace(first))
		return a, err == nil
	}
	return netip.Addr{}, false
}

// addrOf parses host:port or a bare address.
func addrOf(remote string) (netip.Addr, bool) {
	host := remote
	if h, _, err := net.SplitHostPort(remote); err == nil {
		host = h
	}
	a, err := netip.ParseAddr(host)
	if err != nil {
		return netip.Addr{}, false
	}
	return a.Unmap(), true
}

func contains(prefixes []netip.Prefix, a netip.Addr) bool {
	for _, p := range prefixes {
		if p.Contains(a) {
			return true
		}
	}
	return false
}
