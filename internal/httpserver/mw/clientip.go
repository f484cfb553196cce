package mw

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// hostNoPort returns the host part of "ip:port", "[v6]:port" or "ip".
func hostNoPort(s string) string {
	if s == "" {
		return ""
	}
	if h, _, err := net.SplitHostPort(s); err == nil {
		return h
	}
	return s
}

// firstForwardedFor returns the left-most address of X-Forwarded-For.
func firstForwardedFor(xff string) string {
	if i := strings.IndexByte(xff, ','); i >= 0 {
		xff = xff[:i]
	}
	return strings.TrimSpace(xff)
}

// ClientIP resolves the caller's address. Proxy headers (CF-Connecting-IP,
// X-Forwarded-For, X-Real-IP, in that order) are only honored when
// trustProxy is set.
func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		for _, v := range []string{
			r.Header.Get("CF-Connecting-IP"),
			firstForwardedFor(r.Header.Get("X-Forwarded-For")),
			r.Header.Get("X-Real-IP"),
		} {
			if ip := hostNoPort(strings.TrimSpace(v)); ip != "" {
				return ip
			}
		}
	}
	return hostNoPort(r.RemoteAddr)
}

// ipMatcher matches exact addresses and prefixes.
type ipMatcher struct {
	addrs    []netip.Addr
	prefixes []netip.Prefix
}

func newIPMatcher(list []string) *ipMatcher {
	m := &ipMatcher{}
	for _, raw := range list {
		s := strings.TrimSpace(raw)
		if s == "" {
			continue
		}
		if p, err := netip.ParsePrefix(s); err == nil {
			m.prefixes = append(m.prefixes, p.Masked())
			continue
		}
		if a, err := netip.ParseAddr(s); err == nil {
			m.addrs = append(m.addrs, a.Unmap())
		}
	}
	return m
}

func (m *ipMatcher) empty() bool {
	return len(m.addrs) == 0 && len(m.prefixes) == 0
}

func (m *ipMatcher) allow(ip string) bool {
	a, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	a = a.Unmap()
	for _, v := range m.addrs {
		if v == a {
			return true
		}
	}
	for _, p := range m.prefixes {
		if p.Contains(a) {
			return true
		}
	}
	return false
}
