package ternsecure

import (
	"fmt"
	"net"
	"net/http"
	"strings"
)

// ProxyMatcher decides whether a peer may set X-Forwarded-* and X-Real-IP.
//
// A nil ProxyMatcher trusts nobody: forwarded headers are ignored and the client
// address comes from RemoteAddr.
type ProxyMatcher struct {
	ips  map[string]struct{}
	nets []*net.IPNet
}

// NewProxyMatcher parses IP addresses and CIDR ranges. An empty list yields nil.
func NewProxyMatcher(entries []string) (*ProxyMatcher, error) {
	ips := make(map[string]struct{})
	var nets []*net.IPNet

	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if strings.Contains(entry, "/") {
			_, network, err := net.ParseCIDR(entry)
			if err != nil {
				return nil, fmt.Errorf("trusted proxy %q: %w", entry, err)
			}
			nets = append(nets, network)
			continue
		}
		ip := net.ParseIP(entry)
		if ip == nil {
			return nil, fmt.Errorf("trusted proxy %q is not an IP or CIDR", entry)
		}
		ips[ip.String()] = struct{}{}
	}

	if len(ips) == 0 && len(nets) == 0 {
		return nil, nil
	}
	return &ProxyMatcher{ips: ips, nets: nets}, nil
}

// Trusts reports whether the peer of r is a configured proxy.
func (m *ProxyMatcher) Trusts(r *http.Request) bool {
	if m == nil || r == nil {
		return false
	}
	ip := net.ParseIP(remoteHost(r.RemoteAddr))
	if ip == nil {
		return false
	}
	if _, ok := m.ips[ip.String()]; ok {
		return true
	}
	for _, network := range m.nets {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

func remoteHost(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}
	host = strings.Trim(host, "[]")
	if zone := strings.IndexByte(host, '%'); zone != -1 {
		host = host[:zone]
	}
	return host
}
