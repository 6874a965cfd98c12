package http

import (
	"net/http"
	"net/netip"
	"strings"
	"unicode/utf8"
)

// maxDeviceInfoLen bounds the user agent stored with a session
const maxDeviceInfoLen = 255

// IPConfig holds configuration for IP extraction and validation
type IPConfig struct {
	TrustedProxies []string // CIDR ranges of trusted proxies
}

// ClientInfo identifies the device and address a request came from.
type ClientInfo struct {
	IPAddress  string
	DeviceInfo string
}

// ExtractClientInfo returns the client IP and a bounded user agent string.
func ExtractClientInfo(r *http.Request, config *IPConfig) ClientInfo {
	return ClientInfo{
		IPAddress:  ExtractClientIP(r, config),
		DeviceInfo: DeviceInfo(r),
	}
}

// DeviceInfo returns the request's user agent truncated to a storable length
func DeviceInfo(r *http.Request) string {
	ua := strings.TrimSpace(r.UserAgent())
	if ua == "" {
		return "unknown"
	}
	if utf8.RuneCountInString(ua) <= maxDeviceInfoLen {
		return ua
	}
	return string([]rune(ua)[:maxDeviceInfoLen])
}

// ExtractClientIP returns the real client IP address.
// X-Forwarded-For and X-Real-IP are only honored when the direct peer is a
// trusted proxy; otherwise RemoteAddr is used.
func ExtractClientIP(r *http.Request, config *IPConfig) string {
	remoteIP := remoteAddr(r)

	if config == nil || !config.trusts(remoteIP) {
		return remoteIP
	}

	// X-Forwarded-For may list several hops, the first valid one is the client
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		for _, candidate := range strings.Split(xff, ",") {
			candidate = strings.TrimSpace(candidate)
			if _, err := netip.ParseAddr(candidate); err == nil {
				return candidate
			}
		}
	}

	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		if _, err := netip.ParseAddr(xri); err == nil {
			return xri
		}
	}

	return remoteIP
}

func remoteAddr(r *http.Request) string {
	if r.RemoteAddr == "" {
		return "unknown"
	}
	if ap, err := netip.ParseAddrPort(r.RemoteAddr); err == nil {
		return ap.Addr().String()
	}
	return r.RemoteAddr
}

func (c *IPConfig) trusts(ip string) bool {
	if len(c.TrustedProxies) == 0 {
		return false
	}

	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()

	for _, cidr := range c.TrustedProxies {
		prefix, err := netip.ParsePrefix(cidr)
		if err != nil {
			continue
		}
		if prefix.Contains(addr) {
			return true
		}
	}

	return false
}
