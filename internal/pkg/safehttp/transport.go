// Package safehttp provides HTTP clients for fetching claimant-supplied
// URLs without reaching internal networks.
package safehttp

import (
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"syscall"
	"time"
)

// ErrDeniedAddress is returned when a dial targets a private, loopback or
// link-local address.
var ErrDeniedAddress = fmt.Errorf("access to private address is denied")

// checkAddress runs after DNS resolution and before the connection is made.
func checkAddress(_, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return err
	}
	ip, err := netip.ParseAddr(host)
	if err != nil {
		return fmt.Errorf("failed to parse remote IP %q: %w", host, err)
	}
	if Denied(ip) {
		return fmt.Errorf("%w: %s", ErrDeniedAddress, ip)
	}
	return nil
}

// Denied reports whether ip must not be dialed.
func Denied(ip netip.Addr) bool {
	ip = ip.Unmap()
	return ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() || ip.IsUnspecified() || ip.IsMulticast()
}

// NewTransport returns a transport that refuses private destinations.
func NewTransport() *http.Transport {
	dialer := &net.Dialer{
		Timeout: 5 * time.Second,
		Control: checkAddress,
	}
	return &http.Transport{
		Proxy:                 nil,
		DialContext:           dialer.DialContext,
		MaxIdleConns:          10,
		IdleConnTimeout:       30 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ResponseHeaderTimeout: 10 * time.Second,
	}
}

// SafeTransport is a shared instance of NewTransport.
var SafeTransport = NewTransport()
