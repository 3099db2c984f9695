package domain

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// MatchResult classifies the outcome of checking a confirmation address
// against the client that presented the response.
type MatchResult int

const (
	// MatchAccepted means the address satisfied the policy.
	MatchAccepted MatchResult = iota

	// MatchIndeterminate means the address could not be interpreted as an
	// IP and could not be resolved. Acceptable only when the policy is
	// not strict.
	MatchIndeterminate

	// MatchRejected means the address resolved but matched neither the
	// allow-list nor the observed client address.
	MatchRejected
)

// String returns a log-friendly name for the result.
func (r MatchResult) String() string {
	switch r {
	case MatchAccepted:
		return "accepted"
	case MatchIndeterminate:
		return "indeterminate"
	case MatchRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// AddressMatcher decides whether the address an IdP asserted for a bearer
// subject confirmation is acceptable for the client that actually
// delivered the response.
type AddressMatcher struct {
	// AllowedRanges are CIDR ranges, or bare addresses treated as a full
	// prefix, that are accepted without comparing to the observed client.
	AllowedRanges []string

	// RequireAddress rejects confirmations that omit the address entirely.
	RequireAddress bool

	// FailOnMismatch controls strictness. When false, mismatches and
	// indeterminate addresses are accepted; callers are expected to log
	// the downgrade.
	FailOnMismatch bool

	// Resolve maps a host name to addresses. Defaults to net.LookupIP.
	// Injected so tests never depend on a live resolver.
	Resolve func(host string) ([]net.IP, error)
}

// Match applies the address policy in order. A missing asserted address
// is rejected only when RequireAddress is set. A literal or resolvable
// address is accepted if any resolved IP is private, falls in an allowed
// range, or equals the observed client address. An address that cannot
// be resolved at all is indeterminate.
func (m *AddressMatcher) Match(asserted string, observed net.IP) (MatchResult, error) {
	if asserted == "" {
		if m.RequireAddress {
			return MatchRejected, ProtocolError("subject confirmation missing required address", nil)
		}
		return MatchAccepted, nil
	}

	ips := m.resolveAddress(asserted)
	if len(ips) == 0 {
		if m.FailOnMismatch {
			return MatchIndeterminate, AuthError("subject confirmation address did not resolve", fmt.Errorf("address %q", asserted))
		}
		return MatchIndeterminate, nil
	}

	for _, ip := range ips {
		if ip.IsPrivate() || ip.IsLoopback() {
			return MatchAccepted, nil
		}
		for _, cidr := range m.AllowedRanges {
			if inRange(ip, cidr) {
				return MatchAccepted, nil
			}
		}
		if observed != nil && ip.Equal(observed) {
			return MatchAccepted, nil
		}
	}

	if m.FailOnMismatch {
		return MatchRejected, AuthError("subject confirmation address mismatch", fmt.Errorf("address %q does not match client %v", asserted, observed))
	}
	return MatchRejected, nil
}

func (m *AddressMatcher) resolveAddress(asserted string) []net.IP {
	if ip := net.ParseIP(asserted); ip != nil {
		return []net.IP{ip}
	}
	resolve := m.Resolve
	if resolve == nil {
		resolve = net.LookupIP
	}
	ips, err := resolve(asserted)
	if err != nil {
		return nil
	}
	return ips
}

// inRange reports whether ip falls within a range expressed as CIDR
// notation or a bare address. The comparison is a raw byte prefix match;
// a bare address implies the full-length prefix. Malformed ranges never
// match.
func inRange(ip net.IP, cidr string) bool {
	rangeAddr := cidr
	prefixLen := -1
	if i := strings.IndexByte(cidr, '/'); i >= 0 {
		rangeAddr = cidr[:i]
		n, err := strconv.Atoi(cidr[i+1:])
		if err != nil || n < 0 {
			return false
		}
		prefixLen = n
	}

	rangeIP := net.ParseIP(rangeAddr)
	if rangeIP == nil {
		return false
	}

	// Normalize both to the same family representation.
	a, b := ip, rangeIP
	if a4, b4 := a.To4(), b.To4(); a4 != nil && b4 != nil {
		a, b = a4, b4
	} else if (a4 == nil) != (b4 == nil) {
		return false
	}

	bits := len(b) * 8
	if prefixLen < 0 || prefixLen > bits {
		prefixLen = bits
	}

	for i := 0; i < len(b); i++ {
		remaining := prefixLen - i*8
		if remaining <= 0 {
			return true
		}
		mask := byte(0xff)
		if remaining < 8 {
			mask = byte(0xff) << (8 - remaining)
		}
		if a[i]&mask != b[i]&mask {
			return false
		}
	}
	return true
}
