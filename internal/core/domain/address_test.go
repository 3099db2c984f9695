//go:build unit

package domain

import (
	"errors"
	"net"
	"testing"
)

// TestAddressMatcher_MissingOptional verifies a missing address passes when not required.
func TestAddressMatcher_MissingOptional(t *testing.T) {
	m := &AddressMatcher{}
	result, err := m.Match("", net.ParseIP("203.0.113.7"))
	if err != nil {
		t.Errorf("missing optional address should not error, got %v", err)
	}
	if result != MatchAccepted {
		t.Errorf("expected accepted, got %v", result)
	}
}

// TestAddressMatcher_MissingRequired verifies a missing address fails as a protocol violation when required.
func TestAddressMatcher_MissingRequired(t *testing.T) {
	m := &AddressMatcher{RequireAddress: true}
	result, err := m.Match("", net.ParseIP("203.0.113.7"))
	if err == nil {
		t.Fatal("missing required address should error")
	}
	if result != MatchRejected {
		t.Errorf("expected rejected, got %v", result)
	}
	if CodeOf(err) != ErrCodeProtocolViolation {
		t.Errorf("expected protocol_violation, got %v", CodeOf(err))
	}
}

// TestAddressMatcher_PrivateAddress verifies site-local addresses are accepted unconditionally.
func TestAddressMatcher_PrivateAddress(t *testing.T) {
	m := &AddressMatcher{FailOnMismatch: true}
	for _, addr := range []string{"10.1.2.3", "192.168.0.9", "172.16.4.5", "127.0.0.1"} {
		result, err := m.Match(addr, net.ParseIP("203.0.113.7"))
		if err != nil {
			t.Errorf("Match(%q) should not error, got %v", addr, err)
		}
		if result != MatchAccepted {
			t.Errorf("Match(%q) expected accepted, got %v", addr, result)
		}
	}
}

// TestAddressMatcher_AllowedRange verifies CIDR allow-list matches accept without comparing to the client.
func TestAddressMatcher_AllowedRange(t *testing.T) {
	m := &AddressMatcher{
		AllowedRanges:  []string{"198.51.100.0/24"},
		FailOnMismatch: true,
	}
	result, err := m.Match("198.51.100.200", net.ParseIP("203.0.113.7"))
	if err != nil {
		t.Errorf("allow-listed address should not error, got %v", err)
	}
	if result != MatchAccepted {
		t.Errorf("expected accepted, got %v", result)
	}
}

// TestAddressMatcher_ObservedEquality verifies the asserted address matching the client is accepted.
func TestAddressMatcher_ObservedEquality(t *testing.T) {
	m := &AddressMatcher{FailOnMismatch: true}
	result, err := m.Match("203.0.113.7", net.ParseIP("203.0.113.7"))
	if err != nil {
		t.Errorf("matching address should not error, got %v", err)
	}
	if result != MatchAccepted {
		t.Errorf("expected accepted, got %v", result)
	}
}

// TestAddressMatcher_MismatchStrict verifies a mismatch fails as auth_failed under strict policy.
func TestAddressMatcher_MismatchStrict(t *testing.T) {
	m := &AddressMatcher{FailOnMismatch: true}
	result, err := m.Match("203.0.113.200", net.ParseIP("203.0.113.7"))
	if err == nil {
		t.Fatal("mismatch under strict policy should error")
	}
	if result != MatchRejected {
		t.Errorf("expected rejected, got %v", result)
	}
	if CodeOf(err) != ErrCodeAuthFailed {
		t.Errorf("expected auth_failed, got %v", CodeOf(err))
	}
}

// TestAddressMatcher_MismatchLenient verifies a mismatch is reported but not fatal under lenient policy.
func TestAddressMatcher_MismatchLenient(t *testing.T) {
	m := &AddressMatcher{FailOnMismatch: false}
	result, err := m.Match("203.0.113.200", net.ParseIP("203.0.113.7"))
	if err != nil {
		t.Errorf("mismatch under lenient policy should not error, got %v", err)
	}
	if result != MatchRejected {
		t.Errorf("expected rejected, got %v", result)
	}
}

// TestAddressMatcher_UnresolvableLenient verifies an unresolvable host is indeterminate and accepted leniently.
func TestAddressMatcher_UnresolvableLenient(t *testing.T) {
	m := &AddressMatcher{
		Resolve: func(host string) ([]net.IP, error) {
			return nil, errors.New("no such host")
		},
	}
	result, err := m.Match("nowhere.invalid", net.ParseIP("203.0.113.7"))
	if err != nil {
		t.Errorf("unresolvable under lenient policy should not error, got %v", err)
	}
	if result != MatchIndeterminate {
		t.Errorf("expected indeterminate, got %v", result)
	}
}

// TestAddressMatcher_UnresolvableStrict verifies an unresolvable host fails under strict policy.
func TestAddressMatcher_UnresolvableStrict(t *testing.T) {
	m := &AddressMatcher{
		FailOnMismatch: true,
		Resolve: func(host string) ([]net.IP, error) {
			return nil, errors.New("no such host")
		},
	}
	result, err := m.Match("nowhere.invalid", net.ParseIP("203.0.113.7"))
	if err == nil {
		t.Fatal("unresolvable under strict policy should error")
	}
	if result != MatchIndeterminate {
		t.Errorf("expected indeterminate, got %v", result)
	}
}

// TestAddressMatcher_ResolvedHost verifies a host name resolving to the client address is accepted.
func TestAddressMatcher_ResolvedHost(t *testing.T) {
	m := &AddressMatcher{
		FailOnMismatch: true,
		Resolve: func(host string) ([]net.IP, error) {
			return []net.IP{net.ParseIP("203.0.113.7")}, nil
		},
	}
	result, err := m.Match("client.example.edu", net.ParseIP("203.0.113.7"))
	if err != nil {
		t.Errorf("resolved match should not error, got %v", err)
	}
	if result != MatchAccepted {
		t.Errorf("expected accepted, got %v", result)
	}
}

// TestInRange covers the raw prefix comparison for CIDR and bare-address ranges.
func TestInRange(t *testing.T) {
	cases := []struct {
		ip    string
		cidr  string
		match bool
	}{
		{"198.51.100.7", "198.51.100.0/24", true},
		{"198.51.101.7", "198.51.100.0/24", false},
		{"198.51.100.7", "198.51.100.7", true},
		{"198.51.100.8", "198.51.100.7", false},
		{"198.51.100.129", "198.51.100.128/25", true},
		{"198.51.100.127", "198.51.100.128/25", false},
		{"2001:db8::1", "2001:db8::/32", true},
		{"2001:db9::1", "2001:db8::/32", false},
		{"198.51.100.7", "2001:db8::/32", false},
		{"198.51.100.7", "not-an-address/8", false},
		{"198.51.100.7", "198.51.100.0/bad", false},
	}
	for _, tc := range cases {
		got := inRange(net.ParseIP(tc.ip), tc.cidr)
		if got != tc.match {
			t.Errorf("inRange(%s, %s) = %v, want %v", tc.ip, tc.cidr, got, tc.match)
		}
	}
}
