// Package ipaddr converts the modem's dotted-decimal-of-bytes address
// encoding into standard IPv4 and IPv6 text forms.
//
// The modem reports every address as bytes joined by dots: 4 components
// for IPv4, 16 for IPv6, and 20 for a dual-stack pair (IPv4 first).
package ipaddr

import (
	"errors"
	"fmt"
	"net/netip"
	"strconv"
	"strings"
)

var (
	ErrComponentCount = errors.New("ipaddr: unexpected component count")
	ErrComponentRange = errors.New("ipaddr: component out of range")
	ErrNotIPv4        = errors.New("ipaddr: not an IPv4 address")
	ErrNotIPv6        = errors.New("ipaddr: not an IPv6 address")
)

// Decode converts raw into its display forms. Either result may be empty,
// and both are empty whenever err is non-nil.
func Decode(raw string) (v4, v6 string, err error) {
	raw = strings.TrimSpace(strings.Trim(strings.TrimSpace(raw), `"`))
	parts := strings.Split(raw, ".")

	switch len(parts) {
	case 4, 16, 20:
	default:
		return "", "", fmt.Errorf("%w: %d in %q", ErrComponentCount, len(parts), raw)
	}

	b := make([]byte, len(parts))
	for i, p := range parts {
		n, err := strconv.ParseUint(p, 10, 8)
		if err != nil {
			return "", "", fmt.Errorf("%w: component %d %q", ErrComponentRange, i, p)
		}
		b[i] = byte(n)
	}

	switch len(b) {
	case 4:
		return raw, "", nil
	case 16:
		return "", render6(b), nil
	default:
		return strings.Join(parts[:4], "."), render6(b[4:]), nil
	}
}

func render6(b []byte) string {
	return netip.AddrFrom16([16]byte(b)).String()
}

// DecodeAddr accepts either the dotted-bytes encoding or an address that
// is already in standard text form, as some firmware reports DNS servers.
func DecodeAddr(s string) (v4, v6 string, err error) {
	s = strings.TrimSpace(strings.Trim(strings.TrimSpace(s), `"`))
	if strings.Contains(s, ":") {
		a, err := netip.ParseAddr(s)
		if err != nil || !a.Is6() {
			return "", "", fmt.Errorf("%w: %q", ErrNotIPv6, s)
		}
		return "", a.String(), nil
	}
	return Decode(s)
}

// Gateway derives the synthetic default gateway of an IPv4 host address:
// the first host of its /24.
func Gateway(v4 string) (string, error) {
	a, err := netip.ParseAddr(v4)
	if err != nil || !a.Is4() {
		return "", fmt.Errorf("%w: %q", ErrNotIPv4, v4)
	}
	b := a.As4()
	b[3] = 1
	return netip.AddrFrom4(b).String(), nil
}

// LinkLocal combines fe80::/64 with the low 64 bits of v6.
func LinkLocal(v6 string) (string, error) {
	a, err := netip.ParseAddr(v6)
	if err != nil || !a.Is6() || a.Is4In6() {
		return "", fmt.Errorf("%w: %q", ErrNotIPv6, v6)
	}
	b := a.As16()
	ll := [16]byte{0xfe, 0x80}
	copy(ll[8:], b[8:])
	return netip.AddrFrom16(ll).String(), nil
}
