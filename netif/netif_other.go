//go:build !linux

package netif

import "net/netip"

// Linux is unavailable on this platform; every call fails.
type Linux struct {
	ProcRoot string
}

func (Linux) SetAddress(string, netip.Prefix) error { return ErrUnsupported }
func (Linux) SetFlags(string, bool, bool) error { return ErrUnsupported }
func (Linux) SetMTU(string, int) error { return ErrUnsupported }
func (Linux) SetIPv6DAD(string, bool) error { return ErrUnsupported }
func (Linux) Down(string) error { return ErrUnsupported }

type GSMMux struct{}

func (GSMMux) EnableNet(string, string) (int, error) { return 0, ErrUnsupported }
func (GSMMux) DisableNet(string) error { return ErrUnsupported }
