// Package netif configures the network interfaces backing data sessions
// and switches multiplexer channels between command and data mode.
package netif

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/netip"

	"i4.energy/across/modemctl/modem"
)

//go:generate go tool mockgen -source=netif.go -destination=mock_netif.go -package=netif

var ErrUnsupported = errors.New("netif: not supported on this platform")

// Configurator applies interface settings.
type Configurator interface {
	SetAddress(iface string, addr netip.Prefix) error
	SetFlags(iface string, up, pointToPoint bool) error
	SetMTU(iface string, mtu int) error
	SetIPv6DAD(iface string, enabled bool) error
	Down(iface string) error
}

// MuxControl attaches and detaches a network interface to the DLCI behind
// a multiplexer device.
type MuxControl interface {
	EnableNet(device, iface string) (index int, err error)
	DisableNet(device string) error
}

// MuxSwitcher switches one mux channel between modes. In data mode the
// channel's traffic is carried by a kernel network interface.
type MuxSwitcher struct {
	Device  string
	Control MuxControl
	Logger  *slog.Logger
}

var _ modem.ModeSwitcher = (*MuxSwitcher)(nil)

func (s *MuxSwitcher) SwitchMode(ctx context.Context, mode modem.Mode, iface string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}

	switch mode {
	case modem.ModeData:
		if iface == "" {
			return fmt.Errorf("netif: interface name is required for data mode")
		}
		idx, err := s.Control.EnableNet(s.Device, iface)
		if err != nil {
			return fmt.Errorf("netif: enable net on %s: %w", s.Device, err)
		}
		logger.Info("mux network interface attached", "device", s.Device, "iface", iface, "index", idx)
		return nil
	case modem.ModeCommand:
		if err := s.Control.DisableNet(s.Device); err != nil {
			return fmt.Errorf("netif: disable net on %s: %w", s.Device, err)
		}
		logger.Info("mux network interface detached", "device", s.Device)
		return nil
	default:
		return fmt.Errorf("netif: unknown mode %v", mode)
	}
}
