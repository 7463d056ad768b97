//go:build linux

package netif

import (
	"encoding/binary"
	"fmt"
	"net/netip"
	"os"
	"path/filepath"
	"unsafe"

	"golang.org/x/sys/unix"
)

// N_GSM ioctls (linux/gsmmux.h).
const (
	gsmiocEnableNet  = 0x40344702
	gsmiocDisableNet = 0x4703

	gsmAdaptionRawIP = 3
	ethPIP           = 0x0800
)

type gsmNetconfig struct {
	adaption uint32
	protocol uint16
	unused2  uint16
	ifName   [unix.IFNAMSIZ]byte
	unused   [28]byte
}

type in6Ifreq struct {
	addr      [16]byte
	prefixlen uint32
	ifindex   int32
}

// Linux configures interfaces with ioctls and procfs.
type Linux struct {
	// ProcRoot replaces /proc, for tests.
	ProcRoot string
}

func (l Linux) SetAddress(iface string, addr netip.Prefix) error {
	if !addr.IsValid() {
		return fmt.Errorf("netif: invalid address %v", addr)
	}
	if addr.Addr().Is4() {
		return l.setAddress4(iface, addr)
	}
	return l.setAddress6(iface, addr)
}

func (l Linux) setAddress4(iface string, addr netip.Prefix) error {
	return withSocket(unix.AF_INET, func(fd int) error {
		ifr, err := unix.NewIfreq(iface)
		if err != nil {
			return err
		}
		a := addr.Addr().As4()
		if err := ifr.SetInet4Addr(a[:]); err != nil {
			return err
		}
		if err := unix.IoctlIfreq(fd, unix.SIOCSIFADDR, ifr); err != nil {
			return fmt.Errorf("netif: set address %s on %s: %w", addr.Addr(), iface, err)
		}
		m := [4]byte{}
		bits := addr.Bits()
		for i := range m {
			switch {
			case bits >= 8:
				m[i] = 0xff
				bits -= 8
			case bits > 0:
				m[i] = ^byte(0xff >> bits)
				bits = 0
			}
		}
		if err := ifr.SetInet4Addr(m[:]); err != nil {
			return err
		}
		if err := unix.IoctlIfreq(fd, unix.SIOCSIFNETMASK, ifr); err != nil {
			return fmt.Errorf("netif: set netmask on %s: %w", iface, err)
		}
		return nil
	})
}

func (l Linux) setAddress6(iface string, addr netip.Prefix) error {
	return withSocket(unix.AF_INET6, func(fd int) error {
		idx, err := ifIndex(fd, iface)
		if err != nil {
			return err
		}
		req := in6Ifreq{
			addr:      addr.Addr().As16(),
			prefixlen: uint32(addr.Bits()),
			ifindex:   int32(idx),
		}
		_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), unix.SIOCSIFADDR, uintptr(unsafe.Pointer(&req)))
		if errno != 0 {
			return fmt.Errorf("netif: set address %s on %s: %w", addr.Addr(), iface, errno)
		}
		return nil
	})
}

func (l Linux) SetFlags(iface string, up, pointToPoint bool) error {
	return l.updateFlags(iface, func(flags uint16) uint16 {
		if up {
			flags |= unix.IFF_UP
		} else {
			flags &^= unix.IFF_UP
		}
		if pointToPoint {
			flags |= unix.IFF_POINTOPOINT
		}
		return flags
	})
}

func (l Linux) Down(iface string) error {
	return l.updateFlags(iface, func(flags uint16) uint16 { return flags &^ unix.IFF_UP })
}

func (l Linux) updateFlags(iface string, fn func(uint16) uint16) error {
	return withSocket(unix.AF_INET, func(fd int) error {
		ifr, err := unix.NewIfreq(iface)
		if err != nil {
			return err
		}
		if err := unix.IoctlIfreq(fd, unix.SIOCGIFFLAGS, ifr); err != nil {
			return fmt.Errorf("netif: get flags of %s: %w", iface, err)
		}
		ifr.SetUint16(fn(ifr.Uint16()))
		if err := unix.IoctlIfreq(fd, unix.SIOCSIFFLAGS, ifr); err != nil {
			return fmt.Errorf("netif: set flags of %s: %w", iface, err)
		}
		return nil
	})
}

func (l Linux) SetMTU(iface string, mtu int) error {
	return withSocket(unix.AF_INET, func(fd int) error {
		ifr, err := unix.NewIfreq(iface)
		if err != nil {
			return err
		}
		ifr.SetUint32(uint32(mtu))
		if err := unix.IoctlIfreq(fd, unix.SIOCSIFMTU, ifr); err != nil {
			return fmt.Errorf("netif: set mtu %d on %s: %w", mtu, iface, err)
		}
		return nil
	})
}

// SetIPv6DAD toggles duplicate address detection through
// net/ipv6/conf/<iface>/{accept_dad,dad_transmits}.
func (l Linux) SetIPv6DAD(iface string, enabled bool) error {
	root := l.ProcRoot
	if root == "" {
		root = "/proc"
	}
	v := "0"
	if enabled {
		v = "1"
	}
	dir := filepath.Join(root, "sys", "net", "ipv6", "conf", iface)
	for _, name := range []string{"accept_dad", "dad_transmits"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(v), 0o644); err != nil {
			return fmt.Errorf("netif: %s: %w", name, err)
		}
	}
	return nil
}

func withSocket(family int, fn func(fd int) error) error {
	fd, err := unix.Socket(family, unix.SOCK_DGRAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return fmt.Errorf("netif: socket: %w", err)
	}
	defer unix.Close(fd)
	return fn(fd)
}

func ifIndex(fd int, iface string) (int, error) {
	ifr, err := unix.NewIfreq(iface)
	if err != nil {
		return 0, err
	}
	if err := unix.IoctlIfreq(fd, unix.SIOCGIFINDEX, ifr); err != nil {
		return 0, fmt.Errorf("netif: index of %s: %w", iface, err)
	}
	return int(ifr.Uint32()), nil
}

// GSMMux drives the N_GSM line discipline of a mux tty.
type GSMMux struct{}

func (GSMMux) EnableNet(device, iface string) (int, error) {
	if len(iface) >= unix.IFNAMSIZ {
		return 0, fmt.Errorf("netif: interface name %q too long", iface)
	}
	cfg := gsmNetconfig{adaption: gsmAdaptionRawIP, protocol: htons(ethPIP)}
	copy(cfg.ifName[:], iface)

	var idx int
	err := withDevice(device, func(fd uintptr) error {
		r, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, gsmiocEnableNet, uintptr(unsafe.Pointer(&cfg)))
		if errno != 0 {
			return errno
		}
		idx = int(r)
		return nil
	})
	return idx, err
}

func (GSMMux) DisableNet(device string) error {
	return withDevice(device, func(fd uintptr) error {
		if _, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, gsmiocDisableNet, 0); errno != 0 {
			return errno
		}
		return nil
	})
}

func withDevice(device string, fn func(fd uintptr) error) error {
	f, err := os.OpenFile(device, os.O_RDWR|unix.O_NOCTTY, 0)
	if err != nil {
		return err
	}
	defer f.Close()
	return fn(f.Fd())
}

func htons(v uint16) uint16 {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	return binary.NativeEndian.Uint16(b[:])
}
