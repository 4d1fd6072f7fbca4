package system

import (
	"fmt"
	"log/slog"

	"github.com/vishvananda/netlink"
)

// Link configures the USB network interface.
type Link struct {
	Logger *slog.Logger
	DryRun bool
}

// Up cycles iface down, assigns addr (CIDR) and brings it back up.
func (l *Link) Up(iface, addr string) error {
	a, err := netlink.ParseAddr(addr)
	if err != nil {
		return fmt.Errorf("parse address %s: %w", addr, err)
	}

	if l.DryRun {
		l.Logger.Info("Dry run: would configure link", "iface", iface, "addr", addr)
		return nil
	}

	link, err := netlink.LinkByName(iface)
	if err != nil {
		return fmt.Errorf("find link %s: %w\nHint: is g_ether loaded?", iface, err)
	}

	if err := netlink.LinkSetDown(link); err != nil {
		return fmt.Errorf("set %s down: %w", iface, err)
	}
	if err := netlink.AddrReplace(link, a); err != nil {
		return fmt.Errorf("assign %s to %s: %w", addr, iface, err)
	}
	if err := netlink.LinkSetUp(link); err != nil {
		return fmt.Errorf("set %s up: %w", iface, err)
	}

	l.Logger.Info("Link up", "iface", iface, "addr", addr)
	return nil
}
