package system

import (
	"fmt"
	"log/slog"

	"golang.org/x/sys/unix"
)

// Power flushes disks and restarts or halts the machine.
type Power struct {
	Logger *slog.Logger
	DryRun bool
}

func (p *Power) Sync() {
	if p.DryRun {
		p.Logger.Info("Dry run: would sync")
		return
	}
	unix.Sync()
}

func (p *Power) Reboot() error {
	return p.reboot("reboot", unix.LINUX_REBOOT_CMD_RESTART)
}

func (p *Power) PowerOff() error {
	return p.reboot("power off", unix.LINUX_REBOOT_CMD_POWER_OFF)
}

// reboot only returns on failure or in a dry run.
func (p *Power) reboot(what string, cmd int) error {
	p.Sync()
	if p.DryRun {
		p.Logger.Info("Dry run: would " + what)
		return nil
	}
	p.Logger.Info("Rebooting", "action", what)
	if err := unix.Reboot(cmd); err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	return nil
}
