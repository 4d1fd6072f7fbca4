package system

import (
	"log/slog"
	"time"
)

// Host bundles every side-effecting collaborator of one run. All of them
// share the logger and the dry-run switch.
type Host struct {
	Logger *slog.Logger
	DryRun bool

	Runner *Runner
	Mounts *Mounts
	Disks  *Disks
	Link   *Link
	Power  *Power
	Clock  *Clock
}

// NewHost wires the collaborators. floor is the earliest acceptable clock
// time.
func NewHost(logger *slog.Logger, dryRun bool, commands map[string]string, floor time.Time) *Host {
	runner := &Runner{Commands: commands, Logger: logger, DryRun: dryRun}
	return &Host{
		Logger: logger,
		DryRun: dryRun,
		Runner: runner,
		Mounts: &Mounts{Logger: logger, DryRun: dryRun},
		Disks:  &Disks{Logger: logger, DryRun: dryRun},
		Link:   &Link{Logger: logger, DryRun: dryRun},
		Power:  &Power{Logger: logger, DryRun: dryRun},
		Clock:  &Clock{Runner: runner, Floor: floor},
	}
}

// Restore unpacks archive into dir unless this is a dry run.
func (h *Host) Restore(archive, dir string) error {
	if h.DryRun {
		h.Logger.Info("Dry run: would restore archive", "archive", archive, "dir", dir)
		return nil
	}
	h.Logger.Info("Restoring archive", "archive", archive, "dir", dir)
	return Restore(archive, dir)
}

// ReleaseTTY is ReleaseTTY unless this is a dry run.
func (h *Host) ReleaseTTY() error {
	if h.DryRun {
		return nil
	}
	return ReleaseTTY()
}
