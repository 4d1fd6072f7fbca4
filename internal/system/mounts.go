package system

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/shirou/gopsutil/v3/disk"
	"github.com/u-root/u-root/pkg/mount"
	"golang.org/x/sys/unix"
)

// Mounts remounts and force-unmounts filesystems.
type Mounts struct {
	Logger *slog.Logger
	DryRun bool

	// List returns the mount table. Defaults to gopsutil.
	List func() ([]disk.PartitionStat, error)
}

func (m *Mounts) table() ([]disk.PartitionStat, error) {
	if m.List != nil {
		return m.List()
	}
	return disk.Partitions(true)
}

// Remount changes dir between read-only and read-write in place.
func (m *Mounts) Remount(dir string, readOnly bool) error {
	flags := uintptr(unix.MS_REMOUNT)
	if readOnly {
		flags |= unix.MS_RDONLY
	}
	if m.DryRun {
		m.Logger.Info("Dry run: would remount", "dir", dir, "readonly", readOnly)
		return nil
	}
	if _, err := mount.Mount("", dir, "", "", flags); err != nil {
		return fmt.Errorf("remount %s: %w", dir, err)
	}
	return nil
}

// Writable remounts dir read-write and returns the function that puts it
// back to read-only.
func (m *Mounts) Writable(dir string) (func() error, error) {
	if err := m.Remount(dir, false); err != nil {
		return nil, err
	}
	return func() error { return m.Remount(dir, true) }, nil
}

// Unmount force-lazily unmounts every mount whose source device or mount
// point is one of targets. Targets that are not mounted are skipped.
func (m *Mounts) Unmount(targets ...string) error {
	want := make(map[string]bool, len(targets))
	for _, t := range targets {
		want[t] = true
	}

	table, err := m.table()
	if err != nil {
		return fmt.Errorf("read mount table: %w", err)
	}

	var errs []error
	for _, p := range table {
		if !want[p.Device] && !want[p.Mountpoint] {
			continue
		}
		if m.DryRun {
			m.Logger.Info("Dry run: would unmount", "device", p.Device, "path", p.Mountpoint)
			continue
		}
		m.Logger.Info("Unmounting", "device", p.Device, "path", p.Mountpoint)
		if err := mount.Unmount(p.Mountpoint, true, true); err != nil {
			errs = append(errs, fmt.Errorf("unmount %s: %w", p.Mountpoint, err))
		}
	}
	return errors.Join(errs...)
}

// UnmountDisk unmounts disk and every one of its partitions.
func (m *Mounts) UnmountDisk(diskPath string) error {
	return m.Unmount(append([]string{diskPath}, Partitions(diskPath)...)...)
}
