package recovery

import (
	"context"
	"errors"
	"fmt"

	"recovery/internal/confirm"
	"recovery/internal/display"
	"recovery/internal/gadget"
	"recovery/internal/mode"
	"recovery/internal/pending"
	"recovery/internal/system"
)

// footer shown while a mode waits for the user to leave it
const exitFooter = "SELECT: EXIT"

var pleaseWait = []string{"This may take several minutes", "Please wait..."}

func (s *Session) page(title, footer string) *display.Page {
	return display.NewPage(s.Canvas, title, footer)
}

// Fsck checks the cards and reboots. On the first boot after a data reset
// the marker is cleared and the external card is left alone.
func (s *Session) Fsck(ctx context.Context) error {
	p := s.page(mode.FilesystemCheck.Title(), "").Line("Checking file system").Lines(pleaseWait...)
	if err := p.Show(); err != nil {
		return err
	}

	var errs []error
	if s.Flags.Set(pending.FsckPending) {
		s.Logger.Info("First boot, skipping external card check")
		s.Flags.Clear(pending.FsckPending)
	} else if s.HasSecondary() {
		part := system.LastPartition(s.Config.Devices.External)
		errs = append(errs, s.Host.Runner.Run(ctx, "fsck", system.Vars{"Device": part}))
	}

	data := s.Config.Devices.Data
	if err := s.Host.Mounts.Unmount(data); err != nil {
		s.Logger.Warn("Failed to unmount data partition", "device", data, "error", err)
	}
	errs = append(errs, s.Host.Runner.Run(ctx, "fsck", system.Vars{"Device": data}))

	// fsck.vfat exits non-zero after repairing, so a failure is reported
	// and the reboot still happens.
	if err := errors.Join(errs...); err != nil {
		s.Logger.Warn("File system check reported problems", "error", err)
		p.Warn("Errors found, see log")
	}
	if err := p.Line("Done. Rebooting...").Show(); err != nil {
		return err
	}
	return s.Reboot()
}

// Resize appends the free space of the internal card as a new FAT32
// partition and reboots.
func (s *Session) Resize(ctx context.Context) error {
	dev := s.Config.Devices.Internal
	p := s.page(mode.PartitionResize.Title(), "").Line("Updating partition table").Lines(pleaseWait...)
	if size, err := system.Size(dev); err == nil {
		p.Line("Card size: " + system.SizeString(size))
	}
	if err := p.Show(); err != nil {
		return err
	}

	s.Flags.Clear(pending.ResizePending)

	s.Host.Power.Sync()
	targets := []string{s.Config.Home, system.LastPartition(dev)}
	targets = append(targets, system.Partitions(s.Config.Devices.External)...)
	if err := s.Host.Mounts.Unmount(targets...); err != nil {
		s.Logger.Warn("Failed to unmount before resize", "error", err)
	}

	if err := s.Host.Disks.AppendPartition(dev, s.Config.Devices.ResizeStart); err != nil {
		p.Warn("Partition update failed").Show()
		return fmt.Errorf("resize %s: %w", dev, err)
	}
	s.Host.Power.Sync()

	if err := p.Line("Done. Rebooting...").Show(); err != nil {
		return err
	}
	return s.Reboot()
}

func (s *Session) usbBackend() (gadget.Backend, error) {
	if s.backend != nil {
		return s.backend, nil
	}
	fs := s.Sysfs
	if fs.Logger == nil {
		fs.Logger = s.Logger
	}
	b, err := gadget.Select(fs, s.Config.Gadget.Backend)
	if err != nil {
		return nil, err
	}
	s.backend = b
	return b, nil
}

// media returns the LUN files: the external card's last partition on LUN 0
// and the internal card's on LUN 1.
func (s *Session) media() []string {
	files := []string{"", system.LastPartition(s.Config.Devices.Internal)}
	if s.HasSecondary() {
		files[0] = system.LastPartition(s.Config.Devices.External)
	}
	return files
}

// Storage exports the cards to the USB host until SELECT is pressed.
func (s *Session) Storage(ctx context.Context) error {
	p := s.page(mode.UsbStorage.Title(), exitFooter).Lines(
		"- Mount the device to copy files",
		"- Safely remove the USB drive",
		"- Disconnect the USB cable",
	)
	if err := p.Show(); err != nil {
		return err
	}

	r := s.Host.Runner
	r.Try(ctx, "rmmod", system.Vars{"Module": s.Config.Network.EtherModule})
	r.Try(ctx, "rmmod", system.Vars{"Module": s.Config.Network.StorageModule})
	if err := r.Run(ctx, "modprobe", system.Vars{"Module": s.Config.Network.StorageModule}); err != nil {
		return err
	}

	files := s.media()
	if s.Host.DryRun {
		s.Logger.Info("Dry run: would export", "files", files)
	} else {
		b, err := s.usbBackend()
		if err != nil {
			return err
		}
		if err := b.Export(files, gadget.Options{}); err != nil {
			return fmt.Errorf("export: %w", err)
		}
	}

	err := s.waitSelect()
	s.release()
	return err
}

// release ejects every LUN, if a backend was ever used.
func (s *Session) release() {
	if s.backend == nil {
		return
	}
	if err := s.backend.Release(); err != nil {
		s.Logger.Warn("Failed to release LUNs", "backend", s.backend.Name(), "error", err)
	}
}

// linkUp switches the USB port to the ethernet gadget and addresses it.
func (s *Session) linkUp(ctx context.Context) error {
	n := s.Config.Network
	s.Host.Runner.Try(ctx, "rmmod", system.Vars{"Module": n.StorageModule})
	if err := s.Host.Runner.Run(ctx, "modprobe", system.Vars{"Module": n.EtherModule}); err != nil {
		return err
	}
	return s.Host.Link.Up(n.Interface, n.Address)
}

// Network brings the USB network up until SELECT is pressed.
func (s *Session) Network(ctx context.Context) error {
	p := s.page(mode.UsbNetwork.Title(), exitFooter).Lines(
		"- Set up the network in your PC",
		"- FTP or Telnet to "+s.address(),
		"- Transfer files/run commands",
	)
	if err := p.Show(); err != nil {
		return err
	}
	if err := s.linkUp(ctx); err != nil {
		return err
	}
	return s.waitSelect()
}

// confirmed shows a destructive-action warning and waits on the gate.
func (s *Session) confirmed(title string, body ...string) (bool, error) {
	err := s.page(title, confirm.Footer).
		Warn("WARNING").
		Lines(body...).
		Lines("be deleted", " ").
		Warn("THIS CAN'T BE UNDONE").
		Show()
	if err != nil {
		return false, err
	}

	out, err := confirm.Gate{Input: s.Input}.Await()
	s.Logger.Info("Confirmation", "action", title, "outcome", out)
	return out == confirm.Confirmed, err
}

// FormatExternal repartitions and formats the external card after
// confirmation.
func (s *Session) FormatExternal(ctx context.Context) error {
	ok, err := s.confirmed("FORMAT EXT SD", "This will format the external", "SD card and all files will")
	if !ok || err != nil {
		return err
	}

	p := s.page("FORMAT EXT SD", "").Line("Formatting external SD card").Lines(pleaseWait...)
	if err := p.Show(); err != nil {
		return err
	}

	dev := s.Config.Devices.External
	s.Host.Power.Sync()
	if err := s.Host.Mounts.UnmountDisk(dev); err != nil {
		s.Logger.Warn("Failed to unmount external card", "error", err)
	}
	if err := s.Host.Disks.FormatCard(dev, s.Config.Devices.ExternalLabel); err != nil {
		return fmt.Errorf("format %s: %w", dev, err)
	}

	s.Host.Power.Sync()
	r := s.Host.Runner
	r.Try(ctx, "partprobe", system.Vars{"Device": dev})
	r.Try(ctx, "mdev", nil)
	r.Try(ctx, "mount-all", nil)

	return p.Line("Done.").Show()
}

// ConfirmDataReset is DataReset behind the confirmation gate.
func (s *Session) ConfirmDataReset(ctx context.Context) error {
	ok, err := s.confirmed(mode.DataReset.Title(), "This will format the data", "partition and all files will")
	if !ok || err != nil {
		return err
	}
	return s.DataReset(ctx)
}

// DataReset reformats the data partition, restores the default home
// contents and finishes with a first-boot file system check.
func (s *Session) DataReset(ctx context.Context) error {
	p := s.page(mode.DataReset.Title(), "").Line("Restoring default data").Lines(pleaseWait...)
	if err := p.Show(); err != nil {
		return err
	}

	s.Flags.Clear(pending.DataResetPending)

	data := s.Config.Devices.Data
	s.Host.Power.Sync()
	if err := s.Host.Mounts.Unmount(data); err != nil {
		s.Logger.Warn("Failed to unmount data partition", "device", data, "error", err)
	}
	if err := s.Host.Disks.FormatPartition(data, s.Config.Devices.DataLabel); err != nil {
		return fmt.Errorf("format %s: %w", data, err)
	}
	s.Host.Runner.Try(ctx, "mount-all", nil)

	if archive, ok := s.defaults(); ok {
		if err := s.Host.Restore(archive, s.Config.Home); err != nil {
			return fmt.Errorf("restore defaults: %w", err)
		}
	} else {
		s.Logger.Warn("No defaults archive found", "candidates", s.Config.Defaults)
	}

	if err := s.Flags.Mark(pending.FsckPending); err != nil {
		s.Logger.Warn("Failed to mark file system check", "error", err)
	}
	return s.Fsck(ctx)
}

func (s *Session) defaults() (string, bool) {
	for _, a := range s.Config.Defaults {
		if s.exists(a) {
			return a, true
		}
	}
	return "", false
}
