// Package recovery runs a resolved mode on the device. A Session owns every
// collaborator of one invocation and binds the dispatch actions to their
// screens.
package recovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"recovery/internal/buttons"
	"recovery/internal/config"
	"recovery/internal/dispatch"
	"recovery/internal/display"
	"recovery/internal/gadget"
	"recovery/internal/menu"
	"recovery/internal/mode"
	"recovery/internal/pending"
	"recovery/internal/system"
)

// Session is the explicit context of one run. It is created by main after
// the mode has been resolved and is never shared between goroutines.
type Session struct {
	Config   *config.Config
	Logger   *slog.Logger
	Host     *system.Host
	Flags    *pending.Store
	Decision mode.Decision

	// Canvas and Input are nil on the headless and Start paths.
	Canvas display.Canvas
	Input  buttons.Events

	// Sysfs locates the USB gadget; its Logger is filled in from Logger.
	Sysfs gadget.Sysfs

	// Exists checks continuation candidates. Defaults to pending.Exists.
	Exists func(string) bool

	backend gadget.Backend
}

// NewSession wires a session for cfg. The pending store remounts the boot
// partition through host.
func NewSession(cfg *config.Config, logger *slog.Logger, host *system.Host) *Session {
	return &Session{
		Config: cfg,
		Logger: logger,
		Host:   host,
		Flags: &pending.Store{
			Paths:   cfg.MarkerPaths(),
			Remount: host.Mounts,
			Logger:  logger,
			Dir:     cfg.Boot,
			DryRun:  host.DryRun,
		},
		Sysfs: gadget.Sysfs{
			LegacyDir: cfg.Gadget.LegacyDir,
			Product:   cfg.Brand,
		},
	}
}

func (s *Session) exists(path string) bool {
	if s.Exists != nil {
		return s.Exists(path)
	}
	return pending.Exists(path)
}

// HasSecondary reports whether the external card is inserted.
func (s *Session) HasSecondary() bool {
	return s.exists(s.Config.Devices.External)
}

// Actions binds every catalog entry to this session. Once started, an
// action runs to completion even if ctx is cancelled.
func (s *Session) Actions(ctx context.Context) map[dispatch.ID]dispatch.Action {
	ctx = context.WithoutCancel(ctx)
	return map[dispatch.ID]dispatch.Action{
		dispatch.Network:   func() error { return s.Network(ctx) },
		dispatch.Storage:   func() error { return s.Storage(ctx) },
		dispatch.Fsck:      func() error { return s.Fsck(ctx) },
		dispatch.Resize:    func() error { return s.Resize(ctx) },
		dispatch.DataReset: func() error { return s.ConfirmDataReset(ctx) },
		dispatch.FormatExt: func() error { return s.FormatExternal(ctx) },
		dispatch.Reboot:    s.Reboot,
		dispatch.PowerOff:  s.PowerOff,
	}
}

// Table builds the menu for this device.
func (s *Session) Table(ctx context.Context) (dispatch.Table, error) {
	template, err := s.Config.MenuTemplate()
	if err != nil {
		return nil, err
	}
	return dispatch.Build(template, s.Actions(ctx), s.HasSecondary())
}

// Run executes a resolved interactive mode. Single-action modes are followed
// by Cleanup; the menu runs until an action ends the session.
func (s *Session) Run(ctx context.Context, m mode.Mode) error {
	if s.Canvas == nil || s.Input == nil {
		return fmt.Errorf("mode %s needs the display", m)
	}
	s.Logger.Info("Running mode", "mode", m, "first_boot", s.Decision.FirstBoot)

	if m == mode.Menu {
		return s.Menu(ctx)
	}

	work := context.WithoutCancel(ctx)
	var err error
	switch m {
	case mode.UsbStorage:
		err = s.Storage(work)
	case mode.UsbNetwork:
		err = s.Network(work)
	case mode.PartitionResize:
		err = s.Resize(work)
	case mode.FilesystemCheck:
		err = s.Fsck(work)
	case mode.DataReset:
		err = s.DataReset(work)
	default:
		return fmt.Errorf("mode %s cannot be run", m)
	}
	if errors.Is(err, dispatch.ErrExit) {
		err = nil
	}

	s.Cleanup(work)
	return err
}

// Menu shows the recovery menu until Reboot or Power Off.
func (s *Session) Menu(ctx context.Context) error {
	table, err := s.Table(ctx)
	if err != nil {
		return fmt.Errorf("build menu: %w", err)
	}
	loop := &menu.Loop{
		Title:  mode.Menu.Title(),
		Table:  table,
		Canvas: s.Canvas,
		Input:  s.Input,
		Logger: s.Logger,
	}
	return loop.Run(ctx)
}

// Cleanup returns the USB port and the mounts to their normal state after a
// single-action mode. Every step is best effort.
func (s *Session) Cleanup(ctx context.Context) {
	s.Logger.Info("Cleaning up")
	s.release()
	s.Host.Power.Sync()

	r := s.Host.Runner
	r.Try(ctx, "killall", system.Vars{"Name": s.Config.Network.Daemon})
	r.Try(ctx, "rmmod", system.Vars{"Module": s.Config.Network.EtherModule})
	r.Try(ctx, "rmmod", system.Vars{"Module": s.Config.Network.StorageModule})
	r.Try(ctx, "mdev", nil)
	r.Try(ctx, "mount-all", nil)
}

// Reboot ends the session. It only returns when the reboot did not happen.
func (s *Session) Reboot() error {
	if err := s.Host.Power.Reboot(); err != nil {
		return err
	}
	return dispatch.ErrExit
}

func (s *Session) PowerOff() error {
	if err := s.Host.Power.PowerOff(); err != nil {
		return err
	}
	return dispatch.ErrExit
}

// waitSelect blocks until SELECT is pressed.
func (s *Session) waitSelect() error {
	for {
		st, err := s.Input.WaitKeyDown()
		if err != nil {
			return err
		}
		if st.Pressed(buttons.Select) {
			return nil
		}
	}
}
