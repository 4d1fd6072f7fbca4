package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"time"

	"recovery/internal/buttons"
	"recovery/internal/config"
	"recovery/internal/display/sdlscreen"
	"recovery/internal/mode"
	"recovery/internal/recovery"
	"recovery/internal/system"
)

const consolePath = "/dev/tty0"

// app is one invocation: the loaded config and the host it acts on.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	host    *system.Host
	profile buttons.Profile
}

func newApp(cfg *config.Config, logger *slog.Logger) (*app, error) {
	p, err := cfg.ButtonProfile()
	if err != nil {
		return nil, err
	}
	return &app{
		cfg:     cfg,
		logger:  logger,
		host:    system.NewHost(logger, cfg.DryRun, cfg.Commands, buildFloor()),
		profile: p,
	}, nil
}

// buildFloor is the build time, the earliest the clock may read.
func buildFloor() time.Time {
	secs, err := strconv.ParseInt(buildTime, 10, 64)
	if err != nil || secs <= 0 {
		return time.Time{}
	}
	return time.Unix(secs, 0)
}

// bootButtons reads the buttons held at boot. There is no windowed fallback
// here: the SDL window is opened only after the mode is resolved, and the
// Start path must not open it at all. A failed raw read therefore means
// nothing is held, and boot chords are unavailable on that device.
func (a *app) bootButtons() buttons.State {
	s, origin, err := buttons.Snapshot(&buttons.GPIO{Profile: a.profile}, nil)
	if err != nil {
		a.logger.Warn("Raw button read failed", "error", err)
	}
	a.logger.Info("Buttons at boot", "held", s, "origin", origin)
	return s
}

// console is where the headless path prints its banner.
func (a *app) console() (io.Writer, func()) {
	if a.cfg.DryRun {
		return os.Stdout, func() {}
	}
	f, err := os.OpenFile(consolePath, os.O_WRONLY, 0)
	if err != nil {
		a.logger.Warn("Console unavailable, using stdout", "path", consolePath, "error", err)
		return os.Stdout, func() {}
	}
	return f, func() { f.Close() }
}

func (a *app) headless(ctx context.Context, s *recovery.Session, quiet bool) error {
	w, done := a.console()
	defer done()
	return s.Headless(ctx, w, quiet)
}

func (a *app) run(ctx context.Context, req mode.Request) error {
	defer a.host.Power.Sync()

	if err := a.host.Clock.Load(ctx); err != nil {
		a.logger.Warn("Failed to load clock", "error", err)
	}

	s := recovery.NewSession(a.cfg, a.logger, a.host)
	d := mode.Resolve(req, mode.Inputs{Buttons: a.bootButtons, Flags: s.Flags})
	s.Decision = d
	a.logger.Info("Resolved", "decision", d)

	switch d.Kind {
	case mode.KindStop:
		return a.host.Clock.Save(ctx)
	case mode.KindHeadless:
		return a.headless(ctx, s, d.Quiet)
	}

	audio := system.Audio{Probe: a.cfg.Audio.Probe, Present: a.cfg.Audio.Present, Absent: a.cfg.Audio.Absent}
	if err := system.SetupEnv(a.cfg.Env, audio); err != nil {
		a.logger.Warn("Failed to set environment", "error", err)
	}
	if err := a.host.ReleaseTTY(); err != nil {
		a.logger.Warn("Failed to release console", "error", err)
	}

	if d.Mode == mode.Start {
		if h, ok := s.Start(ctx); ok {
			err := a.host.Handoff(h.Path, h.Argv)
			if err == nil {
				return nil
			}
			a.logger.Error("Next stage failed", "path", h.Path, "error", err)
		}
		next, err := d.FallBack()
		if err != nil {
			return err
		}
		d, s.Decision = next, next
	}

	scr, err := sdlscreen.Open(sdlscreen.Options{
		Width:      a.cfg.Display.Width,
		Height:     a.cfg.Display.Height,
		Brand:      a.cfg.Brand,
		FontPath:   a.cfg.Display.FontPath,
		FontSize:   a.cfg.Display.FontSize,
		Background: a.cfg.Display.Background,
		Keys:       a.profile.Keys,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Could not initialize display: %v\n", err)
		a.logger.Error("Display unavailable, falling back to headless network", "error", err)
		if herr := a.headless(ctx, s, false); herr != nil {
			a.logger.Error("Headless network failed", "error", herr)
		}
		return fmt.Errorf("display unavailable: %w", err)
	}
	defer scr.Close()

	stop := context.AfterFunc(ctx, scr.Interrupt)
	defer stop()

	s.Canvas, s.Input = scr, scr
	err = s.Run(ctx, d.Mode)
	if err != nil && ctx.Err() != nil {
		a.logger.Info("Interrupted, shutting down", "error", err)
		return nil
	}
	return err
}
