package system

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

// Clock keeps the system time sane on a board whose RTC may have lost power.
type Clock struct {
	Runner *Runner

	// Floor is the earliest plausible time, normally the build time.
	Floor time.Time

	// Now and Set default to the system clock.
	Now func() time.Time
	Set func(time.Time) error
}

func (c *Clock) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

func (c *Clock) set(t time.Time) error {
	if c.Set != nil {
		return c.Set(t)
	}
	if c.Runner.DryRun {
		c.Runner.Logger.Info("Dry run: would set clock", "time", t)
		return nil
	}
	tv := unix.NsecToTimeval(t.UnixNano())
	return unix.Settimeofday(&tv)
}

// Load reads the RTC into the system clock and, when the result is older
// than Floor, moves the clock forward to Floor and saves it back.
func (c *Clock) Load(ctx context.Context) error {
	c.Runner.Try(ctx, "hwclock-load", nil)

	if c.Floor.IsZero() || !c.now().Before(c.Floor) {
		return nil
	}

	c.Runner.Logger.Info("Clock behind build time", "now", c.now(), "floor", c.Floor)
	if err := c.set(c.Floor); err != nil {
		return fmt.Errorf("set clock: %w", err)
	}
	return c.Save(ctx)
}

// Save writes the system clock to the RTC.
func (c *Clock) Save(ctx context.Context) error {
	return c.Runner.Run(ctx, "hwclock-save", nil)
}
