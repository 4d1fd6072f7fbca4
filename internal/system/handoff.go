package system

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// Handoff replaces the process image with path. On success it never
// returns; in a dry run it logs and returns nil.
func (h *Host) Handoff(path string, argv []string) error {
	if h.DryRun {
		h.Logger.Info("Dry run: would exec", "path", path, "argv", argv)
		return nil
	}
	h.Logger.Info("Handing off", "path", path, "argv", argv)
	if err := unix.Exec(path, argv, os.Environ()); err != nil {
		return fmt.Errorf("exec %s: %w", path, err)
	}
	return nil
}
