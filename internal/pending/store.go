// Package pending keeps the marker files that carry a maintenance action
// across reboots.
package pending

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
)

type Flag int

const (
	ResizePending Flag = iota
	DataResetPending
	FsckPending
)

// Order is the fixed order flags are consulted in during mode resolution.
var Order = []Flag{ResizePending, DataResetPending, FsckPending}

func (f Flag) String() string {
	switch f {
	case ResizePending:
		return "resize-pending"
	case DataResetPending:
		return "data-reset-pending"
	case FsckPending:
		return "fsck-pending"
	}
	return "unknown"
}

// Remounter makes the directory holding the markers writable for the
// duration of a change. The returned restore function puts it back.
type Remounter interface {
	Writable(dir string) (restore func() error, err error)
}

// Store maps each flag to its marker path.
type Store struct {
	Paths   map[Flag]string
	Remount Remounter
	Logger  *slog.Logger

	// Dir is the mount point containing the markers, usually /boot.
	Dir string

	// DryRun reports changes without touching the filesystem.
	DryRun bool
}

// Exists reports whether path is a regular file or a block device.
func Exists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	m := info.Mode()
	return m.IsRegular() || (m&fs.ModeDevice != 0 && m&fs.ModeCharDevice == 0)
}

// Set reports whether the flag's marker exists.
func (s *Store) Set(f Flag) bool {
	p, ok := s.Paths[f]
	return ok && Exists(p)
}

// Clear deletes the flag's marker. Failure is logged as a warning and
// returned; the marker survives and is acted on again next boot.
func (s *Store) Clear(f Flag) error {
	err := s.change(f, func(path string) error {
		err := os.Remove(path)
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	})
	if err != nil {
		s.Logger.Warn("Failed to clear pending flag", "flag", f, "error", err)
	}
	return err
}

// Mark creates the flag's marker.
func (s *Store) Mark(f Flag) error {
	return s.change(f, func(path string) error {
		return os.WriteFile(path, nil, 0644)
	})
}

func (s *Store) change(f Flag, op func(path string) error) error {
	path, ok := s.Paths[f]
	if !ok {
		return fmt.Errorf("no marker path for %s", f)
	}

	if s.DryRun {
		s.Logger.Info("Dry run: would change pending flag", "flag", f, "path", path)
		return nil
	}

	if s.Remount != nil && s.Dir != "" {
		restore, err := s.Remount.Writable(s.Dir)
		if err != nil {
			return fmt.Errorf("remount %s read-write: %w", s.Dir, err)
		}
		defer func() {
			if err := restore(); err != nil {
				s.Logger.Warn("Failed to restore mount", "dir", s.Dir, "error", err)
			}
		}()
	}

	if err := op(path); err != nil {
		return fmt.Errorf("%s %s: %w", f, path, err)
	}
	return nil
}
