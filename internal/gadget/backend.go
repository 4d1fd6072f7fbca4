// Package gadget exports block devices to a USB host through the kernel's
// mass-storage gadget. Three sysfs layouts are supported: the legacy
// g_file_storage LUN files, configfs and the UDC class directory.
package gadget

import (
	"fmt"
	"log/slog"
	"strings"
)

// Options apply to every LUN of one export.
type Options struct {
	ReadOnly bool
}

// LUN is one logical unit as reported by Status.
type LUN struct {
	Index    int
	File     string
	ReadOnly bool
}

type Status struct {
	Exported bool
	LUNs     []LUN
}

func (s *Status) String() string {
	if !s.Exported {
		return "not exported"
	}
	var parts []string
	for _, l := range s.LUNs {
		if l.File == "" {
			continue
		}
		mode := "rw"
		if l.ReadOnly {
			mode = "ro"
		}
		parts = append(parts, fmt.Sprintf("lun%d=%s (%s)", l.Index, l.File, mode))
	}
	return strings.Join(parts, ", ")
}

// Backend is one sysfs layout.
type Backend interface {
	Name() string
	Supported() bool

	// Export puts files[i] on LUN i. An empty entry leaves that LUN
	// without a medium.
	Export(files []string, opts Options) error

	// Release ejects every LUN.
	Release() error

	Status() (*Status, error)
}

// Sysfs is shared by every backend. Root prefixes every absolute path and
// is empty on a real device.
type Sysfs struct {
	Root   string
	Logger *slog.Logger

	// LegacyDir is where g_file_storage creates its gadget-lunN entries.
	LegacyDir string

	// Product names the configfs gadget when one has to be created.
	Product string
}

// Backends returns every backend in probe order.
func Backends(fs Sysfs) []Backend {
	return []Backend{
		&LegacyBackend{fs: fs},
		&ConfigFSBackend{fs: fs},
		&UDCBackend{fs: fs},
	}
}

// Select returns the named backend, or the first supported one when force
// is empty.
func Select(fs Sysfs, force string) (Backend, error) {
	backends := Backends(fs)

	if force != "" {
		for _, b := range backends {
			if b.Name() == force {
				if !b.Supported() {
					return nil, fmt.Errorf("backend %s not supported on this device", force)
				}
				return b, nil
			}
		}
		return nil, fmt.Errorf("unknown backend: %s\nHint: use legacy, configfs or udc", force)
	}

	for _, b := range backends {
		if b.Supported() {
			fs.Logger.Info("Selected backend", "backend", b.Name())
			return b, nil
		}
	}

	return nil, fmt.Errorf("no supported USB gadget backend found\nHint: load g_file_storage first")
}
