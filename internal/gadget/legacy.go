package gadget

import (
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

const defaultLegacyDir = "/sys/devices/platform/musb_hdrc.0/gadget"

// LegacyBackend drives the gadget-lunN/file entries g_file_storage creates
// under the musb controller.
type LegacyBackend struct {
	fs Sysfs
}

func (l *LegacyBackend) Name() string {
	return "legacy"
}

func (l *LegacyBackend) dir() string {
	if l.fs.LegacyDir != "" {
		return l.fs.path(l.fs.LegacyDir)
	}
	return l.fs.path(defaultLegacyDir)
}

func (l *LegacyBackend) Supported() bool {
	return fileExists(l.lunFile(0))
}

func (l *LegacyBackend) lunFile(i int) string {
	return filepath.Join(l.dir(), fmt.Sprintf("gadget-lun%d", i), "file")
}

func (l *LegacyBackend) luns() []int {
	matches, _ := filepath.Glob(filepath.Join(l.dir(), "gadget-lun*", "file"))
	var idx []int
	for _, m := range matches {
		n, err := strconv.Atoi(strings.TrimPrefix(filepath.Base(filepath.Dir(m)), "gadget-lun"))
		if err == nil {
			idx = append(idx, n)
		}
	}
	sort.Ints(idx)
	return idx
}

func (l *LegacyBackend) Export(files []string, opts Options) error {
	if err := validateMedia(files); err != nil {
		return err
	}

	for i, file := range files {
		lunFile := l.lunFile(i)
		if !fileExists(lunFile) {
			if file == "" {
				continue
			}
			return fmt.Errorf("find lun file: gadget-lun%d missing\nHint: load g_file_storage with enough luns", i)
		}
		if err := l.fs.writeLUN(lunFile, file, opts); err != nil {
			return fmt.Errorf("lun%d: %w", i, err)
		}
	}

	l.fs.Logger.Info("Export verified successfully", "backend", l.Name())
	return nil
}

func (l *LegacyBackend) Release() error {
	luns := l.luns()
	if len(luns) == 0 {
		return fmt.Errorf("find lun file: no gadget-lun entries in %s", l.dir())
	}
	for _, i := range luns {
		l.fs.Logger.Info("Clearing LUN file", "lun", i)
		if err := l.fs.clearLUN(l.lunFile(i)); err != nil {
			return fmt.Errorf("lun%d: %w", i, err)
		}
	}
	return nil
}

func (l *LegacyBackend) Status() (*Status, error) {
	var luns []LUN
	for _, i := range l.luns() {
		luns = append(luns, lunStatus(i, l.lunFile(i)))
	}
	return statusOf(luns), nil
}
