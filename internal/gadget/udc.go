package gadget

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// UDCBackend drives the lunN entries exposed under the UDC class device and
// toggles soft_connect around an export.
type UDCBackend struct {
	fs Sysfs
}

func (u *UDCBackend) Name() string {
	return "udc"
}

func (u *UDCBackend) udcDir() string {
	return u.fs.path("/sys/class/udc")
}

func (u *UDCBackend) Supported() bool {
	_, err := u.findGadgetDir()
	return err == nil
}

func (u *UDCBackend) findGadgetDir() (string, error) {
	entries, err := os.ReadDir(u.udcDir())
	if err != nil {
		return "", fmt.Errorf("read udc dir: %w", err)
	}

	for _, entry := range entries {
		gadgetDir := filepath.Join(u.udcDir(), entry.Name(), "device/gadget")
		if fileExists(filepath.Join(gadgetDir, "lun0/file")) {
			return gadgetDir, nil
		}
	}

	return "", fmt.Errorf("no lun file found")
}

func (u *UDCBackend) luns(gadgetDir string) []int {
	matches, _ := filepath.Glob(filepath.Join(gadgetDir, "lun*", "file"))
	var idx []int
	for _, m := range matches {
		n, err := strconv.Atoi(strings.TrimPrefix(filepath.Base(filepath.Dir(m)), "lun"))
		if err == nil {
			idx = append(idx, n)
		}
	}
	sort.Ints(idx)
	return idx
}

func (u *UDCBackend) Export(files []string, opts Options) error {
	if err := validateMedia(files); err != nil {
		return err
	}

	gadgetDir, err := u.findGadgetDir()
	if err != nil {
		return fmt.Errorf("find lun file: %w", err)
	}

	u.fs.Logger.Info("Disconnecting USB")
	if err := u.setUSBActive(false); err != nil {
		u.fs.Logger.Warn("Failed to disconnect USB", "error", err)
	}

	defer func() {
		u.fs.Logger.Info("Reconnecting USB (cleanup)")
		if err := u.setUSBActive(true); err != nil {
			u.fs.Logger.Warn("Failed to reconnect USB", "error", err)
		}
	}()

	for i, file := range files {
		lunFile := filepath.Join(gadgetDir, fmt.Sprintf("lun%d", i), "file")
		if !fileExists(lunFile) {
			if file == "" {
				continue
			}
			return fmt.Errorf("find lun file: lun%d missing", i)
		}
		if err := u.fs.writeLUN(lunFile, file, opts); err != nil {
			return fmt.Errorf("lun%d: %w", i, err)
		}
	}

	u.fs.Logger.Info("Export verified successfully", "backend", u.Name())
	return nil
}

func (u *UDCBackend) Release() error {
	gadgetDir, err := u.findGadgetDir()
	if err != nil {
		return fmt.Errorf("find lun file: %w", err)
	}

	for _, i := range u.luns(gadgetDir) {
		u.fs.Logger.Info("Clearing LUN file", "lun", i)
		if err := u.fs.clearLUN(filepath.Join(gadgetDir, fmt.Sprintf("lun%d", i), "file")); err != nil {
			return fmt.Errorf("lun%d: %w", i, err)
		}
	}
	return nil
}

func (u *UDCBackend) Status() (*Status, error) {
	gadgetDir, err := u.findGadgetDir()
	if err != nil {
		return &Status{}, nil
	}

	var luns []LUN
	for _, i := range u.luns(gadgetDir) {
		luns = append(luns, lunStatus(i, filepath.Join(gadgetDir, fmt.Sprintf("lun%d", i), "file")))
	}
	return statusOf(luns), nil
}

func (u *UDCBackend) setUSBActive(active bool) error {
	entries, err := os.ReadDir(u.udcDir())
	if err != nil {
		return fmt.Errorf("read udc dir: %w", err)
	}

	action := "disconnect"
	if active {
		action = "connect"
	}

	for _, entry := range entries {
		softConnectFile := filepath.Join(u.udcDir(), entry.Name(), "soft_connect")
		if fileExists(softConnectFile) {
			return writeFile(softConnectFile, action)
		}
	}

	return fmt.Errorf("soft_connect not found")
}
