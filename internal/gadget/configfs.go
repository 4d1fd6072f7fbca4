package gadget

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// ConfigFSBackend builds a mass_storage function under configfs with one
// lun.N directory per exported medium.
type ConfigFSBackend struct {
	fs Sysfs
}

func (c *ConfigFSBackend) Name() string {
	return "configfs"
}

func (c *ConfigFSBackend) Supported() bool {
	mountPoint := c.fs.findMountPoint("configfs")
	if mountPoint == "" {
		return false
	}
	return dirExists(filepath.Join(mountPoint, "usb_gadget"))
}

func (c *ConfigFSBackend) Export(files []string, opts Options) error {
	if err := validateMedia(files); err != nil {
		return err
	}

	gadgetRoot, err := c.findGadgetRoot()
	if err != nil {
		return fmt.Errorf("find gadget: %w", err)
	}
	c.fs.Logger.Info("Found USB gadget", "path", gadgetRoot)

	configRoot, err := c.findConfigRoot(gadgetRoot)
	if err != nil {
		return fmt.Errorf("find config: %w", err)
	}

	restore, err := c.suspendUDC(gadgetRoot)
	if err != nil {
		return err
	}
	defer restore()

	massStorageRoot := filepath.Join(gadgetRoot, "functions", "mass_storage.0")
	if !dirExists(massStorageRoot) {
		c.fs.Logger.Info("Creating mass storage function")
		if err := os.MkdirAll(massStorageRoot, 0755); err != nil {
			return fmt.Errorf("create mass_storage function: %w", err)
		}
	}

	configLink := filepath.Join(configRoot, "mass_storage.0")
	if !pathExists(configLink) {
		c.fs.Logger.Info("Linking mass storage to config")
		if err := os.Symlink(massStorageRoot, configLink); err != nil {
			return fmt.Errorf("link mass_storage to config: %w", err)
		}
	}

	for i, file := range files {
		lunRoot := filepath.Join(massStorageRoot, fmt.Sprintf("lun.%d", i))
		if !dirExists(lunRoot) {
			if file == "" {
				continue
			}
			// lun.0 comes with the function; further luns are created on demand
			if err := os.Mkdir(lunRoot, 0755); err != nil {
				return fmt.Errorf("create lun.%d: %w", i, err)
			}
		}
		if err := writeFile(filepath.Join(lunRoot, "removable"), "1"); err != nil {
			return fmt.Errorf("set removable flag: %w", err)
		}
		if err := c.fs.writeLUN(filepath.Join(lunRoot, "file"), file, opts); err != nil {
			return fmt.Errorf("lun.%d: %w", i, err)
		}
	}

	c.fs.Logger.Info("Export verified successfully", "backend", c.Name())
	return nil
}

func (c *ConfigFSBackend) Release() error {
	gadgetRoot, err := c.findGadgetRoot()
	if err != nil {
		return fmt.Errorf("find gadget: %w", err)
	}

	restore, err := c.suspendUDC(gadgetRoot)
	if err != nil {
		return err
	}
	defer restore()

	massStorageRoot := filepath.Join(gadgetRoot, "functions", "mass_storage.0")
	for _, i := range c.luns(massStorageRoot) {
		c.fs.Logger.Info("Clearing LUN file", "lun", i)
		if err := c.fs.clearLUN(filepath.Join(massStorageRoot, fmt.Sprintf("lun.%d", i), "file")); err != nil {
			return fmt.Errorf("lun.%d: %w", i, err)
		}
	}
	return nil
}

func (c *ConfigFSBackend) Status() (*Status, error) {
	mountPoint := c.fs.findMountPoint("configfs")
	if mountPoint == "" {
		return &Status{}, nil
	}

	var luns []LUN
	gadgets, _ := filepath.Glob(filepath.Join(mountPoint, "usb_gadget", "*", "functions", "mass_storage.0"))
	for _, massStorageRoot := range gadgets {
		for _, i := range c.luns(massStorageRoot) {
			luns = append(luns, lunStatus(i, filepath.Join(massStorageRoot, fmt.Sprintf("lun.%d", i), "file")))
		}
	}
	return statusOf(luns), nil
}

func (c *ConfigFSBackend) luns(massStorageRoot string) []int {
	matches, _ := filepath.Glob(filepath.Join(massStorageRoot, "lun.*"))
	var idx []int
	for _, m := range matches {
		n, err := strconv.Atoi(strings.TrimPrefix(filepath.Base(m), "lun."))
		if err == nil {
			idx = append(idx, n)
		}
	}
	sort.Ints(idx)
	return idx
}

// suspendUDC unbinds the gadget and returns a function that binds it back.
func (c *ConfigFSBackend) suspendUDC(gadgetRoot string) (func(), error) {
	udc, err := c.getUDC(gadgetRoot)
	if err != nil {
		return nil, fmt.Errorf("get UDC: %w", err)
	}
	c.fs.Logger.Info("Current UDC controller", "udc", udc)

	c.fs.Logger.Info("Disabling UDC")
	if err := c.setUDC(gadgetRoot, ""); err != nil {
		return nil, fmt.Errorf("disable UDC: %w", err)
	}

	return func() {
		if udc != "" {
			c.fs.Logger.Info("Re-enabling UDC (cleanup)", "udc", udc)
			if err := c.setUDC(gadgetRoot, udc); err != nil {
				c.fs.Logger.Warn("Failed to re-enable UDC", "udc", udc, "error", err)
			}
		}
	}, nil
}

func (c *ConfigFSBackend) findGadgetRoot() (string, error) {
	mountPoint := c.fs.findMountPoint("configfs")
	if mountPoint == "" {
		return "", fmt.Errorf("configfs not mounted")
	}

	gadgetDir := filepath.Join(mountPoint, "usb_gadget")
	if !dirExists(gadgetDir) {
		if err := os.MkdirAll(gadgetDir, 0755); err != nil {
			return "", fmt.Errorf("create usb_gadget dir: %w", err)
		}
	}

	entries, err := os.ReadDir(gadgetDir)
	if err != nil {
		return "", fmt.Errorf("read gadget dir: %w", err)
	}

	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		gadgetPath := filepath.Join(gadgetDir, entry.Name())
		if udc, _ := readFile(filepath.Join(gadgetPath, "UDC")); udc != "" {
			return gadgetPath, nil
		}
	}

	gadgetPath := filepath.Join(gadgetDir, "g1")
	if dirExists(gadgetPath) {
		return gadgetPath, nil
	}

	c.fs.Logger.Info("Creating new USB gadget", "path", gadgetPath)
	if err := c.createGadget(gadgetPath); err != nil {
		return "", err
	}

	udcList, err := os.ReadDir(c.fs.path("/sys/class/udc"))
	if err == nil {
		for _, udc := range udcList {
			if strings.HasPrefix(udc.Name(), ".") {
				continue
			}
			if err := writeFile(filepath.Join(gadgetPath, "UDC"), udc.Name()); err == nil {
				c.fs.Logger.Info("Enabled USB gadget", "udc", udc.Name())
				break
			}
		}
	}

	return gadgetPath, nil
}

func (c *ConfigFSBackend) createGadget(gadgetPath string) error {
	product := c.fs.Product
	if product == "" {
		product = "Recovery Storage"
	}

	attrs := []struct {
		dir, name, value string
	}{
		// Linux Foundation file-backed storage gadget ids, as g_file_storage
		{"", "idVendor", "0x0525"},
		{"", "idProduct", "0xa4a5"},
		{"strings/0x409", "manufacturer", "Linux"},
		{"strings/0x409", "product", product},
		{"strings/0x409", "serialnumber", "0"},
		{"configs/c.1/strings/0x409", "configuration", "Mass Storage"},
	}
	for _, a := range attrs {
		dir := filepath.Join(gadgetPath, a.dir)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
		if err := writeFile(filepath.Join(dir, a.name), a.value); err != nil {
			return fmt.Errorf("set %s: %w", a.name, err)
		}
	}
	return nil
}

func (c *ConfigFSBackend) findConfigRoot(gadgetRoot string) (string, error) {
	configDir := filepath.Join(gadgetRoot, "configs")
	if !dirExists(configDir) {
		if err := os.MkdirAll(configDir, 0755); err != nil {
			return "", fmt.Errorf("create configs dir: %w", err)
		}
	}

	entries, err := os.ReadDir(configDir)
	if err != nil {
		return "", fmt.Errorf("read configs: %w", err)
	}

	for _, entry := range entries {
		if !strings.HasPrefix(entry.Name(), ".") {
			return filepath.Join(configDir, entry.Name()), nil
		}
	}

	return filepath.Join(configDir, "c.1"), nil
}

func (c *ConfigFSBackend) getUDC(gadgetRoot string) (string, error) {
	udc, err := readFile(filepath.Join(gadgetRoot, "UDC"))
	if os.IsNotExist(err) {
		return "", nil
	}
	return udc, err
}

func (c *ConfigFSBackend) setUDC(gadgetRoot, udc string) error {
	return writeFile(filepath.Join(gadgetRoot, "UDC"), udc)
}
