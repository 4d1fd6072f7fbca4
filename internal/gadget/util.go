package gadget

import (
	"bufio"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

func (s Sysfs) path(p string) string {
	if s.Root == "" {
		return p
	}
	return filepath.Join(s.Root, p)
}

func (s Sysfs) findMountPoint(fsType string) string {
	file, err := os.Open(s.path("/proc/mounts"))
	if err == nil {
		defer file.Close()

		scanner := bufio.NewScanner(file)
		for scanner.Scan() {
			fields := strings.Fields(scanner.Text())
			if len(fields) >= 3 && fields[2] == fsType {
				return s.path(fields[1])
			}
		}
	}

	if fsType == "configfs" && dirExists(s.path("/sys/kernel/config/usb_gadget")) {
		return s.path("/sys/kernel/config")
	}
	return ""
}

func readFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content+"\n"), 0644)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func pathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// validateMedium accepts a block device or a non-empty regular file.
func validateMedium(path string) error {
	if !filepath.IsAbs(path) {
		return fmt.Errorf("medium path must be absolute: %s", path)
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("medium does not exist: %s", path)
		}
		return fmt.Errorf("cannot access medium: %w", err)
	}

	m := info.Mode()
	switch {
	case m&fs.ModeDevice != 0 && m&fs.ModeCharDevice == 0:
		return nil
	case m.IsRegular():
		if info.Size() == 0 {
			return fmt.Errorf("medium is empty: %s", path)
		}
		return nil
	}
	return fmt.Errorf("medium is neither a block device nor a file: %s", path)
}

func validateMedia(files []string) error {
	for _, f := range files {
		if f == "" {
			continue
		}
		if err := validateMedium(f); err != nil {
			return err
		}
	}
	return nil
}

func verifyExport(lunFile, expectedPath string) error {
	exported, err := readFile(lunFile)
	if err != nil {
		return fmt.Errorf("failed to read LUN file: %w", err)
	}
	if exported != expectedPath {
		return fmt.Errorf("expected %s, got %s", expectedPath, exported)
	}
	return nil
}

func verifyRelease(lunFile string) error {
	content, err := readFile(lunFile)
	if err != nil {
		return err
	}
	if content != "" {
		return fmt.Errorf("LUN file not empty")
	}
	return nil
}

// writeLUN clears the LUN, sets ro if the attribute exists and loads file.
func (s Sysfs) writeLUN(lunFile, file string, opts Options) error {
	if err := writeFile(lunFile, ""); err != nil {
		return fmt.Errorf("clear lun file: %w", err)
	}
	if file == "" {
		return nil
	}

	roFile := filepath.Join(filepath.Dir(lunFile), "ro")
	if fileExists(roFile) {
		roValue := "0"
		if opts.ReadOnly {
			roValue = "1"
		}
		if err := writeFile(roFile, roValue); err != nil {
			return fmt.Errorf("set ro flag: %w", err)
		}
	}

	s.Logger.Info("Writing medium path to LUN", "lun", lunFile, "medium", file)
	if err := writeFile(lunFile, file); err != nil {
		return fmt.Errorf("export medium: %w", err)
	}
	if err := verifyExport(lunFile, file); err != nil {
		return fmt.Errorf("verify export: %w", err)
	}
	return nil
}

func (s Sysfs) clearLUN(lunFile string) error {
	if err := writeFile(lunFile, ""); err != nil {
		return fmt.Errorf("clear lun file: %w", err)
	}
	if err := verifyRelease(lunFile); err != nil {
		return fmt.Errorf("verify release: %w", err)
	}
	return nil
}

func lunStatus(index int, lunFile string) LUN {
	file, _ := readFile(lunFile)
	ro, _ := readFile(filepath.Join(filepath.Dir(lunFile), "ro"))
	return LUN{Index: index, File: file, ReadOnly: ro == "1"}
}

func statusOf(luns []LUN) *Status {
	st := &Status{LUNs: luns}
	for _, l := range luns {
		if l.File != "" {
			st.Exported = true
		}
	}
	return st
}
