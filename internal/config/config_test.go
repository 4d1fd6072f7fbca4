package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"recovery/internal/buttons"
	"recovery/internal/dispatch"
	"recovery/internal/pending"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "recovery.json")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaultValidates(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}

	ids, err := cfg.MenuTemplate()
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(ids, dispatch.DefaultTemplate) {
		t.Errorf("got %v, want %v", ids, dispatch.DefaultTemplate)
	}

	p, err := cfg.ButtonProfile()
	if err != nil {
		t.Fatal(err)
	}
	if p.Name != buttons.RetroFW.Name {
		t.Errorf("got profile %s", p.Name)
	}

	markers := cfg.MarkerPaths()
	if markers[pending.FsckPending] != "/boot/.fsck" || len(markers) != 3 {
		t.Errorf("unexpected markers: %v", markers)
	}

	stages := cfg.NextStages()
	if len(stages) != 4 || !stages[0].Script || stages[3].Script || stages[3].Path != "/usr/bin/gmenu2x" {
		t.Errorf("unexpected stages: %+v", stages)
	}
}

func TestLoadOverridesOnlyNamedFields(t *testing.T) {
	path := writeConfig(t, `{
		"devices": {"external": "/dev/sdb"},
		"gadget": {"backend": "configfs"},
		"menu": ["storage", "reboot", "poweroff"]
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Devices.External != "/dev/sdb" {
		t.Errorf("external: got %s", cfg.Devices.External)
	}
	if cfg.Devices.Internal != "/dev/mmcblk0" || cfg.Devices.ResizeStart != 342016 {
		t.Errorf("defaults lost: %+v", cfg.Devices)
	}
	if cfg.Gadget.Backend != "configfs" {
		t.Errorf("backend: got %s", cfg.Gadget.Backend)
	}
	if want := []string{"storage", "reboot", "poweroff"}; !reflect.DeepEqual(cfg.Menu, want) {
		t.Errorf("menu: got %v", cfg.Menu)
	}
	if cfg.Commands["fsck"] == "" {
		t.Error("default commands lost")
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("RECOVERY_DEVICES_EXTERNAL", "/dev/mmcblk2")
	t.Setenv("RECOVERY_DRY_RUN", "true")
	t.Setenv("RECOVERY_DEVICES_RESIZE_START", "4096")

	cfg, err := Load(writeConfig(t, `{"devices": {"external": "/dev/sdb"}}`))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Devices.External != "/dev/mmcblk2" {
		t.Errorf("env should win over file, got %s", cfg.Devices.External)
	}
	if !cfg.DryRun {
		t.Error("dry run not set from env")
	}
	if cfg.Devices.ResizeStart != 4096 {
		t.Errorf("resize start: got %d", cfg.Devices.ResizeStart)
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected error for missing explicit file")
	}
	if _, err := Load(writeConfig(t, `{not json`)); err == nil {
		t.Error("expected parse error")
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"relative path", func(c *Config) { c.Devices.Data = "mmcblk0p2" }, "absolute"},
		{"empty marker", func(c *Config) { c.Markers.Fsck = "" }, "markers.fsck"},
		{"backend", func(c *Config) { c.Gadget.Backend = "android" }, "invalid backend"},
		{"label", func(c *Config) { c.Devices.DataLabel = "TWELVE_CHARS" }, "label"},
		{"display", func(c *Config) { c.Display.FontSize = 0 }, "display"},
		{"menu", func(c *Config) { c.Menu = []string{"storage", "telnet"} }, "telnet"},
		{"profile", func(c *Config) { c.Profile = "gameboy" }, "gameboy"},
		{"command", func(c *Config) { delete(c.Commands, "mdev") }, "mdev"},
		{"pin button", func(c *Config) {
			c.Hardware.Pins = []Pin{{Button: "Turbo", Offset: 0x10, Bit: 1}}
		}, "Turbo"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestCustomHardwareProfile(t *testing.T) {
	cfg := Default()
	cfg.Profile = "custom"
	cfg.Hardware = Hardware{
		Base: buttons.RetroFW.Base,
		Size: buttons.RetroFW.Size,
		Keys: map[string]string{"A": "Left Ctrl"},
	}
	for _, p := range buttons.RetroFW.Pins {
		cfg.Hardware.Pins = append(cfg.Hardware.Pins, Pin{
			Button:    p.Button.String(),
			Offset:    p.Offset,
			Bit:       p.Bit,
			ActiveLow: p.ActiveLow,
		})
	}

	p, err := cfg.ButtonProfile()
	if err != nil {
		t.Fatal(err)
	}
	if p.Name != "custom" || len(p.Pins) != len(buttons.RetroFW.Pins) {
		t.Errorf("unexpected profile: %+v", p)
	}
	if p.Keys[buttons.A] != "Left Ctrl" {
		t.Errorf("keys: %v", p.Keys)
	}
}
