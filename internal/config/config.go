// Package config loads recovery settings. Every field has a built-in default
// for the RetroFW handheld; a config file and RECOVERY_* environment
// variables override only what they name.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"recovery/internal/buttons"
	"recovery/internal/dispatch"
	"recovery/internal/mode"
	"recovery/internal/pending"
)

// DefaultPath is read when no --config is given and the file exists.
const DefaultPath = "/etc/recovery.json"

type Config struct {
	Brand   string `mapstructure:"brand"`
	Home    string `mapstructure:"home"`
	Boot    string `mapstructure:"boot"`
	Profile string `mapstructure:"profile"`
	DryRun  bool   `mapstructure:"dry_run"`

	Markers       Markers           `mapstructure:"markers"`
	Devices       Devices           `mapstructure:"devices"`
	Continuations []Continuation    `mapstructure:"continuations"`
	Swap          []string          `mapstructure:"swap"`
	Defaults      []string          `mapstructure:"defaults"`
	Network       Network           `mapstructure:"network"`
	Gadget        Gadget            `mapstructure:"gadget"`
	Display       Display           `mapstructure:"display"`
	Hardware      Hardware          `mapstructure:"hardware"`
	Menu          []string          `mapstructure:"menu"`
	Commands      map[string]string `mapstructure:"commands"`
	Env           map[string]string `mapstructure:"env"`
	Audio         Audio             `mapstructure:"audio"`
}

type Markers struct {
	Resize    string `mapstructure:"resize"`
	DataReset string `mapstructure:"data_reset"`
	Fsck      string `mapstructure:"fsck"`
}

type Devices struct {
	Internal string `mapstructure:"internal"`
	Data     string `mapstructure:"data"`
	External string `mapstructure:"external"`

	// ResizeStart is the first sector of the partition appended by resize.
	ResizeStart uint32 `mapstructure:"resize_start"`

	DataLabel     string `mapstructure:"data_label"`
	ExternalLabel string `mapstructure:"external_label"`
}

type Continuation struct {
	Path   string `mapstructure:"path"`
	Script bool   `mapstructure:"script"`
}

type Network struct {
	Interface     string `mapstructure:"interface"`
	Address       string `mapstructure:"address"`
	EtherModule   string `mapstructure:"ether_module"`
	StorageModule string `mapstructure:"storage_module"`
	Daemon        string `mapstructure:"daemon"`
}

type Gadget struct {
	Backend   string `mapstructure:"backend"`
	LegacyDir string `mapstructure:"legacy_dir"`
}

type Display struct {
	Width      int    `mapstructure:"width"`
	Height     int    `mapstructure:"height"`
	FontPath   string `mapstructure:"font_path"`
	FontSize   int    `mapstructure:"font_size"`
	Background string `mapstructure:"background"`
}

// Hardware replaces the named profile when Pins is not empty.
type Hardware struct {
	Base uint32            `mapstructure:"base"`
	Size int               `mapstructure:"size"`
	Pins []Pin             `mapstructure:"pins"`
	Keys map[string]string `mapstructure:"keys"`
}

type Pin struct {
	Button    string `mapstructure:"button"`
	Offset    uint32 `mapstructure:"offset"`
	Bit       uint   `mapstructure:"bit"`
	ActiveLow bool   `mapstructure:"active_low"`
}

type Audio struct {
	Probe   string `mapstructure:"probe"`
	Present string `mapstructure:"present"`
	Absent  string `mapstructure:"absent"`
}

// Default returns the stock RetroFW configuration.
func Default() *Config {
	menu := make([]string, len(dispatch.DefaultTemplate))
	for i, id := range dispatch.DefaultTemplate {
		menu[i] = string(id)
	}

	return &Config{
		Brand:   "RetroFW",
		Home:    "/home/retrofw",
		Boot:    "/boot",
		Profile: buttons.RetroFW.Name,
		Markers: Markers{
			Resize:    "/boot/.prsz",
			DataReset: "/boot/.defl",
			Fsck:      "/boot/.fsck",
		},
		Devices: Devices{
			Internal:      "/dev/mmcblk0",
			Data:          "/dev/mmcblk0p2",
			External:      "/dev/mmcblk1",
			ResizeStart:   342016,
			DataLabel:     "RETROFW",
			ExternalLabel: "RetroFW_SD",
		},
		Continuations: []Continuation{
			{Path: "/media/sdcard/autoexec.sh", Script: true},
			{Path: "/home/retrofw/autoexec.sh", Script: true},
			{Path: "/home/retrofw/apps/gmenu2x/gmenu2x"},
			{Path: "/usr/bin/gmenu2x"},
		},
		Swap:     []string{"/root/swap.img", "/root/local/swap.img"},
		Defaults: []string{"/home/.retrofw.tar.gz", "/home/.retrofw.tar.xz"},
		Network: Network{
			Interface:     "usb0",
			Address:       "169.254.1.1/16",
			EtherModule:   "g_ether",
			StorageModule: "g_file_storage",
			Daemon:        "dnsmasq",
		},
		Gadget: Gadget{
			LegacyDir: "/sys/devices/platform/musb_hdrc.0/gadget",
		},
		Display: Display{
			Width:      320,
			Height:     240,
			FontPath:   "/usr/share/recovery/font.ttf",
			FontSize:   12,
			Background: "/usr/share/recovery/background.png",
		},
		Menu: menu,
		Commands: map[string]string{
			"fsck":         "fsck.vfat -va {{.Device}}",
			"modprobe":     "modprobe {{.Module}}",
			"rmmod":        "rmmod {{.Module}}",
			"hwclock-load": "hwclock --hctosys",
			"hwclock-save": "hwclock --systohc",
			"swapon":       "swapon{{range .Files}} '{{.}}'{{end}}",
			"mount-all":    "mount -a",
			"mdev":         "mdev -s",
			"partprobe":    "partprobe {{.Device}}",
			"killall":      "killall {{.Name}}",
			"fbcon":        "modprobe fbcon",
		},
		Env: map[string]string{
			"SDL_FBCON_DONT_CLEAR": "1",
			"SDL_NOMOUSE":          "1",
			"TERM":                 "vt100",
			"HOME":                 "/home/retrofw",
		},
		Audio: Audio{
			Probe:   "/proc/asound/cards",
			Present: "alsa",
			Absent:  "dummy",
		},
	}
}

// env-overridable scalar keys
var envKeys = []string{
	"brand", "home", "boot", "profile", "dry_run",
	"devices.internal", "devices.data", "devices.external", "devices.resize_start",
	"network.interface", "network.address",
	"gadget.backend",
	"display.font_path", "display.font_size", "display.background",
}

// Load reads path, or DefaultPath when path is empty and that file exists,
// applies RECOVERY_* overrides and validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("RECOVERY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for _, k := range envKeys {
		if err := v.BindEnv(k); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", k, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	} else {
		v.SetConfigName(strings.TrimSuffix(filepath.Base(DefaultPath), filepath.Ext(DefaultPath)))
		v.AddConfigPath(filepath.Dir(DefaultPath))
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate returns the first problem found.
func (c *Config) Validate() error {
	for name, p := range map[string]string{
		"home":               c.Home,
		"boot":               c.Boot,
		"markers.resize":     c.Markers.Resize,
		"markers.data_reset": c.Markers.DataReset,
		"markers.fsck":       c.Markers.Fsck,
		"devices.internal":   c.Devices.Internal,
		"devices.data":       c.Devices.Data,
		"devices.external":   c.Devices.External,
	} {
		if p == "" {
			return fmt.Errorf("config missing required field: %s", name)
		}
		if !filepath.IsAbs(p) {
			return fmt.Errorf("invalid %s: %s (must be an absolute path)", name, p)
		}
	}

	if len(c.Devices.DataLabel) > 11 || len(c.Devices.ExternalLabel) > 11 {
		return fmt.Errorf("invalid volume label: at most 11 characters")
	}

	if c.Gadget.Backend != "" && c.Gadget.Backend != "legacy" && c.Gadget.Backend != "configfs" && c.Gadget.Backend != "udc" {
		return fmt.Errorf("invalid backend: %s (must be legacy, configfs, or udc)", c.Gadget.Backend)
	}

	if c.Display.Width <= 0 || c.Display.Height <= 0 || c.Display.FontSize <= 0 {
		return fmt.Errorf("invalid display: %dx%d font size %d", c.Display.Width, c.Display.Height, c.Display.FontSize)
	}

	if _, err := c.MenuTemplate(); err != nil {
		return err
	}
	if _, err := c.ButtonProfile(); err != nil {
		return err
	}

	for _, name := range []string{"fsck", "modprobe", "rmmod", "hwclock-load", "hwclock-save", "swapon", "mount-all", "mdev", "partprobe", "killall", "fbcon"} {
		if strings.TrimSpace(c.Commands[name]) == "" {
			return fmt.Errorf("config missing command: %s", name)
		}
	}
	return nil
}

// MenuTemplate converts Menu to action IDs.
func (c *Config) MenuTemplate() ([]dispatch.ID, error) {
	ids := make([]dispatch.ID, len(c.Menu))
	for i, s := range c.Menu {
		id := dispatch.ID(s)
		if _, ok := dispatch.Lookup(id); !ok {
			return nil, fmt.Errorf("invalid menu entry: %s", s)
		}
		ids[i] = id
	}
	return ids, nil
}

// ButtonProfile returns the custom hardware table when one is configured,
// otherwise the named built-in profile.
func (c *Config) ButtonProfile() (buttons.Profile, error) {
	if len(c.Hardware.Pins) == 0 {
		return buttons.LookupProfile(c.Profile)
	}

	p := buttons.Profile{
		Name: c.Profile,
		Base: c.Hardware.Base,
		Size: c.Hardware.Size,
		Keys: make(map[buttons.Button]string, len(c.Hardware.Keys)),
	}
	for _, pin := range c.Hardware.Pins {
		b, ok := buttons.ParseButton(pin.Button)
		if !ok {
			return buttons.Profile{}, fmt.Errorf("hardware: unknown button %q", pin.Button)
		}
		p.Pins = append(p.Pins, buttons.Pin{Button: b, Offset: pin.Offset, Bit: pin.Bit, ActiveLow: pin.ActiveLow})
	}
	for name, key := range c.Hardware.Keys {
		b, ok := buttons.ParseButton(name)
		if !ok {
			return buttons.Profile{}, fmt.Errorf("hardware: unknown button %q", name)
		}
		p.Keys[b] = key
	}
	if err := p.Validate(); err != nil {
		return buttons.Profile{}, err
	}
	return p, nil
}

// MarkerPaths maps each pending flag to its marker file.
func (c *Config) MarkerPaths() map[pending.Flag]string {
	return map[pending.Flag]string{
		pending.ResizePending:    c.Markers.Resize,
		pending.DataResetPending: c.Markers.DataReset,
		pending.FsckPending:      c.Markers.Fsck,
	}
}

// NextStages returns the boot continuations in order.
func (c *Config) NextStages() []mode.Continuation {
	out := make([]mode.Continuation, len(c.Continuations))
	for i, k := range c.Continuations {
		out[i] = mode.Continuation{Path: k.Path, Script: k.Script}
	}
	return out
}
