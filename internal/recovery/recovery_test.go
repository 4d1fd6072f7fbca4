package recovery

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/shirou/gopsutil/v3/disk"

	"recovery/internal/buttons"
	"recovery/internal/config"
	"recovery/internal/dispatch"
	"recovery/internal/display"
	"recovery/internal/mode"
	"recovery/internal/system"
)

type keys struct {
	script []buttons.State
	before func()
}

func (k *keys) WaitKeyDown() (buttons.State, error) {
	if k.before != nil {
		k.before()
	}
	if len(k.script) == 0 {
		return buttons.State{}, buttons.ErrClosed
	}
	s := k.script[0]
	k.script = k.script[1:]
	return s, nil
}

type shell struct {
	calls []string
	fail  string
}

func (sh *shell) exec(_ context.Context, argv []string) ([]byte, error) {
	sh.calls = append(sh.calls, strings.Join(argv, " "))
	if argv[0] == sh.fail {
		return []byte("dirty bit set"), errors.New("exit status 1")
	}
	return nil, nil
}

func (sh *shell) ran(call string) bool {
	for _, c := range sh.calls {
		if c == call {
			return true
		}
	}
	return false
}

type fixture struct {
	s     *Session
	rec   *display.Recorder
	sh    *shell
	dir   string
	input *keys
}

func touch(t *testing.T, path, body string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
}

// newFixture lays out two cards as plain files and a legacy gadget under a
// temp root. Disk, mount, link and power operations are dry runs; commands
// are recorded.
func newFixture(t *testing.T, input ...buttons.State) *fixture {
	t.Helper()
	dir := t.TempDir()
	dev := filepath.Join(dir, "dev")

	cfg := config.Default()
	cfg.Boot = filepath.Join(dir, "boot")
	cfg.Home = filepath.Join(dir, "home")
	cfg.Markers = config.Markers{
		Resize:    filepath.Join(cfg.Boot, ".prsz"),
		DataReset: filepath.Join(cfg.Boot, ".defl"),
		Fsck:      filepath.Join(cfg.Boot, ".fsck"),
	}
	cfg.Devices.Internal = filepath.Join(dev, "mmcblk0")
	cfg.Devices.Data = filepath.Join(dev, "mmcblk0p2")
	cfg.Devices.External = filepath.Join(dev, "mmcblk1")
	cfg.Swap = []string{filepath.Join(dir, "swap.img")}
	cfg.Defaults = []string{filepath.Join(dir, ".retrofw.tar.gz")}
	cfg.Continuations = []config.Continuation{
		{Path: filepath.Join(dir, "sdcard", "autoexec.sh"), Script: true},
		{Path: filepath.Join(dir, "gmenu2x")},
	}

	for _, p := range []string{"mmcblk0", "mmcblk0p1", "mmcblk0p2", "mmcblk0p3", "mmcblk1", "mmcblk1p1"} {
		touch(t, filepath.Join(dev, p), p)
	}
	if err := os.MkdirAll(cfg.Home, 0755); err != nil {
		t.Fatal(err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sh := &shell{}
	host := &system.Host{
		Logger: logger,
		Runner: &system.Runner{Commands: cfg.Commands, Logger: logger, Exec: sh.exec},
		Mounts: &system.Mounts{Logger: logger, DryRun: true, List: func() ([]disk.PartitionStat, error) {
			return []disk.PartitionStat{{Device: cfg.Devices.Data, Mountpoint: cfg.Home}}, nil
		}},
		Disks: &system.Disks{Logger: logger, DryRun: true},
		Link:  &system.Link{Logger: logger, DryRun: true},
		Power: &system.Power{Logger: logger, DryRun: true},
	}

	s := NewSession(cfg, logger, host)
	s.Sysfs.Root = filepath.Join(dir, "sysroot")
	for _, lun := range []string{"gadget-lun0", "gadget-lun1"} {
		touch(t, filepath.Join(s.Sysfs.Root, cfg.Gadget.LegacyDir, lun, "file"), "\n")
	}

	rec := &display.Recorder{}
	in := &keys{script: input}
	s.Canvas = rec
	s.Input = in
	return &fixture{s: s, rec: rec, sh: sh, dir: dir, input: in}
}

func (f *fixture) titles() []string {
	var out []string
	for _, fr := range f.rec.Frames {
		out = append(out, fr.Title)
	}
	return out
}

func TestTableFollowsSecondaryCard(t *testing.T) {
	f := newFixture(t)
	table, err := f.s.Table(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"Network Mode", "USB Storage Mode", "Check File System", "Data Reset", "Format Ext SD Card", "Reboot", "Power Off"}
	if got := table.Labels(); !reflect.DeepEqual(got, want) {
		t.Errorf("got %q, want %q", got, want)
	}

	os.Remove(f.s.Config.Devices.External)
	table, err = f.s.Table(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	want = []string{"Network Mode", "Check File System", "Data Reset", "Reboot", "Power Off"}
	if got := table.Labels(); !reflect.DeepEqual(got, want) {
		t.Errorf("without card: got %q, want %q", got, want)
	}
}

func TestStorageExportsUntilSelect(t *testing.T) {
	f := newFixture(t, buttons.Press(buttons.A), buttons.Press(buttons.Select))
	lun := func(i int) string {
		b, _ := os.ReadFile(filepath.Join(f.s.Sysfs.Root, f.s.Config.Gadget.LegacyDir, "gadget-lun"+string(rune('0'+i)), "file"))
		return strings.TrimSpace(string(b))
	}

	var seen []string
	f.input.before = func() { seen = []string{lun(0), lun(1)} }

	if err := f.s.Storage(context.Background()); err != nil {
		t.Fatal(err)
	}

	dev := filepath.Dir(f.s.Config.Devices.Internal)
	if want := []string{filepath.Join(dev, "mmcblk1p1"), filepath.Join(dev, "mmcblk0p3")}; !reflect.DeepEqual(seen, want) {
		t.Errorf("exported %q, want %q", seen, want)
	}
	if lun(0) != "" || lun(1) != "" {
		t.Errorf("luns not released: %q %q", lun(0), lun(1))
	}
	if !f.sh.ran("modprobe g_file_storage") || !f.sh.ran("rmmod g_ether") {
		t.Errorf("unexpected commands: %q", f.sh.calls)
	}
	if got := f.rec.Last(); got.Title != "USB MODE" || got.Footer != "SELECT: EXIT" {
		t.Errorf("unexpected frame: %s", got)
	}
}

func TestNetworkAction(t *testing.T) {
	f := newFixture(t, buttons.Press(buttons.Select))
	if err := f.s.Network(context.Background()); err != nil {
		t.Fatal(err)
	}
	want := []string{"rmmod g_file_storage", "modprobe g_ether"}
	if !reflect.DeepEqual(f.sh.calls, want) {
		t.Errorf("got %q, want %q", f.sh.calls, want)
	}
	lines := f.rec.Last().Texts()
	if len(lines) != 3 || lines[1] != "- FTP or Telnet to 169.254.1.1" {
		t.Errorf("unexpected lines: %q", lines)
	}
}

func TestNetworkInputClosed(t *testing.T) {
	f := newFixture(t)
	if err := f.s.Network(context.Background()); !errors.Is(err, buttons.ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}

func TestFsckFirstBoot(t *testing.T) {
	f := newFixture(t)
	touch(t, f.s.Config.Markers.Fsck, "")

	if err := f.s.Fsck(context.Background()); !errors.Is(err, dispatch.ErrExit) {
		t.Fatalf("expected ErrExit after reboot, got %v", err)
	}
	if _, err := os.Stat(f.s.Config.Markers.Fsck); !os.IsNotExist(err) {
		t.Error("fsck marker not cleared")
	}
	want := []string{"fsck.vfat -va " + f.s.Config.Devices.Data}
	if !reflect.DeepEqual(f.sh.calls, want) {
		t.Errorf("got %q, want %q", f.sh.calls, want)
	}
	lines := f.rec.Last().Texts()
	if lines[len(lines)-1] != "Done. Rebooting..." {
		t.Errorf("unexpected lines: %q", lines)
	}
}

func TestFsckChecksExternalCard(t *testing.T) {
	f := newFixture(t)
	f.sh.fail = "fsck.vfat"

	if err := f.s.Fsck(context.Background()); !errors.Is(err, dispatch.ErrExit) {
		t.Fatalf("expected ErrExit, got %v", err)
	}
	ext := filepath.Join(filepath.Dir(f.s.Config.Devices.External), "mmcblk1p1")
	want := []string{"fsck.vfat -va " + ext, "fsck.vfat -va " + f.s.Config.Devices.Data}
	if !reflect.DeepEqual(f.sh.calls, want) {
		t.Errorf("got %q, want %q", f.sh.calls, want)
	}

	var warned bool
	for _, l := range f.rec.Last().Lines {
		if l.Color == display.WarningColor && l.Text == "Errors found, see log" {
			warned = true
		}
	}
	if !warned {
		t.Errorf("failure not shown: %s", f.rec.Last())
	}
}

func TestResizeClearsMarker(t *testing.T) {
	f := newFixture(t)
	touch(t, f.s.Config.Markers.Resize, "")

	if err := f.s.Resize(context.Background()); !errors.Is(err, dispatch.ErrExit) {
		t.Fatalf("expected ErrExit, got %v", err)
	}
	if _, err := os.Stat(f.s.Config.Markers.Resize); !os.IsNotExist(err) {
		t.Error("resize marker not cleared")
	}
	last := f.rec.Last()
	if last.Title != "PARTITION MANAGER" {
		t.Errorf("title %s", last.Title)
	}
	if lines := last.Texts(); lines[3] != "Card size: 0 MiB" {
		t.Errorf("unexpected lines: %q", lines)
	}
}

func TestFormatExternalGate(t *testing.T) {
	tests := []struct {
		name   string
		input  []buttons.State
		format bool
	}{
		{"cancel", []buttons.State{buttons.Press(buttons.B)}, false},
		{"sequential", []buttons.State{buttons.Press(buttons.Select), buttons.Press(buttons.Y), buttons.Press(buttons.B)}, false},
		{"chord", []buttons.State{buttons.Press(buttons.Up), buttons.Press(buttons.Select, buttons.Y)}, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, tc.input...)
			if err := f.s.FormatExternal(context.Background()); err != nil {
				t.Fatal(err)
			}
			if f.rec.Frames[0].Footer != "SELECT + Y: CONFIRM     B: CANCEL" {
				t.Errorf("footer %q", f.rec.Frames[0].Footer)
			}
			if got := f.sh.ran("mdev -s"); got != tc.format {
				t.Errorf("formatted = %v, want %v (%q)", got, tc.format, f.sh.calls)
			}
			if tc.format {
				lines := f.rec.Last().Texts()
				if lines[len(lines)-1] != "Done." {
					t.Errorf("unexpected lines: %q", lines)
				}
			}
		})
	}
}

func writeDefaults(t *testing.T, path string) {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	tw := tar.NewWriter(zw)
	body := "#!/bin/sh\n"
	if err := tw.WriteHeader(&tar.Header{Name: "autoexec.sh", Typeflag: tar.TypeReg, Mode: 0755, Size: int64(len(body))}); err != nil {
		t.Fatal(err)
	}
	tw.Write([]byte(body))
	tw.Close()
	zw.Close()
	touch(t, path, buf.String())
}

func TestDataResetRestoresDefaults(t *testing.T) {
	f := newFixture(t)
	touch(t, f.s.Config.Markers.DataReset, "")
	writeDefaults(t, f.s.Config.Defaults[0])

	if err := f.s.DataReset(context.Background()); !errors.Is(err, dispatch.ErrExit) {
		t.Fatalf("expected ErrExit, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(f.s.Config.Home, "autoexec.sh")); err != nil {
		t.Errorf("defaults not restored: %v", err)
	}
	for _, m := range []string{f.s.Config.Markers.DataReset, f.s.Config.Markers.Fsck} {
		if _, err := os.Stat(m); !os.IsNotExist(err) {
			t.Errorf("marker %s left behind", m)
		}
	}
	want := []string{"mount -a", "fsck.vfat -va " + f.s.Config.Devices.Data}
	if !reflect.DeepEqual(f.sh.calls, want) {
		t.Errorf("got %q, want %q", f.sh.calls, want)
	}
	if got := f.titles(); got[0] != "DATA RESET" || got[len(got)-1] != "FILE SYSTEM CHECK" {
		t.Errorf("unexpected screens: %q", got)
	}
}

func TestRunSingleModeCleansUp(t *testing.T) {
	f := newFixture(t, buttons.Press(buttons.Select))
	if err := f.s.Run(context.Background(), mode.UsbNetwork); err != nil {
		t.Fatal(err)
	}
	for _, c := range []string{"killall dnsmasq", "rmmod g_ether", "rmmod g_file_storage", "mdev -s", "mount -a"} {
		if !f.sh.ran(c) {
			t.Errorf("cleanup did not run %q", c)
		}
	}
}

func TestRunMenuUntilPowerOff(t *testing.T) {
	f := newFixture(t, buttons.Press(buttons.Up), buttons.Press(buttons.A))
	if err := f.s.Run(context.Background(), mode.Menu); err != nil {
		t.Fatal(err)
	}
	if got := f.titles(); len(got) != 2 || got[0] != "RECOVERY MODE" {
		t.Errorf("unexpected frames: %q", got)
	}
	if f.sh.ran("mount -a") {
		t.Error("menu must not run cleanup")
	}
}

func TestRunNeedsDisplay(t *testing.T) {
	f := newFixture(t)
	f.s.Canvas = nil
	if err := f.s.Run(context.Background(), mode.Menu); err == nil {
		t.Error("expected error without canvas")
	}
	f.s.Canvas = f.rec
	if err := f.s.Run(context.Background(), mode.Start); err == nil {
		t.Error("expected error for Start")
	}
}

func TestStart(t *testing.T) {
	f := newFixture(t)
	if _, ok := f.s.Start(context.Background()); ok {
		t.Fatal("no continuation exists yet")
	}
	if len(f.sh.calls) != 0 {
		t.Errorf("unexpected commands: %q", f.sh.calls)
	}

	swap := f.s.Config.Swap[0]
	launcher := f.s.Config.Continuations[1].Path
	touch(t, swap, "swap")
	touch(t, launcher, "elf")

	h, ok := f.s.Start(context.Background())
	if !ok || h.Path != launcher || !reflect.DeepEqual(h.Argv, []string{launcher}) {
		t.Errorf("unexpected handoff %+v", h)
	}
	if want := "swapon " + swap; !f.sh.ran(want) {
		t.Errorf("got %q, want %q", f.sh.calls, want)
	}
}

func TestHeadless(t *testing.T) {
	f := newFixture(t)
	var console bytes.Buffer
	if err := f.s.Headless(context.Background(), &console, true); err != nil {
		t.Fatal(err)
	}
	if console.Len() != 0 || f.sh.ran("modprobe fbcon") {
		t.Error("quiet bring-up must not touch the console")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := f.s.Headless(ctx, &console, false); err != nil {
		t.Fatal(err)
	}
	if !f.sh.ran("modprobe fbcon") {
		t.Errorf("fbcon not loaded: %q", f.sh.calls)
	}
	for _, want := range []string{"- FTP or Telnet to 169.254.1.1", "- Power off and reboot", "|_| \\_\\___|"} {
		if !strings.Contains(console.String(), want) {
			t.Errorf("banner missing %q", want)
		}
	}
}
