package system

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// <linux/vt.h> and <linux/kd.h>
const (
	vtUnlockSwitch = 0x560C
	kdSetMode      = 0x4B3A
	kdSkbMode      = 0x4B45

	kdText  = 0x00
	kXlate  = 0x01
	unlock  = 1
	ttyPath = "/dev/tty0"
)

// ReleaseTTY unlocks VT switching and puts the console back in text mode
// with translated keyboard input, undoing whatever a crashed frontend left.
func ReleaseTTY() error {
	f, err := os.OpenFile(ttyPath, os.O_RDONLY, 0)
	if err != nil {
		return fmt.Errorf("open %s: %w", ttyPath, err)
	}
	defer f.Close()

	fd := int(f.Fd())
	for _, op := range []struct {
		name string
		req  uint
		arg  int
	}{
		{"VT_UNLOCKSWITCH", vtUnlockSwitch, unlock},
		{"KDSETMODE", kdSetMode, kdText},
		{"KDSKBMODE", kdSkbMode, kXlate},
	} {
		if err := unix.IoctlSetInt(fd, op.req, op.arg); err != nil {
			return fmt.Errorf("%s on %s: %w", op.name, ttyPath, err)
		}
	}
	return nil
}
