package buttons

import (
	"encoding/binary"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// GPIO reads button state straight from the memory-mapped GPIO block. The
// mapping is opened, read once and released on every call so it is never
// held while the windowing layer owns the input devices.
type GPIO struct {
	Profile Profile

	// Device defaults to /dev/mem.
	Device string
}

type mapped []byte

func (m mapped) Word(offset uint32) uint32 {
	if int(offset)+4 > len(m) {
		return 0
	}
	return binary.NativeEndian.Uint32(m[offset : offset+4])
}

func (g *GPIO) ReadRaw() (State, error) {
	dev := g.Device
	if dev == "" {
		dev = "/dev/mem"
	}

	f, err := os.OpenFile(dev, os.O_RDONLY|unix.O_SYNC, 0)
	if err != nil {
		return State{}, fmt.Errorf("%w: open %s: %v", ErrUnavailable, dev, err)
	}
	defer f.Close()

	mem, err := unix.Mmap(int(f.Fd()), int64(g.Profile.Base), g.Profile.Size, unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return State{}, fmt.Errorf("%w: mmap 0x%08x: %v", ErrUnavailable, g.Profile.Base, err)
	}
	defer unix.Munmap(mem)

	return g.Profile.Decode(mapped(mem)), nil
}
