// Package mode decides what a single recovery invocation does.
//
// Resolve combines the command line, persisted flags and the buttons held at
// boot into one Decision. The only change allowed to a resolved Mode is the
// fall back from Start to Menu when no next stage can be found.
package mode

import (
	"errors"
	"fmt"
)

type Mode int

const (
	Unknown Mode = iota
	UsbStorage
	UsbNetwork
	PartitionResize
	FilesystemCheck
	DataReset
	Start
	Menu
)

func (m Mode) String() string {
	switch m {
	case UsbStorage:
		return "usb-storage"
	case UsbNetwork:
		return "usb-network"
	case PartitionResize:
		return "partition-resize"
	case FilesystemCheck:
		return "filesystem-check"
	case DataReset:
		return "data-reset"
	case Start:
		return "start"
	case Menu:
		return "menu"
	}
	return "unknown"
}

// Title is the screen header shown while the mode runs.
func (m Mode) Title() string {
	switch m {
	case UsbStorage:
		return "USB MODE"
	case UsbNetwork:
		return "NETWORK MODE"
	case PartitionResize:
		return "PARTITION MANAGER"
	case FilesystemCheck:
		return "FILE SYSTEM CHECK"
	case DataReset:
		return "DATA RESET"
	}
	return "RECOVERY MODE"
}

// Interactive modes need the display.
func (m Mode) Interactive() bool {
	return m != Unknown && m != Start
}

// Kind separates the three shapes a Decision can take.
type Kind int

const (
	// KindStop persists the clock and exits; no mode is computed.
	KindStop Kind = iota
	// KindHeadless brings the network up without any UI.
	KindHeadless
	// KindMode runs Decision.Mode.
	KindMode
)

func (k Kind) String() string {
	switch k {
	case KindStop:
		return "stop"
	case KindHeadless:
		return "headless"
	}
	return "mode"
}

// Decision is the outcome of Resolve.
type Decision struct {
	Kind Kind
	Mode Mode

	// Quiet is set for a headless decision requested with "network on": no
	// console splash and no blocking wait.
	Quiet bool

	// FirstBoot records whether the fsck-pending marker was present.
	FirstBoot bool

	// Reason says which precedence rule matched, for logging.
	Reason string
}

func (d Decision) String() string {
	switch d.Kind {
	case KindMode:
		return fmt.Sprintf("%s (%s)", d.Mode, d.Reason)
	case KindHeadless:
		return fmt.Sprintf("headless network quiet=%t (%s)", d.Quiet, d.Reason)
	}
	return d.Kind.String()
}

// ErrIllegalTransition is returned for any mode change other than Start to
// Menu.
var ErrIllegalTransition = errors.New("illegal mode transition")

// FallBack moves a Start decision to Menu after every boot continuation
// failed.
func (d Decision) FallBack() (Decision, error) {
	if d.Kind != KindMode || d.Mode != Start {
		return d, fmt.Errorf("%w: %s to %s", ErrIllegalTransition, d.Mode, Menu)
	}
	d.Mode = Menu
	d.Reason = "no boot continuation found"
	return d, nil
}
