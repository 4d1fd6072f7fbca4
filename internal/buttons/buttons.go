// Package buttons produces snapshots of the handheld's physical buttons.
//
// A snapshot comes from exactly one source: the raw GPIO registers before the
// windowing layer is up, or the windowing layer's keyboard table afterwards.
// The two are never merged.
package buttons

import (
	"errors"
	"strings"
)

// Button is a logical button identity.
type Button int

const (
	Up Button = iota
	Down
	Left
	Right
	A
	B
	X
	Y
	L
	R
	Start
	Select
	Power
	Backlight

	numButtons
)

var names = [numButtons]string{
	"UP", "DOWN", "LEFT", "RIGHT", "A", "B", "X", "Y", "L", "R",
	"START", "SELECT", "POWER", "BACKLIGHT",
}

func (b Button) String() string {
	if b < 0 || b >= numButtons {
		return "UNKNOWN"
	}
	return names[b]
}

// All returns every logical button in declaration order.
func All() []Button {
	all := make([]Button, numButtons)
	for i := range all {
		all[i] = Button(i)
	}
	return all
}

// ParseButton is the inverse of Button.String. Case is ignored.
func ParseButton(s string) (Button, bool) {
	for i, n := range names {
		if strings.EqualFold(n, s) {
			return Button(i), true
		}
	}
	return 0, false
}

// State is one snapshot of every button's pressed flag.
type State [numButtons]bool

// Press returns a State with only the listed buttons pressed.
func Press(bs ...Button) State {
	var s State
	for _, b := range bs {
		s.Set(b, true)
	}
	return s
}

func (s *State) Set(b Button, pressed bool) {
	if b >= 0 && b < numButtons {
		s[b] = pressed
	}
}

func (s State) Pressed(b Button) bool {
	return b >= 0 && b < numButtons && s[b]
}

// AnyOf is true when at least one of bs is pressed.
func (s State) AnyOf(bs ...Button) bool {
	for _, b := range bs {
		if s.Pressed(b) {
			return true
		}
	}
	return false
}

// AllOf is true when every one of bs is pressed in this snapshot.
func (s State) AllOf(bs ...Button) bool {
	if len(bs) == 0 {
		return false
	}
	for _, b := range bs {
		if !s.Pressed(b) {
			return false
		}
	}
	return true
}

func (s State) String() string {
	var held []string
	for i, p := range s {
		if p {
			held = append(held, names[i])
		}
	}
	if len(held) == 0 {
		return "none"
	}
	return strings.Join(held, "+")
}

var (
	// ErrUnavailable is returned when the raw register window cannot be
	// opened or mapped. No bits of a failed read are meaningful.
	ErrUnavailable = errors.New("raw button registers unavailable")

	// ErrClosed is returned by Events when the input layer has shut down.
	ErrClosed = errors.New("input closed")
)

// Source yields a full snapshot from one origin.
type Source interface {
	Buttons() State
}

// RawReader reads the physical registers directly.
type RawReader interface {
	ReadRaw() (State, error)
}

// Events delivers discrete key-down events. Each call blocks until the next
// key-down and returns the snapshot of all buttons as seen with that event.
// Other event types are consumed and ignored.
type Events interface {
	WaitKeyDown() (State, error)
}

// Origin names where a snapshot came from.
type Origin string

const (
	OriginRaw      Origin = "gpio"
	OriginWindowed Origin = "windowing"
)

// Snapshot returns the boot-time button state. The raw registers win when
// they can be read at all; otherwise the windowed source supplies the whole
// snapshot. windowed may be nil, in which case nothing is pressed.
func Snapshot(raw RawReader, windowed Source) (State, Origin, error) {
	var rawErr error
	if raw != nil {
		s, err := raw.ReadRaw()
		if err == nil {
			return s, OriginRaw, nil
		}
		rawErr = err
	}
	if windowed == nil {
		return State{}, OriginWindowed, rawErr
	}
	return windowed.Buttons(), OriginWindowed, rawErr
}
