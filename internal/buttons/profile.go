package buttons

import "fmt"

// Pin locates one button in the GPIO register window.
type Pin struct {
	Button Button

	// Offset is the byte offset of the port's PIN register from Base.
	Offset uint32
	Bit    uint

	// ActiveLow buttons read as pressed when the bit is clear.
	ActiveLow bool
}

// Profile describes one hardware variant: where its buttons live in the GPIO
// block and which windowing-layer key each one is delivered as.
type Profile struct {
	Name string
	Pins []Pin

	// Base is the physical address of the GPIO block, Size the mapping length.
	Base uint32
	Size int

	// Keys maps buttons to SDL scancode names.
	Keys map[Button]string
}

// port PIN register offsets inside the GPIO block
const (
	portA = 0x000
	portB = 0x100
	portC = 0x200
	portD = 0x300
	portE = 0x400
	portF = 0x500
)

// RetroFW is the RS-97 class handheld running RetroFW.
var RetroFW = Profile{
	Name: "retrofw",
	Base: 0x10010000,
	Size: 2048,
	Pins: []Pin{
		{X, portE, 7, true},
		{A, portD, 22, true},
		{B, portD, 23, true},
		{Y, portE, 11, true},
		{L, portB, 23, true},
		{R, portD, 24, true},
		{Start, portD, 18, false},
		{Select, portD, 17, false},
		{Backlight, portD, 21, true},
		{Power, portA, 30, true},
		{Up, portB, 25, true},
		{Down, portB, 24, true},
		{Left, portD, 0, true},
		{Right, portB, 26, true},
	},
	Keys: map[Button]string{
		X:         "Space",
		A:         "Left Ctrl",
		B:         "Left Alt",
		Y:         "Left Shift",
		L:         "Tab",
		R:         "Backspace",
		Start:     "Return",
		Select:    "Escape",
		Backlight: "3",
		Power:     "End",
		Up:        "Up",
		Down:      "Down",
		Left:      "Left",
		Right:     "Right",
	},
}

var profiles = map[string]Profile{
	RetroFW.Name: RetroFW,
}

// LookupProfile returns a built-in profile by name.
func LookupProfile(name string) (Profile, error) {
	p, ok := profiles[name]
	if !ok {
		return Profile{}, fmt.Errorf("unknown hardware profile %q", name)
	}
	return p, nil
}

// Validate checks that every pin lies inside the mapped window and that no
// button is listed twice.
func (p Profile) Validate() error {
	if p.Size <= 0 {
		return fmt.Errorf("profile %s: mapping size must be positive", p.Name)
	}
	seen := make(map[Button]bool, len(p.Pins))
	for _, pin := range p.Pins {
		if pin.Button < 0 || pin.Button >= numButtons {
			return fmt.Errorf("profile %s: unknown button %d", p.Name, pin.Button)
		}
		if seen[pin.Button] {
			return fmt.Errorf("profile %s: button %s mapped twice", p.Name, pin.Button)
		}
		seen[pin.Button] = true
		if pin.Bit > 31 {
			return fmt.Errorf("profile %s: %s bit %d out of range", p.Name, pin.Button, pin.Bit)
		}
		if int(pin.Offset)+4 > p.Size {
			return fmt.Errorf("profile %s: %s register 0x%x outside %d byte window", p.Name, pin.Button, pin.Offset, p.Size)
		}
	}
	return nil
}

// Registers is a read-only view of the mapped GPIO block.
type Registers interface {
	Word(offset uint32) uint32
}

// Decode turns register contents into a snapshot according to the profile.
func (p Profile) Decode(regs Registers) State {
	var s State
	for _, pin := range p.Pins {
		set := regs.Word(pin.Offset)>>pin.Bit&1 == 1
		s.Set(pin.Button, set != pin.ActiveLow)
	}
	return s
}
