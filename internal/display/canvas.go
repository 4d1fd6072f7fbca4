// Package display is the drawing contract the recovery screens are written
// against. Every frame is drawn in full: Screen clears and draws the chrome,
// Text draws one line, Present shows the result.
package display

import "fmt"

// Color is an opaque RGB colour.
type Color struct {
	R, G, B uint8
}

func (c Color) String() string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

// Palette used by every screen.
var (
	TextColor      = Color{200, 200, 220}
	TitleColor     = Color{200, 200, 0}
	HighlightColor = Color{0, 200, 0}
	WarningColor   = Color{200, 0, 0}
	RuleColor      = Color{200, 200, 200}
)

// Layout of the 320x240 screen.
const (
	Width  = 320
	Height = 240

	Margin     = 10
	TitleY     = 4
	BrandX     = 247
	HeaderRule = 20
	FooterRule = Height - 20
	FooterY    = 222
	FirstLine  = 32
	LineGap    = 2
)

// Canvas draws text screens.
type Canvas interface {
	// Screen clears the frame, draws title, brand, rules and footer, and
	// returns the y of the first body line.
	Screen(title, footer string) int

	// Text draws s at (x, y) and returns the y of the next line. Empty
	// strings draw nothing and return y unchanged.
	Text(x, y int, s string, c Color) int

	// Present shows the frame.
	Present() error
}

// Page accumulates body lines under a screen header.
type Page struct {
	canvas Canvas
	y      int
}

// NewPage starts a new frame.
func NewPage(c Canvas, title, footer string) *Page {
	return &Page{canvas: c, y: c.Screen(title, footer)}
}

// Line draws s in the body text colour.
func (p *Page) Line(s string) *Page {
	return p.Color(s, TextColor)
}

// Warn draws s in the warning colour.
func (p *Page) Warn(s string) *Page {
	return p.Color(s, WarningColor)
}

func (p *Page) Color(s string, c Color) *Page {
	p.y = p.canvas.Text(Margin, p.y, s, c)
	return p
}

// Lines draws each of ss as a body line.
func (p *Page) Lines(ss ...string) *Page {
	for _, s := range ss {
		p.Line(s)
	}
	return p
}

// Show presents the frame. The page may keep growing afterwards and be shown
// again.
func (p *Page) Show() error {
	return p.canvas.Present()
}
