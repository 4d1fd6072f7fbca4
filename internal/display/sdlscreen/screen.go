// Package sdlscreen draws recovery screens with SDL2 and reads the buttons
// through SDL's keyboard table.
package sdlscreen

import (
	"fmt"
	"runtime"

	"github.com/veandco/go-sdl2/img"
	"github.com/veandco/go-sdl2/sdl"
	"github.com/veandco/go-sdl2/ttf"

	"recovery/internal/buttons"
	"recovery/internal/display"
)

// Options configure Open.
type Options struct {
	Width, Height int
	Brand         string
	FontPath      string
	FontSize      int

	// Background is an optional image blitted under every frame.
	Background string

	// Keys maps each button to an SDL scancode name.
	Keys map[buttons.Button]string
}

// Screen is both the display.Canvas and the windowed buttons source.
type Screen struct {
	window  *sdl.Window
	surface *sdl.Surface
	font    *ttf.Font
	bg      *sdl.Surface
	ttfUp   bool

	opts  Options
	codes map[buttons.Button]sdl.Scancode
}

// Open initialises SDL, the window surface and the font. Any failure leaves
// SDL shut down.
func Open(opts Options) (*Screen, error) {
	runtime.LockOSThread()

	sdl.SetHint(sdl.HINT_NO_SIGNAL_HANDLERS, "1")
	if err := sdl.Init(sdl.INIT_VIDEO); err != nil {
		return nil, fmt.Errorf("failed to initialize SDL2: %v", err)
	}

	scr := &Screen{opts: opts, codes: make(map[buttons.Button]sdl.Scancode)}

	var err error
	scr.window, err = sdl.CreateWindow(opts.Brand, sdl.WINDOWPOS_UNDEFINED, sdl.WINDOWPOS_UNDEFINED,
		int32(opts.Width), int32(opts.Height), sdl.WINDOW_SHOWN)
	if err != nil {
		scr.Close()
		return nil, fmt.Errorf("failed to create window: %v", err)
	}
	scr.surface, err = scr.window.GetSurface()
	if err != nil {
		scr.Close()
		return nil, fmt.Errorf("failed to get window surface: %v", err)
	}
	sdl.ShowCursor(sdl.DISABLE)

	if err := ttf.Init(); err != nil {
		scr.Close()
		return nil, fmt.Errorf("failed to initialize SDL2_ttf: %v", err)
	}
	scr.ttfUp = true
	scr.font, err = ttf.OpenFont(opts.FontPath, opts.FontSize)
	if err != nil {
		scr.Close()
		return nil, fmt.Errorf("failed to open font %s: %v", opts.FontPath, err)
	}
	scr.font.SetHinting(ttf.HINTING_NORMAL)

	if opts.Background != "" {
		// a missing background is cosmetic
		scr.bg, _ = img.Load(opts.Background)
	}

	for b, name := range opts.Keys {
		code := sdl.GetScancodeFromName(name)
		if code == sdl.SCANCODE_UNKNOWN {
			scr.Close()
			return nil, fmt.Errorf("unknown key name %q for %s", name, b)
		}
		scr.codes[b] = code
	}

	sdl.PumpEvents()
	return scr, nil
}

// Close releases every SDL resource. It is safe to call more than once.
func (scr *Screen) Close() {
	if scr.bg != nil {
		scr.bg.Free()
		scr.bg = nil
	}
	if scr.font != nil {
		scr.font.Close()
		scr.font = nil
	}
	if scr.ttfUp {
		ttf.Quit()
		scr.ttfUp = false
	}
	if scr.window != nil {
		_ = scr.window.Destroy()
		scr.window = nil
	}
	sdl.Quit()
}

func (scr *Screen) fill(x, y, w, h int, c display.Color) {
	rect := &sdl.Rect{X: int32(x), Y: int32(y), W: int32(w), H: int32(h)}
	_ = scr.surface.FillRect(rect, sdl.MapRGB(scr.surface.Format, c.R, c.G, c.B))
}

func (scr *Screen) Screen(title, footer string) int {
	w, h := scr.opts.Width, scr.opts.Height
	if scr.bg != nil {
		_ = scr.bg.Blit(nil, scr.surface, nil)
	} else {
		scr.fill(0, 0, w, h, display.Color{})
	}

	scr.Text(display.BrandX, display.TitleY, scr.opts.Brand, display.TitleColor)
	scr.Text(display.Margin, display.TitleY, title, display.TitleColor)

	scr.fill(display.Margin, display.HeaderRule, w-2*display.Margin, 1, display.RuleColor)
	scr.fill(display.Margin, h-20, w-2*display.Margin, 1, display.RuleColor)

	scr.Text(display.Margin, display.FooterY, footer, display.WarningColor)
	return display.FirstLine
}

func (scr *Screen) Text(x, y int, s string, c display.Color) int {
	if s == "" {
		return y
	}
	msg, err := scr.font.RenderUTF8Blended(s, sdl.Color{R: c.R, G: c.G, B: c.B, A: 255})
	if err != nil {
		return y
	}
	defer msg.Free()

	_ = msg.Blit(nil, scr.surface, &sdl.Rect{X: int32(x), Y: int32(y), W: msg.W, H: msg.H})
	return y + int(msg.H) + display.LineGap
}

func (scr *Screen) Present() error {
	return scr.window.UpdateSurface()
}

// Buttons reads SDL's keyboard table.
func (scr *Screen) Buttons() buttons.State {
	sdl.PumpEvents()
	return scr.snapshot()
}

func (scr *Screen) snapshot() buttons.State {
	keys := sdl.GetKeyboardState()
	var s buttons.State
	for b, code := range scr.codes {
		if int(code) < len(keys) {
			s.Set(b, keys[code] != 0)
		}
	}
	return s
}

// WaitKeyDown blocks until a fresh key-down and returns every button as
// seen with it. Key repeats and all other events are dropped.
func (scr *Screen) WaitKeyDown() (buttons.State, error) {
	for {
		ev := sdl.WaitEvent()
		switch ev := ev.(type) {
		case *sdl.QuitEvent:
			return buttons.State{}, buttons.ErrClosed
		case *sdl.KeyboardEvent:
			if ev.Type != sdl.KEYDOWN || ev.Repeat != 0 {
				continue
			}
			sdl.PumpEvents()
			return scr.snapshot(), nil
		}
	}
}

// Interrupt makes a blocked WaitKeyDown return buttons.ErrClosed. It may be
// called from any goroutine.
func (scr *Screen) Interrupt() {
	_, _ = sdl.PushEvent(&sdl.QuitEvent{Type: sdl.QUIT})
}
