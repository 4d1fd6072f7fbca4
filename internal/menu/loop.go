package menu

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"recovery/internal/buttons"
	"recovery/internal/dispatch"
	"recovery/internal/display"
)

// Footer is the key hint shown under the menu.
const Footer = "A: SELECT"

// Loop draws the table, waits for one key-down at a time and runs the
// selected action on confirm. Actions run to completion before the next
// input is read.
type Loop struct {
	Title  string
	Table  dispatch.Table
	Canvas display.Canvas
	Input  buttons.Events
	Logger *slog.Logger

	sel    *Selection
	notice string
}

// Selected returns the current row, or -1 before Run.
func (l *Loop) Selected() int {
	if l.sel == nil {
		return -1
	}
	return l.sel.Index()
}

// Run returns nil once an action returns dispatch.ErrExit, and the input
// error if the input layer closes.
func (l *Loop) Run(ctx context.Context) error {
	sel, err := NewSelection(len(l.Table))
	if err != nil {
		return err
	}
	l.sel = sel

	for {
		if err := l.draw(); err != nil {
			return fmt.Errorf("draw menu: %w", err)
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		state, err := l.Input.WaitKeyDown()
		if err != nil {
			return err
		}
		l.notice = ""

		ev := Translate(state)
		if ev != Confirm {
			l.sel.Move(ev)
			continue
		}

		entry := l.Table[l.sel.Index()]
		l.Logger.Info("Menu action", "action", entry.ID)
		err = entry.Action()
		switch {
		case errors.Is(err, dispatch.ErrExit):
			return nil
		case err != nil:
			l.Logger.Error("Menu action failed", "action", entry.ID, "error", err)
			l.notice = entry.Label + " failed"
		}
	}
}

func (l *Loop) draw() error {
	p := display.NewPage(l.Canvas, l.Title, Footer)
	for i, e := range l.Table {
		c := display.TextColor
		if i == l.sel.Index() {
			c = display.HighlightColor
		}
		p.Color(e.Label, c)
	}
	if l.notice != "" {
		p.Line(" ").Warn(l.notice)
	}
	return p.Show()
}
