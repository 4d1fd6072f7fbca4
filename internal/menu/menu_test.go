package menu

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/rand"
	"testing"

	"recovery/internal/buttons"
	"recovery/internal/dispatch"
	"recovery/internal/display"
)

type script []buttons.State

func (s *script) WaitKeyDown() (buttons.State, error) {
	if len(*s) == 0 {
		return buttons.State{}, buttons.ErrClosed
	}
	st := (*s)[0]
	*s = (*s)[1:]
	return st, nil
}

func press(bs ...buttons.Button) buttons.State { return buttons.Press(bs...) }

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func table(t *testing.T, calls map[dispatch.ID]int, fail map[dispatch.ID]error) dispatch.Table {
	t.Helper()
	actions := map[dispatch.ID]dispatch.Action{}
	for _, k := range dispatch.Catalog() {
		id := k.ID
		actions[id] = func() error {
			calls[id]++
			return fail[id]
		}
	}
	tbl, err := dispatch.Build(dispatch.DefaultTemplate, actions, false)
	if err != nil {
		t.Fatal(err)
	}
	return tbl
}

func TestSelectionWrap(t *testing.T) {
	s, err := NewSelection(5)
	if err != nil {
		t.Fatal(err)
	}
	s.Move(Up)
	if s.Index() != 4 {
		t.Errorf("up from 0: got %d, want 4", s.Index())
	}
	s.Move(Down)
	if s.Index() != 0 {
		t.Errorf("down from 4: got %d, want 0", s.Index())
	}
	s.Move(Last)
	if s.Index() != 4 {
		t.Errorf("last: got %d", s.Index())
	}
	s.Move(First)
	if s.Index() != 0 {
		t.Errorf("first: got %d", s.Index())
	}
	s.Move(Confirm)
	if s.Index() != 0 {
		t.Errorf("confirm moved selection to %d", s.Index())
	}
}

func TestSelectionAlwaysInRange(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	events := []Event{None, Up, Down, First, Last, Confirm}
	for n := 1; n <= 8; n++ {
		s, _ := NewSelection(n)
		for i := 0; i < 500; i++ {
			s.Move(events[rng.Intn(len(events))])
			if s.Index() < 0 || s.Index() >= n {
				t.Fatalf("n=%d: index %d out of range", n, s.Index())
			}
		}
	}
}

func TestNewSelectionEmpty(t *testing.T) {
	if _, err := NewSelection(0); err == nil {
		t.Error("expected error for empty menu")
	}
}

func TestTranslate(t *testing.T) {
	tests := []struct {
		state buttons.State
		want  Event
	}{
		{press(), None},
		{press(buttons.Up), Up},
		{press(buttons.Down), Down},
		{press(buttons.Left), First},
		{press(buttons.Right), Last},
		{press(buttons.A), Confirm},
		{press(buttons.B), None},
		{press(buttons.Up, buttons.A), Up},
		{press(buttons.Down, buttons.Left), Down},
	}
	for _, tc := range tests {
		if got := Translate(tc.state); got != tc.want {
			t.Errorf("Translate(%s) = %s, want %s", tc.state, got, tc.want)
		}
	}
}

func TestLoopConfirmRunsOnce(t *testing.T) {
	calls := map[dispatch.ID]int{}
	tbl := table(t, calls, nil)
	in := script{press(buttons.Down), press(buttons.A)}
	var canvas display.Recorder

	l := &Loop{Title: "RECOVERY MODE", Table: tbl, Canvas: &canvas, Input: &in, Logger: discard()}
	err := l.Run(context.Background())
	if !errors.Is(err, buttons.ErrClosed) {
		t.Fatalf("expected input closed, got %v", err)
	}

	if calls[dispatch.Fsck] != 1 {
		t.Errorf("check file system ran %d times", calls[dispatch.Fsck])
	}
	total := 0
	for _, n := range calls {
		total += n
	}
	if total != 1 {
		t.Errorf("expected exactly one action, got %d", total)
	}

	// Initial draw, one per key, one after the action returns.
	if len(canvas.Frames) != 3 {
		t.Errorf("expected 3 frames, got %d", len(canvas.Frames))
	}
	f := canvas.Last()
	if f.Footer != Footer || f.Lines[1].Color != display.HighlightColor || f.Lines[0].Color != display.TextColor {
		t.Errorf("unexpected frame: %+v", f)
	}
}

func TestLoopWrapsFromTop(t *testing.T) {
	calls := map[dispatch.ID]int{}
	tbl := table(t, calls, nil)
	in := script{press(buttons.Up), press(buttons.A)}
	l := &Loop{Table: tbl, Canvas: &display.Recorder{}, Input: &in, Logger: discard()}
	l.Run(context.Background())

	if l.Selected() != len(tbl)-1 {
		t.Errorf("selected %d, want %d", l.Selected(), len(tbl)-1)
	}
	if calls[dispatch.PowerOff] != 1 {
		t.Error("power off was not invoked")
	}
}

func TestLoopExit(t *testing.T) {
	calls := map[dispatch.ID]int{}
	tbl := table(t, calls, map[dispatch.ID]error{dispatch.Reboot: dispatch.ErrExit})
	in := script{press(buttons.Right), press(buttons.Up), press(buttons.A), press(buttons.A)}
	l := &Loop{Table: tbl, Canvas: &display.Recorder{}, Input: &in, Logger: discard()}

	if err := l.Run(context.Background()); err != nil {
		t.Fatalf("expected clean exit, got %v", err)
	}
	if calls[dispatch.Reboot] != 1 {
		t.Errorf("reboot ran %d times", calls[dispatch.Reboot])
	}
	if len(in) != 1 {
		t.Errorf("loop read input after exit: %d left", len(in))
	}
}

func TestLoopNoticeOnFailure(t *testing.T) {
	calls := map[dispatch.ID]int{}
	tbl := table(t, calls, map[dispatch.ID]error{dispatch.Network: errors.New("modprobe failed")})
	in := script{press(buttons.A), press(buttons.Down)}
	var canvas display.Recorder
	l := &Loop{Table: tbl, Canvas: &canvas, Input: &in, Logger: discard()}
	l.Run(context.Background())

	failed := canvas.Frames[1]
	last := failed.Lines[len(failed.Lines)-1]
	if last.Text != "Network Mode failed" || last.Color != display.WarningColor {
		t.Errorf("expected failure notice, got %+v", last)
	}
	if l.Selected() != 1 {
		t.Errorf("navigation state changed by failure: %d", l.Selected())
	}
	cleared := canvas.Frames[2]
	if len(cleared.Lines) != len(tbl) {
		t.Errorf("notice not cleared after next key: %v", cleared.Texts())
	}
}

func TestLoopCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	in := script{press(buttons.A)}
	calls := map[dispatch.ID]int{}
	l := &Loop{Table: table(t, calls, nil), Canvas: &display.Recorder{}, Input: &in, Logger: discard()}
	if err := l.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context cancelled, got %v", err)
	}
	if len(calls) != 0 {
		t.Error("no action may run after cancellation")
	}
}
