// Package menu runs the interactive recovery menu.
package menu

import (
	"errors"

	"recovery/internal/buttons"
)

// Event is a discrete menu input.
type Event int

const (
	None Event = iota
	Up
	Down
	First
	Last
	Confirm
)

func (e Event) String() string {
	switch e {
	case Up:
		return "up"
	case Down:
		return "down"
	case First:
		return "first"
	case Last:
		return "last"
	case Confirm:
		return "confirm"
	}
	return "none"
}

// Translate maps a key-down snapshot to one event. When several buttons are
// held the first match in UP, DOWN, LEFT, RIGHT, A wins.
func Translate(s buttons.State) Event {
	switch {
	case s.Pressed(buttons.Up):
		return Up
	case s.Pressed(buttons.Down):
		return Down
	case s.Pressed(buttons.Left):
		return First
	case s.Pressed(buttons.Right):
		return Last
	case s.Pressed(buttons.A):
		return Confirm
	}
	return None
}

// Selection is an index that always stays in [0, n).
type Selection struct {
	index int
	n     int
}

func NewSelection(n int) (*Selection, error) {
	if n <= 0 {
		return nil, errors.New("empty menu")
	}
	return &Selection{n: n}, nil
}

func (s *Selection) Index() int { return s.index }

// Move applies a navigation event. Up and Down wrap at both ends; other
// events leave the index alone.
func (s *Selection) Move(e Event) {
	switch e {
	case Up:
		if s.index == 0 {
			s.index = s.n - 1
		} else {
			s.index--
		}
	case Down:
		if s.index == s.n-1 {
			s.index = 0
		} else {
			s.index++
		}
	case First:
		s.index = 0
	case Last:
		s.index = s.n - 1
	}
}
