// Package confirm guards destructive actions behind a two-button chord.
package confirm

import "recovery/internal/buttons"

type Outcome int

const (
	Cancelled Outcome = iota
	Confirmed
)

func (o Outcome) String() string {
	if o == Confirmed {
		return "confirmed"
	}
	return "cancelled"
}

// Footer is the key hint for screens waiting on a Gate.
const Footer = "SELECT + Y: CONFIRM     B: CANCEL"

// Chord is the pair that must be held together in one snapshot.
var Chord = []buttons.Button{buttons.Select, buttons.Y}

// Gate waits for the confirm chord or the cancel button.
type Gate struct {
	Input buttons.Events
}

// Await blocks on key-down events until the chord or B is seen. Presses of
// SELECT and Y in separate events never confirm. An input error is returned
// with Cancelled.
func (g Gate) Await() (Outcome, error) {
	for {
		s, err := g.Input.WaitKeyDown()
		if err != nil {
			return Cancelled, err
		}
		if s.AllOf(Chord...) {
			return Confirmed, nil
		}
		if s.Pressed(buttons.B) {
			return Cancelled, nil
		}
	}
}
