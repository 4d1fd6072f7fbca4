package display

import "strings"

// Line is one drawn text line.
type Line struct {
	Text  string
	Color Color
}

// Frame is what a Recorder saw between Screen and Present.
type Frame struct {
	Title  string
	Footer string
	Lines  []Line
}

// Texts returns the body lines without colours.
func (f Frame) Texts() []string {
	out := make([]string, len(f.Lines))
	for i, l := range f.Lines {
		out[i] = l.Text
	}
	return out
}

func (f Frame) String() string {
	return f.Title + ": " + strings.Join(f.Texts(), " / ")
}

// Recorder is a Canvas that keeps every presented frame in memory. It stands
// in for the real screen in dry runs and tests.
type Recorder struct {
	Frames []Frame

	cur Frame
}

func (r *Recorder) Screen(title, footer string) int {
	r.cur = Frame{Title: title, Footer: footer}
	return FirstLine
}

func (r *Recorder) Text(x, y int, s string, c Color) int {
	if s == "" {
		return y
	}
	r.cur.Lines = append(r.cur.Lines, Line{Text: s, Color: c})
	return y + 14 + LineGap
}

func (r *Recorder) Present() error {
	f := r.cur
	f.Lines = append([]Line(nil), r.cur.Lines...)
	r.Frames = append(r.Frames, f)
	return nil
}

// Last returns the most recently presented frame.
func (r *Recorder) Last() Frame {
	if len(r.Frames) == 0 {
		return Frame{}
	}
	return r.Frames[len(r.Frames)-1]
}
