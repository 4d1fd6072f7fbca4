package mode

// Continuation is one candidate next stage for Start.
type Continuation struct {
	Path string
	// Script candidates are sourced by the shell rather than executed. The
	// path reaches the shell as $1 and is never spliced into the command.
	Script bool
}

// Handoff is the program Start replaces the process with. It never returns
// control to recovery.
type Handoff struct {
	Path string
	Argv []string
}

// Shell runs autoexec scripts.
const Shell = "/bin/sh"

const sourceScript = `. "$1"`

// NextStage returns the first candidate that exists.
func NextStage(candidates []Continuation, exists func(string) bool) (Handoff, bool) {
	for _, c := range candidates {
		if c.Path == "" || !exists(c.Path) {
			continue
		}
		if c.Script {
			return Handoff{Path: Shell, Argv: []string{Shell, "-c", sourceScript, Shell, c.Path}}, true
		}
		return Handoff{Path: c.Path, Argv: []string{c.Path}}, true
	}
	return Handoff{}, false
}
