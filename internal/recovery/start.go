package recovery

import (
	"context"

	"recovery/internal/mode"
	"recovery/internal/system"
)

// Start activates any swap files and returns the first boot continuation.
// ok is false when none exists; the caller then falls back to the menu.
func (s *Session) Start(ctx context.Context) (h mode.Handoff, ok bool) {
	var swap []string
	for _, f := range s.Config.Swap {
		if s.exists(f) {
			swap = append(swap, f)
		}
	}
	if len(swap) > 0 {
		s.Host.Runner.Try(ctx, "swapon", system.Vars{"Files": swap})
	}

	h, ok = mode.NextStage(s.Config.NextStages(), s.exists)
	if ok {
		s.Logger.Info("Next stage", "path", h.Path, "argv", h.Argv)
	} else {
		s.Logger.Warn("No boot continuation found")
	}
	return h, ok
}
