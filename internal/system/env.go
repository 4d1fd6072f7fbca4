package system

import (
	"fmt"
	"os"
	"sort"
)

// Audio picks the SDL audio driver from a capability probe file.
type Audio struct {
	Probe   string
	Present string
	Absent  string
}

func (a Audio) driver() string {
	if a.Probe == "" {
		return ""
	}
	if Present(a.Probe) {
		return a.Present
	}
	return a.Absent
}

// SetupEnv exports vars and the chosen audio driver for the windowing layer
// and anything started after recovery.
func SetupEnv(vars map[string]string, audio Audio) error {
	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if err := os.Setenv(k, vars[k]); err != nil {
			return fmt.Errorf("set %s: %w", k, err)
		}
	}
	if d := audio.driver(); d != "" {
		if err := os.Setenv("SDL_AUDIODRIVER", d); err != nil {
			return fmt.Errorf("set SDL_AUDIODRIVER: %w", err)
		}
	}
	return nil
}
