// Package system performs the privileged side effects of the recovery
// modes: external commands, mounts, partitioning, the USB network link,
// power and the real-time clock.
package system

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"text/template"

	"github.com/google/shlex"
)

// CommandError is a named external command that failed.
type CommandError struct {
	Name   string
	Args   []string
	Output string
	Err    error
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("%s (%s) failed: %v", e.Name, strings.Join(e.Args, " "), e.Err)
	if out := strings.TrimSpace(e.Output); out != "" {
		msg += ": " + lastLine(out)
	}
	return msg
}

func (e *CommandError) Unwrap() error { return e.Err }

func lastLine(s string) string {
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}

// Vars are the values a command template may reference.
type Vars map[string]any

// Runner runs named commands. Each command is a text/template that is
// expanded with Vars and then split into argv with shell quoting rules. No
// shell is involved.
type Runner struct {
	Commands map[string]string
	Logger   *slog.Logger
	DryRun   bool

	// Exec runs argv and returns its combined output. Defaults to os/exec.
	Exec func(ctx context.Context, argv []string) ([]byte, error)
}

// Expand resolves the named command to argv.
func (r *Runner) Expand(name string, vars Vars) ([]string, error) {
	text, ok := r.Commands[name]
	if !ok {
		return nil, fmt.Errorf("unknown command %q", name)
	}

	tmpl, err := template.New(name).Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("parse command %s: %w", name, err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, vars); err != nil {
		return nil, fmt.Errorf("expand command %s: %w", name, err)
	}

	args, err := shlex.Split(buf.String())
	if err != nil {
		return nil, fmt.Errorf("split command %s: %w", name, err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("command %s is empty", name)
	}
	return args, nil
}

// Run expands and executes the named command.
func (r *Runner) Run(ctx context.Context, name string, vars Vars) error {
	args, err := r.Expand(name, vars)
	if err != nil {
		return err
	}

	if r.DryRun {
		r.Logger.Info("Dry run: would run command", "name", name, "argv", args)
		return nil
	}

	run := r.Exec
	if run == nil {
		run = execCombined
	}

	r.Logger.Info("Running command", "name", name, "argv", args)
	out, err := run(ctx, args)
	if err != nil {
		return &CommandError{Name: name, Args: args, Output: string(out), Err: err}
	}
	return nil
}

// Try runs the command and only logs a failure. Used for best-effort steps
// such as unloading a module that may not be loaded.
func (r *Runner) Try(ctx context.Context, name string, vars Vars) {
	if err := r.Run(ctx, name, vars); err != nil {
		r.Logger.Warn("Command failed", "name", name, "error", err)
	}
}

func execCombined(ctx context.Context, argv []string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	return cmd.CombinedOutput()
}
