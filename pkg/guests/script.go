package guests

import (
	"context"
	"fmt"
	"time"

	"go.starlark.net/starlark"

	"github.com/gantry-io/gantry/pkg/guest"
)

// ScriptGuest is a user-defined guest whose detection logic is a
// Starlark script. The script runs with a run(cmd) builtin bound to the
// machine's transport and must assign a boolean global named "match".
//
//	out = run("cat /etc/os-release")
//	match = "ID=gentoo" in out
type ScriptGuest struct {
	// ID is the guest identifier.
	ID guest.ID

	// Parent is the guest this one specializes, usually a built-in.
	Parent guest.ID

	// Script is the Starlark source.
	Script string

	// Timeout bounds one evaluation. Zero means 30s.
	Timeout time.Duration
}

// RegisterScriptGuests adds script guests to a registry.
func RegisterScriptGuests(reg *guest.Registry, entries []ScriptGuest) error {
	for _, entry := range entries {
		entry := entry
		if entry.Script == "" {
			return fmt.Errorf("script guest %s: script is required", entry.ID)
		}
		err := reg.Register(guest.Definition{
			ID:     entry.ID,
			Parent: entry.Parent,
			NewDetector: func() guest.Detector {
				return newScriptDetector(entry.Script, entry.Timeout)
			},
		})
		if err != nil {
			return fmt.Errorf("registering script guest %s: %w", entry.ID, err)
		}
	}
	return nil
}

// scriptDetector evaluates a Starlark detection script.
type scriptDetector struct {
	script  string
	timeout time.Duration
}

func newScriptDetector(script string, timeout time.Duration) *scriptDetector {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &scriptDetector{script: script, timeout: timeout}
}

// Detect implements guest.Detector. The script runs in its own
// goroutine so a runaway script cannot wedge detection past the
// timeout.
func (d *scriptDetector) Detect(ctx context.Context, m guest.Machine) (bool, error) {
	evalCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	resultCh := make(chan bool, 1)
	errCh := make(chan error, 1)

	go func() {
		match, err := d.evaluate(evalCtx, m)
		if err != nil {
			errCh <- err
			return
		}
		resultCh <- match
	}()

	select {
	case <-evalCtx.Done():
		return false, fmt.Errorf("detection script timed out after %v", d.timeout)
	case err := <-errCh:
		return false, err
	case match := <-resultCh:
		return match, nil
	}
}

func (d *scriptDetector) evaluate(ctx context.Context, m guest.Machine) (bool, error) {
	thread := &starlark.Thread{
		Name: "gantry-detect",
		Print: func(_ *starlark.Thread, msg string) {
			// Scripts have no output channel; print is a no-op.
		},
	}

	predeclared := starlark.StringDict{
		"run": starlark.NewBuiltin("run", func(t *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var cmd string
			if err := starlark.UnpackArgs(b.Name(), args, kwargs, "cmd", &cmd); err != nil {
				return nil, err
			}
			stdout, _, err := m.Run(ctx, cmd)
			if err != nil {
				// A failing probe command is an empty observation, not
				// a script failure.
				return starlark.String(""), nil
			}
			return starlark.String(stdout), nil
		}),
	}

	globals, err := starlark.ExecFile(thread, "detect.star", d.script, predeclared)
	if err != nil {
		return false, fmt.Errorf("detection script failed: %w", err)
	}

	matchVal, ok := globals["match"]
	if !ok {
		return false, fmt.Errorf("detection script did not set a %q global", "match")
	}
	match, ok := matchVal.(starlark.Bool)
	if !ok {
		return false, fmt.Errorf("detection script global %q must be a bool, got %s", "match", matchVal.Type())
	}

	return bool(match), nil
}
