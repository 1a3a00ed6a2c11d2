// Package executil runs external commands on behalf of the collaborators
// that delegate to system tools (openssl, uuidgen, curl).
package executil

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// Runner executes a command and returns its standard output.
type Runner interface {
	Output(ctx context.Context, name string, args ...string) ([]byte, error)
}

// OSRunner runs commands with os/exec.
type OSRunner struct{}

// Output runs name with args. On failure the returned error includes the
// command's stderr.
func (OSRunner) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%s: %w: %s", name, err, msg)
		}
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return out, nil
}

// FirstOutput runs each command in turn and returns the trimmed output of
// the first one that succeeds with non-empty output.
func FirstOutput(ctx context.Context, r Runner, commands ...[]string) (string, error) {
	var errs []error
	for _, c := range commands {
		if len(c) == 0 {
			continue
		}
		out, err := r.Output(ctx, c[0], c[1:]...)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if s := strings.TrimSpace(string(out)); s != "" {
			return s, nil
		}
		errs = append(errs, fmt.Errorf("%s: empty output", c[0]))
	}
	return "", fmt.Errorf("all commands failed: %w", errors.Join(errs...))
}
