package process

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Runner executes one-shot commands.
type Runner interface {
	// Run executes name with args and returns its standard output.
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct {
	// Timeout bounds each command. Zero means only ctx applies.
	Timeout time.Duration
}

// Run implements Runner. A non-zero exit returns the captured stdout along
// with an error carrying the first line of stderr.
func (r ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec // binaries come from config.yaml
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		detail, _, _ := strings.Cut(strings.TrimSpace(stderr.String()), "\n")
		if detail != "" {
			return stdout.Bytes(), fmt.Errorf("%w: %s: %w: %s", ErrCommandFailed, name, err, detail)
		}
		return stdout.Bytes(), fmt.Errorf("%w: %s: %w", ErrCommandFailed, name, err)
	}
	return stdout.Bytes(), nil
}
