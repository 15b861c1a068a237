package display

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"os/exec"
	"strings"
	"time"

	"github.com/nerrad567/lumy-core/internal/infrastructure/config"
)

// defaultCommandTimeout bounds one helper invocation. A full colour refresh
// on a 7.3" panel takes around 30 seconds.
const defaultCommandTimeout = 60 * time.Second

// CommandDriver drives the panel through the vendor helper binary.
//
// The helper is invoked as:
//
//	<command> [args...] --model <model> init|display|clear|sleep
//
// For display the frame is written to stdin as PNG.
type CommandDriver struct {
	command string
	args    []string
	model   string
	timeout time.Duration
}

// NewCommandDriver returns a driver for the given helper.
func NewCommandDriver(command string, args []string, model string, timeout time.Duration) *CommandDriver {
	if timeout <= 0 {
		timeout = defaultCommandTimeout
	}
	return &CommandDriver{command: command, args: args, model: model, timeout: timeout}
}

func (c *CommandDriver) Name() string { return config.DisplayDriverCommand }

func (c *CommandDriver) Init(ctx context.Context) error { return c.run(ctx, "init", nil) }

func (c *CommandDriver) Display(ctx context.Context, img image.Image) error {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return fmt.Errorf("encoding frame: %w", err)
	}
	return c.run(ctx, "display", &buf)
}

func (c *CommandDriver) Clear(ctx context.Context) error { return c.run(ctx, "clear", nil) }

func (c *CommandDriver) Sleep(ctx context.Context) error { return c.run(ctx, "sleep", nil) }

func (c *CommandDriver) run(ctx context.Context, sub string, stdin *bytes.Buffer) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	args := append([]string{}, c.args...)
	if c.model != "" {
		args = append(args, "--model", c.model)
	}
	args = append(args, sub)

	cmd := exec.CommandContext(ctx, c.command, args...) // #nosec G204 -- helper path comes from device config
	if stdin != nil {
		cmd.Stdin = stdin
	}
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%w: %s: %w: %s", ErrCommandFailed, sub, err, strings.TrimSpace(out.String()))
	}
	return nil
}
