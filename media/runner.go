package media

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Runner executes external media tools. The exec-backed implementation is
// used in production; pipeline tests substitute a fake.
type Runner interface {
	// Run executes the tool and waits for it to exit.
	Run(ctx context.Context, name string, args ...string) error
	// Output executes the tool and returns its stdout.
	Output(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner shells out with a hard per-invocation timeout. A hung encoder
// kills the request after Timeout instead of hanging it forever.
type ExecRunner struct {
	Timeout time.Duration
}

func (r ExecRunner) Run(ctx context.Context, name string, args ...string) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return toolError(name, err, stderr.Bytes())
	}
	return nil
}

func (r ExecRunner) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, toolError(name, err, stderr.Bytes())
	}
	return stdout.Bytes(), nil
}

func (r ExecRunner) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.Timeout)
}

func toolError(name string, err error, stderr []byte) error {
	detail := strings.TrimSpace(string(stderr))
	if detail == "" {
		return fmt.Errorf("%s: %w", name, err)
	}
	// Keep the tail of stderr; ffmpeg banners bury the actual failure.
	const max = 512
	if len(detail) > max {
		detail = detail[len(detail)-max:]
	}
	return fmt.Errorf("%s: %w: %s", name, err, detail)
}
