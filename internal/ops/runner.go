package ops

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Runner executes an external program in dir.
type Runner interface {
	Run(ctx context.Context, dir, name string, args ...string) error
}

// ExecRunner runs programs with os/exec. When ctx ends the whole process
// group is killed, so grandchildren holding the output pipes die too.
type ExecRunner struct {
	Logger *zap.Logger
}

// maxStderr bounds how much child stderr is carried into an error.
const maxStderr = 2048

// waitDelay caps how long Run waits for output pipes after the process
// was killed.
const waitDelay = 2 * time.Second

func (r *ExecRunner) Run(ctx context.Context, dir, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = waitDelay
	setupProcessGroup(cmd)

	err := cmd.Run()
	if r.Logger != nil {
		r.Logger.Debug("subprocess finished",
			zap.String("command", name),
			zap.Strings("args", args),
			zap.Int("stdout_bytes", stdout.Len()),
			zap.Error(err),
		)
	}
	if err == nil {
		return nil
	}

	msg := strings.TrimSpace(stderr.String())
	if len(msg) > maxStderr {
		msg = msg[len(msg)-maxStderr:]
	}
	if msg != "" {
		return fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err, msg)
	}
	return fmt.Errorf("%s %s: %w", name, strings.Join(args, " "), err)
}

// Datagen installs the toolchain and runs the data generator with the
// configured user email.
func (h *Handlers) Datagen(ctx context.Context) (string, error) {
	if err := h.runner.Run(ctx, h.root, "uv", "install"); err != nil {
		return "", err
	}
	if err := h.runner.Run(ctx, h.root, "python", h.datagenScript, h.userEmail); err != nil {
		return "", err
	}
	return "Ran datagen.py successfully.", nil
}

// FormatMarkdown rewrites format.md in place with a pinned prettier.
func (h *Handlers) FormatMarkdown(ctx context.Context) (string, error) {
	target := h.path("format.md")
	if _, err := os.Stat(target); err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("format.md: no such file")
		}
		return "", fmt.Errorf("stat format.md: %w", err)
	}
	if err := h.runner.Run(ctx, h.root, "npx", "prettier@3.4.2", "--write", target); err != nil {
		return "", err
	}
	return "Formatted markdown file.", nil
}

// CloneRepo clones the configured repository into repo/.
func (h *Handlers) CloneRepo(ctx context.Context) (string, error) {
	if h.repoURL == "" {
		return "", fmt.Errorf("no repository URL configured")
	}
	if err := h.runner.Run(ctx, h.root, "git", "clone", h.repoURL, h.path("repo")); err != nil {
		return "", err
	}
	return "Cloned Git repository.", nil
}
