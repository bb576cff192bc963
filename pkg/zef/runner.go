package zef

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
)

// CommandRunner abstracts subprocess execution so the parsing grammar can
// be tested without a zef installation.
type CommandRunner interface {
	// Run executes name with args and returns stdout, stderr, and the
	// process exit code. err is non-nil when the process could not be
	// started or exited non-zero.
	Run(ctx context.Context, name string, args ...string) ([]byte, []byte, int, error)
}

// ExecRunner executes commands on the local host.
type ExecRunner struct{}

// Run implements CommandRunner backed by os/exec.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, int, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err == nil {
		return stdout.Bytes(), stderr.Bytes(), 0, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return stdout.Bytes(), stderr.Bytes(), exitErr.ExitCode(), err
	}
	// Start failure: conventionally 127 for "command not found".
	return stdout.Bytes(), stderr.Bytes(), 127, err
}
