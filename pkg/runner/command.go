// Package runner wraps external command execution behind a small
// interface so callers can be tested without shelling out.
package runner

import (
	"context"
	"errors"
	"os/exec"

	"slipway/pkg/logger"
)

// CommandRunner executes a command and returns its combined output.
type CommandRunner interface {
	Run(ctx context.Context, args ...string) (string, error)
}

// DefaultCommandRunner executes commands on the host.
type DefaultCommandRunner struct{}

var _ CommandRunner = &DefaultCommandRunner{}

func (d *DefaultCommandRunner) Run(ctx context.Context, args ...string) (string, error) {
	if len(args) == 0 {
		return "", errors.New("runner: no command given")
	}
	logger.Debugf("running command: %v", args)
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	out, err := cmd.CombinedOutput()
	logger.Debugf("command output: %s", string(out))
	return string(out), err
}

// FakeCommandRunner returns canned output and records every invocation.
type FakeCommandRunner struct {
	Output string
	ErrStr string
	Calls  [][]string
}

var _ CommandRunner = &FakeCommandRunner{}

func (f *FakeCommandRunner) Run(ctx context.Context, args ...string) (string, error) {
	f.Calls = append(f.Calls, args)
	if f.ErrStr != "" {
		return f.Output, errors.New(f.ErrStr)
	}
	return f.Output, nil
}
