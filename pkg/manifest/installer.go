package manifest

import (
	"context"
	"fmt"
	"os"
	"strings"

	"slipway/pkg/errors"
	"slipway/pkg/logger"
	"slipway/pkg/runner"
)

// Installer resolves a manifest into a target directory inside the
// staged image tree. A failed install leaves nothing usable behind.
type Installer interface {
	Install(ctx context.Context, m *Manifest, targetDir string) error
}

// PipInstaller installs python requirements with pip. Downloads are not
// cached so the committed layer carries only the installed packages.
type PipInstaller struct {
	Runner runner.CommandRunner
	// Python is the interpreter used to invoke pip; defaults to python3.
	Python string
}

var _ Installer = &PipInstaller{}

func (p *PipInstaller) Install(ctx context.Context, m *Manifest, targetDir string) error {
	if len(m.Requirements) == 0 {
		logger.Debug("dependency manifest is empty, nothing to install")
		return nil
	}
	if err := os.MkdirAll(targetDir, 0o755); err != nil {
		return errors.New(errors.CategoryIO, "install", "create install target", err)
	}

	python := p.Python
	if python == "" {
		python = "python3"
	}
	logger.Infof("installing %d requirements from %s", len(m.Requirements), m.Path)
	out, err := p.Runner.Run(ctx,
		python, "-m", "pip", "install",
		"--no-cache-dir",
		"--disable-pip-version-check",
		"--target", targetDir,
		"-r", m.Path,
	)
	if err != nil {
		// No partial-install recovery: the caller discards the staging tree.
		return errors.New(errors.CategoryManifest, "install",
			fmt.Sprintf("dependency installation failed: %s", lastLines(out, 20)), err)
	}
	return nil
}

// lastLines trims installer output to its tail, which is where pip
// reports the failing requirement.
func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
