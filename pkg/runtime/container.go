// Package runtime runs containers as managed processes. A container is
// an image materialized into an instance rootfs plus exactly one
// supervised child process; its lifecycle is bound to that process.
// The declared exposed port is enforced here: a container whose entry
// process does not bind it fails its health check and is stopped.
package runtime

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"sync"
	"syscall"
	"time"

	"slipway/pkg/errors"
	"slipway/pkg/image"
	"slipway/pkg/logger"
)

// Status is the container lifecycle state.
type Status string

const (
	// StatusCreated means the rootfs is materialized, no process yet.
	StatusCreated Status = "created"
	// StatusRunning means the entry process is alive.
	StatusRunning Status = "running"
	// StatusExited means the entry process ended on its own.
	StatusExited Status = "exited"
	// StatusStopped means the process was terminated by Stop.
	StatusStopped Status = "stopped"
)

// Options tune one container instance.
type Options struct {
	// Name is a human handle; defaults to image name plus a short ID.
	Name string
	// GracePeriod is how long the entry process gets before the first
	// port probe.
	GracePeriod time.Duration
	// HealthTimeout bounds the whole port probe window.
	HealthTimeout time.Duration
	// StopTimeout is how long Stop waits after SIGTERM before SIGKILL.
	StopTimeout time.Duration
	// Stdout and Stderr receive the process output; discarded when nil.
	Stdout io.Writer
	Stderr io.Writer
}

func (o *Options) applyDefaults() {
	if o.GracePeriod <= 0 {
		o.GracePeriod = 200 * time.Millisecond
	}
	if o.HealthTimeout <= 0 {
		o.HealthTimeout = 10 * time.Second
	}
	if o.StopTimeout <= 0 {
		o.StopTimeout = 10 * time.Second
	}
	if o.Stdout == nil {
		o.Stdout = io.Discard
	}
	if o.Stderr == nil {
		o.Stderr = io.Discard
	}
}

// Container supervises one process inside one instance rootfs.
type Container struct {
	id      string
	name    string
	img     *image.Image
	rootfs  string
	workdir string
	opts    Options

	mu       sync.Mutex
	status   Status
	cmd      *exec.Cmd
	done     chan struct{}
	stopping bool
	exitCode int
	exitErr  error
}

// ID returns the container ID.
func (c *Container) ID() string { return c.id }

// Name returns the container name.
func (c *Container) Name() string { return c.name }

// Image returns the image this container was created from.
func (c *Container) Image() *image.Image { return c.img }

// Rootfs returns the instance rootfs directory.
func (c *Container) Rootfs() string { return c.rootfs }

// Status returns the current lifecycle state.
func (c *Container) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// ExitCode returns the recorded exit code. Only meaningful once the
// container has left the running state.
func (c *Container) ExitCode() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.exitCode
}

// Start launches the entry process. Legal only from the created state;
// a container is started at most once.
func (c *Container) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status != StatusCreated {
		return errors.Newf(errors.CategoryRuntime, "start",
			"container %s is %s, cannot start", c.id, c.status)
	}

	argv := c.img.Config.Entrypoint
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = c.workdir
	cmd.Env = c.processEnv()
	cmd.Stdout = c.opts.Stdout
	cmd.Stderr = c.opts.Stderr

	if err := cmd.Start(); err != nil {
		// Entry-point execution failure: surfaced directly, no retry.
		c.status = StatusExited
		c.exitCode = -1
		c.exitErr = err
		close(c.done)
		return errors.New(errors.CategoryRuntime, "start",
			fmt.Sprintf("entrypoint %v failed to start", argv), err)
	}

	c.cmd = cmd
	c.status = StatusRunning
	logger.Infof("container %s started pid %d (%v)", shortID(c.id), cmd.Process.Pid, argv)
	go c.reap()
	return nil
}

// reap waits for the process and settles the final state.
func (c *Container) reap() {
	err := c.cmd.Wait()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.exitErr = err
	c.exitCode = c.cmd.ProcessState.ExitCode()
	if c.stopping {
		c.status = StatusStopped
	} else {
		c.status = StatusExited
	}
	logger.Debugf("container %s %s with exit code %d", shortID(c.id), c.status, c.exitCode)
	close(c.done)
}

// Wait blocks until the process exits or ctx is done, and returns the
// exit code.
func (c *Container) Wait(ctx context.Context) (int, error) {
	select {
	case <-c.done:
		return c.ExitCode(), nil
	case <-ctx.Done():
		return 0, errors.New(errors.CategoryRuntime, "wait", "wait cancelled", ctx.Err())
	}
}

// Stop terminates the process: SIGTERM first, SIGKILL after the stop
// timeout. Stopping a container that is not running is a no-op.
func (c *Container) Stop(ctx context.Context) error {
	c.mu.Lock()
	switch c.status {
	case StatusCreated:
		// Never started; settle it as stopped so Wait returns.
		c.status = StatusStopped
		close(c.done)
		c.mu.Unlock()
		return nil
	case StatusExited, StatusStopped:
		c.mu.Unlock()
		return nil
	}
	c.stopping = true
	proc := c.cmd.Process
	c.mu.Unlock()

	logger.Debugf("stopping container %s", shortID(c.id))
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		// Process already gone; the reaper will settle state.
		logger.Debugf("signal container %s: %v", shortID(c.id), err)
	}

	select {
	case <-c.done:
		return nil
	case <-ctx.Done():
		return errors.New(errors.CategoryRuntime, "stop", "stop cancelled", ctx.Err())
	case <-time.After(c.opts.StopTimeout):
	}

	logger.Warnf("container %s ignored SIGTERM, killing", shortID(c.id))
	if err := proc.Kill(); err != nil {
		logger.Debugf("kill container %s: %v", shortID(c.id), err)
	}
	select {
	case <-c.done:
		return nil
	case <-ctx.Done():
		return errors.New(errors.CategoryRuntime, "stop", "stop cancelled", ctx.Err())
	}
}

// processEnv merges the host environment with the image environment.
// Relative paths in image env (such as the vendor PYTHONPATH) resolve
// against the working directory.
func (c *Container) processEnv() []string {
	env := os.Environ()
	keys := make([]string, 0, len(c.img.Config.Env))
	for k := range c.img.Config.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+c.img.Config.Env[k])
	}
	return env
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
