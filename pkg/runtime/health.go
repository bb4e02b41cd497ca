package runtime

import (
	"context"
	"fmt"
	"net"
	"time"

	"slipway/pkg/errors"
	"slipway/pkg/logger"
)

// probeInterval is the pause between port probes.
const probeInterval = 100 * time.Millisecond

// HealthCheck verifies the declared port contract: after the grace
// period, the entry process must accept TCP connections on the exposed
// port within the health timeout. Divergence between the declared and
// the actual port is a contract violation; the container is stopped
// and an error returned.
func (c *Container) HealthCheck(ctx context.Context) error {
	if c.Status() != StatusRunning {
		return errors.Newf(errors.CategoryRuntime, "health",
			"container %s is %s, nothing to check", c.id, c.Status())
	}
	port := c.img.Config.ExposedPort

	select {
	case <-time.After(c.opts.GracePeriod):
	case <-ctx.Done():
		return errors.New(errors.CategoryRuntime, "health", "health check cancelled", ctx.Err())
	case <-c.done:
		return c.earlyExitError(port)
	}

	deadline := time.Now().Add(c.opts.HealthTimeout)
	addr := fmt.Sprintf("127.0.0.1:%d", port)
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return errors.New(errors.CategoryRuntime, "health", "health check cancelled", ctx.Err())
		case <-c.done:
			return c.earlyExitError(port)
		default:
		}

		conn, err := net.DialTimeout("tcp", addr, probeInterval)
		if err == nil {
			conn.Close()
			logger.Infof("container %s is serving on declared port %d", shortID(c.id), port)
			return nil
		}
		time.Sleep(probeInterval)
	}

	// Fail fast: the advertised contact point is not real.
	stopCtx, cancel := context.WithTimeout(context.Background(), c.opts.StopTimeout*2)
	defer cancel()
	if err := c.Stop(stopCtx); err != nil {
		logger.Warnf("stop after failed health check: %v", err)
	}
	return errors.Newf(errors.CategoryRuntime, "health",
		"container %s never bound declared port %d within %s", shortID(c.id), port, c.opts.HealthTimeout)
}

func (c *Container) earlyExitError(port int) error {
	return errors.Newf(errors.CategoryRuntime, "health",
		"container %s exited with code %d before binding declared port %d", shortID(c.id), c.ExitCode(), port)
}
