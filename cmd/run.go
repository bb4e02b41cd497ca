package cmd

import (
	"context"
	"os"
	"time"

	"github.com/spf13/cobra"

	"slipway/pkg/image"
	"slipway/pkg/logger"
	"slipway/pkg/runtime"
)

var (
	containerName string
	healthTimeout time.Duration
)

var runCmd = &cobra.Command{
	Use:   "run <name:tag>",
	Short: "Run a built image and serve its declared port",
	Long: `The run command materialises the image into an instance root
filesystem, starts the entrypoint, and waits for the process to bind its
declared port. A process that exits or never binds the port is stopped
and reported as a failure.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ref, err := image.ParseRef(args[0])
		if err != nil {
			return err
		}

		store, err := image.NewStore(storeDir)
		if err != nil {
			return err
		}
		img, err := store.Resolve(ref)
		if err != nil {
			return err
		}

		mgr, err := runtime.NewManager(store, runDir)
		if err != nil {
			return err
		}

		c, err := mgr.Run(cmd.Context(), img, runtime.Options{
			Name:          containerName,
			HealthTimeout: healthTimeout,
			Stdout:        os.Stdout,
			Stderr:        os.Stderr,
		})
		if err != nil {
			if c != nil {
				mgr.Remove(c)
			}
			return err
		}
		logger.Infof("Container %s is serving on port %d", c.Name(), img.Config.ExposedPort)

		// On interrupt the signal context cancels; stop the process with
		// a fresh context so the shutdown itself is not cut short.
		code, err := c.Wait(cmd.Context())
		if err != nil {
			stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if stopErr := c.Stop(stopCtx); stopErr != nil {
				logger.Warnf("Stopping container: %v", stopErr)
			}
			mgr.Remove(c)
			return nil
		}
		mgr.Remove(c)
		if code != 0 {
			logger.Errorf("Container %s exited with code %d", c.Name(), code)
			os.Exit(code)
		}
		return nil
	},
}

func init() {
	runCmd.Flags().StringVar(&containerName, "name", "", "Name for the container (defaults to <image>-<id>)")
	runCmd.Flags().DurationVar(&healthTimeout, "health-timeout", 10*time.Second, "How long the process may take to bind its declared port")
}
