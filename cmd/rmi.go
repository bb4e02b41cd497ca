package cmd

import (
	"github.com/spf13/cobra"

	"slipway/pkg/image"
	"slipway/pkg/logger"
)

var rmiCmd = &cobra.Command{
	Use:   "rmi <name:tag>...",
	Short: "Remove built images from the store",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := image.NewStore(storeDir)
		if err != nil {
			return err
		}
		for _, arg := range args {
			ref, err := image.ParseRef(arg)
			if err != nil {
				return err
			}
			if err := store.Remove(ref); err != nil {
				return err
			}
			logger.Infof("Removed %s", ref)
		}
		return nil
	},
}
