package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/briandowns/spinner"
	"github.com/spf13/cobra"

	"slipway/pkg/basefetch"
	"slipway/pkg/builder"
	"slipway/pkg/image"
	"slipway/pkg/logger"
	"slipway/pkg/manifest"
	"slipway/pkg/recipe"
	"slipway/pkg/runner"
)

var (
	recipePath string
	buildTag   string
)

var buildCmd = &cobra.Command{
	Use:   "build [context-dir]",
	Short: "Build an image from a recipe and a build context",
	Long: `The build command stages the build context, installs the python
requirements, and commits the result to the local image store. The same
recipe and context always produce the same image ID.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		contextDir, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("error getting current directory: %w", err)
		}
		if len(args) > 0 {
			contextDir = args[0]
		}

		target, err := image.ParseRef(buildTag)
		if err != nil {
			return err
		}

		rec, err := loadRecipe(recipePath)
		if err != nil {
			return err
		}

		b, err := newBuilder()
		if err != nil {
			return err
		}

		spin := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
		spin.Color("cyan", "bold")
		b.OnStage = func(name string) {
			spin.Suffix = fmt.Sprintf(" %s", name)
			if !spin.Active() {
				spin.Start()
			}
		}

		result, err := b.Build(cmd.Context(), rec, contextDir, target)
		spin.Stop()
		if err != nil {
			return err
		}

		logger.Infof("Built %s", target)
		logger.Infof("Image ID: %s", result.Image.ID)
		for _, timing := range result.Timings {
			logger.Debugf("  %-16s %s", timing.Name, timing.Duration.Round(time.Millisecond))
		}
		return nil
	},
}

// loadRecipe reads the recipe file, or falls back to the built-in
// defaults when no file was given and none exists in the working tree.
func loadRecipe(path string) (*recipe.Recipe, error) {
	if path != "" {
		return recipe.Load(path)
	}
	if _, err := os.Stat("slipway.yaml"); err == nil {
		return recipe.Load("slipway.yaml")
	}
	logger.Warn("No recipe found, using built-in defaults")
	return recipe.Default(), nil
}

func newBuilder() (*builder.Builder, error) {
	store, err := image.NewStore(storeDir)
	if err != nil {
		return nil, err
	}
	catalog, err := basefetch.NewCatalog(catalogDir)
	if err != nil {
		return nil, err
	}
	installer := &manifest.PipInstaller{Runner: &runner.DefaultCommandRunner{}}
	return builder.New(store, catalog, installer), nil
}

func init() {
	buildCmd.Flags().StringVarP(&recipePath, "file", "f", "", "Path to the recipe file (defaults to ./slipway.yaml)")
	buildCmd.Flags().StringVarP(&buildTag, "tag", "t", "", "Name and tag for the built image, e.g. dashboard:v1")
	buildCmd.MarkFlagRequired("tag")
}
