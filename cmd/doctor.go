package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"slipway/pkg/assist"
	"slipway/pkg/logger"
	"slipway/pkg/recipe"
)

var (
	doctorRecipe string
	doctorLog    string
	writeFix     bool
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Ask Azure OpenAI to diagnose a failed build",
	Long: `The doctor command sends the recipe and the captured build output to
an Azure OpenAI deployment and prints the diagnosis. Requires the
AZURE_OPENAI_KEY, AZURE_OPENAI_ENDPOINT and AZURE_OPENAI_DEPLOYMENT_ID
environment variables, which may come from a .env file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		recipeYAML, err := os.ReadFile(doctorRecipe)
		if err != nil {
			return fmt.Errorf("error reading recipe: %w", err)
		}

		var buildOutput string
		if doctorLog != "" {
			raw, err := os.ReadFile(doctorLog)
			if err != nil {
				return fmt.Errorf("error reading build log: %w", err)
			}
			buildOutput = string(raw)
		}

		advisor, err := assist.NewFromEnv()
		if err != nil {
			return err
		}

		suggestion, err := advisor.SuggestFix(cmd.Context(), string(recipeYAML), buildOutput)
		if err != nil {
			return err
		}

		fmt.Println(suggestion.Analysis)

		if suggestion.FixedRecipe == "" {
			logger.Warn("The model did not propose a corrected recipe")
			return nil
		}
		if !writeFix {
			return nil
		}
		// Only write back recipes that still parse and validate.
		fixed, err := recipe.Parse([]byte(suggestion.FixedRecipe))
		if err != nil {
			return fmt.Errorf("proposed recipe is invalid: %w", err)
		}
		if err := fixed.Validate(); err != nil {
			return fmt.Errorf("proposed recipe is invalid: %w", err)
		}
		if err := os.WriteFile(doctorRecipe, []byte(suggestion.FixedRecipe+"\n"), 0o644); err != nil {
			return fmt.Errorf("error writing recipe: %w", err)
		}
		logger.Infof("Wrote corrected recipe to %s", doctorRecipe)
		return nil
	},
}

func init() {
	doctorCmd.Flags().StringVarP(&doctorRecipe, "file", "f", "slipway.yaml", "Path to the recipe file")
	doctorCmd.Flags().StringVar(&doctorLog, "log", "", "Path to the captured build output")
	doctorCmd.Flags().BoolVar(&writeFix, "write", false, "Write the corrected recipe back to the recipe file")
}
