// Package assist asks an Azure OpenAI deployment to diagnose failed
// builds and propose a corrected recipe.
package assist

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/ai/azopenai"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"

	"slipway/pkg/errors"
)

const (
	EnvOpenAIKey          = "AZURE_OPENAI_KEY"
	EnvOpenAIEndpoint     = "AZURE_OPENAI_ENDPOINT"
	EnvOpenAIDeploymentID = "AZURE_OPENAI_DEPLOYMENT_ID"
)

// recipeTagRe captures the corrected recipe the model is asked to emit
// between <<<RECIPE>>> markers.
var recipeTagRe = regexp.MustCompile(`<<<RECIPE>>>([\s\S]*?)<<<RECIPE>>>`)

// Suggestion is the advisor's verdict on a failed build.
type Suggestion struct {
	// FixedRecipe is the corrected recipe YAML, empty when the model
	// did not produce one.
	FixedRecipe string
	// Analysis is the model's full explanation.
	Analysis string
}

// completer is the slice of the Azure OpenAI client the advisor uses.
type completer interface {
	GetChatCompletions(ctx context.Context, body azopenai.ChatCompletionsOptions, options *azopenai.GetChatCompletionsOptions) (azopenai.GetChatCompletionsResponse, error)
}

// Advisor sends build failures to a chat deployment for diagnosis.
type Advisor struct {
	client       completer
	deploymentID string
}

// NewFromEnv builds an Advisor from the AZURE_OPENAI_* environment
// variables. All three must be set.
func NewFromEnv() (*Advisor, error) {
	apiKey := os.Getenv(EnvOpenAIKey)
	endpoint := os.Getenv(EnvOpenAIEndpoint)
	deploymentID := os.Getenv(EnvOpenAIDeploymentID)

	var missing []string
	if apiKey == "" {
		missing = append(missing, EnvOpenAIKey)
	}
	if endpoint == "" {
		missing = append(missing, EnvOpenAIEndpoint)
	}
	if deploymentID == "" {
		missing = append(missing, EnvOpenAIDeploymentID)
	}
	if len(missing) > 0 {
		return nil, errors.Newf(errors.CategoryConfig, "assist",
			"missing environment variables: %s", strings.Join(missing, ", "))
	}

	client, err := azopenai.NewClientWithKeyCredential(endpoint, azcore.NewKeyCredential(apiKey), nil)
	if err != nil {
		return nil, errors.Wrap(errors.CategoryConfig, "assist", "creating Azure OpenAI client", err)
	}
	return &Advisor{client: client, deploymentID: deploymentID}, nil
}

// SuggestFix asks the model to diagnose a failed build and propose a
// corrected recipe.
func (a *Advisor) SuggestFix(ctx context.Context, recipeYAML, buildOutput string) (*Suggestion, error) {
	resp, err := a.client.GetChatCompletions(
		ctx,
		azopenai.ChatCompletionsOptions{
			DeploymentName: to.Ptr(a.deploymentID),
			Messages: []azopenai.ChatRequestMessageClassification{
				&azopenai.ChatRequestUserMessage{
					Content: azopenai.NewChatRequestUserMessageContent(buildPrompt(recipeYAML, buildOutput)),
				},
			},
		},
		nil,
	)
	if err != nil {
		return nil, errors.Wrap(errors.CategoryConfig, "suggest-fix", "chat completion request failed", err)
	}

	if len(resp.Choices) == 0 || resp.Choices[0].Message == nil || resp.Choices[0].Message.Content == nil {
		return nil, errors.New(errors.CategoryConfig, "suggest-fix", "no response from model", nil)
	}
	content := *resp.Choices[0].Message.Content

	return &Suggestion{
		FixedRecipe: extractRecipe(content),
		Analysis:    content,
	}, nil
}

func buildPrompt(recipeYAML, buildOutput string) string {
	promptText := fmt.Sprintf(`Analyze the following build recipe for errors and suggest fixes:
Recipe:
%s
`, recipeYAML)

	if buildOutput != "" {
		promptText += fmt.Sprintf(`
Errors encountered when building with this recipe:
%s
`, buildOutput)
	} else {
		promptText += `
No error messages were provided. Please check for potential issues in the recipe.
`
	}

	promptText += `
Please:
1. Identify any issues in the recipe
2. Provide a fixed version of the recipe in YAML
3. Explain what changes were made and why

Output the fixed recipe between <<<RECIPE>>> tags.`
	return promptText
}

// extractRecipe pulls the YAML between <<<RECIPE>>> tags, falling back
// to a fenced yaml block when the model ignored the tag instruction.
func extractRecipe(content string) string {
	if matches := recipeTagRe.FindStringSubmatch(content); len(matches) > 1 {
		return strings.TrimSpace(matches[1])
	}
	fenceRe := regexp.MustCompile("```(?:yaml|yml)?\n([\\s\\S]*?)```")
	if matches := fenceRe.FindStringSubmatch(content); len(matches) > 1 {
		if candidate := strings.TrimSpace(matches[1]); strings.Contains(candidate, "base:") {
			return candidate
		}
	}
	return ""
}
