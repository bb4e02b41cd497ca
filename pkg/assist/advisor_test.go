package assist

import (
	"context"
	"testing"

	"github.com/Azure/azure-sdk-for-go/sdk/ai/azopenai"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slipway/pkg/errors"
)

type fakeCompleter struct {
	content string
	err     error
	gotBody azopenai.ChatCompletionsOptions
}

func (f *fakeCompleter) GetChatCompletions(_ context.Context, body azopenai.ChatCompletionsOptions, _ *azopenai.GetChatCompletionsOptions) (azopenai.GetChatCompletionsResponse, error) {
	f.gotBody = body
	if f.err != nil {
		return azopenai.GetChatCompletionsResponse{}, f.err
	}
	return azopenai.GetChatCompletionsResponse{
		ChatCompletions: azopenai.ChatCompletions{
			Choices: []azopenai.ChatChoice{
				{Message: &azopenai.ChatResponseMessage{Content: to.Ptr(f.content)}},
			},
		},
	}, nil
}

func TestNewFromEnvRequiresAllVariables(t *testing.T) {
	t.Setenv(EnvOpenAIKey, "")
	t.Setenv(EnvOpenAIEndpoint, "https://example.openai.azure.com")
	t.Setenv(EnvOpenAIDeploymentID, "gpt-4o")

	_, err := NewFromEnv()
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfig))
	assert.Contains(t, err.Error(), EnvOpenAIKey)
}

func TestSuggestFixExtractsTaggedRecipe(t *testing.T) {
	fake := &fakeCompleter{content: `The entrypoint module name is wrong.

<<<RECIPE>>>
base: python:3.11-slim
workdir: /app
expose: 8050
entrypoint: ["python", "app.py"]
<<<RECIPE>>>

Changed the entrypoint to reference app.py.`}
	a := &Advisor{client: fake, deploymentID: "gpt-4o"}

	got, err := a.SuggestFix(context.Background(), "base: python:3.11-slim\n", "ModuleNotFoundError: No module named 'main'")
	require.NoError(t, err)
	assert.Contains(t, got.FixedRecipe, "base: python:3.11-slim")
	assert.Contains(t, got.FixedRecipe, `entrypoint: ["python", "app.py"]`)
	assert.NotContains(t, got.FixedRecipe, "<<<RECIPE>>>")
	assert.Contains(t, got.Analysis, "entrypoint module name is wrong")

	require.NotNil(t, fake.gotBody.DeploymentName)
	assert.Equal(t, "gpt-4o", *fake.gotBody.DeploymentName)
}

func TestSuggestFixFallsBackToFencedBlock(t *testing.T) {
	fake := &fakeCompleter{content: "Here you go:\n```yaml\nbase: python:3.11-slim\nexpose: 8050\n```\n"}
	a := &Advisor{client: fake, deploymentID: "gpt-4o"}

	got, err := a.SuggestFix(context.Background(), "", "pip failed")
	require.NoError(t, err)
	assert.Equal(t, "base: python:3.11-slim\nexpose: 8050", got.FixedRecipe)
}

func TestSuggestFixWithoutRecipeInResponse(t *testing.T) {
	fake := &fakeCompleter{content: "I could not determine a fix."}
	a := &Advisor{client: fake, deploymentID: "gpt-4o"}

	got, err := a.SuggestFix(context.Background(), "", "")
	require.NoError(t, err)
	assert.Empty(t, got.FixedRecipe)
	assert.Equal(t, "I could not determine a fix.", got.Analysis)
}

func TestBuildPromptIncludesErrors(t *testing.T) {
	p := buildPrompt("base: python:3.11-slim\n", "ERROR: No matching distribution found for dashh")
	assert.Contains(t, p, "base: python:3.11-slim")
	assert.Contains(t, p, "No matching distribution found")
	assert.Contains(t, p, "<<<RECIPE>>>")

	p = buildPrompt("base: python:3.11-slim\n", "")
	assert.Contains(t, p, "No error messages were provided")
}
