package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"google.golang.org/genai"

	"studyguider/internal/config"
)

const claudeMaxTokens = 3000

var ErrMissingAPIKey = errors.New("api key not configured")

// NewGenAIClient creates the Gemini API client shared by embeddings,
// grounded search and the gemini chat model.
func NewGenAIClient(ctx context.Context, apiKey string) (*genai.Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini: %w", ErrMissingAPIKey)
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return client, nil
}

// NewChatModel builds the tool-calling chat model for cfg.Agent.Provider.
// genaiClient is reused for the gemini provider and may be nil otherwise.
func NewChatModel(ctx context.Context, cfg *config.Config, genaiClient *genai.Client) (model.ToolCallingChatModel, error) {
	provider := cfg.Agent.Provider
	provCfg := cfg.Providers[provider]
	modelName := cfg.Agent.Model
	if modelName == "" {
		modelName = provCfg.Model
	}

	var (
		chatModel model.ToolCallingChatModel
		err       error
	)
	switch provider {
	case "gemini":
		if genaiClient == nil {
			genaiClient, err = NewGenAIClient(ctx, provCfg.APIKey)
			if err != nil {
				return nil, err
			}
		}
		chatModel, err = gemini.NewChatModel(ctx, &gemini.Config{
			Client: genaiClient,
			Model:  modelName,
		})
	case "openai":
		if provCfg.APIKey == "" {
			return nil, fmt.Errorf("openai: %w", ErrMissingAPIKey)
		}
		chatModel, err = openai.NewChatModel(ctx, &openai.ChatModelConfig{
			BaseURL: provCfg.BaseURL,
			Model:   modelName,
			APIKey:  provCfg.APIKey,
		})
	case "claude":
		if provCfg.APIKey == "" {
			return nil, fmt.Errorf("claude: %w", ErrMissingAPIKey)
		}
		var baseURLPtr *string
		if provCfg.BaseURL != "" {
			baseURLPtr = &provCfg.BaseURL
		}
		chatModel, err = claude.NewChatModel(ctx, &claude.Config{
			APIKey:    provCfg.APIKey,
			Model:     modelName,
			BaseURL:   baseURLPtr,
			MaxTokens: claudeMaxTokens,
		})
	default:
		return nil, fmt.Errorf("invalid provider: %s", provider)
	}
	if err != nil {
		return nil, fmt.Errorf("init %s chat model: %w", provider, err)
	}
	return chatModel, nil
}
