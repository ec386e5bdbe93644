package search

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cloudwego/eino-ext/components/tool/duckduckgo/v2"
	"github.com/cloudwego/eino-ext/components/tool/googlesearch"
	"google.golang.org/genai"

	"studyguider/internal/config"
)

const toolTimeout = 10 * time.Second

// New builds the single live-search provider named in cfg.Search.Provider.
// genaiClient is only needed by the gemini provider.
func New(ctx context.Context, cfg *config.Config, genaiClient *genai.Client) (Searcher, error) {
	switch cfg.Search.Provider {
	case "gemini", "":
		g, err := NewGrounded(genaiClient, cfg.Search.Model)
		if err != nil {
			return nil, err
		}
		return g, nil
	case "google":
		apiKey := cfg.ProviderKey("gemini")
		if apiKey == "" || cfg.Search.SearchEngineID == "" {
			return nil, errors.New("google search requires GOOGLE_API_KEY and GOOGLE_SEARCH_ENGINE_ID")
		}
		t, err := googlesearch.NewTool(ctx, &googlesearch.Config{
			ToolName:       "web_search_google",
			ToolDesc:       "Google Search Tool",
			APIKey:         apiKey,
			SearchEngineID: cfg.Search.SearchEngineID,
			Lang:           "en",
			Num:            cfg.Search.MaxResults,
		})
		if err != nil {
			return nil, fmt.Errorf("init google search: %w", err)
		}
		return NewToolSearch("google", t), nil
	case "duckduckgo":
		t, err := duckduckgo.NewTextSearchTool(ctx, &duckduckgo.Config{
			ToolName:   "web_search_ddg",
			ToolDesc:   "DuckDuckGo Search Tool",
			MaxResults: cfg.Search.MaxResults,
			Region:     duckduckgo.RegionWT,
			Timeout:    toolTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("init duckduckgo search: %w", err)
		}
		return NewToolSearch("duckduckgo", t), nil
	default:
		return nil, fmt.Errorf("invalid search provider: %s", cfg.Search.Provider)
	}
}
