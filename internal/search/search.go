package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/tool"
	"google.golang.org/genai"
)

var ErrEmptyQuery = errors.New("search query must not be empty")

// Searcher returns a prose summary of live web results for query.
type Searcher interface {
	Search(ctx context.Context, query string) (string, error)
}

type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Grounded asks Gemini to answer the query with Google Search grounding enabled.
type Grounded struct {
	models contentGenerator
	model  string
}

func NewGrounded(client *genai.Client, model string) (*Grounded, error) {
	if client == nil || client.Models == nil {
		return nil, errors.New("genai client required")
	}
	return newGrounded(client.Models, model), nil
}

func newGrounded(models contentGenerator, model string) *Grounded {
	if model == "" {
		model = "gemini-2.5-flash"
	}
	return &Grounded{models: models, model: model}
}

func (g *Grounded) Search(ctx context.Context, query string) (string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return "", ErrEmptyQuery
	}
	resp, err := g.models.GenerateContent(ctx, g.model, genai.Text(query), &genai.GenerateContentConfig{
		Tools: []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}},
	})
	if err != nil {
		return "", fmt.Errorf("grounded search: %w", err)
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", errors.New("grounded search returned no text")
	}
	return text, nil
}

// ToolSearch runs a search through an eino search tool (Google custom search
// or DuckDuckGo) and flattens its JSON results into readable text.
type ToolSearch struct {
	name string
	tool tool.InvokableTool
}

func NewToolSearch(name string, t tool.InvokableTool) *ToolSearch {
	return &ToolSearch{name: name, tool: t}
}

type searchParams struct {
	Query string `json:"query"`
}

func (s *ToolSearch) Search(ctx context.Context, query string) (string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return "", ErrEmptyQuery
	}
	payload, err := json.Marshal(searchParams{Query: query})
	if err != nil {
		return "", fmt.Errorf("marshal search params: %w", err)
	}
	raw, err := s.tool.InvokableRun(ctx, string(payload))
	if err != nil {
		return "", fmt.Errorf("%s search: %w", s.name, err)
	}
	return formatResults(raw), nil
}

type searchItem struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
	Summary string `json:"summary"`
	Desc    string `json:"desc"`
}

// formatResults understands the result shapes of the google and duckduckgo
// tools; anything else is returned as is.
func formatResults(raw string) string {
	var envelope struct {
		Items   []searchItem `json:"items"`
		Results []searchItem `json:"results"`
	}
	if err := json.Unmarshal([]byte(raw), &envelope); err != nil {
		return strings.TrimSpace(raw)
	}
	items := envelope.Items
	if len(items) == 0 {
		items = envelope.Results
	}
	if len(items) == 0 {
		return strings.TrimSpace(raw)
	}

	var b strings.Builder
	for i, item := range items {
		link := item.Link
		if link == "" {
			link = item.URL
		}
		snippet := item.Snippet
		if snippet == "" {
			snippet = item.Summary
		}
		if snippet == "" {
			snippet = item.Desc
		}
		fmt.Fprintf(&b, "%d. %s\n", i+1, strings.TrimSpace(item.Title))
		if snippet != "" {
			fmt.Fprintf(&b, "   %s\n", strings.TrimSpace(snippet))
		}
		if link != "" {
			fmt.Fprintf(&b, "   Source: %s\n", link)
		}
	}
	return strings.TrimSpace(b.String())
}
