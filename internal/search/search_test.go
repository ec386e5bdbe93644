package search

import (
	"context"
	"errors"
	"testing"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"studyguider/internal/config"
)

type fakeGenerator struct {
	text  string
	err   error
	model string
	cfg   *genai.GenerateContentConfig
}

func (f *fakeGenerator) GenerateContent(_ context.Context, model string, _ []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.model = model
	f.cfg = cfg
	if f.err != nil {
		return nil, f.err
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{{Text: f.text}}},
		}},
	}, nil
}

func TestGroundedSearchEnablesGoogleSearchTool(t *testing.T) {
	gen := &fakeGenerator{text: "Tuition at TU Munich is free for most programs."}
	g := newGrounded(gen, "")

	out, err := g.Search(context.Background(), "tuition TU Munich")
	require.NoError(t, err)
	assert.Equal(t, "Tuition at TU Munich is free for most programs.", out)
	assert.Equal(t, "gemini-2.5-flash", gen.model)
	require.Len(t, gen.cfg.Tools, 1)
	assert.NotNil(t, gen.cfg.Tools[0].GoogleSearch)
}

func TestGroundedSearchErrors(t *testing.T) {
	_, err := newGrounded(&fakeGenerator{text: "x"}, "").Search(context.Background(), "  ")
	require.ErrorIs(t, err, ErrEmptyQuery)

	boom := errors.New("quota")
	_, err = newGrounded(&fakeGenerator{err: boom}, "").Search(context.Background(), "q")
	require.ErrorIs(t, err, boom)

	_, err = newGrounded(&fakeGenerator{text: ""}, "").Search(context.Background(), "q")
	require.Error(t, err)
}

type fakeTool struct {
	args   string
	result string
	err    error
}

func (f *fakeTool) Info(context.Context) (*schema.ToolInfo, error) {
	return &schema.ToolInfo{Name: "fake"}, nil
}

func (f *fakeTool) InvokableRun(_ context.Context, args string, _ ...tool.Option) (string, error) {
	f.args = args
	return f.result, f.err
}

func TestToolSearchFormatsGoogleItems(t *testing.T) {
	ft := &fakeTool{result: `{"query":"q","items":[{"title":"Study in Canada","link":"https://example.org/ca","snippet":"Permits take 8 weeks."}]}`}
	out, err := NewToolSearch("google", ft).Search(context.Background(), "study permit canada")
	require.NoError(t, err)

	assert.JSONEq(t, `{"query":"study permit canada"}`, ft.args)
	assert.Contains(t, out, "1. Study in Canada")
	assert.Contains(t, out, "Permits take 8 weeks.")
	assert.Contains(t, out, "Source: https://example.org/ca")
}

func TestToolSearchFormatsDuckDuckGoResults(t *testing.T) {
	ft := &fakeTool{result: `{"results":[{"title":"IELTS","url":"https://example.org/ielts","summary":"English test."}]}`}
	out, err := NewToolSearch("duckduckgo", ft).Search(context.Background(), "ielts")
	require.NoError(t, err)
	assert.Contains(t, out, "English test.")
	assert.Contains(t, out, "https://example.org/ielts")
}

func TestToolSearchPassesThroughUnknownShapes(t *testing.T) {
	ft := &fakeTool{result: "plain text answer"}
	out, err := NewToolSearch("duckduckgo", ft).Search(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, "plain text answer", out)

	ft.err = errors.New("rate limited")
	_, err = NewToolSearch("duckduckgo", ft).Search(context.Background(), "q")
	require.ErrorIs(t, err, ft.err)
}

func TestNewRejectsUnconfiguredProviders(t *testing.T) {
	cfg := config.Default()
	cfg.Search.Provider = "google"
	_, err := New(context.Background(), cfg, nil)
	require.Error(t, err)

	cfg.Search.Provider = "gemini"
	_, err = New(context.Background(), cfg, nil)
	require.Error(t, err)

	cfg.Search.Provider = "bing"
	_, err = New(context.Background(), cfg, nil)
	require.Error(t, err)
}
