package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	"studyguider/internal/models"
)

const (
	ToolKnowledgeLookup = "knowledge_lookup"
	ToolLiveSearch      = "live_search"
)

const (
	notInKnowledgeBase = "The knowledge base has no information on this question."
	noSearchResults    = "The live search returned no results for this question."
)

// Retriever finds stored knowledge chunks relevant to a query.
type Retriever interface {
	Retrieve(ctx context.Context, query string) ([]models.KnowledgeChunk, error)
}

// Searcher runs a live web search and returns prose.
type Searcher interface {
	Search(ctx context.Context, query string) (string, error)
}

type queryParams struct {
	Query string `json:"query"`
}

func parseQuery(arguments string) (string, error) {
	var p queryParams
	if err := json.Unmarshal([]byte(arguments), &p); err != nil {
		return "", fmt.Errorf("invalid arguments %q: %w", arguments, err)
	}
	q := strings.TrimSpace(p.Query)
	if q == "" {
		return "", errors.New("query must not be empty")
	}
	return q, nil
}

func queryToolInfo(name, desc, paramDesc string) *schema.ToolInfo {
	return &schema.ToolInfo{
		Name: name,
		Desc: desc,
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"query": {
				Desc:     paramDesc,
				Type:     schema.String,
				Required: true,
			},
		}),
	}
}

// knowledgeLookup retrieves the nearest chunks and has the model answer from them only.
type knowledgeLookup struct {
	retriever Retriever
	answerer  model.BaseChatModel
}

var _ tool.InvokableTool = (*knowledgeLookup)(nil)

func (k *knowledgeLookup) Info(context.Context) (*schema.ToolInfo, error) {
	return queryToolInfo(ToolKnowledgeLookup,
		"Look up curated study abroad information (universities, scholarships, eligibility, programs) in the knowledge base. Use this first.",
		"Self-contained question to answer from the knowledge base"), nil
}

func (k *knowledgeLookup) InvokableRun(ctx context.Context, arguments string, _ ...tool.Option) (string, error) {
	query, err := parseQuery(arguments)
	if err != nil {
		return "", err
	}
	chunks, err := k.retriever.Retrieve(ctx, query)
	if err != nil {
		return "", err
	}
	if len(chunks) == 0 {
		return notInKnowledgeBase, nil
	}

	resp, err := k.answerer.Generate(ctx, []*schema.Message{
		schema.SystemMessage(synthesisInstruction),
		schema.UserMessage(synthesisPrompt(query, chunks)),
	})
	if err != nil {
		return "", fmt.Errorf("answer from knowledge: %w", err)
	}
	answer := strings.TrimSpace(resp.Content)
	if answer == "" || strings.Contains(answer, noAnswerMarker) {
		return notInKnowledgeBase, nil
	}
	return answer, nil
}

func synthesisPrompt(query string, chunks []models.KnowledgeChunk) string {
	var b strings.Builder
	b.WriteString("Context:\n")
	for i, c := range chunks {
		fmt.Fprintf(&b, "[%d] %s\n\n", i+1, strings.TrimSpace(c.Text))
	}
	b.WriteString("Question:\n")
	b.WriteString(query)
	return b.String()
}

type liveSearch struct {
	searcher Searcher
}

var _ tool.InvokableTool = (*liveSearch)(nil)

func (l *liveSearch) Info(context.Context) (*schema.ToolInfo, error) {
	return queryToolInfo(ToolLiveSearch,
		"Search the web for up-to-date study abroad information that the knowledge base does not cover.",
		"Search query about a study abroad topic"), nil
}

func (l *liveSearch) InvokableRun(ctx context.Context, arguments string, _ ...tool.Option) (string, error) {
	query, err := parseQuery(arguments)
	if err != nil {
		return "", err
	}
	out, err := l.searcher.Search(ctx, query)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(out) == "" {
		return noSearchResults, nil
	}
	return out, nil
}
