package embedding

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"
	"google.golang.org/genai"
)

// Mode selects how a text is embedded; documents and queries use different task types.
type Mode int

const (
	ModeDocument Mode = iota
	ModeQuery
)

func (m Mode) taskType() string {
	if m == ModeQuery {
		return "RETRIEVAL_QUERY"
	}
	return "RETRIEVAL_DOCUMENT"
}

func (m Mode) String() string {
	if m == ModeQuery {
		return "query"
	}
	return "document"
}

const (
	// DefaultModel is the Gemini embedding model the knowledge base is built with.
	DefaultModel = "text-embedding-004"
	// MaxBatchSize is the Gemini limit of contents per embed request.
	MaxBatchSize = 100

	defaultConcurrency = 4
)

// Embedder turns texts into vectors, one per input, in input order.
type Embedder interface {
	Embed(ctx context.Context, texts []string, mode Mode) ([][]float32, error)
}

type contentEmbedder interface {
	EmbedContent(ctx context.Context, model string, contents []*genai.Content, config *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error)
}

// Client embeds texts through the Gemini embedding API.
type Client struct {
	models      contentEmbedder
	model       string
	batchSize   int
	concurrency int
}

// NewClient wraps an initialized genai client.
func NewClient(client *genai.Client, model string, batchSize int) (*Client, error) {
	if client == nil || client.Models == nil {
		return nil, errors.New("genai client required")
	}
	return newClient(client.Models, model, batchSize), nil
}

func newClient(models contentEmbedder, model string, batchSize int) *Client {
	if model == "" {
		model = DefaultModel
	}
	if batchSize <= 0 || batchSize > MaxBatchSize {
		batchSize = MaxBatchSize
	}
	return &Client{
		models:      models,
		model:       model,
		batchSize:   batchSize,
		concurrency: defaultConcurrency,
	}
}

// Embed returns one vector per text. Inputs larger than one batch are sent
// as concurrent requests; an error in any batch fails the whole call.
func (c *Client) Embed(ctx context.Context, texts []string, mode Mode) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	out := make([][]float32, len(texts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for start := 0; start < len(texts); start += c.batchSize {
		end := min(start+c.batchSize, len(texts))
		g.Go(func() error {
			vectors, err := c.embedBatch(gctx, texts[start:end], mode)
			if err != nil {
				return err
			}
			copy(out[start:end], vectors)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	dim := len(out[0])
	for i, v := range out {
		if len(v) != dim {
			return nil, fmt.Errorf("embedding %d has dimension %d, want %d", i, len(v), dim)
		}
	}
	return out, nil
}

func (c *Client) embedBatch(ctx context.Context, texts []string, mode Mode) ([][]float32, error) {
	contents := make([]*genai.Content, 0, len(texts))
	for _, text := range texts {
		contents = append(contents, genai.NewContentFromText(text, genai.RoleUser))
	}
	resp, err := c.models.EmbedContent(ctx, c.model, contents, &genai.EmbedContentConfig{
		TaskType: mode.taskType(),
	})
	if err != nil {
		return nil, fmt.Errorf("embed %d %s texts: %w", len(texts), mode, err)
	}
	if resp == nil || len(resp.Embeddings) != len(texts) {
		got := 0
		if resp != nil {
			got = len(resp.Embeddings)
		}
		return nil, fmt.Errorf("embed: expected %d embeddings, got %d", len(texts), got)
	}
	vectors := make([][]float32, len(texts))
	for i, e := range resp.Embeddings {
		if e == nil || len(e.Values) == 0 {
			return nil, fmt.Errorf("embed: empty embedding at index %d", i)
		}
		vectors[i] = e.Values
	}
	return vectors, nil
}

// Func adapts an Embedder into a single-text embedding function, the shape
// vector stores expect for embedding query strings themselves.
func Func(e Embedder, mode Mode) func(ctx context.Context, text string) ([]float32, error) {
	return func(ctx context.Context, text string) ([]float32, error) {
		vectors, err := e.Embed(ctx, []string{text}, mode)
		if err != nil {
			return nil, err
		}
		return vectors[0], nil
	}
}
