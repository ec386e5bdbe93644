package knowledge

import (
	"context"
	"fmt"
	"strings"

	"studyguider/internal/embedding"
	"studyguider/internal/models"
)

type index interface {
	Query(ctx context.Context, embedding []float32, k int) ([]models.KnowledgeChunk, error)
}

// Retriever answers text queries against the store: the query is embedded in
// query mode and the k nearest chunks are returned.
type Retriever struct {
	embedder embedding.Embedder
	index    index
	topK     int
}

func NewRetriever(embedder embedding.Embedder, store index, topK int) *Retriever {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &Retriever{embedder: embedder, index: store, topK: topK}
}

// Retrieve returns the nearest chunks for query, closest first.
func (r *Retriever) Retrieve(ctx context.Context, query string) ([]models.KnowledgeChunk, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("retrieve: empty query")
	}
	vectors, err := r.embedder.Embed(ctx, []string{query}, embedding.ModeQuery)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	return r.index.Query(ctx, vectors[0], r.topK)
}
