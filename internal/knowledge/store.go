package knowledge

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"sort"
	"sync"

	chromem "github.com/philippgille/chromem-go"

	"studyguider/internal/models"
)

const (
	// DefaultCollection is the collection the ingestion pipeline writes to.
	DefaultCollection = "knowledge_base1"
	// DefaultTopK is how many chunks a lookup retrieves.
	DefaultTopK = 5

	metaSource = "source"
)

var ErrInvalidChunk = errors.New("invalid knowledge chunk")

// Store is a persistent vector index over knowledge chunks, backed by chromem-go.
// Upserting an existing id replaces its text and embedding.
type Store struct {
	mu  sync.RWMutex
	db  *chromem.DB
	col *chromem.Collection
	dir string
}

// Open creates (or reopens) the index stored under dir. embedFn is only used
// when a caller queries by text; chunks are always upserted with their embedding.
func Open(dir, collection string, embedFn chromem.EmbeddingFunc) (*Store, error) {
	if dir == "" {
		return nil, errors.New("knowledge store path required")
	}
	if collection == "" {
		collection = DefaultCollection
	}
	if embedFn == nil {
		embedFn = func(context.Context, string) ([]float32, error) {
			return nil, errors.New("knowledge store has no embedding function")
		}
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create knowledge dir: %w", err)
	}
	db, err := chromem.NewPersistentDB(dir, false)
	if err != nil {
		return nil, fmt.Errorf("open knowledge store: %w", err)
	}
	col, err := db.GetOrCreateCollection(collection, nil, embedFn)
	if err != nil {
		return nil, fmt.Errorf("open collection %s: %w", collection, err)
	}
	return &Store{db: db, col: col, dir: dir}, nil
}

// Upsert stores chunks, overwriting any chunk with the same id.
func (s *Store) Upsert(ctx context.Context, chunks []models.KnowledgeChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	dim := len(chunks[0].Embedding)
	docs := make([]chromem.Document, 0, len(chunks))
	for i, chunk := range chunks {
		switch {
		case chunk.ID == "":
			return fmt.Errorf("%w: chunk %d has no id", ErrInvalidChunk, i)
		case len(chunk.Embedding) == 0:
			return fmt.Errorf("%w: chunk %s has no embedding", ErrInvalidChunk, chunk.ID)
		case len(chunk.Embedding) != dim:
			return fmt.Errorf("%w: chunk %s has dimension %d, want %d", ErrInvalidChunk, chunk.ID, len(chunk.Embedding), dim)
		}
		doc := chromem.Document{
			ID:        chunk.ID,
			Content:   chunk.Text,
			Embedding: append([]float32(nil), chunk.Embedding...),
		}
		if chunk.Source != "" {
			doc.Metadata = map[string]string{metaSource: chunk.Source}
		}
		docs = append(docs, doc)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.col.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("upsert %d chunks: %w", len(docs), err)
	}
	return nil
}

// Query returns up to k chunks nearest to embedding, closest first.
// Distance is cosine distance (1 - cosine similarity).
func (s *Store) Query(ctx context.Context, embedding []float32, k int) ([]models.KnowledgeChunk, error) {
	if len(embedding) == 0 {
		return nil, fmt.Errorf("%w: empty query embedding", ErrInvalidChunk)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := s.col.Count()
	if k <= 0 || count == 0 {
		return []models.KnowledgeChunk{}, nil
	}
	if k > count {
		k = count
	}
	results, err := s.col.QueryEmbedding(ctx, embedding, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("query knowledge store: %w", err)
	}

	out := make([]models.KnowledgeChunk, 0, len(results))
	for _, r := range results {
		out = append(out, models.KnowledgeChunk{
			ID:        r.ID,
			Text:      r.Content,
			Source:    r.Metadata[metaSource],
			Embedding: r.Embedding,
			Distance:  1 - r.Similarity,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Distance < out[j].Distance })
	return out, nil
}

// Count returns the number of stored chunks.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.col.Count()
}

// Delete removes chunks by id. Unknown ids are ignored.
func (s *Store) Delete(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.col.Delete(ctx, nil, nil, ids...); err != nil {
		return fmt.Errorf("delete chunks: %w", err)
	}
	return nil
}

// DeleteSource removes every chunk ingested from source.
func (s *Store) DeleteSource(ctx context.Context, source string) error {
	if source == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.col.Delete(ctx, map[string]string{metaSource: source}, nil); err != nil {
		return fmt.Errorf("delete source %s: %w", source, err)
	}
	return nil
}

// Path returns the directory the index is persisted to.
func (s *Store) Path() string {
	return s.dir
}
