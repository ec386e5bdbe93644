package knowledge

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studyguider/internal/embedding"
	"studyguider/internal/models"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(t.TempDir(), "test_collection", nil)
	require.NoError(t, err)
	return store
}

func chunk(id, text string, vec ...float32) models.KnowledgeChunk {
	return models.KnowledgeChunk{ID: id, Text: text, Embedding: vec, Source: "guide.docx"}
}

func TestQueryOrdersByAscendingDistance(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.Upsert(ctx, []models.KnowledgeChunk{
		chunk("doc_0", "far", 0, 1),
		chunk("doc_1", "near", 1, 0),
		chunk("doc_2", "middle", 1, 1),
	}))

	got, err := store.Query(ctx, []float32{1, 0}, DefaultTopK)
	require.NoError(t, err)

	// only three chunks exist, so k=5 yields three
	require.Len(t, got, 3)
	assert.Equal(t, []string{"doc_1", "doc_2", "doc_0"}, []string{got[0].ID, got[1].ID, got[2].ID})
	for i := 1; i < len(got); i++ {
		assert.LessOrEqual(t, got[i-1].Distance, got[i].Distance)
	}
	assert.InDelta(t, 0, got[0].Distance, 1e-5)
	assert.Equal(t, "guide.docx", got[0].Source)
}

func TestQueryLimitsToK(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	var chunks []models.KnowledgeChunk
	for i := 0; i < 8; i++ {
		chunks = append(chunks, chunk(string(rune('a'+i)), "text", 1, float32(i)))
	}
	require.NoError(t, store.Upsert(ctx, chunks))

	got, err := store.Query(ctx, []float32{1, 0}, 5)
	require.NoError(t, err)
	require.Len(t, got, 5)
	assert.Equal(t, "a", got[0].ID)
}

func TestQueryEmptyStore(t *testing.T) {
	store := openTestStore(t)
	got, err := store.Query(context.Background(), []float32{1, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = store.Query(context.Background(), nil, 5)
	require.ErrorIs(t, err, ErrInvalidChunk)
}

func TestUpsertOverwritesExistingID(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.Upsert(ctx, []models.KnowledgeChunk{chunk("doc_0", "old", 0, 1)}))
	require.NoError(t, store.Upsert(ctx, []models.KnowledgeChunk{chunk("doc_0", "new", 1, 0)}))

	assert.Equal(t, 1, store.Count())
	got, err := store.Query(ctx, []float32{1, 0}, 5)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "new", got[0].Text)
	assert.InDelta(t, 0, got[0].Distance, 1e-5)
}

func TestUpsertRejectsInvalidChunks(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	err := store.Upsert(ctx, []models.KnowledgeChunk{chunk("", "x", 1)})
	require.ErrorIs(t, err, ErrInvalidChunk)
	err = store.Upsert(ctx, []models.KnowledgeChunk{{ID: "a", Text: "x"}})
	require.ErrorIs(t, err, ErrInvalidChunk)
	err = store.Upsert(ctx, []models.KnowledgeChunk{chunk("a", "x", 1, 0), chunk("b", "y", 1)})
	require.ErrorIs(t, err, ErrInvalidChunk)
	assert.Zero(t, store.Count())
}

func TestStorePersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	store, err := Open(dir, "kb", nil)
	require.NoError(t, err)
	require.NoError(t, store.Upsert(ctx, []models.KnowledgeChunk{
		chunk("doc_0", "visa rules", 1, 0),
		chunk("doc_1", "tuition", 0, 1),
	}))

	reopened, err := Open(dir, "kb", nil)
	require.NoError(t, err)
	assert.Equal(t, 2, reopened.Count())
	got, err := reopened.Query(ctx, []float32{0, 1}, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "tuition", got[0].Text)
}

func TestDeleteRemovesChunks(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.Upsert(ctx, []models.KnowledgeChunk{
		chunk("doc_0", "a", 1, 0),
		chunk("doc_1", "b", 0, 1),
	}))
	require.NoError(t, store.Delete(ctx, "doc_0"))
	assert.Equal(t, 1, store.Count())
}

type stubEmbedder struct {
	mode embedding.Mode
	err  error
}

func (s *stubEmbedder) Embed(_ context.Context, texts []string, mode embedding.Mode) ([][]float32, error) {
	s.mode = mode
	if s.err != nil {
		return nil, s.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

func TestRetrieverEmbedsInQueryMode(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.Upsert(ctx, []models.KnowledgeChunk{
		chunk("doc_0", "a", 1, 0),
		chunk("doc_1", "b", 0, 1),
	}))
	emb := &stubEmbedder{mode: embedding.ModeDocument}
	r := NewRetriever(emb, store, 0)

	got, err := r.Retrieve(ctx, "visa requirements")
	require.NoError(t, err)
	assert.Equal(t, embedding.ModeQuery, emb.mode)
	require.Len(t, got, 2)
	assert.Equal(t, "doc_0", got[0].ID)
}

func TestRetrieverErrors(t *testing.T) {
	store := openTestStore(t)
	_, err := NewRetriever(&stubEmbedder{}, store, 5).Retrieve(context.Background(), "  ")
	require.Error(t, err)

	boom := errors.New("embedding unavailable")
	_, err = NewRetriever(&stubEmbedder{err: boom}, store, 5).Retrieve(context.Background(), "q")
	require.ErrorIs(t, err, boom)
}

func TestDeleteSourceRemovesOnlyThatSource(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	other := chunk("notes_0", "c", 1, 1)
	other.Source = "notes.txt"
	require.NoError(t, store.Upsert(ctx, []models.KnowledgeChunk{
		chunk("guide_0", "a", 1, 0),
		chunk("guide_1", "b", 0, 1),
		other,
	}))

	require.NoError(t, store.DeleteSource(ctx, "guide.docx"))
	assert.Equal(t, 1, store.Count())
}
