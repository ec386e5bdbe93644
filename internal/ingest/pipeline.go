package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/cloudwego/eino-ext/components/document/loader/file"
	"github.com/cloudwego/eino/components/document"
	"github.com/cloudwego/eino/components/document/parser"
	"github.com/tmc/langchaingo/textsplitter"
	"go.uber.org/zap"

	"studyguider/internal/embedding"
	"studyguider/internal/models"
)

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

// SupportedExtensions lists the file types the pipeline can read.
var SupportedExtensions = []string{".docx", ".txt", ".md"}

var ErrNoContent = errors.New("document has no readable text")

// Index is the part of the knowledge store ingestion writes to.
type Index interface {
	Upsert(ctx context.Context, chunks []models.KnowledgeChunk) error
	DeleteSource(ctx context.Context, source string) error
}

// Options tune chunking. Zero values pick the defaults.
type Options struct {
	ChunkSize    int
	ChunkOverlap int
	Logger       *zap.Logger
}

// Pipeline loads documents, splits them into overlapping chunks, embeds the
// chunks in document mode and upserts them into the knowledge store.
// Ingestions run one at a time so a source is never replaced by two callers at once.
type Pipeline struct {
	mu       sync.Mutex
	loader   *file.FileLoader
	splitter textsplitter.TextSplitter
	embedder embedding.Embedder
	index    Index
	logger   *zap.Logger
}

func NewPipeline(ctx context.Context, embedder embedding.Embedder, index Index, opts Options) (*Pipeline, error) {
	if embedder == nil || index == nil {
		return nil, errors.New("embedder and index required")
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.ChunkOverlap < 0 || opts.ChunkOverlap >= opts.ChunkSize {
		opts.ChunkOverlap = min(DefaultChunkOverlap, opts.ChunkSize/2)
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	extParser, err := parser.NewExtParser(ctx, &parser.ExtParserConfig{
		Parsers:        map[string]parser.Parser{".docx": DocxParser{}, ".DOCX": DocxParser{}},
		FallbackParser: parser.TextParser{},
	})
	if err != nil {
		return nil, fmt.Errorf("init parser: %w", err)
	}
	loader, err := file.NewFileLoader(ctx, &file.FileLoaderConfig{
		UseNameAsID: true,
		Parser:      extParser,
	})
	if err != nil {
		return nil, fmt.Errorf("init file loader: %w", err)
	}

	return &Pipeline{
		loader: loader,
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(opts.ChunkSize),
			textsplitter.WithChunkOverlap(opts.ChunkOverlap),
		),
		embedder: embedder,
		index:    index,
		logger:   opts.Logger,
	}, nil
}

// IngestFile loads path and replaces every chunk previously ingested from it.
// It returns the number of chunks stored.
func (p *Pipeline) IngestFile(ctx context.Context, path string) (int, error) {
	if !Supported(path) {
		return 0, fmt.Errorf("unsupported file type: %s", filepath.Ext(path))
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	docs, err := p.loader.Load(ctx, document.Source{URI: path})
	if err != nil {
		return 0, fmt.Errorf("load %s: %w", path, err)
	}
	var b strings.Builder
	for _, doc := range docs {
		content := strings.TrimSpace(doc.Content)
		if content == "" {
			continue
		}
		b.WriteString(content)
		b.WriteString("\n\n")
	}
	return p.ingestText(ctx, filepath.Base(path), b.String())
}

// IngestText splits text from source into chunks with ids
// "<ChunkIDPrefix(source)>_<n>" and upserts them after dropping the source's
// previous chunks.
func (p *Pipeline) IngestText(ctx context.Context, source, text string) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ingestText(ctx, source, text)
}

func (p *Pipeline) ingestText(ctx context.Context, source, text string) (int, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return 0, errors.New("source name required")
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, fmt.Errorf("%s: %w", source, ErrNoContent)
	}
	parts, err := p.splitter.SplitText(text)
	if err != nil {
		return 0, fmt.Errorf("split %s: %w", source, err)
	}
	texts := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			texts = append(texts, part)
		}
	}
	if len(texts) == 0 {
		return 0, fmt.Errorf("%s: %w", source, ErrNoContent)
	}

	vectors, err := p.embedder.Embed(ctx, texts, embedding.ModeDocument)
	if err != nil {
		return 0, fmt.Errorf("embed %s: %w", source, err)
	}
	prefix := ChunkIDPrefix(source)
	chunks := make([]models.KnowledgeChunk, len(texts))
	for i, t := range texts {
		chunks[i] = models.KnowledgeChunk{
			ID:        fmt.Sprintf("%s_%d", prefix, i),
			Text:      t,
			Source:    source,
			Embedding: vectors[i],
		}
	}

	if err := p.index.DeleteSource(ctx, source); err != nil {
		return 0, err
	}
	if err := p.index.Upsert(ctx, chunks); err != nil {
		return 0, err
	}
	p.logger.Info("ingested document",
		zap.String("source", source),
		zap.Int("chunks", len(chunks)))
	return len(chunks), nil
}

var idUnsafe = regexp.MustCompile(`[^a-zA-Z0-9]+`)

// ChunkIDPrefix derives a stable id prefix from a source name: the readable
// base name plus a short hash of the exact name, e.g. "Study Guide.docx"
// becomes "study_guide_<8 hex>". Sources differing only in extension, case or
// punctuation get distinct prefixes.
func ChunkIDPrefix(source string) string {
	base := strings.TrimSuffix(source, filepath.Ext(source))
	prefix := strings.Trim(idUnsafe.ReplaceAllString(strings.ToLower(base), "_"), "_")
	if prefix == "" {
		prefix = "doc"
	}
	sum := sha256.Sum256([]byte(source))
	return prefix + "_" + hex.EncodeToString(sum[:4])
}

// Supported reports whether path has a readable extension.
func Supported(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range SupportedExtensions {
		if ext == e {
			return true
		}
	}
	return false
}
