// Package service wires extraction, chunking, embedding, retrieval and
// generation into the two operations the API exposes.
package service

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"docqa/internal/docstore"
	"docqa/internal/domain"
	"docqa/internal/llm"
	"docqa/internal/vectorstore"
)

// TextExtractor turns a stored file into plain text.
type TextExtractor interface {
	Extract(ctx context.Context, path string) (string, error)
}

// Options tunes retrieval and prompt sizing.
type Options struct {
	PersistDir          string
	TopK                int
	Concurrency         int
	ContextWindow       int
	MaxNewTokens        int
	SummaryMaxSentences int
	// EmbedBatchSize is the number of texts per EmbedBatch call.
	EmbedBatchSize int
}

// Deps are the collaborators of RAGServiceImpl.
type Deps struct {
	Docs       *docstore.Store
	Extractor  TextExtractor
	Chunker    domain.Chunker
	Embedder   domain.Embedder
	Store      domain.VectorStore
	Summarizer domain.Summarizer
	LLM        domain.LLM
	Logger     *zap.Logger
}

// RAGServiceImpl rebuilds the index from the data folder and answers questions.
// Ingests are exclusive; queries run concurrently but wait for an ingest in
// progress.
type RAGServiceImpl struct {
	Deps
	opts Options

	mu sync.RWMutex

	// stateMu guards loaded and builtAt. Queries hold it shared while
	// embedding; restoring the embedder takes it exclusively.
	stateMu sync.RWMutex
	loaded  bool
	builtAt time.Time
}

var _ domain.RAGService = (*RAGServiceImpl)(nil)

// NewRAGService creates a service. Zero options take the defaults used by the
// server configuration.
func NewRAGService(deps Deps, opts Options) *RAGServiceImpl {
	if opts.TopK <= 0 {
		opts.TopK = 2
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.SummaryMaxSentences <= 0 {
		opts.SummaryMaxSentences = 3
	}
	if opts.EmbedBatchSize <= 0 {
		opts.EmbedBatchSize = 32
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &RAGServiceImpl{Deps: deps, opts: opts}
}

// Upload stores a document and rebuilds the index over the whole data folder.
// A document whose text cannot be extracted is removed again so it does not
// break later rebuilds; any other failure keeps the file.
func (s *RAGServiceImpl) Upload(ctx context.Context, name string, r io.Reader) (domain.IngestReport, error) {
	if _, err := s.Docs.Save(name, r); err != nil {
		return domain.IngestReport{}, err
	}
	stored := filepath.Base(name)
	s.Logger.Info("document stored", zap.String("name", stored))

	report, err := s.Ingest(ctx)
	var xerr *ExtractError
	if errors.As(err, &xerr) && xerr.Name == stored {
		if rmErr := s.Docs.Remove(stored); rmErr != nil {
			s.Logger.Warn("failed to remove unreadable document", zap.String("name", stored), zap.Error(rmErr))
		} else {
			s.Logger.Info("removed unreadable document", zap.String("name", stored))
		}
	}
	return report, err
}

// Ingest extracts, chunks and embeds every stored document and replaces the
// persisted index.
func (s *RAGServiceImpl) Ingest(ctx context.Context) (domain.IngestReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	start := time.Now()

	// a failed rebuild leaves the embedder out of step with the old index,
	// so the next query restores it from the manifest
	s.stateMu.Lock()
	s.loaded = false
	s.stateMu.Unlock()

	paths, err := s.Docs.Paths()
	if err != nil {
		return domain.IngestReport{}, err
	}
	if len(paths) == 0 {
		return domain.IngestReport{}, ErrNoDocuments
	}

	var (
		chunks   []domain.Chunk
		names    []string
		contents strings.Builder
	)
	for _, p := range paths {
		name := filepath.Base(p)
		text, err := s.Extractor.Extract(ctx, p)
		if err != nil {
			return domain.IngestReport{}, &ExtractError{Name: name, Err: err}
		}
		names = append(names, name)
		if strings.TrimSpace(text) == "" {
			s.Logger.Warn("document has no extractable text", zap.String("name", name))
			continue
		}
		doc := domain.Document{ID: hashString(name), Path: name, Content: text}
		docChunks, err := s.Chunker.Chunk(doc)
		if err != nil {
			return domain.IngestReport{}, fmt.Errorf("chunking %s: %w", name, err)
		}
		chunks = append(chunks, docChunks...)
		contents.WriteString(text)
		contents.WriteString("\n")
	}
	if len(chunks) == 0 {
		return domain.IngestReport{}, ErrNoContent
	}

	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Text
	}
	if err := s.Embedder.Prepare(texts); err != nil {
		return domain.IngestReport{}, fmt.Errorf("preparing embedder: %w", err)
	}
	vectors, err := s.embedAll(ctx, texts)
	if err != nil {
		return domain.IngestReport{}, err
	}
	dim := len(vectors[0])

	if err := s.writeIndex(ctx, dim, chunks, vectors); err != nil {
		return domain.IngestReport{}, err
	}

	m := &manifest{
		Version:   manifestVersion,
		Embedder:  s.Embedder.Name(),
		Dimension: dim,
		Documents: names,
		Chunks:    len(chunks),
		BuiltAt:   time.Now().UTC(),
	}
	if se, ok := s.Embedder.(domain.StatefulEmbedder); ok {
		if m.EmbedderState, err = se.State(); err != nil {
			return domain.IngestReport{}, fmt.Errorf("saving embedder state: %w", err)
		}
	}
	if s.opts.PersistDir != "" {
		if err := writeManifest(s.opts.PersistDir, m); err != nil {
			return domain.IngestReport{}, err
		}
	}
	s.stateMu.Lock()
	s.loaded = true
	s.builtAt = m.BuiltAt
	s.stateMu.Unlock()

	summary, err := s.Summarizer.Summarize(contents.String(), s.opts.SummaryMaxSentences)
	if err != nil {
		return domain.IngestReport{}, fmt.Errorf("summarizing: %w", err)
	}

	report := domain.IngestReport{
		Documents: len(names),
		Chunks:    len(chunks),
		Summary:   summary,
		Duration:  time.Since(start),
	}
	s.Logger.Info("index rebuilt",
		zap.Int("documents", report.Documents),
		zap.Int("chunks", report.Chunks),
		zap.Int("dimension", dim),
		zap.String("embedder", m.Embedder),
		zap.Duration("duration", report.Duration))
	return report, nil
}

// writeIndex replaces the stored vectors. Stores without an atomic replace
// drop the manifest first, so a half-written index reads as not built.
func (s *RAGServiceImpl) writeIndex(ctx context.Context, dim int, chunks []domain.Chunk, vectors [][]float32) error {
	if r, ok := s.Store.(vectorstore.Replacer); ok {
		if err := r.Replace(ctx, dim, chunks, vectors); err != nil {
			return fmt.Errorf("writing index: %w", err)
		}
		return nil
	}
	if s.opts.PersistDir != "" {
		if err := removeManifest(s.opts.PersistDir); err != nil {
			return err
		}
	}
	if err := s.Store.Clear(ctx); err != nil {
		return fmt.Errorf("clearing index: %w", err)
	}
	if err := s.Store.Init(ctx, dim); err != nil {
		return fmt.Errorf("initializing index: %w", err)
	}
	if err := s.Store.Upsert(ctx, chunks, vectors); err != nil {
		return fmt.Errorf("writing index: %w", err)
	}
	return nil
}

// embedAll embeds texts in order, running up to opts.Concurrency requests at once.
func (s *RAGServiceImpl) embedAll(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Concurrency)

	if be, ok := s.Embedder.(domain.BatchEmbedder); ok {
		for start := 0; start < len(texts); start += s.opts.EmbedBatchSize {
			end := min(start+s.opts.EmbedBatchSize, len(texts))
			g.Go(func() error {
				vecs, err := be.EmbedBatch(gctx, texts[start:end])
				if err != nil {
					return err
				}
				if len(vecs) != end-start {
					return fmt.Errorf("embedder returned %d vectors for %d texts", len(vecs), end-start)
				}
				copy(vectors[start:end], vecs)
				return nil
			})
		}
	} else {
		for i := range texts {
			g.Go(func() error {
				v, err := s.Embedder.Embed(gctx, texts[i])
				if err != nil {
					return err
				}
				vectors[i] = v
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("embedding chunks: %w", err)
	}
	dim := len(vectors[0])
	if dim == 0 {
		return nil, errors.New("embedder returned empty vectors")
	}
	for _, v := range vectors {
		if len(v) != dim {
			return nil, vectorstore.ErrDimension
		}
	}
	return vectors, nil
}

// Query answers question from the persisted index.
func (s *RAGServiceImpl) Query(ctx context.Context, question string) (domain.Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return domain.Answer{}, ErrEmptyQuestion
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	ok, err := s.Docs.HasDocuments()
	if err != nil {
		return domain.Answer{}, err
	}
	if !ok {
		return domain.Answer{}, ErrNoDocuments
	}
	if s.LLM == nil {
		return domain.Answer{}, fmt.Errorf("%w: no language model configured", ErrLLM)
	}
	if err := s.ensureLoaded(); err != nil {
		return domain.Answer{}, err
	}

	results, err := s.retrieve(ctx, question)
	if err != nil {
		return domain.Answer{}, err
	}

	prompt := buildPrompt(question, results, s.opts.ContextWindow-s.opts.MaxNewTokens)
	response, err := s.LLM.Complete(ctx, prompt)
	switch {
	case errors.Is(err, llm.ErrEmptyResponse):
		response = FallbackAnswer
	case err != nil:
		return domain.Answer{}, fmt.Errorf("%w: %w", ErrLLM, err)
	case strings.TrimSpace(response) == "":
		response = FallbackAnswer
	}
	s.Logger.Debug("query answered",
		zap.Int("sources", len(results)),
		zap.Int("prompt_chars", len(prompt)),
		zap.String("llm", s.LLM.Name()))
	return domain.Answer{Response: response, Sources: results}, nil
}

// ensureLoaded restores the embedder from the manifest written by the last
// ingest whenever that ingest is not the one already loaded, which includes
// rebuilds done by another process sharing the persist directory.
func (s *RAGServiceImpl) ensureLoaded() error {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	if s.opts.PersistDir == "" {
		if s.loaded {
			return nil
		}
		return ErrIndexNotFound
	}
	m, err := readManifest(s.opts.PersistDir)
	if err != nil {
		s.loaded = false
		return err
	}
	if s.loaded && m.BuiltAt.Equal(s.builtAt) {
		return nil
	}
	s.loaded = false
	if m.Embedder != s.Embedder.Name() {
		return fmt.Errorf("%w: built with %s, configured %s", ErrIndexMismatch, m.Embedder, s.Embedder.Name())
	}
	if se, ok := s.Embedder.(domain.StatefulEmbedder); ok {
		if err := se.Restore(m.EmbedderState); err != nil {
			return fmt.Errorf("restoring embedder: %w", err)
		}
	}
	s.loaded = true
	s.builtAt = m.BuiltAt
	s.Logger.Info("index loaded",
		zap.Int("documents", len(m.Documents)),
		zap.Int("chunks", m.Chunks),
		zap.Time("built_at", m.BuiltAt))
	return nil
}

// retrieve runs the vector search and falls back to lexical overlap when the
// question shares no vocabulary with the index.
func (s *RAGServiceImpl) retrieve(ctx context.Context, question string) ([]domain.SearchResult, error) {
	s.stateMu.RLock()
	vec, err := s.Embedder.Embed(ctx, question)
	s.stateMu.RUnlock()
	if err != nil {
		return nil, fmt.Errorf("embedding question: %w", err)
	}
	var results []domain.SearchResult
	if !isZero(vec) {
		results, err = s.Store.Search(ctx, vec, s.opts.TopK)
		if errors.Is(err, vectorstore.ErrIndexAbsent) || errors.Is(err, vectorstore.ErrNotInit) {
			return nil, ErrIndexNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("searching index: %w", err)
		}
		if !allZeroScores(results) {
			return results, nil
		}
	}
	lister, ok := s.Store.(domain.ChunkLister)
	if !ok {
		return results, nil
	}
	chunks, err := lister.Chunks(ctx)
	if errors.Is(err, vectorstore.ErrIndexAbsent) {
		return nil, ErrIndexNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("listing chunks: %w", err)
	}
	s.Logger.Debug("using lexical fallback", zap.Int("chunks", len(chunks)))
	return lexicalSearch(question, chunks, s.opts.TopK), nil
}

func isZero(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}

func allZeroScores(results []domain.SearchResult) bool {
	for _, r := range results {
		if r.Score > 1e-9 {
			return false
		}
	}
	return true
}

func hashString(s string) string {
	h := sha1.Sum([]byte(s))
	return hex.EncodeToString(h[:8])
}
