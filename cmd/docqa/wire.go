package main

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"docqa/internal/chunker"
	"docqa/internal/config"
	"docqa/internal/docstore"
	"docqa/internal/domain"
	"docqa/internal/embedding"
	"docqa/internal/extract"
	"docqa/internal/llm"
	"docqa/internal/service"
	"docqa/internal/summarizer"
	"docqa/internal/vectorstore"
	"docqa/internal/vectorstore/local"
	"docqa/internal/vectorstore/qdrant"
)

// buildService assembles the application core from cfg. The returned func
// releases store connections. Commands that never answer questions pass
// withLLM false so they run without the model's API key.
func buildService(ctx context.Context, cfg *config.AppConfig, logger *zap.Logger, withLLM bool) (*service.RAGServiceImpl, func(), error) {
	docs, err := docstore.New(cfg.Server.DataDir)
	if err != nil {
		return nil, nil, err
	}
	emb, err := embedding.New(ctx, cfg.Embedder, cfg.LLM.Retries())
	if err != nil {
		return nil, nil, configError{fmt.Errorf("embedder init failed: %w", err)}
	}
	st, closeStore, err := newStore(cfg)
	if err != nil {
		return nil, nil, err
	}
	var model domain.LLM
	if withLLM {
		if model, err = llm.New(ctx, cfg.LLM); err != nil {
			closeStore()
			return nil, nil, configError{fmt.Errorf("llm init failed: %w", err)}
		}
	}
	sum, err := summarizer.New(cfg.Summarizer)
	if err != nil {
		closeStore()
		return nil, nil, configError{err}
	}

	svc := service.NewRAGService(service.Deps{
		Docs:       docs,
		Extractor:  extract.New(extract.WithMaxPDFPages(cfg.Extractor.MaxPDFPages)),
		Chunker:    chunker.NewSentenceChunker(cfg.Chunker.SentencesPerChunk, cfg.Chunker.OverlapSentences),
		Embedder:   emb,
		Store:      st,
		Summarizer: sum,
		LLM:        model,
		Logger:     logger,
	}, service.Options{
		PersistDir:          cfg.Server.PersistDir,
		TopK:                cfg.Retrieval.TopK,
		Concurrency:         cfg.Retrieval.Concurrency,
		ContextWindow:       cfg.LLM.ContextWindow,
		MaxNewTokens:        cfg.LLM.MaxNewTokens,
		SummaryMaxSentences: cfg.Summarizer.MaxSentences,
	})
	fields := []zap.Field{
		zap.String("embedder", emb.Name()),
		zap.String("store", cfg.VectorStore.Type),
	}
	if model != nil {
		fields = append(fields, zap.String("llm", model.Name()))
	}
	logger.Info("service ready", fields...)
	return svc, closeStore, nil
}

func newStore(cfg *config.AppConfig) (vectorstore.Storage, func(), error) {
	switch cfg.VectorStore.Type {
	case "local", "":
		st, err := local.NewStorage(cfg.Server.PersistDir)
		return st, func() {}, err
	case "qdrant":
		q := cfg.VectorStore.Qdrant
		st, err := qdrant.Dial(qdrant.Config{
			Host:       q.Host,
			Port:       q.Port,
			APIKey:     os.Getenv(q.APIKeyEnv),
			Collection: q.Collection,
			UseTLS:     q.UseTLS,
		})
		if err != nil {
			return nil, nil, err
		}
		return st, func() { _ = st.Close() }, nil
	default:
		return nil, nil, configError{fmt.Errorf("unknown vector store: %s", cfg.VectorStore.Type)}
	}
}
