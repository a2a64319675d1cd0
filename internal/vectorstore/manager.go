package vectorstore

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/supportquality/sentinel/internal/config"
)

// NewStore connects to Qdrant and falls back to an in-memory store when the
// server is unreachable, so verification keeps working in degraded mode.
func NewStore(ctx context.Context, cfg *config.VectorStoreConfig, dimensions int) Store {
	qdrant := NewQdrantStore(cfg, dimensions)

	if err := qdrant.Ping(ctx); err != nil {
		log.Warn().Err(err).Msg("Qdrant unreachable, using in-memory vector store")
		return NewMemoryStore()
	}

	if err := qdrant.EnsureCollections(ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to initialize Qdrant collections, using in-memory vector store")
		return NewMemoryStore()
	}

	log.Info().Str("backend", qdrant.Name()).Msg("Vector store initialized")
	return qdrant
}
