package vectorstore

import (
	"context"

	"github.com/supportquality/sentinel/internal/models"
)

// SearchParams tunes a vector search.
type SearchParams struct {
	Limit          int
	ScoreThreshold float64
	Ef             int // 0 uses the collection default
	Exact          bool
}

// DefaultSearchParams returns the baseline search configuration.
func DefaultSearchParams() SearchParams {
	return SearchParams{
		Limit:          20,
		ScoreThreshold: 0.7,
	}
}

// SearchResult is one hit from a vector search.
type SearchResult struct {
	ID         string
	Content    string
	Score      float64
	Collection string
	Metadata   models.ChunkMetadata
}

// Filters restricts search hits by metadata field values. Supported keys:
// document_type, content_density, contains_numbers.
type Filters map[string]string

// CollectionStats summarizes one collection.
type CollectionStats struct {
	PointsCount int    `json:"points_count"`
	Status      string `json:"status"`
}

// Store is the vector storage backend. Implementations must be safe for
// concurrent use.
type Store interface {
	// EnsureCollections creates any missing collections and payload indexes.
	EnsureCollections(ctx context.Context) error

	// UpsertChunks routes embedded chunks to their collections and stores
	// them. Returns per-collection stored counts.
	UpsertChunks(ctx context.Context, chunks []models.EmbeddedChunk) (map[string]int, error)

	// Search queries the given collections (all when nil) and returns hits
	// sorted by score descending, capped at params.Limit.
	Search(ctx context.Context, vector []float32, collections []string, params SearchParams, filters Filters) ([]SearchResult, error)

	// Scroll returns up to limit points from a collection without scoring.
	Scroll(ctx context.Context, collection string, limit int) ([]SearchResult, error)

	// Stats returns per-collection statistics.
	Stats(ctx context.Context) (map[string]CollectionStats, error)

	// Name identifies the backend (qdrant, memory).
	Name() string

	Close() error
}

// matchesFilters reports whether a chunk's metadata satisfies all filters.
func matchesFilters(meta models.ChunkMetadata, filters Filters) bool {
	for key, want := range filters {
		switch key {
		case "document_type":
			if meta.DocumentType != want {
				return false
			}
		case "content_density":
			if meta.ContentDensity != want {
				return false
			}
		case "contains_numbers":
			if (want == "true") != meta.ContainsNumbers {
				return false
			}
		}
	}
	return true
}
