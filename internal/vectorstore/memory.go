package vectorstore

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/supportquality/sentinel/internal/models"
)

// MemoryStore is an in-process Store used when Qdrant is unreachable and in
// tests. Vectors are compared with cosine similarity.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]map[string]models.EmbeddedChunk // collection -> chunk ID -> chunk
}

// NewMemoryStore creates an empty in-memory store with all collections.
func NewMemoryStore() *MemoryStore {
	collections := make(map[string]map[string]models.EmbeddedChunk)
	for _, name := range CollectionNames() {
		collections[name] = make(map[string]models.EmbeddedChunk)
	}
	return &MemoryStore{collections: collections}
}

// Name identifies the backend.
func (s *MemoryStore) Name() string { return "memory" }

// Close is a no-op for the memory store.
func (s *MemoryStore) Close() error { return nil }

// EnsureCollections is a no-op; collections exist from construction.
func (s *MemoryStore) EnsureCollections(ctx context.Context) error { return nil }

// UpsertChunks stores chunks keyed by chunk ID, replacing existing entries.
func (s *MemoryStore) UpsertChunks(ctx context.Context, chunks []models.EmbeddedChunk) (map[string]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := make(map[string]int)
	for _, chunk := range chunks {
		target := TargetCollection(chunk.Metadata)
		if s.collections[target] == nil {
			s.collections[target] = make(map[string]models.EmbeddedChunk)
		}
		s.collections[target][chunk.ChunkID] = chunk
		counts[target]++
	}
	return counts, nil
}

// Search scans the requested collections and returns hits above the score
// threshold, sorted by similarity.
func (s *MemoryStore) Search(ctx context.Context, vector []float32, collections []string, params SearchParams, filters Filters) ([]SearchResult, error) {
	if len(collections) == 0 {
		collections = CollectionNames()
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []SearchResult
	for _, collection := range collections {
		for _, chunk := range s.collections[collection] {
			if !matchesFilters(chunk.Metadata, filters) {
				continue
			}
			score := cosineSimilarity(vector, chunk.Embedding)
			if score < params.ScoreThreshold {
				continue
			}
			results = append(results, SearchResult{
				ID:         chunk.ChunkID,
				Content:    chunk.Content,
				Score:      score,
				Collection: collection,
				Metadata:   chunk.Metadata,
			})
		}
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if params.Limit > 0 && len(results) > params.Limit {
		results = results[:params.Limit]
	}
	return results, nil
}

// Scroll returns up to limit chunks from a collection.
func (s *MemoryStore) Scroll(ctx context.Context, collection string, limit int) ([]SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]SearchResult, 0, limit)
	for _, chunk := range s.collections[collection] {
		if limit > 0 && len(results) >= limit {
			break
		}
		results = append(results, SearchResult{
			ID:         chunk.ChunkID,
			Content:    chunk.Content,
			Collection: collection,
			Metadata:   chunk.Metadata,
		})
	}
	return results, nil
}

// Stats returns point counts per collection.
func (s *MemoryStore) Stats(ctx context.Context) (map[string]CollectionStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := make(map[string]CollectionStats, len(s.collections))
	for name, points := range s.collections {
		stats[name] = CollectionStats{PointsCount: len(points), Status: "green"}
	}
	return stats, nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*QdrantStore)(nil)
)
