package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/supportquality/sentinel/internal/config"
	"github.com/supportquality/sentinel/internal/models"
)

// QdrantStore implements Store using Qdrant's REST API.
type QdrantStore struct {
	baseURL    string
	apiKey     string
	dimensions int
	client     *http.Client
}

// NewQdrantStore creates a Qdrant-backed store from configuration.
func NewQdrantStore(cfg *config.VectorStoreConfig, dimensions int) *QdrantStore {
	host := cfg.Host
	if host == "" {
		host = "localhost"
	}
	port := cfg.Port
	if port == 0 {
		port = 6333
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &QdrantStore{
		baseURL:    fmt.Sprintf("http://%s:%d", host, port),
		apiKey:     cfg.APIKey,
		dimensions: dimensions,
		client:     &http.Client{Timeout: timeout},
	}
}

// Name identifies the backend.
func (s *QdrantStore) Name() string { return "qdrant" }

// Close releases the HTTP client's idle connections.
func (s *QdrantStore) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

var pointNamespace = uuid.MustParse("7c9e4a02-61d3-4b8f-9a4e-2f1c8d5b3e6a")

// pointID derives a stable UUID from a chunk ID; Qdrant point IDs must be
// UUIDs or integers.
func pointID(chunkID string) string {
	return uuid.NewSHA1(pointNamespace, []byte(chunkID)).String()
}

func (s *QdrantStore) applyHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if strings.TrimSpace(s.apiKey) != "" {
		req.Header.Set("api-key", s.apiKey)
	}
}

func (s *QdrantStore) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, body)
	if err != nil {
		return err
	}
	s.applyHeaders(req)

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("qdrant request failed: method=%s path=%s status=%d body=%s", method, path, resp.StatusCode, string(raw))
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Ping checks that the Qdrant server is reachable.
func (s *QdrantStore) Ping(ctx context.Context) error {
	return s.doJSON(ctx, http.MethodGet, "/collections", nil, nil)
}

// EnsureCollections creates the configured collections and their payload
// indexes. Existing collections are left untouched.
func (s *QdrantStore) EnsureCollections(ctx context.Context) error {
	for _, cfg := range CollectionConfigs() {
		body := map[string]any{
			"vectors": map[string]any{
				"size":     s.dimensions,
				"distance": "Cosine",
			},
			"hnsw_config": map[string]any{
				"m":            cfg.Index.M,
				"ef_construct": cfg.Index.EfConstruct,
			},
		}

		path := "/collections/" + url.PathEscape(cfg.Name)
		err := s.doJSON(ctx, http.MethodPut, path, body, nil)
		if err != nil {
			// 409 means the collection already exists.
			if strings.Contains(err.Error(), "status=409") {
				log.Debug().Str("collection", cfg.Name).Msg("Collection already exists")
			} else {
				return fmt.Errorf("failed to create collection %s: %w", cfg.Name, err)
			}
		} else {
			log.Info().Str("collection", cfg.Name).Msg("Created collection")
		}

		for _, field := range cfg.MetadataIndexes {
			indexBody := map[string]any{
				"field_name":   field,
				"field_schema": "keyword",
			}
			if err := s.doJSON(ctx, http.MethodPut, path+"/index", indexBody, nil); err != nil {
				log.Warn().Err(err).
					Str("collection", cfg.Name).
					Str("field", field).
					Msg("Failed to create payload index")
			}
		}
	}
	return nil
}

// pointPayload is the stored payload for one chunk. Metadata fields are
// flattened alongside content so Qdrant payload indexes apply to them.
type pointPayload struct {
	Content              string `json:"content"`
	EmbeddingModel       string `json:"embedding_model"`
	PreprocessingApplied string `json:"preprocessing_applied"`
	models.ChunkMetadata
}

type qdrantPoint struct {
	ID      string       `json:"id"`
	Vector  []float32    `json:"vector"`
	Payload pointPayload `json:"payload"`
}

// UpsertChunks routes chunks to their target collections and upserts them.
// A failed collection is logged and reported as zero rather than aborting
// the others.
func (s *QdrantStore) UpsertChunks(ctx context.Context, chunks []models.EmbeddedChunk) (map[string]int, error) {
	grouped := make(map[string][]models.EmbeddedChunk)
	for _, chunk := range chunks {
		target := TargetCollection(chunk.Metadata)
		grouped[target] = append(grouped[target], chunk)
	}

	counts := make(map[string]int, len(grouped))
	for collection, group := range grouped {
		points := make([]qdrantPoint, 0, len(group))
		for _, chunk := range group {
			points = append(points, qdrantPoint{
				ID:     pointID(chunk.ChunkID),
				Vector: chunk.Embedding,
				Payload: pointPayload{
					Content:              chunk.Content,
					EmbeddingModel:       chunk.EmbeddingModel,
					PreprocessingApplied: chunk.PreprocessingApplied,
					ChunkMetadata:        chunk.Metadata,
				},
			})
		}

		req := struct {
			Points []qdrantPoint `json:"points"`
		}{Points: points}

		path := fmt.Sprintf("/collections/%s/points?wait=true", url.PathEscape(collection))
		if err := s.doJSON(ctx, http.MethodPut, path, req, nil); err != nil {
			log.Error().Err(err).Str("collection", collection).Msg("Failed to upsert chunks")
			counts[collection] = 0
			continue
		}
		counts[collection] = len(group)
		log.Info().Str("collection", collection).Int("count", len(group)).Msg("Upserted chunks")
	}
	return counts, nil
}

type qdrantHit struct {
	ID      any          `json:"id"`
	Score   float64      `json:"score"`
	Payload pointPayload `json:"payload"`
}

func buildFilter(filters Filters) map[string]any {
	if len(filters) == 0 {
		return nil
	}
	conditions := make([]map[string]any, 0, len(filters))
	for field, value := range filters {
		conditions = append(conditions, map[string]any{
			"key":   field,
			"match": map[string]any{"value": value},
		})
	}
	return map[string]any{"must": conditions}
}

// Search queries each collection and merges results by score.
func (s *QdrantStore) Search(ctx context.Context, vector []float32, collections []string, params SearchParams, filters Filters) ([]SearchResult, error) {
	if len(collections) == 0 {
		collections = CollectionNames()
	}

	efByCollection := make(map[string]int)
	for _, cfg := range CollectionConfigs() {
		efByCollection[cfg.Name] = cfg.Index.Ef
	}

	var all []SearchResult
	for _, collection := range collections {
		ef := params.Ef
		if ef == 0 {
			ef = efByCollection[collection]
		}

		req := map[string]any{
			"vector":          vector,
			"limit":           params.Limit,
			"score_threshold": params.ScoreThreshold,
			"with_payload":    true,
			"params": map[string]any{
				"hnsw_ef": ef,
				"exact":   params.Exact,
			},
		}
		if f := buildFilter(filters); f != nil {
			req["filter"] = f
		}

		var resp struct {
			Result []qdrantHit `json:"result"`
		}
		path := fmt.Sprintf("/collections/%s/points/search", url.PathEscape(collection))
		if err := s.doJSON(ctx, http.MethodPost, path, req, &resp); err != nil {
			log.Error().Err(err).Str("collection", collection).Msg("Search failed")
			continue
		}

		for _, hit := range resp.Result {
			id := hit.Payload.ChunkID
			if id == "" {
				id = fmt.Sprint(hit.ID)
			}
			all = append(all, SearchResult{
				ID:         id,
				Content:    hit.Payload.Content,
				Score:      hit.Score,
				Collection: collection,
				Metadata:   hit.Payload.ChunkMetadata,
			})
		}
	}

	sort.Slice(all, func(i, j int) bool { return all[i].Score > all[j].Score })
	if len(all) > params.Limit {
		all = all[:params.Limit]
	}
	return all, nil
}

// Scroll returns up to limit points from a collection without scoring.
func (s *QdrantStore) Scroll(ctx context.Context, collection string, limit int) ([]SearchResult, error) {
	req := map[string]any{
		"limit":        limit,
		"with_payload": true,
	}

	var resp struct {
		Result struct {
			Points []struct {
				ID      any          `json:"id"`
				Payload pointPayload `json:"payload"`
			} `json:"points"`
		} `json:"result"`
	}

	path := fmt.Sprintf("/collections/%s/points/scroll", url.PathEscape(collection))
	if err := s.doJSON(ctx, http.MethodPost, path, req, &resp); err != nil {
		return nil, fmt.Errorf("scroll failed for %s: %w", collection, err)
	}

	results := make([]SearchResult, 0, len(resp.Result.Points))
	for _, p := range resp.Result.Points {
		id := p.Payload.ChunkID
		if id == "" {
			id = fmt.Sprint(p.ID)
		}
		results = append(results, SearchResult{
			ID:         id,
			Content:    p.Payload.Content,
			Collection: collection,
			Metadata:   p.Payload.ChunkMetadata,
		})
	}
	return results, nil
}

// Stats returns point counts and status per collection.
func (s *QdrantStore) Stats(ctx context.Context) (map[string]CollectionStats, error) {
	stats := make(map[string]CollectionStats)
	for _, name := range CollectionNames() {
		var resp struct {
			Result struct {
				PointsCount int    `json:"points_count"`
				Status      string `json:"status"`
			} `json:"result"`
		}
		path := "/collections/" + url.PathEscape(name)
		if err := s.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
			log.Error().Err(err).Str("collection", name).Msg("Failed to get collection stats")
			continue
		}
		stats[name] = CollectionStats{
			PointsCount: resp.Result.PointsCount,
			Status:      resp.Result.Status,
		}
	}
	return stats, nil
}
