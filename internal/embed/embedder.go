// Package embed generates context-aware embeddings for document chunks and
// search queries, selecting preprocessing by content type.
package embed

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math"
	"math/rand"
	"regexp"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/rs/zerolog/log"

	"github.com/supportquality/sentinel/internal/llm"
	"github.com/supportquality/sentinel/internal/models"
)

const batchSize = 32

// profile pairs a preprocessing mode with its instruction prefix.
type profile struct {
	preprocessing string
	prefix        string
}

var (
	factualProfile   = profile{"factual_enhancement", "Represent this factual educational content for precise retrieval: "}
	narrativeProfile = profile{"narrative_optimization", "Represent this narrative content for semantic search: "}
	policyProfile    = profile{"policy_enhancement", "Represent this policy content for compliance verification: "}
	defaultProfile   = profile{"standard", "Represent this document for retrieval: "}
)

var contentIndicators = map[string][]string{
	"factual_dense": {"₹", "cost", "fee", "price", "salary", "percentage", "%", "months", "weeks"},
	"narrative":     {"story", "experience", "journey", "background", "overview"},
	"policy":        {"policy", "rule", "guideline", "requirement", "must", "should"},
}

var (
	amountRe         = regexp.MustCompile(`₹([\d,]+)`)
	percentRe        = regexp.MustCompile(`(\d+)%`)
	durationRe       = regexp.MustCompile(`(\d+)\s*(months?|weeks?|days?)`)
	requirementRe    = regexp.MustCompile(`(?i)\b(must|required|mandatory)\b`)
	recommendationRe = regexp.MustCompile(`(?i)\b(should|recommended|advised)\b`)
	whitespaceRe     = regexp.MustCompile(`\s+`)
)

// Manager generates embeddings with content-aware preprocessing. Query
// embeddings are cached so repeated expansions of the same claim stay cheap.
type Manager struct {
	provider   llm.Provider
	modelName  string
	dimensions int
	queryCache *gocache.Cache
}

// NewManager creates an embedding manager backed by the given provider.
func NewManager(provider llm.Provider, modelName string, dimensions int, cacheTTL time.Duration) *Manager {
	if cacheTTL <= 0 {
		cacheTTL = time.Hour
	}
	return &Manager{
		provider:   provider,
		modelName:  modelName,
		dimensions: dimensions,
		queryCache: gocache.New(cacheTTL, 2*cacheTTL),
	}
}

// EmbedChunks generates embeddings for document chunks in batches. A failed
// batch falls back to deterministic placeholder vectors rather than failing
// the whole ingest.
func (m *Manager) EmbedChunks(ctx context.Context, chunks []models.DocumentChunk) []models.EmbeddedChunk {
	log.Info().Int("chunks", len(chunks)).Msg("Generating embeddings")

	embedded := make([]models.EmbeddedChunk, 0, len(chunks))
	for start := 0; start < len(chunks); start += batchSize {
		end := start + batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		results, err := m.embedBatch(ctx, batch)
		if err != nil {
			log.Error().Err(err).Int("batch", start/batchSize+1).Msg("Failed to embed batch")
			for _, chunk := range batch {
				embedded = append(embedded, models.EmbeddedChunk{
					ChunkID:              chunk.Metadata.ChunkID,
					Content:              chunk.Content,
					Embedding:            m.fallbackEmbedding(chunk.Content),
					EmbeddingModel:       "fallback",
					PreprocessingApplied: "none",
					Metadata:             chunk.Metadata,
				})
			}
			continue
		}
		embedded = append(embedded, results...)
	}

	log.Info().Int("embedded", len(embedded)).Msg("Generated embeddings")
	return embedded
}

func (m *Manager) embedBatch(ctx context.Context, batch []models.DocumentChunk) ([]models.EmbeddedChunk, error) {
	texts := make([]string, len(batch))
	profiles := make([]profile, len(batch))
	for i, chunk := range batch {
		p := selectProfile(chunk.Content, chunk.Metadata.DocumentType)
		texts[i] = p.prefix + preprocess(chunk.Content, p.preprocessing)
		profiles[i] = p
	}

	vectors, err := m.provider.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embedding batch failed: %w", err)
	}

	embedded := make([]models.EmbeddedChunk, len(batch))
	for i, chunk := range batch {
		embedded[i] = models.EmbeddedChunk{
			ChunkID:              chunk.Metadata.ChunkID,
			Content:              chunk.Content,
			Embedding:            normalize(vectors[i]),
			EmbeddingModel:       m.modelName,
			PreprocessingApplied: profiles[i].preprocessing,
			Metadata:             chunk.Metadata,
		}
	}
	return embedded, nil
}

// EmbedQuery generates a normalized embedding for a search query. queryType
// is one of factual, policy, narrative, or general. Failures fall back to a
// deterministic placeholder vector.
func (m *Manager) EmbedQuery(ctx context.Context, query, queryType string) []float32 {
	var prefixed string
	switch queryType {
	case "factual":
		prefixed = "Find factual information about: " + query
	case "policy":
		prefixed = "Find policy information about: " + query
	case "narrative":
		prefixed = "Find narrative content about: " + query
	default:
		prefixed = "Find information about: " + query
	}

	if cached, ok := m.queryCache.Get(prefixed); ok {
		return cached.([]float32)
	}

	vector, err := m.provider.Embed(ctx, prefixed)
	if err != nil {
		log.Error().Err(err).Str("query", query).Msg("Failed to embed query")
		return m.fallbackEmbedding(prefixed)
	}

	normalized := normalize(vector)
	m.queryCache.Set(prefixed, normalized, gocache.DefaultExpiration)
	return normalized
}

// Dimensions returns the configured embedding dimensionality.
func (m *Manager) Dimensions() int {
	return m.dimensions
}

// ModelName returns the embedding model identifier.
func (m *Manager) ModelName() string {
	return m.modelName
}

func selectProfile(content, documentType string) profile {
	density := analyzeDensity(content)

	switch {
	case density == "factual_dense" || documentType == "course_catalog" || documentType == "fee_structure":
		return factualProfile
	case density == "narrative" || documentType == "instructor_profiles" || documentType == "success_stories":
		return narrativeProfile
	case density == "policy" || documentType == "assessment_policies" || documentType == "support_guidelines":
		return policyProfile
	default:
		return defaultProfile
	}
}

func analyzeDensity(content string) string {
	lower := strings.ToLower(content)

	count := func(kind string) int {
		n := 0
		for _, indicator := range contentIndicators[kind] {
			if strings.Contains(lower, indicator) {
				n++
			}
		}
		return n
	}

	switch {
	case count("factual_dense") >= 2:
		return "factual_dense"
	case count("policy") >= 2:
		return "policy"
	case count("narrative") >= 1:
		return "narrative"
	default:
		return "mixed"
	}
}

func preprocess(content, mode string) string {
	content = strings.TrimSpace(content)

	switch mode {
	case "factual_enhancement":
		content = amountRe.ReplaceAllString(content, "AMOUNT: ₹$1")
		content = percentRe.ReplaceAllString(content, "PERCENTAGE: $1%")
		content = durationRe.ReplaceAllString(content, "DURATION: $1 $2")
	case "narrative_optimization":
		content = strings.TrimSpace(whitespaceRe.ReplaceAllString(content, " "))
	case "policy_enhancement":
		content = requirementRe.ReplaceAllString(content, "REQUIREMENT: $1")
		content = recommendationRe.ReplaceAllString(content, "RECOMMENDATION: $1")
	}

	return content
}

func normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	norm := math.Sqrt(sum)
	if norm == 0 {
		return v
	}
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

// fallbackEmbedding produces a deterministic pseudo-random unit vector seeded
// from the text, so retries and tests are stable.
func (m *Manager) fallbackEmbedding(text string) []float32 {
	sum := sha256.Sum256([]byte(text))
	seed := int64(binary.BigEndian.Uint64(sum[:8]))
	rng := rand.New(rand.NewSource(seed))

	v := make([]float32, m.dimensions)
	for i := range v {
		v[i] = float32(rng.NormFloat64() * 0.1)
	}
	return normalize(v)
}
