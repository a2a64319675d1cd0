package vectorstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/supportquality/sentinel/internal/models"
)

func embeddedChunk(id, content, docType string, vector []float32) models.EmbeddedChunk {
	return models.EmbeddedChunk{
		ChunkID:   id,
		Content:   content,
		Embedding: vector,
		Metadata: models.ChunkMetadata{
			ChunkID:      id,
			DocumentType: docType,
		},
	}
}

func TestMemoryStoreUpsertRoutesByDocumentType(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	counts, err := store.UpsertChunks(ctx, []models.EmbeddedChunk{
		embeddedChunk("a", "fees", "fee_structure", []float32{1, 0}),
		embeddedChunk("b", "rules", "assessment_policies", []float32{0, 1}),
		embeddedChunk("c", "story", "success_stories", []float32{1, 1}),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, counts[CollectionFactual])
	assert.Equal(t, 1, counts[CollectionGuidelines])
	assert.Equal(t, 1, counts[CollectionContextual])
}

func TestMemoryStoreSearchOrdersByScore(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	_, err := store.UpsertChunks(ctx, []models.EmbeddedChunk{
		embeddedChunk("aligned", "exact match", "fee_structure", []float32{1, 0}),
		embeddedChunk("partial", "partial match", "fee_structure", []float32{1, 1}),
		embeddedChunk("orthogonal", "unrelated", "fee_structure", []float32{0, 1}),
	})
	require.NoError(t, err)

	hits, err := store.Search(ctx, []float32{1, 0}, []string{CollectionFactual},
		SearchParams{Limit: 10, ScoreThreshold: 0.5}, nil)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "aligned", hits[0].ID)
	assert.Equal(t, "partial", hits[1].ID)
	assert.Greater(t, hits[0].Score, hits[1].Score)
}

func TestMemoryStoreSearchAppliesFilters(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	chunk := embeddedChunk("a", "fees", "fee_structure", []float32{1, 0})
	chunk.Metadata.ContainsNumbers = true
	other := embeddedChunk("b", "catalog", "course_catalog", []float32{1, 0})
	_, err := store.UpsertChunks(ctx, []models.EmbeddedChunk{chunk, other})
	require.NoError(t, err)

	hits, err := store.Search(ctx, []float32{1, 0}, nil,
		SearchParams{Limit: 10, ScoreThreshold: 0.5},
		Filters{"document_type": "fee_structure", "contains_numbers": "true"})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "a", hits[0].ID)
}

func TestMemoryStoreStats(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	_, err := store.UpsertChunks(ctx, []models.EmbeddedChunk{
		embeddedChunk("a", "fees", "fee_structure", []float32{1, 0}),
	})
	require.NoError(t, err)

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats[CollectionFactual].PointsCount)
	assert.Equal(t, 0, stats[CollectionGuidelines].PointsCount)
}

func TestTargetCollection(t *testing.T) {
	assert.Equal(t, CollectionFactual, TargetCollection(models.ChunkMetadata{DocumentType: "fee_structure"}))
	assert.Equal(t, CollectionGuidelines, TargetCollection(models.ChunkMetadata{DocumentType: "support_guidelines"}))
	assert.Equal(t, CollectionContextual, TargetCollection(models.ChunkMetadata{DocumentType: "instructor_profiles"}))
	// Unknown type with dense factual content still goes to the factual collection.
	assert.Equal(t, CollectionFactual, TargetCollection(models.ChunkMetadata{DocumentType: "general", ContentDensity: "factual_dense"}))
}

func TestRouteQuery(t *testing.T) {
	assert.Equal(t, []string{CollectionFactual},
		RouteQuery(models.QueryAnalysis{Intent: "factual_lookup"}))
	assert.Equal(t, []string{CollectionGuidelines},
		RouteQuery(models.QueryAnalysis{Intent: "guideline_check"}))
	assert.Equal(t, []string{CollectionGuidelines},
		RouteQuery(models.QueryAnalysis{Intent: "compliance_verification"}))
	assert.Equal(t, []string{CollectionContextual},
		RouteQuery(models.QueryAnalysis{Intent: "contextual_info"}))

	// Factual entity types pull in the factual collection for any intent.
	assert.Equal(t, []string{CollectionFactual, CollectionGuidelines},
		RouteQuery(models.QueryAnalysis{Intent: "guideline_check", EntityTypes: []string{"fee"}}))

	// Unknown intent searches everything.
	assert.Equal(t, CollectionNames(), RouteQuery(models.QueryAnalysis{Intent: "something_else"}))
}

func TestCollectionConfigsTuning(t *testing.T) {
	configs := CollectionConfigs()
	require.Len(t, configs, 3)
	assert.Equal(t, 32, configs[0].Index.M)
	assert.Equal(t, 400, configs[0].Index.EfConstruct)
	assert.Equal(t, 16, configs[1].Index.M)
	assert.Equal(t, 24, configs[2].Index.M)
}
