package retrieval

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/supportquality/sentinel/internal/config"
	"github.com/supportquality/sentinel/internal/llm"
	"github.com/supportquality/sentinel/internal/models"
)

type fakeProvider struct {
	response string
	err      error
}

func (f *fakeProvider) Complete(ctx context.Context, prompt string, opts llm.CompletionOptions) (string, error) {
	return f.response, f.err
}

func (f *fakeProvider) CompleteWithSystem(ctx context.Context, system, user string, opts llm.CompletionOptions) (string, error) {
	return f.response, f.err
}

func (f *fakeProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, errors.New("embeddings not supported")
}

func (f *fakeProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, errors.New("embeddings not supported")
}

func (f *fakeProvider) Name() string             { return "fake" }
func (f *fakeProvider) SupportsEmbeddings() bool { return false }

func TestAdaptiveSearchParams(t *testing.T) {
	params := adaptiveSearchParams(models.QueryAnalysis{})
	assert.Equal(t, 15, params.Limit)
	assert.Equal(t, 0.6, params.ScoreThreshold)

	params = adaptiveSearchParams(models.QueryAnalysis{PrecisionRequired: "high"})
	assert.Equal(t, 20, params.Limit)
	assert.Equal(t, 0.8, params.ScoreThreshold)

	// Complexity adjusts the limit after precision.
	params = adaptiveSearchParams(models.QueryAnalysis{PrecisionRequired: "high", Complexity: "high"})
	assert.Equal(t, 25, params.Limit)
	assert.Equal(t, 0.8, params.ScoreThreshold)

	params = adaptiveSearchParams(models.QueryAnalysis{PrecisionRequired: "low", Complexity: "low"})
	assert.Equal(t, 10, params.Limit)
	assert.Equal(t, 0.5, params.ScoreThreshold)
}

func TestDynamicThreshold(t *testing.T) {
	assert.InDelta(t, 0.6, dynamicThreshold(models.QueryAnalysis{}), 1e-9)
	assert.InDelta(t, 0.8, dynamicThreshold(models.QueryAnalysis{PrecisionRequired: "high"}), 1e-9)
	assert.InDelta(t, 0.5, dynamicThreshold(models.QueryAnalysis{PrecisionRequired: "low"}), 1e-9)
}

func TestPassesTemporalFilter(t *testing.T) {
	now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	horizon := 365 * 24 * time.Hour

	fresh := now.AddDate(0, -1, 0).Format(time.RFC3339)
	stale := now.AddDate(-2, 0, 0).Format(time.RFC3339)

	assert.True(t, passesTemporalFilter(fresh, horizon, now))
	assert.False(t, passesTemporalFilter(stale, horizon, now))
	assert.True(t, passesTemporalFilter("", horizon, now))
	assert.True(t, passesTemporalFilter("not a timestamp", horizon, now))
}

func TestApplyFilteringTemporal(t *testing.T) {
	now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	horizon := 365 * 24 * time.Hour

	results := []result{
		{vectorScore: 0.9, metadata: models.ChunkMetadata{CreatedAt: now.AddDate(0, -1, 0).Format(time.RFC3339)}},
		{vectorScore: 0.9, metadata: models.ChunkMetadata{CreatedAt: now.AddDate(-2, 0, 0).Format(time.RFC3339)}},
		{vectorScore: 0.9, metadata: models.ChunkMetadata{CreatedAt: "unparseable"}},
	}

	analysis := models.QueryAnalysis{TemporalSensitivity: "recent"}
	filtered := applyFiltering(results, analysis, horizon, now)
	require.Len(t, filtered, 2)

	// Without recency sensitivity everything passes.
	filtered = applyFiltering(results, models.QueryAnalysis{TemporalSensitivity: "none"}, horizon, now)
	assert.Len(t, filtered, 3)
}

func TestApplyFilteringNarrativePenalty(t *testing.T) {
	now := time.Now()
	results := []result{
		// 0.7 * 0.8 = 0.56, below the 0.6 default threshold.
		{vectorScore: 0.7, metadata: models.ChunkMetadata{ContentDensity: "narrative"}},
		{vectorScore: 0.7, metadata: models.ChunkMetadata{ContentDensity: "factual_dense"}},
	}

	filtered := applyFiltering(results, models.QueryAnalysis{Intent: "factual_lookup"}, time.Hour, now)
	require.Len(t, filtered, 1)
	assert.Equal(t, "factual_dense", filtered[0].metadata.ContentDensity)

	// For non-factual intents narrative content keeps its score.
	filtered = applyFiltering(results, models.QueryAnalysis{Intent: "contextual_info"}, time.Hour, now)
	assert.Len(t, filtered, 2)
}

func TestCombineScores(t *testing.T) {
	// Default blend: 0.4 vector + 0.6 rerank.
	assert.InDelta(t, 0.4*0.5+0.6*1.0, combineScores(0.5, 1.0, models.QueryAnalysis{}), 1e-9)

	// Factual lookups weight both equally.
	assert.InDelta(t, 0.5*0.5+0.5*1.0, combineScores(0.5, 1.0, models.QueryAnalysis{Intent: "factual_lookup"}), 1e-9)

	// High precision trusts the reranker.
	assert.InDelta(t, 0.2*0.5+0.8*1.0, combineScores(0.5, 1.0, models.QueryAnalysis{PrecisionRequired: "high"}), 1e-9)
}

func TestSemanticRerankClampsModelScores(t *testing.T) {
	engine := &Engine{
		provider: &fakeProvider{response: `{"scores": [1.5, 0.9, 0.8, 0.7, 0.6, -0.2]}`},
		llmCfg:   &config.LLMConfig{},
	}

	results := make([]result, 6)
	for i := range results {
		results[i] = result{content: fmt.Sprintf("result %d", i), vectorScore: 0.9}
	}

	reranked := engine.semanticRerank(context.Background(), results, models.Claim{}, models.QueryAnalysis{})
	require.Len(t, reranked, 6)
	for _, r := range reranked {
		assert.GreaterOrEqual(t, r.rerankScore, 0.0)
		assert.LessOrEqual(t, r.rerankScore, 1.0)
		assert.LessOrEqual(t, r.finalScore(), 1.0)
	}

	// The 1.5 from the model is coerced to 1.0 before blending.
	assert.InDelta(t, 0.4*0.9+0.6*1.0, reranked[0].combinedScore, 1e-9)
	// The -0.2 is coerced to 0.0 and sorts last.
	assert.InDelta(t, 0.4*0.9, reranked[5].combinedScore, 1e-9)
}

func TestQueryTypeForIntent(t *testing.T) {
	assert.Equal(t, "factual", queryTypeForIntent("factual_lookup"))
	assert.Equal(t, "policy", queryTypeForIntent("guideline_check"))
	assert.Equal(t, "policy", queryTypeForIntent("compliance_verification"))
	assert.Equal(t, "narrative", queryTypeForIntent("contextual_info"))
	assert.Equal(t, "general", queryTypeForIntent("anything_else"))
}

func TestOptimizeDiversitySmallSetsPassThrough(t *testing.T) {
	results := make([]result, 8)
	for i := range results {
		results[i] = result{content: "low score", vectorScore: 0.1}
	}
	assert.Len(t, optimizeDiversity(results, models.QueryAnalysis{}), 8)
}

func TestOptimizeDiversityDedupesAndCapsTypes(t *testing.T) {
	var results []result
	// Three identical contents, then distinct ones all from one doc type.
	for i := 0; i < 3; i++ {
		results = append(results, result{content: "duplicate content", vectorScore: 0.9,
			metadata: models.ChunkMetadata{DocumentType: "fee_structure"}})
	}
	for i := 0; i < 6; i++ {
		results = append(results, result{content: string(rune('a'+i)) + " unique content", vectorScore: 0.9,
			metadata: models.ChunkMetadata{DocumentType: "fee_structure"}})
	}
	results = append(results, result{content: "policy content", vectorScore: 0.9,
		metadata: models.ChunkMetadata{DocumentType: "assessment_policies"}})

	optimized := optimizeDiversity(results, models.QueryAnalysis{Scope: "broad"})

	typeCounts := make(map[string]int)
	contents := make(map[string]int)
	for _, r := range optimized {
		typeCounts[r.metadata.DocumentType]++
		contents[r.content]++
	}
	assert.Equal(t, 2, typeCounts["fee_structure"])
	assert.Equal(t, 1, typeCounts["assessment_policies"])
	assert.Equal(t, 1, contents["duplicate content"])
}

func TestOptimizeDiversityQualityFloor(t *testing.T) {
	var results []result
	for i := 0; i < 9; i++ {
		results = append(results, result{content: string(rune('a'+i)) + " content", vectorScore: 0.5,
			metadata: models.ChunkMetadata{DocumentType: string(rune('a' + i))}})
	}

	// 0.5 passes the default 0.4 floor but not the high-precision 0.6 floor.
	assert.NotEmpty(t, optimizeDiversity(results, models.QueryAnalysis{}))
	assert.Empty(t, optimizeDiversity(results, models.QueryAnalysis{PrecisionRequired: "high"}))
}

func TestFormatSourceName(t *testing.T) {
	assert.Equal(t, "fee_structure - Fees",
		formatSourceName(models.ChunkMetadata{DocumentType: "fee_structure", SectionTitle: "Fees"}))
	assert.Equal(t, "fee_structure",
		formatSourceName(models.ChunkMetadata{DocumentType: "fee_structure"}))
	assert.Equal(t, "unknown", formatSourceName(models.ChunkMetadata{}))
}
