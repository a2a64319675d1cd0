// Package retrieval finds knowledge-base evidence for claims using
// multi-stage retrieval: query analysis, expansion, multi-collection vector
// search, filtering, semantic reranking, and diversity optimization.
package retrieval

import (
	"context"
	"fmt"
	"hash/fnv"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/supportquality/sentinel/internal/config"
	"github.com/supportquality/sentinel/internal/embed"
	"github.com/supportquality/sentinel/internal/llm"
	"github.com/supportquality/sentinel/internal/models"
	"github.com/supportquality/sentinel/internal/vectorstore"
)

// EvidenceRetriever maps claims to supporting evidence. Implementations
// never fail a whole batch; a claim with no findable evidence gets an empty
// slice.
type EvidenceRetriever interface {
	RetrieveEvidence(ctx context.Context, claims []models.Claim, maxPerClaim int) map[string][]models.Evidence
}

// result carries a search hit through the retrieval stages.
type result struct {
	content       string
	metadata      models.ChunkMetadata
	vectorScore   float64
	rerankScore   float64
	combinedScore float64
	hasCombined   bool
	collection    string
}

func (r *result) finalScore() float64 {
	if r.hasCombined {
		return r.combinedScore
	}
	return r.vectorScore
}

// Engine is the multi-stage retrieval pipeline.
type Engine struct {
	provider llm.Provider
	embedder *embed.Manager
	store    vectorstore.Store
	llmCfg   *config.LLMConfig
	horizon  time.Duration
}

// NewEngine creates a retrieval engine.
func NewEngine(provider llm.Provider, embedder *embed.Manager, store vectorstore.Store, cfg *config.Config) *Engine {
	horizon := time.Duration(cfg.Retrieval.TemporalHorizonDays) * 24 * time.Hour
	if horizon <= 0 {
		horizon = 365 * 24 * time.Hour
	}
	return &Engine{
		provider: provider,
		embedder: embedder,
		store:    store,
		llmCfg:   &cfg.LLM,
		horizon:  horizon,
	}
}

// RetrieveEvidence retrieves evidence for all claims. Per-claim failures are
// logged and yield empty evidence rather than failing the batch.
func (e *Engine) RetrieveEvidence(ctx context.Context, claims []models.Claim, maxPerClaim int) map[string][]models.Evidence {
	log.Info().Int("claims", len(claims)).Msg("Advanced retrieval for claims")

	evidence := make(map[string][]models.Evidence, len(claims))
	total := 0
	for _, claim := range claims {
		list := e.retrieveForClaim(ctx, claim, maxPerClaim)
		evidence[claim.Text] = list
		total += len(list)
	}

	log.Info().Int("evidence_items", total).Msg("Retrieval complete")
	return evidence
}

func (e *Engine) retrieveForClaim(ctx context.Context, claim models.Claim, maxEvidence int) []models.Evidence {
	analysis := e.AnalyzeQuery(ctx, claim)
	queries := e.ExpandQuery(ctx, claim, analysis)

	raw := e.multiCollectionRetrieval(ctx, queries, analysis)
	filtered := applyFiltering(raw, analysis, e.horizon, time.Now())
	reranked := e.semanticRerank(ctx, filtered, claim, analysis)
	final := optimizeDiversity(reranked, analysis)

	if len(final) > maxEvidence {
		final = final[:maxEvidence]
	}

	evidence := make([]models.Evidence, 0, len(final))
	for _, r := range final {
		evidence = append(evidence, models.Evidence{
			Source:         formatSourceName(r.metadata),
			Content:        r.content,
			RelevanceScore: r.finalScore(),
			DocumentType:   r.metadata.DocumentType,
			LastUpdated:    r.metadata.CreatedAt,
		})
	}
	return evidence
}

// AnalyzeQuery characterizes a claim for retrieval tuning. Failures return a
// conservative default analysis.
func (e *Engine) AnalyzeQuery(ctx context.Context, claim models.Claim) models.QueryAnalysis {
	prompt := fmt.Sprintf(`Analyze this claim for a support response verification system:

Claim: "%s"
Claim Type: %s
Priority: %s
Entities: %s

Identify:
1. Intent type: factual_lookup, guideline_check, compliance_verification, contextual_info
2. Complexity level: low, medium, high
3. Precision requirements: low, medium, high
4. Urgency level: low, medium, high
5. Temporal sensitivity: none, recent, specific_date
6. Entity types: numbers, dates, names, policies, procedures
7. Expected answer type: specific_fact, explanation, procedure, comparison
8. Scope: narrow, broad, comprehensive

Return JSON with fields: intent, complexity, precision_requirements, urgency_level, temporal_sensitivity, entity_types, expected_answer_type, scope.`,
		claim.Text, claim.ClaimType, claim.VerificationPriority, strings.Join(claim.Entities, ", "))

	opts := llm.CompletionOptions{
		Model:       e.llmCfg.StageModel(e.llmCfg.QueryExpansion),
		Temperature: 0.1,
		MaxTokens:   500,
		JSONMode:    true,
	}

	fallback := models.QueryAnalysis{
		Intent:             "factual_lookup",
		Complexity:         "medium",
		PrecisionRequired:  "medium",
		Urgency:            "medium",
		TemporalSensitivity: "none",
		EntityTypes:        claim.Entities,
		ExpectedAnswerType: "specific_fact",
		Scope:              "narrow",
	}

	response, err := e.provider.CompleteWithSystem(ctx,
		"You are a query analysis expert. Return only valid JSON.", prompt, opts)
	if err != nil {
		log.Error().Err(err).Msg("Query analysis failed")
		return fallback
	}

	var parsed struct {
		Intent              string   `json:"intent"`
		Complexity          string   `json:"complexity"`
		PrecisionRequired   string   `json:"precision_requirements"`
		Urgency             string   `json:"urgency_level"`
		TemporalSensitivity string   `json:"temporal_sensitivity"`
		EntityTypes         []string `json:"entity_types"`
		ExpectedAnswerType  string   `json:"expected_answer_type"`
		Scope               string   `json:"scope"`
	}
	if err := llm.DecodeObject(response, &parsed); err != nil {
		log.Error().Err(err).Msg("Query analysis returned invalid JSON")
		return fallback
	}

	analysis := fallback
	if parsed.Intent != "" {
		analysis.Intent = parsed.Intent
	}
	if parsed.Complexity != "" {
		analysis.Complexity = parsed.Complexity
	}
	if parsed.PrecisionRequired != "" {
		analysis.PrecisionRequired = parsed.PrecisionRequired
	}
	if parsed.Urgency != "" {
		analysis.Urgency = parsed.Urgency
	}
	if parsed.TemporalSensitivity != "" {
		analysis.TemporalSensitivity = parsed.TemporalSensitivity
	}
	if len(parsed.EntityTypes) > 0 {
		analysis.EntityTypes = parsed.EntityTypes
	}
	if parsed.ExpectedAnswerType != "" {
		analysis.ExpectedAnswerType = parsed.ExpectedAnswerType
	}
	if parsed.Scope != "" {
		analysis.Scope = parsed.Scope
	}
	analysis.ContainsTemporalElements = analysis.TemporalSensitivity != "none"
	return analysis
}

// ExpandQuery generates diverse query variations for a claim. The original
// claim text is always included; failures fall back to it alone.
func (e *Engine) ExpandQuery(ctx context.Context, claim models.Claim, analysis models.QueryAnalysis) []string {
	prompt := fmt.Sprintf(`Generate 3-5 diverse search queries to find evidence for this claim:

Original Claim: "%s"
Intent: %s
Entities: %s

Generate queries that:
1. Search for direct factual confirmation
2. Look for related policy/guideline information
3. Find contextual supporting information
4. Search for potential contradictory information
5. Use different phrasings and synonyms

Return JSON with "queries" array.`,
		claim.Text, analysis.Intent, strings.Join(claim.Entities, ", "))

	opts := llm.CompletionOptions{
		Model:       e.llmCfg.StageModel(e.llmCfg.QueryExpansion),
		Temperature: 0.3,
		MaxTokens:   400,
		JSONMode:    true,
	}

	response, err := e.provider.CompleteWithSystem(ctx,
		"Generate diverse search queries. Return only valid JSON.", prompt, opts)
	if err != nil {
		log.Error().Err(err).Msg("Query expansion failed")
		return []string{claim.Text}
	}

	var parsed struct {
		Queries []string `json:"queries"`
	}
	if err := llm.DecodeObject(response, &parsed); err != nil || len(parsed.Queries) == 0 {
		return []string{claim.Text}
	}

	queries := parsed.Queries
	found := false
	for _, q := range queries {
		if q == claim.Text {
			found = true
			break
		}
	}
	if !found {
		queries = append([]string{claim.Text}, queries...)
	}
	if len(queries) > 5 {
		queries = queries[:5]
	}
	return queries
}

func (e *Engine) multiCollectionRetrieval(ctx context.Context, queries []string, analysis models.QueryAnalysis) []result {
	collections := vectorstore.RouteQuery(analysis)
	queryType := queryTypeForIntent(analysis.Intent)

	var all []result
	for _, collection := range collections {
		for _, query := range queries {
			vector := e.embedder.EmbedQuery(ctx, query, queryType)
			params := adaptiveSearchParams(analysis)

			hits, err := e.store.Search(ctx, vector, []string{collection}, params, nil)
			if err != nil {
				log.Error().Err(err).
					Str("collection", collection).
					Str("query", query).
					Msg("Search failed")
				continue
			}

			for _, hit := range hits {
				all = append(all, result{
					content:     hit.Content,
					metadata:    hit.Metadata,
					vectorScore: hit.Score,
					collection:  collection,
				})
			}
		}
	}
	return all
}

func queryTypeForIntent(intent string) string {
	switch intent {
	case "factual_lookup":
		return "factual"
	case "guideline_check", "compliance_verification":
		return "policy"
	case "contextual_info":
		return "narrative"
	default:
		return "general"
	}
}

func adaptiveSearchParams(analysis models.QueryAnalysis) vectorstore.SearchParams {
	params := vectorstore.SearchParams{Limit: 15, ScoreThreshold: 0.6}

	switch analysis.PrecisionRequired {
	case "high":
		params.ScoreThreshold = 0.8
		params.Limit = 20
	case "low":
		params.ScoreThreshold = 0.5
		params.Limit = 10
	}

	switch analysis.Complexity {
	case "high":
		params.Limit = 25
	case "low":
		params.Limit = 10
	}

	return params
}

// applyFiltering drops stale and low-relevance results. Narrative content
// is down-weighted (not dropped) for factual lookups.
func applyFiltering(results []result, analysis models.QueryAnalysis, horizon time.Duration, now time.Time) []result {
	threshold := dynamicThreshold(analysis)

	filtered := make([]result, 0, len(results))
	for _, r := range results {
		if analysis.TemporalSensitivity == "recent" && !passesTemporalFilter(r.metadata.CreatedAt, horizon, now) {
			continue
		}

		if analysis.Intent == "factual_lookup" && r.metadata.ContentDensity == "narrative" {
			r.vectorScore *= 0.8
		}

		if r.vectorScore >= threshold {
			filtered = append(filtered, r)
		}
	}
	return filtered
}

// passesTemporalFilter rejects results with timestamps older than the
// horizon. Unparseable or missing timestamps pass.
func passesTemporalFilter(lastUpdated string, horizon time.Duration, now time.Time) bool {
	if lastUpdated == "" {
		return true
	}
	t, err := time.Parse(time.RFC3339, lastUpdated)
	if err != nil {
		return true
	}
	return now.Sub(t) <= horizon
}

func dynamicThreshold(analysis models.QueryAnalysis) float64 {
	base := 0.6
	switch analysis.PrecisionRequired {
	case "high":
		return base + 0.2
	case "low":
		return base - 0.1
	}
	return base
}

// semanticRerank asks the model to score the top candidates and blends those
// scores with vector similarity. Small result sets are returned unchanged.
func (e *Engine) semanticRerank(ctx context.Context, results []result, claim models.Claim, analysis models.QueryAnalysis) []result {
	if len(results) <= 5 {
		return results
	}

	candidates := results
	if len(candidates) > 10 {
		candidates = candidates[:10]
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, `Rerank these search results for relevance to the claim:

Claim: "%s"
Claim Type: %s
Intent: %s

Rate each result 0.0-1.0 for relevance to verifying this claim.
Consider factual accuracy, completeness, and authority.
Return JSON with "scores" array.

Results:
`, claim.Text, claim.ClaimType, analysis.Intent)

	for i, r := range candidates {
		content := r.content
		if len(content) > 300 {
			content = content[:300]
		}
		fmt.Fprintf(&sb, "%d. %s...\n", i+1, content)
	}

	opts := llm.CompletionOptions{
		Model:       e.llmCfg.StageModel(e.llmCfg.Reranking),
		Temperature: 0.1,
		MaxTokens:   300,
		JSONMode:    true,
	}

	response, err := e.provider.CompleteWithSystem(ctx,
		"You are a relevance scoring expert. Return JSON with scores array.", sb.String(), opts)
	if err != nil {
		log.Error().Err(err).Msg("Semantic reranking failed")
		return results
	}

	var parsed struct {
		Scores []float64 `json:"scores"`
	}
	if err := llm.DecodeObject(response, &parsed); err != nil {
		log.Error().Err(err).Msg("Reranking returned invalid JSON")
		return results
	}

	for i, score := range parsed.Scores {
		if i >= len(results) {
			break
		}
		score = models.Clamp01(score)
		results[i].rerankScore = score
		results[i].combinedScore = combineScores(results[i].vectorScore, score, analysis)
		results[i].hasCombined = true
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].finalScore() > results[j].finalScore()
	})
	return results
}

func combineScores(vectorScore, rerankScore float64, analysis models.QueryAnalysis) float64 {
	vectorWeight, rerankWeight := 0.4, 0.6

	if analysis.Intent == "factual_lookup" {
		vectorWeight, rerankWeight = 0.5, 0.5
	} else if analysis.PrecisionRequired == "high" {
		vectorWeight, rerankWeight = 0.2, 0.8
	}

	return vectorScore*vectorWeight + rerankScore*rerankWeight
}

// optimizeDiversity deduplicates near-identical content, caps results per
// document type, and enforces a quality floor. Small sets pass through.
func optimizeDiversity(results []result, analysis models.QueryAnalysis) []result {
	if len(results) <= 8 {
		return results
	}

	maxPerType := 2
	if analysis.Scope == "narrow" {
		maxPerType = 3
	}
	minScore := 0.4
	if analysis.PrecisionRequired == "high" {
		minScore = 0.6
	}

	seen := make(map[uint64]bool)
	typeCounts := make(map[string]int)
	optimized := make([]result, 0, 10)

	for _, r := range results {
		prefix := r.content
		if len(prefix) > 200 {
			prefix = prefix[:200]
		}
		h := fnv.New64a()
		h.Write([]byte(prefix))
		contentHash := h.Sum64()
		if seen[contentHash] {
			continue
		}

		docType := r.metadata.DocumentType
		if docType == "" {
			docType = "unknown"
		}
		if typeCounts[docType] >= maxPerType {
			continue
		}

		if r.finalScore() < minScore {
			continue
		}

		optimized = append(optimized, r)
		seen[contentHash] = true
		typeCounts[docType]++

		if len(optimized) >= 10 {
			break
		}
	}
	return optimized
}

func formatSourceName(meta models.ChunkMetadata) string {
	docType := meta.DocumentType
	if docType == "" {
		docType = "unknown"
	}
	if meta.SectionTitle != "" {
		return docType + " - " + meta.SectionTitle
	}
	return docType
}
