// Package pipeline orchestrates the complete response verification flow:
// claim extraction, evidence retrieval, fact verification, compliance
// checking, and feedback generation.
package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/supportquality/sentinel/internal/compliance"
	"github.com/supportquality/sentinel/internal/config"
	"github.com/supportquality/sentinel/internal/feedback"
	"github.com/supportquality/sentinel/internal/llm"
	"github.com/supportquality/sentinel/internal/models"
	"github.com/supportquality/sentinel/internal/retrieval"
	"github.com/supportquality/sentinel/internal/verify"
)

// Factual accuracy dominates the overall score; compliance carries the rest.
const (
	factualWeight    = 0.6
	complianceWeight = 0.4
)

// Pipeline runs the full verification flow for a support response.
type Pipeline struct {
	extractor *verify.ClaimExtractor
	verifier  *verify.FactVerifier
	retriever retrieval.EvidenceRetriever
	fallback  retrieval.EvidenceRetriever
	checker   *compliance.Checker
	generator *feedback.Generator
	llmCfg    *config.LLMConfig
	provider  llm.Provider
}

// New creates a pipeline. fallback may be nil; when set it is used for
// evidence retrieval if the primary retriever comes back empty-handed.
func New(
	provider llm.Provider,
	retriever, fallback retrieval.EvidenceRetriever,
	cfg *config.Config,
) *Pipeline {
	return &Pipeline{
		extractor: verify.NewClaimExtractor(provider, &cfg.LLM),
		verifier:  verify.NewFactVerifier(provider, &cfg.LLM, cfg.Retrieval.VerifyConcurrency),
		retriever: retriever,
		fallback:  fallback,
		checker:   compliance.NewChecker(provider, retriever, &cfg.LLM),
		generator: feedback.NewGenerator(provider, &cfg.LLM),
		llmCfg:    &cfg.LLM,
		provider:  provider,
	}
}

// VerifyResponse runs a support response through every verification stage
// and assembles the combined result. Individual stage failures degrade to
// fallback results; the pipeline itself does not fail.
func (p *Pipeline) VerifyResponse(ctx context.Context, req *models.SupportVerificationRequest) models.SupportVerificationResponse {
	start := time.Now()
	log.Info().
		Str("ticket_id", req.TicketID).
		Str("level", string(req.VerificationLevel)).
		Msg("Starting response verification")

	// Stage 1: claim extraction.
	claims := p.extractor.ExtractClaims(ctx, req.SupportResponse, req.CustomerQuery)
	claims = verify.ValidateClaims(claims)

	// Stage 2: evidence retrieval, sized by the verification level.
	maxEvidence := req.VerificationLevel.MaxEvidencePerClaim()
	evidenceMap := p.retrieveEvidence(ctx, claims, maxEvidence)

	// Stage 3: fact verification.
	verifications := p.verifier.BatchVerify(ctx, claims, evidenceMap)
	accuracy := verify.CalculateOverallAccuracy(verifications)

	// Stage 4: compliance, reusing the already-extracted claims.
	complianceResult := p.checker.CheckCompliance(ctx, req.SupportResponse, req.CustomerQuery, claims)

	// Stage 5: feedback, only when the caller wants suggestions.
	var feedbackResult models.FeedbackResult
	if req.IncludeSuggestions != nil && *req.IncludeSuggestions {
		feedbackResult = p.generator.GenerateFeedback(ctx, req.SupportResponse, req.CustomerQuery, verifications, complianceResult)
	}

	overall := models.Round3(factualWeight*accuracy.OverallScore + complianceWeight*complianceResult.OverallScore)
	status := determineStatus(overall, *req.MinAccuracyScore)

	supporting, conflicting := flattenEvidence(verifications)

	result := models.SupportVerificationResponse{
		OverallScore:           overall,
		VerificationStatus:     status,
		ProcessingTimeMs:       time.Since(start).Milliseconds(),
		ClaimVerifications:     verifications,
		GuidelineCompliance:    complianceResult,
		FactualAccuracy:        accuracy,
		FeedbackSummary:        feedbackResult.OverallFeedback,
		ImprovementSuggestions: suggestionSummaries(feedbackResult.ImprovementSuggestions),
		SupportingEvidence:     supporting,
		ConflictingEvidence:    conflicting,
		VerificationID:         uuid.NewString(),
		Timestamp:              time.Now().UTC().Format(time.RFC3339),
		ModelVersions:          p.modelVersions(),
	}
	if feedbackResult.ResponseSuggestion != nil {
		result.SuggestedResponse = feedbackResult.ResponseSuggestion.ImprovedResponse
	}

	log.Info().
		Str("verification_id", result.VerificationID).
		Str("status", string(status)).
		Float64("overall_score", overall).
		Int("claims", accuracy.TotalClaims).
		Int64("elapsed_ms", result.ProcessingTimeMs).
		Msg("Verification complete")

	return result
}

// retrieveEvidence queries the primary retriever, falling back to the
// secondary one when nothing at all comes back.
func (p *Pipeline) retrieveEvidence(ctx context.Context, claims []models.Claim, maxPerClaim int) map[string][]models.Evidence {
	if len(claims) == 0 {
		return map[string][]models.Evidence{}
	}

	evidenceMap := p.retriever.RetrieveEvidence(ctx, claims, maxPerClaim)

	total := 0
	for _, ev := range evidenceMap {
		total += len(ev)
	}
	if total == 0 && p.fallback != nil {
		log.Warn().Msg("Primary retrieval returned no evidence, using fallback retriever")
		evidenceMap = p.fallback.RetrieveEvidence(ctx, claims, maxPerClaim)
	}
	return evidenceMap
}

// determineStatus maps the combined score onto an outcome. Scores within
// 0.1 below the threshold go to manual review instead of outright rejection.
func determineStatus(overall, minAccuracy float64) models.VerificationStatus {
	switch {
	case overall >= minAccuracy:
		return models.StatusApproved
	case overall >= minAccuracy-0.1:
		return models.StatusNeedsReview
	default:
		return models.StatusRejected
	}
}

func flattenEvidence(verifications []models.ClaimVerification) (supporting, conflicting []models.Evidence) {
	supporting = []models.Evidence{}
	conflicting = []models.Evidence{}
	for _, v := range verifications {
		supporting = append(supporting, v.SupportingEvidence...)
		conflicting = append(conflicting, v.ContradictingEvidence...)
	}
	return supporting, conflicting
}

func suggestionSummaries(suggestions []models.ImprovementSuggestion) []string {
	summaries := make([]string, 0, len(suggestions))
	for _, s := range suggestions {
		summaries = append(summaries, s.Description)
	}
	return summaries
}

func (p *Pipeline) modelVersions() map[string]string {
	return map[string]string{
		"provider":            p.provider.Name(),
		"claim_extraction":    p.llmCfg.StageModel(p.llmCfg.ClaimExtraction),
		"fact_verification":   p.llmCfg.StageModel(p.llmCfg.FactVerification),
		"compliance_check":    p.llmCfg.StageModel(p.llmCfg.ComplianceCheck),
		"feedback_generation": p.llmCfg.StageModel(p.llmCfg.FeedbackGeneration),
		"embedding":           p.llmCfg.EmbeddingModel,
	}
}
