package verify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/supportquality/sentinel/internal/config"
	"github.com/supportquality/sentinel/internal/llm"
	"github.com/supportquality/sentinel/internal/models"
)

const verifierSystemPrompt = `You are an expert fact verification system for educational support responses.

Your task is to verify claims against authoritative evidence and provide detailed verification results.

For each claim, analyze the evidence and determine:

1. STATUS: Choose one of:
   - ACCURATE: Claim is fully supported by evidence
   - INACCURATE: Claim contradicts the evidence
   - PARTIALLY_ACCURATE: Claim is partially correct but has inaccuracies
   - INSUFFICIENT_EVIDENCE: Not enough evidence to verify

2. CONFIDENCE: Score from 0.0 to 1.0 indicating verification confidence

3. SUPPORTING_EVIDENCE: List evidence that supports the claim

4. CONTRADICTING_EVIDENCE: List evidence that contradicts the claim

5. EXPLANATION: Clear reasoning for the verification decision

6. CORRECTIONS: If inaccurate, provide the correct information

7. SOURCE_CITATIONS: List specific sources used

Be conservative and precise. If evidence is ambiguous, indicate insufficient evidence rather than guessing.

Focus on factual accuracy for:
- Numbers, amounts, percentages
- Dates, durations, timelines
- Names, titles, contact information
- Policies, procedures, requirements
- Statistics and data points

Return valid JSON with the verification result.`

// FactVerifier verifies claims against retrieved evidence.
type FactVerifier struct {
	provider    llm.Provider
	llmCfg      *config.LLMConfig
	concurrency int
}

// NewFactVerifier creates a fact verifier with the given batch concurrency.
func NewFactVerifier(provider llm.Provider, llmCfg *config.LLMConfig, concurrency int) *FactVerifier {
	if concurrency < 1 {
		concurrency = 5
	}
	return &FactVerifier{provider: provider, llmCfg: llmCfg, concurrency: concurrency}
}

// VerifyClaim checks one claim against its evidence. A claim with no
// evidence short-circuits to INSUFFICIENT_EVIDENCE without a model call;
// model failures produce a fallback result flagged for manual review.
func (v *FactVerifier) VerifyClaim(ctx context.Context, claim models.Claim, evidence []models.Evidence) models.ClaimVerification {
	if len(evidence) == 0 {
		return models.ClaimVerification{
			ClaimText:             claim.Text,
			Status:                models.ClaimInsufficientEvidence,
			Confidence:            0.0,
			SupportingEvidence:    []models.Evidence{},
			ContradictingEvidence: []models.Evidence{},
			Explanation:           "No evidence found to verify this claim.",
			SourceCitations:       []string{},
			VerificationTimestamp: time.Now().UTC().Format(time.RFC3339),
		}
	}

	prompt := buildVerificationPrompt(claim, evidence)
	opts := llm.CompletionOptions{
		Model:       v.llmCfg.StageModel(v.llmCfg.FactVerification),
		Temperature: 0.1,
		MaxTokens:   1500,
		JSONMode:    true,
	}

	response, err := v.provider.CompleteWithSystem(ctx, verifierSystemPrompt, prompt, opts)
	if err != nil {
		log.Error().Err(err).Str("claim", claim.Text).Msg("Verification failed")
		return fallbackVerification(claim)
	}

	verification, err := parseVerification(response, claim, evidence)
	if err != nil {
		log.Error().Err(err).Str("claim", claim.Text).Msg("Verification returned invalid JSON")
		return fallbackVerification(claim)
	}
	return verification
}

// BatchVerify verifies claims in batches with bounded concurrency, preserving
// input order. A failed claim gets a fallback result; it never aborts the
// batch.
func (v *FactVerifier) BatchVerify(ctx context.Context, claims []models.Claim, evidenceMap map[string][]models.Evidence) []models.ClaimVerification {
	log.Info().Int("claims", len(claims)).Int("concurrency", v.concurrency).Msg("Batch verifying claims")

	results := make([]models.ClaimVerification, len(claims))

	const batchSize = 5
	for start := 0; start < len(claims); start += batchSize {
		end := start + batchSize
		if end > len(claims) {
			end = len(claims)
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(v.concurrency)
		for i := start; i < end; i++ {
			i := i
			g.Go(func() error {
				claim := claims[i]
				results[i] = v.VerifyClaim(gctx, claim, evidenceMap[claim.Text])
				return nil
			})
		}
		g.Wait()
	}

	statusCounts := make(map[models.ClaimStatus]int)
	for _, r := range results {
		statusCounts[r.Status]++
	}
	log.Info().Interface("status_counts", statusCounts).Msg("Verification complete")

	return results
}

func buildVerificationPrompt(claim models.Claim, evidence []models.Evidence) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "CLAIM TO VERIFY: %q\n", claim.Text)
	fmt.Fprintf(&sb, "CLAIM TYPE: %s\n", claim.ClaimType)
	fmt.Fprintf(&sb, "VERIFICATION PRIORITY: %s\n", claim.VerificationPriority)
	fmt.Fprintf(&sb, "SPECIFICITY LEVEL: %s\n\n", claim.SpecificityLevel)

	if len(claim.Entities) > 0 {
		fmt.Fprintf(&sb, "KEY ENTITIES: %s\n\n", strings.Join(claim.Entities, ", "))
	}

	sb.WriteString("EVIDENCE:\n")
	for i, e := range evidence {
		fmt.Fprintf(&sb, "\nEvidence %d:\n", i+1)
		fmt.Fprintf(&sb, "Source: %s\n", e.Source)
		fmt.Fprintf(&sb, "Content: %s\n", e.Content)
		fmt.Fprintf(&sb, "Relevance Score: %.2f\n", e.RelevanceScore)
		fmt.Fprintf(&sb, "Document Type: %s\n", e.DocumentType)
		if e.LastUpdated != "" {
			fmt.Fprintf(&sb, "Last Updated: %s\n", e.LastUpdated)
		}
	}

	sb.WriteString(`
Verify the claim against this evidence and provide:
- status: ACCURATE, INACCURATE, PARTIALLY_ACCURATE, or INSUFFICIENT_EVIDENCE
- confidence: 0.0 to 1.0
- supporting_evidence: list of evidence indices that support the claim
- contradicting_evidence: list of evidence indices that contradict the claim
- explanation: detailed reasoning for the verification decision
- corrections: if inaccurate, provide correct information
- source_citations: list of source names used

Return JSON format with these fields.`)
	return sb.String()
}

func parseVerification(response string, claim models.Claim, evidence []models.Evidence) (models.ClaimVerification, error) {
	var parsed struct {
		Status                string   `json:"status"`
		Confidence            float64  `json:"confidence"`
		SupportingEvidence    []int    `json:"supporting_evidence"`
		ContradictingEvidence []int    `json:"contradicting_evidence"`
		Explanation           string   `json:"explanation"`
		Corrections           string   `json:"corrections"`
		SourceCitations       []string `json:"source_citations"`
	}
	if err := llm.DecodeObject(response, &parsed); err != nil {
		return models.ClaimVerification{}, err
	}

	status := models.ClaimStatus(strings.ToUpper(parsed.Status))
	switch status {
	case models.ClaimAccurate, models.ClaimInaccurate, models.ClaimPartiallyAccurate, models.ClaimInsufficientEvidence:
	default:
		log.Warn().Str("status", parsed.Status).Msg("Invalid verification status, defaulting to INSUFFICIENT_EVIDENCE")
		status = models.ClaimInsufficientEvidence
	}

	explanation := parsed.Explanation
	if explanation == "" {
		explanation = "No explanation provided."
	}

	citations := parsed.SourceCitations
	if citations == nil {
		citations = []string{}
	}

	return models.ClaimVerification{
		ClaimText:             claim.Text,
		Status:                status,
		Confidence:            models.Clamp01(parsed.Confidence),
		SupportingEvidence:    pickEvidence(evidence, parsed.SupportingEvidence),
		ContradictingEvidence: pickEvidence(evidence, parsed.ContradictingEvidence),
		Explanation:           explanation,
		Corrections:           parsed.Corrections,
		SourceCitations:       citations,
		VerificationTimestamp: time.Now().UTC().Format(time.RFC3339),
	}, nil
}

// pickEvidence resolves 1-based evidence indices, dropping out-of-range ones.
func pickEvidence(evidence []models.Evidence, indices []int) []models.Evidence {
	picked := make([]models.Evidence, 0, len(indices))
	for _, idx := range indices {
		if idx >= 1 && idx <= len(evidence) {
			picked = append(picked, evidence[idx-1])
		}
	}
	return picked
}

func fallbackVerification(claim models.Claim) models.ClaimVerification {
	return models.ClaimVerification{
		ClaimText:             claim.Text,
		Status:                models.ClaimInsufficientEvidence,
		Confidence:            0.0,
		SupportingEvidence:    []models.Evidence{},
		ContradictingEvidence: []models.Evidence{},
		Explanation:           "Verification failed due to technical error. Manual review required.",
		SourceCitations:       []string{},
		VerificationTimestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// CalculateOverallAccuracy aggregates verification outcomes into a weighted
// score: accurate claims count fully, partially accurate claims count half.
func CalculateOverallAccuracy(verifications []models.ClaimVerification) models.FactualAccuracy {
	if len(verifications) == 0 {
		return models.FactualAccuracy{}
	}

	var accuracy models.FactualAccuracy
	var totalConfidence float64

	for _, v := range verifications {
		switch v.Status {
		case models.ClaimAccurate:
			accuracy.AccurateClaims++
		case models.ClaimInaccurate:
			accuracy.InaccurateClaims++
		case models.ClaimPartiallyAccurate:
			accuracy.PartiallyAccurateClaims++
		case models.ClaimInsufficientEvidence:
			accuracy.InsufficientEvidenceClaims++
		}
		totalConfidence += v.Confidence
	}

	total := len(verifications)
	accuracy.TotalClaims = total
	accuracy.OverallScore = (float64(accuracy.AccurateClaims) + 0.5*float64(accuracy.PartiallyAccurateClaims)) / float64(total)
	accuracy.AverageConfidence = totalConfidence / float64(total)
	return accuracy
}
