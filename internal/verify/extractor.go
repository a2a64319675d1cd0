// Package verify extracts verifiable claims from support responses and
// checks them against retrieved evidence.
package verify

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/supportquality/sentinel/internal/config"
	"github.com/supportquality/sentinel/internal/llm"
	"github.com/supportquality/sentinel/internal/models"
)

const extractorSystemPrompt = `You are an expert claim extraction system for educational support responses.

Your task is to extract discrete, verifiable claims from support agent responses that can be fact-checked against authoritative documentation.

Focus on extracting claims about:
- Course fees, costs, and pricing
- Program duration and schedules
- Admission requirements and procedures
- Placement statistics and company partnerships
- Assessment policies and grading systems
- Support response times and procedures
- Instructor qualifications and experience
- Certification details and validity

For each claim, determine:
1. Claim type: factual_data, policy_statement, procedure_step, timeline_info, contact_info
2. Verification priority: high (critical facts), medium (important details), low (general info)
3. Expected evidence type: numerical_data, policy_document, procedure_guide, contact_directory
4. Specificity level: specific (exact numbers/dates), general (approximate), vague (unclear)

Extract entities like numbers, dates, names, percentages, and amounts.

Return valid JSON with a "claims" array containing claim objects.`

// ClaimExtractor extracts verifiable claims from support responses.
type ClaimExtractor struct {
	provider llm.Provider
	llmCfg   *config.LLMConfig
}

// NewClaimExtractor creates a claim extractor.
func NewClaimExtractor(provider llm.Provider, llmCfg *config.LLMConfig) *ClaimExtractor {
	return &ClaimExtractor{provider: provider, llmCfg: llmCfg}
}

// ExtractClaims extracts claims from a support response. On model failure it
// falls back to pattern-based extraction rather than returning an error.
func (e *ClaimExtractor) ExtractClaims(ctx context.Context, responseText, customerQuery string) []models.Claim {
	log.Info().Int("chars", len(responseText)).Msg("Extracting claims from response")

	prompt := buildExtractionPrompt(responseText, customerQuery)
	opts := llm.CompletionOptions{
		Model:       e.llmCfg.StageModel(e.llmCfg.ClaimExtraction),
		Temperature: 0.1,
		MaxTokens:   2000,
		JSONMode:    true,
	}

	response, err := e.provider.CompleteWithSystem(ctx, extractorSystemPrompt, prompt, opts)
	if err != nil {
		log.Error().Err(err).Msg("Claim extraction failed")
		return fallbackClaims(responseText)
	}

	claims, err := parseClaims(response, responseText)
	if err != nil {
		log.Error().Err(err).Msg("Claim extraction returned invalid JSON")
		return fallbackClaims(responseText)
	}

	log.Info().Int("claims", len(claims)).Msg("Extracted claims")
	return claims
}

func buildExtractionPrompt(responseText, customerQuery string) string {
	var sb strings.Builder
	sb.WriteString("Extract all verifiable claims from this support response:\n\n")
	fmt.Fprintf(&sb, "SUPPORT RESPONSE: %q\n", responseText)
	if customerQuery != "" {
		fmt.Fprintf(&sb, "CUSTOMER QUERY: %q\n", customerQuery)
	}
	sb.WriteString(`
For each claim, provide:
- text: exact claim text from the response
- claim_type: factual_data, policy_statement, procedure_step, timeline_info, or contact_info
- verification_priority: high, medium, or low
- expected_evidence_type: numerical_data, policy_document, procedure_guide, or contact_directory
- specificity_level: specific, general, or vague
- context_start: character position where claim starts
- context_end: character position where claim ends
- entities: list of specific entities (numbers, dates, names, amounts)
- confidence: confidence score 0.0 to 1.0

Return JSON format with 'claims' array.`)
	return sb.String()
}

type rawClaim struct {
	Text                 string   `json:"text"`
	ClaimType            string   `json:"claim_type"`
	VerificationPriority string   `json:"verification_priority"`
	ExpectedEvidenceType string   `json:"expected_evidence_type"`
	SpecificityLevel     string   `json:"specificity_level"`
	ContextStart         int      `json:"context_start"`
	ContextEnd           int      `json:"context_end"`
	Entities             []string `json:"entities"`
	Confidence           *float64 `json:"confidence"`
}

func parseClaims(response, originalText string) ([]models.Claim, error) {
	var parsed struct {
		Claims []rawClaim `json:"claims"`
	}
	if err := llm.DecodeObject(response, &parsed); err != nil {
		return nil, err
	}

	claims := make([]models.Claim, 0, len(parsed.Claims))
	for _, raw := range parsed.Claims {
		text := strings.TrimSpace(raw.Text)
		if len(text) < 5 {
			continue
		}

		claimType := raw.ClaimType
		if !models.ValidClaimType(claimType) {
			claimType = string(models.ClaimTypeFactualData)
		}

		priority := raw.VerificationPriority
		if priority == "" {
			priority = "medium"
		}
		evidenceType := raw.ExpectedEvidenceType
		if evidenceType == "" {
			evidenceType = "numerical_data"
		}
		specificity := raw.SpecificityLevel
		if specificity == "" {
			specificity = "general"
		}
		confidence := 0.8
		if raw.Confidence != nil {
			confidence = models.Clamp01(*raw.Confidence)
		}

		start := raw.ContextStart
		if start < 0 {
			start = 0
		}
		end := raw.ContextEnd
		if end == 0 {
			end = len(text)
		}
		if end > len(originalText) {
			end = len(originalText)
		}

		claims = append(claims, models.Claim{
			ID:                   uuid.NewString(),
			Text:                 text,
			ClaimType:            models.ClaimType(claimType),
			VerificationPriority: priority,
			ExpectedEvidenceType: evidenceType,
			SpecificityLevel:     specificity,
			ContextStart:         start,
			ContextEnd:           end,
			Entities:             raw.Entities,
			Confidence:           confidence,
		})
	}
	return claims, nil
}

// fallbackClaims extracts basic claims with pattern matching when the model
// is unavailable: monetary amounts and duration mentions.
func fallbackClaims(responseText string) []models.Claim {
	log.Info().Msg("Using fallback claim extraction")

	var claims []models.Claim
	words := strings.Fields(responseText)

	for i, word := range words {
		if !strings.Contains(word, "₹") && !strings.Contains(strings.ToLower(word), "rupees") {
			continue
		}
		contextStart := strings.Index(responseText, word)
		contextEnd := contextStart + len(word)

		startIdx := i - 3
		if startIdx < 0 {
			startIdx = 0
		}
		endIdx := i + 4
		if endIdx > len(words) {
			endIdx = len(words)
		}

		claims = append(claims, models.Claim{
			ID:                   uuid.NewString(),
			Text:                 strings.Join(words[startIdx:endIdx], " "),
			ClaimType:            models.ClaimTypeFactualData,
			VerificationPriority: "high",
			ExpectedEvidenceType: "numerical_data",
			SpecificityLevel:     "specific",
			ContextStart:         contextStart,
			ContextEnd:           contextEnd,
			Entities:             []string{word},
			Confidence:           0.7,
		})
	}

	lower := strings.ToLower(responseText)
	for _, keyword := range []string{"months", "weeks", "days", "duration"} {
		if !strings.Contains(lower, keyword) {
			continue
		}
		for _, sentence := range strings.Split(responseText, ".") {
			if !strings.Contains(strings.ToLower(sentence), keyword) {
				continue
			}
			trimmed := strings.TrimSpace(sentence)
			start := strings.Index(responseText, sentence)
			claims = append(claims, models.Claim{
				ID:                   uuid.NewString(),
				Text:                 trimmed,
				ClaimType:            models.ClaimTypeFactualData,
				VerificationPriority: "medium",
				ExpectedEvidenceType: "numerical_data",
				SpecificityLevel:     "general",
				ContextStart:         start,
				ContextEnd:           start + len(sentence),
				Entities:             []string{keyword},
				Confidence:           0.6,
			})
			break
		}
	}

	if len(claims) > 5 {
		claims = claims[:5]
	}
	return claims
}

// ValidateClaims filters out short, low-confidence, and near-duplicate
// claims. Running it twice on its own output is a no-op.
func ValidateClaims(claims []models.Claim) []models.Claim {
	validated := make([]models.Claim, 0, len(claims))

	for _, claim := range claims {
		if len(claim.Text) < 10 {
			continue
		}
		if claim.Confidence < 0.3 {
			continue
		}
		duplicate := false
		for _, existing := range validated {
			if claimsSimilar(claim, existing) {
				duplicate = true
				break
			}
		}
		if duplicate {
			continue
		}
		validated = append(validated, claim)
	}

	log.Info().Int("validated", len(validated)).Int("total", len(claims)).Msg("Validated claims")
	return validated
}

// claimsSimilar reports whether two claims overlap enough to count as
// duplicates: word overlap over the smaller word set above 0.7.
func claimsSimilar(a, b models.Claim) bool {
	wordsA := wordSet(a.Text)
	wordsB := wordSet(b.Text)
	if len(wordsA) == 0 || len(wordsB) == 0 {
		return false
	}

	overlap := 0
	for w := range wordsA {
		if wordsB[w] {
			overlap++
		}
	}

	smaller := len(wordsA)
	if len(wordsB) < smaller {
		smaller = len(wordsB)
	}
	return float64(overlap)/float64(smaller) > 0.7
}

func wordSet(text string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		set[w] = true
	}
	return set
}
