// Package compliance checks support responses against company guidelines
// retrieved from the knowledge base.
package compliance

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/supportquality/sentinel/internal/config"
	"github.com/supportquality/sentinel/internal/llm"
	"github.com/supportquality/sentinel/internal/models"
	"github.com/supportquality/sentinel/internal/retrieval"
)

// severityWeights penalize violations by severity when scoring.
var severityWeights = map[string]float64{
	"critical": 0.4,
	"major":    0.2,
	"minor":    0.1,
}

// Checker verifies support responses against retrieved guidelines.
type Checker struct {
	provider  llm.Provider
	retriever retrieval.EvidenceRetriever
	llmCfg    *config.LLMConfig
}

// NewChecker creates a compliance checker.
func NewChecker(provider llm.Provider, retriever retrieval.EvidenceRetriever, llmCfg *config.LLMConfig) *Checker {
	return &Checker{provider: provider, retriever: retriever, llmCfg: llmCfg}
}

// CheckCompliance runs policy, communication, and completeness checks
// against retrieved guidelines. A hard failure degrades to a neutral score
// rather than propagating an error.
func (c *Checker) CheckCompliance(ctx context.Context, supportResponse, customerQuery string, claims []models.Claim) models.ComplianceResult {
	start := time.Now()
	log.Info().Int("chars", len(supportResponse)).Msg("Starting compliance check")

	// A dead context means every check below would silently fail and the
	// response would score a spurious 1.0. Degrade to neutral instead.
	if err := ctx.Err(); err != nil {
		log.Warn().Err(err).Msg("Compliance check skipped")
		return FallbackResult(time.Since(start))
	}

	guidelines := c.retrieveGuidelines(ctx, supportResponse, customerQuery, claims)

	policyViolations := c.checkPolicyCompliance(ctx, supportResponse, claims, guidelines)
	communicationViolations := c.checkCommunicationStandards(ctx, supportResponse, customerQuery)
	completenessViolations := c.checkInformationCompleteness(ctx, supportResponse, customerQuery)

	violations := append(append(policyViolations, communicationViolations...), completenessViolations...)

	result := models.ComplianceResult{
		OverallScore:      calculateScore(violations),
		Violations:        violations,
		Recommendations:   buildRecommendations(violations),
		CompliantAspects:  identifyCompliantAspects(supportResponse),
		GuidelinesChecked: len(guidelines),
		ProcessingTimeMs:  time.Since(start).Milliseconds(),
	}

	log.Info().
		Float64("score", result.OverallScore).
		Int("violations", len(violations)).
		Msg("Compliance check completed")
	return result
}

// retrieveGuidelines collects relevant guideline excerpts via the retrieval
// engine, deduplicated by content prefix and capped at 10.
func (c *Checker) retrieveGuidelines(ctx context.Context, supportResponse, customerQuery string, claims []models.Claim) []models.Evidence {
	responseSnippet := supportResponse
	if len(responseSnippet) > 200 {
		responseSnippet = responseSnippet[:200]
	}

	queries := []string{
		"policies and guidelines for: " + customerQuery,
		"compliance rules for: " + responseSnippet,
		"customer service standards and communication guidelines",
		"escalation procedures and follow-up requirements",
	}
	for i, claim := range claims {
		if i >= 3 {
			break
		}
		queries = append(queries, "policy guidelines for: "+claim.Text)
	}

	searchClaims := make([]models.Claim, len(queries))
	for i, q := range queries {
		searchClaims[i] = models.Claim{
			Text:       q,
			ClaimType:  models.ClaimTypePolicyStatement,
			Confidence: 1.0,
		}
	}

	results := c.retriever.RetrieveEvidence(ctx, searchClaims, 5)

	var guidelines []models.Evidence
	seen := make(map[uint64]bool)
	for _, query := range queries {
		for _, g := range results[query] {
			prefix := g.Content
			if len(prefix) > 100 {
				prefix = prefix[:100]
			}
			h := fnv.New64a()
			h.Write([]byte(prefix))
			key := h.Sum64()
			if seen[key] {
				continue
			}
			seen[key] = true
			guidelines = append(guidelines, g)
		}
	}

	if len(guidelines) > 10 {
		guidelines = guidelines[:10]
	}
	log.Info().Int("guidelines", len(guidelines)).Msg("Retrieved unique guidelines")
	return guidelines
}

func (c *Checker) checkPolicyCompliance(ctx context.Context, supportResponse string, claims []models.Claim, guidelines []models.Evidence) []models.ComplianceViolation {
	if len(guidelines) == 0 {
		return nil
	}

	var guidelineContext strings.Builder
	for i, g := range guidelines {
		if i >= 5 {
			break
		}
		content := g.Content
		if len(content) > 300 {
			content = content[:300]
		}
		fmt.Fprintf(&guidelineContext, "Guideline: %s\n", content)
	}

	claimTexts := make([]string, len(claims))
	for i, claim := range claims {
		claimTexts[i] = claim.Text
	}

	prompt := fmt.Sprintf(`You are a compliance officer checking if a support response follows company guidelines.

SUPPORT RESPONSE:
%s

COMPANY GUIDELINES:
%s

EXTRACTED CLAIMS:
%s

Check for policy violations and return a JSON array of violations:
[
    {
        "rule_type": "policy_accuracy|communication_tone|information_completeness",
        "severity": "critical|major|minor",
        "description": "Clear description of the violation",
        "violated_text": "Specific text that violates the rule",
        "guideline_reference": "Which guideline was violated",
        "suggested_correction": "How to fix this violation",
        "confidence": 0.0-1.0
    }
]

Focus on:
1. Factual accuracy of policies mentioned
2. Missing required information
3. Incorrect procedures or timelines
4. Contradictions with guidelines

Return empty array [] if no violations found.`,
		supportResponse, guidelineContext.String(), strings.Join(claimTexts, "; "))

	return c.runViolationCheck(ctx, prompt, 1500, "policy_accuracy")
}

func (c *Checker) checkCommunicationStandards(ctx context.Context, supportResponse, customerQuery string) []models.ComplianceViolation {
	prompt := fmt.Sprintf(`Check this support response for communication standard violations:

CUSTOMER QUERY: %s
SUPPORT RESPONSE: %s

Check for these communication issues and return JSON array:
[
    {
        "rule_type": "communication_tone",
        "severity": "critical|major|minor",
        "description": "Description of communication issue",
        "violated_text": "Problematic text",
        "guideline_reference": "Professional communication standards",
        "suggested_correction": "Better way to communicate",
        "confidence": 0.0-1.0
    }
]

Look for:
1. Unprofessional tone or language
2. Lack of empathy or acknowledgment
3. Too formal or too casual tone
4. Missing courtesy elements (greetings, thanks)
5. Unclear or confusing language

Return [] if communication is appropriate.`, customerQuery, supportResponse)

	return c.runViolationCheck(ctx, prompt, 1000, "communication_tone")
}

func (c *Checker) checkInformationCompleteness(ctx context.Context, supportResponse, customerQuery string) []models.ComplianceViolation {
	prompt := fmt.Sprintf(`Check if this support response includes all necessary information:

CUSTOMER QUERY: %s
SUPPORT RESPONSE: %s

Based on the customer's question, identify missing critical information:

Return JSON array of missing information violations:
[
    {
        "rule_type": "information_completeness",
        "severity": "major|minor",
        "description": "What information is missing",
        "violated_text": "N/A",
        "guideline_reference": "Complete information requirement",
        "suggested_correction": "What should be added",
        "confidence": 0.0-1.0
    }
]

Common missing elements:
1. Specific timelines or deadlines
2. Contact information for follow-up
3. Next steps or action items
4. Alternative solutions
5. Reference numbers or documentation

Return [] if response is complete.`, customerQuery, supportResponse)

	return c.runViolationCheck(ctx, prompt, 1000, "information_completeness")
}

type rawViolation struct {
	RuleType            string   `json:"rule_type"`
	Severity            string   `json:"severity"`
	Description         string   `json:"description"`
	ViolatedText        string   `json:"violated_text"`
	GuidelineReference  string   `json:"guideline_reference"`
	SuggestedCorrection string   `json:"suggested_correction"`
	Confidence          *float64 `json:"confidence"`
}

// runViolationCheck executes one violation-detection prompt. Model errors
// and unparseable output yield no violations.
func (c *Checker) runViolationCheck(ctx context.Context, prompt string, maxTokens int, defaultRuleType string) []models.ComplianceViolation {
	opts := llm.CompletionOptions{
		Model:       c.llmCfg.StageModel(c.llmCfg.ComplianceCheck),
		Temperature: 0.1,
		MaxTokens:   maxTokens,
	}

	response, err := c.provider.Complete(ctx, prompt, opts)
	if err != nil {
		log.Error().Err(err).Str("check", defaultRuleType).Msg("Compliance check failed")
		return nil
	}

	var parsed []rawViolation
	if err := llm.DecodeArray(response, &parsed); err != nil {
		log.Error().Err(err).Str("check", defaultRuleType).Msg("Failed to parse violations JSON")
		return nil
	}

	violations := make([]models.ComplianceViolation, 0, len(parsed))
	for _, raw := range parsed {
		ruleType := raw.RuleType
		if ruleType == "" {
			ruleType = defaultRuleType
		}
		severity := raw.Severity
		if severity == "" {
			severity = "minor"
		}
		confidence := 0.5
		if raw.Confidence != nil {
			confidence = *raw.Confidence
		}
		violations = append(violations, models.ComplianceViolation{
			RuleType:            ruleType,
			Severity:            severity,
			Description:         raw.Description,
			ViolatedText:        raw.ViolatedText,
			GuidelineReference:  raw.GuidelineReference,
			SuggestedCorrection: raw.SuggestedCorrection,
			Confidence:          confidence,
		})
	}
	return violations
}

// buildRecommendations derives rule-based improvement recommendations from
// the violation groups.
func buildRecommendations(violations []models.ComplianceViolation) []models.ComplianceRecommendation {
	if len(violations) == 0 {
		return []models.ComplianceRecommendation{{
			Category:       "general",
			Description:    "Response meets compliance standards",
			Priority:       "low",
			Implementation: "Continue following current practices",
		}}
	}

	seen := make(map[string]bool)
	var recommendations []models.ComplianceRecommendation
	for _, v := range violations {
		if seen[v.RuleType] {
			continue
		}
		seen[v.RuleType] = true

		switch v.RuleType {
		case "policy_accuracy":
			recommendations = append(recommendations, models.ComplianceRecommendation{
				Category:       "policy_accuracy",
				Description:    "Review and verify policy information before responding",
				Priority:       "high",
				Implementation: "Cross-reference with latest policy documents",
			})
		case "communication_tone":
			recommendations = append(recommendations, models.ComplianceRecommendation{
				Category:       "communication",
				Description:    "Improve communication tone and professionalism",
				Priority:       "medium",
				Implementation: "Use more empathetic language and acknowledge customer concerns",
			})
		case "information_completeness":
			recommendations = append(recommendations, models.ComplianceRecommendation{
				Category:       "completeness",
				Description:    "Include all necessary information in responses",
				Priority:       "medium",
				Implementation: "Use response checklists to ensure completeness",
			})
		}
	}
	return recommendations
}

// identifyCompliantAspects lists what the response already does well.
func identifyCompliantAspects(supportResponse string) []string {
	var aspects []string
	lower := strings.ToLower(supportResponse)

	if len(strings.Fields(supportResponse)) >= 10 {
		aspects = append(aspects, "Adequate response length")
	}
	if strings.Contains(lower, "thank") || strings.Contains(lower, "please") || strings.Contains(lower, "help") {
		aspects = append(aspects, "Polite and courteous tone")
	}
	if strings.Contains(lower, "understand") || strings.Contains(lower, "sorry") || strings.Contains(lower, "apologize") {
		aspects = append(aspects, "Shows empathy and understanding")
	}
	if strings.Contains(supportResponse, "?") {
		aspects = append(aspects, "Asks clarifying questions")
	}
	return aspects
}

// calculateScore penalizes violations by severity and confidence; a clean
// response scores 1.0.
func calculateScore(violations []models.ComplianceViolation) float64 {
	if len(violations) == 0 {
		return 1.0
	}

	penalty := 0.0
	for _, v := range violations {
		weight, ok := severityWeights[v.Severity]
		if !ok {
			weight = 0.1
		}
		penalty += weight * v.Confidence
	}

	score := 1.0 - penalty
	if score < 0 {
		score = 0
	}
	return models.Round3(score)
}

// FallbackResult is the neutral result used when compliance checking cannot
// run at all.
func FallbackResult(elapsed time.Duration) models.ComplianceResult {
	return models.ComplianceResult{
		OverallScore:     0.5,
		Violations:       []models.ComplianceViolation{},
		Recommendations:  []models.ComplianceRecommendation{},
		CompliantAspects: []string{},
		ProcessingTimeMs: elapsed.Milliseconds(),
	}
}
