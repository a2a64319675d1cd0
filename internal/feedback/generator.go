// Package feedback synthesizes coaching feedback for support responses from
// verification and compliance results.
package feedback

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/supportquality/sentinel/internal/config"
	"github.com/supportquality/sentinel/internal/llm"
	"github.com/supportquality/sentinel/internal/models"
)

// Generator produces actionable feedback and an optional rewritten response.
type Generator struct {
	provider llm.Provider
	llmCfg   *config.LLMConfig
}

// NewGenerator creates a feedback generator.
func NewGenerator(provider llm.Provider, llmCfg *config.LLMConfig) *Generator {
	return &Generator{provider: provider, llmCfg: llmCfg}
}

// GenerateFeedback runs the full feedback flow: quality analysis,
// improvement suggestions, optional response rewrite, training
// recommendations, and a summary. A hard failure degrades to a minimal
// result rather than propagating an error.
func (g *Generator) GenerateFeedback(
	ctx context.Context,
	supportResponse, customerQuery string,
	verifications []models.ClaimVerification,
	complianceResult models.ComplianceResult,
) models.FeedbackResult {
	start := time.Now()
	log.Info().Int("chars", len(supportResponse)).Msg("Generating feedback")

	strengths, weaknesses, ok := g.analyzeQuality(ctx, supportResponse, customerQuery, verifications, complianceResult)
	if !ok {
		return models.FeedbackResult{
			OverallFeedback:         "Unable to generate detailed feedback due to processing error.",
			ImprovementSuggestions:  []models.ImprovementSuggestion{},
			Strengths:               []string{},
			AreasForImprovement:     []string{},
			TrainingRecommendations: []string{},
			ProcessingTimeMs:        time.Since(start).Milliseconds(),
		}
	}

	suggestions := g.improvementSuggestions(ctx, supportResponse, customerQuery, weaknesses, complianceResult.Violations)
	responseSuggestion := g.responseSuggestion(ctx, supportResponse, customerQuery, suggestions)
	training := trainingRecommendations(weaknesses, complianceResult.Violations)
	summary := overallFeedback(strengths, weaknesses, suggestions)

	result := models.FeedbackResult{
		OverallFeedback:         summary,
		ImprovementSuggestions:  suggestions,
		ResponseSuggestion:      responseSuggestion,
		Strengths:               strengths,
		AreasForImprovement:     weaknesses,
		TrainingRecommendations: training,
		ProcessingTimeMs:        time.Since(start).Milliseconds(),
	}

	log.Info().Int64("elapsed_ms", result.ProcessingTimeMs).Msg("Feedback generation completed")
	return result
}

func (g *Generator) analyzeQuality(
	ctx context.Context,
	supportResponse, customerQuery string,
	verifications []models.ClaimVerification,
	complianceResult models.ComplianceResult,
) (strengths, weaknesses []string, ok bool) {
	var verificationContext strings.Builder
	for i, cv := range verifications {
		if i >= 3 {
			break
		}
		fmt.Fprintf(&verificationContext, "Claim: %s - Status: %s - Confidence: %.2f\n", cv.ClaimText, cv.Status, cv.Confidence)
	}

	var complianceContext strings.Builder
	for i, v := range complianceResult.Violations {
		if i >= 3 {
			break
		}
		fmt.Fprintf(&complianceContext, "Violation: %s - Severity: %s\n", v.Description, v.Severity)
	}

	prompt := fmt.Sprintf(`Analyze this customer support interaction for strengths and weaknesses:

CUSTOMER QUERY: %s
SUPPORT RESPONSE: %s

FACT VERIFICATION RESULTS:
%s

COMPLIANCE ISSUES:
%s

Return a JSON object with strengths and weaknesses:
{
    "strengths": [
        "Specific strength 1",
        "Specific strength 2"
    ],
    "weaknesses": [
        "Specific weakness 1",
        "Specific weakness 2"
    ]
}

Analyze these aspects:
1. Factual accuracy and policy compliance
2. Communication tone and professionalism
3. Information completeness and clarity
4. Customer empathy and understanding
5. Problem resolution effectiveness
6. Response structure and organization`,
		customerQuery, supportResponse, verificationContext.String(), complianceContext.String())

	opts := llm.CompletionOptions{
		Model:       g.llmCfg.StageModel(g.llmCfg.FeedbackGeneration),
		Temperature: 0.3,
		MaxTokens:   1000,
	}

	response, err := g.provider.Complete(ctx, prompt, opts)
	if err != nil {
		log.Error().Err(err).Msg("Response quality analysis failed")
		return nil, nil, false
	}

	var parsed struct {
		Strengths  []string `json:"strengths"`
		Weaknesses []string `json:"weaknesses"`
	}
	if err := llm.DecodeObject(response, &parsed); err != nil {
		log.Error().Err(err).Msg("Quality analysis returned invalid JSON")
		return []string{}, []string{"Unable to analyze response quality"}, true
	}

	log.Info().
		Int("strengths", len(parsed.Strengths)).
		Int("weaknesses", len(parsed.Weaknesses)).
		Msg("Analyzed response quality")
	return parsed.Strengths, parsed.Weaknesses, true
}

type rawSuggestion struct {
	Category             string `json:"category"`
	Priority             string `json:"priority"`
	Description          string `json:"description"`
	SpecificAction       string `json:"specific_action"`
	ExpectedImpact       string `json:"expected_impact"`
	ImplementationEffort string `json:"implementation_effort"`
}

func (g *Generator) improvementSuggestions(
	ctx context.Context,
	supportResponse, customerQuery string,
	weaknesses []string,
	violations []models.ComplianceViolation,
) []models.ImprovementSuggestion {
	var suggestions []models.ImprovementSuggestion

	if len(weaknesses) > 0 {
		prompt := fmt.Sprintf(`Generate specific improvement suggestions for this support response:

CUSTOMER QUERY: %s
SUPPORT RESPONSE: %s

IDENTIFIED WEAKNESSES:
%s

Return JSON array of improvement suggestions:
[
    {
        "category": "accuracy|communication|completeness|empathy|efficiency|personalization",
        "priority": "high|medium|low",
        "description": "Clear description of what to improve",
        "specific_action": "Specific action to take",
        "expected_impact": "What improvement this will bring",
        "implementation_effort": "low|medium|high"
    }
]

Focus on actionable, specific suggestions that can be immediately implemented.`,
			customerQuery, supportResponse, strings.Join(weaknesses, "\n"))

		opts := llm.CompletionOptions{
			Model:       g.llmCfg.StageModel(g.llmCfg.FeedbackGeneration),
			Temperature: 0.3,
			MaxTokens:   1500,
		}

		response, err := g.provider.Complete(ctx, prompt, opts)
		if err != nil {
			log.Error().Err(err).Msg("Improvement suggestions generation failed")
		} else {
			var parsed []rawSuggestion
			if err := llm.DecodeArray(response, &parsed); err != nil {
				log.Error().Err(err).Msg("Suggestions returned invalid JSON")
			} else {
				for _, raw := range parsed {
					category := raw.Category
					if category == "" {
						category = "general"
					}
					priority := raw.Priority
					if priority == "" {
						priority = "medium"
					}
					effort := raw.ImplementationEffort
					if effort == "" {
						effort = "medium"
					}
					suggestions = append(suggestions, models.ImprovementSuggestion{
						Category:             category,
						Priority:             priority,
						Description:          raw.Description,
						SpecificAction:       raw.SpecificAction,
						ExpectedImpact:       raw.ExpectedImpact,
						ImplementationEffort: effort,
					})
				}
			}
		}
	}

	for _, v := range violations {
		if v.Severity != "critical" && v.Severity != "major" {
			continue
		}
		priority := "medium"
		if v.Severity == "critical" {
			priority = "high"
		}
		suggestions = append(suggestions, models.ImprovementSuggestion{
			Category:             "compliance",
			Priority:             priority,
			Description:          fmt.Sprintf("Address %s violation", v.RuleType),
			SpecificAction:       v.SuggestedCorrection,
			ExpectedImpact:       "Improved policy compliance and accuracy",
			ImplementationEffort: "low",
		})
	}

	return suggestions
}

// responseSuggestion rewrites the response when there is something to fix.
// Returns nil when there are no suggestions or the rewrite fails.
func (g *Generator) responseSuggestion(
	ctx context.Context,
	supportResponse, customerQuery string,
	suggestions []models.ImprovementSuggestion,
) *models.ResponseSuggestion {
	if len(suggestions) == 0 {
		return nil
	}

	var improvementsContext strings.Builder
	for i, s := range suggestions {
		if i >= 5 {
			break
		}
		fmt.Fprintf(&improvementsContext, "- %s: %s\n", s.Description, s.SpecificAction)
	}

	prompt := fmt.Sprintf(`Rewrite this support response incorporating the suggested improvements:

ORIGINAL CUSTOMER QUERY: %s
ORIGINAL RESPONSE: %s

IMPROVEMENTS TO INCORPORATE:
%s

Return a JSON object with the improved response:
{
    "improved_response": "The rewritten response text",
    "key_improvements": ["Improvement 1", "Improvement 2"],
    "tone_adjustments": ["Tone change 1", "Tone change 2"],
    "added_information": ["Added info 1", "Added info 2"],
    "confidence": 0.0-1.0
}

Guidelines for the improved response:
1. Maintain the core message and intent
2. Improve tone, clarity, and professionalism
3. Add missing information identified in suggestions
4. Ensure policy accuracy and compliance
5. Make it more empathetic and customer-focused
6. Keep it concise but complete`,
		customerQuery, supportResponse, improvementsContext.String())

	opts := llm.CompletionOptions{
		Model:       g.llmCfg.StageModel(g.llmCfg.FeedbackGeneration),
		Temperature: 0.4,
		MaxTokens:   2000,
	}

	response, err := g.provider.Complete(ctx, prompt, opts)
	if err != nil {
		log.Error().Err(err).Msg("Response suggestion generation failed")
		return nil
	}

	var parsed struct {
		ImprovedResponse string   `json:"improved_response"`
		KeyImprovements  []string `json:"key_improvements"`
		ToneAdjustments  []string `json:"tone_adjustments"`
		AddedInformation []string `json:"added_information"`
		Confidence       *float64 `json:"confidence"`
	}
	if err := llm.DecodeObject(response, &parsed); err != nil {
		log.Error().Err(err).Msg("Response suggestion returned invalid JSON")
		return nil
	}

	confidence := 0.7
	if parsed.Confidence != nil {
		confidence = *parsed.Confidence
	}

	return &models.ResponseSuggestion{
		ImprovedResponse: parsed.ImprovedResponse,
		KeyImprovements:  parsed.KeyImprovements,
		ToneAdjustments:  parsed.ToneAdjustments,
		AddedInformation: parsed.AddedInformation,
		Confidence:       confidence,
	}
}

var weaknessPatterns = map[string][]string{
	"communication": {"tone", "professional", "empathy", "clarity"},
	"policy":        {"policy", "guideline", "compliance", "accuracy"},
	"completeness":  {"information", "detail", "complete", "missing"},
	"efficiency":    {"time", "speed", "quick", "efficient"},
}

var categoryTraining = map[string]string{
	"communication": "Customer communication and empathy training",
	"policy":        "Policy and compliance refresher training",
	"completeness":  "Information gathering and response completeness training",
	"efficiency":    "Efficiency and time management training",
}

var violationTraining = map[string]string{
	"policy_accuracy":          "Product knowledge and policy accuracy training",
	"communication_tone":       "Professional communication standards training",
	"information_completeness": "Response checklist and completeness training",
}

// trainingRecommendations derives training topics from weakness keywords and
// violation types.
func trainingRecommendations(weaknesses []string, violations []models.ComplianceViolation) []string {
	seen := make(map[string]bool)
	var recommendations []string
	add := func(rec string) {
		if rec != "" && !seen[rec] {
			seen[rec] = true
			recommendations = append(recommendations, rec)
		}
	}

	weaknessText := strings.ToLower(strings.Join(weaknesses, " "))
	for category, keywords := range weaknessPatterns {
		for _, keyword := range keywords {
			if strings.Contains(weaknessText, keyword) {
				add(categoryTraining[category])
				break
			}
		}
	}

	for _, v := range violations {
		add(violationTraining[v.RuleType])
	}

	sort.Strings(recommendations)
	return recommendations
}

func overallFeedback(strengths, weaknesses []string, suggestions []models.ImprovementSuggestion) string {
	if len(strengths) == 0 && len(weaknesses) == 0 {
		return "Response meets basic standards. Continue following current practices."
	}

	var parts []string
	if len(strengths) > 0 {
		parts = append(parts, "Strengths: "+strings.Join(capStrings(strengths, 3), ", "))
	}
	if len(weaknesses) > 0 {
		parts = append(parts, "Areas for improvement: "+strings.Join(capStrings(weaknesses, 3), ", "))
	}

	var highPriority []string
	for _, s := range suggestions {
		if s.Priority == "high" {
			highPriority = append(highPriority, s.Description)
		}
	}
	if len(highPriority) > 0 {
		parts = append(parts, "Priority actions: "+strings.Join(capStrings(highPriority, 2), ", "))
	}

	return strings.Join(parts, ". ") + "."
}

func capStrings(items []string, n int) []string {
	if len(items) > n {
		return items[:n]
	}
	return items
}
