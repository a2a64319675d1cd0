package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/supportquality/sentinel/internal/config"
	"github.com/supportquality/sentinel/internal/llm"
	"github.com/supportquality/sentinel/internal/models"
)

// fakeProvider dispatches canned responses keyed by a prompt substring, so a
// single provider can serve every pipeline stage.
type fakeProvider struct {
	responses map[string]string // prompt substring -> response
	fallback  string
	err       error
}

func (f *fakeProvider) respond(prompt string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	for marker, response := range f.responses {
		if strings.Contains(prompt, marker) {
			return response, nil
		}
	}
	return f.fallback, nil
}

func (f *fakeProvider) Complete(ctx context.Context, prompt string, opts llm.CompletionOptions) (string, error) {
	return f.respond(prompt)
}

func (f *fakeProvider) CompleteWithSystem(ctx context.Context, system, user string, opts llm.CompletionOptions) (string, error) {
	return f.respond(user)
}

func (f *fakeProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, errors.New("embeddings not supported")
}

func (f *fakeProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, errors.New("embeddings not supported")
}

func (f *fakeProvider) Name() string             { return "fake" }
func (f *fakeProvider) SupportsEmbeddings() bool { return false }

type fakeRetriever struct {
	evidence map[string][]models.Evidence
	calls    int
}

func (f *fakeRetriever) RetrieveEvidence(ctx context.Context, claims []models.Claim, maxPerClaim int) map[string][]models.Evidence {
	f.calls++
	out := make(map[string][]models.Evidence, len(claims))
	for _, c := range claims {
		out[c.Text] = f.evidence[c.Text]
	}
	return out
}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.LLM.Model = "test-model"
	return cfg
}

func testRequest() *models.SupportVerificationRequest {
	req := &models.SupportVerificationRequest{
		SupportResponse: "The Data Science course costs ₹99,000 and runs for 6 months.",
		CustomerQuery:   "How much does the Data Science course cost?",
		TicketID:        "TCK-1001",
	}
	req.ApplyDefaults()
	return req
}

func TestDetermineStatus(t *testing.T) {
	assert.Equal(t, models.StatusApproved, determineStatus(0.85, 0.8))
	assert.Equal(t, models.StatusApproved, determineStatus(0.8, 0.8))
	assert.Equal(t, models.StatusNeedsReview, determineStatus(0.75, 0.8))
	assert.Equal(t, models.StatusNeedsReview, determineStatus(0.7, 0.8))
	assert.Equal(t, models.StatusRejected, determineStatus(0.69, 0.8))
}

func TestFlattenEvidence(t *testing.T) {
	verifications := []models.ClaimVerification{
		{
			SupportingEvidence:    []models.Evidence{{Source: "a"}, {Source: "b"}},
			ContradictingEvidence: []models.Evidence{{Source: "c"}},
		},
		{
			SupportingEvidence: []models.Evidence{{Source: "d"}},
		},
	}

	supporting, conflicting := flattenEvidence(verifications)
	assert.Len(t, supporting, 3)
	assert.Len(t, conflicting, 1)

	supporting, conflicting = flattenEvidence(nil)
	assert.NotNil(t, supporting)
	assert.NotNil(t, conflicting)
}

func TestVerifyResponseAccurateClaim(t *testing.T) {
	claimText := "The Data Science course costs ₹99,000"
	provider := &fakeProvider{
		responses: map[string]string{
			"Extract all verifiable claims": `{"claims": [
				{"text": "` + claimText + `", "claim_type": "factual_data", "verification_priority": "high", "specificity_level": "specific", "entities": ["₹99,000"], "confidence": 0.95}
			]}`,
			"CLAIM TO VERIFY":           `{"status": "ACCURATE", "confidence": 0.95, "supporting_evidence": [1], "explanation": "Matches the fee schedule."}`,
			"compliance officer":        "[]",
			"communication standard":    "[]",
			"all necessary information": "[]",
			"strengths and weaknesses":  `{"strengths": ["Accurate fee"], "weaknesses": []}`,
		},
		fallback: "[]",
	}

	retriever := &fakeRetriever{evidence: map[string][]models.Evidence{
		claimText: {{Source: "fee_structure - Fees", Content: "The course costs ₹99,000.", RelevanceScore: 0.9, DocumentType: "fee_structure"}},
	}}

	pipe := New(provider, retriever, nil, testConfig())
	result := pipe.VerifyResponse(context.Background(), testRequest())

	require.Len(t, result.ClaimVerifications, 1)
	assert.Equal(t, models.ClaimAccurate, result.ClaimVerifications[0].Status)
	assert.Equal(t, 1.0, result.FactualAccuracy.OverallScore)
	assert.Equal(t, 1.0, result.GuidelineCompliance.OverallScore)
	// 0.6 factual + 0.4 compliance, both perfect.
	assert.Equal(t, 1.0, result.OverallScore)
	assert.Equal(t, models.StatusApproved, result.VerificationStatus)
	assert.Len(t, result.SupportingEvidence, 1)
	assert.NotEmpty(t, result.VerificationID)
	assert.Equal(t, "fake", result.ModelVersions["provider"])
}

func TestVerifyResponseInaccurateClaimRejected(t *testing.T) {
	claimText := "The Data Science course costs ₹79,000"
	provider := &fakeProvider{
		responses: map[string]string{
			"Extract all verifiable claims": `{"claims": [
				{"text": "` + claimText + `", "claim_type": "factual_data", "verification_priority": "high", "specificity_level": "specific", "entities": ["₹79,000"], "confidence": 0.95}
			]}`,
			"CLAIM TO VERIFY":          `{"status": "INACCURATE", "confidence": 0.9, "contradicting_evidence": [1], "explanation": "The fee schedule lists ₹99,000.", "corrections": "The course costs ₹99,000."}`,
			"compliance officer":       `[{"rule_type": "policy_accuracy", "severity": "critical", "description": "Wrong fee quoted", "confidence": 1.0}]`,
			"strengths and weaknesses": `{"strengths": [], "weaknesses": ["Quoted the wrong fee"]}`,
		},
		fallback: "[]",
	}

	retriever := &fakeRetriever{evidence: map[string][]models.Evidence{
		claimText: {{Source: "fee_structure - Fees", Content: "The course costs ₹99,000.", RelevanceScore: 0.9, DocumentType: "fee_structure"}},
	}}

	req := testRequest()
	req.SupportResponse = "The Data Science course costs ₹79,000 and runs for 6 months."

	pipe := New(provider, retriever, nil, testConfig())
	result := pipe.VerifyResponse(context.Background(), req)

	require.Len(t, result.ClaimVerifications, 1)
	assert.Equal(t, models.ClaimInaccurate, result.ClaimVerifications[0].Status)
	assert.Equal(t, 0.0, result.FactualAccuracy.OverallScore)
	// 0.6*0 + 0.4*0.6 = 0.24, far below the 0.8 threshold.
	assert.InDelta(t, 0.24, result.OverallScore, 1e-9)
	assert.Equal(t, models.StatusRejected, result.VerificationStatus)
	assert.Len(t, result.ConflictingEvidence, 1)
}

func TestVerifyResponseFallbackRetriever(t *testing.T) {
	claimText := "The Data Science course costs ₹99,000"
	provider := &fakeProvider{
		responses: map[string]string{
			"Extract all verifiable claims": `{"claims": [
				{"text": "` + claimText + `", "claim_type": "factual_data", "confidence": 0.9}
			]}`,
			"CLAIM TO VERIFY":          `{"status": "ACCURATE", "confidence": 0.9, "supporting_evidence": [1], "explanation": "ok"}`,
			"strengths and weaknesses": `{"strengths": [], "weaknesses": []}`,
		},
		fallback: "[]",
	}

	primary := &fakeRetriever{} // returns nothing
	fallback := &fakeRetriever{evidence: map[string][]models.Evidence{
		claimText: {{Source: "fee_structure", Content: "The course costs ₹99,000.", RelevanceScore: 0.8, DocumentType: "fee_structure"}},
	}}

	pipe := New(provider, primary, fallback, testConfig())
	result := pipe.VerifyResponse(context.Background(), testRequest())

	assert.Greater(t, fallback.calls, 0)
	require.Len(t, result.ClaimVerifications, 1)
	assert.Equal(t, models.ClaimAccurate, result.ClaimVerifications[0].Status)
}

func TestVerifyResponseSkipsFeedbackWhenDisabled(t *testing.T) {
	provider := &fakeProvider{err: errors.New("model unavailable")}
	pipe := New(provider, &fakeRetriever{}, nil, testConfig())

	req := testRequest()
	noSuggestions := false
	req.IncludeSuggestions = &noSuggestions

	result := pipe.VerifyResponse(context.Background(), req)
	assert.Empty(t, result.FeedbackSummary)
	assert.Empty(t, result.SuggestedResponse)
}
