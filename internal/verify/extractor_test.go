package verify

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/supportquality/sentinel/internal/models"
)

func TestExtractClaimsParsesAndDefaults(t *testing.T) {
	provider := &fakeProvider{
		response: `{"claims": [
			{"text": "The course costs ₹99,000", "claim_type": "factual_data", "verification_priority": "high", "entities": ["₹99,000"], "confidence": 0.95},
			{"text": "ok", "claim_type": "factual_data"},
			{"text": "Refunds are processed in 7 days", "claim_type": "made_up_type"}
		]}`,
	}
	extractor := NewClaimExtractor(provider, testLLMConfig())

	claims := extractor.ExtractClaims(context.Background(), "The course costs ₹99,000. Refunds are processed in 7 days.", "")
	require.Len(t, claims, 2)

	assert.Equal(t, "The course costs ₹99,000", claims[0].Text)
	assert.Equal(t, "high", claims[0].VerificationPriority)
	assert.Equal(t, 0.95, claims[0].Confidence)
	assert.NotEmpty(t, claims[0].ID)

	// Unknown claim type falls back to factual data; omitted fields default.
	assert.Equal(t, models.ClaimTypeFactualData, claims[1].ClaimType)
	assert.Equal(t, "medium", claims[1].VerificationPriority)
	assert.Equal(t, "general", claims[1].SpecificityLevel)
	assert.Equal(t, 0.8, claims[1].Confidence)
}

func TestExtractClaimsClampsConfidence(t *testing.T) {
	provider := &fakeProvider{
		response: `{"claims": [
			{"text": "The course costs ₹99,000", "claim_type": "factual_data", "confidence": 1.4},
			{"text": "Refunds are processed in 7 days", "claim_type": "policy_statement", "confidence": -0.5}
		]}`,
	}
	extractor := NewClaimExtractor(provider, testLLMConfig())

	claims := extractor.ExtractClaims(context.Background(), "The course costs ₹99,000. Refunds are processed in 7 days.", "")
	require.Len(t, claims, 2)
	assert.Equal(t, 1.0, claims[0].Confidence)
	assert.Equal(t, 0.0, claims[1].Confidence)
}

func TestExtractClaimsFallbackOnProviderError(t *testing.T) {
	provider := &fakeProvider{err: errors.New("model unavailable")}
	extractor := NewClaimExtractor(provider, testLLMConfig())

	text := "The Data Science course costs ₹99,000 in total. The program duration is 6 months including the capstone."
	claims := extractor.ExtractClaims(context.Background(), text, "")
	require.NotEmpty(t, claims)

	var sawAmount, sawDuration bool
	for _, c := range claims {
		if c.VerificationPriority == "high" && c.SpecificityLevel == "specific" {
			sawAmount = true
		}
		if c.VerificationPriority == "medium" {
			sawDuration = true
		}
	}
	assert.True(t, sawAmount, "expected a currency claim")
	assert.True(t, sawDuration, "expected a duration claim")
	assert.LessOrEqual(t, len(claims), 5)
}

func TestValidateClaimsFilters(t *testing.T) {
	claims := []models.Claim{
		{Text: "The course costs ₹99,000 total", Confidence: 0.9},
		{Text: "short", Confidence: 0.9},
		{Text: "A valid claim text here", Confidence: 0.1},
		{Text: "The course costs ₹99,000 total today", Confidence: 0.8}, // near-duplicate
		{Text: "Placement rate is 94% for graduates", Confidence: 0.85},
	}

	validated := ValidateClaims(claims)
	require.Len(t, validated, 2)
	assert.Equal(t, "The course costs ₹99,000 total", validated[0].Text)
	assert.Equal(t, "Placement rate is 94% for graduates", validated[1].Text)
}

func TestValidateClaimsIdempotent(t *testing.T) {
	claims := []models.Claim{
		{Text: "The course costs ₹99,000 total", Confidence: 0.9},
		{Text: "Placement rate is 94% for graduates", Confidence: 0.85},
	}

	once := ValidateClaims(claims)
	twice := ValidateClaims(once)
	assert.Equal(t, once, twice)
}
