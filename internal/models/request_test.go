package models

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validRequest() SupportVerificationRequest {
	req := SupportVerificationRequest{
		SupportResponse: "The Data Science course costs ₹99,000 and runs for 6 months.",
	}
	req.ApplyDefaults()
	return req
}

func TestApplyDefaults(t *testing.T) {
	req := SupportVerificationRequest{SupportResponse: "some response text here"}
	req.ApplyDefaults()

	assert.Equal(t, LevelStandard, req.VerificationLevel)
	assert.Equal(t, FormatStandard, req.ResponseFormat)
	assert.Equal(t, UrgencyNormal, req.UrgencyLevel)
	require.NotNil(t, req.IncludeSuggestions)
	assert.True(t, *req.IncludeSuggestions)
	require.NotNil(t, req.MinAccuracyScore)
	assert.Equal(t, 0.8, *req.MinAccuracyScore)
}

func TestValidateAcceptsWellFormedRequest(t *testing.T) {
	req := validRequest()
	assert.NoError(t, req.Validate())
}

func TestValidateResponseLength(t *testing.T) {
	req := validRequest()
	req.SupportResponse = "too short"
	assert.Error(t, req.Validate())

	req = validRequest()
	req.SupportResponse = strings.Repeat("x", 10001)
	assert.Error(t, req.Validate())
}

func TestValidateMinimumWordCount(t *testing.T) {
	req := validRequest()
	req.SupportResponse = "onewordonly1234"
	assert.Error(t, req.Validate())
}

func TestValidateCustomerQueryLength(t *testing.T) {
	req := validRequest()
	req.CustomerQuery = strings.Repeat("q", 5001)
	assert.Error(t, req.Validate())
}

func TestValidateStrictLevelScoreFloor(t *testing.T) {
	req := validRequest()
	req.VerificationLevel = LevelStrict
	score := 0.8
	req.MinAccuracyScore = &score
	assert.Error(t, req.Validate())

	score = 0.85
	assert.NoError(t, req.Validate())
}

func TestValidateComprehensiveLevelScoreFloor(t *testing.T) {
	req := validRequest()
	req.VerificationLevel = LevelComprehensive
	score := 0.85
	req.MinAccuracyScore = &score
	assert.Error(t, req.Validate())

	score = 0.9
	assert.NoError(t, req.Validate())
}

func TestValidateSubjectAreas(t *testing.T) {
	req := validRequest()
	req.SubjectAreas = []string{"fees", " FEES ", "data_science"}
	require.NoError(t, req.Validate())
	assert.Equal(t, []string{"fees", "data_science"}, req.SubjectAreas)

	req = validRequest()
	req.SubjectAreas = []string{"astrology"}
	assert.Error(t, req.Validate())
}

func TestMaxEvidencePerClaim(t *testing.T) {
	assert.Equal(t, 3, LevelStandard.MaxEvidencePerClaim())
	assert.Equal(t, 5, LevelStrict.MaxEvidencePerClaim())
	assert.Equal(t, 7, LevelComprehensive.MaxEvidencePerClaim())
}
