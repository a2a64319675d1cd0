// Package models defines the core data structures used throughout the application.
package models

import (
	"math"
)

// ClaimType categorizes a claim by what kind of fact it asserts.
type ClaimType string

const (
	ClaimTypeFactualData     ClaimType = "factual_data"
	ClaimTypePolicyStatement ClaimType = "policy_statement"
	ClaimTypeProcedureStep   ClaimType = "procedure_step"
	ClaimTypeTimelineInfo    ClaimType = "timeline_info"
	ClaimTypeContactInfo     ClaimType = "contact_info"
)

// ValidClaimType reports whether t is a known claim type.
func ValidClaimType(t string) bool {
	switch ClaimType(t) {
	case ClaimTypeFactualData, ClaimTypePolicyStatement, ClaimTypeProcedureStep,
		ClaimTypeTimelineInfo, ClaimTypeContactInfo:
		return true
	}
	return false
}

// ClaimStatus represents the verification outcome for an individual claim.
type ClaimStatus string

const (
	ClaimAccurate             ClaimStatus = "ACCURATE"
	ClaimInaccurate           ClaimStatus = "INACCURATE"
	ClaimPartiallyAccurate    ClaimStatus = "PARTIALLY_ACCURATE"
	ClaimInsufficientEvidence ClaimStatus = "INSUFFICIENT_EVIDENCE"
)

// VerificationStatus is the overall outcome of a verification run.
type VerificationStatus string

const (
	StatusApproved    VerificationStatus = "APPROVED"
	StatusNeedsReview VerificationStatus = "NEEDS_REVIEW"
	StatusRejected    VerificationStatus = "REJECTED"
)

// Claim is an atomic, verifiable statement extracted from a support response.
type Claim struct {
	ID                   string    `json:"id"`
	Text                 string    `json:"text"`
	ClaimType            ClaimType `json:"claim_type"`
	VerificationPriority string    `json:"verification_priority"` // high, medium, low
	ExpectedEvidenceType string    `json:"expected_evidence_type"`
	SpecificityLevel     string    `json:"specificity_level"` // specific, general, vague
	ContextStart         int       `json:"context_start"`
	ContextEnd           int       `json:"context_end"`
	Entities             []string  `json:"entities"`
	Confidence           float64   `json:"confidence"`
}

// Evidence is a knowledge-base excerpt supporting or contradicting a claim.
type Evidence struct {
	Source         string  `json:"source"`
	Content        string  `json:"content"`
	RelevanceScore float64 `json:"relevance_score"`
	DocumentType   string  `json:"document_type"`
	LastUpdated    string  `json:"last_updated,omitempty"`
}

// ClaimVerification is the verification result for a single claim.
type ClaimVerification struct {
	ClaimText             string      `json:"claim_text"`
	Status                ClaimStatus `json:"status"`
	Confidence            float64     `json:"confidence"`
	SupportingEvidence    []Evidence  `json:"supporting_evidence"`
	ContradictingEvidence []Evidence  `json:"contradicting_evidence"`
	Explanation           string      `json:"explanation"`
	Corrections           string      `json:"corrections,omitempty"`
	SourceCitations       []string    `json:"source_citations"`
	VerificationTimestamp string      `json:"verification_timestamp"`
}

// FactualAccuracy aggregates claim verification outcomes.
type FactualAccuracy struct {
	OverallScore              float64 `json:"overall_score"`
	TotalClaims               int     `json:"total_claims"`
	AccurateClaims            int     `json:"accurate_claims"`
	InaccurateClaims          int     `json:"inaccurate_claims"`
	PartiallyAccurateClaims   int     `json:"partially_accurate_claims"`
	InsufficientEvidenceClaims int    `json:"insufficient_evidence_claims"`
	AverageConfidence         float64 `json:"average_confidence"`
}

// ComplianceViolation is a specific guideline breach found in a response.
type ComplianceViolation struct {
	RuleType            string  `json:"rule_type"`
	Severity            string  `json:"severity"` // critical, major, minor
	Description         string  `json:"description"`
	ViolatedText        string  `json:"violated_text"`
	GuidelineReference  string  `json:"guideline_reference"`
	SuggestedCorrection string  `json:"suggested_correction"`
	Confidence          float64 `json:"confidence"`
}

// ComplianceRecommendation is an improvement recommendation from compliance checking.
type ComplianceRecommendation struct {
	Category       string `json:"category"`
	Description    string `json:"description"`
	Priority       string `json:"priority"` // high, medium, low
	Implementation string `json:"implementation"`
}

// ComplianceResult is the complete output of a compliance check.
type ComplianceResult struct {
	OverallScore     float64                    `json:"overall_score"`
	Violations       []ComplianceViolation      `json:"violations"`
	Recommendations  []ComplianceRecommendation `json:"recommendations"`
	CompliantAspects []string                   `json:"compliant_aspects"`
	GuidelinesChecked int                       `json:"guidelines_checked"`
	ProcessingTimeMs int64                      `json:"processing_time_ms"`
}

// ImprovementSuggestion is a specific, actionable feedback item.
type ImprovementSuggestion struct {
	Category             string `json:"category"`
	Priority             string `json:"priority"`
	Description          string `json:"description"`
	SpecificAction       string `json:"specific_action"`
	ExpectedImpact       string `json:"expected_impact"`
	ImplementationEffort string `json:"implementation_effort"`
}

// ResponseSuggestion is a rewritten version of the support response.
type ResponseSuggestion struct {
	ImprovedResponse string   `json:"improved_response"`
	KeyImprovements  []string `json:"key_improvements"`
	ToneAdjustments  []string `json:"tone_adjustments"`
	AddedInformation []string `json:"added_information"`
	Confidence       float64  `json:"confidence"`
}

// FeedbackResult is the complete output of feedback generation.
type FeedbackResult struct {
	OverallFeedback         string                  `json:"overall_feedback"`
	ImprovementSuggestions  []ImprovementSuggestion `json:"improvement_suggestions"`
	ResponseSuggestion      *ResponseSuggestion     `json:"response_suggestion,omitempty"`
	Strengths               []string                `json:"strengths"`
	AreasForImprovement     []string                `json:"areas_for_improvement"`
	TrainingRecommendations []string                `json:"training_recommendations"`
	ProcessingTimeMs        int64                   `json:"processing_time_ms"`
}

// SupportVerificationResponse is the complete verification result for a response.
type SupportVerificationResponse struct {
	OverallScore           float64             `json:"overall_score"`
	VerificationStatus     VerificationStatus  `json:"verification_status"`
	ProcessingTimeMs       int64               `json:"processing_time_ms"`
	ClaimVerifications     []ClaimVerification `json:"claim_verifications"`
	GuidelineCompliance    ComplianceResult    `json:"guideline_compliance"`
	FactualAccuracy        FactualAccuracy     `json:"factual_accuracy"`
	FeedbackSummary        string              `json:"feedback_summary"`
	ImprovementSuggestions []string            `json:"improvement_suggestions"`
	SuggestedResponse      string              `json:"suggested_response,omitempty"`
	SupportingEvidence     []Evidence          `json:"supporting_evidence"`
	ConflictingEvidence    []Evidence          `json:"conflicting_evidence"`
	VerificationID         string              `json:"verification_id"`
	Timestamp              string              `json:"timestamp"`
	ModelVersions          map[string]string   `json:"model_versions"`
}

// ChunkMetadata describes a document chunk for routing and filtering.
type ChunkMetadata struct {
	ChunkID        string `json:"chunk_id"`
	DocumentID     string `json:"document_id"`
	DocumentType   string `json:"document_type"`
	SectionTitle   string `json:"section_title,omitempty"`
	ChunkIndex     int    `json:"chunk_index"`
	TotalChunks    int    `json:"total_chunks"`
	ContentDensity string `json:"content_density"`
	ContainsNumbers bool  `json:"contains_numbers"`
	ContainsDates  bool   `json:"contains_dates"`
	WordCount      int    `json:"word_count"`
	CharCount      int    `json:"char_count"`
	CreatedAt      string `json:"created_at"`
}

// DocumentChunk is a piece of a knowledge-base document with metadata.
type DocumentChunk struct {
	Content  string        `json:"content"`
	Metadata ChunkMetadata `json:"metadata"`
}

// EmbeddedChunk is a document chunk with its embedding vector.
type EmbeddedChunk struct {
	ChunkID              string        `json:"chunk_id"`
	Content              string        `json:"content"`
	Embedding            []float32     `json:"embedding"`
	EmbeddingModel       string        `json:"embedding_model"`
	PreprocessingApplied string        `json:"preprocessing_applied"`
	Metadata             ChunkMetadata `json:"metadata"`
}

// QueryAnalysis captures the retrieval-relevant characteristics of a claim.
type QueryAnalysis struct {
	Intent                   string   `json:"intent"`     // factual_lookup, guideline_check, compliance_verification, contextual_info
	Complexity               string   `json:"complexity"` // low, medium, high
	PrecisionRequired        string   `json:"precision_required"`
	Urgency                  string   `json:"urgency"`
	TemporalSensitivity      string   `json:"temporal_sensitivity"` // none, recent, specific_date
	EntityTypes              []string `json:"entity_types"`
	ExpectedAnswerType       string   `json:"expected_answer_type"`
	Scope                    string   `json:"scope"` // narrow, broad, comprehensive
	ContainsTemporalElements bool     `json:"contains_temporal_elements"`
}

// Clamp01 restricts v to the [0, 1] range.
func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Round3 rounds v to three decimal places.
func Round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
