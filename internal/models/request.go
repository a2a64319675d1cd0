package models

import (
	"fmt"
	"strings"
	"time"
)

// VerificationLevel controls how thorough a verification run is.
type VerificationLevel string

const (
	LevelStandard      VerificationLevel = "standard"
	LevelStrict        VerificationLevel = "strict"
	LevelComprehensive VerificationLevel = "comprehensive"
)

// ResponseFormat controls how much detail the response carries.
type ResponseFormat string

const (
	FormatQuick    ResponseFormat = "quick"
	FormatStandard ResponseFormat = "standard"
	FormatDetailed ResponseFormat = "detailed"
)

// UrgencyLevel marks how urgent the originating ticket is.
type UrgencyLevel string

const (
	UrgencyLow      UrgencyLevel = "low"
	UrgencyNormal   UrgencyLevel = "normal"
	UrgencyHigh     UrgencyLevel = "high"
	UrgencyCritical UrgencyLevel = "critical"
)

// validSubjectAreas is the fixed vocabulary accepted in subject_areas.
var validSubjectAreas = map[string]bool{
	"data_science":         true,
	"web_development":      true,
	"placement_assistance": true,
	"fees":                 true,
	"assessment":           true,
	"certification":        true,
	"instructors":          true,
	"support_guidelines":   true,
	"course_catalog":       true,
	"general":              true,
}

// SupportVerificationRequest is the request body for response verification.
type SupportVerificationRequest struct {
	SupportResponse       string            `json:"support_response"`
	CustomerQuery         string            `json:"customer_query,omitempty"`
	AgentID               string            `json:"agent_id,omitempty"`
	TicketID              string            `json:"ticket_id,omitempty"`
	CustomerSegment       string            `json:"customer_segment,omitempty"`
	VerificationLevel     VerificationLevel `json:"verification_level,omitempty"`
	ResponseFormat        ResponseFormat    `json:"response_format,omitempty"`
	IncludeSuggestions    *bool             `json:"include_suggestions,omitempty"`
	SubjectAreas          []string          `json:"subject_areas,omitempty"`
	UrgencyLevel          UrgencyLevel      `json:"urgency_level,omitempty"`
	MinAccuracyScore      *float64          `json:"min_accuracy_score,omitempty"`
	RequireSourceCitation *bool             `json:"require_source_citation,omitempty"`
}

// ApplyDefaults fills unset optional fields with their defaults.
func (r *SupportVerificationRequest) ApplyDefaults() {
	if r.VerificationLevel == "" {
		r.VerificationLevel = LevelStandard
	}
	if r.ResponseFormat == "" {
		r.ResponseFormat = FormatStandard
	}
	if r.UrgencyLevel == "" {
		r.UrgencyLevel = UrgencyNormal
	}
	if r.IncludeSuggestions == nil {
		v := true
		r.IncludeSuggestions = &v
	}
	if r.RequireSourceCitation == nil {
		v := true
		r.RequireSourceCitation = &v
	}
	if r.MinAccuracyScore == nil {
		v := 0.8
		r.MinAccuracyScore = &v
	}
}

// Validate checks the request for structural and cross-field errors.
// ApplyDefaults must be called first.
func (r *SupportVerificationRequest) Validate() error {
	response := strings.TrimSpace(r.SupportResponse)
	if response == "" {
		return fmt.Errorf("support_response cannot be empty")
	}
	if len(response) < 10 || len(response) > 10000 {
		return fmt.Errorf("support_response must be between 10 and 10000 characters, got %d", len(response))
	}
	if len(strings.Fields(response)) < 3 {
		return fmt.Errorf("support_response must contain at least 3 words")
	}
	r.SupportResponse = response

	if len(r.CustomerQuery) > 5000 {
		return fmt.Errorf("customer_query exceeds 5000 characters")
	}

	switch r.VerificationLevel {
	case LevelStandard, LevelStrict, LevelComprehensive:
	default:
		return fmt.Errorf("invalid verification_level: %s", r.VerificationLevel)
	}

	switch r.ResponseFormat {
	case FormatQuick, FormatStandard, FormatDetailed:
	default:
		return fmt.Errorf("invalid response_format: %s", r.ResponseFormat)
	}

	switch r.UrgencyLevel {
	case UrgencyLow, UrgencyNormal, UrgencyHigh, UrgencyCritical:
	default:
		return fmt.Errorf("invalid urgency_level: %s", r.UrgencyLevel)
	}

	score := *r.MinAccuracyScore
	if score < 0.0 || score > 1.0 {
		return fmt.Errorf("min_accuracy_score must be between 0.0 and 1.0, got %.3f", score)
	}
	if r.VerificationLevel == LevelStrict && score < 0.85 {
		return fmt.Errorf("strict verification requires min_accuracy_score of at least 0.85")
	}
	if r.VerificationLevel == LevelComprehensive && score < 0.9 {
		return fmt.Errorf("comprehensive verification requires min_accuracy_score of at least 0.9")
	}

	if len(r.SubjectAreas) > 10 {
		return fmt.Errorf("subject_areas cannot contain more than 10 entries")
	}
	cleaned := make([]string, 0, len(r.SubjectAreas))
	seen := make(map[string]bool)
	for _, area := range r.SubjectAreas {
		area = strings.ToLower(strings.TrimSpace(area))
		if area == "" || seen[area] {
			continue
		}
		if !validSubjectAreas[area] {
			return fmt.Errorf("unknown subject area: %s", area)
		}
		seen[area] = true
		cleaned = append(cleaned, area)
	}
	r.SubjectAreas = cleaned

	return nil
}

// MaxEvidencePerClaim returns the evidence budget for a verification level.
func (l VerificationLevel) MaxEvidencePerClaim() int {
	switch l {
	case LevelStrict:
		return 5
	case LevelComprehensive:
		return 7
	default:
		return 3
	}
}

// BatchVerificationRequest verifies several responses in one call.
type BatchVerificationRequest struct {
	Requests []SupportVerificationRequest `json:"requests"`
}

// IngestDocumentRequest submits a knowledge-base document for indexing.
type IngestDocumentRequest struct {
	DocumentName string `json:"document_name"`
	Content      string `json:"content"`
	DocumentType string `json:"document_type,omitempty"`
}

// VerificationRecord is the persisted summary of a completed verification run.
type VerificationRecord struct {
	ID               string             `json:"id"`
	TicketID         string             `json:"ticket_id,omitempty"`
	AgentID          string             `json:"agent_id,omitempty"`
	Status           VerificationStatus `json:"status"`
	OverallScore     float64            `json:"overall_score"`
	FactualScore     float64            `json:"factual_score"`
	ComplianceScore  float64            `json:"compliance_score"`
	TotalClaims      int                `json:"total_claims"`
	ProcessingTimeMs int64              `json:"processing_time_ms"`
	ResponseJSON     string             `json:"-"`
	CreatedAt        time.Time          `json:"created_at"`
}

// APIKey represents an API key for authentication.
type APIKey struct {
	ID                string     `json:"id"`
	KeyHash           string     `json:"-"` // Never expose
	Name              string     `json:"name"`
	RequestsPerMinute int        `json:"requests_per_minute"`
	CreatedAt         time.Time  `json:"created_at"`
	LastUsedAt        *time.Time `json:"last_used_at,omitempty"`
}

// AuditLog represents an API request audit entry.
type AuditLog struct {
	ID           string    `json:"id"`
	APIKeyID     string    `json:"api_key_id"`
	Endpoint     string    `json:"endpoint"`
	Method       string    `json:"method"`
	RequestSize  int64     `json:"request_size"`
	ResponseCode int       `json:"response_code"`
	DurationMs   int64     `json:"duration_ms"`
	Timestamp    time.Time `json:"timestamp"`
}
