// Package api provides HTTP API handlers.
package api

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/supportquality/sentinel/internal/database"
	"github.com/supportquality/sentinel/internal/ingest"
	"github.com/supportquality/sentinel/internal/models"
	"github.com/supportquality/sentinel/internal/pipeline"
	"github.com/supportquality/sentinel/internal/vectorstore"
)

// maxBatchSize caps how many responses one batch request may carry.
const maxBatchSize = 10

// Handler contains all HTTP handlers.
type Handler struct {
	pipeline  *pipeline.Pipeline
	processor *ingest.Processor
	vstore    vectorstore.Store
	store     database.Store
}

// NewHandler creates a new handler.
func NewHandler(p *pipeline.Pipeline, processor *ingest.Processor, vstore vectorstore.Store, store database.Store) *Handler {
	return &Handler{
		pipeline:  p,
		processor: processor,
		vstore:    vstore,
		store:     store,
	}
}

// HealthCheck returns the service health status.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":       "healthy",
		"version":      "1.0.0",
		"vector_store": h.vstore.Name(),
		"timestamp":    time.Now().UTC().Format(time.RFC3339),
	}
	writeJSON(w, http.StatusOK, response)
}

// VerifyResponse handles single support response verification requests.
func (h *Handler) VerifyResponse(w http.ResponseWriter, r *http.Request) {
	var req models.SupportVerificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	req.ApplyDefaults()
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	result := h.pipeline.VerifyResponse(r.Context(), &req)
	h.persistResult(r, &req, &result)

	writeJSON(w, http.StatusCreated, result)
}

// VerifyBatch verifies several responses sequentially in one call. Invalid
// entries are reported in place without failing the whole batch.
func (h *Handler) VerifyBatch(w http.ResponseWriter, r *http.Request) {
	var batch models.BatchVerificationRequest
	if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if len(batch.Requests) == 0 {
		writeError(w, http.StatusBadRequest, "Batch cannot be empty")
		return
	}
	if len(batch.Requests) > maxBatchSize {
		writeError(w, http.StatusBadRequest, "Batch cannot exceed "+strconv.Itoa(maxBatchSize)+" requests")
		return
	}

	type batchEntry struct {
		Index  int                                  `json:"index"`
		Error  string                               `json:"error,omitempty"`
		Result *models.SupportVerificationResponse `json:"result,omitempty"`
	}

	entries := make([]batchEntry, 0, len(batch.Requests))
	for i := range batch.Requests {
		req := &batch.Requests[i]
		req.ApplyDefaults()
		if err := req.Validate(); err != nil {
			entries = append(entries, batchEntry{Index: i, Error: err.Error()})
			continue
		}
		result := h.pipeline.VerifyResponse(r.Context(), req)
		h.persistResult(r, req, &result)
		entries = append(entries, batchEntry{Index: i, Result: &result})
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"results": entries,
		"total":   len(entries),
	})
}

// IngestDocument indexes a single knowledge-base document.
func (h *Handler) IngestDocument(w http.ResponseWriter, r *http.Request) {
	var req models.IngestDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.DocumentName == "" {
		writeError(w, http.StatusBadRequest, "document_name is required")
		return
	}
	if req.Content == "" {
		writeError(w, http.StatusBadRequest, "content is required")
		return
	}

	result, err := h.processor.ProcessDocument(r.Context(), req.DocumentName, req.Content, req.DocumentType)
	if err != nil {
		log.Error().Err(err).Str("document", req.DocumentName).Msg("Ingestion failed")
		writeError(w, http.StatusInternalServerError, "Failed to ingest document")
		return
	}

	writeJSON(w, http.StatusCreated, result)
}

// CollectionStats reports point counts for every vector store collection.
func (h *Handler) CollectionStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.vstore.Stats(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Stats lookup failed")
		writeError(w, http.StatusInternalServerError, "Failed to read collection stats")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"store":       h.vstore.Name(),
		"collections": stats,
	})
}

// GetResult returns a stored verification result by ID.
func (h *Handler) GetResult(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "ID is required")
		return
	}

	record, err := h.store.GetVerification(r.Context(), id)
	if err != nil {
		log.Error().Err(err).Msg("Failed to get verification")
		writeError(w, http.StatusInternalServerError, "Failed to get result")
		return
	}
	if record == nil {
		writeError(w, http.StatusNotFound, "Result not found")
		return
	}

	// Return the full stored response, not just the summary record.
	var full models.SupportVerificationResponse
	if err := json.Unmarshal([]byte(record.ResponseJSON), &full); err != nil {
		log.Error().Err(err).Str("id", id).Msg("Stored result is corrupt")
		writeError(w, http.StatusInternalServerError, "Stored result is corrupt")
		return
	}

	writeJSON(w, http.StatusOK, full)
}

// ListResults returns paginated verification summaries.
func (h *Handler) ListResults(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	if offset < 0 {
		offset = 0
	}

	records, err := h.store.ListVerifications(r.Context(), limit, offset)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list results")
		writeError(w, http.StatusInternalServerError, "Failed to list results")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"results": records,
		"limit":   limit,
		"offset":  offset,
	})
}

// GetAuditLogs returns paginated audit logs.
func (h *Handler) GetAuditLogs(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	if offset < 0 {
		offset = 0
	}

	logs, err := h.store.GetAuditLogs(r.Context(), limit, offset)
	if err != nil {
		log.Error().Err(err).Msg("Failed to get audit logs")
		writeError(w, http.StatusInternalServerError, "Failed to get audit logs")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"logs":   logs,
		"limit":  limit,
		"offset": offset,
	})
}

// CreateAPIKey creates a new API key.
func (h *Handler) CreateAPIKey(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name              string `json:"name"`
		RequestsPerMinute int    `json:"requests_per_minute"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "Name is required")
		return
	}

	// Generate random API key
	keyBytes := make([]byte, 32)
	if _, err := rand.Read(keyBytes); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to generate key")
		return
	}
	rawKey := "snt_" + base64.URLEncoding.EncodeToString(keyBytes)

	// Hash for storage
	hash := sha256.Sum256([]byte(rawKey))
	keyHash := hex.EncodeToString(hash[:])

	if req.RequestsPerMinute <= 0 {
		req.RequestsPerMinute = 60
	}

	apiKey := &models.APIKey{
		ID:                uuid.New().String(),
		KeyHash:           keyHash,
		Name:              req.Name,
		RequestsPerMinute: req.RequestsPerMinute,
		CreatedAt:         time.Now(),
	}

	if err := h.store.CreateAPIKey(r.Context(), apiKey); err != nil {
		log.Error().Err(err).Msg("Failed to create API key")
		writeError(w, http.StatusInternalServerError, "Failed to create API key")
		return
	}

	// Return the raw key only once
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"id":                  apiKey.ID,
		"key":                 rawKey, // Only returned on creation
		"name":                apiKey.Name,
		"requests_per_minute": apiKey.RequestsPerMinute,
		"created_at":          apiKey.CreatedAt,
	})
}

// ListAPIKeys lists all API keys (without the actual keys).
func (h *Handler) ListAPIKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := h.store.ListAPIKeys(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to list API keys")
		writeError(w, http.StatusInternalServerError, "Failed to list API keys")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"keys": keys,
	})
}

// DeleteAPIKey deletes an API key.
func (h *Handler) DeleteAPIKey(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "ID is required")
		return
	}

	if err := h.store.DeleteAPIKey(r.Context(), id); err != nil {
		log.Error().Err(err).Msg("Failed to delete API key")
		writeError(w, http.StatusInternalServerError, "Failed to delete API key")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// persistResult stores the completed verification for later retrieval.
// Persistence failures are logged, not surfaced to the caller.
func (h *Handler) persistResult(r *http.Request, req *models.SupportVerificationRequest, result *models.SupportVerificationResponse) {
	responseJSON, err := json.Marshal(result)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal verification result")
		return
	}

	record := &models.VerificationRecord{
		ID:               result.VerificationID,
		TicketID:         req.TicketID,
		AgentID:          req.AgentID,
		Status:           result.VerificationStatus,
		OverallScore:     result.OverallScore,
		FactualScore:     result.FactualAccuracy.OverallScore,
		ComplianceScore:  result.GuidelineCompliance.OverallScore,
		TotalClaims:      result.FactualAccuracy.TotalClaims,
		ProcessingTimeMs: result.ProcessingTimeMs,
		ResponseJSON:     string(responseJSON),
		CreatedAt:        time.Now().UTC(),
	}

	if err := h.store.SaveVerification(r.Context(), record); err != nil {
		log.Error().Err(err).Str("id", record.ID).Msg("Failed to persist verification")
	}
}

// Helper functions
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
