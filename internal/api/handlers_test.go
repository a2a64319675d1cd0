package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/supportquality/sentinel/internal/config"
	"github.com/supportquality/sentinel/internal/database"
	"github.com/supportquality/sentinel/internal/embed"
	"github.com/supportquality/sentinel/internal/ingest"
	"github.com/supportquality/sentinel/internal/llm"
	"github.com/supportquality/sentinel/internal/pipeline"
	"github.com/supportquality/sentinel/internal/retrieval"
	"github.com/supportquality/sentinel/internal/vectorstore"
)

// fakeProvider dispatches canned responses keyed by a prompt substring.
type fakeProvider struct {
	responses map[string]string
	fallback  string
}

func (f *fakeProvider) respond(prompt string) (string, error) {
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

func newTestServer(t *testing.T) http.Handler {
	t.Helper()

	claimText := "The Data Science course costs ₹99,000"
	provider := &fakeProvider{
		responses: map[string]string{
			"Extract all verifiable claims": `{"claims": [
				{"text": "` + claimText + `", "claim_type": "factual_data", "verification_priority": "high", "specificity_level": "specific", "entities": ["₹99,000"], "confidence": 0.95}
			]}`,
			"CLAIM TO VERIFY":          `{"status": "ACCURATE", "confidence": 0.95, "supporting_evidence": [1], "explanation": "Matches the fee schedule."}`,
			"strengths and weaknesses": `{"strengths": ["Accurate fee"], "weaknesses": []}`,
		},
		fallback: "[]",
	}

	store, err := database.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	vstore := vectorstore.NewMemoryStore()
	embedder := embed.NewManager(provider, "test-model", 32, time.Minute)
	processor := ingest.NewProcessor(embedder, vstore, &config.IngestConfig{Concurrency: 2})

	cfg := config.DefaultConfig()
	basic := retrieval.NewBasicRetriever(vstore)
	p := pipeline.New(provider, basic, nil, cfg)

	return NewRouter(cfg, p, processor, vstore, store)
}

func createKey(t *testing.T, server http.Handler) string {
	t.Helper()

	body := `{"name": "test-key", "requests_per_minute": 100}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/keys", strings.NewReader(body))
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	var created struct {
		Key string `json:"key"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.True(t, strings.HasPrefix(created.Key, "snt_"))
	return created.Key
}

func authedRequest(method, path string, body []byte, key string) *http.Request {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+key)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestHealthCheckUnauthenticated(t *testing.T) {
	server := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var health map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "healthy", health["status"])
	assert.Equal(t, "memory", health["vector_store"])
}

func TestVerifyRequiresAuth(t *testing.T) {
	server := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/verify/response", strings.NewReader("{}"))
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/v1/verify/response", strings.NewReader("{}"))
	req.Header.Set("Authorization", "Bearer not-a-real-key")
	rec = httptest.NewRecorder()
	server.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestVerifyResponseEndToEnd(t *testing.T) {
	server := newTestServer(t)
	key := createKey(t, server)

	// Seed the knowledge base so the retriever has something to find.
	ingestBody, _ := json.Marshal(map[string]string{
		"document_name": "fee_structure.md",
		"content":       "# Fees\n\nThe Data Science course costs ₹99,000 including all taxes and materials.",
	})
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/v1/ingest/document", ingestBody, key))
	require.Equal(t, http.StatusCreated, rec.Code)

	verifyBody, _ := json.Marshal(map[string]string{
		"support_response": "The Data Science course costs ₹99,000 and includes all materials.",
		"customer_query":   "How much does the Data Science course cost?",
		"ticket_id":        "TCK-1001",
	})
	rec = httptest.NewRecorder()
	server.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/v1/verify/response", verifyBody, key))
	require.Equal(t, http.StatusCreated, rec.Code)

	var result struct {
		VerificationID     string  `json:"verification_id"`
		VerificationStatus string  `json:"verification_status"`
		OverallScore       float64 `json:"overall_score"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.NotEmpty(t, result.VerificationID)
	assert.Equal(t, "APPROVED", result.VerificationStatus)
	assert.Equal(t, 1.0, result.OverallScore)

	// The stored result is retrievable by ID.
	rec = httptest.NewRecorder()
	server.ServeHTTP(rec, authedRequest(http.MethodGet, "/api/v1/results/"+result.VerificationID, nil, key))
	require.Equal(t, http.StatusOK, rec.Code)

	var stored struct {
		VerificationID string `json:"verification_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stored))
	assert.Equal(t, result.VerificationID, stored.VerificationID)
}

func TestVerifyResponseRejectsInvalidRequest(t *testing.T) {
	server := newTestServer(t)
	key := createKey(t, server)

	body, _ := json.Marshal(map[string]string{"support_response": "too short"})
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/v1/verify/response", body, key))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestVerifyBatchLimits(t *testing.T) {
	server := newTestServer(t)
	key := createKey(t, server)

	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/v1/verify/batch", []byte(`{"requests": []}`), key))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	requests := make([]map[string]string, maxBatchSize+1)
	for i := range requests {
		requests[i] = map[string]string{"support_response": "The course costs ₹99,000 in total."}
	}
	body, _ := json.Marshal(map[string]interface{}{"requests": requests})
	rec = httptest.NewRecorder()
	server.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/v1/verify/batch", body, key))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestVerifyBatchReportsPerEntryErrors(t *testing.T) {
	server := newTestServer(t)
	key := createKey(t, server)

	body, _ := json.Marshal(map[string]interface{}{
		"requests": []map[string]string{
			{"support_response": "The Data Science course costs ₹99,000 and includes materials."},
			{"support_response": "short"},
		},
	})
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/v1/verify/batch", body, key))
	require.Equal(t, http.StatusOK, rec.Code)

	var batch struct {
		Results []struct {
			Index int    `json:"index"`
			Error string `json:"error"`
		} `json:"results"`
		Total int `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &batch))
	assert.Equal(t, 2, batch.Total)
	assert.Empty(t, batch.Results[0].Error)
	assert.NotEmpty(t, batch.Results[1].Error)
}

func TestCollectionStatsEndpoint(t *testing.T) {
	server := newTestServer(t)
	key := createKey(t, server)

	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, authedRequest(http.MethodGet, "/api/v1/collections/stats", nil, key))
	require.Equal(t, http.StatusOK, rec.Code)

	var stats struct {
		Store       string                     `json:"store"`
		Collections map[string]json.RawMessage `json:"collections"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, "memory", stats.Store)
	assert.Len(t, stats.Collections, 3)
}

func TestAPIKeyManagement(t *testing.T) {
	server := newTestServer(t)
	createKey(t, server)

	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/admin/keys", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var listed struct {
		Keys []struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"keys"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	require.Len(t, listed.Keys, 1)
	assert.Equal(t, "test-key", listed.Keys[0].Name)

	rec = httptest.NewRecorder()
	server.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/v1/admin/keys/"+listed.Keys[0].ID, nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
