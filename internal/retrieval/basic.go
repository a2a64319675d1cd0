package retrieval

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/supportquality/sentinel/internal/models"
	"github.com/supportquality/sentinel/internal/vectorstore"
)

// BasicRetriever is a keyword-overlap fallback used when the advanced engine
// cannot run, e.g. when the embedding provider is unavailable. It scans the
// vector store payloads directly and scores chunks lexically.
type BasicRetriever struct {
	store      vectorstore.Store
	scrollSize int
}

// NewBasicRetriever creates a keyword-based retriever over the same store.
func NewBasicRetriever(store vectorstore.Store) *BasicRetriever {
	return &BasicRetriever{store: store, scrollSize: 500}
}

var (
	numberQueryRe = regexp.MustCompile(`[\d,]+`)
	digitRe       = regexp.MustCompile(`\d`)
)

var policyKeywords = []string{"policy", "rule", "guideline", "requirement"}

// RetrieveEvidence finds evidence by lexical matching. Per-claim failures
// yield empty evidence.
func (r *BasicRetriever) RetrieveEvidence(ctx context.Context, claims []models.Claim, maxPerClaim int) map[string][]models.Evidence {
	log.Info().Int("claims", len(claims)).Msg("Basic keyword retrieval for claims")

	chunks := r.loadChunks(ctx)

	evidence := make(map[string][]models.Evidence, len(claims))
	for _, claim := range claims {
		evidence[claim.Text] = r.retrieveForClaim(claim, chunks, maxPerClaim)
	}
	return evidence
}

type scoredChunk struct {
	hit   vectorstore.SearchResult
	score float64
}

func (r *BasicRetriever) loadChunks(ctx context.Context) []vectorstore.SearchResult {
	var all []vectorstore.SearchResult
	for _, collection := range vectorstore.CollectionNames() {
		hits, err := r.store.Scroll(ctx, collection, r.scrollSize)
		if err != nil {
			log.Warn().Err(err).Str("collection", collection).Msg("Scroll failed")
			continue
		}
		all = append(all, hits...)
	}
	return all
}

func (r *BasicRetriever) retrieveForClaim(claim models.Claim, chunks []vectorstore.SearchResult, maxEvidence int) []models.Evidence {
	queries := generateSearchQueries(claim)

	var matched []scoredChunk
	seen := make(map[string]bool)
	for _, chunk := range chunks {
		best := 0.0
		for _, query := range queries {
			if s := lexicalRelevance(chunk.Content, strings.ToLower(query)); s > best {
				best = s
			}
		}
		if best <= 0.1 {
			continue
		}

		key := chunk.Content
		if len(key) > 100 {
			key = key[:100]
		}
		key = strings.TrimSpace(key)
		if seen[key] {
			continue
		}
		seen[key] = true

		best = adjustForClaim(best, claim, chunk.Metadata.DocumentType)
		matched = append(matched, scoredChunk{hit: chunk, score: best})
	}

	sort.Slice(matched, func(i, j int) bool { return matched[i].score > matched[j].score })
	if len(matched) > maxEvidence {
		matched = matched[:maxEvidence]
	}

	evidence := make([]models.Evidence, 0, len(matched))
	for _, m := range matched {
		evidence = append(evidence, models.Evidence{
			Source:         formatSourceName(m.hit.Metadata),
			Content:        m.hit.Content,
			RelevanceScore: models.Clamp01(m.score),
			DocumentType:   m.hit.Metadata.DocumentType,
			LastUpdated:    m.hit.Metadata.CreatedAt,
		})
	}
	return evidence
}

// generateSearchQueries derives lexical queries from a claim: the claim
// itself, its entities, and type-specific terms.
func generateSearchQueries(claim models.Claim) []string {
	queries := []string{claim.Text}

	for _, entity := range claim.Entities {
		if len(entity) > 2 {
			queries = append(queries, entity)
		}
	}

	switch claim.ClaimType {
	case models.ClaimTypeFactualData:
		queries = append(queries, numberQueryRe.FindAllString(claim.Text, -1)...)
	case models.ClaimTypePolicyStatement:
		lower := strings.ToLower(claim.Text)
		for _, word := range policyKeywords {
			if strings.Contains(lower, word) {
				queries = append(queries, word)
			}
		}
	}

	seen := make(map[string]bool)
	unique := queries[:0]
	for _, q := range queries {
		if len(q) <= 2 || seen[q] {
			continue
		}
		seen[q] = true
		unique = append(unique, q)
	}
	if len(unique) > 5 {
		unique = unique[:5]
	}
	return unique
}

// lexicalRelevance scores content against a lowercased query: exact
// substring match wins, otherwise word overlap with boosts for shared
// numbers and currency.
func lexicalRelevance(content, query string) float64 {
	contentLower := strings.ToLower(content)

	if strings.Contains(contentLower, query) {
		return 1.0
	}

	queryWords := strings.Fields(query)
	if len(queryWords) == 0 {
		return 0
	}
	contentWords := make(map[string]bool)
	for _, w := range strings.Fields(contentLower) {
		contentWords[w] = true
	}

	overlap := 0
	for _, w := range queryWords {
		if contentWords[w] {
			overlap++
		}
	}
	relevance := float64(overlap) / float64(len(queryWords))

	if digitRe.MatchString(query) && digitRe.MatchString(contentLower) {
		relevance += 0.3
	}
	if strings.Contains(query, "₹") && strings.Contains(contentLower, "₹") {
		relevance += 0.4
	}

	if relevance > 1.0 {
		relevance = 1.0
	}
	return relevance
}

var claimDocTypes = map[models.ClaimType][]string{
	models.ClaimTypeFactualData:     {"course_catalog", "fee_structure", "placement_data"},
	models.ClaimTypePolicyStatement: {"assessment_policies", "support_guidelines"},
	models.ClaimTypeProcedureStep:   {"support_guidelines", "assessment_policies"},
	models.ClaimTypeTimelineInfo:    {"course_catalog", "placement_data"},
	models.ClaimTypeContactInfo:     {"instructor_profiles", "support_guidelines"},
}

func adjustForClaim(score float64, claim models.Claim, docType string) float64 {
	if claim.VerificationPriority == "high" {
		score *= 1.2
	}
	if claim.SpecificityLevel == "specific" {
		score *= 1.1
	}
	for _, t := range claimDocTypes[claim.ClaimType] {
		if t == docType {
			score *= 1.3
			break
		}
	}
	return score
}

var (
	_ EvidenceRetriever = (*Engine)(nil)
	_ EvidenceRetriever = (*BasicRetriever)(nil)
)
