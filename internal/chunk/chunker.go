// Package chunk splits knowledge-base documents into retrieval-sized pieces,
// adapting the strategy to the document type and content characteristics.
package chunk

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/supportquality/sentinel/internal/models"
)

// Content-density classifications assigned to chunks.
const (
	DensityFactual    = "factual_dense"
	DensityPolicy     = "policy_dense"
	DensityProcedural = "procedural"
	DensityNarrative  = "narrative"
	DensityMixed      = "mixed"
)

var (
	headerRe       = regexp.MustCompile(`(?m)^(#{1,6})\s+(.+)$`)
	bulletItemRe   = regexp.MustCompile(`(?m)^\s*[-*+]\s+`)
	numberedItemRe = regexp.MustCompile(`(?m)^\s*\d+\.\s+`)
	tableRowRe     = regexp.MustCompile(`\|.*\|`)
	digitsRe       = regexp.MustCompile(`\d+`)
	dateRe         = regexp.MustCompile(`\b\d{1,2}[-/]\d{1,2}[-/]\d{2,4}\b|\b\d{4}[-/]\d{1,2}[-/]\d{1,2}\b`)
	currencyRe     = regexp.MustCompile(`(?i)₹|rupees?|dollars?|\$`)
	policySplitRe  = regexp.MustCompile(`\n(\d+\.|[-*+]\s)`)
)

var densityPatterns = map[string][]*regexp.Regexp{
	DensityFactual: {
		regexp.MustCompile(`₹[\d,]+`),
		regexp.MustCompile(`\d+%`),
		regexp.MustCompile(`(?i)\d+\s*(months?|weeks?|days?|years?)`),
		regexp.MustCompile(`(?i)\d+\s*(students?|candidates?|companies?)`),
		regexp.MustCompile(`(?i)(average|median|minimum|maximum)\s*[:=]\s*₹?[\d,]+`),
	},
	"policy_statements": {
		regexp.MustCompile(`(?i)\b(must|shall|required|mandatory|prohibited)\b`),
		regexp.MustCompile(`(?i)\b(policy|rule|guideline|regulation)\b`),
		regexp.MustCompile(`(?i)\b(minimum|maximum)\s+\d+`),
		regexp.MustCompile(`(?i)\b(attendance|grade|score)\s*[:=]\s*\d+%?`),
	},
	DensityProcedural: {
		regexp.MustCompile(`(?i)\b(step|phase|stage)\s*\d+`),
		regexp.MustCompile(`(?i)\b(first|second|third|next|then|finally)\b`),
		regexp.MustCompile(`(?i)\b(process|procedure|workflow|method)\b`),
		regexp.MustCompile(`(?m)^\s*\d+\.`),
	},
	DensityNarrative: {
		regexp.MustCompile(`(?i)\b(story|experience|journey|background)\b`),
		regexp.MustCompile(`(?i)\b(he|she|they|we|i)\s+(was|were|am|is|are)`),
		regexp.MustCompile(`(?i)\b(once|when|after|before|during)\b`),
	},
}

// strategy controls how a document gets split.
type strategy struct {
	method           string // semantic_sections, policy_aware
	maxSize          int
	overlap          int
	preserveSections bool
}

type header struct {
	level    int
	title    string
	position int
}

type structureAnalysis struct {
	headers       []header
	hasSections   bool
	listItems     int
	numberedItems int
	tableRows     int
}

type contentAnalysis struct {
	patternCounts    map[string]int
	containsNumbers  bool
	containsDates    bool
	containsCurrency bool
	density          string
}

// AdaptiveChunker splits documents with type- and density-aware strategies.
type AdaptiveChunker struct {
	maxChunkSize int
	overlap      int
}

// NewAdaptiveChunker creates a chunker with default size limits.
func NewAdaptiveChunker() *AdaptiveChunker {
	return &AdaptiveChunker{
		maxChunkSize: 800,
		overlap:      100,
	}
}

// ChunkDocument splits content into chunks with rich metadata. Returns an
// empty slice for blank content.
func (c *AdaptiveChunker) ChunkDocument(content, documentID, documentType string) []models.DocumentChunk {
	if strings.TrimSpace(content) == "" {
		log.Warn().Str("document_id", documentID).Msg("Empty content for document")
		return nil
	}

	structure := analyzeStructure(content)
	analysis := analyzeContent(content)
	strat := c.selectStrategy(documentType, structure, analysis)

	var pieces []piece
	switch strat.method {
	case "policy_aware":
		pieces = chunkPolicyAware(content, strat)
	default:
		pieces = chunkSemanticSections(content, strat, structure)
	}

	chunks := make([]models.DocumentChunk, 0, len(pieces))
	for i, p := range pieces {
		chunks = append(chunks, models.DocumentChunk{
			Content:  p.content,
			Metadata: buildMetadata(p.content, documentID, documentType, p.sectionTitle, i, len(pieces), analysis.density),
		})
	}

	log.Info().
		Str("document_id", documentID).
		Str("document_type", documentType).
		Str("density", analysis.density).
		Int("chunks", len(chunks)).
		Msg("Chunked document")

	return chunks
}

type piece struct {
	content      string
	sectionTitle string
}

func analyzeStructure(content string) structureAnalysis {
	var headers []header
	for _, m := range headerRe.FindAllStringSubmatchIndex(content, -1) {
		headers = append(headers, header{
			level:    m[3] - m[2],
			title:    strings.TrimSpace(content[m[4]:m[5]]),
			position: m[0],
		})
	}

	return structureAnalysis{
		headers:       headers,
		hasSections:   len(headers) > 0,
		listItems:     len(bulletItemRe.FindAllString(content, -1)),
		numberedItems: len(numberedItemRe.FindAllString(content, -1)),
		tableRows:     len(tableRowRe.FindAllString(content, -1)),
	}
}

func analyzeContent(content string) contentAnalysis {
	counts := make(map[string]int, len(densityPatterns))
	for kind, patterns := range densityPatterns {
		for _, re := range patterns {
			counts[kind] += len(re.FindAllString(content, -1))
		}
	}

	numbers := digitsRe.MatchString(content)
	currency := currencyRe.MatchString(content)

	return contentAnalysis{
		patternCounts:    counts,
		containsNumbers:  numbers,
		containsDates:    dateRe.MatchString(content),
		containsCurrency: currency,
		density:          determineDensity(counts, numbers, currency),
	}
}

func determineDensity(counts map[string]int, containsNumbers, containsCurrency bool) string {
	switch {
	case counts[DensityFactual] >= 3 || (containsNumbers && containsCurrency):
		return DensityFactual
	case counts["policy_statements"] >= 2:
		return DensityPolicy
	case counts[DensityProcedural] >= 2:
		return DensityProcedural
	case counts[DensityNarrative] >= 1:
		return DensityNarrative
	default:
		return DensityMixed
	}
}

func (c *AdaptiveChunker) selectStrategy(documentType string, structure structureAnalysis, analysis contentAnalysis) strategy {
	strat := strategy{
		method:           "semantic_sections",
		maxSize:          c.maxChunkSize,
		overlap:          c.overlap,
		preserveSections: true,
	}

	switch documentType {
	case "course_catalog", "fee_structure":
		// Factual documents: smaller chunks for precision.
		strat.maxSize = 600
		strat.overlap = 50
	case "assessment_policies", "support_guidelines":
		// Policy documents: keep logical units intact.
		strat.method = "policy_aware"
		strat.maxSize = 800
		strat.overlap = 100
	case "instructor_profiles", "success_stories":
		// Narrative documents: larger chunks for context.
		strat.maxSize = 1200
		strat.overlap = 150
		strat.preserveSections = false
	}

	switch analysis.density {
	case DensityFactual:
		if strat.maxSize > 500 {
			strat.maxSize = 500
		}
		strat.preserveSections = true
	case DensityNarrative:
		if strat.maxSize < 1000 {
			strat.maxSize = 1000
		}
		if strat.overlap < 100 {
			strat.overlap = 100
		}
	}

	if structure.hasSections {
		strat.preserveSections = true
	}

	return strat
}

func chunkSemanticSections(content string, strat strategy, structure structureAnalysis) []piece {
	if !structure.hasSections {
		return chunkBySize(content, strat, "Content Section")
	}

	var pieces []piece
	for i, h := range structure.headers {
		end := len(content)
		if i+1 < len(structure.headers) {
			end = structure.headers[i+1].position
		}
		section := strings.TrimSpace(content[h.position:end])
		if section == "" {
			continue
		}
		if len(section) <= strat.maxSize {
			pieces = append(pieces, piece{content: section, sectionTitle: h.title})
		} else {
			pieces = append(pieces, chunkBySize(section, strat, h.title)...)
		}
	}
	return pieces
}

func chunkPolicyAware(content string, strat strategy) []piece {
	// Split on numbered-item and bullet boundaries, keeping the marker with
	// the section that follows it.
	var sections []string
	locs := policySplitRe.FindAllStringIndex(content, -1)
	prev := 0
	for _, loc := range locs {
		sections = append(sections, content[prev:loc[0]])
		prev = loc[0] + 1 // keep the marker, drop the newline
	}
	sections = append(sections, content[prev:])

	var pieces []piece
	var current strings.Builder
	for _, section := range sections {
		section = strings.TrimSpace(section)
		if section == "" {
			continue
		}
		if current.Len()+len(section) <= strat.maxSize {
			if current.Len() > 0 {
				current.WriteString("\n")
			}
			current.WriteString(section)
		} else {
			if current.Len() > 0 {
				pieces = append(pieces, piece{content: current.String(), sectionTitle: "Policy Section"})
			}
			current.Reset()
			current.WriteString(section)
		}
	}
	if current.Len() > 0 {
		pieces = append(pieces, piece{content: current.String(), sectionTitle: "Policy Section"})
	}
	return pieces
}

func chunkBySize(content string, strat strategy, sectionTitle string) []piece {
	sentences := splitSentences(content)

	var pieces []piece
	var current strings.Builder
	for _, sentence := range sentences {
		if current.Len()+len(sentence) <= strat.maxSize {
			if current.Len() > 0 {
				current.WriteString(" ")
			}
			current.WriteString(sentence)
		} else {
			if current.Len() > 0 {
				pieces = append(pieces, piece{content: strings.TrimSpace(current.String()), sectionTitle: sectionTitle})
			}
			current.Reset()
			current.WriteString(sentence)
		}
	}
	if current.Len() > 0 {
		pieces = append(pieces, piece{content: strings.TrimSpace(current.String()), sectionTitle: sectionTitle})
	}
	return pieces
}

// splitSentences splits text on sentence terminators followed by whitespace,
// keeping the terminator with the sentence.
func splitSentences(text string) []string {
	var sentences []string
	start := 0
	for i := 0; i < len(text); i++ {
		ch := text[i]
		if ch != '.' && ch != '!' && ch != '?' {
			continue
		}
		// Consume a run of terminators.
		j := i
		for j+1 < len(text) && (text[j+1] == '.' || text[j+1] == '!' || text[j+1] == '?') {
			j++
		}
		if j+1 < len(text) && (text[j+1] == ' ' || text[j+1] == '\t' || text[j+1] == '\n' || text[j+1] == '\r') {
			sentences = append(sentences, strings.TrimSpace(text[start:j+1]))
			k := j + 1
			for k < len(text) && (text[k] == ' ' || text[k] == '\t' || text[k] == '\n' || text[k] == '\r') {
				k++
			}
			start = k
			i = k - 1
		} else {
			i = j
		}
	}
	if start < len(text) {
		if s := strings.TrimSpace(text[start:]); s != "" {
			sentences = append(sentences, s)
		}
	}
	return sentences
}

func buildMetadata(content, documentID, documentType, sectionTitle string, index, total int, density string) models.ChunkMetadata {
	sum := md5.Sum([]byte(content))
	chunkHash := hex.EncodeToString(sum[:])[:8]

	return models.ChunkMetadata{
		ChunkID:         fmt.Sprintf("%s_%d_%s", documentID, index, chunkHash),
		DocumentID:      documentID,
		DocumentType:    documentType,
		SectionTitle:    sectionTitle,
		ChunkIndex:      index,
		TotalChunks:     total,
		ContentDensity:  density,
		ContainsNumbers: digitsRe.MatchString(content),
		ContainsDates:   dateRe.MatchString(content),
		WordCount:       len(strings.Fields(content)),
		CharCount:       len(content),
		CreatedAt:       time.Now().UTC().Format(time.RFC3339),
	}
}
