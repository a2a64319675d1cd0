// Package ingest loads knowledge-base documents into the vector store:
// chunking, embedding, and upserting.
package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/supportquality/sentinel/internal/chunk"
	"github.com/supportquality/sentinel/internal/config"
	"github.com/supportquality/sentinel/internal/embed"
	"github.com/supportquality/sentinel/internal/vectorstore"
)

// DocumentResult summarizes the ingestion of a single document.
type DocumentResult struct {
	DocumentID   string `json:"document_id"`
	DocumentType string `json:"document_type"`
	Chunks       int    `json:"chunks"`
	Indexed      int    `json:"indexed"`
}

// Processor turns raw documents into indexed, embedded chunks.
type Processor struct {
	chunker     *chunk.AdaptiveChunker
	embedder    *embed.Manager
	store       vectorstore.Store
	concurrency int
}

// NewProcessor creates a document processor.
func NewProcessor(embedder *embed.Manager, store vectorstore.Store, cfg *config.IngestConfig) *Processor {
	concurrency := cfg.Concurrency
	if concurrency < 1 {
		concurrency = 4
	}
	return &Processor{
		chunker:     chunk.NewAdaptiveChunker(),
		embedder:    embedder,
		store:       store,
		concurrency: concurrency,
	}
}

// ProcessDocument chunks, embeds, and indexes one document. documentType may
// be empty, in which case it is classified from the document name.
func (p *Processor) ProcessDocument(ctx context.Context, documentName, content, documentType string) (DocumentResult, error) {
	documentID := strings.TrimSuffix(filepath.Base(documentName), filepath.Ext(documentName))
	if documentType == "" {
		documentType = ClassifyDocumentType(documentName)
	}

	chunks := p.chunker.ChunkDocument(content, documentID, documentType)
	if len(chunks) == 0 {
		return DocumentResult{}, fmt.Errorf("document %s produced no chunks", documentID)
	}

	embedded := p.embedder.EmbedChunks(ctx, chunks)

	counts, err := p.store.UpsertChunks(ctx, embedded)
	if err != nil {
		return DocumentResult{}, fmt.Errorf("indexing %s: %w", documentID, err)
	}

	indexed := 0
	for _, n := range counts {
		indexed += n
	}

	log.Info().
		Str("document_id", documentID).
		Str("document_type", documentType).
		Int("chunks", len(chunks)).
		Int("indexed", indexed).
		Msg("Document ingested")

	return DocumentResult{
		DocumentID:   documentID,
		DocumentType: documentType,
		Chunks:       len(chunks),
		Indexed:      indexed,
	}, nil
}

// ProcessDirectory ingests every markdown file under dir with bounded
// concurrency. Per-file failures are logged and skipped.
func (p *Processor) ProcessDirectory(ctx context.Context, dir string) ([]DocumentResult, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.md"))
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", dir, err)
	}
	if len(matches) == 0 {
		log.Warn().Str("dir", dir).Msg("No markdown documents found")
		return nil, nil
	}

	log.Info().Str("dir", dir).Int("documents", len(matches)).Msg("Ingesting knowledge base")

	var mu sync.Mutex
	var results []DocumentResult

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for _, path := range matches {
		path := path
		g.Go(func() error {
			data, err := os.ReadFile(path)
			if err != nil {
				log.Error().Err(err).Str("path", path).Msg("Failed to read document")
				return nil
			}
			result, err := p.ProcessDocument(gctx, filepath.Base(path), string(data), "")
			if err != nil {
				log.Error().Err(err).Str("path", path).Msg("Failed to ingest document")
				return nil
			}
			mu.Lock()
			results = append(results, result)
			mu.Unlock()
			return nil
		})
	}
	g.Wait()

	return results, nil
}

// documentTypeKeywords maps filename substrings to document types, checked
// in order so the more specific patterns win.
var documentTypeKeywords = []struct {
	keywords []string
	docType  string
}{
	{[]string{"fee", "pricing", "cost"}, "fee_structure"},
	{[]string{"course", "catalog", "curriculum"}, "course_catalog"},
	{[]string{"assessment", "grading", "exam"}, "assessment_policies"},
	{[]string{"support", "guideline", "sla"}, "support_guidelines"},
	{[]string{"instructor", "faculty", "mentor"}, "instructor_profiles"},
	{[]string{"placement", "salary", "hiring"}, "placement_data"},
	{[]string{"success", "story", "testimonial", "alumni"}, "success_stories"},
}

// ClassifyDocumentType infers a document type from its file name.
func ClassifyDocumentType(documentName string) string {
	name := strings.ToLower(documentName)
	for _, entry := range documentTypeKeywords {
		for _, keyword := range entry.keywords {
			if strings.Contains(name, keyword) {
				return entry.docType
			}
		}
	}
	return "general"
}
