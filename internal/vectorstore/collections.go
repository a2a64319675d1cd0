// Package vectorstore manages multi-collection vector storage with
// per-collection index tuning and content-aware routing.
package vectorstore

import (
	"github.com/supportquality/sentinel/internal/models"
)

// Collection names.
const (
	CollectionFactual    = "factual_precise"
	CollectionGuidelines = "guidelines_fast"
	CollectionContextual = "contextual_knowledge"
)

// HNSWConfig holds per-collection index tuning parameters.
type HNSWConfig struct {
	M           int `json:"m"`
	EfConstruct int `json:"ef_construct"`
	Ef          int `json:"ef"`
}

// CollectionConfig describes one vector collection.
type CollectionConfig struct {
	Name               string
	Index              HNSWConfig
	ContentTypes       []string
	OptimizationTarget string
	MetadataIndexes    []string
}

// CollectionConfigs returns the fixed set of collections, each tuned for its
// content: high connectivity for factual precision, lower for guideline
// speed, balanced for narratives.
func CollectionConfigs() []CollectionConfig {
	return []CollectionConfig{
		{
			Name:               CollectionFactual,
			Index:              HNSWConfig{M: 32, EfConstruct: 400, Ef: 200},
			ContentTypes:       []string{"course_catalog", "fee_structure", "placement_data"},
			OptimizationTarget: "precision",
			MetadataIndexes:    []string{"document_type", "last_updated", "content_density", "contains_numbers"},
		},
		{
			Name:               CollectionGuidelines,
			Index:              HNSWConfig{M: 16, EfConstruct: 200, Ef: 128},
			ContentTypes:       []string{"assessment_policies", "support_guidelines", "procedures"},
			OptimizationTarget: "speed",
			MetadataIndexes:    []string{"document_type", "policy_type", "compliance_level"},
		},
		{
			Name:               CollectionContextual,
			Index:              HNSWConfig{M: 24, EfConstruct: 300, Ef: 150},
			ContentTypes:       []string{"instructor_profiles", "success_stories", "general_info"},
			OptimizationTarget: "balanced",
			MetadataIndexes:    []string{"document_type", "content_category", "narrative_type"},
		},
	}
}

// CollectionNames returns all collection names in declaration order.
func CollectionNames() []string {
	configs := CollectionConfigs()
	names := make([]string, len(configs))
	for i, c := range configs {
		names[i] = c.Name
	}
	return names
}

// TargetCollection routes a chunk to its collection by document type and
// content density.
func TargetCollection(meta models.ChunkMetadata) string {
	switch meta.DocumentType {
	case "course_catalog", "fee_structure", "placement_data":
		return CollectionFactual
	case "assessment_policies", "support_guidelines", "procedures":
		return CollectionGuidelines
	}
	if meta.ContentDensity == "factual_dense" {
		return CollectionFactual
	}
	return CollectionContextual
}

// factualEntities are entity types that indicate numeric factual lookups.
var factualEntities = map[string]bool{
	"cost":       true,
	"fee":        true,
	"salary":     true,
	"percentage": true,
}

// RouteQuery selects the collections to search for a query, based on its
// analyzed intent and entity types. Falls back to all collections when no
// specific routing applies.
func RouteQuery(analysis models.QueryAnalysis) []string {
	var targets []string

	hasFactualEntity := false
	for _, e := range analysis.EntityTypes {
		if factualEntities[e] {
			hasFactualEntity = true
			break
		}
	}

	if analysis.Intent == "factual_lookup" || hasFactualEntity {
		targets = append(targets, CollectionFactual)
	}
	if analysis.Intent == "guideline_check" || analysis.Intent == "compliance_verification" {
		targets = append(targets, CollectionGuidelines)
	}
	if analysis.Intent == "contextual_info" {
		targets = append(targets, CollectionContextual)
	}

	if len(targets) == 0 {
		return CollectionNames()
	}
	return targets
}
