// Package rag turns extracted text into embedded chunks and ranks stored
// chunks against a query.
package rag

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/xxxsen/mchat/internal/embedding"
)

const (
	DefaultChunkSize    = 800
	DefaultChunkOverlap = 120
)

// RetrievalConfig carries the per-source overrides read from a document's
// parameters. A nil field means the caller's default applies.
type RetrievalConfig struct {
	TopK                *int     `json:"top_k,omitempty"`
	SimilarityThreshold *float64 `json:"similarity_threshold,omitempty"`
}

type DocumentParams struct {
	ChunkSize          int                    `json:"chunk_size"`
	ChunkOverlap       int                    `json:"chunk_overlap"`
	EmbeddingModel     string                 `json:"embedding_model"`
	EmbeddingDimension int                    `json:"embedding_dimension"`
	TocLevel           int                    `json:"toc_level,omitempty"`
	Metadata           map[string]interface{} `json:"metadata"`
	RetrievalConfig
}

// AsMap is the form stored in parse_result.parameters_applied.
func (p DocumentParams) AsMap() map[string]interface{} {
	out := map[string]interface{}{
		"chunk_size":          p.ChunkSize,
		"chunk_overlap":       p.ChunkOverlap,
		"embedding_model":     p.EmbeddingModel,
		"embedding_dimension": p.EmbeddingDimension,
		"metadata":            p.Metadata,
	}
	if p.TocLevel > 0 {
		out["toc_level"] = p.TocLevel
	}
	if p.TopK != nil {
		out["top_k"] = *p.TopK
	}
	if p.SimilarityThreshold != nil {
		out["similarity_threshold"] = *p.SimilarityThreshold
	}
	return out
}

// ResolveParams reads the free-form parameter map of a document. Missing,
// non-numeric and non-positive values fall back to the defaults.
func ResolveParams(parameters map[string]interface{}) DocumentParams {
	chunkCfg := subMap(parameters, "chunk")
	embeddingCfg := subMap(parameters, "embedding")

	params := DocumentParams{
		ChunkSize:          positiveInt(parameters["chunk_size"], positiveInt(chunkCfg["size"], DefaultChunkSize)),
		ChunkOverlap:       positiveInt(parameters["chunk_overlap"], positiveInt(chunkCfg["overlap"], DefaultChunkOverlap)),
		EmbeddingModel:     embedding.DefaultModelName,
		EmbeddingDimension: positiveInt(embeddingCfg["dimension"], embedding.DefaultDimension),
		TocLevel:           positiveInt(parameters["toc_level"], 0),
		Metadata:           subMap(parameters, "metadata"),
	}
	if name, ok := embeddingCfg["model"].(string); ok && strings.TrimSpace(name) != "" {
		params.EmbeddingModel = strings.TrimSpace(name)
	}
	params.RetrievalConfig = ResolveRetrieval(parameters)
	return params
}

// ResolveRetrieval extracts only the retrieval overrides.
func ResolveRetrieval(parameters map[string]interface{}) RetrievalConfig {
	var cfg RetrievalConfig
	if topK := positiveInt(parameters["top_k"], positiveInt(parameters["retrieve_top_k"], 0)); topK > 0 {
		cfg.TopK = &topK
	}
	if threshold, ok := numeric(parameters["similarity_threshold"]); ok {
		cfg.SimilarityThreshold = &threshold
	}
	return cfg
}

func subMap(parameters map[string]interface{}, key string) map[string]interface{} {
	if m, ok := parameters[key].(map[string]interface{}); ok {
		return m
	}
	return map[string]interface{}{}
}

func positiveInt(v interface{}, def int) int {
	var n int
	switch val := v.(type) {
	case int:
		n = val
	case int64:
		n = int(val)
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return def
		}
		n = int(val)
	case json.Number:
		i, err := val.Int64()
		if err != nil {
			f, ferr := val.Float64()
			if ferr != nil {
				return def
			}
			i = int64(f)
		}
		n = int(i)
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(val))
		if err != nil {
			return def
		}
		n = i
	default:
		return def
	}
	if n <= 0 {
		return def
	}
	return n
}

// numeric accepts only real numbers; strings are not coerced.
func numeric(v interface{}) (float64, bool) {
	switch val := v.(type) {
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case float64:
		if math.IsNaN(val) {
			return 0, false
		}
		return val, true
	case json.Number:
		f, err := val.Float64()
		return f, err == nil
	}
	return 0, false
}
