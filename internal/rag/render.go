package rag

import (
	"fmt"
	"strings"
)

const (
	SourceAttachment = "attachment"
	SourceKnowledge  = "knowledge"
)

// Hit is one ranked chunk plus its provenance.
type Hit struct {
	Source       string  `json:"source"`
	Score        float64 `json:"score"`
	Content      string  `json:"content"`
	DocumentID   int64   `json:"document_id,omitempty"`
	DocumentName string  `json:"document_name,omitempty"`
	SectionTitle string  `json:"section_title,omitempty"`
	SectionLevel int     `json:"section_level,omitempty"`
	Category     string  `json:"category,omitempty"`
	ChunkIndex   int     `json:"chunk_index"`
	Snippet      string  `json:"snippet"`
}

func renderAttachment(h *Hit) string {
	return fmt.Sprintf("[attachment | similarity %.2f]\n%s", h.Score, h.Content)
}

func renderKnowledge(h *Hit) string {
	parts := []string{"knowledge", "source: " + h.DocumentName}
	if h.SectionTitle != "" {
		parts = append(parts, fmt.Sprintf("section: %s (level %d)", h.SectionTitle, h.SectionLevel))
	}
	if h.Category != "" {
		parts = append(parts, "category: "+h.Category)
	}
	parts = append(parts, fmt.Sprintf("similarity %.2f", h.Score))
	return "[" + strings.Join(parts, " | ") + "]\n" + h.Content
}

// Snippets returns the rendered strings of hits in rank order.
func Snippets(hits []Hit) []string {
	out := make([]string, 0, len(hits))
	for _, h := range hits {
		out = append(out, h.Snippet)
	}
	return out
}
