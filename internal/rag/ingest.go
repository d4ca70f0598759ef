package rag

import (
	"github.com/xxxsen/mchat/internal/embedding"
	"github.com/xxxsen/mchat/internal/model"
	"github.com/xxxsen/mchat/internal/textsplit"
)

// IngestResult is what a parse produced, before it is persisted.
type IngestResult struct {
	Chunks    []*model.DocumentChunk
	Sections  int
	CharCount int
}

// BuildDocumentChunks splits text into sections (bounded by toc_level),
// chunks every section and embeds each chunk. chunk_index runs across the
// whole document; chunk_in_section restarts per section.
func BuildDocumentChunks(doc *model.Document, text string, params DocumentParams, now int64) *IngestResult {
	sections := textsplit.SplitSections(text, params.TocLevel)
	if len(sections) == 0 {
		sections = []textsplit.Section{{Title: doc.Name, Level: 1, Content: text}}
	}
	res := &IngestResult{
		Chunks:    make([]*model.DocumentChunk, 0, len(sections)),
		Sections:  len(sections),
		CharCount: len([]rune(text)),
	}
	index := 0
	for sectionIndex, section := range sections {
		level := section.Level
		if level <= 0 {
			level = 1
		}
		for local, content := range textsplit.Chunk(section.Content, params.ChunkSize, params.ChunkOverlap) {
			metadata := map[string]interface{}{
				"section_title":    section.Title,
				"section_level":    level,
				"section_index":    sectionIndex,
				"chunk_in_section": local,
				"document_title":   doc.Name,
				"vector_dim":       params.EmbeddingDimension,
			}
			for k, v := range params.Metadata {
				metadata[k] = v
			}
			res.Chunks = append(res.Chunks, &model.DocumentChunk{
				DocumentID:     doc.ID,
				AssistantID:    doc.AssistantID,
				ChunkIndex:     index,
				Content:        content,
				Embedding:      embedding.Embed(content, params.EmbeddingDimension),
				EmbeddingModel: params.EmbeddingModel,
				Metadata:       metadata,
				Ctime:          now,
				Mtime:          now,
			})
			index++
		}
	}
	return res
}

// BuildAttachmentChunks chunks and embeds the text of one attachment
// message. The returned chunks carry only content, index and embedding;
// the caller fills in the owning scope.
func BuildAttachmentChunks(text string, size, overlap, dim int) []*model.AttachmentChunk {
	pieces := textsplit.Chunk(text, size, overlap)
	chunks := make([]*model.AttachmentChunk, 0, len(pieces))
	for i, content := range pieces {
		chunks = append(chunks, &model.AttachmentChunk{
			ChunkIndex: i,
			Content:    content,
			Embedding:  embedding.Embed(content, dim),
		})
	}
	return chunks
}
